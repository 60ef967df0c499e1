/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bufferserver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the largest key or payload accepted by default. A larger length prefix means the reader
// lost track of the frame boundaries.
const DefaultMaxFrameSize = 64 << 20

const lengthSize = 4

// FrameTooLargeErr is returned when a length prefix exceeds the maximum frame size.
type FrameTooLargeErr struct {
	Size int
	Max  int
}

func (e FrameTooLargeErr) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds the maximum of %d bytes, stream is out of sync", e.Size, e.Max)
}

// Frame is a routing key and an opaque payload. A frame with an empty key carries a control request.
type Frame struct {
	Key     string
	Payload []byte
}

// IsControl returns true for control frames.
func (f Frame) IsControl() bool {
	return f.Key == ""
}

// AppendFrame appends the wire form of the frame to dst:
//
//	[uint32 BE key length][key][uint32 BE payload length][payload]
func AppendFrame(dst []byte, key string, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(key)))
	dst = append(dst, key...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// EncodeFrame returns the wire form of the frame in a new buffer.
func EncodeFrame(key string, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, 2*lengthSize+len(key)+len(payload)), key, payload)
}

// FrameReader reads consecutive frames from a byte stream.
type FrameReader struct {
	r      *bufio.Reader
	max    int
	header [lengthSize]byte
}

// NewFrameReader returns a FrameReader rejecting keys and payloads larger than maxSize bytes.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024), max: maxSize}
}

// Next reads the next frame. It returns io.EOF when the stream ends on a frame boundary and
// io.ErrUnexpectedEOF when it ends inside a frame.
func (fr *FrameReader) Next() (Frame, error) {
	keyLen, err := fr.length()
	if err != nil {
		return Frame{}, err
	}
	key, err := fr.bytes(keyLen)
	if err != nil {
		return Frame{}, noEOF(err)
	}
	payloadLen, err := fr.length()
	if err != nil {
		return Frame{}, noEOF(err)
	}
	payload, err := fr.bytes(payloadLen)
	if err != nil {
		return Frame{}, noEOF(err)
	}
	return Frame{Key: string(key), Payload: payload}, nil
}

func (fr *FrameReader) length() (int, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return 0, err
	}
	n := int(binary.BigEndian.Uint32(fr.header[:]))
	if n > fr.max {
		return 0, FrameTooLargeErr{Size: n, Max: fr.max}
	}
	return n, nil
}

func (fr *FrameReader) bytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(fr.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
