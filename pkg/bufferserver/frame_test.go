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
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendFrame(t *testing.T) {
	b := EncodeFrame("ab", []byte{0x01, 0x02, 0x03})
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x02, 'a', 'b',
		0x00, 0x00, 0x00, 0x03, 0x01, 0x02, 0x03,
	}, b)

	b = EncodeFrame("", nil)
	assert.Equal(t, make([]byte, 8), b)
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeFrame("s1", []byte("hello")))
	buf.Write(EncodeFrame("", []byte(`{}`)))
	buf.Write(EncodeFrame("s2", nil))

	fr := NewFrameReader(&buf, 0)
	f, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "s1", f.Key)
	assert.Equal(t, []byte("hello"), f.Payload)
	assert.False(t, f.IsControl())

	f, err = fr.Next()
	require.NoError(t, err)
	assert.True(t, f.IsControl())
	assert.Equal(t, []byte(`{}`), f.Payload)

	f, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "s2", f.Key)
	assert.Empty(t, f.Payload)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameReader_Truncated(t *testing.T) {
	b := EncodeFrame("stream", []byte("payload"))
	for _, n := range []int{2, 6, 11, 15} {
		fr := NewFrameReader(bytes.NewReader(b[:n]), 0)
		_, err := fr.Next()
		assert.Equal(t, io.ErrUnexpectedEOF, err, "truncated at %d", n)
	}
}

func TestFrameReader_TooLarge(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(EncodeFrame("stream", make([]byte, 100))), 64)
	_, err := fr.Next()
	var tooLarge FrameTooLargeErr
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 100, tooLarge.Size)
	assert.Equal(t, 64, tooLarge.Max)

	fr = NewFrameReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 0)
	_, err = fr.Next()
	assert.True(t, errors.As(err, &tooLarge))
}

func TestRequest(t *testing.T) {
	b, err := EncodeRequest(Request{Type: SubscribeRequest, Stream: "s", ID: "sub"})
	require.NoError(t, err)
	f, err := NewFrameReader(bytes.NewReader(b), 0).Next()
	require.NoError(t, err)
	require.True(t, f.IsControl())
	assert.JSONEq(t, `{"type":"subscribe","stream":"s","id":"sub"}`, string(f.Payload))

	r, err := DecodeRequest(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, Request{Type: SubscribeRequest, Stream: "s", ID: "sub"}, r)

	for _, payload := range []string{`not json`, `{"type":"delete","stream":"s","id":"x"}`, `{"type":"publish","id":"x"}`, `{"type":"publish","stream":"s"}`} {
		_, err := DecodeRequest([]byte(payload))
		assert.True(t, errors.Is(err, ErrBadRequest), payload)
	}
	_, err = EncodeRequest(Request{Type: PublishRequest})
	assert.True(t, errors.Is(err, ErrBadRequest))
}
