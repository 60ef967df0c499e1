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

package tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type tuplePreamble struct {
	Type           Type
	WindowID       uint64
	BaseSeconds    uint32
	IntervalMillis int32
	PLen           int64
}

// preambleSize is the encoded size of tuplePreamble.
const preambleSize = 2 + 8 + 4 + 4 + 8

// MarshalBinary encodes Tuple to the binary format
func (t Tuple) MarshalBinary() (data []byte, err error) {
	var buf = bytes.NewBuffer(make([]byte, 0, preambleSize+len(t.Payload)))
	var preamble = tuplePreamble{
		Type:           t.Type,
		WindowID:       uint64(t.WindowID),
		BaseSeconds:    t.BaseSeconds,
		IntervalMillis: t.IntervalMillis,
		PLen:           int64(len(t.Payload)),
	}
	if err = binary.Write(buf, binary.LittleEndian, preamble); err != nil {
		return nil, err
	}
	if _, err = buf.Write(t.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes Tuple from the binary format
func (t *Tuple) UnmarshalBinary(data []byte) (err error) {
	var r = bytes.NewReader(data)
	var preamble = new(tuplePreamble)
	if err = binary.Read(r, binary.LittleEndian, preamble); err != nil {
		return err
	}
	if preamble.Type < Data || preamble.Type > ResetWindow {
		return fmt.Errorf("unknown tuple type %d", preamble.Type)
	}
	if preamble.PLen < 0 || preamble.PLen != int64(r.Len()) {
		return fmt.Errorf("expected payload size of %d but got %d", preamble.PLen, r.Len())
	}
	t.Type = preamble.Type
	t.WindowID = WindowID(preamble.WindowID)
	t.BaseSeconds = preamble.BaseSeconds
	t.IntervalMillis = preamble.IntervalMillis
	t.Payload = nil
	if preamble.PLen != 0 {
		t.Payload = make([]byte, preamble.PLen)
		if _, err = r.Read(t.Payload); err != nil {
			return err
		}
	}
	return nil
}
