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

package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// field numbers of the tuple message:
//
//	message Tuple {
//	  int32   type            = 1;
//	  fixed64 window_id       = 2;
//	  uint32  base_seconds    = 3;
//	  sint32  interval_millis = 4;
//	  bytes   payload         = 5;
//	}
const (
	fieldType           protowire.Number = 1
	fieldWindowID       protowire.Number = 2
	fieldBaseSeconds    protowire.Number = 3
	fieldIntervalMillis protowire.Number = 4
	fieldPayload        protowire.Number = 5
)

// protoCodec encodes tuples in the protobuf wire format so that non Go peers can decode them with a generated
// message.
type protoCodec struct{}

func (protoCodec) Name() string {
	return "proto"
}

func (protoCodec) Encode(t *tuple.Tuple) ([]byte, error) {
	b := make([]byte, 0, 24+len(t.Payload))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Type))
	if t.WindowID != 0 {
		b = protowire.AppendTag(b, fieldWindowID, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, uint64(t.WindowID))
	}
	if t.BaseSeconds != 0 {
		b = protowire.AppendTag(b, fieldBaseSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.BaseSeconds))
	}
	if t.IntervalMillis != 0 {
		b = protowire.AppendTag(b, fieldIntervalMillis, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(t.IntervalMillis)))
	}
	if len(t.Payload) != 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, t.Payload)
	}
	return b, nil
}

func (protoCodec) Decode(data []byte) (*tuple.Tuple, error) {
	t := new(tuple.Tuple)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if err := protowire.ParseError(n); err != nil {
			return nil, err
		}
		data = data[n:]
		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if err := protowire.ParseError(m); err != nil {
				return nil, err
			}
			t.Type = tuple.Type(v)
			n = m
		case num == fieldWindowID && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if err := protowire.ParseError(m); err != nil {
				return nil, err
			}
			t.WindowID = tuple.WindowID(v)
			n = m
		case num == fieldBaseSeconds && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if err := protowire.ParseError(m); err != nil {
				return nil, err
			}
			t.BaseSeconds = uint32(v)
			n = m
		case num == fieldIntervalMillis && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if err := protowire.ParseError(m); err != nil {
				return nil, err
			}
			t.IntervalMillis = int32(protowire.DecodeZigZag(v))
			n = m
		case num == fieldPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if err := protowire.ParseError(m); err != nil {
				return nil, err
			}
			t.Payload = append([]byte(nil), v...)
			n = m
		default:
			// unknown fields are skipped for forward compatibility
			n = protowire.ConsumeFieldValue(num, typ, data)
			if err := protowire.ParseError(n); err != nil {
				return nil, err
			}
		}
		data = data[n:]
	}
	if t.Type < tuple.Data || t.Type > tuple.ResetWindow {
		return nil, fmt.Errorf("unknown tuple type %d", t.Type)
	}
	return t, nil
}
