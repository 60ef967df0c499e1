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

package adapters

import (
	"github.com/numaproj/dataplane/pkg/codec"
	"github.com/numaproj/dataplane/pkg/tuple"
)

// rawCodec is the name of the payload mapping carrying the bare DATA payloads, the default for external systems.
const rawCodec = "raw"

// payloadCodec maps tuples to the messages of an external system. With the raw mapping only DATA tuples are
// exchanged and a message is the payload itself, any other name selects a registered codec carrying every tuple.
type payloadCodec struct {
	name  string
	codec codec.Codec
}

func newPayloadCodec(name string) (*payloadCodec, error) {
	if name == "" || name == rawCodec {
		return &payloadCodec{name: rawCodec}, nil
	}
	c, err := codec.New(name)
	if err != nil {
		return nil, err
	}
	return &payloadCodec{name: name, codec: c}, nil
}

func validateCodec(name string) error {
	_, err := newPayloadCodec(name)
	return err
}

// encode returns the message of the tuple, false when the tuple is not carried.
func (p *payloadCodec) encode(t *tuple.Tuple) ([]byte, bool, error) {
	if p.codec == nil {
		if t.Type != tuple.Data {
			return nil, false, nil
		}
		return t.Payload, true, nil
	}
	b, err := p.codec.Encode(t)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *payloadCodec) decode(b []byte) (*tuple.Tuple, error) {
	if p.codec == nil {
		return tuple.NewData(append([]byte(nil), b...)), nil
	}
	return p.codec.Decode(b)
}
