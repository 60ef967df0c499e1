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

	"github.com/goccy/go-json"

	"github.com/numaproj/dataplane/pkg/tuple"
)

var typesByName = map[string]tuple.Type{
	tuple.Data.String():        tuple.Data,
	tuple.BeginWindow.String(): tuple.BeginWindow,
	tuple.EndWindow.String():   tuple.EndWindow,
	tuple.ResetWindow.String(): tuple.ResetWindow,
}

type jsonTuple struct {
	Type           string `json:"type"`
	WindowID       uint64 `json:"windowId,omitempty"`
	BaseSeconds    uint32 `json:"baseSeconds,omitempty"`
	IntervalMillis int32  `json:"intervalMillis,omitempty"`
	// Payload is base64 encoded, the output never contains line terminators.
	Payload []byte `json:"payload,omitempty"`
}

// jsonCodec encodes tuples as single line JSON documents.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Encode(t *tuple.Tuple) ([]byte, error) {
	return json.Marshal(jsonTuple{
		Type:           t.Type.String(),
		WindowID:       uint64(t.WindowID),
		BaseSeconds:    t.BaseSeconds,
		IntervalMillis: t.IntervalMillis,
		Payload:        t.Payload,
	})
}

func (jsonCodec) Decode(data []byte) (*tuple.Tuple, error) {
	var jt jsonTuple
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, err
	}
	typ, ok := typesByName[jt.Type]
	if !ok {
		return nil, fmt.Errorf("unknown tuple type %q", jt.Type)
	}
	return &tuple.Tuple{
		Type:           typ,
		WindowID:       tuple.WindowID(jt.WindowID),
		BaseSeconds:    jt.BaseSeconds,
		IntervalMillis: jt.IntervalMillis,
		Payload:        jt.Payload,
	}, nil
}
