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

import "github.com/numaproj/dataplane/pkg/tuple"

// binaryCodec uses the native binary form of the tuple.
type binaryCodec struct{}

func (binaryCodec) Name() string {
	return "binary"
}

func (binaryCodec) Encode(t *tuple.Tuple) ([]byte, error) {
	return t.MarshalBinary()
}

func (binaryCodec) Decode(data []byte) (*tuple.Tuple, error) {
	t := new(tuple.Tuple)
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return t, nil
}
