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

/*
Package codec serializes tuples to and from the byte fragments carried by the buffer server frames. Codecs are
looked up by name in an explicit registry, so the codec of a stream is validated when the stream is configured
rather than when the first tuple is encoded.
*/
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// Default is the name of the codec used when none is configured.
const Default = "binary"

// ErrUnknownCodec is returned when no codec is registered under the requested name.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec encodes a tuple to bytes and back. Implementations must be safe for concurrent use.
type Codec interface {
	// Name returns the name the codec is registered under.
	Name() string
	Encode(t *tuple.Tuple) ([]byte, error)
	Decode(data []byte) (*tuple.Tuple, error)
}

// Factory builds a codec.
type Factory func() Codec

var (
	registryLock sync.RWMutex
	registry     = map[string]Factory{}
)

func init() {
	Register("binary", func() Codec { return binaryCodec{} })
	Register("json", func() Codec { return jsonCodec{} })
	Register("proto", func() Codec { return protoCodec{} })
}

// Register makes a codec available under the given name, replacing any previous registration.
func Register(name string, factory Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = factory
}

// New returns the codec registered under name, the default codec for an empty name.
func New(name string) (Codec, error) {
	if name == "" {
		name = Default
	}
	registryLock.RLock()
	factory, ok := registry[name]
	registryLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, available codecs are %v", ErrUnknownCodec, name, Names())
	}
	return factory(), nil
}

// Names returns the registered codec names, sorted.
func Names() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
