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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataplane/pkg/tuple"
)

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, Default, c.Name())

	for _, name := range []string{"binary", "json", "proto"} {
		c, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}

	_, err = New("avro")
	assert.True(t, errors.Is(err, ErrUnknownCodec))
	assert.Contains(t, err.Error(), `"avro"`)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"binary", "json", "proto"}, Names())
}

func TestCodecs(t *testing.T) {
	tuples := []*tuple.Tuple{
		tuple.NewResetWindow(tuple.NewWindowID(0xcafebabe, 0), 0xcafebabe, 500),
		tuple.NewBeginWindow(tuple.NewWindowID(0xcafebabe, 1)),
		tuple.NewData([]byte("hello")),
		tuple.NewEndWindow(tuple.NewWindowID(0xcafebabe, tuple.MaxWindowSequence)),
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			c, err := New(name)
			require.NoError(t, err)
			for _, in := range tuples {
				data, err := c.Encode(in)
				require.NoError(t, err)
				out, err := c.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, in.Type, out.Type)
				assert.Equal(t, in.WindowID, out.WindowID)
				assert.Equal(t, in.BaseSeconds, out.BaseSeconds)
				assert.Equal(t, in.IntervalMillis, out.IntervalMillis)
				assert.Equal(t, string(in.Payload), string(out.Payload))
			}
		})
	}
}

func TestJSONSingleLine(t *testing.T) {
	c, _ := New("json")
	data, err := c.Encode(tuple.NewData([]byte("line one\nline two\r\n")))
	require.NoError(t, err)
	assert.False(t, bytes.ContainsAny(data, "\r\n"))
	assert.Contains(t, string(data), `"type":"DATA"`)
}

func TestDecodeGarbage(t *testing.T) {
	for _, name := range Names() {
		c, _ := New(name)
		_, err := c.Decode([]byte{0xff, 0xff, 0xff})
		assert.Error(t, err, name)
	}
	c, _ := New("json")
	_, err := c.Decode([]byte(`{"type":"SOMETHING"}`))
	assert.Error(t, err)
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	c, _ := New("proto")
	data, err := c.Encode(tuple.NewBeginWindow(7))
	require.NoError(t, err)
	// field 15, varint 1
	data = append(data, 0x78, 0x01)
	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tuple.BeginWindow, out.Type)
	assert.Equal(t, tuple.WindowID(7), out.WindowID)
}

func TestRegister(t *testing.T) {
	Register("test-only", func() Codec { return binaryCodec{} })
	defer func() {
		registryLock.Lock()
		delete(registry, "test-only")
		registryLock.Unlock()
	}()
	_, err := New("test-only")
	assert.NoError(t, err)
}
