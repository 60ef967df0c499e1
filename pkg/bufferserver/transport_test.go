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
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransport(t *testing.T) {
	for _, name := range []string{"tcp", "quic"} {
		tr, err := GetTransport(name)
		require.NoError(t, err)
		assert.Equal(t, name, tr.Name())
	}
	_, err := GetTransport("udp")
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestQUICTransport_CloseDeliversWrittenData(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tr, err := GetTransport("quic")
	require.NoError(t, err)
	ln, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	payload := bytes.Repeat([]byte("window"), 1<<18)
	served := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			served <- err
			return
		}
		hello := make([]byte, 1)
		if _, err := io.ReadFull(c, hello); err != nil {
			served <- err
			return
		}
		_, err = c.Write(payload)
		// the connection is closed right after the write
		_ = c.Close()
		served <- err
	}()

	c, err := tr.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	_, err = c.Write([]byte{1})
	require.NoError(t, err)
	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, len(payload), len(got))
	_ = c.Close()

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server side did not close")
	}
}
