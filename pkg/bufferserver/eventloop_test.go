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
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoop_RunsEventsInOrder(t *testing.T) {
	verifyNoLeaks(t)
	l := NewEventLoop("order")
	l.Start(context.Background())
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, l.Submit(func() { got = append(got, i) }))
	}
	require.NoError(t, l.call(func() {}))
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestEventLoop_Stop(t *testing.T) {
	verifyNoLeaks(t)
	l := NewEventLoop("stop")
	l.Start(context.Background())
	l.Stop()
	l.Stop()
	assert.False(t, l.Submit(func() {}))
	assert.Equal(t, ErrLoopStopped, l.call(func() {}))

	// never started
	l = NewEventLoop("idle")
	l.Stop()
	assert.False(t, l.Submit(func() {}))
}

func TestEventLoop_ContextCancel(t *testing.T) {
	verifyNoLeaks(t)
	ctx, cancel := context.WithCancel(context.Background())
	l := NewEventLoop("ctx")
	l.Start(ctx)
	cancel()
	assert.Eventually(t, func() bool { return !l.Submit(func() {}) }, time.Second, time.Millisecond)
	l.Stop()
}

type recordingHandler struct {
	frames chan Frame
	closed chan error
}

func (h *recordingHandler) frameReceived(_ *conn, f Frame) {
	h.frames <- f
}

func (h *recordingHandler) connClosed(_ *conn, err error) {
	h.closed <- err
}

func TestConn_StateMachine(t *testing.T) {
	verifyNoLeaks(t)
	l := NewEventLoop("conn")
	l.Start(context.Background())
	defer l.Stop()

	local, remote := net.Pipe()
	h := &recordingHandler{frames: make(chan Frame, 1), closed: make(chan error, 1)}
	c := newConn(local, l, h, 0, nil, l.log)
	assert.Equal(t, Connecting, c.State())
	c.close(nil)
	assert.Equal(t, Closed, c.State())
	_ = remote.Close()

	local, remote = net.Pipe()
	defer remote.Close()
	c = newConn(local, l, h, 0, nil, l.log)
	c.open()
	assert.Equal(t, Open, c.State())

	go func() {
		_, _ = remote.Write(EncodeFrame("s", []byte("in")))
	}()
	select {
	case f := <-h.frames:
		assert.Equal(t, "in", string(f.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("frame not received")
	}

	require.NoError(t, c.send(EncodeFrame("s", []byte("out"))))
	f, err := NewFrameReader(remote, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, "out", string(f.Payload))
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, time.Millisecond)

	c.close(nil)
	assert.NotEqual(t, Open, c.State())
	assert.Equal(t, ErrConnClosed, c.send([]byte("late")))
	select {
	case err := <-h.closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close not reported")
	}
	assert.Equal(t, Closed, c.State())
	assert.Equal(t, "Closing", Closing.String())
}
