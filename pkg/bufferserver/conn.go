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
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrConnClosed is returned when sending on a connection which is not open.
var ErrConnClosed = errors.New("connection closed")

// ConnState is the state of a buffer server connection.
type ConnState int32

const (
	// Connecting is the state of a connection whose I/O has not started.
	Connecting ConnState = iota
	// Open connections read and write frames.
	Open
	// Closing connections flush the queued frames and read nothing more.
	Closing
	// Closed connections released their socket.
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// connHandler receives the events of a connection on the event loop.
type connHandler interface {
	frameReceived(c *conn, f Frame)
	connClosed(c *conn, err error)
}

// conn is a framed connection driven by an event loop. Frames read are posted to the loop, frames sent are
// queued without bound and written by a dedicated goroutine, so a slow peer shows up as pending bytes instead of
// a blocked loop.
type conn struct {
	id       string
	nc       net.Conn
	loop     *EventLoop
	handler  connHandler
	maxFrame int
	log      *zap.SugaredLogger

	state atomic.Int32
	err   atomic.Error

	outLock   sync.Mutex
	outCond   *sync.Cond
	out       [][]byte
	outClosed bool
	// pending is the number of queued bytes of this connection, shared is the total of its owner
	pending *atomic.Int64
	shared  *atomic.Int64

	running atomic.Int32
	closed  chan struct{}
}

func newConn(nc net.Conn, loop *EventLoop, handler connHandler, maxFrame int, shared *atomic.Int64, log *zap.SugaredLogger) *conn {
	id := uuid.NewString()
	c := &conn{
		id:       id,
		nc:       nc,
		loop:     loop,
		handler:  handler,
		maxFrame: maxFrame,
		log:      log.With("conn", id, "remote", nc.RemoteAddr().String()),
		pending:  atomic.NewInt64(0),
		shared:   shared,
		closed:   make(chan struct{}),
	}
	if c.shared == nil {
		c.shared = atomic.NewInt64(0)
	}
	c.outCond = sync.NewCond(&c.outLock)
	return c
}

// State returns the current state of the connection.
func (c *conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Err returns the error which closed the connection, nil for a local close.
func (c *conn) Err() error {
	return c.err.Load()
}

// Pending returns the number of bytes queued and not yet written.
func (c *conn) Pending() int64 {
	return c.pending.Load()
}

// open starts the I/O of the connection.
func (c *conn) open() {
	if !c.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return
	}
	c.running.Store(2)
	go c.read()
	go c.write()
}

// send queues the encoded frame. It never blocks on I/O.
func (c *conn) send(b []byte) error {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	if c.outClosed {
		return ErrConnClosed
	}
	c.out = append(c.out, b)
	c.pending.Add(int64(len(b)))
	c.shared.Add(int64(len(b)))
	c.outCond.Signal()
	return nil
}

// close moves the connection to Closing. A nil cause lets the writer flush the queued frames before the socket is
// closed, any other cause closes the socket right away.
func (c *conn) close(cause error) {
	if cause != nil {
		c.err.CompareAndSwap(nil, cause)
	}
	if c.state.CompareAndSwap(int32(Connecting), int32(Closed)) {
		_ = c.nc.Close()
		close(c.closed)
		return
	}
	if !c.state.CompareAndSwap(int32(Open), int32(Closing)) && cause == nil {
		return
	}
	c.outLock.Lock()
	c.outClosed = true
	c.outCond.Broadcast()
	c.outLock.Unlock()
	if cause != nil {
		_ = c.nc.Close()
	}
}

// done returns a channel closed once the connection is Closed.
func (c *conn) done() <-chan struct{} {
	return c.closed
}

func (c *conn) read() {
	defer c.exited()
	fr := NewFrameReader(c.nc, c.maxFrame)
	for {
		f, err := fr.Next()
		if err != nil {
			if c.State() == Open {
				var tooLarge FrameTooLargeErr
				if errors.As(err, &tooLarge) {
					c.log.Errorw("Closing out of sync connection", zap.Error(err))
				}
				c.close(err)
			}
			return
		}
		if !c.loop.Submit(func() { c.handler.frameReceived(c, f) }) {
			c.close(ErrLoopStopped)
			return
		}
	}
}

func (c *conn) write() {
	defer c.exited()
	for {
		c.outLock.Lock()
		for len(c.out) == 0 && !c.outClosed {
			c.outCond.Wait()
		}
		bufs, closing := c.out, c.outClosed
		c.out = nil
		c.outLock.Unlock()

		if len(bufs) == 0 && closing {
			_ = c.nc.Close()
			return
		}
		var size int64
		for _, b := range bufs {
			size += int64(len(b))
		}
		nb := net.Buffers(bufs)
		_, err := nb.WriteTo(c.nc)
		c.pending.Sub(size)
		c.shared.Sub(size)
		if err != nil {
			c.close(err)
			c.discard()
			return
		}
	}
}

// discard drops the frames queued after a write failure.
func (c *conn) discard() {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	var size int64
	for _, b := range c.out {
		size += int64(len(b))
	}
	c.out = nil
	c.pending.Sub(size)
	c.shared.Sub(size)
}

// exited is called by the reader and the writer, the last one to exit completes the close.
func (c *conn) exited() {
	if c.running.Dec() != 0 {
		return
	}
	c.state.Store(int32(Closed))
	close(c.closed)
	err := c.Err()
	c.log.Debugw("Connection closed", zap.Error(err))
	c.loop.Submit(func() { c.handler.connClosed(c, err) })
}
