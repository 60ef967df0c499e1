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
	"fmt"
	"net"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Client is a connection to a buffer server shared by the publishers and subscribers of an event loop.
type Client struct {
	key     string
	addr    string
	loop    *EventLoop
	conn    *conn
	pending atomic.Int64
	log     *zap.SugaredLogger
	// refs is guarded by the clients lock of the loop
	refs int

	// owned by the event loop
	subscribers map[string]map[*Subscriber]struct{}
}

// Connect returns the client connected to addr with the transport of the options, dialing it unless an open
// one is shared already. Every successful Connect must be paired with a Release.
func (l *EventLoop) Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	t, err := GetTransport(o.transport)
	if err != nil {
		return nil, err
	}
	key := t.Name() + "://" + addr

	if c := l.sharedClient(key); c != nil {
		return c, nil
	}

	// the loop clients are not locked while dialing, a concurrent Connect to the same server may win
	log := l.log.With("server", addr, "transport", t.Name())
	var nc net.Conn
	var lastErr error
	err = wait.ExponentialBackoffWithContext(ctx, o.dialBackoff, func(ctx context.Context) (bool, error) {
		nc, lastErr = t.Dial(ctx, addr)
		if lastErr != nil {
			log.Warnw("Failed to connect to buffer server, retrying", zap.Error(lastErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, fmt.Errorf("failed to connect to buffer server %s: %w", addr, err)
	}

	l.clientsLock.Lock()
	if c := l.openClient(key); c != nil {
		c.refs++
		l.clientsLock.Unlock()
		_ = nc.Close()
		return c, nil
	}
	c := &Client{
		key:         key,
		addr:        addr,
		loop:        l,
		log:         log,
		refs:        1,
		subscribers: map[string]map[*Subscriber]struct{}{},
	}
	c.conn = newConn(nc, l, c, o.maxFrameSize, &c.pending, log)
	l.clients[key] = c
	c.conn.open()
	l.clientsLock.Unlock()
	log.Infow("Connected to buffer server", zap.String("conn", c.conn.id))
	return c, nil
}

// sharedClient takes a reference on the open client of key, if any.
func (l *EventLoop) sharedClient(key string) *Client {
	l.clientsLock.Lock()
	defer l.clientsLock.Unlock()
	c := l.openClient(key)
	if c != nil {
		c.refs++
	}
	return c
}

// openClient must be called with the clients lock held.
func (l *EventLoop) openClient(key string) *Client {
	c, ok := l.clients[key]
	if !ok {
		return nil
	}
	select {
	case <-c.Done():
		return nil
	default:
		return c
	}
}

// Addr returns the address of the server.
func (c *Client) Addr() string {
	return c.addr
}

// State returns the state of the connection.
func (c *Client) State() ConnState {
	return c.conn.State()
}

// Done returns a channel closed when the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.conn.done()
}

// Err returns the error which closed the connection, nil while open or after a local close.
func (c *Client) Err() error {
	return c.conn.Err()
}

// Pending returns the number of bytes queued and not yet written to the server.
func (c *Client) Pending() int64 {
	return c.pending.Load()
}

// Send queues an encoded frame.
func (c *Client) Send(b []byte) error {
	return c.conn.send(b)
}

// Request sends a control request.
func (c *Client) Request(r Request) error {
	b, err := EncodeRequest(r)
	if err != nil {
		return err
	}
	return c.conn.send(b)
}

// Release gives up a reference obtained with Connect, the last one closes the connection after flushing the
// queued frames.
func (c *Client) Release() {
	c.loop.clientsLock.Lock()
	defer c.loop.clientsLock.Unlock()
	c.refs--
	if c.refs > 0 {
		return
	}
	if c.loop.clients[c.key] == c {
		delete(c.loop.clients, c.key)
	}
	c.conn.close(nil)
}

func (c *Client) addSubscriber(s *Subscriber) error {
	return c.loop.call(func() {
		subs, ok := c.subscribers[s.sc.StreamName]
		if !ok {
			subs = map[*Subscriber]struct{}{}
			c.subscribers[s.sc.StreamName] = subs
		}
		subs[s] = struct{}{}
	})
}

func (c *Client) removeSubscriber(s *Subscriber) {
	subs := c.subscribers[s.sc.StreamName]
	delete(subs, s)
	if len(subs) == 0 {
		delete(c.subscribers, s.sc.StreamName)
	}
}

func (c *Client) frameReceived(_ *conn, f Frame) {
	if f.IsControl() {
		c.log.Debugw("Ignoring control frame from server", zap.ByteString("payload", f.Payload))
		return
	}
	for s := range c.subscribers[f.Key] {
		if !s.deliver(f.Payload) {
			c.removeSubscriber(s)
			if err := c.Request(Request{Type: UnsubscribeRequest, Stream: s.sc.StreamName, ID: s.id}); err != nil {
				c.log.Warnw("Failed to unsubscribe stopped subscriber", zap.String("subscriber", s.id), zap.Error(err))
			}
		}
	}
}

func (c *Client) connClosed(_ *conn, err error) {
	for _, subs := range c.subscribers {
		for s := range subs {
			s.connectionLost(err)
		}
	}
	c.subscribers = map[string]map[*Subscriber]struct{}{}
	if err != nil {
		c.log.Errorw("Connection to buffer server lost", zap.Error(err))
	}
}
