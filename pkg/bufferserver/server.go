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
	"errors"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/shared/logging"
)

var (
	// ErrServerStarted is returned when starting a server twice.
	ErrServerStarted = errors.New("buffer server already started")
	// ErrServerNotRunning is reported by the health check of a server not accepting connections.
	ErrServerNotRunning = errors.New("buffer server not running")
)

// Server routes the data frames of publishers to the connections subscribed to their stream. It keeps no
// history: a frame is forwarded to the subscriptions present when it arrives and then forgotten.
type Server struct {
	addr      string
	opts      *options
	transport Transport
	loop      *EventLoop
	ownLoop   bool
	ln        net.Listener
	acceptWG  sync.WaitGroup
	started   atomic.Bool
	stopping  atomic.Bool
	pending   atomic.Int64
	log       *zap.SugaredLogger

	// owned by the event loop
	conns map[*conn]*connRoutes
	// routes maps a stream to the connections subscribed to it
	routes map[string]map[*conn]struct{}
}

// connRoutes are the subscriptions of one connection, stream to subscriber ids.
type connRoutes struct {
	subscriptions map[string]map[string]struct{}
	publications  map[string]map[string]struct{}
}

// NewServer returns a server listening on addr once started.
func NewServer(addr string, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Server{
		addr:   addr,
		opts:   o,
		log:    logging.NewLogger().With("bufferServer", addr),
		conns:  map[*conn]*connRoutes{},
		routes: map[string]map[*conn]struct{}{},
	}
}

// Start binds the listener and starts accepting connections. It returns the bound address, which tells the
// port picked for a ":0" address.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrServerStarted
	}
	t, err := GetTransport(s.opts.transport)
	if err != nil {
		s.started.Store(false)
		return nil, err
	}
	s.transport = t
	ln, err := t.Listen(ctx, s.addr)
	if err != nil {
		s.started.Store(false)
		return nil, err
	}
	return s.Serve(ctx, ln), nil
}

// Serve accepts connections from a listener bound by the caller, used to share a port with other servers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) net.Addr {
	s.started.Store(true)
	s.log = logging.FromContext(ctx).With("bufferServer", ln.Addr().String())
	if s.transport == nil {
		s.transport = tcpTransport{}
	}
	s.ln = ln
	s.loop = s.opts.loop
	if s.loop == nil {
		s.loop = NewEventLoop("server-" + ln.Addr().String())
		s.ownLoop = true
	}
	s.loop.Start(ctx)
	s.acceptWG.Add(1)
	go s.accept()
	s.log.Infow("Buffer server started", zap.String("addr", ln.Addr().String()), zap.String("transport", s.transport.Name()))
	return ln.Addr()
}

// Stop closes the listener and every connection. Frames queued for subscribers are flushed first.
func (s *Server) Stop() {
	if !s.started.Load() || !s.stopping.CompareAndSwap(false, true) {
		return
	}
	_ = s.ln.Close()
	s.acceptWG.Wait()

	var conns []*conn
	_ = s.loop.call(func() {
		for c := range s.conns {
			conns = append(conns, c)
			c.close(nil)
		}
	})
	for _, c := range conns {
		<-c.done()
	}
	if s.ownLoop {
		s.loop.Stop()
	}
	s.log.Info("Buffer server stopped")
}

// IsHealthy returns an error unless the server is accepting connections.
func (s *Server) IsHealthy(_ context.Context) error {
	if !s.started.Load() || s.stopping.Load() {
		return ErrServerNotRunning
	}
	return nil
}

// GetName returns the name of the server for pending reporting.
func (s *Server) GetName() string {
	return "buffer-server"
}

// Pending returns the number of bytes queued for subscribers and not yet written.
func (s *Server) Pending() int64 {
	return s.pending.Load()
}

func (s *Server) accept() {
	defer s.acceptWG.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !s.stopping.Load() && !errors.Is(err, net.ErrClosed) {
				s.log.Errorw("Failed to accept connection", zap.Error(err))
			}
			return
		}
		c := newConn(nc, s.loop, s, s.opts.maxFrameSize, &s.pending, s.log)
		if !s.loop.Submit(func() { s.connOpened(c) }) {
			c.close(ErrLoopStopped)
			return
		}
	}
}

func (s *Server) connOpened(c *conn) {
	s.conns[c] = &connRoutes{
		subscriptions: map[string]map[string]struct{}{},
		publications:  map[string]map[string]struct{}{},
	}
	activeConnections.WithLabelValues(s.addr, s.transport.Name()).Inc()
	c.log.Debug("Connection opened")
	c.open()
}

func (s *Server) frameReceived(c *conn, f Frame) {
	cr, ok := s.conns[c]
	if !ok {
		return
	}
	if !f.IsControl() {
		s.forward(f)
		return
	}
	req, err := DecodeRequest(f.Payload)
	if err != nil {
		badRequests.WithLabelValues(s.addr).Inc()
		c.log.Warnw("Discarding control frame", zap.Error(err))
		return
	}
	switch req.Type {
	case PublishRequest:
		add(cr.publications, req.Stream, req.ID)
		c.log.Infow("Publisher registered", zap.String("stream", req.Stream), zap.String("id", req.ID))
	case SubscribeRequest:
		if add(cr.subscriptions, req.Stream, req.ID) {
			activeSubscriptions.WithLabelValues(req.Stream).Inc()
		}
		subs, ok := s.routes[req.Stream]
		if !ok {
			subs = map[*conn]struct{}{}
			s.routes[req.Stream] = subs
		}
		subs[c] = struct{}{}
		c.log.Infow("Subscriber registered", zap.String("stream", req.Stream), zap.String("id", req.ID))
	case UnsubscribeRequest:
		if remove(cr.subscriptions, req.Stream, req.ID) {
			activeSubscriptions.WithLabelValues(req.Stream).Dec()
		}
		if _, ok := cr.subscriptions[req.Stream]; !ok {
			s.unroute(req.Stream, c)
		}
		c.log.Infow("Subscriber unregistered", zap.String("stream", req.Stream), zap.String("id", req.ID))
	}
}

// forward queues one copy of the frame for each connection subscribed to its stream.
func (s *Server) forward(f Frame) {
	subs := s.routes[f.Key]
	if len(subs) == 0 {
		framesDropped.WithLabelValues(f.Key).Inc()
		return
	}
	b := EncodeFrame(f.Key, f.Payload)
	for c := range subs {
		if err := c.send(b); err != nil {
			continue
		}
		framesForwarded.WithLabelValues(f.Key).Inc()
	}
}

func (s *Server) connClosed(c *conn, err error) {
	cr, ok := s.conns[c]
	if !ok {
		return
	}
	delete(s.conns, c)
	for stream, ids := range cr.subscriptions {
		activeSubscriptions.WithLabelValues(stream).Sub(float64(len(ids)))
		s.unroute(stream, c)
	}
	activeConnections.WithLabelValues(s.addr, s.transport.Name()).Dec()
	c.log.Debugw("Connection removed", zap.Error(err))
}

func (s *Server) unroute(stream string, c *conn) {
	subs, ok := s.routes[stream]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(s.routes, stream)
	}
}

// subscribers returns the number of connections subscribed to the stream. It must run on the loop.
func (s *Server) subscribers(stream string) int {
	return len(s.routes[stream])
}

func add(m map[string]map[string]struct{}, stream, id string) bool {
	ids, ok := m[stream]
	if !ok {
		ids = map[string]struct{}{}
		m[stream] = ids
	}
	if _, ok := ids[id]; ok {
		return false
	}
	ids[id] = struct{}{}
	return true
}

func remove(m map[string]map[string]struct{}, stream, id string) bool {
	ids, ok := m[stream]
	if !ok {
		return false
	}
	if _, ok := ids[id]; !ok {
		return false
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(m, stream)
	}
	return true
}
