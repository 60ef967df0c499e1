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
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	sharedtls "github.com/numaproj/dataplane/pkg/shared/tls"
)

// ErrUnknownTransport is returned when no transport is registered under the requested name.
var ErrUnknownTransport = errors.New("unknown transport")

// DefaultTransport is the transport used when none is configured.
const DefaultTransport = "tcp"

// quicProtocol is the ALPN protocol of buffer server QUIC connections.
const quicProtocol = "dataplane-bufferserver"

// quicCloseTimeout bounds how long a closing QUIC connection waits for its peer to read the end of the stream.
const quicCloseTimeout = 5 * time.Second

// Transport establishes the byte streams frames are exchanged on.
type Transport interface {
	Name() string
	Listen(ctx context.Context, addr string) (net.Listener, error)
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

var (
	transportsLock sync.RWMutex
	transports     = map[string]Transport{}
)

func init() {
	RegisterTransport(tcpTransport{})
	RegisterTransport(quicTransport{})
}

// RegisterTransport makes a transport available under its name.
func RegisterTransport(t Transport) {
	transportsLock.Lock()
	defer transportsLock.Unlock()
	transports[t.Name()] = t
}

// GetTransport returns the transport registered under name, the default one for an empty name.
func GetTransport(name string) (Transport, error) {
	if name == "" {
		name = DefaultTransport
	}
	transportsLock.RLock()
	defer transportsLock.RUnlock()
	t, ok := transports[name]
	if !ok {
		names := make([]string, 0, len(transports))
		for n := range transports {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w %q, available transports are %v", ErrUnknownTransport, name, names)
	}
	return t, nil
}

type tcpTransport struct{}

func (tcpTransport) Name() string {
	return "tcp"
}

func (tcpTransport) Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

func (tcpTransport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

// quicTransport carries every buffer server connection on the first stream of its own QUIC connection, secured
// with a self-signed certificate.
type quicTransport struct{}

func (quicTransport) Name() string {
	return "quic"
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	}
}

func (quicTransport) Listen(ctx context.Context, addr string) (net.Listener, error) {
	tlsConfig, err := sharedtls.ServerConfig(quicProtocol)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate QUIC listener: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &quicListener{
		ln:      ln,
		ctx:     ctx,
		cancel:  cancel,
		streams: make(chan net.Conn),
	}
	l.wg.Add(1)
	go l.acceptConns()
	return l, nil
}

func (quicTransport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	qc, err := quic.DialAddr(ctx, addr, sharedtls.ClientConfig(quicProtocol), quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "cannot open stream")
		return nil, err
	}
	return newStreamConn(stream, qc), nil
}

// streamConn is a QUIC stream used as a net.Conn, closing it closes its QUIC connection.
type streamConn struct {
	quic.Stream
	qc quic.Connection
	// eof is closed once the peer ended the stream
	eof     chan struct{}
	eofOnce sync.Once
}

func newStreamConn(stream quic.Stream, qc quic.Connection) *streamConn {
	return &streamConn{Stream: stream, qc: qc, eof: make(chan struct{})}
}

func (s *streamConn) Read(b []byte) (int, error) {
	n, err := s.Stream.Read(b)
	if errors.Is(err, io.EOF) {
		s.eofOnce.Do(func() { close(s.eof) })
	}
	return n, err
}

func (s *streamConn) LocalAddr() net.Addr {
	return s.qc.LocalAddr()
}

func (s *streamConn) RemoteAddr() net.Addr {
	return s.qc.RemoteAddr()
}

// Close ends the stream and closes the QUIC connection once the peer has read everything written, which it
// signals by closing the connection or ending its own side of the stream. Closing the connection earlier would
// drop the data not yet acknowledged.
func (s *streamConn) Close() error {
	_ = s.Stream.Close()
	timer := time.NewTimer(quicCloseTimeout)
	defer timer.Stop()
	select {
	case <-s.qc.Context().Done():
	case <-s.eof:
	case <-timer.C:
	}
	s.Stream.CancelRead(0)
	return s.qc.CloseWithError(0, "closed")
}

// quicListener accepts QUIC connections and hands out their first stream.
type quicListener struct {
	ln      *quic.Listener
	ctx     context.Context
	cancel  context.CancelFunc
	streams chan net.Conn
	wg      sync.WaitGroup
	once    sync.Once
}

func (l *quicListener) acceptConns() {
	defer l.wg.Done()
	for {
		qc, err := l.ln.Accept(l.ctx)
		if err != nil {
			return
		}
		l.wg.Add(1)
		go l.acceptStream(qc)
	}
}

func (l *quicListener) acceptStream(qc quic.Connection) {
	defer l.wg.Done()
	stream, err := qc.AcceptStream(l.ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "no stream")
		return
	}
	select {
	case l.streams <- newStreamConn(stream, qc):
	case <-l.ctx.Done():
		_ = qc.CloseWithError(0, "listener closed")
	}
}

func (l *quicListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.streams:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *quicListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ln.Close()
		l.wg.Wait()
	})
	return err
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}
