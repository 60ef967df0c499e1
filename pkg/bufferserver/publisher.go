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

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/codec"
	"github.com/numaproj/dataplane/pkg/shared/logging"
	"github.com/numaproj/dataplane/pkg/tuple"
)

// ErrNotActive is returned when using an endpoint which is not active.
var ErrNotActive = errors.New("endpoint not active")

// Publisher sends the tuples of a stream to a buffer server. Process queues the encoded tuple on the shared
// connection and never waits for the network.
type Publisher struct {
	id     string
	sc     StreamContext
	codec  codec.Codec
	opts   []Option
	client atomic.Pointer[Client]
	log    *zap.SugaredLogger
}

// NewPublisher returns a publisher, a random id is used when id is empty.
func NewPublisher(id string, opts ...Option) *Publisher {
	if id == "" {
		id = uuid.NewString()
	}
	return &Publisher{
		id:   id,
		opts: opts,
		log:  logging.NewLogger().With("publisher", id),
	}
}

// ID returns the publisher id.
func (p *Publisher) ID() string {
	return p.id
}

// Setup validates and keeps the stream context.
func (p *Publisher) Setup(sc StreamContext) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	c, err := sc.codec()
	if err != nil {
		return err
	}
	p.sc = sc
	p.codec = c
	return nil
}

// Activate connects to the buffer server and announces the publisher.
func (p *Publisher) Activate(ctx context.Context) error {
	if p.sc.EventLoop == nil {
		return ErrInvalidStreamContext
	}
	if p.client.Load() != nil {
		return nil
	}
	p.log = logging.FromContext(ctx).With("publisher", p.id, "stream", p.sc.StreamName)
	opts := append([]Option{WithTransport(p.sc.Transport)}, p.opts...)
	c, err := p.sc.EventLoop.Connect(ctx, p.sc.BufferServerAddress, opts...)
	if err != nil {
		return err
	}
	if err := c.Request(Request{Type: PublishRequest, Stream: p.sc.StreamName, ID: p.id}); err != nil {
		c.Release()
		return err
	}
	p.client.Store(c)
	p.log.Infow("Publisher activated", zap.String("server", c.Addr()), zap.String("codec", p.codec.Name()))
	return nil
}

// Process encodes the tuple and queues it for the buffer server.
func (p *Publisher) Process(t *tuple.Tuple) error {
	c := p.client.Load()
	if c == nil {
		return ErrNotActive
	}
	payload, err := p.codec.Encode(t)
	if err != nil {
		return err
	}
	if err := c.Send(EncodeFrame(p.sc.StreamName, payload)); err != nil {
		if cerr := c.Err(); cerr != nil {
			return cerr
		}
		return err
	}
	framesPublished.WithLabelValues(p.sc.StreamName).Inc()
	return nil
}

// Deactivate releases the connection, tuples already queued are still flushed.
func (p *Publisher) Deactivate() {
	c := p.client.Swap(nil)
	if c == nil {
		return
	}
	c.Release()
	p.log.Info("Publisher deactivated")
}

// GetName returns the name of the publisher for pending reporting.
func (p *Publisher) GetName() string {
	return "publisher-" + p.id
}

// Pending returns the number of bytes queued on the connection of the publisher.
func (p *Publisher) Pending() int64 {
	if c := p.client.Load(); c != nil {
		return c.Pending()
	}
	return 0
}
