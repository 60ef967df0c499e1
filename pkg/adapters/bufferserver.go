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

package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/numaproj/dataplane/pkg/bufferserver"
	"github.com/numaproj/dataplane/pkg/codec"
	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/tuple"
)

// BufferServerConfig configures an adapter publishing to, or subscribing from, a stream of a buffer server.
type BufferServerConfig struct {
	Address   string `mapstructure:"address"`
	Stream    string `mapstructure:"stream"`
	Transport string `mapstructure:"transport"`
	// Codec is the wire codec of the stream, binary by default.
	Codec string `mapstructure:"codec"`
	// ID identifies the endpoint on the server, the adapter name by default.
	ID       string `mapstructure:"id"`
	Capacity int    `mapstructure:"capacity"`
}

func (c *BufferServerConfig) Validate() error {
	if c.Address == "" {
		return errors.New("missing address")
	}
	if c.Stream == "" {
		return errors.New("missing stream")
	}
	if _, err := bufferserver.GetTransport(c.Transport); err != nil {
		return err
	}
	_, err := codec.New(c.Codec)
	return err
}

func (c *BufferServerConfig) streamContext(name string, env Env) (bufferserver.StreamContext, string, error) {
	if env.EventLoop == nil {
		return bufferserver.StreamContext{}, "", fmt.Errorf("adapter %q requires an event loop", name)
	}
	cd, err := codec.New(c.Codec)
	if err != nil {
		return bufferserver.StreamContext{}, "", err
	}
	id := c.ID
	if id == "" {
		id = name
	}
	return bufferserver.StreamContext{
		StreamName:          c.Stream,
		BufferServerAddress: c.Address,
		Transport:           c.Transport,
		Codec:               cd,
		EventLoop:           env.EventLoop,
	}, id, nil
}

var bufferServerKind = Kind{
	NewConfig: func() Config { return &BufferServerConfig{} },
	NewSink: func(ctx context.Context, name string, config Config, env Env) (Sink, error) {
		c := config.(*BufferServerConfig)
		sc, id, err := c.streamContext(name, env)
		if err != nil {
			return nil, err
		}
		sc.SourceID = id
		p := bufferserver.NewPublisher(id)
		if err := p.Setup(sc); err != nil {
			return nil, err
		}
		if err := p.Activate(ctx); err != nil {
			return nil, err
		}
		return &ToBufferServer{name: name, p: p}, nil
	},
	NewSource: func(_ context.Context, name string, config Config, env Env) (Source, error) {
		c := config.(*BufferServerConfig)
		sc, id, err := c.streamContext(name, env)
		if err != nil {
			return nil, err
		}
		sc.SinkID = id
		s := bufferserver.NewSubscriber(id)
		if err := s.Setup(sc); err != nil {
			return nil, err
		}
		r, err := s.AcquireReservoir(name, env.capacity(c.Capacity))
		if err != nil {
			return nil, err
		}
		return &FromBufferServer{s: s, r: r}, nil
	},
}

// ToBufferServer publishes tuples, control tuples included, to a buffer server stream.
type ToBufferServer struct {
	name string
	p    *bufferserver.Publisher
}

func (t *ToBufferServer) Put(tp *tuple.Tuple) error {
	if err := t.p.Process(tp); err != nil {
		sinkWriteErrors.WithLabelValues(t.name).Inc()
		return err
	}
	sinkWriteCount.WithLabelValues(t.name).Inc()
	return nil
}

// Publisher exposes the underlying publisher, e.g. to report its pending bytes.
func (t *ToBufferServer) Publisher() *bufferserver.Publisher {
	return t.p
}

func (t *ToBufferServer) Close() error {
	t.p.Deactivate()
	return nil
}

// FromBufferServer subscribes to a buffer server stream.
type FromBufferServer struct {
	s *bufferserver.Subscriber
	r *reservoir.Reservoir
}

func (f *FromBufferServer) Reservoir() *reservoir.Reservoir {
	return f.r
}

func (f *FromBufferServer) Start(ctx context.Context) error {
	return f.s.Activate(ctx)
}

func (f *FromBufferServer) Err() error {
	return f.s.Err()
}

func (f *FromBufferServer) Close() error {
	f.s.Deactivate()
	return nil
}
