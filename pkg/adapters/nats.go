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
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/tuple"
)

// NatsConfig configures the nats adapters.
type NatsConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	// Queue is the queue group of an input adapter, none by default.
	Queue string `mapstructure:"queue"`
	// Codec maps tuples to messages, raw by default.
	Codec string `mapstructure:"codec"`
	// Capacity is the reservoir capacity of an input adapter.
	Capacity int `mapstructure:"capacity"`
	// FlushTimeout bounds the flush of an output adapter on close.
	FlushTimeout time.Duration `mapstructure:"flushTimeout"`
}

func (c *NatsConfig) Validate() error {
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	return validateCodec(c.Codec)
}

func (c *NatsConfig) url() string {
	if c.URL == "" {
		return nats.DefaultURL
	}
	return c.URL
}

var natsKind = Kind{
	NewConfig: func() Config { return &NatsConfig{} },
	NewSink: func(_ context.Context, name string, config Config, env Env) (Sink, error) {
		return NewToNats(name, config.(*NatsConfig), env)
	},
	NewSource: func(_ context.Context, name string, config Config, env Env) (Source, error) {
		return NewFromNats(name, config.(*NatsConfig), env)
	},
}

func connectNats(name string, c *NatsConfig, log *zap.SugaredLogger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("Nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("Nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(c.url(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", c.url(), err)
	}
	return nc, nil
}

// ToNats publishes tuples to a nats subject.
type ToNats struct {
	name    string
	subject string
	codec   *payloadCodec
	timeout time.Duration
	nc      *nats.Conn
	log     *zap.SugaredLogger
}

// NewToNats connects the output adapter.
func NewToNats(name string, c *NatsConfig, env Env) (*ToNats, error) {
	pc, err := newPayloadCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	nc, err := connectNats(name, c, env.Logger)
	if err != nil {
		return nil, err
	}
	timeout := c.FlushTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ToNats{name: name, subject: c.Subject, codec: pc, timeout: timeout, nc: nc, log: env.Logger}, nil
}

// Put publishes the tuple.
func (t *ToNats) Put(tp *tuple.Tuple) error {
	b, ok, err := t.codec.encode(tp)
	if err != nil || !ok {
		return err
	}
	if err := t.nc.Publish(t.subject, b); err != nil {
		sinkWriteErrors.WithLabelValues(t.name).Inc()
		return err
	}
	sinkWriteCount.WithLabelValues(t.name).Inc()
	return nil
}

// Close flushes the pending messages and closes the connection.
func (t *ToNats) Close() error {
	err := t.nc.FlushTimeout(t.timeout)
	t.nc.Close()
	return err
}

// FromNats adds the messages of a nats subject to its reservoir. The nats client calls the message handler of a
// subscription serially, which makes the subscription the single producer of the reservoir.
type FromNats struct {
	name   string
	config *NatsConfig
	codec  *payloadCodec
	r      *reservoir.Reservoir
	nc     *nats.Conn
	sub    *nats.Subscription
	err    atomic.Error
	log    *zap.SugaredLogger
}

// NewFromNats connects the input adapter, it subscribes once started.
func NewFromNats(name string, c *NatsConfig, env Env) (*FromNats, error) {
	pc, err := newPayloadCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	nc, err := connectNats(name, c, env.Logger)
	if err != nil {
		return nil, err
	}
	return &FromNats{
		name:   name,
		config: c,
		codec:  pc,
		r:      reservoir.New(name, env.capacity(c.Capacity)),
		nc:     nc,
		log:    env.Logger,
	}, nil
}

func (f *FromNats) Reservoir() *reservoir.Reservoir {
	return f.r
}

// Start subscribes to the subject.
func (f *FromNats) Start(_ context.Context) error {
	var err error
	if f.config.Queue != "" {
		f.sub, err = f.nc.QueueSubscribe(f.config.Subject, f.config.Queue, f.handle)
	} else {
		f.sub, err = f.nc.Subscribe(f.config.Subject, f.handle)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", f.config.Subject, err)
	}
	// the subscription is in place once the server processed it
	return f.nc.Flush()
}

func (f *FromNats) handle(msg *nats.Msg) {
	if f.err.Load() != nil {
		return
	}
	tp, err := f.codec.decode(msg.Data)
	if err != nil {
		sourceReadErrors.WithLabelValues(f.name, "decode").Inc()
		f.log.Warnw("Discarding message which cannot be decoded", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := f.r.Add(tp); err != nil {
		sourceReadErrors.WithLabelValues(f.name, "overflow").Inc()
		f.err.Store(err)
		f.log.Errorw("Input adapter stopped", zap.Error(err))
		_ = msg.Sub.Unsubscribe()
		return
	}
	sourceReadCount.WithLabelValues(f.name).Inc()
}

func (f *FromNats) Err() error {
	return f.err.Load()
}

// Close unsubscribes and closes the connection.
func (f *FromNats) Close() error {
	var err error
	if f.sub != nil {
		err = f.sub.Unsubscribe()
		if errors.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
	}
	f.nc.Close()
	return err
}
