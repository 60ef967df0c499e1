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
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/codec"
	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/shared/logging"
)

// ErrDuplicateReservoir is returned when a reservoir id is acquired twice.
var ErrDuplicateReservoir = errors.New("duplicate reservoir")

// Subscriber receives the tuples of a stream from a buffer server and adds each of them to every reservoir
// acquired from it. It only receives what is published after its activation.
//
// Frames which cannot be decoded are discarded. A full reservoir or the loss of the connection stops the
// subscriber, the cause is reported by Err once Done is closed. There is no reconnection.
type Subscriber struct {
	id    string
	sc    StreamContext
	codec codec.Codec
	opts  []Option
	log   *zap.SugaredLogger

	lock   sync.Mutex
	client *Client

	rlock      sync.Mutex
	reservoirs []*reservoir.Reservoir
	ids        map[string]struct{}

	active   atomic.Bool
	err      atomic.Error
	done     chan struct{}
	doneOnce sync.Once
}

// NewSubscriber returns a subscriber, a random id is used when id is empty.
func NewSubscriber(id string, opts ...Option) *Subscriber {
	if id == "" {
		id = uuid.NewString()
	}
	return &Subscriber{
		id:   id,
		opts: opts,
		log:  logging.NewLogger().With("subscriber", id),
		ids:  map[string]struct{}{},
		done: make(chan struct{}),
	}
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string {
	return s.id
}

// Setup validates and keeps the stream context.
func (s *Subscriber) Setup(sc StreamContext) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	c, err := sc.codec()
	if err != nil {
		return err
	}
	s.sc = sc
	s.codec = c
	return nil
}

// AcquireReservoir creates a reservoir receiving the tuples of the stream, the subscriber is its producer.
func (s *Subscriber) AcquireReservoir(id string, capacity int, opts ...reservoir.Option) (*reservoir.Reservoir, error) {
	s.rlock.Lock()
	defer s.rlock.Unlock()
	if _, ok := s.ids[id]; ok {
		return nil, fmt.Errorf("%w %q on subscriber %q", ErrDuplicateReservoir, id, s.id)
	}
	r := reservoir.New(s.id+"/"+id, capacity, opts...)
	s.ids[id] = struct{}{}
	s.reservoirs = append(s.reservoirs, r)
	return r, nil
}

// Activate connects to the buffer server and subscribes to the stream.
func (s *Subscriber) Activate(ctx context.Context) error {
	if s.sc.EventLoop == nil {
		return ErrInvalidStreamContext
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.client != nil {
		return nil
	}
	s.log = logging.FromContext(ctx).With("subscriber", s.id, "stream", s.sc.StreamName)
	opts := append([]Option{WithTransport(s.sc.Transport)}, s.opts...)
	c, err := s.sc.EventLoop.Connect(ctx, s.sc.BufferServerAddress, opts...)
	if err != nil {
		return err
	}
	s.active.Store(true)
	if err := c.addSubscriber(s); err != nil {
		s.active.Store(false)
		c.Release()
		return err
	}
	if err := c.Request(Request{Type: SubscribeRequest, Stream: s.sc.StreamName, ID: s.id}); err != nil {
		s.active.Store(false)
		_ = c.loop.call(func() { c.removeSubscriber(s) })
		c.Release()
		return err
	}
	s.client = c
	s.log.Infow("Subscriber activated", zap.String("server", c.Addr()), zap.String("codec", s.codec.Name()))
	return nil
}

// Deactivate unsubscribes and releases the connection. Tuples already added to the reservoirs remain available.
func (s *Subscriber) Deactivate() {
	s.lock.Lock()
	c := s.client
	s.client = nil
	s.lock.Unlock()
	if c == nil {
		return
	}
	// a subscriber stopped by an overflow is still subscribed on the server
	s.active.Store(false)
	_ = c.Request(Request{Type: UnsubscribeRequest, Stream: s.sc.StreamName, ID: s.id})
	_ = c.loop.call(func() { c.removeSubscriber(s) })
	c.Release()
	s.finish(nil)
	s.log.Info("Subscriber deactivated")
}

// Done returns a channel closed when the subscriber stops.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns the error which stopped the subscriber, nil after a deactivation.
func (s *Subscriber) Err() error {
	return s.err.Load()
}

// deliver runs on the event loop for every data frame of the stream. It returns false once the subscriber
// stopped.
func (s *Subscriber) deliver(payload []byte) bool {
	if !s.active.Load() {
		return false
	}
	t, err := s.codec.Decode(payload)
	if err != nil {
		decodeErrors.WithLabelValues(s.sc.StreamName, s.codec.Name()).Inc()
		s.log.Warnw("Discarding frame which cannot be decoded", zap.Int("size", len(payload)), zap.Error(err))
		return true
	}
	framesReceived.WithLabelValues(s.sc.StreamName).Inc()
	s.rlock.Lock()
	defer s.rlock.Unlock()
	for _, r := range s.reservoirs {
		if err := r.Add(t); err != nil {
			s.active.Store(false)
			s.finish(err)
			return false
		}
	}
	return true
}

// connectionLost runs on the event loop when the shared connection closes.
func (s *Subscriber) connectionLost(err error) {
	if !s.active.Swap(false) {
		return
	}
	if err == nil {
		err = ErrConnClosed
	}
	s.finish(fmt.Errorf("connection to buffer server %s lost: %w", s.sc.BufferServerAddress, err))
}

func (s *Subscriber) finish(err error) {
	if err != nil {
		s.err.CompareAndSwap(nil, err)
		s.log.Errorw("Subscriber stopped", zap.Error(err))
	}
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
