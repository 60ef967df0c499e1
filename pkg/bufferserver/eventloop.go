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
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/shared/logging"
)

// ErrLoopStopped is returned when work is submitted to a stopped event loop.
var ErrLoopStopped = errors.New("event loop stopped")

const eventQueueSize = 1024

// EventLoop is the reactor of the buffer server connections of a process. A single goroutine runs every event,
// so the connection state machines and routing tables touched by events need no locking. Connection I/O is done
// by per connection reader and writer goroutines parked on the runtime network poller, which post what they read
// as events and drain what the loop queued for them.
//
// Events must never block: they may queue outbound frames but never wait for I/O.
type EventLoop struct {
	name   string
	events chan func()
	stopCh chan struct{}
	doneCh chan struct{}
	start  sync.Once
	stop   sync.Once
	log    *zap.SugaredLogger

	clientsLock sync.Mutex
	clients     map[string]*Client
}

// NewEventLoop returns an event loop, it runs events once started.
func NewEventLoop(name string) *EventLoop {
	return &EventLoop{
		name:    name,
		events:  make(chan func(), eventQueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     logging.NewLogger().With("eventLoop", name),
		clients: map[string]*Client{},
	}
}

// Name returns the event loop name.
func (l *EventLoop) Name() string {
	return l.name
}

// Start starts running events, the loop stops when ctx is done or Stop is called.
func (l *EventLoop) Start(ctx context.Context) {
	l.start.Do(func() {
		l.log = logging.FromContext(ctx).With("eventLoop", l.name)
		go l.run(ctx)
	})
}

func (l *EventLoop) run(ctx context.Context) {
	defer close(l.doneCh)
	l.log.Debug("Event loop started")
	for {
		select {
		case f := <-l.events:
			f()
		case <-ctx.Done():
			l.stop.Do(func() {
				close(l.stopCh)
			})
			l.log.Debug("Event loop stopped")
			return
		case <-l.stopCh:
			l.log.Debug("Event loop stopped")
			return
		}
	}
}

// Stop stops the loop and waits for the running event to complete. Pending events are discarded.
func (l *EventLoop) Stop() {
	l.stop.Do(func() {
		close(l.stopCh)
	})
	// a loop which never started is done right away
	l.start.Do(func() {
		close(l.doneCh)
	})
	<-l.doneCh
}

// Submit queues f to run on the loop. It returns false if the loop is stopped. It must not be called from an
// event.
func (l *EventLoop) Submit(f func()) bool {
	select {
	case <-l.stopCh:
		return false
	default:
	}
	select {
	case l.events <- f:
		return true
	case <-l.stopCh:
		return false
	}
}

// call runs f on the loop and waits for its completion.
func (l *EventLoop) call(f func()) error {
	done := make(chan struct{})
	if !l.Submit(func() {
		defer close(done)
		f()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-done:
		return nil
	case <-l.doneCh:
		// the loop stopped before running f
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}
