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
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultDialBackoff is the retry policy of client connections.
var DefaultDialBackoff = wait.Backoff{
	Steps:    5,
	Duration: 100 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

type options struct {
	// transport is the name of the transport, tcp by default
	transport string
	// loop is the event loop driving the connections, a private one is created when nil
	loop *EventLoop
	// maxFrameSize is the largest key or payload accepted
	maxFrameSize int
	// dialBackoff is the retry policy when connecting to a server
	dialBackoff wait.Backoff
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		transport:    DefaultTransport,
		maxFrameSize: DefaultMaxFrameSize,
		dialBackoff:  DefaultDialBackoff,
	}
}

// WithTransport sets the transport by name.
func WithTransport(name string) Option {
	return func(o *options) {
		o.transport = name
	}
}

// WithEventLoop sets the event loop driving the connections.
func WithEventLoop(l *EventLoop) Option {
	return func(o *options) {
		o.loop = l
	}
}

// WithMaxFrameSize sets the largest key or payload accepted.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithDialBackoff sets the retry policy of client connections.
func WithDialBackoff(b wait.Backoff) Option {
	return func(o *options) {
		o.dialBackoff = b
	}
}
