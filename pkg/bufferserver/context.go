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

	"github.com/numaproj/dataplane/pkg/codec"
)

// ErrInvalidStreamContext is returned when setting up an endpoint with an incomplete stream context.
var ErrInvalidStreamContext = errors.New("invalid stream context")

// StreamContext describes the stream an endpoint publishes or subscribes to.
type StreamContext struct {
	StreamName string
	// SourceID and SinkID are the ids of the upstream and downstream endpoints.
	SourceID string
	SinkID   string
	// BufferServerAddress is the host:port of the buffer server.
	BufferServerAddress string
	// Transport is the name of the transport, tcp when empty.
	Transport string
	// Codec encodes the tuples, the default codec when nil.
	Codec codec.Codec
	// EventLoop drives the connection to the buffer server. It must be started.
	EventLoop *EventLoop
}

// Validate checks the stream context is complete.
func (sc StreamContext) Validate() error {
	if sc.StreamName == "" {
		return fmt.Errorf("%w: missing stream name", ErrInvalidStreamContext)
	}
	if sc.BufferServerAddress == "" {
		return fmt.Errorf("%w: missing buffer server address for stream %q", ErrInvalidStreamContext, sc.StreamName)
	}
	if sc.EventLoop == nil {
		return fmt.Errorf("%w: missing event loop for stream %q", ErrInvalidStreamContext, sc.StreamName)
	}
	if _, err := GetTransport(sc.Transport); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStreamContext, err)
	}
	return nil
}

func (sc StreamContext) codec() (codec.Codec, error) {
	if sc.Codec != nil {
		return sc.Codec, nil
	}
	return codec.New(codec.Default)
}
