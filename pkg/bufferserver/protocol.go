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

	"github.com/goccy/go-json"
)

// ErrBadRequest is returned for control frames which cannot be decoded or are incomplete.
var ErrBadRequest = errors.New("bad control request")

// RequestType is the type of control request.
type RequestType string

const (
	// PublishRequest announces a publisher of a stream.
	PublishRequest RequestType = "publish"
	// SubscribeRequest adds the connection to the routes of a stream.
	SubscribeRequest RequestType = "subscribe"
	// UnsubscribeRequest removes a subscription added by SubscribeRequest.
	UnsubscribeRequest RequestType = "unsubscribe"
)

// Request is the payload of a control frame.
type Request struct {
	Type RequestType `json:"type"`
	// Stream is the routing key of the data frames the request applies to.
	Stream string `json:"stream"`
	// ID identifies the publisher or subscriber on its connection.
	ID string `json:"id"`
}

// Validate checks the request is complete.
func (r Request) Validate() error {
	switch r.Type {
	case PublishRequest, SubscribeRequest, UnsubscribeRequest:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadRequest, r.Type)
	}
	if r.Stream == "" {
		return fmt.Errorf("%w: %s without stream", ErrBadRequest, r.Type)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: %s of stream %q without id", ErrBadRequest, r.Type, r.Stream)
	}
	return nil
}

// EncodeRequest returns the control frame carrying the request.
func EncodeRequest(r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return EncodeFrame("", payload), nil
}

// DecodeRequest decodes the payload of a control frame.
func DecodeRequest(payload []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return r, r.Validate()
}
