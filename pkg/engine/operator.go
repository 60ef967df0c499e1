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

package engine

import (
	"context"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// Emitter sends data payloads to the output ports of a node.
type Emitter interface {
	Emit(port string, payload []byte) error
}

// Operator is the application logic run by a Node. All the methods are called from the node goroutine.
type Operator interface {
	// Setup is called once before the first tuple, out stays valid until Teardown.
	Setup(ctx context.Context, out Emitter) error
	BeginWindow(id tuple.WindowID)
	// Process receives the DATA tuples of an input port.
	Process(port string, t *tuple.Tuple) error
	EndWindow(id tuple.WindowID) error
	Teardown()
}

// PassThrough emits the payload of every DATA tuple to a single output port.
type PassThrough struct {
	Port string
	out  Emitter
}

func (p *PassThrough) Setup(_ context.Context, out Emitter) error {
	p.out = out
	return nil
}

func (p *PassThrough) BeginWindow(tuple.WindowID) {}

func (p *PassThrough) Process(_ string, t *tuple.Tuple) error {
	return p.out.Emit(p.Port, t.Payload)
}

func (p *PassThrough) EndWindow(tuple.WindowID) error {
	return nil
}

func (p *PassThrough) Teardown() {}
