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

// Package engine runs operators. A Node polls its input reservoirs from a single goroutine, aligns the windows
// of its input ports, calls the operator and forwards the window demarcation to its outputs. Node stats are
// owned by the node goroutine and handed off as immutable snapshots to a Flusher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/tuple"
)

var (
	ErrUnknownPort   = errors.New("unknown output port")
	ErrDuplicatePort = errors.New("duplicate port")
	ErrNoInput       = errors.New("node without input")
)

// Sink receives the tuples of an output port.
type Sink interface {
	Put(t *tuple.Tuple) error
}

// Input is an input port fed by a reservoir the node consumes.
type Input struct {
	Port      string
	Reservoir *reservoir.Reservoir
}

// Output is an output port, several sinks may share a port.
type Output struct {
	Port string
	Sink Sink
}

type inputPort struct {
	Input
	// open is set between the BEGIN_WINDOW and END_WINDOW of the port
	open   bool
	window tuple.WindowID
	// ended is set once the port ended the current window of the node, it is not read until the other ports
	// end it too
	ended bool
	// late is set while the port is in a window the node already closed
	late bool
}

// Node runs an operator. It is not reusable once stopped.
type Node struct {
	name    string
	op      Operator
	inputs  []*inputPort
	outputs map[string][]Sink
	opts    *options
	log     *zap.SugaredLogger

	recorder *recorder
	handoff  *Handoff

	// window state, owned by the node goroutine
	open      bool
	window    tuple.WindowID
	closed    bool
	lastClose tuple.WindowID
	lastReset tuple.WindowID
	resets    int64

	cancel   context.CancelFunc
	stopOnce sync.Once
	err      atomic.Error
}

// NewNode returns a node running op.
func NewNode(name string, op Operator, inputs []Input, outputs []Output, opts ...Option) (*Node, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoInput, name)
	}
	n := &Node{
		name:     name,
		op:       op,
		outputs:  map[string][]Sink{},
		opts:     o,
		log:      o.logger.With("node", name),
		recorder: newRecorder(name, o.maxRanges),
		handoff:  NewHandoff(name),
	}
	ports := map[string]struct{}{}
	for _, in := range inputs {
		if _, ok := ports[in.Port]; ok {
			return nil, fmt.Errorf("%w %q on node %q", ErrDuplicatePort, in.Port, name)
		}
		ports[in.Port] = struct{}{}
		n.inputs = append(n.inputs, &inputPort{Input: in})
	}
	for _, out := range outputs {
		n.outputs[out.Port] = append(n.outputs[out.Port], out.Sink)
	}
	return n, nil
}

func (n *Node) Name() string {
	return n.name
}

// Handoff returns the slot the node publishes its stats snapshots to.
func (n *Node) Handoff() *Handoff {
	return n.handoff
}

// Err returns the error which stopped the node, if any.
func (n *Node) Err() error {
	return n.err.Load()
}

// Start runs the node until the context is done, Stop is called or an error occurs. The returned channel is
// closed once the node goroutine exited and the operator was torn down.
func (n *Node) Start(ctx context.Context) <-chan struct{} {
	ctx, n.cancel = context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		n.log.Info("Starting node...")
		if err := n.op.Setup(ctx, n); err != nil {
			n.fail(fmt.Errorf("failed to set up operator: %w", err))
			return
		}
		defer n.op.Teardown()
		idle := time.NewTimer(n.opts.idleSleep)
		defer idle.Stop()
		for {
			select {
			case <-ctx.Done():
				n.log.Info("Node stopped")
				return
			default:
			}
			processed, err := n.poll()
			if err != nil {
				n.fail(err)
				return
			}
			if processed > 0 {
				continue
			}
			idle.Reset(n.opts.idleSleep)
			select {
			case <-ctx.Done():
			case <-idle.C:
			}
		}
	}()
	return stopped
}

// Stop asks the node goroutine to exit, tuples left in the reservoirs are not processed.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
	})
}

func (n *Node) fail(err error) {
	n.err.Store(err)
	n.log.Errorw("Node failed", zap.Error(err))
}

// poll takes up to a batch of tuples from every port which is not waiting for the others.
func (n *Node) poll() (int, error) {
	processed := 0
	for _, in := range n.inputs {
		for i := 0; i < n.opts.batchSize && !in.ended; i++ {
			t, ok := in.Reservoir.Sweep()
			if !ok {
				break
			}
			processed++
			if err := n.handle(in, t); err != nil {
				return processed, err
			}
		}
	}
	return processed, nil
}

func (n *Node) handle(in *inputPort, t *tuple.Tuple) error {
	readTuplesCount.WithLabelValues(n.name, in.Port).Inc()
	n.recorder.input(in.Port, t)
	switch t.Type {
	case tuple.Data:
		return n.op.Process(in.Port, t)
	case tuple.ResetWindow:
		if n.resets > 0 && t.WindowID == n.lastReset {
			return nil
		}
		n.resets++
		n.lastReset = t.WindowID
		return n.forward(t)
	case tuple.BeginWindow:
		if in.open {
			n.stray(in, t)
			return nil
		}
		in.open = true
		in.window = t.WindowID
		if n.closed && t.WindowID <= n.lastClose {
			// window ids only increase downstream, the window is not opened twice
			in.late = true
			lateWindowCount.WithLabelValues(n.name, in.Port).Inc()
			n.log.Debugw("Port begins a closed window", zap.String("port", in.Port), zap.Stringer("begin", t.WindowID), zap.Stringer("lastClosed", n.lastClose))
			return nil
		}
		if n.open {
			if t.WindowID != n.window {
				n.log.Debugw("Port joins the open window", zap.String("port", in.Port), zap.Stringer("begin", t.WindowID), zap.Stringer("window", n.window))
			}
			return nil
		}
		n.open = true
		n.window = t.WindowID
		n.op.BeginWindow(t.WindowID)
		return n.forward(t)
	case tuple.EndWindow:
		if !in.open || in.window != t.WindowID {
			n.stray(in, t)
			return nil
		}
		in.open = false
		if in.late {
			in.late = false
			return nil
		}
		if !n.open {
			return nil
		}
		in.ended = true
		for _, p := range n.inputs {
			if p.open && !p.late {
				return nil
			}
		}
		return n.endWindow()
	default:
		return fmt.Errorf("unknown tuple type %d on port %q", t.Type, in.Port)
	}
}

func (n *Node) stray(in *inputPort, t *tuple.Tuple) {
	strayControlCount.WithLabelValues(n.name, in.Port).Inc()
	n.log.Debugw("Ignoring stray control tuple", zap.String("port", in.Port), zap.Stringer("tuple", t))
}

func (n *Node) endWindow() error {
	id := n.window
	n.open = false
	n.closed = true
	n.lastClose = id
	for _, p := range n.inputs {
		p.ended = false
	}
	if err := n.op.EndWindow(id); err != nil {
		return fmt.Errorf("operator failed to end window %s: %w", id, err)
	}
	if err := n.forward(tuple.NewEndWindow(id)); err != nil {
		return err
	}
	windowsCount.WithLabelValues(n.name).Inc()
	n.recorder.window(id)
	n.handoff.Offer(n.recorder.snapshot(id, time.Now()))
	return nil
}

// forward sends a control tuple to every output.
func (n *Node) forward(t *tuple.Tuple) error {
	var err error
	for port, sinks := range n.outputs {
		for _, s := range sinks {
			if perr := s.Put(t); perr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to forward %s to port %q: %w", t, port, perr))
			}
		}
		n.recorder.output(port, t)
		emittedTuplesCount.WithLabelValues(n.name, port).Inc()
	}
	return err
}

// Emit implements Emitter, it must only be called by the operator from the node goroutine.
func (n *Node) Emit(port string, payload []byte) error {
	sinks, ok := n.outputs[port]
	if !ok {
		return fmt.Errorf("%w %q on node %q", ErrUnknownPort, port, n.name)
	}
	t := tuple.NewData(payload)
	for _, s := range sinks {
		if err := s.Put(t); err != nil {
			return fmt.Errorf("failed to emit to port %q: %w", port, err)
		}
	}
	n.recorder.output(port, t)
	emittedTuplesCount.WithLabelValues(n.name, port).Inc()
	return nil
}
