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

/*
Package reservoir implements the bounded ring buffer connecting exactly one producer to exactly one consumer of a
stream edge. The producer adds at the head, the consumer sweeps from the tail; both cursors only ever increase, and
the capacity is rounded up to a power of two so a slot is addressed by masking the cursor.

Sweeping never blocks: an empty reservoir is a normal condition for a polling consumer. A full reservoir is not, and
Add reports it as an OverflowErr instead of dropping or waiting.
*/
package reservoir

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// Sink accepts the data tuples of a reservoir one at a time.
type Sink interface {
	Put(t *tuple.Tuple)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(t *tuple.Tuple)

func (f SinkFunc) Put(t *tuple.Tuple) {
	f(t)
}

// Reservoir is a bounded single-producer/single-consumer tuple queue.
type Reservoir struct {
	name   string
	buffer []*tuple.Tuple
	mask   int64
	// head is only written by the producer, tail only by the consumer.
	head    atomic.Int64
	tail    atomic.Int64
	sink    Sink
	count   atomic.Int64
	options *options
}

// New returns a reservoir able to hold at least capacity tuples.
func New(name string, capacity int, opts ...Option) *Reservoir {
	o := &options{}
	for _, opt := range opts {
		_ = opt(o)
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Reservoir{
		name:    name,
		buffer:  make([]*tuple.Tuple, size),
		mask:    int64(size - 1),
		sink:    o.sink,
		options: o,
	}
}

// Name returns the reservoir name.
func (r *Reservoir) Name() string {
	return r.name
}

// Capacity returns the fixed capacity of the reservoir.
func (r *Reservoir) Capacity() int {
	return int(r.mask + 1)
}

// Size returns the number of buffered tuples.
func (r *Reservoir) Size() int {
	return int(r.head.Load() - r.tail.Load())
}

// SetSink sets the sink receiving data tuples during Sweep. It must be called by the consumer.
func (r *Reservoir) SetSink(s Sink) {
	r.sink = s
}

// Add inserts the tuple at the head. Only the producer may call it.
func (r *Reservoir) Add(t *tuple.Tuple) error {
	head := r.head.Load()
	if head-r.tail.Load() > r.mask {
		if !r.options.metricsDisabled {
			reservoirOverflows.WithLabelValues(r.name).Inc()
		}
		return OverflowErr{Name: r.name, Capacity: r.Capacity()}
	}
	r.buffer[head&r.mask] = t
	r.head.Store(head + 1)
	return nil
}

// take removes the tuple at the tail, the caller has checked the reservoir is not empty.
func (r *Reservoir) take(tail int64) *tuple.Tuple {
	idx := tail & r.mask
	t := r.buffer[idx]
	r.buffer[idx] = nil
	r.tail.Store(tail + 1)
	return t
}

// Sweep returns the next tuple, or false if the reservoir is empty. When a sink is set, data tuples are pushed to
// the sink instead and Sweep returns the first control tuple it encounters.
func (r *Reservoir) Sweep() (*tuple.Tuple, bool) {
	for {
		tail := r.tail.Load()
		if r.head.Load() <= tail {
			return nil, false
		}
		t := r.take(tail)
		if r.sink == nil || t.IsControl() {
			return t, true
		}
		r.sink.Put(t)
		r.count.Inc()
	}
}

// Peek returns the next tuple without removing it.
func (r *Reservoir) Peek() (*tuple.Tuple, bool) {
	tail := r.tail.Load()
	if r.head.Load() > tail {
		return r.buffer[tail&r.mask], true
	}
	return nil, false
}

// Get removes and returns the next tuple, an empty reservoir is an UnderflowErr.
func (r *Reservoir) Get() (*tuple.Tuple, error) {
	tail := r.tail.Load()
	if r.head.Load() > tail {
		return r.take(tail), nil
	}
	return nil, UnderflowErr{Name: r.name}
}

// DrainTo moves every tuple buffered at the time of the call to dst and returns the number moved.
func (r *Reservoir) DrainTo(dst *[]*tuple.Tuple) int {
	head := r.head.Load()
	tail := r.tail.Load()
	for i := tail; i < head; i++ {
		idx := i & r.mask
		*dst = append(*dst, r.buffer[idx])
		r.buffer[idx] = nil
	}
	r.tail.Store(head)
	return int(head - tail)
}

// Count returns the number of data tuples pushed to the sink, optionally resetting it.
func (r *Reservoir) Count(reset bool) int64 {
	if reset {
		return r.count.Swap(0)
	}
	return r.count.Load()
}

// Stringer
func (r *Reservoir) String() string {
	return fmt.Sprintf("(%s) capacity:%d head:%d tail:%d", r.name, r.Capacity(), r.head.Load(), r.tail.Load())
}
