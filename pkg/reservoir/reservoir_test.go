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

package reservoir

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/dataplane/pkg/tuple"
)

func buildDataTuples(count int) []*tuple.Tuple {
	tuples := make([]*tuple.Tuple, count)
	for i := 0; i < count; i++ {
		tuples[i] = tuple.NewData([]byte(fmt.Sprintf("payload-%d", i)))
	}
	return tuples
}

func TestNew_Capacity(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 1000: 1024, 1024: 1024}
	for requested, expected := range tests {
		assert.Equal(t, expected, New("test", requested, WithoutMetrics()).Capacity(), "requested %d", requested)
	}
}

func TestReservoir_FIFO(t *testing.T) {
	r := New("fifo", 16)
	assert.NotEmpty(t, r.String())
	in := buildDataTuples(16)
	for _, tp := range in {
		assert.NoError(t, r.Add(tp))
	}
	assert.Equal(t, 16, r.Size())

	var out []*tuple.Tuple
	for {
		tp, ok := r.Sweep()
		if !ok {
			break
		}
		out = append(out, tp)
	}
	assert.Equal(t, in, out)
	assert.Equal(t, 0, r.Size())
}

func TestReservoir_Overflow(t *testing.T) {
	r := New("overflow", 3)
	for _, tp := range buildDataTuples(4) {
		assert.NoError(t, r.Add(tp))
	}
	err := r.Add(tuple.NewData([]byte("one too many")))
	var overflow OverflowErr
	assert.True(t, errors.As(err, &overflow))
	assert.Equal(t, OverflowErr{Name: "overflow", Capacity: 4}, overflow)
	assert.Equal(t, 4, r.Size())

	// the rejected tuple is not in the buffer and room frees up after a sweep
	first, ok := r.Sweep()
	assert.True(t, ok)
	assert.Equal(t, "payload-0", string(first.Payload))
	assert.NoError(t, r.Add(tuple.NewData([]byte("fits again"))))
}

func TestReservoir_Empty(t *testing.T) {
	r := New("empty", 8)
	tp, ok := r.Sweep()
	assert.False(t, ok)
	assert.Nil(t, tp)
	tp, ok = r.Peek()
	assert.False(t, ok)
	assert.Nil(t, tp)

	_, err := r.Get()
	assert.Equal(t, UnderflowErr{Name: "empty"}, err)
}

func TestReservoir_Peek(t *testing.T) {
	r := New("peek", 2)
	begin := tuple.NewBeginWindow(tuple.NewWindowID(1, 0))
	assert.NoError(t, r.Add(begin))
	for i := 0; i < 3; i++ {
		tp, ok := r.Peek()
		assert.True(t, ok)
		assert.Same(t, begin, tp)
	}
	assert.Equal(t, 1, r.Size())
	tp, err := r.Get()
	assert.NoError(t, err)
	assert.Same(t, begin, tp)
}

func TestReservoir_DrainTo(t *testing.T) {
	r := New("drain", 8)
	in := buildDataTuples(5)
	for _, tp := range in {
		assert.NoError(t, r.Add(tp))
	}
	// advance the cursors so the drained range wraps around the ring
	_, _ = r.Sweep()
	_, _ = r.Sweep()
	more := buildDataTuples(5)
	for _, tp := range more {
		assert.NoError(t, r.Add(tp))
	}

	var out []*tuple.Tuple
	assert.Equal(t, 8, r.DrainTo(&out))
	assert.Equal(t, append(in[2:], more...), out)
	assert.Equal(t, 0, r.Size())
	assert.Equal(t, 0, r.DrainTo(&out))
}

func TestReservoir_SweepWithSink(t *testing.T) {
	var received []string
	r := New("sink", 16, WithSink(SinkFunc(func(tp *tuple.Tuple) {
		received = append(received, string(tp.Payload))
	})))
	w := tuple.NewWindowID(1, 0)
	assert.NoError(t, r.Add(tuple.NewBeginWindow(w)))
	assert.NoError(t, r.Add(tuple.NewData([]byte("a"))))
	assert.NoError(t, r.Add(tuple.NewData([]byte("b"))))
	assert.NoError(t, r.Add(tuple.NewEndWindow(w)))
	assert.NoError(t, r.Add(tuple.NewData([]byte("c"))))

	tp, ok := r.Sweep()
	assert.True(t, ok)
	assert.Equal(t, tuple.BeginWindow, tp.Type)
	assert.Empty(t, received)

	tp, ok = r.Sweep()
	assert.True(t, ok)
	assert.Equal(t, tuple.EndWindow, tp.Type)
	assert.Equal(t, []string{"a", "b"}, received)

	tp, ok = r.Sweep()
	assert.False(t, ok)
	assert.Nil(t, tp)
	assert.Equal(t, []string{"a", "b", "c"}, received)
	assert.Equal(t, int64(3), r.Count(true))
	assert.Equal(t, int64(0), r.Count(false))
}

func TestReservoir_ConcurrentProducerConsumer(t *testing.T) {
	const total = 10000
	r := New("spsc", 64)
	in := buildDataTuples(total)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Size() == r.Capacity() {
				continue
			}
			if err := r.Add(in[i]); err != nil {
				t.Errorf("unexpected overflow: %v", err)
				return
			}
			i++
		}
	}()

	out := make([]*tuple.Tuple, 0, total)
	for len(out) < total {
		if tp, ok := r.Sweep(); ok {
			out = append(out, tp)
		}
	}
	wg.Wait()
	assert.Equal(t, in, out)
}
