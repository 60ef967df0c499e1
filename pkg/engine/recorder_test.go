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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/numaproj/dataplane/pkg/tuple"
)

func TestRecorder_Ranges(t *testing.T) {
	r := newRecorder("n", 3)
	w := func(base, seq uint32) tuple.WindowID { return tuple.NewWindowID(base, seq) }
	for _, id := range []tuple.WindowID{w(1, 0), w(1, 1), w(1, 2), w(1, 2), w(1, 4), w(1, 5), w(2, 0)} {
		r.window(id)
	}
	assert.Equal(t, []Range{
		{Low: w(1, 0), High: w(1, 2)},
		{Low: w(1, 4), High: w(1, 5)},
		{Low: w(2, 0), High: w(2, 0)},
	}, r.ranges)
	assert.Equal(t, int64(7), r.windows)

	// the oldest range goes first
	r.window(w(3, 0))
	assert.Len(t, r.ranges, 3)
	assert.Equal(t, w(1, 4), r.ranges[0].Low)
	assert.Equal(t, "["+w(3, 0).String()+","+w(3, 0).String()+"]", r.ranges[2].String())
}

func TestRecorder_SnapshotIsImmutable(t *testing.T) {
	r := newRecorder("n", 8)
	r.input("in", tuple.NewData(nil))
	r.input("in", tuple.NewBeginWindow(1))
	r.output("out", tuple.NewData(nil))
	r.window(1)
	now := time.Now()
	s := r.snapshot(1, now)

	r.input("in", tuple.NewData(nil))
	r.window(2)
	r.window(7)
	assert.Equal(t, PortCounts{Data: 1, Control: 1}, s.Inputs["in"])
	assert.Equal(t, PortCounts{Data: 1}, s.Outputs["out"])
	assert.Equal(t, []Range{{Low: 1, High: 1}}, s.Ranges)
	assert.Equal(t, int64(1), s.Windows)
	assert.Equal(t, now, s.Time)
	assert.Contains(t, s.String(), "in:in(data:1 control:1)")
}

func TestHandoff_LatestWins(t *testing.T) {
	h := NewHandoff("n")
	assert.Nil(t, h.Take())
	h.Offer(&Snapshot{Window: 1})
	h.Offer(&Snapshot{Window: 2})
	s := h.Take()
	require.NotNil(t, s)
	assert.Equal(t, tuple.WindowID(2), s.Window)
	assert.Nil(t, h.Take())
	assert.Equal(t, int64(1), h.Dropped())
}

func TestHandoff_Concurrent(t *testing.T) {
	h := NewHandoff("n")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			h.Offer(&Snapshot{Window: tuple.WindowID(i)})
		}
	}()
	var last tuple.WindowID
	taken := int64(0)
	for last != 1000 {
		if s := h.Take(); s != nil {
			// snapshots are never seen out of order
			assert.Greater(t, s.Window, last)
			last = s.Window
			taken++
		}
	}
	wg.Wait()
	assert.Equal(t, int64(1000), taken+h.Dropped())
}

func TestFlusher(t *testing.T) {
	var lock sync.Mutex
	var flushed []*Snapshot
	f := NewFlusher(time.Millisecond, zaptest.NewLogger(t).Sugar(), func(s *Snapshot) {
		lock.Lock()
		defer lock.Unlock()
		flushed = append(flushed, s)
	})
	a, b := NewHandoff("a"), NewHandoff("b")
	f.Add(a)
	f.Add(b)
	assert.Equal(t, 0, f.Flush())
	a.Offer(&Snapshot{Node: "a", Window: 1})
	a.Offer(&Snapshot{Node: "a", Window: 2})
	b.Offer(&Snapshot{Node: "b", Window: 1})
	assert.Equal(t, 2, f.Flush())
	require.Len(t, flushed, 2)
	assert.Equal(t, tuple.WindowID(2), flushed[0].Window)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()
	b.Offer(&Snapshot{Node: "b", Window: 5})
	assert.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(flushed) == 3
	}, 5*time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestInputRate(t *testing.T) {
	start := time.Now()
	snap := func(seconds int, data int64) *Snapshot {
		return &Snapshot{
			Time:   start.Add(time.Duration(seconds) * time.Second),
			Inputs: map[string]PortCounts{"a": {Data: data / 2}, "b": {Data: data - data/2, Control: 100}},
		}
	}
	r := &inputRate{}
	_, ok := r.add(snap(0, 0))
	assert.False(t, ok)
	rate, ok := r.add(snap(2, 200))
	assert.True(t, ok)
	assert.InDelta(t, 100.0, rate, 0.001)
	// same instant, no new sample
	rate, ok = r.add(snap(2, 200))
	assert.True(t, ok)
	assert.InDelta(t, 100.0, rate, 0.001)
	rate, _ = r.add(snap(3, 200))
	assert.InDelta(t, 100.0-rateDecay*100.0, rate, 0.001)
}
