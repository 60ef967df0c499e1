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

package windowgen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/goleak"

	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/tuple"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(r *reservoir.Reservoir) []*tuple.Tuple {
	var out []*tuple.Tuple
	r.DrainTo(&out)
	return out
}

func countTypes(tuples []*tuple.Tuple) map[tuple.Type]int {
	counts := map[tuple.Type]int{}
	for _, t := range tuples {
		counts[t.Type]++
	}
	return counts
}

// step advances the fake clock and waits for the tick it triggers to complete.
func step(clock *clockz.FakeClock, d time.Duration) {
	clock.Advance(d)
	clock.BlockUntilReady()
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		valid  bool
	}{
		{"valid", Config{FirstWindowMillis: 1000, ResetWindowMillis: 1000, WindowWidthMillis: 500}, true},
		{"unset width", Config{FirstWindowMillis: 1000, ResetWindowMillis: 1000}, false},
		{"negative width", Config{WindowWidthMillis: -1}, false},
		{"width too large", Config{WindowWidthMillis: 1 << 40}, false},
		{"negative reset", Config{ResetWindowMillis: -1, WindowWidthMillis: 1}, false},
		{"negative first", Config{FirstWindowMillis: -1, WindowWidthMillis: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator("gen", tt.config)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			}
		})
	}
}

func TestGenerator_FirstActivation(t *testing.T) {
	now := time.UnixMilli(0xcafebabe * 1000)
	clock := clockz.NewFakeClockAt(now)
	const width = 0x1234abcd
	g, err := NewGenerator("gen", Config{
		FirstWindowMillis: now.UnixMilli(),
		ResetWindowMillis: now.UnixMilli(),
		WindowWidthMillis: width,
	}, WithClock(clock))
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 1024)
	require.NoError(t, err)

	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()
	step(clock, time.Millisecond)

	rwt, ok := r.Sweep()
	require.True(t, ok)
	assert.Equal(t, tuple.ResetWindow, rwt.Type)
	assert.Equal(t, tuple.WindowID(0xcafebabe00000000), rwt.WindowID)
	assert.Equal(t, now.UnixMilli(), int64(rwt.BaseSeconds)*1000)
	assert.Equal(t, int32(width), rwt.IntervalMillis)

	bwt, ok := r.Sweep()
	require.True(t, ok)
	assert.Equal(t, tuple.BeginWindow, bwt.Type)
	assert.Equal(t, tuple.WindowID(0xcafebabe00000000), bwt.WindowID)

	_, ok = r.Sweep()
	assert.False(t, ok)

	// the first tick happens one width after the first window
	step(clock, width*time.Millisecond-2*time.Millisecond)
	assert.Equal(t, 0, r.Size())
	step(clock, time.Millisecond)
	tuples := drain(r)
	require.Len(t, tuples, 2)
	assert.Equal(t, tuple.NewEndWindow(0xcafebabe00000000), tuples[0])
	assert.Equal(t, tuple.NewBeginWindow(0xcafebabe00000001), tuples[1])
}

func TestGenerator_SecondResetWindow(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(0))
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 1000}, WithClock(clock))
	require.NoError(t, err)
	g.maxSequence = 3
	r, err := g.AcquireReservoir("out", 64)
	require.NoError(t, err)

	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()
	for i := 0; i < int(g.maxSequence)+1; i++ {
		step(clock, time.Second)
	}

	tuples := drain(r)
	counts := countTypes(tuples)
	assert.Equal(t, int(g.maxSequence)+2, counts[tuple.BeginWindow])
	assert.Equal(t, int(g.maxSequence)+1, counts[tuple.EndWindow])
	assert.Equal(t, 2, counts[tuple.ResetWindow])

	// the last tick closes the terminal window and starts the epoch covering the four elapsed seconds
	last := tuples[len(tuples)-3:]
	assert.Equal(t, tuple.NewEndWindow(tuple.NewWindowID(0, 3)), last[0])
	assert.Equal(t, tuple.NewResetWindow(tuple.NewWindowID(4, 0), 4, 1000), last[1])
	assert.Equal(t, tuple.NewBeginWindow(tuple.NewWindowID(4, 0)), last[2])
}

func TestGenerator_ControlTupleOrder(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(10_000))
	g, err := NewGenerator("gen", Config{FirstWindowMillis: 10_000, ResetWindowMillis: 10_000, WindowWidthMillis: 1000}, WithClock(clock))
	require.NoError(t, err)
	g.maxSequence = 5
	r, err := g.AcquireReservoir("out", 256)
	require.NoError(t, err)
	require.NoError(t, g.Activate(context.Background()))
	for i := 0; i < 20; i++ {
		step(clock, time.Second)
	}
	g.Deactivate()

	tuples := drain(r)
	require.Equal(t, tuple.ResetWindow, tuples[0].Type)
	var open tuple.WindowID
	var isOpen bool
	var last tuple.WindowID
	for i, tp := range tuples {
		switch tp.Type {
		case tuple.ResetWindow:
			assert.False(t, isOpen, "reset inside window at %d", i)
			assert.Equal(t, tuple.BeginWindow, tuples[i+1].Type)
			assert.Equal(t, tp.WindowID, tuples[i+1].WindowID)
		case tuple.BeginWindow:
			assert.False(t, isOpen)
			if i > 1 {
				assert.Greater(t, uint64(tp.WindowID), uint64(last))
			}
			open, isOpen, last = tp.WindowID, true, tp.WindowID
		case tuple.EndWindow:
			assert.True(t, isOpen)
			assert.Equal(t, open, tp.WindowID)
			isOpen = false
		}
	}
	assert.True(t, isOpen)
}

func TestGenerator_Counts(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(5_000))
	g, err := NewGenerator("gen", Config{FirstWindowMillis: 5_000, ResetWindowMillis: 5_000, WindowWidthMillis: 10}, WithClock(clock))
	require.NoError(t, err)
	r1, err := g.AcquireReservoir("r1", 256)
	require.NoError(t, err)
	r2, err := g.AcquireReservoir("r2", 256)
	require.NoError(t, err)
	require.NoError(t, g.Activate(context.Background()))

	var begins, ends int
	for i := 0; i < 50; i++ {
		step(clock, 10*time.Millisecond)
		counts := countTypes(drain(r1))
		begins += counts[tuple.BeginWindow]
		ends += counts[tuple.EndWindow]
		assert.Equal(t, begins, ends+1)
	}
	g.Deactivate()
	step(clock, time.Second)
	assert.Equal(t, 0, r1.Size())
	assert.Equal(t, 51, begins)

	// every reservoir receives the same tuples
	counts := countTypes(drain(r2))
	assert.Equal(t, 51, counts[tuple.BeginWindow])
	assert.Equal(t, 50, counts[tuple.EndWindow])
	assert.Equal(t, 1, counts[tuple.ResetWindow])
}

func TestGenerator_RealClock(t *testing.T) {
	now := time.Now().UnixMilli()
	g, err := NewGenerator("gen", Config{FirstWindowMillis: now, ResetWindowMillis: now, WindowWidthMillis: 5})
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 4096)
	require.NoError(t, err)
	require.NoError(t, g.Activate(context.Background()))
	assert.Eventually(t, func() bool { return r.Size() >= 10 }, 5*time.Second, 5*time.Millisecond)
	g.Deactivate()

	counts := countTypes(drain(r))
	assert.Equal(t, counts[tuple.BeginWindow], counts[tuple.EndWindow]+1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, r.Size())
}

func TestGenerator_FirstWindowInThePast(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(100_000))
	g, err := NewGenerator("gen", Config{FirstWindowMillis: 0, ResetWindowMillis: 0, WindowWidthMillis: 1000}, WithClock(clock))
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 64)
	require.NoError(t, err)
	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()

	// the overdue tick fires right away, the following ones one width apart
	step(clock, 0)
	assert.Eventually(t, func() bool { return r.Size() == 4 }, time.Second, time.Millisecond)
	step(clock, 999*time.Millisecond)
	assert.Equal(t, 4, r.Size())
	step(clock, time.Millisecond)
	assert.Equal(t, 6, r.Size())
}

func TestGenerator_AcquireReservoir(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(0))
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 10}, WithClock(clock))
	require.NoError(t, err)
	_, err = g.AcquireReservoir("out", 8)
	require.NoError(t, err)
	_, err = g.AcquireReservoir("out", 8)
	assert.True(t, errors.Is(err, ErrDuplicateReservoir))

	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()
	late, err := g.AcquireReservoir("late", 8)
	require.NoError(t, err)
	assert.Equal(t, 0, late.Size())
	step(clock, 10*time.Millisecond)
	tuples := drain(late)
	require.Len(t, tuples, 2)
	assert.Equal(t, tuple.EndWindow, tuples[0].Type)
	assert.Equal(t, tuple.BeginWindow, tuples[1].Type)
}

func TestGenerator_Reactivate(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(0))
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 10}, WithClock(clock))
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 64)
	require.NoError(t, err)

	require.NoError(t, g.Activate(context.Background()))
	assert.Equal(t, ErrAlreadyActive, g.Activate(context.Background()))
	g.Deactivate()
	g.Deactivate()
	assert.False(t, g.Active())

	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()
	counts := countTypes(drain(r))
	assert.Equal(t, 2, counts[tuple.ResetWindow])
	assert.Equal(t, 2, counts[tuple.BeginWindow])
}

// armingClock records the tick callbacks instead of running them, its timers never fire.
type armingClock struct {
	*clockz.FakeClock
	lock  sync.Mutex
	ticks []func()
}

func (c *armingClock) AfterFunc(d time.Duration, f func()) clockz.Timer {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ticks = append(c.ticks, f)
	return c.FakeClock.AfterFunc(d, func() {})
}

func (c *armingClock) armed() []func() {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]func(){}, c.ticks...)
}

func TestGenerator_TickOfPreviousActivationIsDropped(t *testing.T) {
	clock := &armingClock{FakeClock: clockz.NewFakeClockAt(time.UnixMilli(0))}
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 10}, WithClock(clock))
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 64)
	require.NoError(t, err)

	require.NoError(t, g.Activate(context.Background()))
	g.Deactivate()
	require.NoError(t, g.Activate(context.Background()))
	defer g.Deactivate()
	drain(r)
	armed := clock.armed()
	require.Len(t, armed, 2)

	// the timer of the first activation fired while it was being deactivated
	armed[0]()
	assert.Empty(t, drain(r))
	assert.Len(t, clock.armed(), 2)

	armed[1]()
	counts := countTypes(drain(r))
	assert.Equal(t, 1, counts[tuple.EndWindow])
	assert.Equal(t, 1, counts[tuple.BeginWindow])
	assert.Len(t, clock.armed(), 3)
}

func TestGenerator_OverflowIsFatal(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(0))
	errCh := make(chan error, 1)
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 10}, WithClock(clock), WithOnError(func(err error) {
		errCh <- err
	}))
	require.NoError(t, err)
	r, err := g.AcquireReservoir("out", 2)
	require.NoError(t, err)
	require.NoError(t, g.Activate(context.Background()))

	step(clock, 10*time.Millisecond)
	var overflow reservoir.OverflowErr
	require.True(t, errors.As(g.Err(), &overflow))
	assert.Equal(t, "gen/out", overflow.Name)
	assert.False(t, g.Active())
	select {
	case err := <-errCh:
		assert.Equal(t, g.Err(), err)
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}

	// the buffered tuples are still there, nothing was retried
	step(clock, time.Second)
	assert.Equal(t, 2, r.Size())
}

func TestGenerator_ContextCancel(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(0))
	g, err := NewGenerator("gen", Config{WindowWidthMillis: 10}, WithClock(clock))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.Activate(ctx))
	cancel()
	assert.Eventually(t, func() bool { return !g.Active() }, time.Second, time.Millisecond)
}
