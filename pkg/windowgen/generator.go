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
Package windowgen implements the window generator, the timer driven producer of the control tuples demarcating
the windows of a stream.

On activation the generator emits RESET_WINDOW and BEGIN_WINDOW for sequence 0 to every acquired reservoir. Every
window width after the first window boundary it closes the current window and opens the next one. Once the
terminal sequence has been used the next tick starts a new reset epoch instead: the base seconds are advanced by
the time covered by the finished epoch, counted in ticks and never re-sampled from the wall clock.
*/
package windowgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/shared/logging"
	"github.com/numaproj/dataplane/pkg/tuple"
)

var (
	// ErrInvalidConfig is returned when the window configuration cannot produce windows.
	ErrInvalidConfig = errors.New("invalid window generator config")
	// ErrDuplicateReservoir is returned when a reservoir id is acquired twice.
	ErrDuplicateReservoir = errors.New("duplicate reservoir")
	// ErrAlreadyActive is returned when activating an active generator.
	ErrAlreadyActive = errors.New("window generator already active")
)

// Config is the window configuration of a generator, all values are epoch milliseconds except the width.
type Config struct {
	// FirstWindowMillis is the start of the first window, the first tick happens one width later.
	FirstWindowMillis int64 `json:"firstWindowMillis" mapstructure:"firstWindowMillis"`
	// ResetWindowMillis determines the base seconds of the first reset epoch.
	ResetWindowMillis int64 `json:"resetWindowMillis" mapstructure:"resetWindowMillis"`
	WindowWidthMillis int64 `json:"windowWidthMillis" mapstructure:"windowWidthMillis"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WindowWidthMillis <= 0 || c.WindowWidthMillis > math.MaxInt32 {
		return fmt.Errorf("%w: window width %dms out of range", ErrInvalidConfig, c.WindowWidthMillis)
	}
	if c.ResetWindowMillis < 0 || c.ResetWindowMillis/1000 > math.MaxUint32 {
		return fmt.Errorf("%w: reset window %dms out of range", ErrInvalidConfig, c.ResetWindowMillis)
	}
	if c.FirstWindowMillis < 0 {
		return fmt.Errorf("%w: first window %dms out of range", ErrInvalidConfig, c.FirstWindowMillis)
	}
	return nil
}

// Generator broadcasts window control tuples to the reservoirs acquired from it. It is the single producer of
// each of those reservoirs.
type Generator struct {
	name   string
	config Config
	opts   *options

	lock       sync.Mutex
	reservoirs []*reservoir.Reservoir
	ids        map[string]struct{}
	active     bool
	// generation is incremented on every activation, ticks armed by an earlier activation are ignored
	generation uint64
	timer      clockz.Timer
	stopCtx    func() bool
	log        *zap.SugaredLogger
	err        error
	// anchor is the time of the first tick, ticks the number of ticks since activation
	anchor time.Time
	ticks  int64
	// epochStartMillis is the start of the current reset epoch, derived from ticks only
	epochStartMillis int64
	baseSeconds      uint32
	sequence         uint32
	// maxSequence is the terminal sequence number of an epoch
	maxSequence uint32
}

// NewGenerator returns an inactive generator.
func NewGenerator(name string, config Config, opts ...Option) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Generator{
		name:        name,
		config:      config,
		opts:        o,
		ids:         map[string]struct{}{},
		log:         logging.NewLogger().With("generator", name),
		maxSequence: tuple.MaxWindowSequence,
	}, nil
}

// Name returns the generator name.
func (g *Generator) Name() string {
	return g.name
}

// AcquireReservoir creates a reservoir fed by the generator. A reservoir acquired while the generator is active
// receives the tuples of the following ticks only.
func (g *Generator) AcquireReservoir(id string, capacity int, opts ...reservoir.Option) (*reservoir.Reservoir, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, ok := g.ids[id]; ok {
		return nil, fmt.Errorf("%w %q on generator %q", ErrDuplicateReservoir, id, g.name)
	}
	r := reservoir.New(g.name+"/"+id, capacity, opts...)
	g.ids[id] = struct{}{}
	g.reservoirs = append(g.reservoirs, r)
	return r, nil
}

// Activate emits the first reset epoch and window and schedules the ticks. The generator deactivates itself
// when ctx is done.
func (g *Generator) Activate(ctx context.Context) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.active {
		return ErrAlreadyActive
	}
	g.log = logging.FromContext(ctx).With("generator", g.name)
	g.generation++
	g.err = nil
	g.ticks = 0
	g.epochStartMillis = g.config.ResetWindowMillis
	g.baseSeconds = uint32(g.epochStartMillis / 1000)
	g.sequence = 0

	id := tuple.NewWindowID(g.baseSeconds, 0)
	if err := g.broadcast(tuple.NewResetWindow(id, g.baseSeconds, int32(g.config.WindowWidthMillis))); err != nil {
		return err
	}
	resetWindowsGenerated.WithLabelValues(g.name).Inc()
	if err := g.broadcast(tuple.NewBeginWindow(id)); err != nil {
		return err
	}
	g.opened(id)

	width := g.width()
	g.anchor = time.UnixMilli(g.config.FirstWindowMillis).Add(width)
	if now := g.opts.clock.Now(); g.anchor.Before(now) {
		g.anchor = now
	}
	g.active = true
	g.schedule()
	g.stopCtx = context.AfterFunc(ctx, g.Deactivate)
	g.log.Infow("Window generator activated", zap.Stringer("window", id), zap.Time("firstTick", g.anchor), zap.Duration("width", width))
	return nil
}

// Deactivate stops the ticks. No tuple is produced after it returns, tuples already buffered remain available
// to the consumers.
func (g *Generator) Deactivate() {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.active {
		return
	}
	g.stop()
	g.log.Infow("Window generator deactivated", zap.Stringer("window", tuple.NewWindowID(g.baseSeconds, g.sequence)))
}

// Err returns the fatal error which stopped the generator, if any.
func (g *Generator) Err() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.err
}

// Active returns true while the generator is ticking.
func (g *Generator) Active() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.active
}

func (g *Generator) width() time.Duration {
	return time.Duration(g.config.WindowWidthMillis) * time.Millisecond
}

// stop must be called with the lock held.
func (g *Generator) stop() {
	g.active = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.stopCtx != nil {
		g.stopCtx()
		g.stopCtx = nil
	}
}

// schedule arms the timer of the next tick at a fixed rate from the anchor. It must be called with the lock held.
func (g *Generator) schedule() {
	next := g.anchor.Add(time.Duration(g.ticks) * g.width())
	delay := next.Sub(g.opts.clock.Now())
	if delay < 0 {
		delay = 0
	}
	generation := g.generation
	g.timer = g.opts.clock.AfterFunc(delay, func() { g.tick(generation) })
}

// tick runs a tick armed by the given activation. A timer which fired before Deactivate returned may still be
// waiting for the lock, its tick is dropped once the generator was deactivated or activated again.
func (g *Generator) tick(generation uint64) {
	err := func() error {
		g.lock.Lock()
		defer g.lock.Unlock()
		if !g.active || generation != g.generation {
			return nil
		}
		g.ticks++
		if err := g.advance(); err != nil {
			g.err = err
			g.stop()
			generatorErrors.WithLabelValues(g.name).Inc()
			g.log.Errorw("Window generator stopped", zap.Error(err))
			return err
		}
		g.schedule()
		return nil
	}()
	if err != nil && g.opts.onError != nil {
		g.opts.onError(err)
	}
}

// advance closes the current window and opens the next one, starting a new reset epoch after the terminal
// sequence.
func (g *Generator) advance() error {
	if err := g.broadcast(tuple.NewEndWindow(tuple.NewWindowID(g.baseSeconds, g.sequence))); err != nil {
		return err
	}
	if g.sequence >= g.maxSequence {
		g.epochStartMillis += (int64(g.sequence) + 1) * g.config.WindowWidthMillis
		g.baseSeconds = uint32(g.epochStartMillis / 1000)
		g.sequence = 0
		id := tuple.NewWindowID(g.baseSeconds, 0)
		if err := g.broadcast(tuple.NewResetWindow(id, g.baseSeconds, int32(g.config.WindowWidthMillis))); err != nil {
			return err
		}
		resetWindowsGenerated.WithLabelValues(g.name).Inc()
		g.log.Infow("New reset window", zap.Stringer("window", id))
	} else {
		g.sequence++
	}
	id := tuple.NewWindowID(g.baseSeconds, g.sequence)
	if err := g.broadcast(tuple.NewBeginWindow(id)); err != nil {
		return err
	}
	g.opened(id)
	return nil
}

func (g *Generator) opened(id tuple.WindowID) {
	windowsGenerated.WithLabelValues(g.name).Inc()
	currentWindow.WithLabelValues(g.name).Set(float64(id))
}

// broadcast adds the tuple to every reservoir, an overflow of any of them is returned as is.
func (g *Generator) broadcast(t *tuple.Tuple) error {
	for _, r := range g.reservoirs {
		if err := r.Add(t); err != nil {
			return err
		}
	}
	return nil
}
