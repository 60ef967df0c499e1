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
	"time"

	"go.uber.org/zap"
)

// SnapshotHandler exports a flushed snapshot.
type SnapshotHandler func(s *Snapshot)

// Flusher periodically drains the handoffs of nodes. Snapshots are logged and passed to the handlers.
type Flusher struct {
	interval time.Duration
	log      *zap.SugaredLogger
	lock     sync.Mutex
	handoffs []*Handoff
	handlers []SnapshotHandler
	// rates is only used by Flush, which is serialized by flushLock
	flushLock sync.Mutex
	rates     map[string]*inputRate
}

func NewFlusher(interval time.Duration, log *zap.SugaredLogger, handlers ...SnapshotHandler) *Flusher {
	return &Flusher{interval: interval, log: log, handlers: handlers, rates: map[string]*inputRate{}}
}

// Add registers the handoff of a node.
func (f *Flusher) Add(h *Handoff) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.handoffs = append(f.handoffs, h)
}

// Flush drains every handoff once and returns the number of snapshots flushed.
func (f *Flusher) Flush() int {
	f.lock.Lock()
	handoffs := append([]*Handoff(nil), f.handoffs...)
	f.lock.Unlock()
	f.flushLock.Lock()
	defer f.flushLock.Unlock()
	flushed := 0
	for _, h := range handoffs {
		s := h.Take()
		if s == nil {
			continue
		}
		flushed++
		flushedWindow.WithLabelValues(s.Node).Set(float64(s.Window.Sequence()))
		r, ok := f.rates[s.Node]
		if !ok {
			r = &inputRate{}
			f.rates[s.Node] = r
		}
		if rate, ok := r.add(s); ok {
			inputRateGauge.WithLabelValues(s.Node).Set(rate)
			f.log.Infow("Node stats", zap.Stringer("snapshot", s), zap.Float64("inputRate", rate))
		} else {
			f.log.Infow("Node stats", zap.Stringer("snapshot", s))
		}
		for _, handle := range f.handlers {
			handle(s)
		}
	}
	return flushed
}

// Run flushes every interval until the context is done, with a last flush on the way out.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.Flush()
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}
