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
	"go.uber.org/atomic"
)

// Handoff is a single slot passing snapshots from a node to the flush path. The latest snapshot wins, an
// unflushed one is replaced.
type Handoff struct {
	node    string
	slot    atomic.Pointer[Snapshot]
	dropped atomic.Int64
}

func NewHandoff(node string) *Handoff {
	return &Handoff{node: node}
}

// Offer publishes the snapshot, it must not be modified afterwards.
func (h *Handoff) Offer(s *Snapshot) {
	if old := h.slot.Swap(s); old != nil {
		h.dropped.Inc()
		droppedSnapshots.WithLabelValues(h.node).Inc()
	}
}

// Take empties the slot, nil when nothing was offered since the last take.
func (h *Handoff) Take() *Snapshot {
	return h.slot.Swap(nil)
}

// Dropped returns the number of snapshots replaced before being taken.
func (h *Handoff) Dropped() int64 {
	return h.dropped.Load()
}
