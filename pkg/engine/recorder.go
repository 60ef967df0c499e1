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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// PortCounts are the tuples seen on a port since the node started.
type PortCounts struct {
	Data    int64
	Control int64
}

// Range is an inclusive range of consecutive window ids.
type Range struct {
	Low  tuple.WindowID
	High tuple.WindowID
}

func (r Range) String() string {
	return fmt.Sprintf("[%s,%s]", r.Low, r.High)
}

// Snapshot is an immutable copy of the stats of a node taken when a window ends.
type Snapshot struct {
	Node    string
	Window  tuple.WindowID
	Time    time.Time
	Windows int64
	Inputs  map[string]PortCounts
	Outputs map[string]PortCounts
	// Ranges are the completed windows, oldest first.
	Ranges []Range
}

func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node:%s window:%s windows:%d", s.Node, s.Window, s.Windows)
	writePorts := func(kind string, ports map[string]PortCounts) {
		names := make([]string, 0, len(ports))
		for p := range ports {
			names = append(names, p)
		}
		sort.Strings(names)
		for _, p := range names {
			c := ports[p]
			fmt.Fprintf(&b, " %s:%s(data:%d control:%d)", kind, p, c.Data, c.Control)
		}
	}
	writePorts("in", s.Inputs)
	writePorts("out", s.Outputs)
	for _, r := range s.Ranges {
		b.WriteString(" ")
		b.WriteString(r.String())
	}
	return b.String()
}

// recorder accumulates the stats of a node. It is owned by the node goroutine, the flush path only ever sees
// snapshots.
type recorder struct {
	node      string
	inputs    map[string]*PortCounts
	outputs   map[string]*PortCounts
	ranges    []Range
	windows   int64
	maxRanges int
}

func newRecorder(node string, maxRanges int) *recorder {
	return &recorder{
		node:      node,
		inputs:    map[string]*PortCounts{},
		outputs:   map[string]*PortCounts{},
		maxRanges: maxRanges,
	}
}

func count(ports map[string]*PortCounts, port string, t *tuple.Tuple) {
	c, ok := ports[port]
	if !ok {
		c = &PortCounts{}
		ports[port] = c
	}
	if t.IsControl() {
		c.Control++
	} else {
		c.Data++
	}
}

func (r *recorder) input(port string, t *tuple.Tuple) {
	count(r.inputs, port, t)
}

func (r *recorder) output(port string, t *tuple.Tuple) {
	count(r.outputs, port, t)
}

// window records a completed window, consecutive ids extend the last range.
func (r *recorder) window(id tuple.WindowID) {
	r.windows++
	if n := len(r.ranges); n > 0 {
		last := &r.ranges[n-1]
		if id >= last.Low && id <= last.High {
			return
		}
		if uint64(id) == uint64(last.High)+1 {
			last.High = id
			return
		}
	}
	r.ranges = append(r.ranges, Range{Low: id, High: id})
	if len(r.ranges) > r.maxRanges {
		r.ranges = append(r.ranges[:0], r.ranges[len(r.ranges)-r.maxRanges:]...)
	}
}

func copyCounts(ports map[string]*PortCounts) map[string]PortCounts {
	m := make(map[string]PortCounts, len(ports))
	for p, c := range ports {
		m[p] = *c
	}
	return m
}

func (r *recorder) snapshot(id tuple.WindowID, now time.Time) *Snapshot {
	return &Snapshot{
		Node:    r.node,
		Window:  id,
		Time:    now,
		Windows: r.windows,
		Inputs:  copyCounts(r.inputs),
		Outputs: copyCounts(r.outputs),
		Ranges:  append([]Range(nil), r.ranges...),
	}
}
