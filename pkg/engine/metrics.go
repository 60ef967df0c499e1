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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/dataplane/pkg/metrics"
)

// readTuplesCount is used to indicate the number of tuples read from the input ports
var readTuplesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "read_total",
	Help:      "Total number of tuples read by nodes",
}, []string{metrics.LabelNode, metrics.LabelPort})

// emittedTuplesCount is used to indicate the number of tuples written to the output ports
var emittedTuplesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "emit_total",
	Help:      "Total number of tuples emitted by nodes",
}, []string{metrics.LabelNode, metrics.LabelPort})

// strayControlCount is used to indicate the number of ignored BEGIN_WINDOW/END_WINDOW tuples
var strayControlCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "stray_control_total",
	Help:      "Total number of control tuples ignored because they do not match the window state",
}, []string{metrics.LabelNode, metrics.LabelPort})

// lateWindowCount is used to indicate the number of windows a port began after the node closed them
var lateWindowCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "late_window_total",
	Help:      "Total number of BEGIN_WINDOW tuples of windows already closed by the node",
}, []string{metrics.LabelNode, metrics.LabelPort})

// windowsCount is used to indicate the number of windows completed by nodes
var windowsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "windows_total",
	Help:      "Total number of windows completed",
}, []string{metrics.LabelNode})

// droppedSnapshots is used to indicate the number of snapshots replaced before being flushed
var droppedSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "dropped_snapshots_total",
	Help:      "Total number of stats snapshots superseded before a flush",
}, []string{metrics.LabelNode})

// flushedWindow is the sequence of the last window flushed
var flushedWindow = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "flushed_window_sequence",
	Help:      "Sequence of the window of the last flushed stats snapshot",
}, []string{metrics.LabelNode})

// inputRateGauge is the smoothed number of DATA tuples read per second
var inputRateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "input_rate",
	Help:      "Exponentially weighted moving average of the DATA tuples read per second",
}, []string{metrics.LabelNode})
