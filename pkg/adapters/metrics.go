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

package adapters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/dataplane/pkg/metrics"
)

// sinkWriteCount is used to indicate the number of tuples written by output adapters
var sinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "adapter",
	Name:      "write_total",
	Help:      "Total number of tuples written by output adapters",
}, []string{metrics.LabelAdapter})

// sinkWriteErrors is used to indicate the number of tuples output adapters failed to write
var sinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "adapter",
	Name:      "write_errors_total",
	Help:      "Total number of tuples output adapters failed to write",
}, []string{metrics.LabelAdapter})

// sourceReadCount is used to indicate the number of tuples produced by input adapters
var sourceReadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "adapter",
	Name:      "read_total",
	Help:      "Total number of tuples produced by input adapters",
}, []string{metrics.LabelAdapter})

// sourceReadErrors is used to indicate the number of messages input adapters discarded
var sourceReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "adapter",
	Name:      "read_errors_total",
	Help:      "Total number of messages input adapters discarded",
}, []string{metrics.LabelAdapter, metrics.LabelReason})
