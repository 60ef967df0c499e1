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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/dataplane/pkg/metrics"
)

// windowsGenerated is used to indicate the number of windows opened by a generator
var windowsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window_generator",
	Name:      "windows_total",
	Help:      "Total number of windows generated",
}, []string{metrics.LabelGenerator})

// resetWindowsGenerated is used to indicate the number of reset epochs started by a generator
var resetWindowsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window_generator",
	Name:      "reset_windows_total",
	Help:      "Total number of reset windows generated",
}, []string{metrics.LabelGenerator})

// currentWindow is the id of the window currently open
var currentWindow = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "window_generator",
	Name:      "current_window_id",
	Help:      "Id of the window currently open",
}, []string{metrics.LabelGenerator})

// generatorErrors is used to indicate the number of fatal generator errors
var generatorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window_generator",
	Name:      "errors_total",
	Help:      "Total number of fatal errors stopping a generator",
}, []string{metrics.LabelGenerator})
