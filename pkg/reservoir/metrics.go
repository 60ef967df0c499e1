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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/dataplane/pkg/metrics"
)

// reservoirOverflows counts the rejected adds per reservoir.
var reservoirOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "reservoir",
	Name:      "overflow_total",
	Help:      "Total number of tuples rejected because the reservoir was full",
}, []string{metrics.LabelReservoir})
