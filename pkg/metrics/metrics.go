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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion       = "version"
	LabelPlatform      = "platform"
	LabelComponent     = "component"
	LabelComponentName = "component_name"
	LabelReservoir     = "reservoir"
	LabelGenerator     = "generator"
	LabelStream        = "stream"
	LabelEndpoint      = "endpoint"
	LabelTransport     = "transport"
	LabelCodec         = "codec"
	LabelAdapter       = "adapter"
	LabelNode          = "node"
	LabelPort          = "port"
	LabelReason        = "reason"
	LabelPeriod        = "period"
	LabelPendingName   = "pending_name"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by the data plane binary version, platform, and other information",
	}, []string{LabelComponent, LabelComponentName, LabelVersion, LabelPlatform})

	// pending is a gauge of the average number of tuples waiting to be consumed or written, over a lookback period
	pending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pending",
		Help: "Average number of pending tuples or bytes over the lookback period",
	}, []string{LabelPeriod, LabelPendingName})
)
