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

package bufferserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/dataplane/pkg/metrics"
)

// framesPublished is used to indicate the number of frames sent by publishers
var framesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "published_frames_total",
	Help:      "Total number of data frames sent by publishers",
}, []string{metrics.LabelStream})

// framesForwarded is used to indicate the number of frames the server forwarded to subscribers
var framesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "forwarded_frames_total",
	Help:      "Total number of data frames forwarded to subscriber connections",
}, []string{metrics.LabelStream})

// framesDropped is used to indicate the number of frames received for a stream without subscriber
var framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "dropped_frames_total",
	Help:      "Total number of data frames without subscriber",
}, []string{metrics.LabelStream})

// framesReceived is used to indicate the number of tuples delivered to subscribers
var framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "received_frames_total",
	Help:      "Total number of data frames received by subscribers",
}, []string{metrics.LabelStream})

// decodeErrors is used to indicate the number of frames subscribers could not decode
var decodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "decode_errors_total",
	Help:      "Total number of data frames discarded because they could not be decoded",
}, []string{metrics.LabelStream, metrics.LabelCodec})

// badRequests is used to indicate the number of control frames the server discarded
var badRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "buffer_server",
	Name:      "bad_requests_total",
	Help:      "Total number of control frames discarded",
}, []string{metrics.LabelEndpoint})

// activeConnections is used to indicate the number of open server connections
var activeConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "buffer_server",
	Name:      "connections",
	Help:      "Number of open connections",
}, []string{metrics.LabelEndpoint, metrics.LabelTransport})

// activeSubscriptions is used to indicate the number of subscriptions of a stream
var activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "buffer_server",
	Name:      "subscriptions",
	Help:      "Number of subscriptions routed by the server",
}, []string{metrics.LabelStream})
