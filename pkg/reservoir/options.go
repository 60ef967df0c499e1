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

// Options for reservoir
type options struct {
	// sink receives the data tuples while sweeping
	sink Sink
	// metricsDisabled skips the prometheus accounting
	metricsDisabled bool
}

type Option func(options *options) error

// WithSink sets the sink data tuples are pushed to by Sweep.
func WithSink(s Sink) Option {
	return func(o *options) error {
		o.sink = s
		return nil
	}
}

// WithoutMetrics disables the prometheus accounting, used for short-lived reservoirs.
func WithoutMetrics() Option {
	return func(o *options) error {
		o.metricsDisabled = true
		return nil
	}
}
