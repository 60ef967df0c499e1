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
	"github.com/zoobzio/clockz"
)

type options struct {
	// clock drives the ticks, the real clock by default
	clock clockz.Clock
	// onError is invoked once when the generator stops on a fatal error
	onError func(error)
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		clock: clockz.RealClock,
	}
}

// WithClock sets the clock the generator reads time from and schedules ticks on.
func WithClock(c clockz.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithOnError sets a callback invoked when the generator stops because a reservoir overflowed.
func WithOnError(f func(error)) Option {
	return func(o *options) {
		o.onError = f
	}
}
