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
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/shared/logging"
)

const (
	defaultBatchSize = 64
	defaultIdleSleep = time.Millisecond
	defaultMaxRanges = 64
)

type options struct {
	// batchSize is the maximum number of tuples taken from a port before moving to the next one
	batchSize int
	// idleSleep is the time to sleep when no input port had a tuple
	idleSleep time.Duration
	// maxRanges bounds the window ranges kept in the stats
	maxRanges int
	logger    *zap.SugaredLogger
}

type Option func(*options) error

func defaultOptions() *options {
	return &options{
		batchSize: defaultBatchSize,
		idleSleep: defaultIdleSleep,
		maxRanges: defaultMaxRanges,
		logger:    logging.NewLogger(),
	}
}

// WithBatchSize sets the number of tuples taken from a port in one pass
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("batch size must be positive")
		}
		o.batchSize = n
		return nil
	}
}

// WithIdleSleep sets the time to sleep when all the input ports are empty
func WithIdleSleep(d time.Duration) Option {
	return func(o *options) error {
		o.idleSleep = d
		return nil
	}
}

// WithMaxRanges sets the number of window ranges kept in the stats, the oldest are dropped first
func WithMaxRanges(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("max ranges must be positive")
		}
		o.maxRanges = n
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
