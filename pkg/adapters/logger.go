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
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// LoggerConfig configures the logger output adapter.
type LoggerConfig struct {
	// Level is the zap level tuples are logged at, info by default.
	Level string `mapstructure:"level"`
	// Payload logs DATA payloads as strings when set.
	Payload bool `mapstructure:"payload"`
}

func (c *LoggerConfig) Validate() error {
	if c.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return nil
}

var loggerKind = Kind{
	NewConfig: func() Config { return &LoggerConfig{} },
	NewSink: func(_ context.Context, name string, config Config, env Env) (Sink, error) {
		c := config.(*LoggerConfig)
		level := zapcore.InfoLevel
		if c.Level != "" {
			level, _ = zapcore.ParseLevel(c.Level)
		}
		return &ToLog{name: name, level: level, payload: c.Payload, log: env.Logger}, nil
	},
}

// ToLog prints the tuples to the log.
type ToLog struct {
	name    string
	level   zapcore.Level
	payload bool
	log     *zap.SugaredLogger
}

// Put logs the tuple.
func (t *ToLog) Put(tp *tuple.Tuple) error {
	sinkWriteCount.WithLabelValues(t.name).Inc()
	if t.payload && tp.Type == tuple.Data {
		t.log.Logw(t.level, "("+t.name+") "+tp.String(), zap.ByteString("payload", tp.Payload))
		return nil
	}
	t.log.Logw(t.level, "("+t.name+") "+tp.String())
	return nil
}

func (t *ToLog) Close() error {
	return nil
}
