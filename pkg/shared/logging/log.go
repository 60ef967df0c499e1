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

package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvDebug switches the logger to the development configuration.
	EnvDebug = "DATAPLANE_DEBUG"
	// EnvLogLevel overrides the log level, e.g. "warn".
	EnvLogLevel = "DATAPLANE_LOG_LEVEL"
)

var (
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	levelOnce sync.Once
)

func initLevel() {
	if debugMode, ok := os.LookupEnv(EnvDebug); ok && debugMode == "true" {
		level.SetLevel(zapcore.DebugLevel)
	}
	if lvl, ok := os.LookupEnv(EnvLogLevel); ok {
		if l, err := zapcore.ParseLevel(lvl); err == nil {
			level.SetLevel(l)
		}
	}
}

// NewLogger returns a new zap.SugaredLogger. All the loggers share one level, see SetLevel.
func NewLogger() *zap.SugaredLogger {
	levelOnce.Do(initLevel)
	var config zap.Config
	if debugMode, ok := os.LookupEnv(EnvDebug); ok && debugMode == "true" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = level
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("dataplane").Sugar()
}

// SetLevel changes the level of every logger returned by NewLogger, e.g. "debug".
func SetLevel(text string) error {
	levelOnce.Do(initLevel)
	l, err := zapcore.ParseLevel(text)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
