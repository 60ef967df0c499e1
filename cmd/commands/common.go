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

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/dataplane"
	"github.com/numaproj/dataplane/pkg/adapters"
	"github.com/numaproj/dataplane/pkg/bufferserver"
	"github.com/numaproj/dataplane/pkg/config"
	"github.com/numaproj/dataplane/pkg/metrics"
	"github.com/numaproj/dataplane/pkg/shared/logging"
)

// setup loads the configuration and returns a context carrying the logger, cancelled on SIGINT or SIGTERM. A
// reloaded configuration only changes the log level, the rest requires a restart.
func setup(component string) (context.Context, context.CancelFunc, *config.Config, error) {
	log := logging.NewLogger().Named(component)
	gc, err := config.Load(configFile, adapters.DefaultRegistry(), func(c *config.Config) {
		if err := logging.SetLevel(c.LogLevel); err != nil {
			log.Warnw("Ignoring log level", zap.Error(err))
			return
		}
		log.Infow("Configuration reloaded", zap.String("logLevel", c.LogLevel))
	}, func(err error) {
		log.Errorw("Failed to reload configuration", zap.Error(err))
	})
	if err != nil {
		return nil, nil, nil, err
	}
	conf := gc.Get()
	if err := logging.SetLevel(conf.LogLevel); err != nil {
		return nil, nil, nil, err
	}
	v := dataplane.GetVersion()
	metrics.BuildInfo.WithLabelValues(component, CLIName, v.Version, v.Platform).Set(1)
	log.Infow("Starting", zap.String("version", v.Version), zap.String("config", configFile))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return logging.WithLogger(ctx, log), cancel, conf, nil
}

// startEventLoop starts the loop driving the buffer server clients of the process.
func startEventLoop(ctx context.Context, name string) *bufferserver.EventLoop {
	loop := bufferserver.NewEventLoop(name)
	loop.Start(ctx)
	return loop
}

// startMetrics serves the metrics on their own address, it returns the shutdown function.
func startMetrics(ctx context.Context, conf *config.Config, healthCheckers []metrics.HealthChecker, readers []metrics.PendingReader) (func(), error) {
	opts := metrics.NewMetricsOptions(ctx, healthCheckers, readers)
	opts = append(opts, metrics.WithAddress(conf.Metrics.Address))
	if conf.Metrics.TLS {
		opts = append(opts, metrics.WithTLS())
	}
	shutdown, err := metrics.NewMetricsServer(opts...).Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return func() { shutdownMetrics(ctx, shutdown) }, nil
}

func shutdownMetrics(ctx context.Context, shutdown func(context.Context) error) {
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(sctx); err != nil {
		logging.FromContext(ctx).Warnw("Failed to shutdown metrics server", zap.Error(err))
	}
}
