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
	"net"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/dataplane/pkg/bufferserver"
	"github.com/numaproj/dataplane/pkg/config"
	"github.com/numaproj/dataplane/pkg/metrics"
	"github.com/numaproj/dataplane/pkg/shared/logging"
)

func NewBufferServerCommand() *cobra.Command {
	var sharePort bool
	command := &cobra.Command{
		Use:   "buffer-server",
		Short: "Start the buffer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, conf, err := setup("buffer-server")
			if err != nil {
				return err
			}
			defer cancel()
			if sharePort {
				conf.Metrics.Address = ""
			}
			return runBufferServer(ctx, conf)
		},
	}
	command.Flags().BoolVar(&sharePort, "share-port", false, "Serve the metrics on the buffer server port, tcp transport only")
	return command
}

// runBufferServer serves until the context is done. With an empty metrics address and the tcp transport, the
// metrics are served on the buffer server port, HTTP requests being told apart from frames by cmux.
func runBufferServer(ctx context.Context, conf *config.Config) error {
	log := logging.FromContext(ctx)
	opts := []bufferserver.Option{bufferserver.WithTransport(conf.Server.Transport)}
	if conf.Server.MaxFrameSize > 0 {
		opts = append(opts, bufferserver.WithMaxFrameSize(conf.Server.MaxFrameSize))
	}
	server := bufferserver.NewServer(conf.Server.Address, opts...)
	healthCheckers := []metrics.HealthChecker{server}
	readers := []metrics.PendingReader{server}

	g, gctx := errgroup.WithContext(ctx)
	if conf.Metrics.Address == "" {
		if conf.Server.Transport != "" && conf.Server.Transport != bufferserver.DefaultTransport {
			return fmt.Errorf("metrics can only share the port of a %s buffer server", bufferserver.DefaultTransport)
		}
		ln, err := net.Listen("tcp", conf.Server.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %q: %w", conf.Server.Address, err)
		}
		tcpm := cmux.New(ln)
		httpL := tcpm.Match(cmux.HTTP1Fast())
		frameL := tcpm.Match(cmux.Any())
		ms := metrics.NewMetricsServer(metrics.NewMetricsOptions(gctx, healthCheckers, readers)...)
		shutdown, err := ms.Serve(gctx, httpL)
		if err != nil {
			_ = ln.Close()
			return err
		}
		defer shutdownMetrics(ctx, shutdown)
		addr := server.Serve(gctx, frameL)
		g.Go(func() error {
			<-gctx.Done()
			// closing a matched listener closes the shared one too
			server.Stop()
			_ = ln.Close()
			return nil
		})
		g.Go(func() error {
			if err := tcpm.Serve(); err != nil && gctx.Err() == nil {
				return fmt.Errorf("connection multiplexer stopped: %w", err)
			}
			return nil
		})
		log.Infow("Buffer server started, sharing its port with the metrics", zap.Stringer("address", addr))
	} else {
		addr, err := server.Start(gctx)
		if err != nil {
			return err
		}
		defer server.Stop()
		stopMetrics, err := startMetrics(gctx, conf, healthCheckers, readers)
		if err != nil {
			return err
		}
		defer stopMetrics()
		log.Infow("Buffer server started", zap.Stringer("address", addr), zap.String("transport", conf.Server.Transport))
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := g.Wait()
	server.Stop()
	log.Info("Shutting down...")
	return err
}
