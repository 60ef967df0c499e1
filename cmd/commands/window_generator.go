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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/adapters"
	"github.com/numaproj/dataplane/pkg/config"
	"github.com/numaproj/dataplane/pkg/shared/logging"
)

func NewWindowGeneratorCommand() *cobra.Command {
	var (
		stream string
		server string
	)
	command := &cobra.Command{
		Use:   "window-generator",
		Short: "Start a window generator publishing to a buffer server stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, conf, err := setup("window-generator")
			if err != nil {
				return err
			}
			defer cancel()
			if stream != "" {
				conf.WindowGenerator.Stream = stream
			}
			if server != "" {
				conf.WindowGenerator.Server = server
			}
			return runWindowGenerator(ctx, conf)
		},
	}
	command.Flags().StringVar(&stream, "stream", "", "Stream the windows are published to, overrides windowGenerator.stream")
	command.Flags().StringVar(&server, "server", "", "Address of the buffer server, overrides windowGenerator.server")
	return command
}

// runWindowGenerator publishes the control tuples of a window generator to a buffer server stream, along with
// the configured output adapters.
func runWindowGenerator(ctx context.Context, conf *config.Config) error {
	log := logging.FromContext(ctx)
	wg := conf.WindowGenerator
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	loop := startEventLoop(ctx, wg.Name)
	defer loop.Stop()
	env := adapters.Env{Logger: log, EventLoop: loop, ReservoirCapacity: conf.ReservoirCapacity}

	p := newPipeline(wg.Name, conf)
	defer func() {
		if err := p.close(); err != nil {
			log.Warnw("Failed to close adapters", zap.Error(err))
		}
	}()
	if err := p.withGenerator(func(err error) { cancel(fmt.Errorf("window generator failed: %w", err)) }); err != nil {
		return err
	}
	sink, err := adapters.DefaultRegistry().NewSink(ctx, adapters.Spec{
		Name: wg.Name,
		Type: "bufferserver",
		Properties: map[string]any{
			"address":   conf.ServerAddress(),
			"stream":    wg.Stream,
			"transport": conf.Server.Transport,
			"codec":     conf.Codec,
		},
	}, env)
	if err != nil {
		return err
	}
	p.addSink(sink)
	for _, spec := range conf.Adapters {
		if spec.Input {
			log.Warnw("Ignoring input adapter", zap.String("adapter", spec.Name))
			continue
		}
		s, err := adapters.DefaultRegistry().NewSink(ctx, spec, env)
		if err != nil {
			return err
		}
		p.addSink(s)
	}
	return p.run(ctx)
}
