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

func NewNodeCommand() *cobra.Command {
	var (
		name    string
		windows bool
	)
	command := &cobra.Command{
		Use:   "node",
		Short: "Start a pass-through node from the input adapters to the output adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, conf, err := setup("node")
			if err != nil {
				return err
			}
			defer cancel()
			return runNode(ctx, conf, name, windows)
		},
	}
	command.Flags().StringVar(&name, "name", "node", "Name of the node")
	command.Flags().BoolVar(&windows, "windows", false, "Demarcate the input with a local window generator")
	return command
}

func runNode(ctx context.Context, conf *config.Config, name string, windows bool) error {
	log := logging.FromContext(ctx).With("node", name)
	ctx = logging.WithLogger(ctx, log)
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	loop := startEventLoop(ctx, name)
	defer loop.Stop()

	p := newPipeline(name, conf)
	defer func() {
		if err := p.close(); err != nil {
			log.Warnw("Failed to close adapters", zap.Error(err))
		}
	}()
	if windows {
		if err := p.withGenerator(func(err error) { cancel(fmt.Errorf("window generator failed: %w", err)) }); err != nil {
			return err
		}
	}
	env := adapters.Env{Logger: log, EventLoop: loop, ReservoirCapacity: conf.ReservoirCapacity}
	if err := p.addAdapters(ctx, env); err != nil {
		return err
	}
	return p.run(ctx)
}
