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
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/adapters"
	"github.com/numaproj/dataplane/pkg/config"
	"github.com/numaproj/dataplane/pkg/engine"
	"github.com/numaproj/dataplane/pkg/metrics"
	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/shared/logging"
	"github.com/numaproj/dataplane/pkg/windowgen"
)

const outputPort = "out"

// reservoirPending reports the tuples waiting in a reservoir.
type reservoirPending struct {
	r *reservoir.Reservoir
}

func (p reservoirPending) GetName() string {
	return "reservoir-" + p.r.Name()
}

func (p reservoirPending) Pending() int64 {
	return int64(p.r.Size())
}

// pipeline runs a pass-through node from its inputs to its sinks, the inputs being input adapters and optionally
// a window generator.
type pipeline struct {
	name      string
	conf      *config.Config
	generator *windowgen.Generator
	sources   []adapters.Source
	sinks     []adapters.Sink
	inputs    []engine.Input

	healthCheckers []metrics.HealthChecker
	readers        []metrics.PendingReader
}

func newPipeline(name string, conf *config.Config) *pipeline {
	return &pipeline{name: name, conf: conf}
}

// withGenerator adds a window generator feeding the windows input port.
func (p *pipeline) withGenerator(onError func(error)) error {
	wg := p.conf.WindowGenerator
	gen, err := windowgen.NewGenerator(wg.Name, wg.Generator(time.Now()), windowgen.WithOnError(onError))
	if err != nil {
		return err
	}
	r, err := gen.AcquireReservoir(p.name, p.conf.ReservoirCapacity)
	if err != nil {
		return err
	}
	p.generator = gen
	p.inputs = append(p.inputs, engine.Input{Port: "windows", Reservoir: r})
	p.readers = append(p.readers, reservoirPending{r})
	p.healthCheckers = append(p.healthCheckers, metrics.HealthCheckerFunc(func(context.Context) error {
		return gen.Err()
	}))
	return nil
}

func (p *pipeline) addSource(s adapters.Source, port string) {
	p.sources = append(p.sources, s)
	p.inputs = append(p.inputs, engine.Input{Port: port, Reservoir: s.Reservoir()})
	p.readers = append(p.readers, reservoirPending{s.Reservoir()})
	p.healthCheckers = append(p.healthCheckers, metrics.HealthCheckerFunc(func(context.Context) error {
		return s.Err()
	}))
}

func (p *pipeline) addSink(s adapters.Sink) {
	p.sinks = append(p.sinks, s)
	if bs, ok := s.(*adapters.ToBufferServer); ok {
		p.readers = append(p.readers, bs.Publisher())
	}
}

// addAdapters builds the configured adapters.
func (p *pipeline) addAdapters(ctx context.Context, env adapters.Env) error {
	reg := adapters.DefaultRegistry()
	for _, spec := range p.conf.Adapters {
		if spec.Input {
			s, err := reg.NewSource(ctx, spec, env)
			if err != nil {
				return err
			}
			p.addSource(s, spec.Name)
			continue
		}
		s, err := reg.NewSink(ctx, spec, env)
		if err != nil {
			return err
		}
		p.addSink(s)
	}
	return nil
}

func (p *pipeline) close() error {
	var err error
	for _, s := range p.sources {
		err = multierr.Append(err, s.Close())
	}
	for _, s := range p.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// run starts the node, the sources and the generator, then waits for the context or a failure.
func (p *pipeline) run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	if len(p.inputs) == 0 {
		return errors.New("no input, configure an input adapter or the window generator")
	}
	var outputs []engine.Output
	for _, s := range p.sinks {
		outputs = append(outputs, engine.Output{Port: outputPort, Sink: s})
	}
	node, err := engine.NewNode(p.name, &engine.PassThrough{Port: outputPort}, p.inputs, outputs, engine.WithLogger(log))
	if err != nil {
		return err
	}
	flusher := engine.NewFlusher(p.conf.StatsInterval, log)
	flusher.Add(node.Handoff())

	stopMetrics, err := startMetrics(ctx, p.conf, p.healthCheckers, p.readers)
	if err != nil {
		return err
	}
	defer stopMetrics()

	nodeCtx, cancelNode := context.WithCancel(ctx)
	defer cancelNode()
	stopped := node.Start(nodeCtx)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		flusher.Run(nodeCtx)
	}()
	defer func() {
		cancelNode()
		<-stopped
		<-flushed
	}()

	for _, s := range p.sources {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	if p.generator != nil {
		if err := p.generator.Activate(ctx); err != nil {
			return err
		}
		defer p.generator.Deactivate()
	}
	log.Infow("Pipeline started", zap.Int("inputs", len(p.inputs)), zap.Int("outputs", len(outputs)))

	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	case <-stopped:
		if err := node.Err(); err != nil {
			return fmt.Errorf("node stopped: %w", err)
		}
		return nil
	}
}
