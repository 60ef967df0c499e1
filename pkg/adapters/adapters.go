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

/*
Package adapters connects streams to external systems. An adapter is declared by a Spec naming its type, and the
types are looked up in an explicit Registry which decodes the free-form properties of the spec into the typed
configuration of the adapter. Specs are validated as a whole before any adapter is built.

Output adapters are Sinks consuming tuples. Input adapters are Sources producing tuples into a reservoir owned by
the adapter.
*/
package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/bufferserver"
	"github.com/numaproj/dataplane/pkg/reservoir"
	"github.com/numaproj/dataplane/pkg/tuple"
)

var (
	// ErrUnknownAdapter is returned for a spec whose type is not registered.
	ErrUnknownAdapter = errors.New("unknown adapter type")
	// ErrUnsupportedDirection is returned for an input spec of an output only type and the other way around.
	ErrUnsupportedDirection = errors.New("unsupported adapter direction")
	// ErrDuplicateAdapter is returned when two specs share a name.
	ErrDuplicateAdapter = errors.New("duplicate adapter name")
)

// DefaultReservoirCapacity is the capacity of the reservoir of a source when neither the spec nor the
// environment sets one.
const DefaultReservoirCapacity = 1024

// Spec declares an adapter.
type Spec struct {
	Name string `json:"name" mapstructure:"name"`
	Type string `json:"type" mapstructure:"type"`
	// Input is true for adapters bringing tuples into the data plane.
	Input      bool           `json:"input" mapstructure:"input"`
	Properties map[string]any `json:"properties" mapstructure:"properties"`
}

// Sink is an output adapter.
type Sink interface {
	Put(t *tuple.Tuple) error
	Close() error
}

// Source is an input adapter. The reservoir is filled by the source once started, it has a single consumer.
type Source interface {
	Reservoir() *reservoir.Reservoir
	Start(ctx context.Context) error
	// Err returns the error which stopped the source, if any.
	Err() error
	Close() error
}

// Config is the typed configuration of an adapter.
type Config interface {
	Validate() error
}

// Env carries the process wide resources adapters may use.
type Env struct {
	Logger *zap.SugaredLogger
	// EventLoop drives the buffer server connections.
	EventLoop *bufferserver.EventLoop
	// ReservoirCapacity is the default capacity of source reservoirs.
	ReservoirCapacity int
}

func (e Env) capacity(c int) int {
	if c > 0 {
		return c
	}
	if e.ReservoirCapacity > 0 {
		return e.ReservoirCapacity
	}
	return DefaultReservoirCapacity
}

// Kind describes an adapter type. At least one of NewSink and NewSource is set.
type Kind struct {
	// NewConfig returns a pointer to a zero configuration the properties are decoded into.
	NewConfig func() Config
	NewSink   func(ctx context.Context, name string, config Config, env Env) (Sink, error)
	NewSource func(ctx context.Context, name string, config Config, env Env) (Source, error)
}

// Registry maps adapter types to their kinds.
type Registry struct {
	lock  sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: map[string]Kind{}}
}

// DefaultRegistry returns a registry with the built-in adapters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("logger", loggerKind)
	r.Register("nats", natsKind)
	r.Register("kafka", kafkaKind)
	r.Register("redis", redisKind)
	r.Register("bufferserver", bufferServerKind)
	return r
}

// Register adds or replaces an adapter type.
func (r *Registry) Register(typ string, k Kind) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.kinds[typ] = k
}

// Types returns the registered adapter types, sorted.
func (r *Registry) Types() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	types := make([]string, 0, len(r.kinds))
	for t := range r.kinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate checks every spec, the returned error combines the problems of all of them.
func (r *Registry) Validate(specs []Spec) error {
	var err error
	names := map[string]struct{}{}
	for _, spec := range specs {
		if _, ok := names[spec.Name]; ok {
			err = multierr.Append(err, fmt.Errorf("%w %q", ErrDuplicateAdapter, spec.Name))
		}
		names[spec.Name] = struct{}{}
		if _, _, cerr := r.configure(spec); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// NewSink builds the output adapter of the spec.
func (r *Registry) NewSink(ctx context.Context, spec Spec, env Env) (Sink, error) {
	if spec.Input {
		return nil, fmt.Errorf("%w: adapter %q is an input", ErrUnsupportedDirection, spec.Name)
	}
	k, c, err := r.configure(spec)
	if err != nil {
		return nil, err
	}
	return k.NewSink(ctx, spec.Name, c, env.withDefaults(spec))
}

// NewSource builds the input adapter of the spec.
func (r *Registry) NewSource(ctx context.Context, spec Spec, env Env) (Source, error) {
	if !spec.Input {
		return nil, fmt.Errorf("%w: adapter %q is an output", ErrUnsupportedDirection, spec.Name)
	}
	k, c, err := r.configure(spec)
	if err != nil {
		return nil, err
	}
	return k.NewSource(ctx, spec.Name, c, env.withDefaults(spec))
}

func (e Env) withDefaults(spec Spec) Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop().Sugar()
	}
	e.Logger = e.Logger.With("adapter", spec.Name, "adapterType", spec.Type)
	return e
}

// configure looks up the kind of the spec and decodes its properties.
func (r *Registry) configure(spec Spec) (Kind, Config, error) {
	r.lock.RLock()
	k, ok := r.kinds[spec.Type]
	r.lock.RUnlock()
	if !ok {
		return k, nil, fmt.Errorf("%w %q for adapter %q", ErrUnknownAdapter, spec.Type, spec.Name)
	}
	if spec.Input && k.NewSource == nil {
		return k, nil, fmt.Errorf("%w: %q adapters are output only, adapter %q", ErrUnsupportedDirection, spec.Type, spec.Name)
	}
	if !spec.Input && k.NewSink == nil {
		return k, nil, fmt.Errorf("%w: %q adapters are input only, adapter %q", ErrUnsupportedDirection, spec.Type, spec.Name)
	}
	c := k.NewConfig()
	if err := decodeProperties(spec.Properties, c); err != nil {
		return k, nil, fmt.Errorf("invalid properties of adapter %q: %w", spec.Name, err)
	}
	if err := c.Validate(); err != nil {
		return k, nil, fmt.Errorf("invalid properties of adapter %q: %w", spec.Name, err)
	}
	return k, c, nil
}

func decodeProperties(props map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return d.Decode(props)
}
