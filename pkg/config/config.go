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

// Package config loads the data plane configuration from a yaml file, with DATAPLANE_ prefixed environment
// variables taking precedence, and reloads it when the file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/numaproj/dataplane/pkg/adapters"
	"github.com/numaproj/dataplane/pkg/bufferserver"
	"github.com/numaproj/dataplane/pkg/codec"
	"github.com/numaproj/dataplane/pkg/windowgen"
)

// EnvPrefix prefixes the environment variables overriding the configuration, e.g.
// DATAPLANE_SERVER_ADDRESS for server.address.
const EnvPrefix = "DATAPLANE"

const (
	DefaultServerAddress  = ":8765"
	DefaultStatsInterval  = 10 * time.Second
	DefaultWindowWidth    = 500
	DefaultMetricsAddress = ":9090"
)

type Config struct {
	LogLevel        string                `mapstructure:"logLevel"`
	Server          ServerConfig          `mapstructure:"server"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
	WindowGenerator WindowGeneratorConfig `mapstructure:"windowGenerator"`
	// Codec is the wire codec of the buffer server streams.
	Codec string `mapstructure:"codec"`
	// ReservoirCapacity is the default capacity of the reservoirs.
	ReservoirCapacity int `mapstructure:"reservoirCapacity"`
	// StatsInterval is how often node stats are flushed.
	StatsInterval time.Duration    `mapstructure:"statsInterval"`
	Adapters      []adapters.Spec `mapstructure:"adapters"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Transport    string `mapstructure:"transport"`
	MaxFrameSize int    `mapstructure:"maxFrameSize"`
}

type MetricsConfig struct {
	// Address of the metrics server. When empty the metrics share the port of a tcp buffer server.
	Address string `mapstructure:"address"`
	TLS     bool   `mapstructure:"tls"`
}

type WindowGeneratorConfig struct {
	Name string `mapstructure:"name"`
	// Stream the windows are published to.
	Stream string `mapstructure:"stream"`
	// Server is the address of the buffer server, the local server by default.
	Server            string `mapstructure:"server"`
	FirstWindowMillis int64  `mapstructure:"firstWindowMillis"`
	ResetWindowMillis int64  `mapstructure:"resetWindowMillis"`
	WindowWidthMillis int64  `mapstructure:"windowWidthMillis"`
}

// Generator returns the window generator configuration, a zero first window or reset window means now.
func (w WindowGeneratorConfig) Generator(now time.Time) windowgen.Config {
	c := windowgen.Config{
		FirstWindowMillis: w.FirstWindowMillis,
		ResetWindowMillis: w.ResetWindowMillis,
		WindowWidthMillis: w.WindowWidthMillis,
	}
	if c.FirstWindowMillis == 0 {
		c.FirstWindowMillis = now.UnixMilli()
	}
	if c.ResetWindowMillis == 0 {
		c.ResetWindowMillis = c.FirstWindowMillis
	}
	return c
}

// ServerAddress returns the buffer server the window generator publishes to.
func (c *Config) ServerAddress() string {
	if c.WindowGenerator.Server != "" {
		return c.WindowGenerator.Server
	}
	addr := c.Server.Address
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return addr
}

// Validate checks the whole configuration, adapters are validated against the registry.
func (c *Config) Validate(registry *adapters.Registry) error {
	var err error
	if c.LogLevel != "" {
		if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid logLevel: %w", lerr))
		}
	}
	if c.Server.Address == "" {
		err = multierr.Append(err, errors.New("missing server.address"))
	}
	if _, terr := bufferserver.GetTransport(c.Server.Transport); terr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid server.transport: %w", terr))
	}
	if c.Server.MaxFrameSize < 0 {
		err = multierr.Append(err, errors.New("negative server.maxFrameSize"))
	}
	if _, cerr := codec.New(c.Codec); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid codec: %w", cerr))
	}
	if c.ReservoirCapacity <= 0 {
		err = multierr.Append(err, errors.New("reservoirCapacity must be positive"))
	}
	if c.StatsInterval <= 0 {
		err = multierr.Append(err, errors.New("statsInterval must be positive"))
	}
	if gerr := c.WindowGenerator.Generator(time.Now()).Validate(); gerr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid windowGenerator: %w", gerr))
	}
	if registry != nil {
		err = multierr.Append(err, registry.Validate(c.Adapters))
	}
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.address", DefaultServerAddress)
	v.SetDefault("server.transport", bufferserver.DefaultTransport)
	v.SetDefault("server.maxFrameSize", bufferserver.DefaultMaxFrameSize)
	v.SetDefault("metrics.address", DefaultMetricsAddress)
	v.SetDefault("metrics.tls", false)
	v.SetDefault("windowGenerator.name", "window-generator")
	v.SetDefault("windowGenerator.stream", "windows")
	v.SetDefault("windowGenerator.server", "")
	v.SetDefault("windowGenerator.firstWindowMillis", 0)
	v.SetDefault("windowGenerator.resetWindowMillis", 0)
	v.SetDefault("windowGenerator.windowWidthMillis", DefaultWindowWidth)
	v.SetDefault("codec", codec.Default)
	v.SetDefault("reservoirCapacity", adapters.DefaultReservoirCapacity)
	v.SetDefault("statsInterval", DefaultStatsInterval)
}

// GlobalConfig holds the current configuration, it is replaced when the file changes.
type GlobalConfig struct {
	conf *Config
	lock *sync.RWMutex
}

// Get returns the current configuration, it must not be modified.
func (g *GlobalConfig) Get() *Config {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	return conf, nil
}

// Load reads the configuration, the defaults when path is empty. Without a file there is nothing to watch,
// otherwise onChange receives every configuration reloaded successfully and onErrorReloading every failure. A
// reloaded configuration failing validation is not applied.
func Load(path string, registry *adapters.Registry, onChange func(*Config), onErrorReloading func(error)) (*GlobalConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	conf, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(registry); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	g := &GlobalConfig{
		conf: conf,
		lock: new(sync.RWMutex),
	}
	if path == "" {
		return g, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cf, err := unmarshal(v)
		if err == nil {
			err = cf.Validate(registry)
		}
		if err != nil {
			if onErrorReloading != nil {
				onErrorReloading(err)
			}
			return
		}
		g.lock.Lock()
		g.conf = cf
		g.lock.Unlock()
		if onChange != nil {
			onChange(cf)
		}
	})
	v.WatchConfig()
	return g, nil
}
