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
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// RedisConfig configures the redis output adapter, which appends tuples to a redis stream.
type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	// MasterName selects the sentinel mode.
	MasterName string `mapstructure:"masterName"`
	Stream     string `mapstructure:"stream"`
	// MaxLen approximately caps the stream length, 0 for no cap.
	MaxLen int64 `mapstructure:"maxLen"`
	// Codec maps tuples to entries, raw by default.
	Codec   string        `mapstructure:"codec"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (c *RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return errors.New("missing addrs")
	}
	if c.Stream == "" {
		return errors.New("missing stream")
	}
	if c.MaxLen < 0 {
		return errors.New("negative maxLen")
	}
	return validateCodec(c.Codec)
}

var redisKind = Kind{
	NewConfig: func() Config { return &RedisConfig{} },
	NewSink: func(_ context.Context, name string, config Config, env Env) (Sink, error) {
		return NewToRedis(name, config.(*RedisConfig), env)
	},
}

// ToRedis appends tuples to a redis stream, one entry per tuple.
type ToRedis struct {
	name    string
	config  *RedisConfig
	codec   *payloadCodec
	client  redis.UniversalClient
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewToRedis returns the output adapter, connections are established lazily by the client.
func NewToRedis(name string, c *RedisConfig, env Env) (*ToRedis, error) {
	pc, err := newPayloadCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      c.Addrs,
		Username:   c.Username,
		Password:   c.Password,
		MasterName: c.MasterName,
	})
	return &ToRedis{name: name, config: c, codec: pc, client: client, timeout: timeout, log: env.Logger.With("stream", c.Stream)}, nil
}

// Put appends the tuple to the stream.
func (t *ToRedis) Put(tp *tuple.Tuple) error {
	b, ok, err := t.codec.encode(tp)
	if err != nil || !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.config.Stream,
		MaxLen: t.config.MaxLen,
		Approx: t.config.MaxLen > 0,
		Values: map[string]any{
			"type":    tp.Type.String(),
			"payload": b,
		},
	}).Err()
	if err != nil {
		sinkWriteErrors.WithLabelValues(t.name).Inc()
		t.log.Errorw("XADD failed", zap.Error(err))
		return err
	}
	sinkWriteCount.WithLabelValues(t.name).Inc()
	return nil
}

func (t *ToRedis) Close() error {
	return t.client.Close()
}
