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
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataplane/pkg/tuple"
)

func TestToRedis(t *testing.T) {
	addr := os.Getenv("DATAPLANE_TEST_REDIS_ADDR")
	if addr == "" {
		t.SkipNow()
	}
	ctx := context.Background()
	stream := "dataplane-test-" + t.Name()
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()
	defer client.Del(ctx, stream)

	s, err := DefaultRegistry().NewSink(ctx, Spec{
		Name:       "out",
		Type:       "redis",
		Properties: map[string]any{"addrs": addr, "stream": stream, "codec": "json", "maxLen": 100},
	}, Env{})
	require.NoError(t, err)
	require.NoError(t, s.Put(tuple.NewBeginWindow(1)))
	require.NoError(t, s.Put(tuple.NewData([]byte("x"))))
	require.NoError(t, s.Close())

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "BEGIN_WINDOW", entries[0].Values["type"])
	assert.Equal(t, "DATA", entries[1].Values["type"])
}

func TestRedisConfig_Validate(t *testing.T) {
	assert.Error(t, (&RedisConfig{Stream: "s"}).Validate())
	assert.Error(t, (&RedisConfig{Addrs: []string{"a"}}).Validate())
	assert.Error(t, (&RedisConfig{Addrs: []string{"a"}, Stream: "s", MaxLen: -1}).Validate())
	assert.NoError(t, (&RedisConfig{Addrs: []string{"a"}, Stream: "s"}).Validate())
}
