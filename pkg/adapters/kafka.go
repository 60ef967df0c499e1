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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/tuple"
)

// KafkaConfig configures the kafka output adapter.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// Codec maps tuples to messages, raw by default.
	Codec string `mapstructure:"codec"`
	// Config is a sarama configuration in yaml.
	Config string `mapstructure:"config"`
}

func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("missing brokers")
	}
	if c.Topic == "" {
		return errors.New("missing topic")
	}
	if _, err := saramaConfig(c.Config); err != nil {
		return err
	}
	return validateCodec(c.Codec)
}

// saramaConfig parses a yaml sarama configuration on top of the producer defaults.
func saramaConfig(yaml string) (*sarama.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(yaml)); err != nil {
		return nil, err
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = "dataplane"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode sarama config, %w", err)
	}
	// a sync producer needs both
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed validating sarama config, %w", err)
	}
	return cfg, nil
}

var kafkaKind = Kind{
	NewConfig: func() Config { return &KafkaConfig{} },
	NewSink: func(_ context.Context, name string, config Config, env Env) (Sink, error) {
		c := config.(*KafkaConfig)
		sc, err := saramaConfig(c.Config)
		if err != nil {
			return nil, err
		}
		producer, err := sarama.NewSyncProducer(c.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		return newToKafka(name, c, producer, env.Logger)
	},
}

// ToKafka produces tuples to a kafka topic. Tuples are keyed by the window they were produced in, so a window
// lands in a single partition.
type ToKafka struct {
	name     string
	topic    string
	codec    *payloadCodec
	producer sarama.SyncProducer
	window   tuple.WindowID
	log      *zap.SugaredLogger
}

func newToKafka(name string, c *KafkaConfig, producer sarama.SyncProducer, log *zap.SugaredLogger) (*ToKafka, error) {
	pc, err := newPayloadCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	return &ToKafka{
		name:     name,
		topic:    c.Topic,
		codec:    pc,
		producer: producer,
		log:      log.With("topic", c.Topic),
	}, nil
}

// Put sends the tuple and waits for the acknowledgement.
func (tk *ToKafka) Put(tp *tuple.Tuple) error {
	if tp.Type == tuple.BeginWindow || tp.Type == tuple.ResetWindow {
		tk.window = tp.WindowID
	}
	b, ok, err := tk.codec.encode(tp)
	if err != nil || !ok {
		return err
	}
	key := binary.BigEndian.AppendUint64(nil, uint64(tk.window))
	_, _, err = tk.producer.SendMessage(&sarama.ProducerMessage{
		Topic: tk.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		sinkWriteErrors.WithLabelValues(tk.name).Inc()
		tk.log.Errorw("SendMessage failed", zap.Error(err))
		return err
	}
	sinkWriteCount.WithLabelValues(tk.name).Inc()
	return nil
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	return tk.producer.Close()
}
