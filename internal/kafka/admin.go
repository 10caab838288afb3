// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kafka creates message-bus topics on the local Kafka clusters.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/tombee/devserver/internal/config"
	devlog "github.com/tombee/devserver/internal/log"
)

// ErrUnknownCluster is returned for a cluster missing from the settings.
var ErrUnknownCluster = errors.New("kafka: unknown cluster")

// Conn is the subset of a controller connection the admin uses.
// *kafkago.Conn satisfies it.
type Conn interface {
	CreateTopics(topics ...kafkago.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafkago.Partition, error)
	Close() error
}

// DialFunc opens a connection to the controller of a cluster.
type DialFunc func(ctx context.Context, brokers []string) (Conn, error)

// Admin creates topics. It dials the cluster controller per request; topic
// bootstrap runs once per devserver start so connections are not pooled.
type Admin struct {
	clusters map[string]config.ClusterConfig
	dial     DialFunc
	logger   *slog.Logger

	// recreateAttempts bounds create retries while a deleted topic drains.
	recreateAttempts int
	recreateBackoff  time.Duration
}

// NewAdmin creates an admin for the configured clusters.
func NewAdmin(clusters map[string]config.ClusterConfig, logger *slog.Logger) *Admin {
	return NewAdminWithDialer(clusters, DialController, logger)
}

// NewAdminWithDialer is NewAdmin with a custom dialer.
func NewAdminWithDialer(clusters map[string]config.ClusterConfig, dial DialFunc, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = devlog.Discard()
	}
	return &Admin{
		clusters:         clusters,
		dial:             dial,
		logger:           devlog.WithComponent(logger, "kafka"),
		recreateAttempts: 10,
		recreateBackoff:  250 * time.Millisecond,
	}
}

// CreateTopic creates topic on cluster. An existing topic is success. With
// force, an existing topic whose partition count differs from spec is
// deleted and created again.
func (a *Admin) CreateTopic(ctx context.Context, cluster, topic string, spec config.TopicConfig, force bool) error {
	cc, ok := a.clusters[cluster]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, cluster)
	}

	conn, err := a.dial(ctx, cc.Brokers)
	if err != nil {
		return fmt.Errorf("connecting to cluster %s: %w", cluster, err)
	}
	defer conn.Close()

	logger := a.logger.With(slog.String(devlog.ClusterKey, cluster), slog.String(devlog.TopicKey, topic))

	cfg := topicConfig(topic, spec)

	// CreateTopics treats an existing topic as success, so existence and
	// partition count come from the metadata.
	partitions, err := conn.ReadPartitions(topic)
	if errors.Is(err, kafkago.UnknownTopicOrPartition) {
		if err := conn.CreateTopics(cfg); err != nil {
			return fmt.Errorf("creating topic %s: %w", topic, err)
		}
		logger.Debug("topic created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading partitions of %s: %w", topic, err)
	}
	if !force || len(partitions) == cfg.NumPartitions {
		return nil
	}

	logger.Warn("recreating misconfigured topic",
		slog.Int("partitions", len(partitions)),
		slog.Int("want_partitions", cfg.NumPartitions))

	if err := conn.DeleteTopics(topic); err != nil {
		return fmt.Errorf("deleting topic %s: %w", topic, err)
	}
	return a.recreate(ctx, conn, cfg)
}

// recreate creates cfg once the deleted topic has drained and waits until
// the metadata shows the new partition count. A create sent while the old
// topic is still listed is a silent no-op, hence the polling.
func (a *Admin) recreate(ctx context.Context, conn Conn, cfg kafkago.TopicConfig) error {
	for attempt := 0; attempt < a.recreateAttempts; attempt++ {
		partitions, err := conn.ReadPartitions(cfg.Topic)
		switch {
		case errors.Is(err, kafkago.UnknownTopicOrPartition):
			if err := conn.CreateTopics(cfg); err != nil {
				return fmt.Errorf("recreating topic %s: %w", cfg.Topic, err)
			}
		case err != nil:
			return fmt.Errorf("reading partitions of %s: %w", cfg.Topic, err)
		case len(partitions) == cfg.NumPartitions:
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.recreateBackoff):
		}
	}
	return fmt.Errorf("recreating topic %s: still not %d partitions after %d attempts",
		cfg.Topic, cfg.NumPartitions, a.recreateAttempts)
}

func topicConfig(topic string, spec config.TopicConfig) kafkago.TopicConfig {
	partitions := spec.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := spec.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	return kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	}
}

// DialController connects to the first reachable broker and then to the
// cluster controller, where topic admin requests must go.
func DialController(ctx context.Context, brokers []string) (Conn, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		controller, err := conn.Controller()
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}

		addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
		ctrl, err := kafkago.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return ctrl, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, lastErr
}
