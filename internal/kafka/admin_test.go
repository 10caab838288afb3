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

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/devserver/internal/config"
)

// fakeConn behaves like a controller connection from kafka-go: creating a
// topic that is still listed succeeds without changing it, and the metadata
// of a missing topic is UnknownTopicOrPartition.
type fakeConn struct {
	topics map[string]int
	// drainReads is how many metadata reads still list a deleted topic.
	drainReads int
	createErr  error
	readErr    error

	created []kafkago.TopicConfig
	deleted []string
	closed  bool
}

func (f *fakeConn) CreateTopics(topics ...kafkago.TopicConfig) error {
	f.created = append(f.created, topics...)
	if f.createErr != nil {
		return f.createErr
	}
	if f.topics == nil {
		f.topics = map[string]int{}
	}
	for _, t := range topics {
		if _, exists := f.topics[t.Topic]; !exists {
			f.topics[t.Topic] = t.NumPartitions
		}
	}
	return nil
}

func (f *fakeConn) DeleteTopics(topics ...string) error {
	f.deleted = append(f.deleted, topics...)
	if f.drainReads == 0 {
		for _, t := range topics {
			delete(f.topics, t)
		}
	}
	return nil
}

func (f *fakeConn) ReadPartitions(topics ...string) ([]kafkago.Partition, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	n, ok := f.topics[topics[0]]
	if ok && len(f.deleted) > 0 && f.drainReads > 0 {
		f.drainReads--
		if f.drainReads == 0 {
			delete(f.topics, topics[0])
		}
	}
	if !ok {
		return nil, kafkago.UnknownTopicOrPartition
	}
	parts := make([]kafkago.Partition, n)
	for i := range parts {
		parts[i] = kafkago.Partition{Topic: topics[0], ID: i}
	}
	return parts, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestAdmin(conn *fakeConn) *Admin {
	clusters := map[string]config.ClusterConfig{"default": {Brokers: []string{"127.0.0.1:9092"}}}
	a := NewAdminWithDialer(clusters, func(context.Context, []string) (Conn, error) { return conn, nil }, nil)
	a.recreateBackoff = time.Millisecond
	return a
}

func TestCreateTopic_New(t *testing.T) {
	conn := &fakeConn{}
	err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 2}, true)
	require.NoError(t, err)
	require.Len(t, conn.created, 1)
	assert.Equal(t, "ingest-events", conn.created[0].Topic)
	assert.Equal(t, 2, conn.created[0].NumPartitions)
	assert.Equal(t, 1, conn.created[0].ReplicationFactor)
	assert.True(t, conn.closed)
}

func TestCreateTopic_ExistingIsSuccess(t *testing.T) {
	conn := &fakeConn{topics: map[string]int{"ingest-events": 1}}
	err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 1}, true)
	require.NoError(t, err)
	assert.Empty(t, conn.deleted)
	assert.Empty(t, conn.created)
}

func TestCreateTopic_ForceRecreatesMisconfigured(t *testing.T) {
	conn := &fakeConn{topics: map[string]int{"ingest-events": 4}}
	err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ingest-events"}, conn.deleted)
	assert.Equal(t, 1, conn.topics["ingest-events"])
}

func TestCreateTopic_ForceWaitsForDeletion(t *testing.T) {
	conn := &fakeConn{topics: map[string]int{"ingest-events": 4}, drainReads: 3}
	err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 2}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, conn.topics["ingest-events"])
	require.NotEmpty(t, conn.created)
}

func TestCreateTopic_ForceGivesUpWhileDraining(t *testing.T) {
	conn := &fakeConn{topics: map[string]int{"ingest-events": 4}, drainReads: 100}
	a := newTestAdmin(conn)
	a.recreateAttempts = 3
	err := a.CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 1}, true)
	assert.ErrorContains(t, err, "still not 1 partitions")
	assert.Empty(t, conn.created, "create must wait until the old topic is gone")
}

func TestCreateTopic_NoForceKeepsMisconfigured(t *testing.T) {
	conn := &fakeConn{topics: map[string]int{"ingest-events": 4}}
	err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "ingest-events", config.TopicConfig{Partitions: 1}, false)
	require.NoError(t, err)
	assert.Empty(t, conn.deleted)
	assert.Equal(t, 4, conn.topics["ingest-events"])
}

func TestCreateTopic_Errors(t *testing.T) {
	t.Run("unknown cluster", func(t *testing.T) {
		err := newTestAdmin(&fakeConn{}).CreateTopic(context.Background(), "analytics", "x", config.TopicConfig{}, true)
		assert.ErrorIs(t, err, ErrUnknownCluster)
	})

	t.Run("broker error", func(t *testing.T) {
		conn := &fakeConn{createErr: kafkago.InvalidReplicationFactor}
		err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "x", config.TopicConfig{}, true)
		assert.ErrorIs(t, err, kafkago.InvalidReplicationFactor)
	})

	t.Run("metadata error", func(t *testing.T) {
		conn := &fakeConn{readErr: kafkago.BrokerNotAvailable}
		err := newTestAdmin(conn).CreateTopic(context.Background(), "default", "x", config.TopicConfig{}, true)
		assert.ErrorIs(t, err, kafkago.BrokerNotAvailable)
		assert.Empty(t, conn.created)
	})

	t.Run("dial error", func(t *testing.T) {
		clusters := map[string]config.ClusterConfig{"default": {Brokers: []string{"b:1"}}}
		a := NewAdminWithDialer(clusters, func(context.Context, []string) (Conn, error) {
			return nil, errors.New("connection refused")
		}, nil)
		err := a.CreateTopic(context.Background(), "default", "x", config.TopicConfig{}, true)
		assert.ErrorContains(t, err, "connection refused")
	})
}
