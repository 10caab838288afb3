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

package config

// DefaultCluster is the cluster every built-in topic maps to.
const DefaultCluster = "default"

// defaultTopics are the consumer topics the composer can request.
var defaultTopics = []string{
	"post-process-forwarder-errors",
	"post-process-forwarder-transactions",
	"post-process-forwarder-issue-platform",
	"events-subscription-results",
	"transactions-subscription-results",
	"generic-metrics-subscription-results",
	"sessions-subscription-results",
	"metrics-subscription-results",
	"ingest-metrics",
	"ingest-generic-metrics",
	"billing-metrics-consumer",
	"ingest-events",
	"ingest-attachments",
	"ingest-transactions",
	"ingest-monitors",
	"ingest-profiles",
	"ingest-occurrences",
}

// Default returns settings for a stock checkout: snuba event stream, no
// silos, relay off, webpack as the only watcher.
func Default() *Settings {
	topics := make(map[string]TopicConfig, len(defaultTopics))
	for _, name := range defaultTopics {
		topics[name] = TopicConfig{Cluster: DefaultCluster, Partitions: 1, ReplicationFactor: 1}
	}

	return &Settings{
		ProjectRoot: ".",
		Bind:        "127.0.0.1:8000",
		EventStream: EventStreamSnuba,
		Watchers: []DaemonSpec{
			{
				Name: "webpack",
				Command: []string{
					"node", "node_modules/webpack/bin/webpack.js", "serve",
					"--color", "--output-pathinfo=true", "--config", "webpack.config.ts",
				},
			},
		},
		Ingest: IngestConfig{
			RequiredContainers: []string{"sentry_zookeeper", "sentry_kafka"},
			Remediation:        "make sure use_relay is enabled and run `sentry devservices up kafka zookeeper`",
		},
		Devservices: DevservicesConfig{
			Docker: "docker",
			Containers: map[string]ContainerConfig{
				"relay": {WithDevserver: true, RequiresRelay: true},
			},
		},
		Kafka: KafkaConfig{
			Clusters: map[string]ClusterConfig{
				DefaultCluster: {Brokers: []string{"127.0.0.1:9092"}},
			},
			Topics: topics,
		},
		Server: ServerConfig{
			Command:      []string{"sentry", "run", "web"},
			Autoreload:   AutoreloadNative,
			WatchInclude: []string{"**/*.py"},
			WatchExclude: []string{"**/node_modules/**", "**/.git/**", "**/__pycache__/**"},
		},
	}
}
