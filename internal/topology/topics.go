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

package topology

// Topic groups added by composition.
var (
	postProcessForwarderTopics = []string{
		"post-process-forwarder-errors",
		"post-process-forwarder-transactions",
		"post-process-forwarder-issue-platform",
	}

	subscriptionResultTopics = []string{
		"events-subscription-results",
		"transactions-subscription-results",
		"generic-metrics-subscription-results",
		"sessions-subscription-results",
		"metrics-subscription-results",
	}

	metricsTopics = []string{
		"ingest-metrics",
		"ingest-generic-metrics",
		"billing-metrics-consumer",
	}

	ingestTopics = []string{
		"ingest-events",
		"ingest-attachments",
		"ingest-transactions",
		"ingest-monitors",
	}
)

const (
	profilesTopic    = "ingest-profiles"
	occurrencesTopic = "ingest-occurrences"
)

// consumerArgs follow the consumer topic on every per-topic consumer.
var consumerArgs = []string{
	"--consumer-group=sentry-consumer",
	"--auto-offset-reset=latest",
	"--no-strict-offset-reset",
}

const devConsumerName = "dev-consumer"

const tlsDaemonName = "https"

// Log formats for the application server.
const (
	requestLogFormat     = "%(method) %(status) %(uri) %(proto) %(size)"
	timestampedLogFormat = "[%(ltime)] %(method) %(status) %(uri) %(proto) %(size)"
)
