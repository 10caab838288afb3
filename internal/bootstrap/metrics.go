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

package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultEnsured = "ensured"
	resultFailed  = "failed"
)

var (
	// topicsBootstrapped tracks create requests by cluster and result
	topicsBootstrapped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devserver_bootstrap_topics_total",
			Help: "Topic create requests by cluster and result",
		},
		[]string{"cluster", "result"},
	)

	// bootstrapPreconditionFailures tracks runs aborted by unmapped topics
	bootstrapPreconditionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devserver_bootstrap_precondition_failures_total",
			Help: "Bootstraps aborted because a topic had no cluster mapping",
		},
	)
)

func recordTopic(cluster, result string) {
	topicsBootstrapped.WithLabelValues(cluster, result).Inc()
}

func recordPrecondition() {
	bootstrapPreconditionFailures.Inc()
}
