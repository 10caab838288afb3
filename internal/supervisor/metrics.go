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

package supervisor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// daemonStarts tracks processes started by daemon name
	daemonStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devserver_daemon_starts_total",
			Help: "Total daemon processes started by name",
		},
		[]string{"daemon"},
	)

	// daemonExits tracks process exits by daemon name and exit code
	daemonExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devserver_daemon_exits_total",
			Help: "Total daemon process exits by name and exit code",
		},
		[]string{"daemon", "code"},
	)

	// daemonsRunning tracks the number of live daemon processes
	daemonsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devserver_daemons_running",
			Help: "Number of currently running daemon processes",
		},
	)
)

func recordStart(name string) {
	daemonStarts.WithLabelValues(name).Inc()
	daemonsRunning.Inc()
}

func recordExit(name string, code int) {
	daemonExits.WithLabelValues(name, strconv.Itoa(code)).Inc()
}

func recordStopped() {
	daemonsRunning.Dec()
}
