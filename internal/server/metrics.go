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

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// serverReloads tracks restarts triggered by watched file changes
	serverReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devserver_server_reloads_total",
			Help: "Total server restarts triggered by code changes",
		},
	)

	// reloadRateLimited tracks restarts delayed by the reload rate limit
	reloadRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devserver_server_reload_rate_limited_total",
			Help: "Total code changes whose restart was delayed by the rate limit",
		},
	)
)

func recordReload() {
	serverReloads.Inc()
}

func recordRateLimited() {
	reloadRateLimited.Inc()
}
