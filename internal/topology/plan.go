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

import (
	"sort"

	"github.com/tombee/devserver/internal/daemon"
	"github.com/tombee/devserver/internal/ports"
)

// Mode is how a composed topology runs.
type Mode string

const (
	// ModeEmbedded runs the web server in the foreground with no supervisor.
	ModeEmbedded Mode = "embedded"
	// ModeSupervised hands every daemon to the process group supervisor.
	ModeSupervised Mode = "supervised"
)

// Options are the per-invocation toggles. Zero values mean "off"; the CLI
// supplies the defaults (reload, watchers and prefix on).
type Options struct {
	Reload           bool
	Watchers         bool
	Workers          bool
	Ingest           bool
	OccurrenceIngest bool
	DevConsumer      bool
	ExperimentalSPA  bool
	DebugServer      bool
	Pretty           bool
	Prefix           bool

	// Environment is the deployment environment name, e.g. development.
	Environment string

	// IngestChecked skips the container check in Compose for callers that
	// already ran CheckIngest.
	IngestChecked bool
}

// Plan is the result of composition. It is never mutated after Compose
// returns.
type Plan struct {
	Mode Mode `json:"mode"`

	// Daemons in start order. Empty in ModeEmbedded.
	Daemons []daemon.Daemon `json:"daemons"`

	// Topics required by the consumer daemons, sorted.
	Topics []string `json:"topics"`

	// NeedsBootstrap means the bootstrapper must run before any process starts.
	NeedsBootstrap bool `json:"needs_bootstrap"`

	// Env is the base overlay applied to every process, including the
	// embedded server.
	Env map[string]string `json:"env"`

	// ServerOptions are the application server overrides. An empty value
	// means the option is unset.
	ServerOptions map[string]string `json:"server_options"`

	// Ports is the port plan the topology was composed against.
	Ports *ports.Plan `json:"ports"`

	// Dir is the working directory of every process.
	Dir string `json:"dir"`

	// Warnings are non-fatal findings for the operator.
	Warnings []string `json:"warnings,omitempty"`
}

// DaemonNames returns the daemon names in start order.
func (p *Plan) DaemonNames() []string {
	names := make([]string, len(p.Daemons))
	for i, d := range p.Daemons {
		names[i] = d.Name
	}
	return names
}

// topicSet is a deduplicated set of topic names with sorted iteration.
type topicSet map[string]struct{}

func (s topicSet) add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

func (s topicSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
