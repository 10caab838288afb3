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

// Package daemon defines the background processes of a devserver run and
// the registry of named launch commands they are built from.
package daemon

import (
	"strings"
)

// Built-in daemon names.
const (
	Server = "server"
	Worker = "worker"
	Cron   = "cron"
)

// ControlPrefix prefixes the names of control silo daemons.
const ControlPrefix = "control."

// Daemon is one process handed to the supervisor.
type Daemon struct {
	// Name is unique within a run.
	Name string `json:"name"`

	// Command is the argv of the process.
	Command []string `json:"command"`

	// Env overlays the run environment for this daemon only.
	Env map[string]string `json:"env,omitempty"`

	// Quiet suppresses the daemon's output in the multiplexed stream.
	Quiet bool `json:"quiet,omitempty"`

	// Dir is the working directory.
	Dir string `json:"dir,omitempty"`
}

// CommandLine renders Command for display, quoting arguments with spaces.
func (d Daemon) CommandLine() string {
	parts := make([]string, len(d.Command))
	for i, arg := range d.Command {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			parts[i] = "\"" + strings.ReplaceAll(arg, "\"", "\\\"") + "\""
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}

// IsQuiet reports whether a daemon named name is silenced by allowlist.
// An empty allowlist silences nothing.
func IsQuiet(name string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return false
	}
	for _, allowed := range allowlist {
		if allowed == name {
			return false
		}
	}
	return true
}
