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

package shared

import (
	"fmt"
	"strings"
)

// DryRunAction represents the type of action that would be performed.
type DryRunAction string

const (
	// DryRunActionBind indicates a listener would be bound.
	DryRunActionBind DryRunAction = "BIND"
	// DryRunActionCreate indicates a resource would be created.
	DryRunActionCreate DryRunAction = "CREATE"
	// DryRunActionStart indicates a process would be started.
	DryRunActionStart DryRunAction = "START"
)

// DryRunOutput formats dry-run output in a consistent way across commands.
// It shows what actions would be performed without executing them.
type DryRunOutput struct {
	actions []string
	notes   []string
}

// NewDryRunOutput creates a new dry-run output formatter.
func NewDryRunOutput() *DryRunOutput {
	return &DryRunOutput{}
}

// Add records an action on target.
func (d *DryRunOutput) Add(action DryRunAction, target string) {
	d.actions = append(d.actions, fmt.Sprintf("%s: %s", action, target))
}

// AddWithDescription records an action with additional description.
func (d *DryRunOutput) AddWithDescription(action DryRunAction, target, description string) {
	d.actions = append(d.actions, fmt.Sprintf("%s: %s (%s)", action, target, description))
}

// Note adds a line printed after the actions.
func (d *DryRunOutput) Note(msg string) {
	d.notes = append(d.notes, msg)
}

// String returns the formatted dry-run output.
// Format:
//
//	Dry run: The following actions would be performed:
//
//	BIND: 127.0.0.1:8000 (proxy)
//	CREATE: topic ingest-events
//	START: worker (sentry run worker)
//
//	Run without --dry-run to execute.
func (d *DryRunOutput) String() string {
	var sb strings.Builder
	if len(d.actions) == 0 {
		sb.WriteString("Dry run: No actions would be performed.\n")
	} else {
		sb.WriteString("Dry run: The following actions would be performed:\n\n")
		for _, action := range d.actions {
			sb.WriteString(action)
			sb.WriteString("\n")
		}
	}
	if len(d.notes) > 0 {
		sb.WriteString("\n")
		for _, n := range d.notes {
			sb.WriteString(n)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nRun without --dry-run to execute.")
	return sb.String()
}
