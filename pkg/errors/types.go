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

package errors

import (
	"fmt"
)

// ConfigurationError represents malformed input or an invalid option combination.
// Use this for a bad bind address, an unreadable settings file, or options that
// cannot be used together.
type ConfigurationError struct {
	// Key identifies the option or setting at fault (e.g., "bind", "eventstream")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Hint provides actionable guidance for fixing the error
	Hint string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ConfigurationError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigurationError) UserMessage() string { return e.Reason }

// Suggestion implements UserVisibleError.
func (e *ConfigurationError) Suggestion() string { return e.Hint }

// ErrorType implements ErrorClassifier.
func (e *ConfigurationError) ErrorType() string { return "configuration" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigurationError) IsRetryable() bool { return false }

// PreconditionError represents missing infrastructure the run depends on.
// Use this when a required container is not running or a topic has no
// cluster mapping.
type PreconditionError struct {
	// Dependency names what is missing (e.g., "sentry_kafka", "topic ingest-events")
	Dependency string

	// Reason explains why the dependency is considered missing
	Reason string

	// Remediation is the command or action that fixes the problem
	Remediation string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %s", e.Dependency, e.Reason)
}

// IsUserVisible implements UserVisibleError.
func (e *PreconditionError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *PreconditionError) UserMessage() string { return e.Reason }

// Suggestion implements UserVisibleError.
func (e *PreconditionError) Suggestion() string { return e.Remediation }

// ErrorType implements ErrorClassifier.
func (e *PreconditionError) ErrorType() string { return "precondition" }

// IsRetryable implements ErrorClassifier.
func (e *PreconditionError) IsRetryable() bool { return false }

// Registry operations reported by RegistryError.
const (
	RegistryOpDuplicate = "duplicate"
	RegistryOpUnknown   = "unknown"
)

// RegistryError represents a daemon registry misuse: registering a name twice
// or looking up a name that was never registered.
type RegistryError struct {
	// Name is the daemon name involved
	Name string

	// Op is RegistryOpDuplicate or RegistryOpUnknown
	Op string
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	switch e.Op {
	case RegistryOpDuplicate:
		return fmt.Sprintf("duplicate daemon: %s is already registered", e.Name)
	case RegistryOpUnknown:
		return fmt.Sprintf("unknown daemon: %s", e.Name)
	default:
		return fmt.Sprintf("daemon registry error: %s", e.Name)
	}
}

// ErrorType implements ErrorClassifier.
func (e *RegistryError) ErrorType() string { return "registry" }

// IsRetryable implements ErrorClassifier.
func (e *RegistryError) IsRetryable() bool { return false }
