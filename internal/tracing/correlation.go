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

package tracing

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// RunID identifies one devserver invocation in logs and spans.
// It uses RFC 4122 UUID format (36 characters).
type RunID string

type runIDKeyType struct{}

var runIDKey = runIDKeyType{}

// uuidRegex validates RFC 4122 UUID format.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// NewRunID generates a new run ID.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func (r RunID) String() string {
	return string(r)
}

// IsValid checks if the run ID is a valid UUID.
func (r RunID) IsValid() bool {
	return uuidRegex.MatchString(string(r))
}

// ToContext adds the run ID to the context.
func ToContext(ctx context.Context, id RunID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// FromContext returns the run ID stored in ctx, or "" if there is none.
func FromContext(ctx context.Context) RunID {
	if id, ok := ctx.Value(runIDKey).(RunID); ok {
		return id
	}
	return ""
}
