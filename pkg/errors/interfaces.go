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

// UserVisibleError is implemented by errors that carry an operator-facing
// message and a remediation the CLI prints after the error line.
type UserVisibleError interface {
	error

	// IsUserVisible returns true if this error should be shown to users.
	IsUserVisible() bool

	// UserMessage returns the short, jargon-free description.
	UserMessage() string

	// Suggestion returns the remediation, or "" when there is none.
	Suggestion() string
}

// ErrorClassifier lets callers branch on the error category.
// None of the devserver categories are retryable: the run is single-shot and
// the operator re-invokes after fixing the reported problem.
type ErrorClassifier interface {
	error

	// ErrorType returns "configuration", "precondition" or "registry".
	ErrorType() string

	// IsRetryable returns true if the operation should be retried.
	IsRetryable() bool
}
