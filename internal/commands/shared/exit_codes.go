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
	"errors"
	"fmt"
	"io"
	"os"

	deverrors "github.com/tombee/devserver/pkg/errors"
)

// Exit codes for errors raised before any process starts. A run that
// started processes exits with their aggregate code instead.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitPrecondition  = 3
	ExitRegistry      = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewSilentExit creates an error that only sets the exit code. Used to
// propagate the exit status of supervised processes.
func NewSilentExit(code int) *ExitError {
	return &ExitError{Code: code}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var cfgErr *deverrors.ConfigurationError
	var preErr *deverrors.PreconditionError
	var regErr *deverrors.RegistryError
	switch {
	case deverrors.As(err, &cfgErr):
		return ExitConfiguration
	case deverrors.As(err, &preErr):
		return ExitPrecondition
	case deverrors.As(err, &regErr):
		return ExitRegistry
	default:
		return ExitFailure
	}
}

// HandleExitError prints err and exits with the mapped code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}

func printError(w io.Writer, err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError(msg))
	}
	printUserVisibleSuggestion(w, err)
}

// printUserVisibleSuggestion checks if an error implements UserVisibleError
// and prints the suggestion if available.
func printUserVisibleSuggestion(w io.Writer, err error) {
	// Walk the error chain to find a UserVisibleError
	for err != nil {
		if userErr, ok := err.(deverrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
