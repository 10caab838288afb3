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

package errors_test

import (
	"errors"
	"testing"

	deverrors "github.com/tombee/devserver/pkg/errors"
)

func TestConfigurationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *deverrors.ConfigurationError
		wantMsg string
	}{
		{
			name:    "with key",
			err:     &deverrors.ConfigurationError{Key: "bind", Reason: "expected <host>:<port>, got nohost"},
			wantMsg: "configuration error at bind: expected <host>:<port>, got nohost",
		},
		{
			name:    "without key",
			err:     &deverrors.ConfigurationError{Reason: "bad settings"},
			wantMsg: "configuration error: bad settings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigurationError_Unwrap(t *testing.T) {
	cause := errors.New("yaml: line 3")
	err := deverrors.Wrap(&deverrors.ConfigurationError{Key: "config_file", Reason: "parse", Cause: cause}, "loading")

	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through the chain")
	}

	var cfgErr *deverrors.ConfigurationError
	if !deverrors.As(err, &cfgErr) {
		t.Fatal("As should find ConfigurationError")
	}
	if cfgErr.Key != "config_file" {
		t.Errorf("Key = %q", cfgErr.Key)
	}
}

func TestPreconditionError_UserVisible(t *testing.T) {
	err := &deverrors.PreconditionError{
		Dependency:  "sentry_kafka",
		Reason:      "container is not running",
		Remediation: "sentry devservices up kafka zookeeper",
	}

	var uv deverrors.UserVisibleError = err
	if !uv.IsUserVisible() {
		t.Error("precondition errors are user visible")
	}
	if uv.Suggestion() != "sentry devservices up kafka zookeeper" {
		t.Errorf("Suggestion() = %q", uv.Suggestion())
	}
	if got := err.Error(); got != "precondition failed for sentry_kafka: container is not running" {
		t.Errorf("Error() = %q", got)
	}
}

func TestRegistryError_Error(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{deverrors.RegistryOpDuplicate, "duplicate daemon: worker is already registered"},
		{deverrors.RegistryOpUnknown, "unknown daemon: worker"},
		{"other", "daemon registry error: worker"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			err := &deverrors.RegistryError{Name: "worker", Op: tt.op}
			if got := err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifiers(t *testing.T) {
	errs := map[string]deverrors.ErrorClassifier{
		"configuration": &deverrors.ConfigurationError{},
		"precondition":  &deverrors.PreconditionError{},
		"registry":      &deverrors.RegistryError{},
	}
	for want, err := range errs {
		if err.ErrorType() != want {
			t.Errorf("ErrorType() = %q, want %q", err.ErrorType(), want)
		}
		if err.IsRetryable() {
			t.Errorf("%s errors must not be retryable", want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if deverrors.Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if deverrors.Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
