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
	"errors"
	"fmt"
)

// Wrap annotates err with message. Returns nil when err is nil.
//
// Usage:
//
//	if err := admin.CreateTopic(ctx, cluster, topic, spec, true); err != nil {
//	    return errors.Wrap(err, "creating topic")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// As finds the first error in err's tree that matches target.
//
// Usage:
//
//	var precondition *PreconditionError
//	if errors.As(err, &precondition) {
//	    fmt.Println(precondition.Remediation)
//	}
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
