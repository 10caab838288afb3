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

package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// SignalError is the cancellation cause of a context cancelled by a signal.
type SignalError struct {
	Signal syscall.Signal
}

func (e *SignalError) Error() string {
	return "received " + e.Signal.String()
}

// ExitCode is 128 plus the signal number.
func (e *SignalError) ExitCode() int {
	return SignalExitBase + int(e.Signal)
}

// SignalFromContext returns the signal that cancelled ctx, if any.
func SignalFromContext(ctx context.Context) (*SignalError, bool) {
	var sigErr *SignalError
	if errors.As(context.Cause(ctx), &sigErr) {
		return sigErr, true
	}
	return nil, false
}

// NotifyContext returns a context cancelled with a *SignalError cause when
// one of sigs arrives. stop releases the signal handler.
func NotifyContext(parent context.Context, sigs ...os.Signal) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			if s, ok := sig.(syscall.Signal); ok {
				cancel(&SignalError{Signal: s})
			} else {
				cancel(errors.New(sig.String()))
			}
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel(context.Canceled)
	}
}
