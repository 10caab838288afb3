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
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

var (
	// ErrProcessNotRunning is returned when the process group does not exist.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrShutdownTimeout is returned when the group doesn't exit within the timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// SignalExitBase is added to a signal number to form an exit status.
const SignalExitBase = 128

// SendSignal sends sig to every process in the group led by pid.
func SendSignal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrProcessNotRunning
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return ErrProcessNotRunning
		}
		return fmt.Errorf("failed to send signal %v to process group %d: %w", sig, pid, err)
	}
	return nil
}

// SendProcessSignal sends sig to pid alone, leaving the rest of its
// process group untouched.
func SendProcessSignal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrProcessNotRunning
	}
	if err := syscall.Kill(pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return ErrProcessNotRunning
		}
		return fmt.Errorf("failed to send signal %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// StopGroup sends SIGTERM to the group and waits for done to close.
// After timeout the group is killed with SIGKILL. A group that is already
// gone is not an error.
func StopGroup(pid int, done <-chan struct{}, timeout time.Duration) error {
	return stop(func(sig syscall.Signal) error { return SendSignal(pid, sig) },
		fmt.Sprintf("process group %d", pid), done, timeout)
}

// StopProcess is StopGroup for a child started with ForegroundCommand,
// which shares our process group and so must be signalled by pid.
func StopProcess(pid int, done <-chan struct{}, timeout time.Duration) error {
	return stop(func(sig syscall.Signal) error { return SendProcessSignal(pid, sig) },
		fmt.Sprintf("process %d", pid), done, timeout)
}

func stop(send func(syscall.Signal) error, what string, done <-chan struct{}, timeout time.Duration) error {
	if err := send(syscall.SIGTERM); err != nil {
		if errors.Is(err, ErrProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	if err := send(syscall.SIGKILL); err != nil {
		if errors.Is(err, ErrProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	// Wait a short time for SIGKILL to take effect
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("%s did not die after SIGKILL: %w", what, ErrShutdownTimeout)
	}
}

// ExitCode converts the error returned by exec.Cmd.Wait into an exit status.
// A nil error is 0. A process killed by a signal yields 128+signal. Errors
// that are not exit errors (the command never ran) yield 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return SignalExitBase + int(status.Signal())
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
