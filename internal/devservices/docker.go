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

// Package devservices talks to the container manager that hosts the local
// infrastructure (message bus, databases).
package devservices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ContainerLister reports which containers are running.
type ContainerLister interface {
	RunningContainers(ctx context.Context) (map[string]bool, error)
}

// CommandRunner runs a command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

// Run executes name with args and returns stdout. Stderr is folded into the
// error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%s not found: %w", name, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// Docker lists containers through the docker CLI.
type Docker struct {
	Binary string
	Runner CommandRunner
}

// NewDocker creates a lister for the given docker binary.
func NewDocker(binary string) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{Binary: binary, Runner: ExecRunner{}}
}

// RunningContainers returns the names of running containers.
func (d *Docker) RunningContainers(ctx context.Context) (map[string]bool, error) {
	out, err := d.Runner.Run(ctx, d.Binary, "ps", "--filter", "status=running", "--format", "{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("listing running containers: %w", err)
	}

	running := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			running[name] = true
		}
	}
	return running, nil
}
