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

package daemon

import (
	"sort"
	"sync"

	deverrors "github.com/tombee/devserver/pkg/errors"
)

// builtins are registered by NewRegistry. Worker and cron autoreload on their own.
var builtins = map[string][]string{
	Worker: {"sentry", "run", "worker", "-c", "1", "--autoreload"},
	Cron:   {"sentry", "run", "cron", "--autoreload"},
	Server: {"sentry", "run", "web"},
}

// Registry maps daemon names to launch commands.
//
// Registration happens once, before composition; composition only reads.
// The mutex keeps misuse from corrupting the map but does not make
// concurrent registration and composition meaningful.
type Registry struct {
	mu       sync.RWMutex
	commands map[string][]string
}

// NewRegistry creates a registry holding the built-in server, worker and cron.
func NewRegistry() *Registry {
	r := &Registry{commands: make(map[string][]string, len(builtins))}
	for name, cmd := range builtins {
		r.commands[name] = append([]string(nil), cmd...)
	}
	return r
}

// Register adds a named command. A name that already exists is rejected
// with a RegistryError and the registry is left unchanged.
func (r *Registry) Register(name string, command []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[name]; ok {
		return &deverrors.RegistryError{Name: name, Op: deverrors.RegistryOpDuplicate}
	}
	r.commands[name] = append([]string(nil), command...)
	return nil
}

// Override replaces the command of an existing daemon. Used to point the
// built-in server at the configured server command.
func (r *Registry) Override(name string, command []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[name]; !ok {
		return &deverrors.RegistryError{Name: name, Op: deverrors.RegistryOpUnknown}
	}
	r.commands[name] = append([]string(nil), command...)
	return nil
}

// Lookup returns the daemon registered under name.
func (r *Registry) Lookup(name string) (Daemon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	if !ok {
		return Daemon{}, &deverrors.RegistryError{Name: name, Op: deverrors.RegistryOpUnknown}
	}
	return Daemon{Name: name, Command: append([]string(nil), cmd...)}, nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
