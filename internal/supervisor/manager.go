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

// Package supervisor runs a group of daemons as one foreground command.
//
// Output of every daemon is multiplexed through a Printer. The first daemon
// to exit decides the aggregate exit code and stops the rest, so a crash of
// any daemon ends the whole run.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/tombee/devserver/internal/daemon"
	"github.com/tombee/devserver/internal/lifecycle"
	devlog "github.com/tombee/devserver/internal/log"
)

// ErrDuplicateProcess is returned when a name is added twice.
var ErrDuplicateProcess = errors.New("supervisor: duplicate process")

// Exit codes for processes that never ran.
const (
	exitCommandNotFound = 127
	exitStartFailure    = 1
)

// Manager runs processes concurrently until the first one exits.
type Manager struct {
	printer *Printer
	procs   []daemon.Daemon
	names   map[string]bool
	env     map[string]string
	grace   time.Duration
	logger  *slog.Logger

	environ func() []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithEnv sets the overlay applied to every process before its own.
func WithEnv(env map[string]string) Option {
	return func(m *Manager) { m.env = env }
}

// WithGracePeriod sets how long processes get between SIGTERM and SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager printing through printer.
func NewManager(printer *Printer, opts ...Option) *Manager {
	m := &Manager{
		printer: printer,
		names:   make(map[string]bool),
		grace:   5 * time.Second,
		logger:  devlog.Discard(),
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = devlog.WithComponent(m.logger, "supervisor")
	return m
}

// Add registers a process. Processes start in the order they were added.
func (m *Manager) Add(d daemon.Daemon) error {
	if d.Name == "" || len(d.Command) == 0 {
		return fmt.Errorf("supervisor: process needs a name and a command")
	}
	if m.names[d.Name] {
		return fmt.Errorf("%w: %s", ErrDuplicateProcess, d.Name)
	}
	m.names[d.Name] = true
	m.procs = append(m.procs, d)
	m.printer.Register(d.Name)
	return nil
}

type exit struct {
	name string
	code int
	err  error
}

type running struct {
	pid int
}

// Run starts every process and blocks until all have exited. The returned
// code is that of the first process to exit, or 128+signal when ctx was
// cancelled by a signal first.
func (m *Manager) Run(ctx context.Context) int {
	exits := make(chan exit, len(m.procs))
	procs := make(map[string]*running, len(m.procs))

	for _, d := range m.procs {
		if r := m.start(d, exits); r != nil {
			procs[d.Name] = r
		}
	}

	code := -1
	stopping := false
	var kill <-chan time.Time
	ctxDone := ctx.Done()

	stop := func() {
		stopping = true
		m.system("sending SIGTERM to all processes")
		for name, r := range procs {
			if err := lifecycle.SendSignal(r.pid, syscall.SIGTERM); err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
				m.logger.Warn("failed to signal process", slog.String(devlog.DaemonKey, name), devlog.Error(err))
			}
		}
		kill = time.After(m.grace)
	}

	for remaining := len(m.procs); remaining > 0; {
		select {
		case e := <-exits:
			remaining--
			delete(procs, e.name)
			recordExit(e.name, e.code)
			if e.err != nil {
				m.system(fmt.Sprintf("%s failed to start: %v", e.name, e.err))
			} else {
				m.system(fmt.Sprintf("%s exited with code %d", e.name, e.code))
			}
			if code < 0 {
				code = e.code
			}
			if !stopping {
				stop()
			}

		case <-ctxDone:
			ctxDone = nil
			if sig, ok := lifecycle.SignalFromContext(ctx); ok {
				m.system(sig.Signal.String() + " received")
				if code < 0 {
					code = sig.ExitCode()
				}
			}
			if !stopping {
				stop()
			}

		case <-kill:
			kill = nil
			for name, r := range procs {
				m.system("sending SIGKILL to " + name)
				if err := lifecycle.SendSignal(r.pid, syscall.SIGKILL); err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
					m.logger.Warn("failed to kill process", slog.String(devlog.DaemonKey, name), devlog.Error(err))
				}
			}
		}
	}

	if code < 0 {
		code = 0
	}
	return code
}

// start launches d. A process that cannot start reports its exit
// immediately and nil is returned.
func (m *Manager) start(d daemon.Daemon, exits chan<- exit) *running {
	stdout := &lineWriter{name: d.Name, printer: m.printer, quiet: d.Quiet}
	stderr := &lineWriter{name: d.Name, printer: m.printer, quiet: d.Quiet}

	cmd := lifecycle.Command(d.Command, d.Dir, lifecycle.MergeEnv(m.environ(), m.env, d.Env))
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		code := exitStartFailure
		if errors.Is(err, exec.ErrNotFound) {
			code = exitCommandNotFound
		}
		exits <- exit{name: d.Name, code: code, err: err}
		return nil
	}

	pid := cmd.Process.Pid
	recordStart(d.Name)
	m.system(fmt.Sprintf("%s started (pid=%s)", d.Name, strconv.Itoa(pid)))
	m.logger.Debug("process started", slog.String(devlog.DaemonKey, d.Name), slog.Int("pid", pid), slog.Bool("quiet", d.Quiet))

	go func() {
		err := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		recordStopped()
		exits <- exit{name: d.Name, code: lifecycle.ExitCode(err)}
	}()
	return &running{pid: pid}
}

func (m *Manager) system(text string) {
	m.printer.Write(Message{Name: SystemName, Text: text, Time: time.Now()})
}
