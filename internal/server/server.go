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

// Package server runs the application web server as a child process.
//
// In embedded mode the server is the only process and runs in the
// foreground. In supervised mode the devserver only prepares the
// environment the supervised server daemon reads its settings from.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/lifecycle"
	devlog "github.com/tombee/devserver/internal/log"
)

// Config configures an HTTPServer.
type Config struct {
	Host    string
	Port    int
	Workers int

	// Command starts the server.
	Command []string

	// Dir is the working directory.
	Dir string

	// Env is the base environment overlay.
	Env map[string]string

	// Options override the server defaults. Empty values unset an option.
	Options map[string]string

	// Reload restarts the server on code changes. With the native
	// autoreload mode the server reloads itself; with watch mode the
	// devserver watches the project and restarts the command.
	Reload       bool
	Autoreload   string
	WatchInclude []string
	WatchExclude []string

	// Stdin defaults to os.Stdin so debuggers attached to the server can
	// read the terminal.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// StopTimeout bounds graceful shutdown before SIGKILL.
	StopTimeout time.Duration
}

// HTTPServer is the application web server.
type HTTPServer struct {
	cfg     Config
	options map[string]string
	logger  *slog.Logger

	lookupEnv func(string) (string, bool)
	environ   func() []string
}

// New creates a server. It does not start anything.
func New(cfg Config, logger *slog.Logger) (*HTTPServer, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("server: command must not be empty")
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = devlog.Discard()
	}
	return &HTTPServer{
		cfg:       cfg,
		options:   resolveOptions(cfg.Host, cfg.Port, cfg.Workers, cfg.Options),
		logger:    devlog.WithComponent(logger, "server"),
		lookupEnv: os.LookupEnv,
		environ:   os.Environ,
	}, nil
}

// Options returns the resolved server options.
func (s *HTTPServer) Options() map[string]string {
	out := make(map[string]string, len(s.options))
	for k, v := range s.options {
		out[k] = v
	}
	return out
}

// PrepareEnvironment returns the variables the server reads its options
// from, without binding anything. Variables already present in the process
// environment or the base overlay are left to their existing values.
func (s *HTTPServer) PrepareEnvironment() map[string]string {
	env := optionsEnv(s.options)
	for _, k := range sortedKeys(env) {
		if _, ok := s.lookupEnv(k); ok {
			delete(env, k)
			continue
		}
		if _, ok := s.cfg.Env[k]; ok {
			delete(env, k)
		}
	}
	return env
}

// Run starts the server in the foreground and blocks until it exits or ctx
// is cancelled. It returns the server's exit status.
func (s *HTTPServer) Run(ctx context.Context) (int, error) {
	if s.cfg.Reload && s.cfg.Autoreload == config.AutoreloadWatch {
		reloader, err := NewReloader(s.cfg.Dir, s.cfg.WatchInclude, s.cfg.WatchExclude, s.logger)
		if err != nil {
			return 1, err
		}
		return s.runReloading(ctx, reloader)
	}
	code, _, err := s.runOnce(ctx, nil)
	return code, err
}

func (s *HTTPServer) runReloading(ctx context.Context, reloader *Reloader) (int, error) {
	changes, err := reloader.Watch(ctx)
	if err != nil {
		return 1, fmt.Errorf("watching %s: %w", s.cfg.Dir, err)
	}
	for {
		code, restarted, err := s.runOnce(ctx, changes)
		if err != nil || !restarted {
			return code, err
		}
		recordReload()
		s.logger.Info("restarting server after code change")
	}
}

// runOnce runs the command until it exits, ctx is done, or restart fires.
func (s *HTTPServer) runOnce(ctx context.Context, restart <-chan struct{}) (code int, restarted bool, err error) {
	env := lifecycle.MergeEnv(s.environ(), s.cfg.Env, s.PrepareEnvironment())
	// The server stays in our process group: it owns the terminal in the
	// foreground and receives Ctrl-C alongside us.
	cmd := lifecycle.ForegroundCommand(s.cfg.Command, s.cfg.Dir, env)
	cmd.Stdin = s.cfg.Stdin
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr

	if err := cmd.Start(); err != nil {
		return 1, false, fmt.Errorf("starting server: %w", err)
	}
	s.logger.Debug("server started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("socket", s.options[s.options["protocol"]+"-socket"]))

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return lifecycle.ExitCode(waitErr), false, nil
	case <-ctx.Done():
	case _, ok := <-restart:
		// A closed channel means the watcher stopped with ctx.
		restarted = ok && ctx.Err() == nil
	}

	if err := lifecycle.StopProcess(cmd.Process.Pid, done, s.cfg.StopTimeout); err != nil {
		s.logger.Warn("failed to stop server", devlog.Error(err))
	}
	<-done
	if restarted {
		return 0, true, nil
	}
	return lifecycle.ExitCode(waitErr), false, nil
}
