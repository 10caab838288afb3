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

// Package devserver runs a composed development environment.
//
// A run moves through validation, port allocation, composition and
// bootstrap before anything starts. A failure in any of those steps aborts
// the run with nothing started. Afterwards the topology either runs the web
// server in the foreground (embedded) or hands every daemon to the
// supervisor (supervised).
package devserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/devserver/internal/bootstrap"
	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/daemon"
	"github.com/tombee/devserver/internal/devservices"
	"github.com/tombee/devserver/internal/eventstream"
	"github.com/tombee/devserver/internal/kafka"
	devlog "github.com/tombee/devserver/internal/log"
	"github.com/tombee/devserver/internal/ports"
	"github.com/tombee/devserver/internal/server"
	"github.com/tombee/devserver/internal/supervisor"
	"github.com/tombee/devserver/internal/topology"
	"github.com/tombee/devserver/internal/tracing"
)

// State is where a run ended.
type State string

const (
	// StateAborted means a step before process start failed.
	StateAborted State = "aborted"
	// StatePlanned means the plan was composed and nothing was started.
	StatePlanned State = "planned"
	// StateEmbedded means the web server ran in the foreground.
	StateEmbedded State = "ran-embedded"
	// StateSupervised means the daemons ran under the supervisor.
	StateSupervised State = "ran-supervised"
)

// tlsProxyBinary is the TLS terminating proxy looked up on PATH.
const tlsProxyBinary = "https"

// Options are the per-invocation inputs of a run.
type Options struct {
	// Address overrides the configured bind address.
	Address string

	Topology topology.Options

	// DryRun stops after composition.
	DryRun bool

	Stdout io.Writer
	Stderr io.Writer

	// Color forces supervisor colours on or off. Nil detects a terminal.
	Color *bool

	// GracePeriod is the time between SIGTERM and SIGKILL on shutdown.
	GracePeriod time.Duration
}

// Result describes a finished run.
type Result struct {
	RunID    tracing.RunID
	State    State
	ExitCode int
	Plan     *topology.Plan
}

// Server is the application web server.
type Server interface {
	Run(ctx context.Context) (int, error)
	PrepareEnvironment() map[string]string
}

// Supervisor runs daemons until the first exits.
type Supervisor interface {
	Add(d daemon.Daemon) error
	Run(ctx context.Context) int
}

// Runner wires the run steps together.
type Runner struct {
	settings  *config.Settings
	composer  *topology.Composer
	allocator *ports.Allocator
	logger    *slog.Logger

	lookPath      func(string) (string, error)
	newAdmin      func(clusters map[string]config.ClusterConfig, logger *slog.Logger) bootstrap.TopicAdmin
	newServer     func(cfg server.Config, logger *slog.Logger) (Server, error)
	newSupervisor func(env map[string]string, opts Options, logger *slog.Logger) Supervisor
}

// NewRunner creates a runner for settings. A nil containers lister uses
// the configured docker binary; a nil prober uses the operating system.
func NewRunner(settings *config.Settings, containers devservices.ContainerLister, prober ports.Prober, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = devlog.Discard()
	}
	if containers == nil {
		containers = devservices.NewDocker(settings.Devservices.Docker)
	}

	registry, err := NewRegistry(settings)
	if err != nil {
		return nil, err
	}

	return &Runner{
		settings:  settings,
		composer:  topology.NewComposer(settings, registry, containers, eventstream.FromSettings(settings.EventStream), logger),
		allocator: ports.NewAllocator(prober),
		logger:    devlog.WithComponent(logger, "devserver"),
		lookPath:  exec.LookPath,
		newAdmin: func(clusters map[string]config.ClusterConfig, logger *slog.Logger) bootstrap.TopicAdmin {
			return kafka.NewAdmin(clusters, logger)
		},
		newServer: func(cfg server.Config, logger *slog.Logger) (Server, error) {
			return server.New(cfg, logger)
		},
		newSupervisor: defaultSupervisor,
	}, nil
}

// NewRegistry builds the daemon registry for settings: the built-ins, the
// configured server command and every extra daemon.
func NewRegistry(settings *config.Settings) (*daemon.Registry, error) {
	registry := daemon.NewRegistry()
	if len(settings.Server.Command) > 0 {
		if err := registry.Override(daemon.Server, settings.Server.Command); err != nil {
			return nil, err
		}
	}
	for _, spec := range settings.Daemons {
		if err := registry.Register(spec.Name, spec.Command); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func defaultSupervisor(env map[string]string, opts Options, logger *slog.Logger) Supervisor {
	printer := supervisor.NewPrinter(opts.Stdout, supervisor.PrinterOptions{
		Prefix: opts.Topology.Prefix,
		Pretty: opts.Topology.Pretty,
		Color:  opts.Color,
	})
	return supervisor.NewManager(printer,
		supervisor.WithEnv(env),
		supervisor.WithGracePeriod(opts.GracePeriod),
		supervisor.WithLogger(logger))
}

// Run executes one devserver invocation. An error means the run aborted
// before any process started; the exit code of a run that started
// processes is in the Result.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}

	runID := tracing.NewRunID()
	ctx = tracing.ToContext(ctx, runID)
	logger := devlog.WithRunContext(r.logger, runID.String())
	res := &Result{RunID: runID, State: StateAborted}

	plan, err := r.plan(ctx, opts, logger)
	if err != nil {
		logger.Debug("run aborted", devlog.Error(err))
		return res, err
	}
	res.Plan = plan
	r.report(opts.Stderr, plan, logger)

	if opts.DryRun {
		res.State = StatePlanned
		return res, nil
	}

	if plan.NeedsBootstrap {
		b := bootstrap.New(r.newAdmin(r.settings.Kafka.Clusters, logger), r.settings.Kafka.Topics, logger)
		if err := b.EnsureTopics(ctx, plan.Topics); err != nil {
			return res, err
		}
	}

	srv, err := r.newServer(r.serverConfig(plan, opts), logger)
	if err != nil {
		return res, err
	}

	if plan.Mode == topology.ModeEmbedded {
		logger.Info("starting web server", slog.String(devlog.ModeKey, string(plan.Mode)), slog.String("addr", plan.Ports.BackendAddr()))
		code, err := srv.Run(ctx)
		res.State = StateEmbedded
		res.ExitCode = code
		return res, err
	}

	res.State = StateSupervised
	res.ExitCode, err = r.supervise(ctx, plan, srv, opts, logger)
	return res, err
}

// plan runs every step that can abort: bind parsing, the ingest check,
// port allocation and composition.
func (r *Runner) plan(ctx context.Context, opts Options, logger *slog.Logger) (*topology.Plan, error) {
	bind := opts.Address
	if bind == "" {
		bind = r.settings.Bind
	}
	host, port, err := ports.ParseBind(bind)
	if err != nil {
		return nil, err
	}

	topts := opts.Topology
	if topts.Ingest {
		if err := r.composer.CheckIngest(ctx); err != nil {
			return nil, err
		}
		topts.IngestChecked = true
	}

	_, lookErr := r.lookPath(tlsProxyBinary)
	pp, err := r.allocator.Allocate(ports.Request{
		Host:              host,
		Port:              port,
		Watchers:          opts.Topology.Watchers,
		Silo:              r.settings.UseSilos,
		URLPrefix:         r.settings.URLPrefix,
		TLSProxyAvailable: lookErr == nil,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("ports allocated",
		slog.Int("proxy", pp.ProxyPort),
		slog.Int("backend", pp.BackendPort),
		slog.Int("control", pp.ControlPort))

	return r.composer.Compose(ctx, topts, pp)
}

var warningBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("214")).
	Padding(0, 1)

// report prints plan warnings. The missing TLS proxy gets a box.
func (r *Runner) report(w io.Writer, plan *topology.Plan, logger *slog.Logger) {
	for _, warning := range plan.Warnings {
		logger.Warn(warning)
		if warning == topology.WarnTLSSkipped {
			fmt.Fprintln(w, warningBox.Render(warning))
		}
	}
}

func (r *Runner) serverConfig(plan *topology.Plan, opts Options) server.Config {
	return server.Config{
		Host:         plan.Ports.Host,
		Port:         plan.Ports.BackendPort,
		Workers:      1,
		Command:      r.settings.Server.Command,
		Dir:          plan.Dir,
		Env:          plan.Env,
		Options:      plan.ServerOptions,
		Reload:       opts.Topology.Reload,
		Autoreload:   r.settings.Server.Autoreload,
		WatchInclude: r.settings.Server.WatchInclude,
		WatchExclude: r.settings.Server.WatchExclude,
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
		StopTimeout:  opts.GracePeriod,
	}
}

// supervise hands the plan's daemons to the supervisor and blocks until it
// returns. With the debug server the web server runs in this process next
// to the supervisor instead of as a daemon.
func (r *Runner) supervise(ctx context.Context, plan *topology.Plan, srv Server, opts Options, logger *slog.Logger) (int, error) {
	env := make(map[string]string, len(plan.Env))
	for k, v := range plan.Env {
		env[k] = v
	}
	if !opts.Topology.DebugServer {
		for k, v := range srv.PrepareEnvironment() {
			env[k] = v
		}
	}

	sup := r.newSupervisor(env, opts, logger)
	for _, d := range plan.Daemons {
		if err := sup.Add(d); err != nil {
			return 1, err
		}
	}
	logger.Info("starting daemons",
		slog.String(devlog.ModeKey, string(plan.Mode)),
		slog.Any("daemons", plan.DaemonNames()))

	var wg sync.WaitGroup
	debugCtx, stopDebug := context.WithCancel(ctx)
	defer stopDebug()
	if opts.Topology.DebugServer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := srv.Run(debugCtx); err != nil {
				logger.Error("debug server failed", devlog.Error(err))
			}
		}()
	}

	code := sup.Run(ctx)
	stopDebug()
	wg.Wait()
	return code, nil
}
