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

package devserver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/devserver/internal/bootstrap"
	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/daemon"
	"github.com/tombee/devserver/internal/server"
	"github.com/tombee/devserver/internal/topology"
	deverrors "github.com/tombee/devserver/pkg/errors"
)

type fakeContainers struct {
	running map[string]bool
	calls   int
}

func (f *fakeContainers) RunningContainers(context.Context) (map[string]bool, error) {
	f.calls++
	return f.running, nil
}

// countingProber hands out sequential ports and counts allocations.
type countingProber struct {
	next  int
	calls int
}

func (p *countingProber) FreePort(string) (int, error) {
	p.calls++
	p.next++
	return 40000 + p.next, nil
}

type fakeAdmin struct {
	topics []string
}

func (f *fakeAdmin) CreateTopic(_ context.Context, _, topic string, _ config.TopicConfig, _ bool) error {
	f.topics = append(f.topics, topic)
	return nil
}

type fakeServer struct {
	cfg  server.Config
	code int
	ran  bool
	env  map[string]string
}

func (f *fakeServer) Run(context.Context) (int, error) {
	f.ran = true
	return f.code, nil
}

func (f *fakeServer) PrepareEnvironment() map[string]string { return f.env }

type fakeSupervisor struct {
	env     map[string]string
	daemons []daemon.Daemon
	code    int
}

func (f *fakeSupervisor) Add(d daemon.Daemon) error {
	f.daemons = append(f.daemons, d)
	return nil
}

func (f *fakeSupervisor) Run(context.Context) int { return f.code }

type harness struct {
	settings   *config.Settings
	containers *fakeContainers
	prober     *countingProber
	admin      *fakeAdmin
	server     *fakeServer
	supervisor *fakeSupervisor
	supBuilt   bool
	lookErr    error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := config.Default()
	s.ProjectRoot = t.TempDir()
	s.Devservices.Containers = map[string]config.ContainerConfig{}
	return &harness{
		settings: s,
		containers: &fakeContainers{running: map[string]bool{
			"sentry_zookeeper": true,
			"sentry_kafka":     true,
		}},
		prober:     &countingProber{},
		admin:      &fakeAdmin{},
		server:     &fakeServer{env: map[string]string{"UWSGI_HTTP": "127.0.0.1:8000"}},
		supervisor: &fakeSupervisor{},
		lookErr:    errors.New("not found"),
	}
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(h.settings, h.containers, h.prober, nil)
	require.NoError(t, err)
	r.lookPath = func(string) (string, error) { return "/usr/local/bin/https", h.lookErr }
	r.newAdmin = func(map[string]config.ClusterConfig, *slog.Logger) bootstrap.TopicAdmin { return h.admin }
	r.newServer = func(cfg server.Config, _ *slog.Logger) (Server, error) {
		h.server.cfg = cfg
		return h.server, nil
	}
	r.newSupervisor = func(env map[string]string, _ Options, _ *slog.Logger) Supervisor {
		h.supBuilt = true
		h.supervisor.env = env
		return h.supervisor
	}
	return r
}

func (h *harness) run(t *testing.T, opts Options) (*Result, error) {
	t.Helper()
	opts.Stdout = &bytes.Buffer{}
	opts.Stderr = &bytes.Buffer{}
	return h.runner(t).Run(context.Background(), opts)
}

func TestRun_Embedded(t *testing.T) {
	h := newHarness(t)
	h.server.code = 0

	res, err := h.run(t, Options{Topology: topology.Options{Reload: true}})
	require.NoError(t, err)

	assert.Equal(t, StateEmbedded, res.State)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, h.server.ran)
	assert.False(t, h.supBuilt, "embedded mode never constructs a supervisor")
	assert.Empty(t, h.admin.topics)
	assert.Equal(t, 8000, h.server.cfg.Port)
	assert.True(t, res.RunID.IsValid())
}

func TestRun_EmbeddedExitCodePropagates(t *testing.T) {
	h := newHarness(t)
	h.server.code = 3

	res, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRun_Supervised(t *testing.T) {
	h := newHarness(t)
	h.supervisor.code = 2

	res, err := h.run(t, Options{Topology: topology.Options{Watchers: true, Workers: true}})
	require.NoError(t, err)

	assert.Equal(t, StateSupervised, res.State)
	assert.Equal(t, 2, res.ExitCode)
	assert.False(t, h.server.ran)
	require.NotEmpty(t, h.supervisor.daemons)
	assert.Equal(t, daemon.Server, h.supervisor.daemons[len(h.supervisor.daemons)-1].Name)
	assert.Equal(t, "127.0.0.1:8000", h.supervisor.env["UWSGI_HTTP"], "server environment is merged into the overlay")
	assert.Equal(t, "true", h.supervisor.env["PYTHONUNBUFFERED"])
	assert.Equal(t, 8001, h.server.cfg.Port, "watchers move the server to the backend port")
}

func TestRun_DebugServerRunsInProcess(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, Options{Topology: topology.Options{Watchers: true, DebugServer: true}})
	require.NoError(t, err)

	assert.Equal(t, StateSupervised, res.State)
	assert.True(t, h.server.ran)
	for _, d := range h.supervisor.daemons {
		assert.NotEqual(t, daemon.Server, d.Name)
	}
	assert.NotContains(t, h.supervisor.env, "UWSGI_HTTP")
}

func TestRun_BootstrapsTopicsBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.settings.UseRelay = true

	res, err := h.run(t, Options{Topology: topology.Options{Ingest: true, Workers: true}})
	require.NoError(t, err)

	assert.Equal(t, StateSupervised, res.State)
	assert.Equal(t, 1, h.containers.calls, "containers are listed once per run")
	assert.Contains(t, h.admin.topics, "ingest-events")
	for _, topic := range res.Plan.Topics {
		assert.Contains(t, h.admin.topics, topic)
	}
}

func TestRun_IngestPreconditionAbortsBeforeAllocation(t *testing.T) {
	h := newHarness(t)
	h.settings.UseRelay = true
	h.containers.running = map[string]bool{"sentry_zookeeper": true}

	res, err := h.run(t, Options{Topology: topology.Options{Ingest: true, Watchers: true}})

	var pre *deverrors.PreconditionError
	require.True(t, errors.As(err, &pre), "got %v", err)
	assert.Equal(t, "sentry_kafka", pre.Dependency)
	assert.Equal(t, StateAborted, res.State)
	assert.Zero(t, h.prober.calls, "no ports are allocated after a failed precondition")
	assert.Empty(t, h.admin.topics)
	assert.False(t, h.supBuilt)
	assert.False(t, h.server.ran)
}

func TestRun_InvalidAddress(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, Options{Address: "http://localhost:8000"})

	var cfgErr *deverrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bind", cfgErr.Key)
	assert.Equal(t, StateAborted, res.State)
}

func TestRun_ConfigurationErrorStartsNothing(t *testing.T) {
	h := newHarness(t)
	h.settings.CeleryAlwaysEager = true

	res, err := h.run(t, Options{Topology: topology.Options{Workers: true}})

	var cfgErr *deverrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, StateAborted, res.State)
	assert.False(t, h.supBuilt)
	assert.False(t, h.server.ran)
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t)
	h.settings.UseRelay = true

	res, err := h.run(t, Options{DryRun: true, Topology: topology.Options{Ingest: true, Workers: true}})
	require.NoError(t, err)

	assert.Equal(t, StatePlanned, res.State)
	assert.NotNil(t, res.Plan)
	assert.Empty(t, h.admin.topics)
	assert.False(t, h.supBuilt)
	assert.False(t, h.server.ran)
}

func TestRun_TLSWarningIsBoxed(t *testing.T) {
	h := newHarness(t)
	h.settings.URLPrefix = "https://dev.getsentry.net:8000"

	var stderr bytes.Buffer
	r := h.runner(t)
	res, err := r.Run(context.Background(), Options{DryRun: true, Stdout: &bytes.Buffer{}, Stderr: &stderr})
	require.NoError(t, err)

	assert.Contains(t, res.Plan.Warnings, topology.WarnTLSSkipped)
	assert.Contains(t, stderr.String(), "brew install")
}

func TestNewRegistry(t *testing.T) {
	s := config.Default()
	s.Server.Command = []string{"gunicorn", "app"}
	s.Daemons = []config.DaemonSpec{{Name: "billing", Command: []string{"sentry", "run", "billing"}}}

	r, err := NewRegistry(s)
	require.NoError(t, err)

	srv, err := r.Lookup(daemon.Server)
	require.NoError(t, err)
	assert.Equal(t, []string{"gunicorn", "app"}, srv.Command)

	_, err = r.Lookup("billing")
	assert.NoError(t, err)

	s.Daemons = append(s.Daemons, config.DaemonSpec{Name: daemon.Worker, Command: []string{"x"}})
	_, err = NewRegistry(s)
	var regErr *deverrors.RegistryError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, deverrors.RegistryOpDuplicate, regErr.Op)
}
