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

// Package topology decides which daemons a devserver run needs, in which
// order, with which environment, and which message-bus topics they consume.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/daemon"
	"github.com/tombee/devserver/internal/devservices"
	"github.com/tombee/devserver/internal/eventstream"
	devlog "github.com/tombee/devserver/internal/log"
	"github.com/tombee/devserver/internal/ports"
	"github.com/tombee/devserver/internal/tracing"
	deverrors "github.com/tombee/devserver/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// WarnTLSSkipped is reported when a TLS frontend was wanted but the proxy
// binary is missing.
const WarnTLSSkipped = "missing `https` on your `$PATH`, but https is needed; install it with `brew install mattrobenolt/stuff/https`"

const (
	warnSPAWithoutWatchers = "Using experimental SPA mode without watchers enabled has no effect"
	warnControlCron        = "control silo cron is not silo aware yet; both silos schedule each other's cron jobs"
)

// Composer turns settings and toggles into a Plan. Compose is pure apart
// from the container query of the ingest check and reading the project
// .env file; topic creation is left to the caller.
type Composer struct {
	settings   *config.Settings
	registry   *daemon.Registry
	containers devservices.ContainerLister
	events     eventstream.Backend
	logger     *slog.Logger

	getenv     func(string) string
	readDotenv func(root string) (map[string]string, error)
}

// NewComposer creates a composer. The registry must be fully populated
// before the first Compose call.
func NewComposer(settings *config.Settings, registry *daemon.Registry, containers devservices.ContainerLister, events eventstream.Backend, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = devlog.Discard()
	}
	return &Composer{
		settings:   settings,
		registry:   registry,
		containers: containers,
		events:     events,
		logger:     devlog.WithComponent(logger, "topology"),
		getenv:     os.Getenv,
		readDotenv: readDotenv,
	}
}

// CheckIngest fails with a PreconditionError naming every required
// infrastructure container that is not running.
func (c *Composer) CheckIngest(ctx context.Context) error {
	running, err := c.containers.RunningContainers(ctx)
	if err != nil {
		return &deverrors.PreconditionError{
			Dependency:  "container manager",
			Reason:      err.Error(),
			Remediation: "make sure docker is running",
		}
	}

	var missing []string
	for _, name := range c.settings.Ingest.RequiredContainers {
		if !running[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &deverrors.PreconditionError{
		Dependency:  strings.Join(missing, ", "),
		Reason:      "required ingest containers are not running",
		Remediation: c.settings.Ingest.Remediation,
	}
}

// Compose computes the topology for opts against the port plan pp. On error
// no plan is returned.
func (c *Composer) Compose(ctx context.Context, opts Options, pp *ports.Plan) (plan *Plan, err error) {
	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "topology.compose")
	defer func() {
		if plan != nil {
			span.SetAttributes(
				attribute.String("topology.mode", string(plan.Mode)),
				attribute.Int("topology.daemons", len(plan.Daemons)),
				attribute.Int("topology.topics", len(plan.Topics)),
			)
		}
		tracing.EndSpan(span, err)
	}()

	// 1. ingest needs the message-bus containers up front.
	if opts.Ingest && !opts.IngestChecked {
		if err := c.CheckIngest(ctx); err != nil {
			return nil, err
		}
	}

	dir, err := c.settings.ResolvedProjectRoot()
	if err != nil {
		return nil, &deverrors.ConfigurationError{
			Key:    "project_root",
			Reason: fmt.Sprintf("cannot resolve %q", c.settings.ProjectRoot),
			Cause:  err,
		}
	}
	dotenv, err := c.readDotenv(dir)
	if err != nil {
		return nil, &deverrors.ConfigurationError{Key: "project_root", Reason: err.Error(), Cause: err}
	}

	plan = &Plan{
		Env:           c.baseEnv(opts, pp, dotenv),
		ServerOptions: c.serverOptions(opts, pp),
		Ports:         pp,
		Dir:           dir,
	}
	topics := make(topicSet)
	topics.add(c.settings.KafkaConsumers...)
	var daemons []daemon.Daemon
	needsBus := false

	if pp.TLSSkipped {
		plan.Warnings = append(plan.Warnings, WarnTLSSkipped)
	}
	if opts.ExperimentalSPA && !opts.Watchers {
		plan.Warnings = append(plan.Warnings, warnSPAWithoutWatchers)
	}

	// 2. frontend watchers own the proxy port.
	if opts.Watchers {
		for _, w := range c.settings.Watchers {
			daemons = append(daemons, daemon.Daemon{Name: w.Name, Command: append([]string(nil), w.Command...)})
		}
	}

	busIngest := opts.Ingest && c.settings.UseRelay

	// 3. workers and the consumers they imply.
	if opts.Workers {
		workers, workerTopics, bus, err := c.composeWorkers(busIngest)
		if err != nil {
			return nil, err
		}
		daemons = append(daemons, workers...)
		topics.add(workerTopics...)
		needsBus = needsBus || bus
	}

	// 4. message-bus-backed ingest.
	if busIngest {
		topics.add(ingestTopics...)
		if c.settings.UseProfiling {
			topics.add(profilesTopic)
		}
	}

	// 5. occurrences.
	if opts.OccurrenceIngest {
		topics.add(occurrencesTopic)
	}

	// 6. TLS frontend.
	if pp.TLS != nil {
		daemons = append(daemons, daemon.Daemon{
			Name: tlsDaemonName,
			Command: []string{
				"https",
				"-host", pp.TLS.Host,
				"-listen", fmt.Sprintf("%s:%d", pp.Host, pp.TLS.Port),
				pp.BackendAddr(),
			},
		})
	}

	// 7. topics must exist before consumers start.
	plan.Topics = topics.sorted()
	plan.NeedsBootstrap = c.events.IsMessageBusBacked() || len(plan.Topics) > 0 || needsBus

	// 8. consumers.
	daemons = append(daemons, consumers(plan.Topics, opts.DevConsumer)...)

	// 9. devservices attached to the output stream.
	daemons = append(daemons, c.attachDaemons()...)

	// 10. per-request log lines when sharing the stream with other daemons.
	if len(daemons) > 0 {
		plan.ServerOptions["log-format"] = requestLogFormat
	} else {
		plan.ServerOptions["log-format"] = timestampedLogFormat
	}

	// 11. nothing to supervise.
	if len(daemons) == 0 && !c.settings.UseSilos {
		plan.Mode = ModeEmbedded
		plan.Daemons = []daemon.Daemon{}
		c.logger.Debug("composed embedded topology", slog.Int("topics", len(plan.Topics)))
		return plan, nil
	}

	// 12. supervised; the server goes last unless it runs in-process.
	plan.Mode = ModeSupervised
	plan.Env["PYTHONUNBUFFERED"] = "true"
	if !opts.DebugServer {
		server, err := c.registry.Lookup(daemon.Server)
		if err != nil {
			return nil, err
		}
		daemons = append(daemons, server)
	}

	// 13. control silo.
	if c.settings.UseSilos {
		control, err := c.controlDaemons(opts, pp)
		if err != nil {
			return nil, err
		}
		if opts.Workers {
			plan.Warnings = append(plan.Warnings, warnControlCron)
		}
		daemons = append(daemons, control...)
	}

	for i := range daemons {
		daemons[i].Dir = dir
		daemons[i].Quiet = daemon.IsQuiet(daemons[i].Name, c.settings.LogsAllowlist)
	}
	plan.Daemons = daemons

	c.logger.Debug("composed supervised topology",
		slog.Int("daemons", len(daemons)),
		slog.Int("topics", len(plan.Topics)),
		slog.Bool("bootstrap", plan.NeedsBootstrap))

	return plan, nil
}

// composeWorkers returns the worker daemons, the topics they consume, and
// whether message-bus infrastructure is required regardless of topics.
func (c *Composer) composeWorkers(busIngest bool) ([]daemon.Daemon, []string, bool, error) {
	if c.settings.CeleryAlwaysEager {
		return nil, nil, false, &deverrors.ConfigurationError{
			Key:    "celery_always_eager",
			Reason: "workers cannot be spawned while tasks run eagerly",
			Hint:   "disable celery_always_eager in your settings file to spawn workers",
		}
	}

	var daemons []daemon.Daemon
	for _, name := range append([]string{daemon.Worker, daemon.Cron}, c.settings.ExtraWorkers...) {
		d, err := c.registry.Lookup(name)
		if err != nil {
			return nil, nil, false, err
		}
		daemons = append(daemons, d)
	}

	var topics []string
	if c.events.RequiresPostProcessForwarder() {
		topics = append(topics, postProcessForwarderTopics...)
	}

	if c.settings.ProcessSubscriptions {
		if !c.events.IsMessageBusBacked() {
			return nil, nil, false, c.requireBusBackend("dev_process_subscriptions")
		}
		topics = append(topics, subscriptionResultTopics...)
	}

	bus := false
	if c.settings.UseMetricsDev && busIngest {
		// The metrics indexer produces straight to the bus.
		if !c.events.IsMessageBusBacked() {
			return nil, nil, false, c.requireBusBackend("use_metrics_dev")
		}
		topics = append(topics, metricsTopics...)
		bus = true
	}

	return daemons, topics, bus, nil
}

func (c *Composer) requireBusBackend(key string) error {
	return &deverrors.ConfigurationError{
		Key:    key,
		Reason: fmt.Sprintf("requires the %s event stream, got %s", config.EventStreamKafka, c.events.Name()),
		Hint:   fmt.Sprintf("set eventstream: %s in the devserver settings", config.EventStreamKafka),
	}
}

func consumers(topics []string, fold bool) []daemon.Daemon {
	if len(topics) == 0 {
		return nil
	}
	if fold {
		cmd := append([]string{"sentry", "run", "dev-consumer"}, topics...)
		return []daemon.Daemon{{Name: devConsumerName, Command: cmd}}
	}

	out := make([]daemon.Daemon, 0, len(topics))
	for _, topic := range topics {
		cmd := append([]string{"sentry", "run", "consumer", topic}, consumerArgs...)
		out = append(out, daemon.Daemon{Name: topic, Command: cmd})
	}
	return out
}

func (c *Composer) attachDaemons() []daemon.Daemon {
	names := make([]string, 0, len(c.settings.Devservices.Containers))
	for name, cc := range c.settings.Devservices.Containers {
		if !cc.WithDevserver {
			continue
		}
		if cc.RequiresRelay && !c.settings.UseRelay {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]daemon.Daemon, 0, len(names))
	for _, name := range names {
		out = append(out, daemon.Daemon{
			Name:    name,
			Command: []string{"sentry", "devservices", "attach", "--fast", name},
		})
	}
	return out
}

// controlDaemons duplicates the server, and with workers cron and worker,
// as control silo daemons.
func (c *Composer) controlDaemons(opts Options, pp *ports.Plan) ([]daemon.Daemon, error) {
	services := []string{daemon.Server}
	if opts.Workers {
		services = append(services, daemon.Cron, daemon.Worker)
	}

	out := make([]daemon.Daemon, 0, len(services))
	for _, name := range services {
		d, err := c.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		d.Name = daemon.ControlPrefix + d.Name
		d.Env = controlEnv(pp)
		out = append(out, d)
	}
	return out, nil
}
