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

// Package devserver implements the command that starts the local
// development environment.
package devserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/devserver/internal/commands/shared"
	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/devserver"
	"github.com/tombee/devserver/internal/lifecycle"
	devlog "github.com/tombee/devserver/internal/log"
	"github.com/tombee/devserver/internal/topology"
	"github.com/tombee/devserver/internal/tracing"
)

// flags are the command line inputs of one invocation.
type flags struct {
	topology    topology.Options
	dryRun      bool
	metricsAddr string
	traceFile   string
	gracePeriod time.Duration
}

// NewCommand creates the devserver command.
func NewCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "devserver [ADDRESS]",
		Short: "Start a light-weight web server for development",
		Long: `Starts the application web server together with the daemons the selected
features need: frontend watchers, background workers, message-bus consumers
and devservices containers.

ADDRESS is <host>:<port> and defaults to $SENTRY_DEVSERVER_BIND or the
configured bind address.`,
		Example: `  devserver
  devserver --workers 0.0.0.0:8000
  devserver --no-watchers --ingest --dry-run --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var address string
			if len(args) == 1 {
				address = args[0]
			}
			return run(cmd, f, address)
		},
	}

	fs := cmd.Flags()
	t := &f.topology
	shared.BoolToggle(fs, &t.Reload, "reload", true, "Autoreload the server on code changes")
	shared.BoolToggle(fs, &t.Watchers, "watchers", true, "Run the frontend asset watchers")
	shared.BoolToggle(fs, &t.Workers, "workers", false, "Run background workers and cron")
	shared.BoolToggle(fs, &t.Ingest, "ingest", false, "Run ingest consumers (requires the message bus)")
	shared.BoolToggle(fs, &t.OccurrenceIngest, "occurrence-ingest", false, "Run the issue occurrence consumer")
	shared.BoolToggle(fs, &t.DevConsumer, "dev-consumer", false, "Fold every consumer into one dev consumer process")
	shared.BoolToggle(fs, &t.ExperimentalSPA, "experimental-spa", false, "Serve the single page application (requires watchers)")
	shared.BoolToggle(fs, &t.DebugServer, "debug-server", false, "Run the web server in-process for debugging")
	shared.BoolToggle(fs, &t.Pretty, "pretty", false, "Highlight log levels and status codes")
	shared.BoolToggle(fs, &t.Prefix, "prefix", true, "Prefix daemon output with a timestamp and name")
	fs.StringVar(&t.Environment, "environment", "development", "Deployment environment name")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the composed plan without starting anything")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&f.traceFile, "trace-file", "", "Write trace spans as JSON to this file")
	fs.DurationVar(&f.gracePeriod, "grace-period", 5*time.Second, "Time between SIGTERM and SIGKILL on shutdown")

	return cmd
}

func run(cmd *cobra.Command, f *flags, address string) error {
	logCfg := devlog.FromEnv()
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	logger := devlog.New(logCfg)

	settings, err := config.Load(config.ResolvePath(shared.GetConfigPath()))
	if err != nil {
		return err
	}

	ctx, stop := lifecycle.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, f.traceFile)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	if f.metricsAddr != "" {
		addr, err := devserver.ServeMetrics(ctx, f.metricsAddr, logger)
		if err != nil {
			return fmt.Errorf("serving metrics on %s: %w", f.metricsAddr, err)
		}
		logger.Info("serving metrics", slog.String("addr", addr.String()))
	}

	runner, err := devserver.NewRunner(settings, nil, nil, logger)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, devserver.Options{
		Address:     address,
		Topology:    f.topology,
		DryRun:      f.dryRun,
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
		GracePeriod: f.gracePeriod,
	})
	if err != nil {
		return err
	}

	if res.State == devserver.StatePlanned {
		return printPlan(cmd.OutOrStdout(), res)
	}
	if res.ExitCode != 0 {
		return shared.NewSilentExit(res.ExitCode)
	}
	return nil
}

// setupTracing exports spans to path. The returned func flushes and closes.
func setupTracing(ctx context.Context, path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	version, _, _ := shared.GetVersion()
	provider, err := tracing.Setup(ctx, tracing.Config{ServiceVersion: version, Output: file})
	if err != nil {
		file.Close()
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
		file.Close()
	}, nil
}

type planResponse struct {
	shared.JSONResponse
	RunID string         `json:"run_id"`
	Plan  *topology.Plan `json:"plan"`
}

func printPlan(w io.Writer, res *devserver.Result) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, planResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "devserver", Success: true},
			RunID:        res.RunID.String(),
			Plan:         res.Plan,
		})
	}
	fmt.Fprintln(w, renderPlan(res.Plan))
	return nil
}

func renderPlan(plan *topology.Plan) string {
	out := shared.NewDryRunOutput()
	pp := plan.Ports

	if pp.ProxyPort != 0 {
		out.AddWithDescription(shared.DryRunActionBind, fmt.Sprintf("%s:%d", pp.Host, pp.ProxyPort), "frontend proxy")
	}
	out.AddWithDescription(shared.DryRunActionBind, pp.BackendAddr(), "web server")
	if pp.TLS != nil {
		out.AddWithDescription(shared.DryRunActionBind, fmt.Sprintf("%s:%d", pp.Host, pp.TLS.Port), "https for "+pp.TLS.Host)
	}
	for _, topic := range plan.Topics {
		out.Add(shared.DryRunActionCreate, "topic "+topic)
	}
	for _, d := range plan.Daemons {
		desc := d.CommandLine()
		if d.Quiet {
			desc += ", quiet"
		}
		out.AddWithDescription(shared.DryRunActionStart, d.Name, desc)
	}
	if plan.Mode == topology.ModeEmbedded {
		out.AddWithDescription(shared.DryRunActionStart, "server", "in the foreground")
	}

	out.Note(shared.RenderLabel("mode: ") + string(plan.Mode))
	if plan.NeedsBootstrap {
		out.Note(shared.RenderLabel("bootstrap: ") + "topics are created before any daemon starts")
	}
	for _, w := range plan.Warnings {
		out.Note(shared.RenderWarn(w))
	}
	if len(plan.Warnings) == 0 {
		out.Note(shared.RenderOK("no warnings"))
	}
	if len(plan.ServerOptions) > 0 {
		keys := make([]string, 0, len(plan.ServerOptions))
		for k, v := range plan.ServerOptions {
			if v == "" {
				v = "(unset)"
			}
			keys = append(keys, k+"="+v)
		}
		sort.Strings(keys)
		out.Note(shared.RenderLabel("server options: ") + strings.Join(keys, " "))
	}
	return out.String()
}
