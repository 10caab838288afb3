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

// Package bootstrap makes sure the message-bus topics a run depends on exist
// before any consumer starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tombee/devserver/internal/config"
	devlog "github.com/tombee/devserver/internal/log"
	"github.com/tombee/devserver/internal/tracing"
	deverrors "github.com/tombee/devserver/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TopicAdmin creates topics. *kafka.Admin satisfies it.
type TopicAdmin interface {
	CreateTopic(ctx context.Context, cluster, topic string, spec config.TopicConfig, force bool) error
}

// Bootstrapper resolves topics onto clusters and creates them.
type Bootstrapper struct {
	admin  TopicAdmin
	topics map[string]config.TopicConfig
	logger *slog.Logger
}

// New creates a Bootstrapper over the static topic to cluster mapping.
func New(admin TopicAdmin, topics map[string]config.TopicConfig, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = devlog.Discard()
	}
	return &Bootstrapper{
		admin:  admin,
		topics: topics,
		logger: devlog.WithComponent(logger, "bootstrap"),
	}
}

// EnsureTopics creates every configured topic and every requested topic,
// force-recreating misconfigured ones. All requested topics are resolved
// before the first create request; an unmapped topic is a PreconditionError
// and nothing is created.
func (b *Bootstrapper) EnsureTopics(ctx context.Context, requested []string) (err error) {
	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "bootstrap.ensure_topics")
	defer func() { tracing.EndSpan(span, err) }()

	if missing := b.unmapped(requested); len(missing) > 0 {
		recordPrecondition()
		return &deverrors.PreconditionError{
			Dependency:  "kafka topic mapping",
			Reason:      fmt.Sprintf("no cluster configured for topic(s) %s", strings.Join(missing, ", ")),
			Remediation: "add the topic(s) under kafka.topics in the devserver settings",
		}
	}

	all := b.union(requested)
	span.SetAttributes(attribute.Int("bootstrap.topics", len(all)))

	for _, name := range all {
		spec := b.topics[name]
		if err := b.admin.CreateTopic(ctx, spec.Cluster, name, spec, true); err != nil {
			recordTopic(spec.Cluster, resultFailed)
			return deverrors.Wrapf(err, "bootstrapping topic %s on cluster %s", name, spec.Cluster)
		}
		recordTopic(spec.Cluster, resultEnsured)
		b.logger.Debug("topic ready", slog.String(devlog.TopicKey, name), slog.String(devlog.ClusterKey, spec.Cluster))
	}

	b.logger.Info("topics bootstrapped", slog.Int("count", len(all)))
	return nil
}

func (b *Bootstrapper) unmapped(requested []string) []string {
	var missing []string
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		if spec, ok := b.topics[name]; !ok || spec.Cluster == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// union returns the configured and requested topics, sorted and deduplicated.
func (b *Bootstrapper) union(requested []string) []string {
	set := make(map[string]struct{}, len(b.topics)+len(requested))
	for name, spec := range b.topics {
		if spec.Cluster != "" {
			set[name] = struct{}{}
		}
	}
	for _, name := range requested {
		set[name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
