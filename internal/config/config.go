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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	deverrors "github.com/tombee/devserver/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when settings validation fails.
	ErrInvalidConfig = errors.New("config: invalid settings")
)

// Event stream backends understood by the composer.
const (
	EventStreamSnuba = "snuba"
	EventStreamKafka = "kafka"
	EventStreamNoop  = "noop"
)

// Autoreload modes for the embedded server.
const (
	// AutoreloadNative delegates reloading to the application server (py-autoreload).
	AutoreloadNative = "native"
	// AutoreloadWatch restarts the server command when watched files change.
	AutoreloadWatch = "watch"
)

// Settings is the static description of the development environment: which
// commands exist, how topics map onto clusters, which infrastructure is
// expected. Per-invocation toggles live in topology.Options instead.
type Settings struct {
	// ProjectRoot is the working directory for every daemon.
	// Environment: DEVSERVER_PROJECT_ROOT
	ProjectRoot string `yaml:"project_root" toml:"project_root"`

	// Bind is the default host:port when none is passed on the command line.
	// Environment: SENTRY_DEVSERVER_BIND
	Bind string `yaml:"bind" toml:"bind"`

	// URLPrefix is the externally visible URL (system.url-prefix). An https
	// prefix on a port above 1024 makes the devserver front the backend with
	// the local TLS proxy.
	URLPrefix string `yaml:"url_prefix" toml:"url_prefix"`

	// UseSilos splits the server into region and control silos.
	// Environment: DEVSERVER_USE_SILOS
	UseSilos bool `yaml:"use_silos" toml:"use_silos"`

	// UseRelay enables message-bus-backed ingest.
	// Environment: DEVSERVER_USE_RELAY
	UseRelay bool `yaml:"use_relay" toml:"use_relay"`

	// UseProfiling adds the profiles ingest topic when UseRelay is set.
	UseProfiling bool `yaml:"use_profiling" toml:"use_profiling"`

	// UseMetricsDev runs the metrics indexer consumers with workers.
	UseMetricsDev bool `yaml:"use_metrics_dev" toml:"use_metrics_dev"`

	// ProcessSubscriptions runs the subscription result consumers with workers.
	ProcessSubscriptions bool `yaml:"dev_process_subscriptions" toml:"dev_process_subscriptions"`

	// CeleryAlwaysEager means tasks run inline; spawning workers is refused.
	CeleryAlwaysEager bool `yaml:"celery_always_eager" toml:"celery_always_eager"`

	// EventStream selects the event stream backend (snuba, kafka, noop).
	// Environment: DEVSERVER_EVENTSTREAM
	EventStream string `yaml:"eventstream" toml:"eventstream"`

	// Watchers are the frontend build watchers started with --watchers.
	Watchers []DaemonSpec `yaml:"watchers" toml:"watchers"`

	// ExtraWorkers names registered daemons to start alongside worker and cron.
	ExtraWorkers []string `yaml:"extra_workers" toml:"extra_workers"`

	// Daemons registers additional named daemons before composition.
	Daemons []DaemonSpec `yaml:"daemons" toml:"daemons"`

	// KafkaConsumers are consumers started on every run.
	KafkaConsumers []string `yaml:"kafka_consumers" toml:"kafka_consumers"`

	// LogsAllowlist, when non-empty, silences every daemon not listed.
	// Environment: DEVSERVER_LOGS_ALLOWLIST (comma separated)
	LogsAllowlist []string `yaml:"logs_allowlist" toml:"logs_allowlist"`

	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Devservices DevservicesConfig `yaml:"devservices" toml:"devservices"`
	Kafka       KafkaConfig       `yaml:"kafka" toml:"kafka"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
}

// DaemonSpec is a named command.
type DaemonSpec struct {
	Name    string   `yaml:"name" toml:"name"`
	Command []string `yaml:"command" toml:"command"`
}

// IngestConfig describes the infrastructure --ingest depends on.
type IngestConfig struct {
	// RequiredContainers must all be running for --ingest.
	RequiredContainers []string `yaml:"required_containers" toml:"required_containers"`

	// Remediation is printed when a required container is missing.
	Remediation string `yaml:"remediation" toml:"remediation"`
}

// DevservicesConfig describes the local infrastructure containers.
type DevservicesConfig struct {
	// Docker is the docker CLI binary.
	Docker string `yaml:"docker" toml:"docker"`

	// Containers maps service name to its devserver options.
	Containers map[string]ContainerConfig `yaml:"containers" toml:"containers"`
}

// ContainerConfig holds the devserver-relevant options of one devservice.
type ContainerConfig struct {
	// WithDevserver attaches the container's logs to the devserver output.
	WithDevserver bool `yaml:"with_devserver" toml:"with_devserver"`

	// RequiresRelay limits the service to runs with UseRelay.
	RequiresRelay bool `yaml:"requires_relay" toml:"requires_relay"`
}

// KafkaConfig is the static message-bus topology.
type KafkaConfig struct {
	Clusters map[string]ClusterConfig `yaml:"clusters" toml:"clusters"`
	Topics   map[string]TopicConfig   `yaml:"topics" toml:"topics"`
}

// ClusterConfig lists the bootstrap brokers of a cluster.
type ClusterConfig struct {
	Brokers []string `yaml:"brokers" toml:"brokers"`
}

// TopicConfig maps a topic onto a cluster.
type TopicConfig struct {
	Cluster           string `yaml:"cluster" toml:"cluster"`
	Partitions        int    `yaml:"partitions" toml:"partitions"`
	ReplicationFactor int    `yaml:"replication_factor" toml:"replication_factor"`
}

// ServerConfig describes the web server daemon.
type ServerConfig struct {
	// Command starts the web server.
	Command []string `yaml:"command" toml:"command"`

	// Autoreload is native or watch.
	Autoreload string `yaml:"autoreload" toml:"autoreload"`

	// WatchInclude and WatchExclude are doublestar patterns used in watch mode.
	WatchInclude []string `yaml:"watch_include" toml:"watch_include"`
	WatchExclude []string `yaml:"watch_exclude" toml:"watch_exclude"`
}

// Load loads settings from an optional YAML or TOML file, then applies
// environment overrides. The file format is chosen by extension.
// Environment variables take precedence over file-based settings.
func Load(path string) (*Settings, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &deverrors.ConfigurationError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &deverrors.ConfigurationError{
			Key:    "validation",
			Reason: err.Error(),
			Hint:   "fix the devserver settings file or the DEVSERVER_* environment",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Settings) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	return nil
}

// applyDefaults fills zero values left by a partial settings file.
func (c *Settings) applyDefaults() {
	def := Default()

	if c.ProjectRoot == "" {
		c.ProjectRoot = def.ProjectRoot
	}
	if c.Bind == "" {
		c.Bind = def.Bind
	}
	if c.EventStream == "" {
		c.EventStream = def.EventStream
	}
	if len(c.Ingest.RequiredContainers) == 0 {
		c.Ingest.RequiredContainers = def.Ingest.RequiredContainers
	}
	if c.Ingest.Remediation == "" {
		c.Ingest.Remediation = def.Ingest.Remediation
	}
	if c.Devservices.Docker == "" {
		c.Devservices.Docker = def.Devservices.Docker
	}
	if len(c.Server.Command) == 0 {
		c.Server.Command = def.Server.Command
	}
	if c.Server.Autoreload == "" {
		c.Server.Autoreload = def.Server.Autoreload
	}
	if len(c.Server.WatchInclude) == 0 {
		c.Server.WatchInclude = def.Server.WatchInclude
	}
	for name, topic := range c.Kafka.Topics {
		if topic.Partitions <= 0 {
			topic.Partitions = 1
		}
		if topic.ReplicationFactor <= 0 {
			topic.ReplicationFactor = 1
		}
		c.Kafka.Topics[name] = topic
	}
}

func (c *Settings) loadFromEnv() {
	if val := os.Getenv("DEVSERVER_PROJECT_ROOT"); val != "" {
		c.ProjectRoot = val
	}
	if val := os.Getenv("SENTRY_DEVSERVER_BIND"); val != "" {
		c.Bind = val
	}
	if val := os.Getenv("DEVSERVER_USE_SILOS"); val != "" {
		c.UseSilos = parseBool(val)
	}
	if val := os.Getenv("DEVSERVER_USE_RELAY"); val != "" {
		c.UseRelay = parseBool(val)
	}
	if val := os.Getenv("DEVSERVER_EVENTSTREAM"); val != "" {
		c.EventStream = strings.ToLower(val)
	}
	if val := os.Getenv("DEVSERVER_LOGS_ALLOWLIST"); val != "" {
		names := strings.Split(val, ",")
		c.LogsAllowlist = c.LogsAllowlist[:0]
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				c.LogsAllowlist = append(c.LogsAllowlist, n)
			}
		}
	}
}

// Validate checks that the settings are internally consistent.
// A topic requested at runtime without a cluster mapping is not a validation
// failure here; the bootstrapper reports it as a precondition.
func (c *Settings) Validate() error {
	var errs []string

	switch c.EventStream {
	case EventStreamSnuba, EventStreamKafka, EventStreamNoop:
	default:
		errs = append(errs, fmt.Sprintf("eventstream must be one of [snuba, kafka, noop], got %q", c.EventStream))
	}

	switch c.Server.Autoreload {
	case AutoreloadNative, AutoreloadWatch:
	default:
		errs = append(errs, fmt.Sprintf("server.autoreload must be one of [native, watch], got %q", c.Server.Autoreload))
	}

	if len(c.Server.Command) == 0 {
		errs = append(errs, "server.command must not be empty")
	}

	errs = append(errs, validateSpecs("watchers", c.Watchers)...)
	errs = append(errs, validateSpecs("daemons", c.Daemons)...)

	for _, name := range sortedKeys(c.Kafka.Clusters) {
		if len(c.Kafka.Clusters[name].Brokers) == 0 {
			errs = append(errs, fmt.Sprintf("kafka.clusters.%s.brokers must not be empty", name))
		}
	}
	for _, name := range sortedKeys(c.Kafka.Topics) {
		cluster := c.Kafka.Topics[name].Cluster
		if _, ok := c.Kafka.Clusters[cluster]; !ok {
			errs = append(errs, fmt.Sprintf("kafka.topics.%s references unknown cluster %q", name, cluster))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// ResolvedProjectRoot returns the absolute, symlink-free project root.
func (c *Settings) ResolvedProjectRoot() (string, error) {
	abs, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

func validateSpecs(section string, specs []DaemonSpec) []string {
	var errs []string
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			errs = append(errs, fmt.Sprintf("%s[%d].name must not be empty", section, i))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Sprintf("%s[%d].name %q is repeated", section, i, spec.Name))
		}
		seen[spec.Name] = true
		if len(spec.Command) == 0 {
			errs = append(errs, fmt.Sprintf("%s.%s.command must not be empty", section, spec.Name))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}
