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

package topology

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tombee/devserver/internal/config"
	"github.com/tombee/devserver/internal/ports"
)

const nodeMemoryHint = "--max-old-space-size=4096"

// readDotenv returns the variables of <root>/.env. A missing file yields
// an empty map.
func readDotenv(root string) (map[string]string, error) {
	vars, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	return vars, nil
}

// baseEnv builds the overlay every process receives. dotenv values have the
// lowest precedence.
func (c *Composer) baseEnv(opts Options, pp *ports.Plan, dotenv map[string]string) map[string]string {
	env := make(map[string]string, len(dotenv)+16)
	for k, v := range dotenv {
		env[k] = v
	}

	environment := opts.Environment
	if environment == "" {
		environment = "development"
	}
	env["SENTRY_ENVIRONMENT"] = environment
	// Third party libraries only recognise "production".
	if strings.HasPrefix(environment, "prod") {
		env["NODE_ENV"] = "production"
	} else {
		env["NODE_ENV"] = environment
	}

	port := strconv.Itoa(pp.RequestedPort)
	env["SENTRY_SYSTEM_URL_PREFIX"] = "http://localhost:" + port
	env["SENTRY_SYSTEM_BASE_HOSTNAME"] = "localhost:" + port
	env["SENTRY_ORGANIZATION_BASE_HOSTNAME"] = "{slug}.localhost:" + port
	env["SENTRY_ORGANIZATION_URL_TEMPLATE"] = "http://{hostname}"
	env["SENTRY_REGION_API_URL_TEMPLATE"] = "http://{region}.localhost:" + port

	if opts.ExperimentalSPA {
		env["SENTRY_UI_DEV_ONLY"] = "1"
	}

	if opts.Watchers {
		env["FORCE_WEBPACK_DEV_SERVER"] = "1"
		env["SENTRY_WEBPACK_PROXY_HOST"] = pp.Host
		env["SENTRY_WEBPACK_PROXY_PORT"] = strconv.Itoa(pp.ProxyPort)
		env["SENTRY_BACKEND_PORT"] = strconv.Itoa(pp.BackendPort)
		if c.settings.UseSilos {
			env["SENTRY_CONTROL_SILO_PORT"] = strconv.Itoa(pp.ControlPort)
		}
		env["NODE_OPTIONS"] = strings.TrimLeft(c.getenv("NODE_OPTIONS")+" "+nodeMemoryHint, " ")
	}

	if c.settings.UseRelay {
		env["SENTRY_USE_RELAY"] = "1"
	} else {
		env["SENTRY_USE_RELAY"] = ""
	}

	if c.settings.UseSilos {
		env["SENTRY_SILO_MODE"] = "REGION"
		env["SENTRY_REGION"] = "us"
	}

	return env
}

// controlEnv is the overlay that turns a region daemon into a control silo
// daemon.
func controlEnv(pp *ports.Plan) map[string]string {
	port := strconv.Itoa(pp.ControlPort)
	return map[string]string{
		"SENTRY_SILO_MODE":      "CONTROL",
		"SENTRY_REGION":         "",
		"SENTRY_DEVSERVER_BIND": "localhost:" + port,
		"UWSGI_HTTP_SOCKET":     "127.0.0.1:" + port,
	}
}

// serverOptions are the application server overrides for local development.
func (c *Composer) serverOptions(opts Options, pp *ports.Plan) map[string]string {
	o := map[string]string{
		"http-keepalive":      "true",
		"worker-reload-mercy": "2",
		"honour-stdin":        "true",
		"limit-post":          strconv.Itoa(1 << 30),
		"http-chunked-input":  "true",
		"thunder-lock":        "false",
		"timeout":             "600",
		"harakiri":            "600",
	}

	if opts.Reload && c.settings.Server.Autoreload == config.AutoreloadNative {
		o["py-autoreload"] = "1"
	}

	if opts.Watchers {
		o["protocol"] = "http"
	} else {
		// No proxy in front, so the server speaks HTTP itself.
		o["http"] = pp.BackendAddr()
		o["protocol"] = "uwsgi"
		o["uwsgi-socket"] = ""
	}
	return o
}
