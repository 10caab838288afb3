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

package server

import (
	"net"
	"sort"
	"strconv"
	"strings"
)

// defaultOptions are the application server settings used unless overridden.
func defaultOptions(workers int) map[string]string {
	if workers <= 0 {
		workers = 1
	}
	return map[string]string{
		"module":                  "sentry.wsgi:application",
		"protocol":                "http",
		"workers":                 strconv.Itoa(workers),
		"threads":                 "4",
		"http-timeout":            "30",
		"vacuum":                  "true",
		"thunder-lock":            "true",
		"buffer-size":             "32768",
		"post-buffering":          "65536",
		"need-app":                "true",
		"ignore-sigpipe":          "true",
		"ignore-write-errors":     "true",
		"disable-write-exception": "true",
		"die-on-term":             "true",
		"master":                  "true",
		"enable-threads":          "true",
		"lazy-apps":               "true",
		"single-interpreter":      "true",
	}
}

// resolveOptions layers overrides on the defaults and binds the socket of
// the chosen protocol unless an override already set or unset it.
func resolveOptions(host string, port int, workers int, overrides map[string]string) map[string]string {
	opts := defaultOptions(workers)
	for k, v := range overrides {
		opts[k] = v
	}
	socket := opts["protocol"] + "-socket"
	if _, ok := opts[socket]; !ok {
		opts[socket] = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return opts
}

// EnvKey is the environment variable the application server reads option
// name from.
func EnvKey(name string) string {
	return "UWSGI_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// optionsEnv converts options to environment variables. Empty values are
// unset options and produce no variable.
func optionsEnv(opts map[string]string) map[string]string {
	env := make(map[string]string, len(opts))
	for k, v := range opts {
		if v == "" {
			continue
		}
		env[EnvKey(k)] = v
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
