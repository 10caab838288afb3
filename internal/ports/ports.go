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

// Package ports derives the listening ports of a devserver run from the
// requested bind address.
//
// With watchers the frontend dev server owns the requested port and proxies
// to the backend one port up; the control silo sits ten ports above the
// requested port and shifts with the backend:
//
//	requested 8000, no watchers: backend 8000, control 8010
//	requested 8000, watchers:    proxy 8000, backend 8001, control 8011
package ports

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	deverrors "github.com/tombee/devserver/pkg/errors"
)

const (
	// ControlOffset is the distance between the requested port and the control silo port.
	ControlOffset = 10
	// WatcherShift moves backend and control ports when watchers own the requested port.
	WatcherShift = 1
)

// Plan is the resolved set of ports for one run. It is never mutated once
// Allocate returns.
type Plan struct {
	Host string

	// RequestedPort is the port from the bind address.
	RequestedPort int

	// ProxyPort is where external clients connect when watchers proxy the
	// backend. Zero means no proxy.
	ProxyPort int

	// BackendPort is where the application server listens.
	BackendPort int

	// ControlPort is where the control silo server listens.
	ControlPort int

	// TLS is set when a TLS proxy fronts the backend.
	TLS *TLSFrontend

	// TLSSkipped is set when TLS was needed but no proxy binary was found.
	TLSSkipped bool
}

// TLSFrontend describes the https proxy daemon.
type TLSFrontend struct {
	// Host is the public hostname served by the proxy.
	Host string
	// Port is the public https port.
	Port int
}

// BackendAddr returns host:backend.
func (p *Plan) BackendAddr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.BackendPort))
}

// Request is the input to Allocate.
type Request struct {
	Host     string
	Port     int
	Watchers bool
	Silo     bool

	// URLPrefix is the externally visible URL; an https prefix on a port
	// above 1024 requests a TLS frontend.
	URLPrefix string

	// TLSProxyAvailable reports whether the https proxy binary is on PATH.
	TLSProxyAvailable bool
}

// Prober returns a free port on host.
type Prober interface {
	FreePort(host string) (int, error)
}

// Allocator computes port plans.
type Allocator struct {
	prober Prober
}

// NewAllocator creates an allocator. A nil prober uses the operating system.
func NewAllocator(prober Prober) *Allocator {
	if prober == nil {
		prober = OSProber{}
	}
	return &Allocator{prober: prober}
}

// Allocate derives the port plan for req. The only failure is the ephemeral
// port probe for a TLS backend.
func (a *Allocator) Allocate(req Request) (*Plan, error) {
	plan := &Plan{
		Host:          req.Host,
		RequestedPort: req.Port,
		BackendPort:   req.Port,
		ControlPort:   req.Port + ControlOffset,
	}

	if req.Watchers {
		plan.ProxyPort = req.Port
		plan.BackendPort = req.Port + WatcherShift
		plan.ControlPort += WatcherShift
	}

	tlsHost, tlsPort, needsTLS := tlsFrontend(req.URLPrefix)
	if !needsTLS {
		return plan, nil
	}
	if !req.TLSProxyAvailable {
		plan.TLSSkipped = true
		return plan, nil
	}

	port, err := a.prober.FreePort(req.Host)
	if err != nil {
		return nil, deverrors.Wrap(err, "allocating backend port behind TLS proxy")
	}
	plan.BackendPort = port
	plan.TLS = &TLSFrontend{Host: tlsHost, Port: tlsPort}

	return plan, nil
}

// tlsFrontend reports whether prefix asks for https on a port a local user
// can bind (above 1024).
func tlsFrontend(prefix string) (string, int, bool) {
	if prefix == "" {
		return "", 0, false
	}
	u, err := url.Parse(prefix)
	if err != nil || u.Scheme != "https" {
		return "", 0, false
	}
	port := 443
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, false
		}
		port = n
	}
	if port <= 1024 {
		return "", 0, false
	}
	return u.Hostname(), port, true
}

// ParseBind splits a host:port bind address. The host is required, the port
// must be numeric, and no scheme is accepted.
func ParseBind(bind string) (string, int, error) {
	invalid := func(reason string) error {
		return &deverrors.ConfigurationError{
			Key:    "bind",
			Reason: fmt.Sprintf("expected <host>:<port>, got %q (%s)", bind, reason),
			Hint:   "pass an address such as 127.0.0.1:8000",
		}
	}

	if strings.Contains(bind, "://") {
		return "", 0, invalid("scheme not allowed")
	}
	host, portStr, ok := strings.Cut(bind, ":")
	if !ok {
		return "", 0, invalid("missing port")
	}
	if host == "" {
		return "", 0, invalid("missing host")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, invalid("port is not a number")
	}
	if port < 1 || port > 65535 {
		return "", 0, invalid("port out of range")
	}
	return host, port, nil
}
