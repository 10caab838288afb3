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

package ports

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	deverrors "github.com/tombee/devserver/pkg/errors"
)

type fakeProber struct {
	port  int
	err   error
	calls int
}

func (f *fakeProber) FreePort(string) (int, error) {
	f.calls++
	return f.port, f.err
}

func TestAllocate_PortRelations(t *testing.T) {
	for _, watchers := range []bool{false, true} {
		for _, silo := range []bool{false, true} {
			for _, port := range []int{1025, 8000, 9000} {
				name := "port=" + strconv.Itoa(port) + "/watchers=" + strconv.FormatBool(watchers) + "/silo=" + strconv.FormatBool(silo)
				t.Run(name, func(t *testing.T) {
					plan, err := NewAllocator(&fakeProber{}).Allocate(Request{
						Host: "127.0.0.1", Port: port, Watchers: watchers, Silo: silo,
					})
					require.NoError(t, err)

					shift := 0
					if watchers {
						shift = 1
						assert.Equal(t, port, plan.ProxyPort)
					} else {
						assert.Zero(t, plan.ProxyPort, "no proxy without watchers")
					}
					assert.Equal(t, port+shift, plan.BackendPort)
					assert.Equal(t, port+10+shift, plan.ControlPort)
					assert.NotEqual(t, plan.BackendPort, plan.ControlPort)
					assert.Nil(t, plan.TLS)
				})
			}
		}
	}
}

func TestAllocate_TLS(t *testing.T) {
	t.Run("https prefix with proxy binary re-derives backend", func(t *testing.T) {
		prober := &fakeProber{port: 54321}
		plan, err := NewAllocator(prober).Allocate(Request{
			Host: "127.0.0.1", Port: 8000, Watchers: true,
			URLPrefix: "https://dev.getsentry.net:8000", TLSProxyAvailable: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 54321, plan.BackendPort)
		assert.Equal(t, 8011, plan.ControlPort, "control port is independent of the TLS backend")
		require.NotNil(t, plan.TLS)
		assert.Equal(t, "dev.getsentry.net", plan.TLS.Host)
		assert.Equal(t, 8000, plan.TLS.Port)
		assert.Equal(t, "127.0.0.1:54321", plan.BackendAddr())
	})

	t.Run("missing proxy binary keeps port and flags skip", func(t *testing.T) {
		prober := &fakeProber{port: 54321}
		plan, err := NewAllocator(prober).Allocate(Request{
			Host: "127.0.0.1", Port: 8000,
			URLPrefix: "https://dev.getsentry.net:8000", TLSProxyAvailable: false,
		})
		require.NoError(t, err)
		assert.Equal(t, 8000, plan.BackendPort)
		assert.True(t, plan.TLSSkipped)
		assert.Nil(t, plan.TLS)
		assert.Zero(t, prober.calls, "no probe without a proxy binary")
	})

	t.Run("privileged https port does not need proxy", func(t *testing.T) {
		prober := &fakeProber{port: 54321}
		plan, err := NewAllocator(prober).Allocate(Request{
			Host: "127.0.0.1", Port: 8000,
			URLPrefix: "https://sentry.io", TLSProxyAvailable: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 8000, plan.BackendPort)
		assert.False(t, plan.TLSSkipped)
		assert.Zero(t, prober.calls)
	})

	t.Run("probe failure is fatal", func(t *testing.T) {
		prober := &fakeProber{err: errors.New("address in use")}
		_, err := NewAllocator(prober).Allocate(Request{
			Host: "127.0.0.1", Port: 8000,
			URLPrefix: "https://localhost:8443", TLSProxyAvailable: true,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address in use")
	})
}

func TestParseBind(t *testing.T) {
	host, port, err := ParseBind("127.0.0.1:8000")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 8000, port)

	for _, bad := range []string{"nohost", "host:notaport", ":8000", "http://localhost:8000", "localhost:0", "localhost:70000", ""} {
		t.Run(bad, func(t *testing.T) {
			_, _, err := ParseBind(bad)
			var cfgErr *deverrors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
			assert.Equal(t, "bind", cfgErr.Key)
		})
	}
}

func TestOSProber_ReleasesPort(t *testing.T) {
	port, err := OSProber{}.FreePort("127.0.0.1")
	require.NoError(t, err)
	require.NotZero(t, port)

	// The probe must not keep the port bound.
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	l.Close()
}
