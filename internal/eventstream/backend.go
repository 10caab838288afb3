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

// Package eventstream describes the capabilities of the configured event
// stream backend that affect which consumers a devserver run needs.
package eventstream

import (
	"github.com/tombee/devserver/internal/config"
)

// Backend is the capability surface the composer queries.
type Backend interface {
	// Name returns the configured backend name.
	Name() string

	// RequiresPostProcessForwarder reports whether post-processing is driven
	// by forwarder consumers.
	RequiresPostProcessForwarder() bool

	// IsMessageBusBacked reports whether events flow through the message bus.
	IsMessageBusBacked() bool
}

type backend struct {
	name      string
	forwarder bool
	bus       bool
}

func (b backend) Name() string                       { return b.name }
func (b backend) RequiresPostProcessForwarder() bool { return b.forwarder }
func (b backend) IsMessageBusBacked() bool           { return b.bus }

// FromSettings returns the backend named by settings. Unknown names behave
// like the snuba backend; settings validation rejects them earlier.
func FromSettings(name string) Backend {
	switch name {
	case config.EventStreamKafka:
		return backend{name: name, forwarder: true, bus: true}
	case config.EventStreamNoop:
		return backend{name: name}
	default:
		return backend{name: config.EventStreamSnuba}
	}
}
