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

package shared

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BoolToggle registers a --name/--no-name flag pair bound to p. The flag
// given last on the command line wins.
func BoolToggle(fs *pflag.FlagSet, p *bool, name string, value bool, usage string) {
	*p = value
	fs.Var(&toggleValue{p: p, on: true}, name, usage)
	fs.Var(&toggleValue{p: p, on: false}, "no-"+name, "Disable --"+name)
	fs.Lookup(name).NoOptDefVal = "true"
	fs.Lookup("no-" + name).NoOptDefVal = "true"
}

// toggleValue sets the shared bool to on when its flag is given.
type toggleValue struct {
	p  *bool
	on bool
}

func (t *toggleValue) String() string {
	if t.p == nil {
		return "false"
	}
	if t.on {
		return boolString(*t.p)
	}
	return boolString(!*t.p)
}

func (t *toggleValue) Set(s string) error {
	switch s {
	case "true", "1", "":
		*t.p = t.on
	case "false", "0":
		*t.p = !t.on
	default:
		return fmt.Errorf("invalid boolean value %q", s)
	}
	return nil
}

func (t *toggleValue) Type() string { return "bool" }

// IsBoolFlag lets pflag accept the flag without a value.
func (t *toggleValue) IsBoolFlag() bool { return true }

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
