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

package lifecycle

import (
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Command builds a command that runs as the leader of a new process group.
// argv must not be empty.
func Command(argv []string, dir string, env []string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Create new process group so the whole tree can be signalled
		Setpgid: true,
	}
	return cmd
}

// ForegroundCommand builds a command that stays in our process group. Use
// it for a child that reads the controlling terminal: a background group
// reading the tty is stopped with SIGTTIN. Terminal signals such as Ctrl-C
// reach the child directly; stop it with StopProcess.
func ForegroundCommand(argv []string, dir string, env []string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	return cmd
}

// MergeEnv applies overlays to base, later overlays winning. base is a list
// of KEY=VALUE entries such as os.Environ(). The result keeps the order of
// base, with new keys appended in sorted order.
func MergeEnv(base []string, overlays ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	var added []string
	for _, overlay := range overlays {
		for k, v := range overlay {
			if _, seen := merged[k]; !seen {
				added = append(added, k)
			}
			merged[k] = v
		}
	}
	sort.Strings(added)
	order = append(order, added...)

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}
