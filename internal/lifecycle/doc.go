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

/*
Package lifecycle starts child processes in their own process groups and
stops them.

Every daemon runs as the leader of a new process group so that signals reach
the whole tree a command spawns (shell wrappers, autoreloaders, worker
pools):

	cmd := lifecycle.Command(argv, dir, lifecycle.MergeEnv(os.Environ(), base, overlay))
	if err := cmd.Start(); err != nil {
	    // Handle error
	}
	done := make(chan struct{})
	go func() { cmd.Wait(); close(done) }()

	// later
	lifecycle.StopGroup(cmd.Process.Pid, done, 5*time.Second)

ExitCode maps the result of Wait onto a shell-style exit status, 128+signal
for processes killed by a signal.
*/
package lifecycle
