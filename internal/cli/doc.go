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
Package cli provides the root command and global flags of the devserver CLI.

The root command is the devserver command itself; running the binary with an
optional ADDRESS starts the development environment. Subcommands cover
auxiliary tasks.

# Command Tree

	devserver [ADDRESS]   Start the development environment
	├── completion        Generate shell completion scripts
	├── version           Show version
	└── help              Show help

# Global Flags

	--verbose, -v   Debug logging
	--json          JSON output for --dry-run and version
	--config        Settings file (default: ./devserver.yaml or the XDG config dir)

# Exit Codes

	0     Success
	1     Unexpected failure
	2     Configuration error
	3     Precondition failed (e.g. message bus containers not running)
	4     Daemon registry error
	128+N Terminated by signal N

A run that started processes exits with the code of the first process to
exit.
*/
package cli
