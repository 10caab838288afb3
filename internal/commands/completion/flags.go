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

package completion

import (
	"github.com/spf13/cobra"

	"github.com/tombee/devserver/internal/config"
)

// Register attaches flag and argument completion to the devserver command.
func Register(cmd *cobra.Command) {
	cmd.ValidArgsFunction = CompleteAddress
	_ = cmd.RegisterFlagCompletionFunc("environment", CompleteEnvironments)
	if cmd.Flags().Lookup("config") != nil || cmd.PersistentFlags().Lookup("config") != nil {
		_ = cmd.RegisterFlagCompletionFunc("config", CompleteSettingsFile)
	}
}

// CompleteEnvironments provides completion for --environment values.
func CompleteEnvironments(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"development\tLocal development",
			"production\tProduction asset builds",
			"test\tTest settings",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteAddress offers the configured bind address for ADDRESS.
func CompleteAddress(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		path := ""
		if f := cmd.Flags().Lookup("config"); f != nil {
			path = f.Value.String()
		}
		settings, err := config.Load(config.ResolvePath(path))
		if err != nil {
			settings = config.Default()
		}
		return []string{settings.Bind + "\tConfigured bind address"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteSettingsFile restricts --config to YAML and TOML files.
func CompleteSettingsFile(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
}

// SafeCompletionWrapper runs fn and turns a nil result or a panic into an
// empty completion list.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
