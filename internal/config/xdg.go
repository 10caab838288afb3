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

package config

import (
	"os"
	"path/filepath"
)

// settingsFileNames are probed in order in the working directory and the
// config directory.
var settingsFileNames = []string{"devserver.yaml", "devserver.yml", "devserver.toml"}

// ConfigDir returns the XDG config directory for the devserver.
// Respects XDG_CONFIG_HOME; falls back to ~/.config/devserver.
// Unlike a writer, the devserver never creates it.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devserver"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "devserver"), nil
}

// ResolvePath picks the settings file to load.
// Order: explicit path, $DEVSERVER_CONFIG, the working directory, the XDG
// config directory. Returns "" when none exists, meaning defaults only.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("DEVSERVER_CONFIG"); env != "" {
		return env
	}

	dirs := []string{"."}
	if dir, err := ConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		for _, name := range settingsFileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}
