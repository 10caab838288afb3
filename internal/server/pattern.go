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
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternMatcher handles include and exclude glob matching for watched files.
// Patterns use doublestar syntax, so ** crosses directory boundaries.
type PatternMatcher struct {
	root    string
	include []string
	exclude []string
}

// NewPatternMatcher validates the patterns. Paths are matched relative to
// root. An empty include list matches every file.
func NewPatternMatcher(root string, include, exclude []string) (*PatternMatcher, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return &PatternMatcher{
		root:    root,
		include: include,
		exclude: append(append([]string(nil), exclude...), editorPatterns...),
	}, nil
}

// Match reports whether a change to path should trigger a reload.
func (pm *PatternMatcher) Match(path string) bool {
	included := len(pm.include) == 0
	for _, pattern := range pm.include {
		if pm.matchPattern(pattern, path) {
			included = true
			break
		}
	}
	return included && !pm.Excluded(path)
}

// Excluded reports whether path, or a directory, is excluded.
func (pm *PatternMatcher) Excluded(path string) bool {
	for _, pattern := range pm.exclude {
		if pm.matchPattern(pattern, path) {
			return true
		}
		// A directory is excluded when its contents would be.
		if pm.matchPattern(pattern, filepath.Join(path, "x")) {
			return true
		}
	}
	return false
}

// matchPattern tries the path relative to root, then the base name.
func (pm *PatternMatcher) matchPattern(pattern, path string) bool {
	rel, err := filepath.Rel(pm.root, path)
	if err != nil {
		rel = path
	}
	if matched, _ := doublestar.PathMatch(pattern, filepath.ToSlash(rel)); matched {
		return true
	}
	matched, _ := doublestar.Match(pattern, filepath.Base(path))
	return matched
}

// editorPatterns are temporary files that never trigger a reload.
var editorPatterns = []string{
	// Vim
	"*.swp",
	"*.swo",
	".*.sw?",
	// Emacs
	"*~",
	"#*#",
	".#*",
	// System files
	".DS_Store",
	"*.tmp",
}
