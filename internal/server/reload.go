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
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	devlog "github.com/tombee/devserver/internal/log"
	"golang.org/x/time/rate"
)

const (
	defaultDebounce = 300 * time.Millisecond
	// defaultReloadInterval is the minimum time between two restarts.
	defaultReloadInterval = 2 * time.Second
)

// Reloader watches a project tree and signals when the server should
// restart. Bursts of changes are debounced into a single signal and
// restarts are rate limited.
type Reloader struct {
	root     string
	matcher  *PatternMatcher
	limiter  *rate.Limiter
	debounce time.Duration
	logger   *slog.Logger
}

// NewReloader creates a reloader for root.
func NewReloader(root string, include, exclude []string, logger *slog.Logger) (*Reloader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if logger == nil {
		logger = devlog.Discard()
	}
	matcher, err := NewPatternMatcher(abs, include, exclude)
	if err != nil {
		return nil, err
	}
	return &Reloader{
		root:     abs,
		matcher:  matcher,
		limiter:  rate.NewLimiter(rate.Every(defaultReloadInterval), 1),
		debounce: defaultDebounce,
		logger:   logger.With(slog.String("path", abs)),
	}, nil
}

// Watch starts watching and returns a channel that receives a value for
// every debounced batch of matching changes. The channel is closed when ctx
// is done.
func (r *Reloader) Watch(ctx context.Context) (<-chan struct{}, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := r.addTree(fsw, r.root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go r.eventLoop(ctx, fsw, out)
	r.logger.Debug("watching for code changes")
	return out, nil
}

// addTree adds dir and every non-excluded directory below it.
func (r *Reloader) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directory vanished between listing and walking
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != r.root && r.matcher.Excluded(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (r *Reloader) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan struct{}) {
	var (
		mu     sync.Mutex
		closed bool
		timer  *time.Timer
	)
	fire := func() {
		if d := r.limiter.Reserve().Delay(); d > 0 {
			recordRateLimited()
			time.Sleep(d)
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- struct{}{}:
		default:
			// A reload is already pending
		}
	}

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		fsw.Close()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !r.relevant(fsw, event) {
				continue
			}
			r.logger.Debug("code change", slog.String("file", event.Name), slog.String("op", event.Op.String()))
			if timer == nil {
				timer = time.AfterFunc(r.debounce, fire)
			} else {
				timer.Reset(r.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}

// relevant filters events, watching directories created after start.
func (r *Reloader) relevant(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !r.matcher.Excluded(event.Name) {
				if err := r.addTree(fsw, event.Name); err != nil {
					r.logger.Warn("failed to watch new directory", "error", err)
				}
			}
			return false
		}
	}
	return r.matcher.Match(event.Name)
}
