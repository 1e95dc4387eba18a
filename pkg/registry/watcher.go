// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch re-scans and merges whenever a manifest under the scanner's
// roots is written or created. Events are debounced so editors that
// write in several steps trigger one rescan. Blocks until ctx is done.
//
// fsnotify behavior varies by platform; a watch on the root directory
// covers files directly inside it, which matches how manifests are laid
// out.
func (r *Registry) Watch(ctx context.Context, scanner *Scanner) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range scanner.roots {
		if err := watcher.Add(root); err != nil {
			r.logger.Warn("failed to watch directory", zap.String("dir", root), zap.Error(err))
			continue
		}
		r.logger.Info("watching node manifests", zap.String("dir", root))
	}

	var debounce *time.Timer
	rescan := make(chan struct{}, 1)
	trigger := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(200*time.Millisecond, func() {
			select {
			case rescan <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			trigger()

		case <-rescan:
			entries, err := scanner.Scan()
			if err != nil {
				r.logger.Error("rescan failed", zap.Error(err))
				continue
			}
			if _, err := r.UpdateFromScanner(entries); err != nil {
				r.logger.Error("registry update failed", zap.Error(err))
				continue
			}
			r.logger.Info("registry refreshed", zap.Int("entries", len(entries)))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
