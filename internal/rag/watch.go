package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"course-rag/internal/parser"
)

const watchDebounce = 500 * time.Millisecond

// Watch re-ingests course documents in dir when they are created or
// rewritten. It blocks until ctx is done.
func (s *System) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Info().Str("folder", dir).Msg("Watching course folder")

	var mu sync.Mutex
	timers := map[string]*time.Timer{}
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !shouldReingest(ev) {
				continue
			}
			path := ev.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Reset(watchDebounce)
			} else {
				timers[path] = time.AfterFunc(watchDebounce, func() {
					mu.Lock()
					delete(timers, path)
					mu.Unlock()
					if _, err := s.IngestFile(ctx, path); err != nil {
						log.Warn().Err(err).Str("file", path).Msg("Failed to re-ingest course document")
					}
				})
			}
			mu.Unlock()
		}
	}
}

// shouldReingest reports whether a filesystem event touches a supported,
// non-hidden course document.
func shouldReingest(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return parser.Supported(ev.Name)
}
