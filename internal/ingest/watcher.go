// Package ingest enqueues video files dropped into a watched directory.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
)

// videoExtensions lists the container formats picked up from the watch
// directory. Anything else (temp files, sidecars) is ignored.
var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
}

// settlePollInterval is how often a growing file is re-checked for size
// stability before it is enqueued.
const settlePollInterval = 200 * time.Millisecond

// EnqueueFunc hands a settled file to the queue.
type EnqueueFunc func(path string) error

// Watcher monitors the ingest directory and enqueues dropped video files
// once their size stops changing.
type Watcher struct {
	dir     string
	settle  time.Duration
	enqueue EnqueueFunc
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher constructs a watcher over the configured ingest directory.
func NewWatcher(cfg *config.Config, enqueue EnqueueFunc, logger *slog.Logger) (*Watcher, error) {
	if enqueue == nil {
		return nil, errors.New("ingest watcher requires an enqueue func")
	}
	dir := strings.TrimSpace(cfg.Ingest.Dir)
	if dir == "" {
		return nil, errors.New("ingest directory not configured")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		settle:  time.Duration(cfg.Ingest.SettleSeconds) * time.Second,
		enqueue: enqueue,
		logger:  logging.NewComponentLogger(logger, "ingest"),
		watcher: fsWatcher,
		seen:    make(map[string]struct{}),
	}, nil
}

// Start begins watching. Files already present in the directory are
// enqueued first so a daemon restart does not strand earlier drops.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("watching ingest directory", logging.String("dir", w.dir))
	w.scanExisting(runCtx)

	w.wg.Add(1)
	go w.loop(runCtx)
	return nil
}

// Stop ends watching and waits for in-flight handling to finish.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.handleCandidate(ctx, event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.forget(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ingest watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scan ingest directory", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleCandidate(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) handleCandidate(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := videoExtensions[ext]; !ok {
		return
	}
	if !w.claim(path) {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if !w.waitForSettle(ctx, path) {
			w.forget(path)
			return
		}
		if err := w.enqueue(path); err != nil {
			w.forget(path)
			w.logger.Warn("enqueue dropped file",
				logging.String("path", path),
				logging.Error(err),
			)
			return
		}
		w.logger.Info("ingested file", logging.String("path", path))
	}()
}

// claim marks a path as in progress; repeated write events for the same
// file are coalesced into the first claim.
func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.seen[path]; dup {
		return false
	}
	w.seen[path] = struct{}{}
	return true
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.seen, path)
	w.mu.Unlock()
}

// waitForSettle blocks until the file size has been stable for the settle
// window. It returns false when the file disappears or ctx ends.
func (w *Watcher) waitForSettle(ctx context.Context, path string) bool {
	if w.settle <= 0 {
		_, err := os.Stat(path)
		return err == nil
	}

	var lastSize int64 = -1
	stableSince := time.Now()
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() != lastSize {
			lastSize = info.Size()
			stableSince = time.Now()
		} else if time.Since(stableSince) >= w.settle {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(settlePollInterval):
		}
	}
}
