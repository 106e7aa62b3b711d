// Package inbox watches a drop directory and uploads every book file
// that lands in it. Deployments use it to bulk-load a library: copy
// files into the inbox and they are ingested for the configured owner.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// DefaultSettleDelay is how long a file must stay quiet before it is
// picked up. Copies into the inbox arrive as bursts of write events;
// uploading mid-copy would truncate the book.
const DefaultSettleDelay = 2 * time.Second

// Config holds configuration for the inbox watcher.
type Config struct {
	// Dir is the watched directory (required). Created if missing.
	Dir string

	// OwnerID is the user all inbox uploads are attributed to (required).
	OwnerID string

	// SettleDelay is the quiet period before an arrived file is
	// uploaded (default: 2s).
	SettleDelay time.Duration
}

// Watcher uploads files dropped into a directory.
type Watcher struct {
	library driving.LibraryService
	cfg     Config

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates an inbox watcher.
func New(library driving.LibraryService, cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox: directory is required")
	}
	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("inbox: owner is required")
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return &Watcher{
		library: library,
		cfg:     cfg,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches the inbox until the context is cancelled. Files already
// present at startup are uploaded first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0700); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching inbox directory: %w", err)
	}

	logger.Info("inbox watching for uploads", "dir", w.cfg.Dir, "owner", w.cfg.OwnerID)
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// handleEvent schedules delivery for files that finished arriving.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.eligible(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// eligible reports whether the path is a visible, supported book file.
func (w *Watcher) eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	if _, err := domain.ParseFileType(ext); err != nil {
		return false
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return true
}

// schedule arms (or re-arms) the settle timer for a path. Every write
// burst pushes delivery back until the file goes quiet.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.cfg.SettleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.SettleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.deliver(ctx, path)
	})
}

// stopPending cancels all armed timers on shutdown.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// sweep uploads files already sitting in the inbox at startup.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		logger.Warn("inbox sweep failed", "dir", w.cfg.Dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, entry.Name())
		if w.eligible(path) {
			w.deliver(ctx, path)
		}
	}
}

// deliver uploads one file and removes it from the inbox. Upload dedup
// by content hash makes a re-delivery after a partial failure harmless.
func (w *Watcher) deliver(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("inbox read failed", "file", path, "error", err)
		}
		return
	}

	book, err := w.library.Upload(ctx, driving.UploadRequest{
		OwnerID:  w.cfg.OwnerID,
		Filename: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		// Leave the file in place; the next write or sweep retries it.
		logger.Warn("inbox upload failed", "file", path, "error", err)
		return
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("inbox cleanup failed", "file", path, "error", err)
	}
	logger.Info("inbox uploaded book", "file", filepath.Base(path), "book", book.ID)
}
