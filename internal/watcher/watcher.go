// Package watcher keeps a directory's files ingested into a collection.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/service"
)

// DefaultDebounce is how long a path must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Ingester is the subset of the service the watcher drives.
type Ingester interface {
	IngestPath(ctx context.Context, path, collection string) (service.SourceView, error)
	DeleteSource(ctx context.Context, id string) error
}

// ChangeKind says what happened to a watched file.
type ChangeKind int

const (
	ChangeIngested ChangeKind = iota + 1
	ChangeRemoved
)

// Change reports the outcome of one synced path.
type Change struct {
	Kind   ChangeKind
	Path   string
	Source service.SourceView
	Err    error
}

// Watcher ingests files created or modified under Dir and deletes the
// sources of files that disappear. A modified file replaces its source.
type Watcher struct {
	dir        string
	collection string
	svc        Ingester
	debounce   time.Duration

	// OnChange, when set, is called after every synced path.
	OnChange func(Change)

	mu      sync.Mutex
	sources map[string]string
}

func New(dir, collection string, svc Ingester) *Watcher {
	return &Watcher{
		dir:        dir,
		collection: collection,
		svc:        svc,
		debounce:   DefaultDebounce,
		sources:    map[string]string{},
	}
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Scan ingests every eligible file already in the directory.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || skipName(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.sync(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("Watching directory", "dir", w.dir, "collection", w.collection)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path, removed, relevant := classify(ev)
			if !relevant {
				continue
			}
			if removed {
				delete(pending, path)
				w.forget(ctx, path)
				continue
			}
			pending[path] = time.Now()
		case now := <-ticker.C:
			for path, at := range pending {
				if now.Sub(at) >= w.debounce {
					delete(pending, path)
					w.sync(ctx, path)
				}
			}
		}
	}
}

// classify reports the path an event concerns and whether it was removed.
// Directories, hidden files and editor temp files are irrelevant.
func classify(ev fsnotify.Event) (path string, removed, relevant bool) {
	if skipName(filepath.Base(ev.Name)) {
		return "", false, false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ev.Name, true, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return "", false, false
		}
		return ev.Name, false, true
	}
	return "", false, false
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".tmp")
}

// sync ingests path, replacing any source previously ingested from it.
func (w *Watcher) sync(ctx context.Context, path string) {
	w.mu.Lock()
	prev := w.sources[path]
	w.mu.Unlock()

	view, err := w.svc.IngestPath(ctx, path, w.collection)
	if err != nil {
		slog.Warn("Watched file not ingested", "path", path, "error", err)
		w.notify(Change{Kind: ChangeIngested, Path: path, Err: err})
		return
	}
	if prev != "" {
		w.deleteSource(ctx, path, prev)
	}

	w.mu.Lock()
	w.sources[path] = view.ID
	w.mu.Unlock()
	w.notify(Change{Kind: ChangeIngested, Path: path, Source: view})
}

func (w *Watcher) forget(ctx context.Context, path string) {
	w.mu.Lock()
	id, ok := w.sources[path]
	delete(w.sources, path)
	w.mu.Unlock()
	if !ok {
		return
	}
	err := w.deleteSource(ctx, path, id)
	w.notify(Change{Kind: ChangeRemoved, Path: path, Source: service.SourceView{ID: id}, Err: err})
}

func (w *Watcher) deleteSource(ctx context.Context, path, id string) error {
	err := w.svc.DeleteSource(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("Replaced source not deleted", "path", path, "source_id", id, "error", err)
		return err
	}
	return nil
}

func (w *Watcher) notify(c Change) {
	if w.OnChange != nil {
		w.OnChange(c)
	}
}
