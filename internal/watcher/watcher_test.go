package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/service"
)

type fakeIngester struct {
	mu       sync.Mutex
	next     int
	ingested []string
	deleted  []string
	fail     bool
}

func (f *fakeIngester) IngestPath(_ context.Context, path, _ string) (service.SourceView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return service.SourceView{}, errors.New("extraction failed")
	}
	f.next++
	f.ingested = append(f.ingested, filepath.Base(path))
	return service.SourceView{ID: fmt.Sprintf("src-%d", f.next), Name: filepath.Base(path)}, nil
}

func (f *fakeIngester) DeleteSource(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name     string
		event    fsnotify.Event
		removed  bool
		relevant bool
	}{
		{"create file", fsnotify.Event{Name: file, Op: fsnotify.Create}, false, true},
		{"write and chmod", fsnotify.Event{Name: file, Op: fsnotify.Write | fsnotify.Chmod}, false, true},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, true, true},
		{"rename", fsnotify.Event{Name: filepath.Join(dir, "old.txt"), Op: fsnotify.Rename}, true, true},
		{"chmod only", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false, false},
		{"hidden", fsnotify.Event{Name: filepath.Join(dir, ".notes.txt"), Op: fsnotify.Create}, false, false},
		{"swap file", fsnotify.Event{Name: filepath.Join(dir, "notes.txt.swp"), Op: fsnotify.Write}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, removed, relevant := classify(tt.event)
			assert.Equal(t, tt.relevant, relevant)
			if relevant {
				assert.Equal(t, tt.removed, removed)
			}
		})
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	ing := &fakeIngester{}
	w := New(dir, "", ing)
	require.NoError(t, w.Scan(context.Background()))
	assert.Equal(t, []string{"a.txt"}, ing.ingested)
}

func TestSync_ReplacesPreviousSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	ing := &fakeIngester{}
	w := New(dir, "Notes", ing)

	w.sync(context.Background(), path)
	w.sync(context.Background(), path)
	assert.Equal(t, []string{"src-1"}, ing.deleted)

	w.forget(context.Background(), path)
	assert.Equal(t, []string{"src-1", "src-2"}, ing.deleted)

	// Unknown paths are ignored.
	w.forget(context.Background(), filepath.Join(dir, "other.txt"))
	assert.Len(t, ing.deleted, 2)
}

func TestSync_FailureKeepsPreviousSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	ing := &fakeIngester{}
	w := New(filepath.Dir(path), "", ing)
	var changes []Change
	w.OnChange = func(c Change) { changes = append(changes, c) }

	w.sync(context.Background(), path)
	ing.fail = true
	w.sync(context.Background(), path)

	assert.Empty(t, ing.deleted)
	require.Len(t, changes, 2)
	assert.Error(t, changes[1].Err)
}

func TestRun_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	w := New(dir, "", ing)
	w.SetDebounce(40 * time.Millisecond)

	changes := make(chan Change, 4)
	w.OnChange = func(c Change) { changes <- c }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(dir, "new-file.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, ChangeIngested, c.Kind)
		assert.Equal(t, path, c.Path)
		assert.Equal(t, "src-1", c.Source.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ingest")
	}

	require.NoError(t, os.Remove(path))
	select {
	case c := <-changes:
		assert.Equal(t, ChangeRemoved, c.Kind)
		assert.Equal(t, "src-1", c.Source.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for removal")
	}

	cancel()
	assert.NoError(t, <-done)
}
