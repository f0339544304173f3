// Package blob keeps uploaded binaries on the local filesystem.
package blob

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ragcorpus/internal/domain"
)

var _ domain.BlobStore = (*Store)(nil)

// Store saves files flat under one directory.
type Store struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r to <dir>/<name>. name must be a bare file name.
func (s *Store) Save(name string, r io.Reader) (string, int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", name, err)
	}
	return path, n, nil
}

// Open returns the file with its media type. A missing file is a
// NotFoundError for the file entity.
func (s *Store) Open(path string) (io.ReadCloser, domain.FileInfo, error) {
	path, err := s.resolve(filepath.Base(path))
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.FileInfo{}, domain.NotFound(domain.EntityFile, filepath.Base(path))
	}
	if err != nil {
		return nil, domain.FileInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, domain.FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, domain.FileInfo{
		Name:      filepath.Base(path),
		MediaType: mediaType(path),
		Size:      st.Size(),
	}, nil
}

// Remove deletes the file; a missing file is not an error.
func (s *Store) Remove(path string) error {
	path, err := s.resolve(filepath.Base(path))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.Validationf("invalid file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func mediaType(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		return mt.String()
	}
	return "application/octet-stream"
}
