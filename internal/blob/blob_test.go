package blob

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
)

func TestSaveOpenRemove(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	path, n, err := s.Save("123_abc.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, filepath.Join(s.Dir(), "123_abc.txt"), path)

	rc, info, err := s.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "123_abc.txt", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.True(t, strings.HasPrefix(info.MediaType, "text/plain"))

	require.NoError(t, s.Remove(path))
	require.NoError(t, s.Remove(path))

	_, _, err = s.Open(path)
	assert.True(t, domain.IsNotFoundEntity(err, domain.EntityFile))
}

func TestSave_RejectsTraversalAndOverwrite(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Save("../escape.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = s.Save("a.bin", strings.NewReader("x"))
	require.NoError(t, err)
	_, _, err = s.Save("a.bin", strings.NewReader("y"))
	assert.Error(t, err)
}

func TestOpen_SniffsUnknownExtension(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	path, _, err := s.Save("doc.unknownext", strings.NewReader("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"))
	require.NoError(t, err)

	rc, info, err := s.Open(path)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "application/pdf", info.MediaType)
}
