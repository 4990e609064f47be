package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"defakezone/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileSystemStore {
	t.Helper()
	s, err := NewFileSystemStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return s
}

func TestFileSystemStore_PutOpenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte("jpeg bytes")

	require.NoError(t, s.Put(ctx, "images/a.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg"))

	exists, err := s.Exists(ctx, "images/a.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Open(ctx, "images/a.jpg")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.Delete(ctx, "images/a.jpg"))
	exists, err = s.Exists(ctx, "images/a.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, s.Delete(ctx, "images/a.jpg"), ErrNotFound)
	_, err = s.Open(ctx, "images/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSystemStore_NoOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x.jpg", bytes.NewReader([]byte("one")), 3, ""))
	err := s.Put(ctx, "x.jpg", bytes.NewReader([]byte("two")), 3, "")
	assert.ErrorIs(t, err, ErrExists)

	got, err := os.ReadFile(filepath.Join(s.Root(), "x.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestFileSystemStore_SizeMismatchLeavesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, "short.jpg", bytes.NewReader([]byte("abc")), 10, "")
	require.Error(t, err)

	exists, err := s.Exists(ctx, "short.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileSystemStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, "c.jpg", bytes.NewReader([]byte("abc")), 3, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "/etc/passwd", "../secret", "a/../../b", "..", `a\b`} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}

	k, err := CleanKey("images//a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "images/a.jpg", k)
}

func TestNewFromConfig(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := NewFromConfig(context.Background(), config.StorageConfig{Backend: "filesystem", Root: root}, logrus.New())
	require.NoError(t, err)
	assert.IsType(t, &FileSystemStore{}, s)

	_, err = NewFromConfig(context.Background(), config.StorageConfig{Backend: "ftp"}, logrus.New())
	assert.Error(t, err)
}
