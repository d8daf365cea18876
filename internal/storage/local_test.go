package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dump-sleuth/pkg/errors"
)

func TestNewLocalStorage_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")

	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.GetBasePath())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "reports/2026-01-02/run-1/sample.dmp.json"
	report := []byte(`{"metadata":{"run_id":"run-1"}}`)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upload(ctx, key, bytes.NewReader(report)))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, s.GetURL(key))

	rc, err := s.Download(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, report, got)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	ok, _ = s.Exists(ctx, key)
	assert.False(t, ok)

	_, err = s.Download(ctx, key)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageError(err))
}

func TestLocalStorage_UploadFile(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "report.json.gz")
	require.NoError(t, os.WriteFile(src, []byte{0x1f, 0x8b, 1, 2}, 0644))

	require.NoError(t, s.UploadFile(ctx, "a/b/report.json.gz", src))
	data, err := os.ReadFile(s.GetURL("a/b/report.json.gz"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b, 1, 2}, data)

	err = s.UploadFile(ctx, "missing", filepath.Join(t.TempDir(), "nope"))
	assert.True(t, apperrors.IsStorageError(err))
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside.json", "/etc/passwd", "", "a/../../b"} {
		err := s.Upload(ctx, key, bytes.NewReader(nil))
		assert.Error(t, err, key)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Upload(ctx, "k", bytes.NewReader([]byte("x"))), context.Canceled)
	_, err = s.Download(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Exists(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "k"), context.Canceled)
}
