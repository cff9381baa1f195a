package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(filepath.Join(dir, "archive"))
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("segment snapshot bytes")

	require.NoError(t, b.Upload(ctx, "snap/a.tar.gz", bytes.NewReader(data)))

	ok, err := b.Exists(ctx, "snap/a.tar.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := b.Download(ctx, "snap/a.tar.gz")
	require.NoError(t, err)
	defer r.Close()
	got := make([]byte, len(data))
	_, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, b.Delete(ctx, "snap/a.tar.gz"))
	ok, err = b.Exists(ctx, "snap/a.tar.gz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotPushPull(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "data.log"), []byte("durable segments"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "index"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "index", "level_high"), []byte("idx"), 0644))

	archiveDir := t.TempDir()
	b, err := NewLocalBackend(archiveDir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, PushSnapshot(ctx, b, srcDir, "dags/main.tar.gz"))

	destDir := t.TempDir()
	require.NoError(t, PullSnapshot(ctx, b, "dags/main.tar.gz", destDir))

	got, err := os.ReadFile(filepath.Join(destDir, "data.log"))
	require.NoError(t, err)
	assert.Equal(t, "durable segments", string(got))

	got, err = os.ReadFile(filepath.Join(destDir, "index", "level_high"))
	require.NoError(t, err)
	assert.Equal(t, "idx", string(got))
}
