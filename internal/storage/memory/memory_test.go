package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/internal/storage/storagetest"
	"github.com/doggo-app/locshare/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Stats interface
var _ storage.Stats = (*Backend)(nil)

// Verify Backend implements storage.Exportable interface
var _ storage.Exportable = (*Backend)(nil)

func TestBackendContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b := New(config.MemoryConfig{}, 16)
		require.NoError(t, b.Init())
		return b
	})
}

func TestNew(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: "/tmp/test", CompressOutput: true}, 0)

	require.NotNil(t, b)
	assert.Equal(t, "/tmp/test", b.cfg.OutputDir)
	assert.True(t, b.cfg.CompressOutput)
	assert.NotNil(t, b.children)
	assert.NotNil(t, b.hub)
}

func TestClose_RejectsWrites(t *testing.T) {
	b := New(config.MemoryConfig{}, 0)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	ctx := context.Background()
	assert.ErrorIs(t, b.Set(ctx, "k", core.NewLocationRecord("A", 0, 0)), storage.ErrClosed)
	assert.ErrorIs(t, b.Delete(ctx, "k"), storage.ErrClosed)
	_, err := b.Subscribe(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestClose_EndsSubscriptions(t *testing.T) {
	b := New(config.MemoryConfig{}, 0)
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.SubscriberCount())

	require.NoError(t, b.Close())
	<-sub.Done()
	assert.NoError(t, sub.Err())
}

func TestChildren_SortedByKey(t *testing.T) {
	b := New(config.MemoryConfig{}, 0)
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "dogLocationC", core.NewLocationRecord("C", 0, 0)))
	require.NoError(t, b.Set(ctx, "dogLocationA", core.NewLocationRecord("A", 0, 0)))
	require.NoError(t, b.Set(ctx, "dogLocationB", core.NewLocationRecord("B", 0, 0)))

	children, err := b.Children(ctx)
	require.NoError(t, err)
	keys := make([]string, len(children))
	for i, c := range children {
		keys[i] = c.Key
	}
	assert.Equal(t, []string{"dogLocationA", "dogLocationB", "dogLocationC"}, keys)
}

func TestClose_ExportsUncompressedSnapshot(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir}, 0)
	require.NoError(t, b.Set(context.Background(), "dogLocationA", core.NewLocationRecord("A", 47.1, -117.2)))
	require.NoError(t, b.Close())

	path := b.GetExportedFilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export SnapshotExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Children, 1)
	assert.Equal(t, "dogLocationA", export.Children[0].Key)
	assert.Equal(t, 47.1, export.Children[0].Record.Latitude)
}

func TestClose_ExportsGzipSnapshot(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true}, 0)
	require.NoError(t, b.Set(context.Background(), "dogLocationA", core.NewLocationRecord("A", 1, 2)))
	require.NoError(t, b.Close())

	path := b.GetExportedFilePath()
	require.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SnapshotExport
	require.NoError(t, json.NewDecoder(gr).Decode(&export))
	require.Len(t, export.Children, 1)
	assert.Equal(t, "A", export.Children[0].Record.ID)
}

func TestClose_NoOutputDirSkipsExport(t *testing.T) {
	b := New(config.MemoryConfig{}, 0)
	require.NoError(t, b.Close())
	assert.Empty(t, b.GetExportedFilePath())
}
