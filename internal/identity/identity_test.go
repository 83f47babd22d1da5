package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	id, err := Static(" walker-1 ").ActorID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "walker-1", id)

	_, err = Static("").ActorID(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestGenerate(t *testing.T) {
	a, b := Generate(), Generate()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestFile_CreatesThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "locshare.id")
	f := File{Path: path}

	first, err := f.ActorID(context.Background())
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	second, err := f.ActorID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_ReadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locshare.id")
	require.NoError(t, os.WriteFile(path, []byte("user-42\n"), 0o600))

	id, err := File{Path: path}.ActorID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)
}

func TestFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locshare.id")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := File{Path: path}.ActorID(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = File{}.ActorID(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}
