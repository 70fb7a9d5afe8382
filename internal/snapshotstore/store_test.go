package snapshotstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	ctx := context.Background()
	require.NoError(t, fs.Put(ctx, "sess-1", []byte("hello")))

	data, ok, err := fs.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestFileStoreGetMissingIsAbsent(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	_, ok, err := fs.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltStorePutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	bs, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer bs.Close()

	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "sess-1", []byte("world")))

	data, ok, err := bs.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), data)
}

func TestBoltStoreGetMissingIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	bs, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer bs.Close()

	_, ok, err := bs.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
