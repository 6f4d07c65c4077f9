package datanode

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BlockStore {
	t.Helper()
	s, err := NewBlockStore(filepath.Join(t.TempDir(), "blocks"))
	require.NoError(t, err)
	return s
}

func TestStoreAndRetrieve(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello block")

	sum, err := s.Store("block-1", data)
	require.NoError(t, err)

	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), sum)

	got, err := s.Retrieve("block-1")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRetrieveMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Retrieve("does-not-exist")
	require.Error(t, err)
}

func TestDeleteThenHas(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store("block-2", []byte("data"))
	require.NoError(t, err)
	assert.True(t, s.Has("block-2"))

	require.NoError(t, s.Delete("block-2"))
	assert.False(t, s.Has("block-2"))

	// deleting again is a no-op
	require.NoError(t, s.Delete("block-2"))
}

func TestListSkipsTempFiles(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store("block-3", []byte("abc"))
	require.NoError(t, err)
	_, err = s.Store("block-4", []byte("def"))
	require.NoError(t, err)
	// a temp file left behind by an interrupted Store
	require.NoError(t, os.WriteFile(filepath.Join(s.basePath, "block-5.tmp-123"), []byte("x"), 0o644))

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"block-3", "block-4"}, ids)
}

func TestUsedBytesSumsStoredBlocks(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store("block-5", []byte("12345"))
	require.NoError(t, err)
	_, err = s.Store("block-6", []byte("1234567890"))
	require.NoError(t, err)

	used, err := s.UsedBytes()
	require.NoError(t, err)
	assert.EqualValues(t, 15, used)
}
