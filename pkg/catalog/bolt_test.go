package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/blockstore/pkg/types"
)

func newTestCatalog(t *testing.T) *BoltCatalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	c, err := NewBoltCatalog(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRootAlwaysExists(t *testing.T) {
	c := newTestCatalog(t)
	root, err := c.GetByPath("/")
	require.NoError(t, err)
	assert.Equal(t, types.EntryTypeDirectory, root.Type)
}

func TestCreateEntryRequiresParent(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateEntry("/a/b/hello.txt", types.EntryTypeFile, "u", 12)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	_, err = c.CreateEntry("/a", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	_, err = c.CreateEntry("/a/b", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	f, err := c.CreateEntry("/a/b/hello.txt", types.EntryTypeFile, "u", 12)
	require.NoError(t, err)
	assert.Equal(t, int64(12), f.Size)
}

func TestCreateEntryUniquePath(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateEntry("/x", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	_, err = c.CreateEntry("/x", types.EntryTypeDirectory, "u", 0)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))
}

func TestRegisterBlockIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	f, err := c.CreateEntry("/f.bin", types.EntryTypeFile, "u", 4)
	require.NoError(t, err)

	require.NoError(t, c.RegisterBlock("b1", f.ID, 0, 4, "sum1"))
	require.NoError(t, c.RegisterBlock("b1", f.ID, 0, 4, "sum1")) // idempotent

	err = c.RegisterBlock("b1", f.ID, 0, 4, "different-sum")
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))

	blocks, err := c.ListBlocksForFile(f.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
}

func TestAddLocationSingleLeaderInvariant(t *testing.T) {
	c := newTestCatalog(t)
	f, err := c.CreateEntry("/f.bin", types.EntryTypeFile, "u", 4)
	require.NoError(t, err)
	require.NoError(t, c.RegisterBlock("b1", f.ID, 0, 4, "sum1"))

	n1, err := c.RegisterNode("h1", 9001, 1000, 1000)
	require.NoError(t, err)
	n2, err := c.RegisterNode("h2", 9002, 1000, 1000)
	require.NoError(t, err)

	require.NoError(t, c.AddLocation("b1", n1.ID, true))
	require.NoError(t, c.AddLocation("b1", n2.ID, true))

	locs, err := c.ListLocations("b1")
	require.NoError(t, err)
	leaders := 0
	for _, l := range locs {
		if l.IsLeader {
			leaders++
			assert.Equal(t, n2.ID, l.NodeID)
		}
	}
	assert.Equal(t, 1, leaders)
}

func TestDeleteDirectoryRequiresEmptyUnlessRecursive(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateEntry("/x", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	_, err = c.CreateEntry("/x/y", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	_, err = c.CreateEntry("/x/y/z.txt", types.EntryTypeFile, "u", 1)
	require.NoError(t, err)

	err = c.DeleteDirectory("/x", false)
	require.Error(t, err)
	assert.True(t, types.IsConflict(err))

	require.NoError(t, c.DeleteDirectory("/x", true))
	_, err = c.GetByPath("/x")
	assert.True(t, types.IsNotFound(err))
}

func TestRegisterNodeReturnsExistingForSameAddress(t *testing.T) {
	c := newTestCatalog(t)
	n1, err := c.RegisterNode("h1", 9001, 1000, 1000)
	require.NoError(t, err)
	n2, err := c.RegisterNode("h1", 9001, 1000, 900)
	require.NoError(t, err)
	assert.Equal(t, n1.ID, n2.ID)
}

func TestEvictNodeRemovesLocations(t *testing.T) {
	c := newTestCatalog(t)
	f, err := c.CreateEntry("/f.bin", types.EntryTypeFile, "u", 4)
	require.NoError(t, err)
	require.NoError(t, c.RegisterBlock("b1", f.ID, 0, 4, "sum1"))
	n1, err := c.RegisterNode("h1", 9001, 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, c.AddLocation("b1", n1.ID, true))

	require.NoError(t, c.EvictNode(n1.ID))

	locs, err := c.ListLocations("b1")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestDeleteDirectoryFreesPathForReuse(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.CreateEntry("/x", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)

	require.NoError(t, c.DeleteDirectory("/x", false))

	_, err = c.GetByPath("/x")
	assert.True(t, types.IsNotFound(err))

	recreated, err := c.CreateEntry("/x", types.EntryTypeDirectory, "u", 0)
	require.NoError(t, err)
	assert.Equal(t, "/x", recreated.Path)
}

func TestListOrphanBlocksFindsBlocksWithNoLocations(t *testing.T) {
	c := newTestCatalog(t)
	f, err := c.CreateEntry("/f.bin", types.EntryTypeFile, "u", 8)
	require.NoError(t, err)
	require.NoError(t, c.RegisterBlock("orphan-1", f.ID, 0, 4, "sum1"))
	require.NoError(t, c.RegisterBlock("held-1", f.ID, 1, 4, "sum2"))
	n1, err := c.RegisterNode("h1", 9001, 1000, 1000)
	require.NoError(t, err)
	require.NoError(t, c.AddLocation("held-1", n1.ID, true))

	orphans, err := c.ListOrphanBlocks(time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan-1", orphans[0].ID)

	require.NoError(t, c.DeleteBlock("orphan-1"))
	_, err = c.GetBlock("orphan-1")
	assert.True(t, types.IsNotFound(err))
}

func TestListOrphanBlocksIgnoresRecentBlocks(t *testing.T) {
	c := newTestCatalog(t)
	f, err := c.CreateEntry("/f.bin", types.EntryTypeFile, "u", 4)
	require.NoError(t, err)
	require.NoError(t, c.RegisterBlock("b1", f.ID, 0, 4, "sum1"))

	orphans, err := c.ListOrphanBlocks(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestDeleteBlockNotFound(t *testing.T) {
	c := newTestCatalog(t)
	err := c.DeleteBlock("missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}
