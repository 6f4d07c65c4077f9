package coordinator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/blockstore/pkg/types"
)

func node(id string, available int64, status types.NodeStatus) *types.DataNode {
	return &types.DataNode{ID: id, AvailableSpace: available, Status: status}
}

func TestSelectPlacementFiltersByCapacityAndStatus(t *testing.T) {
	nodes := []*types.DataNode{
		node("n1", 100, types.NodeStatusActive),
		node("n2", 5, types.NodeStatusActive),    // too small
		node("n3", 100, types.NodeStatusInactive), // inactive
		node("n4", 200, types.NodeStatusActive),
	}

	rng := rand.New(rand.NewSource(1))
	selected, err := SelectPlacement(nodes, 50, nil, 2, rng)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	for _, n := range selected {
		assert.True(t, n.ID == "n1" || n.ID == "n4")
	}
}

func TestSelectPlacementExcludesFailedNodes(t *testing.T) {
	nodes := []*types.DataNode{
		node("n1", 100, types.NodeStatusActive),
		node("n2", 100, types.NodeStatusActive),
	}
	exclude := map[string]bool{"n1": true}
	rng := rand.New(rand.NewSource(1))
	selected, err := SelectPlacement(nodes, 50, exclude, 2, rng)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "n2", selected[0].ID)
}

func TestSelectPlacementInsufficientCapacity(t *testing.T) {
	nodes := []*types.DataNode{node("n1", 10, types.NodeStatusActive)}
	_, err := SelectPlacement(nodes, 50, nil, 2, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.True(t, types.IsCapacityExhausted(err))
}

func TestSelectPlacementCapsAtAvailableCandidates(t *testing.T) {
	nodes := []*types.DataNode{
		node("n1", 100, types.NodeStatusActive),
		node("n2", 100, types.NodeStatusActive),
	}
	selected, err := SelectPlacement(nodes, 10, nil, 5, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}
