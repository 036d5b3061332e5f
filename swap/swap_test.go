package swap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/fat32"
	"github.com/diskutils/fat32defrag/internal/imagefixture"
	"github.com/diskutils/fat32defrag/swap"
)

func TestSwapClustersEarlyExitsOnIdenticalClusters(t *testing.T) {
	vol := imagefixture.NewVolumeWithContiguousFile(t, "A.TXT", 2)
	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	file := tbl.Items[1]
	err = swap.SwapClusters(vol, tbl, file.StartCluster, file.StartCluster)
	assert.NoError(t, err)
}

func TestSwapClustersUpdatesDirectoryEntryForStartingCluster(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	a := b.AddContiguousFile("A.TXT", 1)
	target := b.ReserveCluster()
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)
	fileIdx, ok := tbl.IndexOfStart(a)
	require.True(t, ok)

	require.NoError(t, swap.SwapClusters(vol, tbl, a, target))

	// The table's bookkeeping follows the move.
	newIdx, ok := tbl.IndexOfStart(target)
	assert.True(t, ok)
	assert.Equal(t, fileIdx, newIdx)
	_, staleOk := tbl.IndexOfStart(a)
	assert.False(t, staleOk)

	// The root directory entry now names target as the start cluster.
	rootData, err := vol.ReadCluster(vol.BPB.RootCluster())
	require.NoError(t, err)
	raw := fat32.ParseDirent(rootData[0:fat32.DirentSize])
	assert.Equal(t, target, raw.StartCluster())
}

func TestSwapClustersRewritesBPBForRootStart(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	target := b.ReserveCluster()
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)
	root := vol.BPB.RootCluster()

	require.NoError(t, swap.SwapClusters(vol, tbl, root, target))

	assert.Equal(t, target, vol.BPB.RootCluster())
	idx, ok := tbl.IndexOfStart(target)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestSwapClustersRewritesPredecessorLink(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	first := b.ReserveCluster()
	second := b.ReserveCluster()
	third := b.ReserveCluster()
	spare := b.ReserveCluster()
	b.AddFileWithChain("A.TXT", []fat32.ClusterID{first, second, third})
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	require.NoError(t, swap.SwapClusters(vol, tbl, second, spare))

	// first's FAT entry now points at spare, not second.
	next, err := vol.ReadFAT(first)
	require.NoError(t, err)
	assert.Equal(t, spare, next)

	// spare's FAT entry now holds what second used to point at (third).
	next2, err := vol.ReadFAT(spare)
	require.NoError(t, err)
	assert.Equal(t, third, next2)

	pred, ok := tbl.Predecessor(spare)
	assert.True(t, ok)
	assert.Equal(t, first, pred)
}

func TestSwapClustersAdjacentAvoidsSelfLoop(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	a := b.ReserveCluster()
	c := b.ReserveCluster()
	b.AddFileWithChain("A.TXT", []fat32.ClusterID{a, c})
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	// a is the starting cluster and fat[a] == c, so swapping(a, c) hits the
	// adjacency guard in step 6. A naive unconditional swap would leave
	// fat[c] pointing at itself; the guard instead produces the chain
	// c -> a -> EOC.
	require.NoError(t, swap.SwapClusters(vol, tbl, a, c))

	valC, err := vol.ReadFAT(c)
	require.NoError(t, err)
	assert.NotEqual(t, c, valC, "c must not point at itself after the swap")
	assert.Equal(t, a, valC)

	valA, err := vol.ReadFAT(a)
	require.NoError(t, err)
	assert.True(t, fat32.IsEOC(valA))
}

func TestSwapClustersFixesUpMovedDirectoryDotEntries(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	dirStart := b.AddDirectory("SUBDIR")
	target := b.ReserveCluster()
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	require.NoError(t, swap.SwapClusters(vol, tbl, dirStart, target))

	data, err := vol.ReadCluster(target)
	require.NoError(t, err)

	dot := fat32.ParseDirent(data[0:fat32.DirentSize])
	assert.Equal(t, target, dot.StartCluster())

	dotdot := fat32.ParseDirent(data[fat32.DirentSize : 2*fat32.DirentSize])
	assert.Equal(t, fat32.ClusterID(0), dotdot.StartCluster())
}

func TestSwapClustersGrandchildDotDotFollowsParentMove(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	dirStart := b.AddDirectory("SUBDIR")
	_ = b.AddChildFile(dirStart, 2, "CHILD", 1)
	grandchild := b.AddChildDirectory(dirStart, 3, "GRAND")
	target := b.ReserveCluster()
	vol, _ := b.Mount()

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	require.NoError(t, swap.SwapClusters(vol, tbl, dirStart, target))

	grandData, err := vol.ReadCluster(grandchild)
	require.NoError(t, err)
	dotdot := fat32.ParseDirent(grandData[fat32.DirentSize : 2*fat32.DirentSize])
	assert.Equal(t, target, dotdot.StartCluster())
}
