package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/fat32"
	"github.com/diskutils/fat32defrag/internal/imagefixture"
)

func TestBuildSeedsRootAsFirstItem(t *testing.T) {
	vol := imagefixture.NewMinimalVolume(t)

	tbl, diag, err := catalog.Build(vol)
	require.NoError(t, err)
	assert.Nil(t, diag.Error)
	require.NotEmpty(t, tbl.Items)

	root := tbl.Items[0]
	assert.Equal(t, vol.BPB.RootCluster(), root.StartCluster)
	assert.Equal(t, 0, int(root.EntryCluster))
	assert.True(t, root.IsDir)
	assert.Empty(t, root.Name)
}

func TestFragmentationPercentHandlesSingleItemTable(t *testing.T) {
	vol := imagefixture.NewMinimalVolume(t)

	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)
	assert.Equal(t, 1, len(tbl.Items))
	assert.Zero(t, tbl.FragmentationPercent())
}

func TestIndexOfStartAndPredecessorLookup(t *testing.T) {
	vol := imagefixture.NewVolumeWithContiguousFile(t, "B.TXT", 3)

	tbl, diag, err := catalog.Build(vol)
	require.NoError(t, err)
	assert.Nil(t, diag.Error)
	require.Len(t, tbl.Items, 2)

	fileItem := tbl.Items[1]
	idx, ok := tbl.IndexOfStart(fileItem.StartCluster)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "B.TXT", fileItem.Name)

	secondCluster := fileItem.StartCluster + 1
	pred, ok := tbl.Predecessor(secondCluster)
	assert.True(t, ok)
	assert.Equal(t, fileItem.StartCluster, pred)
}

func TestFragmentCountIgnoresTerminalEOCStep(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	a := b.ReserveCluster()
	_ = b.ReserveCluster() // gap, forces a->c to be non-adjacent
	c := b.ReserveCluster()
	b.AddFileWithChain("C.TXT", []fat32.ClusterID{a, c})
	vol, _ := b.Mount()

	tbl, diag, err := catalog.Build(vol)
	require.NoError(t, err)
	assert.Nil(t, diag.Error)
	require.Len(t, tbl.Items, 2)

	file := tbl.Items[1]
	assert.Equal(t, 3, file.ClusterCount) // 2 real clusters + 1 for the EOC step
	assert.Equal(t, 1, file.FragmentCount)
	assert.InDelta(t, 100.0/3.0, file.FragmentationPercent(), 0.01)
}
