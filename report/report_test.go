package report_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/internal/imagefixture"
	"github.com/diskutils/fat32defrag/report"
)

func TestRowsIncludesOneRowPerItem(t *testing.T) {
	vol := imagefixture.NewVolumeWithContiguousFile(t, "A.TXT", 3)
	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	rows := report.Rows(tbl)
	require.Len(t, rows, 2)

	assert.Equal(t, "directory", rows[0].Kind)
	assert.Equal(t, "file", rows[1].Kind)
	assert.Equal(t, "A.TXT", rows[1].Name)
	assert.Equal(t, uint32(tbl.Items[1].StartCluster), rows[1].StartCluster)
	assert.Equal(t, tbl.Items[1].ClusterCount, rows[1].ClusterCount)
	assert.Equal(t, tbl.Items[1].FragmentCount, rows[1].FragmentCount)
}

func TestWriteCSVProducesAParsableHeaderAndRows(t *testing.T) {
	vol := imagefixture.NewVolumeWithContiguousFile(t, "A.TXT", 2)
	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	path := t.TempDir() + "/report.csv"
	require.NoError(t, report.WriteCSV(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "name")
	assert.Contains(t, content, "start_cluster")
	assert.Contains(t, content, "fragmentation_percent")
	assert.Contains(t, content, "directory")
	assert.Contains(t, content, "file")
	assert.Contains(t, content, "A.TXT")
}

func TestWriteCSVOverwritesExistingFile(t *testing.T) {
	vol := imagefixture.NewMinimalVolume(t)
	tbl, _, err := catalog.Build(vol)
	require.NoError(t, err)

	path := t.TempDir() + "/report.csv"
	require.NoError(t, os.WriteFile(path, []byte("stale contents\n"), 0o644))

	require.NoError(t, report.WriteCSV(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale contents")
}
