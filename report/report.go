// Package report exports a catalog.Table as a CSV fragmentation analysis,
// grounded on dargueta-disko's disks package, which uses the same
// gocarina/gocsv struct-tag convention to move disk-geometry records to and
// from CSV.
package report

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/diskutils/fat32defrag/catalog"
)

// Row is one line of the exported report: a single catalog item's
// fragmentation figures.
type Row struct {
	Name             string  `csv:"name"`
	StartCluster     uint32  `csv:"start_cluster"`
	Kind             string  `csv:"kind"`
	ClusterCount     int     `csv:"cluster_count"`
	FragmentCount    int     `csv:"fragment_count"`
	FragmentationPct float64 `csv:"fragmentation_percent"`
}

// kindOf names an item's row-level kind, matching the "file" / "directory"
// vocabulary the rest of the ambient stack (logging, CLI help text) uses.
func kindOf(it catalog.Item) string {
	if it.IsDir {
		return "directory"
	}
	return "file"
}

// Rows converts tbl into the flat Row slice gocsv marshals.
func Rows(tbl *catalog.Table) []Row {
	rows := make([]Row, len(tbl.Items))
	for i, it := range tbl.Items {
		rows[i] = Row{
			Name:             it.Name,
			StartCluster:     uint32(it.StartCluster),
			Kind:             kindOf(it),
			ClusterCount:     it.ClusterCount,
			FragmentCount:    it.FragmentCount,
			FragmentationPct: it.FragmentationPercent(),
		}
	}
	return rows
}

// WriteCSV writes tbl's per-item fragmentation analysis to path as CSV,
// one row per catalog item, overwriting any existing file.
func WriteCSV(path string, tbl *catalog.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.MarshalFile(Rows(tbl), f)
}
