// Package defrag implements the defragmentation driver: the loop that
// walks a catalog.Table in order, relocating each item's starting cluster
// as low as possible and then linearizing the rest of its chain, using
// swap.SwapClusters for every actual cluster exchange.
package defrag

import (
	"io"

	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/fat32"
	"github.com/diskutils/fat32defrag/swap"
)

// Stats summarizes one Run: how many clusters the per-cluster progress
// counter advanced through, and how many table items were processed.
type Stats struct {
	ClustersVisited int
	ItemsProcessed  int
}

// Run defragments every item in tbl, in table order, grounded on
// original_source/defrag.c:def_defragTable. Progress is rendered to
// progress (nil disables rendering).
func Run(vol *fat32.Volume, tbl *catalog.Table, progress io.Writer) (Stats, error) {
	var stats Stats
	bar := newProgressBar(progress, tbl.UsedClusters())

	// Per spec.md §4.5: nextFreeTarget starts at 1, pre-incremented to 2
	// before the first item.
	nextFreeTarget := fat32.ClusterID(1)

	for i := range tbl.Items {
		nextFreeTarget++

		moved, err := optimizeStart(vol, tbl, i, nextFreeTarget)
		if err != nil {
			return stats, err
		}
		if moved > nextFreeTarget {
			nextFreeTarget = moved
		}
		stats.ClustersVisited++
		bar.tick(stats.ClustersVisited)

		last, err := linearizeChain(vol, tbl, tbl.Items[i].StartCluster, bar, &stats)
		if err != nil {
			return stats, err
		}
		nextFreeTarget = last
		stats.ItemsProcessed++
	}

	bar.finish()
	return stats, nil
}

// optimizeStart relocates item itemIdx's starting cluster to the first
// usable cluster at or after beginCluster, if that cluster sorts lower
// than the item's current start. It returns beginCluster unchanged unless
// the swap actually happened and the usable cluster found exceeds
// beginCluster, matching def_optimizeStartCluster's output-parameter
// semantics exactly (the caller's nextFreeTarget only moves forward on
// that specific condition).
func optimizeStart(vol *fat32.Volume, tbl *catalog.Table, itemIdx int, beginCluster fat32.ClusterID) (fat32.ClusterID, error) {
	start := tbl.Items[itemIdx].StartCluster
	if start == beginCluster {
		return beginCluster, nil
	}

	newCluster, _, found, err := findFirstUsable(vol, beginCluster)
	if err != nil {
		return beginCluster, err
	}
	if !found {
		return beginCluster, nil
	}

	if start > newCluster {
		if err := swap.SwapClusters(vol, tbl, start, newCluster); err != nil {
			return beginCluster, err
		}
		if newCluster > beginCluster {
			return newCluster, nil
		}
	}
	return beginCluster, nil
}

// linearizeChain walks start's chain, closing any gap between consecutive
// clusters by swapping the out-of-place cluster with the first usable
// cluster past the previous one. Grounded on
// original_source/defrag.c:def_defragFile. Returns the last cluster
// visited, which becomes the next item's search origin.
func linearizeChain(vol *fat32.Volume, tbl *catalog.Table, start fat32.ClusterID, bar *progressBar, stats *Stats) (fat32.ClusterID, error) {
	prev := start
	cur := start

	for {
		next, err := vol.ReadFAT(prev)
		if err != nil {
			return cur, err
		}
		stats.ClustersVisited++
		bar.tick(stats.ClustersVisited)
		cur = next

		if !isUsableLink(vol, next) {
			cur = prev
			break
		}

		if next != prev+1 {
			target, _, found, err := findFirstUsable(vol, prev+1)
			if err != nil {
				return cur, err
			}
			if !found {
				// cur keeps the un-linearized value read above, matching
				// def_defragFile's behavior of returning cluster2 as-is
				// when no further usable cluster exists.
				break
			}
			if next > target {
				if err := swap.SwapClusters(vol, tbl, next, target); err != nil {
					return cur, err
				}
				next = target
				cur = next
			}
		}

		prev = next
	}

	return cur, nil
}

// isUsableLink reports whether next is a real, in-range chain link rather
// than a terminator (EOC, free, reserved, bad, or out-of-range).
func isUsableLink(vol *fat32.Volume, next fat32.ClusterID) bool {
	if fat32.IsEOC(next) || fat32.IsReserved(next) {
		return false
	}
	if next == fat32.ClusterFree || next == fat32.ClusterBad {
		return false
	}
	if uint32(next) > vol.BPB.ClusterCount+1 {
		return false
	}
	return true
}

// findFirstUsable scans forward from begin (inclusive) for the first
// cluster whose FAT value isn't the bad marker, per spec.md §4.5's
// usable-cluster definition. found is false, with no error, when the scan
// reaches the end of the volume without finding one — the original
// driver's def_findFirstUsable treats that as "nothing to do here", not a
// fatal condition.
func findFirstUsable(vol *fat32.Volume, begin fat32.ClusterID) (cluster fat32.ClusterID, value fat32.ClusterID, found bool, err error) {
	upper := fat32.ClusterID(vol.BPB.ClusterCount + 1)
	for c := begin; c <= upper; c++ {
		val, readErr := vol.ReadFAT(c)
		if readErr != nil {
			return 0, 0, false, readErr
		}
		if val != fat32.ClusterBad {
			return c, val, true, nil
		}
	}
	return 0, 0, false, nil
}
