// Package catalog builds and maintains the file table that drives
// defragmentation: one row per file or directory that has at least one
// allocated cluster, plus the bookkeeping the swap engine needs to locate
// a cluster's owning directory entry or FAT predecessor in O(1).
package catalog

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	"github.com/diskutils/fat32defrag/fat32"
)

// Item is one row of the table: a file or directory with at least one
// allocated cluster.
type Item struct {
	StartCluster  fat32.ClusterID
	EntryCluster  fat32.ClusterID // 0 for the root, which has no parent entry
	EntryIndex    int
	IsDir         bool
	ClusterCount  int
	FragmentCount int

	// Name is the 8.3 name recovered from the owning directory entry
	// (empty for the root, which has none). It's purely for
	// human-readable diagnostics — CSV export, debug trace — the
	// defragmentation algorithm itself never consults it.
	Name string
}

// FragmentationPercent is this item's share of fragmented transitions in
// its own chain.
func (it *Item) FragmentationPercent() float64 {
	if it.ClusterCount == 0 {
		return 0
	}
	return float64(it.FragmentCount) / float64(it.ClusterCount) * 100
}

// Table is the full catalog of a volume's allocated items, plus the
// indexes the swap engine consults instead of rescanning the FAT.
type Table struct {
	Items []Item

	// predecessor maps a non-starting cluster to the cluster whose FAT
	// entry points at it. Built once during the walk and kept in sync by
	// every swap.SwapClusters call, replacing the original linear FAT rescan
	// (def_findParent) with an O(1) lookup.
	predecessor map[fat32.ClusterID]fat32.ClusterID

	// startIndex maps a starting cluster to its Items index, replacing
	// the original linear def_isStarting scan.
	startIndex map[fat32.ClusterID]int

	// claimed tracks every cluster already attributed to some item, used
	// to flag cross-linked (doubly-claimed) clusters as a diagnostic
	// rather than a fatal error.
	claimed bitmap.Bitmap

	usedClusters int
	diskFragSum  float64
}

// Diagnostics accumulates non-fatal issues noticed while walking the
// directory tree: cross-linked clusters, corrupt start-cluster references,
// and the like. None of these abort the walk.
type Diagnostics struct {
	*multierror.Error
}

// Build walks vol's directory structure starting at the root cluster
// named in its BPB, producing a Table. Corrupt individual entries (a start
// cluster beyond ClusterCount) are skipped and noted in the returned
// Diagnostics rather than aborting the walk, matching an_scanDisk's
// "ignore and continue" behavior for a single bad entry.
func Build(vol *fat32.Volume) (*Table, *Diagnostics, error) {
	t := &Table{
		predecessor: make(map[fat32.ClusterID]fat32.ClusterID),
		startIndex:  make(map[fat32.ClusterID]int),
		claimed:     bitmap.New(int(vol.BPB.ClusterCount) + 2),
	}
	diag := &Diagnostics{}

	root := vol.BPB.RootCluster()
	if err := t.addItem(vol, root, 0, 0, true, "", diag); err != nil {
		return nil, diag, err
	}

	// Explicit-stack walk rather than recursion: a directory nested
	// arbitrarily deep shouldn't consume Go call-stack frames one per
	// level, unlike the original's recursive an_scanDisk.
	stack := []fat32.ClusterID{root}
	for len(stack) > 0 {
		dirStart := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := t.walkOneDirectory(vol, dirStart, diag)
		if err != nil {
			return nil, diag, err
		}
		stack = append(stack, children...)
	}

	return t, diag, nil
}

// addItem appends a new row for startCluster, measures its chain
// fragmentation, and records it in the cross-link bitmap and indexes.
func (t *Table) addItem(
	vol *fat32.Volume,
	startCluster, entryCluster fat32.ClusterID,
	entryIndex int,
	isDir bool,
	name string,
	diag *Diagnostics,
) error {
	item := Item{
		StartCluster: startCluster,
		EntryCluster: entryCluster,
		EntryIndex:   entryIndex,
		IsDir:        isDir,
		Name:         name,
	}

	count, fragments, err := t.measureFragmentation(vol, startCluster, diag)
	if err != nil {
		return err
	}
	item.ClusterCount = count
	item.FragmentCount = fragments

	t.startIndex[startCluster] = len(t.Items)
	t.Items = append(t.Items, item)
	t.usedClusters += count
	t.diskFragSum += item.FragmentationPercent()
	return nil
}

// measureFragmentation walks the chain from start, counting clusters and
// fragment transitions. It replicates an_getFileFragmentation's counting
// convention exactly: the returned count is the number of real clusters in
// the chain *plus one* for the terminal EOC marker (spec.md §4.3: "the
// terminal EOC cluster is counted in the total"), and a transition is only
// scored as a fragment when comparing two real (non-EOC) clusters, so the
// final cluster-to-EOC step is never itself counted as a fragment.
func (t *Table) measureFragmentation(
	vol *fat32.Volume, start fat32.ClusterID, diag *Diagnostics,
) (count int, fragments int, err error) {
	prev := start
	cluster := start

	for !fat32.IsEOC(cluster) {
		t.markClaimed(cluster, diag)

		if cluster != prev && cluster != prev+1 {
			fragments++
		}
		prev = cluster

		next, readErr := vol.ReadFAT(cluster)
		if readErr != nil {
			return 0, 0, readErr
		}
		if next != fat32.ClusterFree && !fat32.IsReserved(next) && !fat32.IsEOC(next) {
			t.predecessor[next] = cluster
		}

		cluster = next
		count++
	}
	count++
	return count, fragments, nil
}

func (t *Table) markClaimed(cluster fat32.ClusterID, diag *Diagnostics) {
	idx := int(cluster)
	if idx < 0 || idx >= t.claimed.Len() {
		return
	}
	if t.claimed.Get(idx) {
		diag.Error = multierror.Append(diag.Error,
			fmt.Errorf("cross-linked cluster %d claimed by more than one chain", cluster))
		return
	}
	t.claimed.Set(idx, true)
}

// walkOneDirectory traverses dirStart's own cluster chain, appending a new
// item for every live (non-deleted, non-long-name, non-dot) entry it
// finds, and returns the start clusters of any subdirectories discovered
// so the caller's stack can visit them. The self-reference guard
// (skipping a subdirectory entry whose start cluster equals dirStart)
// matches an_scanDisk's "tmpCluster != startCluster" check; it guards only
// the immediate case. A deeper cycle (a subdirectory entry whose start
// cluster some earlier chain already claimed) is still recorded as an item,
// which the cross-link bitmap surfaces as a diagnostic, but that
// subdirectory is not queued for another walk, so the walk ends.
func (t *Table) walkOneDirectory(vol *fat32.Volume, dirStart fat32.ClusterID, diag *Diagnostics) ([]fat32.ClusterID, error) {
	if uint32(dirStart) > vol.BPB.ClusterCount {
		return nil, nil
	}

	var children []fat32.ClusterID
	cluster := dirStart

	for {
		data, err := vol.ReadCluster(cluster)
		if err != nil {
			return nil, err
		}

		entriesPerCluster := len(data) / fat32.DirentSize
		terminated := false

		for index := 0; index < entriesPerCluster; index++ {
			offset := index * fat32.DirentSize
			raw := fat32.ParseDirent(data[offset : offset+fat32.DirentSize])

			if raw.IsFree() {
				terminated = true
				break
			}
			if raw.IsDeleted() || raw.IsLongNameFragment() || raw.IsDotEntry() {
				continue
			}

			start := raw.StartCluster()
			if start == fat32.ClusterFree {
				continue
			}

			isDir := raw.IsDirectory()
			alreadyClaimed := int(start) < t.claimed.Len() && t.claimed.Get(int(start))
			if isDir && start != dirStart && !alreadyClaimed {
				children = append(children, start)
			}

			if uint32(start) <= vol.BPB.ClusterCount {
				if err := t.addItem(vol, start, cluster, index, isDir, raw.DisplayName(), diag); err != nil {
					return nil, err
				}
			} else {
				diag.Error = multierror.Append(diag.Error,
					fmt.Errorf("entry at cluster %d index %d has out-of-range start cluster %d", cluster, index, start))
			}
		}

		if terminated {
			break
		}

		next, err := vol.ReadFAT(cluster)
		if err != nil {
			return nil, err
		}
		if fat32.IsEOC(next) {
			break
		}
		cluster = next
	}

	return children, nil
}

// FragmentationPercent is the disk-wide average of every item's own
// percentage, excluding the root from the divisor — a deliberate
// preservation of the original tool's reporting convention. When the table
// holds only the root (no other items), this returns 0 instead of dividing
// by zero.
func (t *Table) FragmentationPercent() float64 {
	if len(t.Items) <= 1 {
		return 0
	}
	return t.diskFragSum / float64(len(t.Items)-1)
}

// UsedClusters is the sum of every item's ClusterCount (each of which
// counts the terminal EOC step as one), used as the total that drives the
// defragmentation progress bar.
func (t *Table) UsedClusters() int {
	return t.usedClusters
}

// IndexOfStart returns the table index of the item starting at cluster,
// and whether one exists.
func (t *Table) IndexOfStart(cluster fat32.ClusterID) (int, bool) {
	idx, ok := t.startIndex[cluster]
	return idx, ok
}

// Predecessor returns the cluster whose FAT entry points at cluster, and
// whether one is known. Only populated for non-starting clusters visited
// during Build; starting clusters have no predecessor by definition (their
// identity is established by a directory entry, not a FAT link).
func (t *Table) Predecessor(cluster fat32.ClusterID) (fat32.ClusterID, bool) {
	p, ok := t.predecessor[cluster]
	return p, ok
}

// SetPredecessor lets the swap engine keep the index in sync after a FAT
// rewrite changes which cluster points at cluster.
func (t *Table) SetPredecessor(cluster, pred fat32.ClusterID) {
	t.predecessor[cluster] = pred
}

// RelocateStart moves item index itemIdx's StartCluster from oldCluster to
// newCluster, keeping startIndex consistent. Called by the swap engine
// after a starting cluster's identity moves.
func (t *Table) RelocateStart(itemIdx int, oldCluster, newCluster fat32.ClusterID) {
	t.Items[itemIdx].StartCluster = newCluster
	delete(t.startIndex, oldCluster)
	t.startIndex[newCluster] = itemIdx
}

// SwapEntryCluster exchanges a and b wherever either appears as some
// item's EntryCluster: the naming slots for those items just relocated
// along with the directory cluster that held them, per spec.md §4.4 step
// 8 ("a cluster is both a directory's start and some item's entryCluster").
func (t *Table) SwapEntryCluster(a, b fat32.ClusterID) {
	for i := range t.Items {
		switch t.Items[i].EntryCluster {
		case a:
			t.Items[i].EntryCluster = b
		case b:
			t.Items[i].EntryCluster = a
		}
	}
}
