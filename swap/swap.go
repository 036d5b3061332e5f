// Package swap implements the cluster-swap engine: the single operation
// that exchanges the logical identities of two clusters — FAT links,
// directory entries, the BPB's root pointer, the table's bookkeeping, and
// the raw data itself — while keeping every on-disk invariant intact.
package swap

import (
	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/fat32"
)

// SwapClusters exchanges clusters a and b: everything previously bound to a is now
// bound to b and vice versa. Grounded step-for-step on
// original_source/defrag.c:def_switchClusters, with predecessor lookups
// served from tbl's index (catalog.Table.Predecessor) instead of a linear
// FAT rescan, and with the `.`/`..` fixup (step 10) resolved using the
// table's entryCluster/parent lookup rather than the original's
// predecessor-search approximation (see SPEC_FULL.md §9).
func SwapClusters(vol *fat32.Volume, tbl *catalog.Table, a, b fat32.ClusterID) error {
	if a == b {
		return nil
	}

	idxA, isStartingA := tbl.IndexOfStart(a)
	idxB, isStartingB := tbl.IndexOfStart(b)

	// Step 1: rewrite the directory entry (or BPB) naming each starting
	// cluster, before anything else changes.
	if isStartingA {
		if err := rewriteStartReference(vol, tbl, idxA, b); err != nil {
			return err
		}
	}
	if isStartingB {
		if err := rewriteStartReference(vol, tbl, idxB, a); err != nil {
			return err
		}
	}

	valA, err := vol.ReadFAT(a)
	if err != nil {
		return err
	}
	valB, err := vol.ReadFAT(b)
	if err != nil {
		return err
	}

	// Step 2: predecessor rewiring. A starting cluster has no predecessor
	// by definition; only non-starting clusters need their parent FAT
	// link redirected to the other cluster.
	var predA, predB fat32.ClusterID
	var havePredA, havePredB bool
	if !isStartingA {
		if p, ok := tbl.Predecessor(a); ok {
			predA, havePredA = p, true
			if err := vol.WriteFAT(p, b); err != nil {
				return err
			}
		}
	}
	if !isStartingB {
		if p, ok := tbl.Predecessor(b); ok {
			predB, havePredB = p, true
			if err := vol.WriteFAT(p, a); err != nil {
				return err
			}
		}
	}

	// Step 3: FAT-value swap, guarded against the self-loop an
	// unconditional swap would create when a and b are directly adjacent
	// in the same chain (see def_switchClusters's commentary).
	switch {
	case valA == b:
		if err := vol.WriteFAT(a, valB); err != nil {
			return err
		}
		if err := vol.WriteFAT(b, a); err != nil {
			return err
		}
	case valB == a:
		if err := vol.WriteFAT(a, b); err != nil {
			return err
		}
		if err := vol.WriteFAT(b, valA); err != nil {
			return err
		}
	default:
		if err := vol.WriteFAT(a, valB); err != nil {
			return err
		}
		if err := vol.WriteFAT(b, valA); err != nil {
			return err
		}
	}

	// Step 4: table bookkeeping — starting clusters relocate, and any
	// item named by a directory entry living in cluster a or b follows
	// the physical move.
	if isStartingA {
		tbl.RelocateStart(idxA, a, b)
	}
	if isStartingB {
		tbl.RelocateStart(idxB, b, a)
	}
	tbl.SwapEntryCluster(a, b)

	// Step 5: refresh the predecessor index from the now-authoritative
	// FAT state, rather than trying to reason case-by-case about which
	// entries moved where.
	refreshPredecessorIndex(vol, tbl, a, b, predA, havePredA, predB, havePredB)

	// Step 6: physically swap the cluster data.
	dataA, err := vol.ReadCluster(a)
	if err != nil {
		return err
	}
	dataB, err := vol.ReadCluster(b)
	if err != nil {
		return err
	}
	if err := vol.WriteCluster(a, dataB); err != nil {
		return err
	}
	if err := vol.WriteCluster(b, dataA); err != nil {
		return err
	}

	// Step 7: fix up `.`/`..` for any directory that just moved.
	if isStartingA && tbl.Items[idxA].IsDir {
		if err := fixupDotEntries(vol, tbl, idxA); err != nil {
			return err
		}
	}
	if isStartingB && tbl.Items[idxB].IsDir {
		if err := fixupDotEntries(vol, tbl, idxB); err != nil {
			return err
		}
	}

	return nil
}

// rewriteStartReference points whatever names item (a directory entry, or
// the BPB if it's the root) at newStart.
func rewriteStartReference(vol *fat32.Volume, tbl *catalog.Table, itemIdx int, newStart fat32.ClusterID) error {
	item := tbl.Items[itemIdx]

	if item.EntryCluster == 0 {
		vol.BPB.SetRootCluster(newStart)
		return vol.FlushBPB()
	}

	data, err := vol.ReadCluster(item.EntryCluster)
	if err != nil {
		return err
	}

	offset := item.EntryIndex * fat32.DirentSize
	raw := fat32.ParseDirent(data[offset : offset+fat32.DirentSize])
	raw.SetStartCluster(newStart)
	raw.Serialize(data[offset : offset+fat32.DirentSize])

	return vol.WriteCluster(item.EntryCluster, data)
}

// refreshPredecessorIndex recomputes the predecessor map entries for the
// handful of clusters whose FAT links could have changed: the two clusters
// that used to point at a/b (if any) and a and b themselves.
func refreshPredecessorIndex(
	vol *fat32.Volume, tbl *catalog.Table,
	a, b fat32.ClusterID,
	predA fat32.ClusterID, havePredA bool,
	predB fat32.ClusterID, havePredB bool,
) {
	candidates := []fat32.ClusterID{a, b}
	if havePredA {
		candidates = append(candidates, predA)
	}
	if havePredB {
		candidates = append(candidates, predB)
	}

	for _, c := range candidates {
		next, err := vol.ReadFAT(c)
		if err != nil {
			continue
		}
		if fat32.IsAllocatable(next) {
			tbl.SetPredecessor(next, c)
		}
	}
}

// fixupDotEntries walks item itemIdx's (directory) cluster chain, fixing
// its own "." and ".." entries in the first cluster, and rewriting the
// ".." entry of every live subdirectory named anywhere in the chain to
// point at the directory's new start cluster.
func fixupDotEntries(vol *fat32.Volume, tbl *catalog.Table, itemIdx int) error {
	item := tbl.Items[itemIdx]
	newStart := item.StartCluster

	parentValue, err := parentDotDotValue(vol, tbl, item.EntryCluster)
	if err != nil {
		return err
	}

	cluster := newStart
	first := true
	for {
		data, err := vol.ReadCluster(cluster)
		if err != nil {
			return err
		}
		dirty := false

		entriesPerCluster := len(data) / fat32.DirentSize
		for index := 0; index < entriesPerCluster; index++ {
			offset := index * fat32.DirentSize
			raw := fat32.ParseDirent(data[offset : offset+fat32.DirentSize])

			if raw.IsFree() {
				break
			}
			if raw.IsDeleted() || raw.IsLongNameFragment() {
				continue
			}

			if first && index == 0 && isDotName(raw.Name) {
				raw.SetStartCluster(newStart)
				raw.Serialize(data[offset : offset+fat32.DirentSize])
				dirty = true
				continue
			}
			if first && index == 1 && isDotDotName(raw.Name) {
				raw.SetStartCluster(parentValue)
				raw.Serialize(data[offset : offset+fat32.DirentSize])
				dirty = true
				continue
			}
			if raw.IsDotEntry() {
				continue
			}

			if raw.IsDirectory() {
				childStart := raw.StartCluster()
				if childStart != fat32.ClusterFree {
					if err := rewriteChildDotDot(vol, childStart, newStart); err != nil {
						return err
					}
				}
			}
		}

		if dirty {
			if err := vol.WriteCluster(cluster, data); err != nil {
				return err
			}
		}

		next, err := vol.ReadFAT(cluster)
		if err != nil {
			return err
		}
		if fat32.IsEOC(next) {
			break
		}
		cluster = next
		first = false
	}

	return nil
}

// parentDotDotValue determines what a directory's ".." entry should hold,
// given the cluster that contains its own directory entry: the start
// cluster of the chain entryCluster belongs to, or 0 if that chain is the
// root (root's own sentinel entryCluster is 0, handled by the caller
// before this is ever reached for the root itself).
func parentDotDotValue(vol *fat32.Volume, tbl *catalog.Table, entryCluster fat32.ClusterID) (fat32.ClusterID, error) {
	if entryCluster == 0 {
		return 0, nil
	}

	cluster := entryCluster
	for {
		pred, ok := tbl.Predecessor(cluster)
		if !ok {
			break
		}
		cluster = pred
	}

	if cluster == vol.BPB.RootCluster() {
		return 0, nil
	}
	return cluster, nil
}

// rewriteChildDotDot loads the first cluster of the subdirectory starting
// at childStart and sets its ".." entry's start cluster to newParent.
func rewriteChildDotDot(vol *fat32.Volume, childStart, newParent fat32.ClusterID) error {
	data, err := vol.ReadCluster(childStart)
	if err != nil {
		return err
	}
	if len(data) < 2*fat32.DirentSize {
		return nil
	}

	offset := fat32.DirentSize
	raw := fat32.ParseDirent(data[offset : offset+fat32.DirentSize])
	if !isDotDotName(raw.Name) {
		return nil
	}
	raw.SetStartCluster(newParent)
	raw.Serialize(data[offset : offset+fat32.DirentSize])
	return vol.WriteCluster(childStart, data)
}

func isDotName(name [8]byte) bool {
	return name[0] == '.' && name[1] == ' '
}

func isDotDotName(name [8]byte) bool {
	return name[0] == '.' && name[1] == '.' && name[2] == ' '
}
