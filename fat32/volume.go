package fat32

import (
	"bytes"
	"encoding/binary"

	"github.com/diskutils/fat32defrag/blockdevice"
	fderrors "github.com/diskutils/fat32defrag/errors"
)

// Volume is a mounted FAT32 filesystem on top of a sector-addressable
// device. It owns a one-sector FAT cache, mirrored to every FAT copy on
// write, matching the original driver's single-sector cacheFsec.
type Volume struct {
	Device *blockdevice.Device
	BPB    *BPB

	fatCache      []byte
	fatCacheLBA   uint64
	fatCacheValid bool
}

// Mount reads sector 0 off dev, validates it's FAT32, and returns a Volume
// ready for FAT/cluster I/O.
func Mount(dev *blockdevice.Device) (*Volume, error) {
	sector := make([]byte, 512)
	if _, err := dev.ReadSectors(0, sector, 1, 512); err != nil {
		return nil, err
	}

	bpb, err := ParseBPB(bytes.NewReader(sector))
	if err != nil {
		return nil, err
	}

	return &Volume{
		Device:   dev,
		BPB:      bpb,
		fatCache: make([]byte, uint32(bpb.Raw.BytesPerSector)),
	}, nil
}

// fatSectorFor returns the LBA of the FAT sector containing cluster, and
// the entry's index within that sector.
func (v *Volume) fatSectorFor(cluster ClusterID) (uint64, uint32) {
	entriesPerSector := v.BPB.EntriesPerFATSector
	lba := uint64(v.BPB.FATStart) + uint64(uint32(cluster)/entriesPerSector)
	index := uint32(cluster) % entriesPerSector
	return lba, index
}

func (v *Volume) fillFATCache(lba uint64) error {
	if v.fatCacheValid && v.fatCacheLBA == lba {
		return nil
	}
	bytesPerSector := uint(v.BPB.Raw.BytesPerSector)
	if _, err := v.Device.ReadSectors(lba, v.fatCache, 1, bytesPerSector); err != nil {
		return err
	}
	v.fatCacheLBA = lba
	v.fatCacheValid = true
	return nil
}

// ReadFAT returns the 28-bit value stored for cluster, with the reserved
// top 4 bits masked off.
func (v *Volume) ReadFAT(cluster ClusterID) (ClusterID, error) {
	if uint32(cluster) >= v.BPB.ClusterCount+2 {
		return 0, fderrors.OutOfRangeCluster(uint32(cluster), v.BPB.ClusterCount)
	}

	lba, index := v.fatSectorFor(cluster)
	if err := v.fillFATCache(lba); err != nil {
		return 0, err
	}

	raw := binary.LittleEndian.Uint32(v.fatCache[index*4 : index*4+4])
	return ClusterID(raw & fatEntryMask), nil
}

// WriteFAT stores value for cluster, preserving the top 4 reserved bits of
// the existing entry, and fans the write out to every FAT copy when the BPB
// says mirroring is active.
func (v *Volume) WriteFAT(cluster ClusterID, value ClusterID) error {
	if uint32(cluster) >= v.BPB.ClusterCount+2 {
		return fderrors.OutOfRangeCluster(uint32(cluster), v.BPB.ClusterCount)
	}

	lba, index := v.fatSectorFor(cluster)
	if err := v.fillFATCache(lba); err != nil {
		return err
	}

	existing := binary.LittleEndian.Uint32(v.fatCache[index*4 : index*4+4])
	merged := (existing & ^fatEntryMask) | (uint32(value) & fatEntryMask)
	binary.LittleEndian.PutUint32(v.fatCache[index*4:index*4+4], merged)

	bytesPerSector := uint(v.BPB.Raw.BytesPerSector)
	if _, err := v.Device.WriteSectors(lba, v.fatCache, 1, bytesPerSector); err != nil {
		return err
	}

	if v.BPB.Mirrored {
		// The original driver assumes exactly two FAT copies; this tool
		// instead fans out to every copy named by NumFATs.
		for i := uint8(1); i < v.BPB.Raw.NumFATs; i++ {
			mirrorLBA := lba + uint64(i)*uint64(v.BPB.FATSize)
			if _, err := v.Device.WriteSectors(mirrorLBA, v.fatCache, 1, bytesPerSector); err != nil {
				return err
			}
		}
	}

	return nil
}

// ReadCluster reads the full contents of cluster into a freshly allocated
// buffer sized SectorsPerCluster*BytesPerSector.
func (v *Volume) ReadCluster(cluster ClusterID) ([]byte, error) {
	if uint32(cluster) > v.BPB.ClusterCount+1 {
		return nil, fderrors.OutOfRangeCluster(uint32(cluster), v.BPB.ClusterCount)
	}

	buf := make([]byte, v.ClusterSize())
	lba := v.BPB.ClusterToLBA(cluster)
	n, err := v.Device.ReadSectors(lba, buf, uint(v.BPB.Raw.SectorsPerCluster), uint(v.BPB.Raw.BytesPerSector))
	if err != nil {
		return nil, err
	}
	if n != uint(v.BPB.Raw.SectorsPerCluster) {
		return nil, fderrors.IOFailure(lba, "short cluster read")
	}
	return buf, nil
}

// WriteCluster writes buf (exactly ClusterSize bytes) to cluster's data
// region.
func (v *Volume) WriteCluster(cluster ClusterID, buf []byte) error {
	if uint32(cluster) > v.BPB.ClusterCount+1 {
		return fderrors.OutOfRangeCluster(uint32(cluster), v.BPB.ClusterCount)
	}
	if len(buf) != int(v.ClusterSize()) {
		return fderrors.BadArguments("buffer size does not match cluster size")
	}

	lba := v.BPB.ClusterToLBA(cluster)
	n, err := v.Device.WriteSectors(lba, buf, uint(v.BPB.Raw.SectorsPerCluster), uint(v.BPB.Raw.BytesPerSector))
	if err != nil {
		return err
	}
	if n != uint(v.BPB.Raw.SectorsPerCluster) {
		return fderrors.IOFailure(lba, "short cluster write")
	}
	return nil
}

// ClusterSize is the number of bytes in one cluster.
func (v *Volume) ClusterSize() uint32 {
	return uint32(v.BPB.Raw.SectorsPerCluster) * uint32(v.BPB.Raw.BytesPerSector)
}

// FlushBPB rewrites sector 0 (and, when a backup boot sector is configured,
// its mirror) from the in-memory BPB. Called after swap.SwapClusters relocates the
// root directory's start cluster.
func (v *Volume) FlushBPB() error {
	var buf bytes.Buffer
	if err := v.BPB.Serialize(&buf); err != nil {
		return err
	}
	bytesPerSector := uint(v.BPB.Raw.BytesPerSector)
	if _, err := v.Device.WriteSectors(0, buf.Bytes(), 1, bytesPerSector); err != nil {
		return err
	}
	if v.BPB.Raw.BackupBootSector != 0 {
		if _, err := v.Device.WriteSectors(uint64(v.BPB.Raw.BackupBootSector), buf.Bytes(), 1, bytesPerSector); err != nil {
			return err
		}
	}
	return nil
}

// ReadClusterChain follows the FAT starting at start until an EOC marker,
// returning every cluster visited in order. It fails with CorruptVolume if
// the chain revisits a cluster, guarding against a cyclic FAT.
func (v *Volume) ReadClusterChain(start ClusterID) ([]ClusterID, error) {
	if start == ClusterFree {
		return nil, nil
	}

	seen := make(map[ClusterID]bool)
	var chain []ClusterID
	cur := start
	for {
		if seen[cur] {
			return nil, fderrors.CorruptVolume("cyclic cluster chain detected")
		}
		seen[cur] = true
		chain = append(chain, cur)

		next, err := v.ReadFAT(cur)
		if err != nil {
			return nil, err
		}
		if IsEOC(next) {
			break
		}
		cur = next
	}
	return chain, nil
}
