package fat32

import (
	"encoding/binary"
	"fmt"
	"io"

	fderrors "github.com/diskutils/fat32defrag/errors"
)

// FilesystemTypeFAT32 is the eight-byte BS_FilSysType label this tool treats
// as the authoritative FAT32 discriminator, deviating deliberately from the
// Microsoft spec's guidance that the field is advisory only.
const FilesystemTypeFAT32 = "FAT32   "

// RawBPB is the full 512-byte on-disk layout of sector 0. Fields this tool
// never consults (boot code, volume label, OEM name, etc.) are kept as
// read so that rewriting sector 0 after a root-cluster swap doesn't clobber
// anything we don't understand.
type RawBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	FATSize32         uint32
	ExtFlags          uint16
	FSVersion         uint16
	RootCluster       uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	Reserved1         [12]byte
	DriveNumber       uint8
	Reserved2         uint8
	BootSignature     uint8
	VolumeID          [4]byte
	VolumeLabel       [11]byte
	FilesystemType    [8]byte
	BootCode          [420]byte
	Signature55AA     uint16
}

// BPB is the parsed BPB plus the geometry derived from it, per spec.md §3's
// "Derived geometry" formulas.
type BPB struct {
	Raw RawBPB

	FATStart        uint32 // reserved sectors, plus the active-FAT offset when mirroring is off
	FATSize         uint32 // sectors per single FAT copy
	FirstDataSector uint32
	ClusterCount    uint32
	EntriesPerFATSector uint32
	Mirrored        bool
	ActiveFATIndex  uint8
}

// ParseBPB reads and validates sector 0 of the volume, returning the parsed
// BPB with derived geometry filled in. It fails with WrongFilesystem if the
// filesystem-type label isn't "FAT32   ".
func ParseBPB(sector0 io.Reader) (*BPB, error) {
	var raw RawBPB
	if err := binary.Read(sector0, binary.LittleEndian, &raw); err != nil {
		return nil, fderrors.IOFailure(0, err.Error())
	}

	label := string(raw.FilesystemType[:])
	if label != FilesystemTypeFAT32 {
		return nil, fderrors.WrongFilesystem(label)
	}

	fatSize := raw.FATSize32
	if fatSize == 0 {
		fatSize = uint32(raw.FATSize16)
	}
	totalSectors := raw.TotalSectors32
	if totalSectors == 0 {
		totalSectors = uint32(raw.TotalSectors16)
	}

	if raw.BytesPerSector == 0 || raw.SectorsPerCluster == 0 {
		return nil, fderrors.CorruptVolume(fmt.Sprintf(
			"corrupt BPB: BytesPerSector=%d SectorsPerCluster=%d",
			raw.BytesPerSector, raw.SectorsPerCluster,
		))
	}

	bpb := &BPB{
		Raw:                 raw,
		FATSize:             fatSize,
		EntriesPerFATSector: uint32(raw.BytesPerSector) / 4,
	}

	bpb.FATStart = uint32(raw.ReservedSectors)
	// Mirror bit 0x80 of ExtFlags: when SET, mirroring is disabled and only
	// the FAT named in the low nibble is active.
	if raw.ExtFlags&0x80 != 0 {
		bpb.Mirrored = false
		bpb.ActiveFATIndex = uint8(raw.ExtFlags & 0x0F)
		bpb.FATStart += uint32(bpb.ActiveFATIndex) * fatSize
	} else {
		bpb.Mirrored = true
	}

	bpb.FirstDataSector = uint32(raw.ReservedSectors) + uint32(raw.NumFATs)*fatSize
	dataSectors := totalSectors - bpb.FirstDataSector
	// Per spec.md §3, clusterCount is the number of data clusters; valid
	// cluster numbers run 2..clusterCount+1 inclusive.
	bpb.ClusterCount = dataSectors / uint32(raw.SectorsPerCluster)

	return bpb, nil
}

// ClusterToLBA converts a cluster number to its first logical sector.
func (b *BPB) ClusterToLBA(cluster ClusterID) uint64 {
	return uint64(b.FirstDataSector) + uint64(cluster-2)*uint64(b.Raw.SectorsPerCluster)
}

// SetRootCluster rewrites the in-memory BPB's root cluster field. The
// caller is responsible for persisting sector 0 afterward.
func (b *BPB) SetRootCluster(cluster ClusterID) {
	b.Raw.RootCluster = uint32(cluster)
}

// RootCluster returns the BPB's current root cluster.
func (b *BPB) RootCluster() ClusterID {
	return ClusterID(b.Raw.RootCluster)
}

// Serialize writes the BPB back out in its on-disk 512-byte form.
func (b *BPB) Serialize(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, &b.Raw); err != nil {
		return fderrors.IOFailure(0, err.Error())
	}
	return nil
}
