package fat32

import (
	"encoding/binary"
	"strings"
)

// Directory entry attribute flags, per spec.md's catalog-building section.
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrVolumeID  uint8 = 0x08
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20

	// AttrLongName is the combination that marks an entry as a VFAT
	// long-filename fragment rather than an ordinary 8.3 entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Name-byte sentinels for the first byte of Name[0].
const (
	nameFreeMarker    byte = 0x00
	nameDeletedMarker byte = 0xE5
	nameEscapedE5     byte = 0x05
)

// RawDirent is the on-disk 32-byte layout of a FAT directory entry.
type RawDirent struct {
	Name             [8]byte
	Extension        [3]byte
	AttributeFlags   uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// DirentSize is the size in bytes of one raw directory entry.
const DirentSize = 32

// ParseDirent deserializes one 32-byte directory entry.
func ParseDirent(data []byte) RawDirent {
	var d RawDirent
	copy(d.Name[:], data[0:8])
	copy(d.Extension[:], data[8:11])
	d.AttributeFlags = data[11]
	d.NTReserved = data[12]
	d.CreateTimeTenths = data[13]
	d.CreateTime = binary.LittleEndian.Uint16(data[14:16])
	d.CreateDate = binary.LittleEndian.Uint16(data[16:18])
	d.LastAccessDate = binary.LittleEndian.Uint16(data[18:20])
	d.FirstClusterHigh = binary.LittleEndian.Uint16(data[20:22])
	d.WriteTime = binary.LittleEndian.Uint16(data[22:24])
	d.WriteDate = binary.LittleEndian.Uint16(data[24:26])
	d.FirstClusterLow = binary.LittleEndian.Uint16(data[26:28])
	d.FileSize = binary.LittleEndian.Uint32(data[28:32])
	return d
}

// Serialize writes the entry back into a 32-byte slice, preserving
// everything this tool doesn't otherwise touch.
func (d *RawDirent) Serialize(out []byte) {
	copy(out[0:8], d.Name[:])
	copy(out[8:11], d.Extension[:])
	out[11] = d.AttributeFlags
	out[12] = d.NTReserved
	out[13] = d.CreateTimeTenths
	binary.LittleEndian.PutUint16(out[14:16], d.CreateTime)
	binary.LittleEndian.PutUint16(out[16:18], d.CreateDate)
	binary.LittleEndian.PutUint16(out[18:20], d.LastAccessDate)
	binary.LittleEndian.PutUint16(out[20:22], d.FirstClusterHigh)
	binary.LittleEndian.PutUint16(out[22:24], d.WriteTime)
	binary.LittleEndian.PutUint16(out[24:26], d.WriteDate)
	binary.LittleEndian.PutUint16(out[26:28], d.FirstClusterLow)
	binary.LittleEndian.PutUint32(out[28:32], d.FileSize)
}

// StartCluster reassembles the split 32-bit start cluster from its high and
// low 16-bit halves.
func (d *RawDirent) StartCluster() ClusterID {
	return ClusterID(uint32(d.FirstClusterHigh)<<16 | uint32(d.FirstClusterLow))
}

// SetStartCluster splits cluster across FirstClusterHigh/FirstClusterLow.
func (d *RawDirent) SetStartCluster(cluster ClusterID) {
	d.FirstClusterHigh = uint16(uint32(cluster) >> 16)
	d.FirstClusterLow = uint16(uint32(cluster) & 0xFFFF)
}

// IsFree reports whether this slot has never held an entry (first name
// byte 0x00). Deleted slots are not free; see IsDeleted. A free slot also
// ends the directory's entry list per the FAT convention that entries are
// never compacted.
func (d *RawDirent) IsFree() bool {
	return d.Name[0] == nameFreeMarker
}

// IsDeleted reports whether this slot held an entry that's been deleted.
func (d *RawDirent) IsDeleted() bool {
	return d.Name[0] == nameDeletedMarker
}

// IsLongNameFragment reports whether this entry is a VFAT long-filename
// fragment, which this tool treats as opaque bytes: it carries no start
// cluster and is never walked, but its data must survive a relocation of
// the directory cluster that contains it.
func (d *RawDirent) IsLongNameFragment() bool {
	return d.AttributeFlags&AttrLongName == AttrLongName
}

// IsVolumeLabel reports whether this entry is the volume-label pseudo-file
// rather than a real directory or file.
func (d *RawDirent) IsVolumeLabel() bool {
	return d.AttributeFlags&AttrVolumeID != 0 && d.AttributeFlags&AttrLongName != AttrLongName
}

// IsDirectory reports whether the entry names a subdirectory.
func (d *RawDirent) IsDirectory() bool {
	return d.AttributeFlags&AttrDirectory != 0
}

// IsDotEntry reports whether this is the "." or ".." pseudo-entry that
// every non-root directory carries as its first two slots.
func (d *RawDirent) IsDotEntry() bool {
	name := strings.TrimRight(string(d.Name[:]), " ")
	return d.IsDirectory() && (name == "." || name == "..")
}

// IsDotDot reports whether this is specifically the ".." entry, whose
// start cluster points at the entry's parent and must be fixed up whenever
// that parent's start cluster changes.
func (d *RawDirent) IsDotDot() bool {
	name := strings.TrimRight(string(d.Name[:]), " ")
	return d.IsDirectory() && name == ".."
}

// DisplayName reassembles the short 8.3 name ("NAME.EXT", or just "NAME"
// for an extensionless entry) for diagnostics — CSV export, debug trace —
// the algorithm itself never needs it.
func (d *RawDirent) DisplayName() string {
	name := strings.TrimRight(string(d.Name[:]), " \x00")
	ext := strings.TrimRight(string(d.Extension[:]), " \x00")
	if ext == "" {
		return name
	}
	return name + "." + ext
}
