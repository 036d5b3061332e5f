// Package imagefixture builds small, synthetic FAT32 disk images in memory
// for use by other packages' tests. It never touches the filesystem: the
// image lives in a []byte, written sequentially with bytewriter and handed
// to the rest of the tool through bytesextra's io.ReadWriteSeeker adapter,
// the same pairing dargueta-disko's testing/images.go uses to load real
// fixture images.
package imagefixture

import (
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/diskutils/fat32defrag/blockdevice"
	"github.com/diskutils/fat32defrag/fat32"
)

const (
	bytesPerSector    = 512
	sectorsPerCluster = 1
	reservedSectors   = 32
	numFATs           = 2
	fatSizeSectors    = 1
	rootCluster       = fat32.ClusterID(2)
	dataClusterCount  = 32
)

// Builder accumulates directory and chain state for a synthetic image
// before it's sealed into a mounted Volume.
type Builder struct {
	t *testing.T

	firstDataSector uint32
	totalSectors    uint32
	image           []byte

	nextFreeCluster fat32.ClusterID
	nextRootSlotIdx int
}

// NewBuilder lays down an empty, valid BPB and FAT with a one-cluster,
// empty root directory, ready for AddContiguousFile/AddDirectory calls.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()

	firstDataSector := uint32(reservedSectors + numFATs*fatSizeSectors)
	totalSectors := firstDataSector + dataClusterCount*sectorsPerCluster

	b := &Builder{
		t:               t,
		firstDataSector: firstDataSector,
		totalSectors:    totalSectors,
		image:           make([]byte, totalSectors*bytesPerSector),
		nextFreeCluster: rootCluster + 1,
	}

	b.writeBPB()
	b.markFAT(rootCluster, fat32.ClusterEOCMax)
	return b
}

func (b *Builder) writeBPB() {
	raw := fat32.RawBPB{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           numFATs,
		FATSize32:         fatSizeSectors,
		TotalSectors32:    b.totalSectors,
		RootCluster:       uint32(rootCluster),
		Media:             0xF8,
		Signature55AA:     0xAA55,
	}
	copy(raw.FilesystemType[:], fat32.FilesystemTypeFAT32)

	w := bytewriter.New(b.image)
	bpb := &fat32.BPB{Raw: raw}
	require.NoError(b.t, bpb.Serialize(w))
}

// fatEntryOffset returns the byte offset within the image of cluster's FAT
// entry in the first FAT copy.
func (b *Builder) fatEntryOffset(cluster fat32.ClusterID) int {
	return reservedSectors*bytesPerSector + int(cluster)*4
}

// markFAT writes value into every FAT copy's entry for cluster.
func (b *Builder) markFAT(cluster fat32.ClusterID, value fat32.ClusterID) {
	for copyIdx := 0; copyIdx < numFATs; copyIdx++ {
		off := b.fatEntryOffset(cluster) + copyIdx*fatSizeSectors*bytesPerSector
		putUint32LE(b.image[off:off+4], uint32(value)&0x0FFFFFFF)
	}
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// clusterOffset returns the byte offset within the image of cluster's
// first (only, since sectorsPerCluster==1) data sector.
func (b *Builder) clusterOffset(cluster fat32.ClusterID) int {
	return int(b.firstDataSector+uint32(cluster-2)*sectorsPerCluster) * bytesPerSector
}

// allocateChain reserves count contiguous clusters, chains them in the
// FAT, and returns the start cluster.
func (b *Builder) allocateChain(count int) fat32.ClusterID {
	start := b.nextFreeCluster
	for i := 0; i < count; i++ {
		cur := start + fat32.ClusterID(i)
		if i == count-1 {
			b.markFAT(cur, fat32.ClusterEOCMax)
		} else {
			b.markFAT(cur, cur+1)
		}
	}
	b.nextFreeCluster += fat32.ClusterID(count)
	return start
}

// writeRootEntry writes an 8.3 directory entry into the root directory's
// (single) cluster at the given slot index.
func (b *Builder) writeRootEntry(index int, name string, isDir bool, start fat32.ClusterID) {
	b.writeDirEntry(rootCluster, index, name, isDir, start)
}

func padName(name string) []byte {
	buf := []byte("        ")
	copy(buf, name)
	return buf
}

// AddContiguousFile allocates a count-cluster contiguous chain, registers
// it as a root-directory entry named name, and returns its start cluster.
func (b *Builder) AddContiguousFile(name string, count int) fat32.ClusterID {
	start := b.allocateChain(count)
	b.writeRootEntry(b.nextRootSlot(), name, false, start)
	return start
}

// AddFileWithChain registers a root-directory entry named name whose
// cluster chain is exactly the given, explicitly ordered list of clusters
// (which the caller must have already handed out via ReserveCluster),
// letting tests construct a deliberately fragmented chain.
func (b *Builder) AddFileWithChain(name string, chain []fat32.ClusterID) fat32.ClusterID {
	for i, cluster := range chain {
		if i == len(chain)-1 {
			b.markFAT(cluster, fat32.ClusterEOCMax)
		} else {
			b.markFAT(cluster, chain[i+1])
		}
	}
	b.writeRootEntry(b.nextRootSlot(), name, false, chain[0])
	return chain[0]
}

// AddDirectory allocates a single-cluster subdirectory of root named name,
// seeds its "." and ".." entries (".." pointing at root, per the FAT
// convention that a top-level directory's parent is the root), registers it
// as a root-directory entry, and returns its start cluster.
func (b *Builder) AddDirectory(name string) fat32.ClusterID {
	start := b.allocateChain(1)
	b.writeDirEntry(start, 0, ".", true, start)
	b.writeDirEntry(start, 1, "..", true, rootCluster)
	b.writeRootEntry(b.nextRootSlot(), name, true, start)
	return start
}

// AddChildDirectory allocates a single-cluster subdirectory nested inside
// parentStart's directory, seeds its "." and ".." entries (".." pointing at
// parentStart), registers it at the given slot in the parent's cluster, and
// returns its start cluster.
func (b *Builder) AddChildDirectory(parentStart fat32.ClusterID, slot int, name string) fat32.ClusterID {
	start := b.allocateChain(1)
	b.writeDirEntry(start, 0, ".", true, start)
	b.writeDirEntry(start, 1, "..", true, parentStart)
	b.writeDirEntry(parentStart, slot, name, true, start)
	return start
}

// AddChildFile registers a file entry inside dirStart's (single-cluster)
// directory, at the given slot index, returning its start cluster.
func (b *Builder) AddChildFile(dirStart fat32.ClusterID, slot int, name string, count int) fat32.ClusterID {
	start := b.allocateChain(count)
	b.writeDirEntry(dirStart, slot, name, false, start)
	return start
}

// writeDirEntry writes an 8.3 directory entry into dirStart's cluster at
// the given slot index.
func (b *Builder) writeDirEntry(dirStart fat32.ClusterID, index int, name string, isDir bool, start fat32.ClusterID) {
	offset := b.clusterOffset(dirStart) + index*fat32.DirentSize
	slotBuf := b.image[offset : offset+fat32.DirentSize]

	var raw fat32.RawDirent
	copy(raw.Name[:], padName(name))
	if isDir {
		raw.AttributeFlags = fat32.AttrDirectory
	} else {
		raw.AttributeFlags = fat32.AttrArchive
	}
	raw.SetStartCluster(start)
	raw.Serialize(slotBuf)
}

// ReserveCluster hands out the next unused cluster number without writing
// any FAT entry for it, so a test can build a deliberately out-of-order
// chain with AddFileWithChain.
func (b *Builder) ReserveCluster() fat32.ClusterID {
	c := b.nextFreeCluster
	b.nextFreeCluster++
	return c
}

// nextRootSlot returns the next unused root directory entry index, so
// successive AddContiguousFile/AddFileWithChain/AddDirectory calls don't
// collide.
func (b *Builder) nextRootSlot() int {
	n := b.nextRootSlotIdx
	b.nextRootSlotIdx++
	return n
}

// Mount seals the image and returns a mounted Volume backed by it, along
// with the raw backing slice for assertions.
func (b *Builder) Mount() (*fat32.Volume, []byte) {
	stream := bytesextra.NewReadWriteSeeker(b.image)
	dev := blockdevice.New(stream)
	dev.Mount()

	vol, err := fat32.Mount(dev)
	require.NoError(b.t, err)
	return vol, b.image
}

// NewMinimalVolume returns a mounted Volume with an empty root directory
// and nothing else.
func NewMinimalVolume(t *testing.T) *fat32.Volume {
	t.Helper()
	vol, _ := NewBuilder(t).Mount()
	return vol
}

// NewVolumeWithContiguousFile returns a mounted Volume whose root
// directory holds one file, occupying count contiguous clusters.
func NewVolumeWithContiguousFile(t *testing.T, name string, count int) *fat32.Volume {
	t.Helper()
	b := NewBuilder(t)
	b.AddContiguousFile(name, count)
	vol, _ := b.Mount()
	return vol
}
