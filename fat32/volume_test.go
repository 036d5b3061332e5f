package fat32_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/diskutils/fat32defrag/blockdevice"
	"github.com/diskutils/fat32defrag/fat32"
	"github.com/diskutils/fat32defrag/internal/imagefixture"
)

// filesystemTypeOffset is BS_FilSysType's offset in the FAT32 boot sector.
const filesystemTypeOffset = 82

func TestMountRejectsANonFAT32Image(t *testing.T) {
	b := imagefixture.NewBuilder(t)
	_, image := b.Mount()

	corrupted := make([]byte, len(image))
	copy(corrupted, image)
	copy(corrupted[filesystemTypeOffset:filesystemTypeOffset+8], []byte("FAT16   "))

	dev := blockdevice.New(bytesextra.NewReadWriteSeeker(corrupted))
	dev.Mount()

	_, err := fat32.Mount(dev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAT32")
}

func TestWriteFATMirrorsByteIdenticalCopiesAcrossEveryFAT(t *testing.T) {
	vol := imagefixture.NewMinimalVolume(t)
	require.True(t, vol.BPB.Mirrored)
	require.GreaterOrEqual(t, int(vol.BPB.Raw.NumFATs), 2)

	target := vol.BPB.RootCluster() + 1
	require.NoError(t, vol.WriteFAT(target, fat32.ClusterEOCMax))

	bytesPerSector := uint(vol.BPB.Raw.BytesPerSector)
	lba, _ := fatSectorLBA(vol, target)

	first := make([]byte, bytesPerSector)
	_, err := vol.Device.ReadSectors(lba, first, 1, bytesPerSector)
	require.NoError(t, err)

	for i := uint8(1); i < vol.BPB.Raw.NumFATs; i++ {
		mirrorLBA := lba + uint64(i)*uint64(vol.BPB.FATSize)
		mirror := make([]byte, bytesPerSector)
		_, err := vol.Device.ReadSectors(mirrorLBA, mirror, 1, bytesPerSector)
		require.NoError(t, err)
		assert.Equal(t, first, mirror, "FAT copy %d should be byte-identical to the first", i)
	}
}

// fatSectorLBA duplicates Volume's unexported fatSectorFor just enough for
// the test to locate the sector WriteFAT touched.
func fatSectorLBA(vol *fat32.Volume, cluster fat32.ClusterID) (uint64, uint32) {
	entriesPerSector := vol.BPB.EntriesPerFATSector
	lba := uint64(vol.BPB.FATStart) + uint64(uint32(cluster)/entriesPerSector)
	index := uint32(cluster) % entriesPerSector
	return lba, index
}
