package blockdevice_test

import (
	"bytes"
	"testing"

	"github.com/diskutils/fat32defrag/blockdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newTestDevice(t *testing.T, size int) (*blockdevice.Device, []byte) {
	t.Helper()
	raw := make([]byte, size)
	dev := blockdevice.New(bytesextra.NewReadWriteSeeker(raw))
	dev.Mount()
	return dev, raw
}

func TestReadWriteRoundTrip(t *testing.T) {
	dev, raw := newTestDevice(t, 512*4)
	copy(raw[512:1024], bytes.Repeat([]byte{0xAB}, 512))

	buf := make([]byte, 512)
	n, err := dev.ReadSectors(1, buf, 1, 512)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.True(t, bytes.Equal(buf, bytes.Repeat([]byte{0xAB}, 512)))

	writeBuf := bytes.Repeat([]byte{0xCD}, 512)
	n, err = dev.WriteSectors(2, writeBuf, 1, 512)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.True(t, bytes.Equal(raw[1024:1536], writeBuf))
}

func TestNotMountedIsFatal(t *testing.T) {
	dev := blockdevice.New(bytesextra.NewReadWriteSeeker(make([]byte, 512)))
	_, err := dev.ReadSectors(0, make([]byte, 512), 1, 512)
	assert.Error(t, err)
}

func TestUnmountPreventsFurtherIO(t *testing.T) {
	dev, _ := newTestDevice(t, 512)
	dev.Unmount()
	assert.False(t, dev.IsMounted())
	_, err := dev.ReadSectors(0, make([]byte, 512), 1, 512)
	assert.Error(t, err)
}
