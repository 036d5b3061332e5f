// Package blockdevice implements the sector-addressable block device that
// backs a disk image: positional reads/writes at a given LBA, with no
// caching of its own. A short read is reported as a short sector count, not
// an error; callers decide whether it's fatal.
package blockdevice

import (
	"io"

	fderrors "github.com/diskutils/fat32defrag/errors"
)

// Device is a thin sector-addressed wrapper around a seekable stream. A real
// CLI invocation backs it with an *os.File; tests back it with an in-memory
// []byte via bytesextra.NewReadWriteSeeker.
type Device struct {
	stream  io.ReadWriteSeeker
	mounted bool
}

// New creates an unmounted Device around stream.
func New(stream io.ReadWriteSeeker) *Device {
	return &Device{stream: stream}
}

// Mount marks the device as ready for I/O. It's a no-op beyond the flag
// since the stream is already open by the time it's handed to New.
func (d *Device) Mount() {
	d.mounted = true
}

// Unmount marks the device as no longer in use. It does not close the
// underlying stream; that's the caller's responsibility.
func (d *Device) Unmount() {
	d.mounted = false
}

// IsMounted reports whether the device is ready for I/O.
func (d *Device) IsMounted() bool {
	return d.mounted
}

// ReadSectors reads count sectors of bytesPerSector each, starting at lba,
// into buf. buf must be at least count*bytesPerSector bytes. It returns the
// number of whole sectors actually read; a short count is not itself an
// error here (callers decide whether it's fatal), matching the original
// disk.c's d_readSectors contract.
func (d *Device) ReadSectors(lba uint64, buf []byte, count uint, bytesPerSector uint) (uint, error) {
	if !d.mounted {
		return 0, fderrors.NotMounted()
	}

	offset := int64(lba) * int64(bytesPerSector)
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return 0, fderrors.IOFailure(lba, err.Error())
	}

	want := int(count) * int(bytesPerSector)
	if len(buf) < want {
		want = len(buf) - (len(buf) % int(bytesPerSector))
	}

	n, err := io.ReadFull(d.stream, buf[:want])
	sectorsRead := uint(n) / bytesPerSector
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return sectorsRead, fderrors.IOFailure(lba, err.Error())
	}
	return sectorsRead, nil
}

// WriteSectors writes count sectors of bytesPerSector each from buf to the
// device starting at lba, returning the number of whole sectors actually
// written.
func (d *Device) WriteSectors(lba uint64, buf []byte, count uint, bytesPerSector uint) (uint, error) {
	if !d.mounted {
		return 0, fderrors.NotMounted()
	}

	offset := int64(lba) * int64(bytesPerSector)
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return 0, fderrors.IOFailure(lba, err.Error())
	}

	want := int(count) * int(bytesPerSector)
	if len(buf) < want {
		want = len(buf) - (len(buf) % int(bytesPerSector))
	}

	n, err := d.stream.Write(buf[:want])
	sectorsWritten := uint(n) / bytesPerSector
	if err != nil {
		return sectorsWritten, fderrors.IOFailure(lba, err.Error())
	}
	return sectorsWritten, nil
}
