// Package errors defines the closed error taxonomy used throughout the
// defragmenter: IOFailure, WrongFilesystem, OutOfRangeCluster, OutOfMemory,
// BadArguments, NotMounted and CorruptVolume, each a [DriverError] wrapping
// the closest matching syscall.Errno.
package errors

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around a system errno code with a customizable
// error message.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
}

// Error implements the error interface.
func (e DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// Unwrap lets errors.Is/As match against the wrapped errno code.
func (e DriverError) Unwrap() error {
	return e.ErrnoCode
}

// New creates a DriverError with a default message derived from errnoCode.
func New(errnoCode syscall.Errno) *DriverError {
	return &DriverError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewWithMessage creates a DriverError from a system error code with a custom
// message appended.
func NewWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}

// Kind constructors for the seven closed error kinds. Each is a thin
// wrapper that picks the conventional errno and a descriptive
// message; callers should prefer these over New/NewWithMessage directly so
// that the taxonomy stays closed and greppable.

// IOFailure reports a short read or write at the given LBA.
func IOFailure(lba uint64, detail string) *DriverError {
	return NewWithMessage(syscall.EIO, fmt.Sprintf("I/O failure at LBA %d: %s", lba, detail))
}

// WrongFilesystem reports a volume whose filesystem-type label isn't FAT32.
func WrongFilesystem(detected string) *DriverError {
	return NewWithMessage(syscall.ENODEV, fmt.Sprintf("not a FAT32 volume (detected label %q)", detected))
}

// OutOfRangeCluster reports a cluster or FAT offset outside the volume.
func OutOfRangeCluster(cluster uint32, clusterCount uint32) *DriverError {
	return NewWithMessage(
		syscall.ERANGE,
		fmt.Sprintf("cluster %d out of range (cluster count %d)", cluster, clusterCount),
	)
}

// OutOfMemory reports an allocation that cannot be satisfied.
func OutOfMemory(detail string) *DriverError {
	return NewWithMessage(syscall.ENOMEM, detail)
}

// BadArguments reports a command-line usage error.
func BadArguments(detail string) *DriverError {
	return NewWithMessage(syscall.EINVAL, detail)
}

// NotMounted reports an operation attempted before the device or volume was
// mounted.
func NotMounted() *DriverError {
	return NewWithMessage(syscall.EBADF, "not mounted")
}

// CorruptVolume reports a BPB or FAT structure that fails a sanity check.
func CorruptVolume(detail string) *DriverError {
	return NewWithMessage(syscall.EUCLEAN, detail)
}
