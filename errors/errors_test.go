package errors_test

import (
	"syscall"
	"testing"

	fderrors "github.com/diskutils/fat32defrag/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewWithMessage(t *testing.T) {
	err := fderrors.NewWithMessage(syscall.EIO, "short read at sector 12")
	assert.Contains(t, err.Error(), "short read at sector 12")
	assert.ErrorIs(t, err, syscall.EIO)
}

func TestWrongFilesystem(t *testing.T) {
	err := fderrors.WrongFilesystem("FAT16   ")
	assert.Contains(t, err.Error(), "FAT16")
	assert.ErrorIs(t, err, syscall.ENODEV)
}

func TestOutOfRangeCluster(t *testing.T) {
	err := fderrors.OutOfRangeCluster(500, 100)
	assert.ErrorIs(t, err, syscall.ERANGE)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "100")
}

func TestBadArguments(t *testing.T) {
	err := fderrors.BadArguments("missing image path")
	assert.ErrorIs(t, err, syscall.EINVAL)
}
