package common

import (
	"fmt"
	"io"
	"syscall"

	"github.com/dargueta/disko"
	"github.com/dargueta/disko/errors"
)

// BlockDevice abstracts sector-addressed I/O over a disk image. It is the
// external collaborator the FAT core talks to for all physical I/O; the core
// treats any failure from it as opaque DeviceIO.
//
// Short reads and short writes are acceptable: callers must be prepared to
// loop until their request is fully satisfied or the underlying chain ends.
type BlockDevice interface {
	// ReadSector reads into buf starting at byte offsetInSector within
	// sector lba. It returns the number of bytes actually read.
	ReadSector(lba uint32, offsetInSector int, buf []byte) (int, error)

	// WriteSector writes buf starting at byte offsetInSector within sector
	// lba. It returns the number of bytes actually written.
	WriteSector(lba uint32, offsetInSector int, buf []byte) (int, error)

	// Flush forces any buffered writes out to the backing storage.
	Flush() error

	// SectorCount returns the total number of sectors on the device.
	SectorCount() uint32

	// SectorSize returns the size of one sector, in bytes.
	SectorSize() int
}

// SectorStream is a BlockDevice backed by an io.ReaderAt/io.WriterAt, in the
// same spirit as the teacher's BlockStream: a thin layer that turns linear
// byte-stream I/O into sector-addressed I/O, with an optional StartOffset for
// skipping over anything (an MBR, a partition table) that precedes the
// volume on the backing image.
type SectorStream struct {
	bytesPerSector int
	totalSectors   uint32
	startOffset    int64
	stream         io.ReaderAt
	writer         io.WriterAt
}

// NewSectorStream wraps stream as a BlockDevice with the given sector size
// and count. If stream also implements io.WriterAt, writes are supported;
// otherwise WriteSector always fails with ErrReadOnlyFileSystem.
func NewSectorStream(stream io.ReaderAt, sectorSize int, totalSectors uint32, startOffset int64) *SectorStream {
	dev := &SectorStream{
		bytesPerSector: sectorSize,
		totalSectors:   totalSectors,
		startOffset:    startOffset,
		stream:         stream,
	}
	if writer, ok := stream.(io.WriterAt); ok {
		dev.writer = writer
	}
	return dev
}

func (dev *SectorStream) byteOffset(lba uint32, offsetInSector int) (int64, error) {
	if lba >= dev.totalSectors {
		return 0, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector %d not in range [0, %d)", lba, dev.totalSectors))
	}
	return dev.startOffset + int64(lba)*int64(dev.bytesPerSector) + int64(offsetInSector), nil
}

// translateIOError converts a failure from the backing stream into the
// DeviceIO sentinel, preserving a syscall errno (if any) via disko.DriverError
// the way the teacher's host-facing code does.
func translateIOError(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	var errno syscall.Errno
	if e, ok := err.(syscall.Errno); ok {
		errno = e
	} else if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		if e, ok := unwrapper.Unwrap().(syscall.Errno); ok {
			errno = e
		}
	}
	if errno != 0 {
		return errors.ErrIOFailed.WrapError(disko.NewDriverError(errno))
	}
	return errors.ErrIOFailed.WrapError(err)
}

func (dev *SectorStream) ReadSector(lba uint32, offsetInSector int, buf []byte) (int, error) {
	offset, err := dev.byteOffset(lba, offsetInSector)
	if err != nil {
		return 0, err
	}

	n, err := dev.stream.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, translateIOError(err)
	}
	return n, nil
}

func (dev *SectorStream) WriteSector(lba uint32, offsetInSector int, buf []byte) (int, error) {
	if dev.writer == nil {
		return 0, errors.ErrReadOnlyFileSystem
	}

	offset, err := dev.byteOffset(lba, offsetInSector)
	if err != nil {
		return 0, err
	}

	n, err := dev.writer.WriteAt(buf, offset)
	if err != nil {
		return n, translateIOError(err)
	}
	return n, nil
}

func (dev *SectorStream) Flush() error {
	if syncer, ok := dev.stream.(interface{ Sync() error }); ok {
		return translateIOError(syncer.Sync())
	}
	return nil
}

func (dev *SectorStream) SectorCount() uint32 {
	return dev.totalSectors
}

func (dev *SectorStream) SectorSize() int {
	return dev.bytesPerSector
}
