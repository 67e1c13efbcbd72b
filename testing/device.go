package testing

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/disko/file_systems/common"
)

// CreateRandomImage returns a byte slice of totalBlocks*bytesPerBlock random
// bytes, suitable as the backing storage for a test volume. It is guaranteed
// to either return a valid slice or fail the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(backingData)
	require.NoErrorf(
		t, err, "failed to initialize %d blocks of size %d with random bytes", totalBlocks, bytesPerBlock)
	return backingData
}

// seekerAt adapts an io.ReadWriteSeeker (such as the one bytesextra.
// NewReadWriteSeeker returns for LoadDiskImage) into io.ReaderAt/io.WriterAt,
// which common.NewSectorStream needs. This is safe only under the
// single-threaded, synchronous access model the core assumes (spec §5).
type seekerAt struct {
	rws io.ReadWriteSeeker
}

func (s *seekerAt) ReadAt(buf []byte, offset int64) (int, error) {
	if _, err := s.rws.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return s.rws.Read(buf)
}

func (s *seekerAt) WriteAt(buf []byte, offset int64) (int, error) {
	if _, err := s.rws.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return s.rws.Write(buf)
}

// NewMemoryBlockDevice wraps backingData as a common.BlockDevice with the
// given sector geometry, for exercising the fat package without a real disk
// image.
func NewMemoryBlockDevice(backingData []byte, sectorSize uint, totalSectors uint) common.BlockDevice {
	return common.NewSectorStream(bytesReaderWriterAt(backingData), int(sectorSize), uint32(totalSectors), 0)
}

// NewBlockDeviceFromStream wraps an io.ReadWriteSeeker (e.g. the result of
// LoadDiskImage) as a common.BlockDevice with the given sector geometry.
func NewBlockDeviceFromStream(rws io.ReadWriteSeeker, sectorSize uint, totalSectors uint) common.BlockDevice {
	return common.NewSectorStream(&seekerAt{rws: rws}, int(sectorSize), uint32(totalSectors), 0)
}

// bytesReaderWriterAt is an io.ReaderAt/io.WriterAt directly over a []byte,
// used when the test already holds the backing storage in memory.
type bytesReaderWriterAt []byte

func (b bytesReaderWriterAt) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(buf, b[offset:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (b bytesReaderWriterAt) WriteAt(buf []byte, offset int64) (int, error) {
	if offset+int64(len(buf)) > int64(len(b)) {
		return 0, io.ErrShortBuffer
	}
	return copy(b[offset:], buf), nil
}
