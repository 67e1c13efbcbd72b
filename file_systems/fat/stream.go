package fat

import (
	"github.com/dargueta/disko/errors"
)

// streamMode distinguishes an ordinary cluster-chain stream from the
// fixed-size root directory region on FAT12/16 (spec §9's design note: the
// root directory there is a fixed pre-data region, not a chain, and must
// honor root_dir_sectors as a hard bound rather than following the FAT).
type streamMode int

const (
	streamModeChain streamMode = iota
	streamModeFixedRegion
)

// Stream is a byte cursor over a cluster chain (or, for the FAT12/16 root
// directory, a fixed region) that transparently crosses cluster boundaries,
// extending the chain on write (spec §4.4).
type Stream struct {
	fs   *Fs
	mode streamMode

	// Chain-mode state.
	startCluster ClusterID
	cluster      ClusterID
	offset       uint // offset_in_cluster; invariant offset <= clusterSize

	// Fixed-region-mode state.
	regionFirstSector SectorID
	regionSize        uint // in bytes
	linearOffset      uint
}

// OpenStream opens a Stream over the cluster chain beginning at cluster
// (spec §4.4's open(cluster)).
func (fs *Fs) OpenStream(cluster ClusterID) *Stream {
	return &Stream{fs: fs, mode: streamModeChain, startCluster: cluster, cluster: cluster}
}

// OpenRootStream opens a Stream over the root directory, dispatching to the
// fixed region on FAT12/16 or to the ordinary cluster chain at RootCluster on
// FAT32.
func (fs *Fs) OpenRootStream() *Stream {
	if fs.IsFixedRoot() {
		firstSector, sectorCount := fs.RootRegion()
		return &Stream{
			fs:                fs,
			mode:              streamModeFixedRegion,
			regionFirstSector: firstSector,
			regionSize:        sectorCount * uint(fs.boot.BytesPerSector),
		}
	}
	return fs.OpenStream(fs.RootCluster())
}

// CreateStream allocates a fresh cluster and opens a Stream over it (spec
// §4.4's create(fs)).
func (fs *Fs) CreateStream() (*Stream, error) {
	c, err := fs.Allocate()
	if err != nil {
		return nil, err
	}
	return fs.OpenStream(c), nil
}

// StartCluster returns the first cluster of the chain this stream was opened
// on. Meaningless (and returns 0) for a fixed-region stream.
func (s *Stream) StartCluster() ClusterID { return s.startCluster }

// Position reports the stream's current (cluster, offset) pair. Position
// equality between two streams is pairwise equality of this tuple (spec
// §4.4).
func (s *Stream) Position() (ClusterID, uint) {
	if s.mode == streamModeFixedRegion {
		return 0, s.linearOffset
	}
	return s.cluster, s.offset
}

// Read fills buf as far as the chain allows, returning the number of bytes
// read. It returns fewer bytes than len(buf) (with a nil error) when the
// chain/region ends.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.mode == streamModeFixedRegion {
		return s.readFixed(buf)
	}
	return s.readChain(buf)
}

func (s *Stream) readFixed(buf []byte) (int, error) {
	if s.linearOffset >= s.regionSize {
		return 0, nil
	}
	remaining := s.regionSize - s.linearOffset
	if uint(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	total := 0
	for total < len(buf) {
		n, err := s.fs.readBytes(s.regionFirstSector, s.linearOffset, s.regionSize, buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		s.linearOffset += uint(n)
	}
	return total, nil
}

func (s *Stream) readChain(buf []byte) (int, error) {
	total := 0
	clusterSize := s.fs.ClusterSize()

	for total < len(buf) {
		if s.offset == clusterSize {
			value, err := s.fs.FatTableGet(s.cluster)
			if err != nil {
				return total, err
			}
			switch value.Kind {
			case ClusterNext:
				s.cluster = value.Next
				s.offset = 0
			case ClusterLast:
				return total, nil
			default:
				return total, errors.ErrUnexpectedClusterValue
			}
		}

		n, err := s.fs.ReadCluster(s.cluster, s.offset, buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
		s.offset += uint(n)
	}
	return total, nil
}

// Write writes buf to the stream, extending the cluster chain as needed when
// it runs past the current chain's end (spec §4.4). Newly-allocated clusters
// are already zeroed by Allocate, so Write never zeroes data itself.
func (s *Stream) Write(buf []byte) (int, error) {
	if err := s.fs.checkWritable(); err != nil {
		return 0, err
	}
	if s.mode == streamModeFixedRegion {
		return s.writeFixed(buf)
	}
	return s.writeChain(buf)
}

func (s *Stream) writeFixed(buf []byte) (int, error) {
	if s.linearOffset+uint(len(buf)) > s.regionSize {
		return 0, errors.ErrNoSpaceOnDevice.WithMessage(
			"write would exceed the fixed-size root directory region")
	}

	total := 0
	for total < len(buf) {
		n, err := s.fs.device.WriteSector(
			uint32(s.regionFirstSector)+uint32((s.linearOffset+uint(total))/uint(s.fs.boot.BytesPerSector)),
			int((s.linearOffset+uint(total))%uint(s.fs.boot.BytesPerSector)),
			buf[total:],
		)
		if err != nil {
			return total, errors.ErrIOFailed.WrapError(err)
		}
		if n == 0 {
			return total, errors.ErrIOFailed.WithMessage("short write to root directory region")
		}
		total += n
	}
	s.linearOffset += uint(total)
	return total, nil
}

func (s *Stream) writeChain(buf []byte) (int, error) {
	total := 0
	clusterSize := s.fs.ClusterSize()

	for total < len(buf) {
		if s.offset == clusterSize {
			value, err := s.fs.FatTableGet(s.cluster)
			if err != nil {
				return total, err
			}
			switch value.Kind {
			case ClusterNext:
				s.cluster = value.Next
				s.offset = 0
			case ClusterLast:
				next, err := s.fs.Extend(s.cluster)
				if err != nil {
					return total, err
				}
				s.cluster = next
				s.offset = 0
			default:
				return total, errors.ErrUnexpectedClusterValue
			}
		}

		remaining := buf[total:]
		if uint(len(remaining)) > clusterSize-s.offset {
			remaining = remaining[:clusterSize-s.offset]
		}

		if err := s.fs.WriteCluster(s.cluster, s.offset, remaining); err != nil {
			return total, err
		}
		total += len(remaining)
		s.offset += uint(len(remaining))
	}
	return total, nil
}

// Truncate truncates the chain at the stream's current cluster (spec §4.4),
// freeing everything past it.
func (s *Stream) Truncate() error {
	if s.mode == streamModeFixedRegion {
		return errors.ErrNotSupported.WithMessage("cannot truncate the fixed root directory region")
	}
	return s.fs.Truncate(s.cluster)
}
