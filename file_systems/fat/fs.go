package fat

import (
	"math"
	"time"

	"github.com/dargueta/disko"
	"github.com/dargueta/disko/errors"
	"github.com/dargueta/disko/file_systems/common"
)

// Fs is the mounted filesystem: volume geometry plus the block device and
// FAT table it was mounted from. It implements the Filesystem interface from
// spec §6 (root_cluster, cluster_count, cluster_size, read/write,
// fat_table_get/set, flush) and is the shared, borrowed-by-reference state
// backing every Dir, File, and Stream derived from it.
type Fs struct {
	device common.BlockDevice
	boot   *FATBootSector
	table  *FATTable
	flags  disko.MountFlags
}

// Mount parses the boot sector from device and returns a ready-to-use Fs.
// flags gates which mutating operations are permitted for the lifetime of
// the mount (spec §5: one mount owns one block device exclusively).
func Mount(device common.BlockDevice, flags disko.MountFlags) (*Fs, error) {
	reader := &sectorReaderAt{device: device}
	boot, err := NewFATBootSectorFromStream(reader)
	if err != nil {
		return nil, err
	}

	return &Fs{
		device: device,
		boot:   boot,
		table:  NewFATTable(device, boot),
		flags:  flags,
	}, nil
}

// checkWritable rejects any mutating operation when the mount wasn't opened
// with MountFlagsAllowWrite.
func (fs *Fs) checkWritable() error {
	if !fs.flags.CanWrite() {
		return errors.ErrReadOnlyFileSystem
	}
	return nil
}

// Features returns the disko.FSFeatures describing this volume's
// capabilities, shared across every FAT variant (spec's ambient stack).
func (fs *Fs) Features() disko.FSFeatures {
	return fatFeatures{}
}

// Stat returns aggregate volume statistics in disko.FSStat form.
func (fs *Fs) Stat() (disko.FSStat, error) {
	free := uint64(0)
	for c := ClusterID(2); uint(c) < fs.boot.ClustersCount; c++ {
		value, err := fs.table.Get(c)
		if err != nil {
			return disko.FSStat{}, err
		}
		if value.Kind == ClusterFree {
			free++
		}
	}

	total := uint64(fs.boot.ClustersCount) - 2
	return disko.FSStat{
		BlockSize:       int64(fs.boot.BytesPerCluster),
		TotalBlocks:     total,
		BlocksFree:      free,
		BlocksAvailable: free,
		MaxNameLength:   255,
		FilesFree:       math.MaxUint64,
	}, nil
}

// fatFeatures implements disko.FSFeatures for FAT12/16/32.
type fatFeatures struct{}

func (fatFeatures) HasDirectories() bool    { return true }
func (fatFeatures) HasSymbolicLinks() bool  { return false }
func (fatFeatures) HasHardLinks() bool      { return false }
func (fatFeatures) HasCreatedTime() bool    { return true }
func (fatFeatures) HasAccessedTime() bool   { return true }
func (fatFeatures) HasModifiedTime() bool   { return true }
func (fatFeatures) HasChangedTime() bool    { return false }
func (fatFeatures) HasDeletedTime() bool    { return false }
func (fatFeatures) HasUnixPermissions() bool { return false }
func (fatFeatures) HasUserID() bool         { return false }
func (fatFeatures) HasGroupID() bool        { return false }
func (fatFeatures) HasUserPermissions() bool  { return false }
func (fatFeatures) HasGroupPermissions() bool { return false }
func (fatFeatures) TimestampEpoch() time.Time { return fatEpoch }
func (fatFeatures) DefaultNameEncoding() string { return "ascii" }
func (fatFeatures) SupportsBootCode() bool      { return true }
func (fatFeatures) MaxBootCodeSize() int        { return 448 }
func (fatFeatures) DefaultBlockSize() int       { return 0 }

// BootSector returns the parsed, read-only volume geometry.
func (fs *Fs) BootSector() *FATBootSector { return fs.boot }

// RootCluster returns the starting cluster of the root directory on FAT32.
// It is meaningless on FAT12/16, where the root directory is the fixed
// region returned by IsFixedRoot/RootRegion instead.
func (fs *Fs) RootCluster() ClusterID { return fs.boot.RootCluster }

// IsFixedRoot reports whether the root directory is a fixed pre-data region
// (FAT12/16) rather than an ordinary cluster chain (FAT32), per the design
// note in spec §9.
func (fs *Fs) IsFixedRoot() bool { return fs.boot.FatType != Fat32 }

// RootRegion returns the first sector and sector count of the fixed root
// directory region. Only meaningful when IsFixedRoot() is true.
func (fs *Fs) RootRegion() (SectorID, uint) {
	return fs.boot.FirstRootDirSector, fs.boot.RootDirSectors
}

// ClusterCount returns the total number of addressable data clusters.
func (fs *Fs) ClusterCount() uint { return fs.boot.ClustersCount }

// ClusterSize returns the size of one cluster, in bytes.
func (fs *Fs) ClusterSize() uint { return fs.boot.BytesPerCluster }

// FatTableGet returns the decoded value of cluster c.
func (fs *Fs) FatTableGet(c ClusterID) (ClusterValue, error) {
	return fs.table.Get(c)
}

// FatTableSet encodes and writes v for cluster c to every FAT copy.
func (fs *Fs) FatTableSet(c ClusterID, v ClusterValue) error {
	return fs.table.Set(c, v)
}

// Flush forces any buffered writes on the block device out to storage.
func (fs *Fs) Flush() error {
	if err := fs.device.Flush(); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// sectorOfCluster computes the first sector of data cluster c. Cluster
// indices below 2 are invalid for this mapping (they're handled separately
// by the fixed root region on FAT12/16).
func (fs *Fs) sectorOfCluster(c ClusterID) (SectorID, error) {
	if c < 2 || uint(c) >= fs.boot.ClustersCount {
		return 0, errors.ErrInvalidClusterNumber.WithMessage(
			"cluster out of range for cluster-to-sector mapping")
	}
	return fs.boot.FirstDataSector + SectorID(uint32(c-2)*uint32(fs.boot.SectorsPerCluster)), nil
}

// streamForRecord opens a Stream suitable for rewriting a directory record
// that was located at the given cluster: the fixed root region when cluster
// is 0 on a FAT12/16 volume (0 is never a valid data cluster, so this is an
// unambiguous signal), otherwise an ordinary chain stream.
func (fs *Fs) streamForRecord(cluster ClusterID) *Stream {
	if cluster == 0 && fs.IsFixedRoot() {
		return fs.OpenRootStream()
	}
	return fs.OpenStream(cluster)
}

// ReadCluster reads into buf starting at offsetInCluster bytes into cluster
// c, returning the number of bytes read (spec §6's
// read(cluster, offset_in_cluster, buf)).
func (fs *Fs) ReadCluster(c ClusterID, offsetInCluster uint, buf []byte) (int, error) {
	sector, err := fs.sectorOfCluster(c)
	if err != nil {
		return 0, err
	}
	return fs.readBytes(sector, offsetInCluster, fs.boot.BytesPerCluster, buf)
}

// WriteCluster writes buf starting at offsetInCluster bytes into cluster c.
func (fs *Fs) WriteCluster(c ClusterID, offsetInCluster uint, buf []byte) error {
	sector, err := fs.sectorOfCluster(c)
	if err != nil {
		return err
	}
	return fs.writeBytes(sector, offsetInCluster, fs.boot.BytesPerCluster, buf)
}

// readBytes reads into buf, clamped to regionSize-offset bytes, from the
// region beginning at firstSector.
func (fs *Fs) readBytes(firstSector SectorID, offset, regionSize uint, buf []byte) (int, error) {
	sectorSize := uint(fs.boot.BytesPerSector)
	maxLen := int(regionSize - offset)
	if len(buf) > maxLen {
		buf = buf[:maxLen]
	}

	sector := firstSector + SectorID(offset/sectorSize)
	inSector := int(offset % sectorSize)

	total := 0
	for total < len(buf) {
		n, err := fs.device.ReadSector(uint32(sector), inSector, buf[total:])
		if err != nil {
			return total, errors.ErrIOFailed.WrapError(err)
		}
		if n == 0 {
			break
		}
		total += n
		inSector += n
		if inSector >= int(sectorSize) {
			inSector -= int(sectorSize)
			sector++
		}
	}
	return total, nil
}

func (fs *Fs) writeBytes(firstSector SectorID, offset, regionSize uint, buf []byte) error {
	sectorSize := uint(fs.boot.BytesPerSector)
	maxLen := int(regionSize - offset)
	if len(buf) > maxLen {
		return errors.ErrInvalidArgument.WithMessage("write would exceed region bounds")
	}

	sector := firstSector + SectorID(offset/sectorSize)
	inSector := int(offset % sectorSize)

	total := 0
	for total < len(buf) {
		n, err := fs.device.WriteSector(uint32(sector), inSector, buf[total:])
		if err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
		if n == 0 {
			return errors.ErrIOFailed.WithMessage("short write to block device")
		}
		total += n
		inSector += n
		if inSector >= int(sectorSize) {
			inSector -= int(sectorSize)
			sector++
		}
	}
	return nil
}

// sectorReaderAt glues the BlockDevice interface (sector-addressed) to the
// io.Reader NewFATBootSectorFromStream expects (the boot sector is always
// sector 0).
type sectorReaderAt struct {
	device common.BlockDevice
	pos    int
}

func (r *sectorReaderAt) Read(buf []byte) (int, error) {
	n, err := r.device.ReadSector(0, r.pos, buf)
	r.pos += n
	return n, err
}
