// Package fat implements a driver for FAT12/16/32 file systems: boot-sector
// parsing, the FAT table codec, cluster-chain management, the Stream cursor,
// and the directory entry machinery (short entries and long filenames).
package fat

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/disko/errors"
)

// SectorID is a zero-based logical sector index on the underlying block
// device.
type SectorID uint32

// ClusterID is a zero-based cluster index. Clusters 0 and 1 are reserved;
// data clusters begin at 2.
type ClusterID uint32

// FatType identifies which of the three on-disk FAT table encodings a volume
// uses. Per spec, this is determined purely by cluster count, never by the
// filesystem-type string recorded in the boot sector.
type FatType int

const (
	Fat12 FatType = 12
	Fat16 FatType = 16
	Fat32 FatType = 32
)

func (t FatType) String() string {
	switch t {
	case Fat12:
		return "FAT12"
	case Fat16:
		return "FAT16"
	case Fat32:
		return "FAT32"
	default:
		return fmt.Sprintf("FatType(%d)", int(t))
	}
}

// RawFATBootSectorWithBPB is the on-disk representation of the boot sector
// fields common to all three FAT versions.
type RawFATBootSectorWithBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	totalSectors16    uint16
	Media             uint8
	sectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	totalSectors32    uint32
}

// rawFAT32ExtendedBPB is the portion of the BPB that exists only on FAT32
// volumes, immediately following the 32-bit sectorsPerFAT32 field.
type rawFAT32ExtendedBPB struct {
	ExtFlags     uint16
	FSVersion    uint16
	RootCluster  uint32
	FSInfoSector uint16
	BackupBoot   uint16
	Reserved     [12]byte
}

// FATBootSector extends RawFATBootSectorWithBPB with the derived volume
// geometry (spec §3) computed from it.
type FATBootSector struct {
	RawFATBootSectorWithBPB

	FatType FatType

	// SectorsPerFAT is the number of sectors occupied by a single copy of the
	// FAT table.
	SectorsPerFAT uint
	// TotalFATSectors is SectorsPerFAT * NumFATs.
	TotalFATSectors uint
	// RootDirSectors is the number of sectors occupied by the fixed-size root
	// directory region. Zero on FAT32, where the root directory is an
	// ordinary cluster chain.
	RootDirSectors uint
	// BytesPerCluster is BytesPerSector * SectorsPerCluster.
	BytesPerCluster uint
	// ClustersCount is the total number of addressable data clusters.
	ClustersCount uint
	// FirstFatSector is the sector index of the first copy of the FAT table,
	// i.e. ReservedSectors.
	FirstFatSector SectorID
	// FirstRootDirSector is the sector index where the fixed-size root
	// directory begins (FAT12/16 only).
	FirstRootDirSector SectorID
	// FirstDataSector is the sector index of cluster 2.
	FirstDataSector SectorID
	// RootCluster is the starting cluster of the root directory on FAT32, or
	// 0 on FAT12/16 (where the root directory is the fixed region above).
	RootCluster ClusterID
	// DirentsPerCluster is the number of 32-byte directory records that fit
	// in one cluster.
	DirentsPerCluster int
	// TotalSectors is the total sector count of the volume.
	TotalSectors uint
}

// DetermineFATVersion determines the FAT variant purely from the cluster
// count, per spec §4.1. This is the only correct way to do so; the
// filesystem-type string recorded in the boot sector is informational only
// and must be ignored.
func DetermineFATVersion(totalClusters uint) FatType {
	// These thresholds come from Microsoft's FAT documentation, v1.03, page 14.
	if totalClusters < 4085 {
		return Fat12
	}
	if totalClusters < 65525 {
		return Fat16
	}
	return Fat32
}

// NewFATBootSectorFromStream reads and validates the boot sector at the
// start of reader, returning the parsed geometry. There are no guarantees on
// the position of the stream pointer if an error occurs.
func NewFATBootSectorFromStream(reader io.Reader) (*FATBootSector, error) {
	rawHeader := RawFATBootSectorWithBPB{}
	if err := binary.Read(reader, binary.LittleEndian, &rawHeader); err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}

	var sectorsPerFAT32 uint32
	if err := binary.Read(reader, binary.LittleEndian, &sectorsPerFAT32); err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}

	var sectorsPerFAT uint
	if rawHeader.sectorsPerFAT16 != 0 {
		sectorsPerFAT = uint(rawHeader.sectorsPerFAT16)
	} else {
		sectorsPerFAT = uint(sectorsPerFAT32)
	}

	var totalSectors uint
	if rawHeader.totalSectors16 != 0 {
		totalSectors = uint(rawHeader.totalSectors16)
	} else {
		totalSectors = uint(rawHeader.totalSectors32)
	}

	switch rawHeader.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, errors.ErrFileSystemCorrupted.WithMessage(fmt.Sprintf(
			"BytesPerSector must be 512, 1024, 2048, or 4096, got %d", rawHeader.BytesPerSector))
	}

	switch rawHeader.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, errors.ErrFileSystemCorrupted.WithMessage(fmt.Sprintf(
			"SectorsPerCluster must be a power of 2 in 1-128, got %d", rawHeader.SectorsPerCluster))
	}

	// Root directory sectors: ceil(RootEntryCount * 32 / BytesPerSector). Zero
	// on FAT32, where RootEntryCount is always 0.
	rootDirSectors := uint(
		(uint32(rawHeader.RootEntryCount)*32 + uint32(rawHeader.BytesPerSector) - 1) /
			uint32(rawHeader.BytesPerSector))

	totalFATSectors := uint(rawHeader.NumFATs) * sectorsPerFAT
	firstDataSector := uint(rawHeader.ReservedSectors) + totalFATSectors + rootDirSectors
	dataSectors := totalSectors - firstDataSector
	totalClusters := dataSectors / uint(rawHeader.SectorsPerCluster)

	fatType := DetermineFATVersion(totalClusters)
	if fatType == Fat32 && rootDirSectors != 0 {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(fmt.Sprintf(
			"RootDirSectors is nonzero (%d) for a FAT32 disk", rootDirSectors))
	}

	bytesPerCluster := uint(rawHeader.BytesPerSector) * uint(rawHeader.SectorsPerCluster)
	if bytesPerCluster > 32768 {
		return nil, errors.ErrFileSystemCorrupted.WithMessage(fmt.Sprintf(
			"BytesPerCluster cannot exceed 32768, got %d", bytesPerCluster))
	}

	var rootCluster ClusterID
	if fatType == Fat32 {
		extended := rawFAT32ExtendedBPB{}
		if err := binary.Read(reader, binary.LittleEndian, &extended); err != nil {
			return nil, errors.ErrIOFailed.WrapError(err)
		}
		rootCluster = ClusterID(extended.RootCluster)
	}

	return &FATBootSector{
		RawFATBootSectorWithBPB: rawHeader,
		FatType:                 fatType,
		SectorsPerFAT:           sectorsPerFAT,
		TotalFATSectors:         totalFATSectors,
		RootDirSectors:          rootDirSectors,
		BytesPerCluster:         bytesPerCluster,
		ClustersCount:           totalClusters,
		FirstFatSector:          SectorID(rawHeader.ReservedSectors),
		FirstRootDirSector:      SectorID(uint(rawHeader.ReservedSectors) + totalFATSectors),
		FirstDataSector:         SectorID(firstDataSector),
		RootCluster:             rootCluster,
		DirentsPerCluster:       int(bytesPerCluster) / DirentSize,
		TotalSectors:            totalSectors,
	}, nil
}
