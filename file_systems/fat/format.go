package fat

import (
	"bytes"
	"encoding/binary"

	"github.com/dargueta/disko/errors"
	"github.com/dargueta/disko/file_systems/common"
)

// FormatOptions describes the geometry of a blank volume to write, the
// parameters a real `mkfs.fat` implementation derives from a disk geometry
// table (spec's domain-stack CLI, backed by disks.DiskGeometry).
type FormatOptions struct {
	SectorSize        uint16
	TotalSectors      uint32
	SectorsPerCluster uint8
	NumFATs           uint8
	ReservedSectors   uint16
	// RootEntryCount is the fixed root directory capacity for FAT12/16.
	// It must be 0 for FAT32, which uses a one-cluster root chain; Format
	// rejects a nonzero value there.
	RootEntryCount uint16
	Media          uint8
	VolumeLabel    string
}

// sectorsPerFATEstimate applies the standard Microsoft BPB formula (FAT
// whitepaper v1.03 §"Derivation of sectorsPerFAT") to size the FAT table for
// the requested geometry.
func sectorsPerFATEstimate(opts FormatOptions, fatType FatType, rootDirSectors uint32) uint32 {
	dataRegionSectors := opts.TotalSectors - (uint32(opts.ReservedSectors) + rootDirSectors)
	divisor := uint32(256)*uint32(opts.SectorsPerCluster) + uint32(opts.NumFATs)
	if fatType == Fat32 {
		divisor /= 2
	}
	return (dataRegionSectors + divisor - 1) / divisor
}

// Format writes a blank boot sector, zeroed FAT tables (the reserved entries
// for clusters 0 and 1 are left zero too), and an empty root directory region to
// device, per spec's domain-stack CLI `format` command.
func Format(device common.BlockDevice, opts FormatOptions) error {
	rootDirSectors := uint32((uint32(opts.RootEntryCount)*32 + uint32(opts.SectorSize) - 1) / uint32(opts.SectorSize))

	// First approximation assumes FAT16/12; FAT32 never has a fixed root
	// region, so pick the type from the resulting cluster count and redo the
	// FAT-size estimate if it turns out to be FAT32.
	sectorsPerFAT := sectorsPerFATEstimate(opts, Fat16, rootDirSectors)
	totalFATSectors := uint32(opts.NumFATs) * sectorsPerFAT
	firstDataSector := uint32(opts.ReservedSectors) + totalFATSectors + rootDirSectors
	dataSectors := opts.TotalSectors - firstDataSector
	clusterCount := dataSectors / uint32(opts.SectorsPerCluster)
	fatType := DetermineFATVersion(uint(clusterCount))

	if fatType == Fat32 {
		if opts.RootEntryCount != 0 {
			return errors.ErrInvalidArgument.WithMessage("RootEntryCount must be 0 for FAT32")
		}
		rootDirSectors = 0
		sectorsPerFAT = sectorsPerFATEstimate(opts, Fat32, 0)
		totalFATSectors = uint32(opts.NumFATs) * sectorsPerFAT
		firstDataSector = uint32(opts.ReservedSectors) + totalFATSectors
		dataSectors = opts.TotalSectors - firstDataSector
		clusterCount = dataSectors/uint32(opts.SectorsPerCluster) - 1 // cluster 2 is the root
	}

	if err := writeBootSector(device, opts, fatType, sectorsPerFAT); err != nil {
		return err
	}
	if err := zeroFATs(device, opts, fatType, totalFATSectors); err != nil {
		return err
	}
	if fatType == Fat32 {
		rootCluster := ClusterID(2)
		table := NewFATTable(device, &FATBootSector{
			RawFATBootSectorWithBPB: RawFATBootSectorWithBPB{
				NumFATs:        opts.NumFATs,
				BytesPerSector: opts.SectorSize,
			},
			FatType:        fatType,
			SectorsPerFAT:  uint(sectorsPerFAT),
			FirstFatSector: SectorID(opts.ReservedSectors),
		})
		if err := table.Set(rootCluster, Last()); err != nil {
			return err
		}
	}

	return zeroRootRegion(device, opts, firstDataSector, rootDirSectors)
}

func writeBootSector(device common.BlockDevice, opts FormatOptions, fatType FatType, sectorsPerFAT uint32) error {
	header := RawFATBootSectorWithBPB{
		JmpBoot:           [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    opts.SectorSize,
		SectorsPerCluster: opts.SectorsPerCluster,
		ReservedSectors:   opts.ReservedSectors,
		NumFATs:           opts.NumFATs,
		RootEntryCount:    opts.RootEntryCount,
		Media:             opts.Media,
		SectorsPerTrack:   0,
		NumHeads:          0,
	}
	copy(header.OEMName[:], "DISKOFAT")

	if opts.TotalSectors > 0xFFFF {
		header.totalSectors32 = opts.TotalSectors
	} else {
		header.totalSectors16 = uint16(opts.TotalSectors)
	}

	if fatType != Fat32 {
		header.sectorsPerFAT16 = uint16(sectorsPerFAT)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}

	if fatType == Fat32 {
		if err := binary.Write(buf, binary.LittleEndian, sectorsPerFAT); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
		extended := rawFAT32ExtendedBPB{RootCluster: 2}
		if err := binary.Write(buf, binary.LittleEndian, &extended); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	} else {
		if err := binary.Write(buf, binary.LittleEndian, uint32(0)); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	}

	sector := make([]byte, opts.SectorSize)
	copy(sector, buf.Bytes())
	sector[opts.SectorSize-2] = 0x55
	sector[opts.SectorSize-1] = 0xAA
	_, err := device.WriteSector(0, 0, sector)
	if err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// zeroFATs blanks every copy of the FAT table. Clusters 0 and 1 are reserved
// and never read by this driver (cluster scans always start at 2), so they're
// left zeroed rather than encoded with the traditional media-descriptor byte.
func zeroFATs(device common.BlockDevice, opts FormatOptions, fatType FatType, totalFATSectors uint32) error {
	zero := make([]byte, opts.SectorSize)
	for s := uint32(opts.ReservedSectors); s < uint32(opts.ReservedSectors)+totalFATSectors; s++ {
		if _, err := device.WriteSector(s, 0, zero); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	}
	return nil
}

func zeroRootRegion(device common.BlockDevice, opts FormatOptions, firstDataSector uint32, rootDirSectors uint32) error {
	zero := make([]byte, opts.SectorSize)
	firstRootSector := firstDataSector - rootDirSectors
	for s := firstRootSector; s < firstDataSector; s++ {
		if _, err := device.WriteSector(s, 0, zero); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	}
	if rootDirSectors == 0 {
		// FAT32: cluster 2 holds the root directory, immediately following
		// the data region start.
		for i := uint8(0); i < opts.SectorsPerCluster; i++ {
			if _, err := device.WriteSector(firstDataSector+uint32(i), 0, zero); err != nil {
				return errors.ErrIOFailed.WrapError(err)
			}
		}
	}
	return nil
}
