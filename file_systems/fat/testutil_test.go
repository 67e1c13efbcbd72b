package fat

import (
	"testing"

	"github.com/dargueta/disko"
	diskotesting "github.com/dargueta/disko/testing"
)

const testSectorSize = 512

// newFakeFs builds a minimally valid, directly-constructed Fs over an
// in-memory block device, sized to comfortably hold clusterCount data
// clusters plus (for FAT12/16) a rootEntryCount-entry fixed root region. It
// bypasses Format/Mount so unit tests can exercise the FAT table codec,
// cluster-chain algorithms, and directory machinery in isolation without
// needing a structurally valid boot sector on disk.
func newFakeFs(t *testing.T, fatType FatType, clusterCount uint, rootEntryCount uint16) *Fs {
	t.Helper()

	const sectorsPerCluster = 1
	const reservedSectors = 1
	const numFATs = 2

	entrySize := uint(2)
	if fatType == Fat32 {
		entrySize = 4
	}
	bytesPerFAT := (clusterCount + 2) * entrySize
	sectorsPerFAT := (bytesPerFAT + testSectorSize - 1) / testSectorSize
	if sectorsPerFAT < 1 {
		sectorsPerFAT = 1
	}

	rootDirSectors := uint(0)
	if fatType != Fat32 {
		rootDirSectors = (uint(rootEntryCount)*32 + testSectorSize - 1) / testSectorSize
	}

	firstRootSector := reservedSectors + numFATs*sectorsPerFAT
	firstDataSector := firstRootSector + rootDirSectors
	totalSectors := firstDataSector + clusterCount*sectorsPerCluster

	backing := make([]byte, totalSectors*testSectorSize)
	device := diskotesting.NewMemoryBlockDevice(backing, testSectorSize, totalSectors)

	boot := &FATBootSector{
		RawFATBootSectorWithBPB: RawFATBootSectorWithBPB{
			BytesPerSector:    testSectorSize,
			SectorsPerCluster: sectorsPerCluster,
			ReservedSectors:   uint16(reservedSectors),
			NumFATs:           numFATs,
			RootEntryCount:    rootEntryCount,
		},
		FatType:            fatType,
		SectorsPerFAT:       sectorsPerFAT,
		TotalFATSectors:     numFATs * sectorsPerFAT,
		RootDirSectors:      rootDirSectors,
		BytesPerCluster:     testSectorSize * sectorsPerCluster,
		ClustersCount:       clusterCount,
		FirstFatSector:      SectorID(reservedSectors),
		FirstRootDirSector:  SectorID(firstRootSector),
		FirstDataSector:     SectorID(firstDataSector),
		DirentsPerCluster:   (testSectorSize * sectorsPerCluster) / DirentSize,
		TotalSectors:        totalSectors,
	}

	fs := &Fs{
		device: device,
		boot:   boot,
		table:  NewFATTable(device, boot),
		flags:  disko.MountFlagsAllowAll,
	}

	if fatType == Fat32 {
		boot.RootCluster = 2
		if err := fs.table.Set(2, Last()); err != nil {
			t.Fatalf("failed to seed FAT32 root cluster: %s", err)
		}
		if err := fs.zeroCluster(2); err != nil {
			t.Fatalf("failed to zero FAT32 root cluster: %s", err)
		}
	}

	return fs
}
