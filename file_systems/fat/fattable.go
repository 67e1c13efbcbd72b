package fat

import (
	"fmt"

	"github.com/dargueta/disko/errors"
	"github.com/dargueta/disko/file_systems/common"
)

// ClusterValueKind is the tag of the ClusterValue variant (spec §3).
type ClusterValueKind int

const (
	// ClusterFree marks a cluster as unallocated.
	ClusterFree ClusterValueKind = iota
	// ClusterNext marks a cluster as pointing to the next cluster in its
	// chain (carried in ClusterValue.Next).
	ClusterNext
	// ClusterLast marks a cluster as the final cluster of its chain.
	ClusterLast
	// ClusterBad marks a cluster as unusable due to a hardware defect.
	ClusterBad
)

// ClusterValue is the tagged variant `Free | Next(u32) | Last | Bad` from
// spec §3. Next is only meaningful when Kind == ClusterNext.
type ClusterValue struct {
	Kind ClusterValueKind
	Next ClusterID
}

func Free() ClusterValue               { return ClusterValue{Kind: ClusterFree} }
func Last() ClusterValue               { return ClusterValue{Kind: ClusterLast} }
func Bad() ClusterValue                { return ClusterValue{Kind: ClusterBad} }
func NextCluster(c ClusterID) ClusterValue { return ClusterValue{Kind: ClusterNext, Next: c} }

func (v ClusterValue) String() string {
	switch v.Kind {
	case ClusterFree:
		return "Free"
	case ClusterLast:
		return "Last"
	case ClusterBad:
		return "Bad"
	case ClusterNext:
		return fmt.Sprintf("Next(%d)", v.Next)
	default:
		return "Invalid"
	}
}

// FATTable decodes and encodes cluster entries for one of the three on-disk
// FAT encodings (spec §4.2), writing every FAT copy in lockstep.
type FATTable struct {
	device         common.BlockDevice
	fatType        FatType
	firstFatSector SectorID
	sectorsPerFAT  uint
	fatsCount      uint
	sectorSize     int
}

// NewFATTable builds a FATTable over device using the geometry recorded in
// boot.
func NewFATTable(device common.BlockDevice, boot *FATBootSector) *FATTable {
	return &FATTable{
		device:         device,
		fatType:        boot.FatType,
		firstFatSector: boot.FirstFatSector,
		sectorsPerFAT:  boot.SectorsPerFAT,
		fatsCount:      uint(boot.NumFATs),
		sectorSize:     int(boot.BytesPerSector),
	}
}

// entryByteIndex returns the byte index of cluster c's entry within a single
// FAT copy. The number of bytes to read for it comes from entrySize (2,
// except FAT32; FAT12 reads a 2-byte window spanning the neighbour nibble).
func (t *FATTable) entryByteIndex(c ClusterID) int64 {
	switch t.fatType {
	case Fat32:
		return int64(c) * 4
	case Fat16:
		return int64(c) * 2
	default: // Fat12
		return int64(c) + int64(c)/2
	}
}

func (t *FATTable) entrySize() int {
	switch t.fatType {
	case Fat32:
		return 4
	default:
		return 2
	}
}

// readWindow reads the bytes needed to decode (or read-modify-write encode)
// cluster c's entry from the first FAT copy.
func (t *FATTable) readWindow(c ClusterID) ([]byte, int64, int64, error) {
	byteIndex := t.entryByteIndex(c)
	size := t.entrySize()

	sector := int64(t.firstFatSector) + byteIndex/int64(t.sectorSize)
	offset := byteIndex % int64(t.sectorSize)
	startSector, startOffset := sector, offset

	// FAT12 entries can straddle a sector boundary; read the window
	// sector-by-sector to stay within each ReadSector call's sector.
	buf := make([]byte, size)
	read := 0
	for read < size {
		n, err := t.device.ReadSector(uint32(sector), int(offset), buf[read:])
		if err != nil {
			return nil, 0, 0, errors.ErrIOFailed.WrapError(err)
		}
		if n == 0 {
			return nil, 0, 0, errors.ErrIOFailed.WithMessage("short read decoding FAT entry")
		}
		read += n
		offset += int64(n)
		if offset >= int64(t.sectorSize) {
			offset -= int64(t.sectorSize)
			sector++
		}
	}
	return buf, startSector, startOffset, nil
}

// Get decodes the value of cluster c from the first FAT copy (spec §4.2).
func (t *FATTable) Get(c ClusterID) (ClusterValue, error) {
	window, _, _, err := t.readWindow(c)
	if err != nil {
		return ClusterValue{}, err
	}

	switch t.fatType {
	case Fat32:
		raw := (uint32(window[0]) | uint32(window[1])<<8 | uint32(window[2])<<16 | uint32(window[3])<<24) & 0x0FFFFFFF
		return decodeFat32(raw), nil
	case Fat16:
		raw := uint16(window[0]) | uint16(window[1])<<8
		return decodeFat16(raw), nil
	default: // Fat12
		word := uint16(window[0]) | uint16(window[1])<<8
		var raw uint16
		if c%2 == 0 {
			raw = word & 0x0FFF
		} else {
			raw = word >> 4
		}
		return decodeFat12(raw), nil
	}
}

func decodeFat32(raw uint32) ClusterValue {
	switch {
	case raw == 0:
		return Free()
	case raw == 0x0FFFFFF7:
		return Bad()
	case raw >= 0x0FFFFFF8:
		return Last()
	default:
		return NextCluster(ClusterID(raw))
	}
}

func decodeFat16(raw uint16) ClusterValue {
	switch {
	case raw == 0:
		return Free()
	case raw == 0xFFF7:
		return Bad()
	case raw >= 0xFFF8:
		return Last()
	default:
		return NextCluster(ClusterID(raw))
	}
}

func decodeFat12(raw uint16) ClusterValue {
	switch {
	case raw == 0x000:
		return Free()
	case raw == 0xFF7:
		return Bad()
	case raw >= 0xFF8:
		return Last()
	default:
		return NextCluster(ClusterID(raw))
	}
}

func encodeFat32(v ClusterValue) uint32 {
	switch v.Kind {
	case ClusterFree:
		return 0
	case ClusterBad:
		return 0x0FFFFFF7
	case ClusterLast:
		return 0x0FFFFFFF
	default:
		return uint32(v.Next) & 0x0FFFFFFF
	}
}

func encodeFat16(v ClusterValue) uint16 {
	switch v.Kind {
	case ClusterFree:
		return 0
	case ClusterBad:
		return 0xFFF7
	case ClusterLast:
		return 0xFFFF
	default:
		return uint16(v.Next)
	}
}

func encodeFat12(v ClusterValue) uint16 {
	switch v.Kind {
	case ClusterFree:
		return 0
	case ClusterBad:
		return 0xFF7
	case ClusterLast:
		return 0xFFF
	default:
		return uint16(v.Next) & 0x0FFF
	}
}

// Set encodes v into cluster c's entry and writes it to every FAT copy in
// lockstep (spec §4.2, §5). FAT12 writes perform a read-modify-write of the
// 2-byte window to preserve the neighbouring entry's nibble.
func (t *FATTable) Set(c ClusterID, v ClusterValue) error {
	window, sector, offset, err := t.readWindow(c)
	if err != nil {
		return err
	}

	switch t.fatType {
	case Fat32:
		raw := encodeFat32(v)
		window[0] = byte(raw)
		window[1] = byte(raw >> 8)
		window[2] = byte(raw >> 16)
		// Preserve the reserved top 4 bits of the 4th byte.
		window[3] = (window[3] & 0xF0) | byte(raw>>24)&0x0F
	case Fat16:
		raw := encodeFat16(v)
		window[0] = byte(raw)
		window[1] = byte(raw >> 8)
	default: // Fat12
		word := uint16(window[0]) | uint16(window[1])<<8
		raw := encodeFat12(v)
		if c%2 == 0 {
			word = (word & 0xF000) | raw
		} else {
			word = (word & 0x000F) | (raw << 4)
		}
		window[0] = byte(word)
		window[1] = byte(word >> 8)
	}

	return t.writeAllCopies(c, window, sector, offset)
}

// writeAllCopies writes the freshly-encoded window for cluster c to every FAT
// copy, recomputing each copy's sector offset from copy 0's.
func (t *FATTable) writeAllCopies(c ClusterID, window []byte, firstCopySector, firstCopyOffset int64) error {
	for k := uint(0); k < t.fatsCount; k++ {
		sector := firstCopySector + int64(k)*int64(t.sectorsPerFAT)
		offset := firstCopyOffset

		written := 0
		for written < len(window) {
			n, err := t.device.WriteSector(uint32(sector), int(offset), window[written:])
			if err != nil {
				return errors.ErrIOFailed.WrapError(err)
			}
			if n == 0 {
				return errors.ErrIOFailed.WithMessage("short write encoding FAT entry")
			}
			written += n
			offset += int64(n)
			if offset >= int64(t.sectorSize) {
				offset -= int64(t.sectorSize)
				sector++
			}
		}
	}
	return nil
}
