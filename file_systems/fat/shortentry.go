package fat

import (
	"encoding/binary"
	"os"
	"strings"
	"time"

	"github.com/dargueta/disko"
)

// fatEpoch is 1980-01-01 00:00:00 local time, the earliest representable FAT
// timestamp.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

const (
	AttrReadOnly   = 0x01
	AttrHidden     = 0x02
	AttrSystem     = 0x04
	AttrVolumeID   = 0x08
	AttrDirectory  = 0x10
	AttrArchive    = 0x20

	// LfnAttr is the exact attribute byte value identifying an LFN record.
	LfnAttr = 0x0F

	// DirentSize is the size of a single raw directory record, in bytes.
	DirentSize = 32
)

// ShortEntry is the 32-byte on-disk short directory entry (spec §3, §4.5).
type ShortEntry struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// ShortEntryFromBytes deserializes 32 bytes into a ShortEntry.
func ShortEntryFromBytes(data []byte) ShortEntry {
	e := ShortEntry{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeMillis: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		FileSize:          binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(e.Name[:], data[0:8])
	copy(e.Extension[:], data[8:11])
	return e
}

// Bytes serializes the entry to its 32-byte on-disk form.
func (e *ShortEntry) Bytes() []byte {
	buf := make([]byte, DirentSize)
	copy(buf[0:8], e.Name[:])
	copy(buf[8:11], e.Extension[:])
	buf[11] = e.AttributeFlags
	buf[12] = e.NTReserved
	buf[13] = e.CreatedTimeMillis
	binary.LittleEndian.PutUint16(buf[14:16], e.CreatedTime)
	binary.LittleEndian.PutUint16(buf[16:18], e.CreatedDate)
	binary.LittleEndian.PutUint16(buf[18:20], e.LastAccessedDate)
	binary.LittleEndian.PutUint16(buf[20:22], e.FirstClusterHigh)
	binary.LittleEndian.PutUint16(buf[22:24], e.LastModifiedTime)
	binary.LittleEndian.PutUint16(buf[24:26], e.LastModifiedDate)
	binary.LittleEndian.PutUint16(buf[26:28], e.FirstClusterLow)
	binary.LittleEndian.PutUint32(buf[28:32], e.FileSize)
	return buf
}

func (e *ShortEntry) FirstCluster() ClusterID {
	return ClusterID(uint32(e.FirstClusterHigh)<<16 | uint32(e.FirstClusterLow))
}

func (e *ShortEntry) SetFirstCluster(c ClusterID) {
	e.FirstClusterHigh = uint16(uint32(c) >> 16)
	e.FirstClusterLow = uint16(uint32(c))
}

// IsFile reports whether the entry describes a regular file (spec §4.5).
func (e *ShortEntry) IsFile() bool {
	return e.AttributeFlags&(AttrVolumeID|AttrDirectory) == 0
}

// IsDir reports whether the entry describes a directory (spec §4.5).
func (e *ShortEntry) IsDir() bool {
	return e.AttributeFlags&(AttrVolumeID|AttrDirectory) == AttrDirectory
}

// IsVolumeLabel reports whether the entry is the volume's true label.
func (e *ShortEntry) IsVolumeLabel() bool {
	return e.AttributeFlags&AttrVolumeID != 0
}

// IsFree reports whether the first byte is the free-and-end-of-directory or
// removed sentinel.
func (e *ShortEntry) IsFree() bool {
	return e.Name[0] == 0x00 || e.Name[0] == 0xE5
}

// upperASCII applies the DOS uppercasing rule: bytes in [a-z] shift by -32,
// everything else passes through unchanged (spec §4.5, §9).
func upperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

// splitBaseExtension splits name on the last '.' into base and extension. If
// there is no '.', the whole string is the base and the extension is empty.
func splitBaseExtension(name string) (string, string) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// CreateRawShortEntry builds the 32-byte short entry for name (spec §4.5).
func CreateRawShortEntry(name string, isFile bool, cluster ClusterID) ShortEntry {
	e := ShortEntry{}
	for i := range e.Name {
		e.Name[i] = ' '
	}
	for i := range e.Extension {
		e.Extension[i] = ' '
	}

	if !isFile {
		e.AttributeFlags = AttrDirectory
	}

	base, ext := splitBaseExtension(name)
	if !isFile {
		base = name
		ext = ""
	}

	for i := 0; i < len(base) && i < 8; i++ {
		e.Name[i] = upperASCII(base[i])
	}
	if isFile {
		for i := 0; i < len(ext) && i < 3; i++ {
			e.Extension[i] = upperASCII(ext[i])
		}
	}

	e.SetFirstCluster(cluster)
	e.FileSize = 0

	// Fixed, semantically-unimportant timestamp: 1980-01-01 00:00:00.
	e.CreatedDate = 0x0021
	e.LastModifiedDate = 0x0021
	e.LastAccessedDate = 0x0021

	return e
}

// ReconstructedName returns the 8.3 display/compare form of the entry (spec
// §4.5): up to 8 bytes of the base until a space, a '.' if this is a file
// with a nonempty extension, then up to 3 bytes of the extension until a
// space.
func (e *ShortEntry) ReconstructedName() string {
	var sb strings.Builder
	for i := 0; i < 8 && e.Name[i] != ' '; i++ {
		sb.WriteByte(e.Name[i])
	}
	if e.IsFile() && e.Extension[0] != ' ' {
		sb.WriteByte('.')
		for i := 0; i < 3 && e.Extension[i] != ' '; i++ {
			sb.WriteByte(e.Extension[i])
		}
	}
	return sb.String()
}

// ShortNameChecksum computes the rotate-right checksum of the entry's 11-byte
// name (spec §3), used to tie LFN records to their short entry.
func ShortNameChecksum(name [11]byte) uint8 {
	var cs uint8
	for _, b := range name {
		var carry uint8
		if cs&1 != 0 {
			carry = 0x80
		}
		cs = carry + (cs >> 1) + b
	}
	return cs
}

// NameBytes returns the combined 11-byte name+extension field, as stored on
// disk and consumed by ShortNameChecksum.
func (e *ShortEntry) NameBytes() [11]byte {
	var out [11]byte
	copy(out[0:8], e.Name[:])
	copy(out[8:11], e.Extension[:])
	return out
}

// Checksum returns this entry's short-name checksum.
func (e *ShortEntry) Checksum() uint8 {
	return ShortNameChecksum(e.NameBytes())
}

// attrFlagsToFileMode converts FAT attribute flags into a Go os.FileMode.
func attrFlagsToFileMode(flags uint8) os.FileMode {
	var mode os.FileMode
	if flags&AttrReadOnly != 0 {
		mode = 0o555
	} else {
		mode = 0o777
	}

	if flags&AttrDirectory != 0 {
		mode |= os.ModeDir
	}
	return mode
}

func dateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

func timestampFromParts(datePart, timePart uint16, hundredths uint8) time.Time {
	d := dateFromInt(datePart)
	seconds := int(timePart&0x001f) * 2
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(hundredths) * 10000000
	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanoseconds, time.Local)
}

// DirEntry is the runtime, driver-facing representation of a directory
// record: the decoded short entry, its on-disk position, and the position of
// its first LFN record if one is present (spec §3).
type DirEntry struct {
	Short ShortEntry

	// Name is the display/compare name: the LFN payload if present and
	// verified, otherwise the reconstructed short 8.3 name.
	Name string

	// ShortCluster/ShortOffset are the Stream position of the on-disk short
	// record.
	ShortCluster ClusterID
	ShortOffset  uint

	// HasLFN and LFNCluster/LFNOffset locate the first LFN record, used by
	// Remove to erase the whole chain.
	HasLFN    bool
	LFNCluster ClusterID
	LFNOffset  uint

	stat disko.FileStat
}

// Stat returns the os-agnostic stat record for this entry.
func (d *DirEntry) Stat() disko.FileStat { return d.stat }

// IsFile/IsDir mirror the short entry's classification.
func (d *DirEntry) IsFile() bool { return d.Short.IsFile() }
func (d *DirEntry) IsDir() bool  { return d.Short.IsDir() }

// NewDirEntry builds the runtime DirEntry wrapper around a decoded short
// entry, computing its stat record (spec §4.7 step 6).
func NewDirEntry(bootSector *FATBootSector, short ShortEntry, name string, shortCluster ClusterID, shortOffset uint) DirEntry {
	size := int64(short.FileSize)
	sizeInClusters := size / int64(bootSector.BytesPerCluster)
	if size%int64(bootSector.BytesPerCluster) != 0 {
		sizeInClusters++
	}

	mode := attrFlagsToFileMode(short.AttributeFlags)
	lastModified := timestampFromParts(short.LastModifiedDate, short.LastModifiedTime, 0)

	return DirEntry{
		Short:        short,
		Name:         name,
		ShortCluster: shortCluster,
		ShortOffset:  shortOffset,
		stat: disko.FileStat{
			InodeNumber:  uint64(short.FirstCluster()),
			Nlinks:       1,
			ModeFlags:    mode,
			Size:         size,
			BlockSize:    int64(bootSector.BytesPerCluster),
			NumBlocks:    sizeInClusters,
			LastAccessed: dateFromInt(short.LastAccessedDate),
			LastModified: lastModified,
			CreatedAt:    timestampFromParts(short.CreatedDate, short.CreatedTime, short.CreatedTimeMillis),
		},
	}
}
