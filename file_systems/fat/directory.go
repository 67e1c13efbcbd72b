package fat

import (
	stderrors "errors"

	"github.com/dargueta/disko/errors"
)

// Dir is a directory handle: the filesystem it belongs to, plus its starting
// cluster (spec §3). The root directory is represented by isRoot == true;
// its actual starting point (the FAT32 root cluster, or the FAT12/16 fixed
// region) is resolved lazily by stream().
type Dir struct {
	fs           *Fs
	isRoot       bool
	startCluster ClusterID
}

// RootDir returns a handle to the volume's root directory.
func (fs *Fs) RootDir() *Dir {
	return &Dir{fs: fs, isRoot: true}
}

// OpenDir returns a handle to the subdirectory whose data begins at cluster.
func (fs *Fs) OpenDir(cluster ClusterID) *Dir {
	return &Dir{fs: fs, startCluster: cluster}
}

// StartCluster returns the directory's starting cluster. The root directory
// handle returns 0 on every FAT type; use IsRoot to detect that case (on
// FAT32 the root's first cluster is fs.RootCluster()).
func (d *Dir) StartCluster() ClusterID { return d.startCluster }

// IsRoot reports whether this handle is the volume's root directory.
func (d *Dir) IsRoot() bool { return d.isRoot }

func (d *Dir) stream() *Stream {
	if d.isRoot {
		return d.fs.OpenRootStream()
	}
	return d.fs.OpenStream(d.startCluster)
}

func (s *Stream) seekTo(cluster ClusterID, offset uint) {
	if s.mode == streamModeFixedRegion {
		s.linearOffset = offset
		return
	}
	s.cluster = cluster
	s.offset = offset
}

// DirIterator walks a directory's records, reassembling LFN sequences and
// yielding (short, LFN) pairs (spec §4.7).
type DirIterator struct {
	fs      *Fs
	stream  *Stream
	builder LfnBuilder
}

// Iterator returns a fresh iterator over this directory's entries.
func (d *Dir) Iterator() *DirIterator {
	return &DirIterator{fs: d.fs, stream: d.stream()}
}

// Next returns the next live directory entry, or (nil, nil) at the end of
// the directory (spec §4.7).
func (it *DirIterator) Next() (*DirEntry, error) {
	buf := make([]byte, DirentSize)

	for {
		cluster, offset := it.stream.Position()
		n, err := it.stream.Read(buf)
		if err != nil {
			return nil, err
		}
		if n < DirentSize {
			return nil, nil
		}

		if buf[0] == 0x00 {
			return nil, nil
		}
		if buf[0] == 0xE5 {
			it.builder.Reset()
			continue
		}

		if it.builder.Feed(cluster, offset, buf) {
			continue
		}

		short := ShortEntryFromBytes(buf)
		lfnName, lfnCluster, lfnOffset, checksum, haveLFN := it.builderBuild()
		it.builder.Reset()

		if short.IsVolumeLabel() {
			continue
		}

		name := short.ReconstructedName()
		entry := NewDirEntry(it.fs.boot, short, name, cluster, offset)

		if haveLFN {
			if checksum == short.Checksum() {
				entry.Name = lfnName
				entry.HasLFN = true
				entry.LFNCluster = lfnCluster
				entry.LFNOffset = lfnOffset
			}
		}

		return &entry, nil
	}
}

// builderBuild is a thin wrapper so Next can call LfnBuilder.Build, reset
// freshly afterward regardless of outcome (spec §4.7 step 7 already resets
// on the short-entry branch above; this just forwards the result captured
// before that reset happened -- Next reads the builder before resetting it).
func (it *DirIterator) builderBuild() (string, ClusterID, uint, uint8, bool) {
	return it.builder.Build()
}

// findFreeSlotPosition implements free-slot search (spec §4.8): it walks the
// directory stream looking for k contiguous removed/free slots, or the
// free-and-end-of-directory terminator, and returns a stream seeked to the
// position writing should begin at.
func (d *Dir) findFreeSlotPosition(k int) (*Stream, error) {
	s := d.stream()
	buf := make([]byte, DirentSize)

	runCluster, runOffset := ClusterID(0), uint(0)
	runCount := 0

	for {
		curCluster, curOffset := s.Position()
		n, err := s.Read(buf)
		if err != nil {
			return nil, err
		}

		if n < DirentSize {
			if runCount > 0 {
				s.seekTo(runCluster, runOffset)
				return s, nil
			}
			if s.mode == streamModeFixedRegion {
				return nil, errors.ErrNoSpaceOnDevice.WithMessage("root directory is full")
			}
			s.seekTo(curCluster, curOffset)
			return s, nil
		}

		if buf[0] == 0x00 {
			if runCount > 0 {
				s.seekTo(runCluster, runOffset)
			} else {
				s.seekTo(curCluster, curOffset)
			}
			return s, nil
		}

		if buf[0] == 0xE5 {
			if runCount == 0 {
				runCluster, runOffset = curCluster, curOffset
			}
			runCount++
			if runCount == k {
				s.seekTo(runCluster, runOffset)
				return s, nil
			}
			continue
		}

		runCount = 0
	}
}

// FindDirEntry resolves name against this directory's entries, comparing
// against both the short 8.3 name and the LFN (if present) of each entry
// (spec §4.9).
func (d *Dir) FindDirEntry(name string) (*DirEntry, error) {
	it := d.Iterator()
	for {
		entry, err := it.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, errors.ErrNotFound
		}
		if entry.Name == name || entry.Short.ReconstructedName() == name {
			return entry, nil
		}
	}
}

// ItemCount counts the directory's live entries, excluding "." and ".."
// (spec §4.9).
func (d *Dir) ItemCount() (int, error) {
	count := 0
	it := d.Iterator()
	for {
		entry, err := it.Next()
		if err != nil {
			return 0, err
		}
		if entry == nil {
			return count, nil
		}
		if entry.Short.ReconstructedName() == "." || entry.Short.ReconstructedName() == ".." {
			continue
		}
		count++
	}
}

// CreateDirEntry inserts a new short entry (plus an LFN sequence if name
// does not already round-trip through the 8.3 short form) for name,
// pointing at cluster (spec §4.9). It fails ObjectAlreadyExist if name
// already resolves in this directory.
func (d *Dir) CreateDirEntry(name string, isFile bool, cluster ClusterID) (*DirEntry, error) {
	_, err := d.FindDirEntry(name)
	if err == nil {
		return nil, errors.ErrExists.WithMessage(name)
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	short := CreateRawShortEntry(name, isFile, cluster)
	checksum := short.Checksum()

	needLFN := name != short.ReconstructedName()
	var lfnRecords [][]byte
	recordCount := 0
	if needLFN {
		lfnRecords = SerializeLFN(name, checksum)
		recordCount = len(lfnRecords)
	}

	s, err := d.findFreeSlotPosition(recordCount + 1)
	if err != nil {
		return nil, err
	}

	for _, record := range lfnRecords {
		if _, err := s.Write(record); err != nil {
			return nil, err
		}
	}

	shortCluster, shortOffset := s.Position()
	if _, err := s.Write(short.Bytes()); err != nil {
		return nil, err
	}

	entry := NewDirEntry(d.fs.boot, short, name, shortCluster, shortOffset)
	return &entry, nil
}

// CreateFile allocates a cluster for a new, empty file and inserts its
// directory entry, returning an open File (spec §4.9, §4.10).
func (d *Dir) CreateFile(name string) (*File, error) {
	cluster, err := d.fs.Allocate()
	if err != nil {
		return nil, err
	}

	entry, err := d.CreateDirEntry(name, true, cluster)
	if err != nil {
		return nil, err
	}

	return d.fs.openFile(entry), nil
}

// CreateDir allocates a cluster for a new subdirectory, populates its "."
// and ".." entries, and links it into this directory (spec §4.9).
func (d *Dir) CreateDir(name string) (*Dir, error) {
	cluster, err := d.fs.Allocate()
	if err != nil {
		return nil, err
	}

	parentCluster := d.startCluster
	if d.isRoot && !d.fs.IsFixedRoot() {
		parentCluster = d.fs.RootCluster()
	}

	child := d.fs.OpenDir(cluster)
	childStream := child.stream()

	dotEntry := CreateRawShortEntry(".", false, cluster)
	if _, err := childStream.Write(dotEntry.Bytes()); err != nil {
		return nil, err
	}

	dotDotEntry := CreateRawShortEntry("..", false, parentCluster)
	if _, err := childStream.Write(dotDotEntry.Bytes()); err != nil {
		return nil, err
	}

	if _, err := d.CreateDirEntry(name, false, cluster); err != nil {
		return nil, err
	}

	return child, nil
}

// RemoveFile locates name, verifies it's a file, frees its cluster chain,
// and marks its directory record(s) removed (spec §4.9).
func (d *Dir) RemoveFile(name string) error {
	entry, err := d.FindDirEntry(name)
	if err != nil {
		return err
	}
	if !entry.IsFile() {
		return errors.ErrNotAFile.WithMessage(name)
	}

	if err := d.fs.Free(entry.Short.FirstCluster()); err != nil {
		return err
	}
	return d.eraseEntry(entry)
}

// RemoveDir locates name, verifies it's an empty directory, frees its
// cluster chain, and marks its directory record(s) removed (spec §4.9).
func (d *Dir) RemoveDir(name string) error {
	entry, err := d.FindDirEntry(name)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return errors.ErrNotADirectory.WithMessage(name)
	}

	child := d.fs.OpenDir(entry.Short.FirstCluster())
	count, err := child.ItemCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.ErrDirectoryNotEmpty.WithMessage(name)
	}

	if err := d.fs.Free(entry.Short.FirstCluster()); err != nil {
		return err
	}
	return d.eraseEntry(entry)
}

// eraseEntry writes the 0xE5 sentinel over entry's short record, and over
// its LFN chain if it has one, preserving the rest of each record (spec
// §4.5's Remove). It walks the directory stream one record at a time so the
// FAT12/16 fixed-region root and ordinary cluster chains are handled
// identically.
func (d *Dir) eraseEntry(entry *DirEntry) error {
	if entry.HasLFN {
		s := d.stream()
		s.seekTo(entry.LFNCluster, entry.LFNOffset)
		scratch := make([]byte, DirentSize-1)

		for {
			cluster, offset := s.Position()
			if cluster == entry.ShortCluster && offset == entry.ShortOffset {
				break
			}
			if _, err := s.Write([]byte{0xE5}); err != nil {
				return err
			}
			if _, err := s.Read(scratch); err != nil {
				return err
			}
		}
	}

	s := d.stream()
	s.seekTo(entry.ShortCluster, entry.ShortOffset)
	_, err := s.Write([]byte{0xE5})
	return err
}
