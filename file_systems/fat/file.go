package fat

// File is an open file handle: its directory entry, a Stream over its
// cluster chain, the current byte offset, and whether the entry's size
// needs to be flushed back to disk (spec §3, §4.10).
type File struct {
	fs     *Fs
	entry  *DirEntry
	stream *Stream
	offset int64
	dirty  bool
}

// openFile wraps entry in an open File, positioned at offset 0.
func (fs *Fs) openFile(entry *DirEntry) *File {
	return &File{fs: fs, entry: entry, stream: fs.OpenStream(entry.Short.FirstCluster())}
}

// OpenFile opens entry (as returned by Dir.FindDirEntry) for reading and
// writing.
func (fs *Fs) OpenFile(entry *DirEntry) *File {
	return fs.openFile(entry)
}

// Size returns the file's current size, in bytes.
func (f *File) Size() int64 { return int64(f.entry.Short.FileSize) }

// Entry returns the file's directory entry.
func (f *File) Entry() *DirEntry { return f.entry }

// Read reads into buf, clamped to the bytes remaining before the file's
// recorded size, and advances the file offset (spec §4.10).
func (f *File) Read(buf []byte) (int, error) {
	remaining := f.Size() - f.offset
	if remaining <= 0 {
		return 0, nil
	}
	if int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	n, err := f.stream.Read(buf)
	f.offset += int64(n)
	return n, err
}

// Write writes buf, extending the cluster chain as needed, advances the
// file offset, and updates the recorded size (marking the entry dirty) if
// the write extends past it (spec §4.10).
func (f *File) Write(buf []byte) (int, error) {
	n, err := f.stream.Write(buf)
	f.offset += int64(n)
	if f.offset > f.Size() {
		f.entry.Short.FileSize = uint32(f.offset)
		f.dirty = true
	}
	return n, err
}

// Truncate truncates the cluster chain at the file's current offset-cluster,
// sets the recorded size to the current offset, and marks the entry dirty
// (spec §4.10).
func (f *File) Truncate() error {
	if err := f.stream.Truncate(); err != nil {
		return err
	}
	f.entry.Short.FileSize = uint32(f.offset)
	f.dirty = true
	return nil
}

// Flush writes the directory entry's size (and other short-entry fields)
// back to disk if it has been modified since the last flush (spec §4.10).
func (f *File) Flush() error {
	if !f.dirty {
		return nil
	}

	s := f.fs.streamForRecord(f.entry.ShortCluster)
	s.seekTo(f.entry.ShortCluster, f.entry.ShortOffset)
	if _, err := s.Write(f.entry.Short.Bytes()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close flushes the file. Per spec §4.10, dropping a File without closing it
// discards any dirty size update; callers should defer Close after a
// successful open.
func (f *File) Close() error {
	return f.Flush()
}
