package fat

// CharOrder lists the byte offsets within an LFN record holding the 13
// single-byte name characters (spec §3). The interleaved UCS-2 high bytes
// are ignored; see the design note in SPEC_FULL.md §9 on single-byte LFN
// characters.
var CharOrder = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// LfnLastFlag marks the LFN record carrying the highest ordinal -- the last
// one written to disk, holding the first characters of the name.
const LfnLastFlag = 0x40

// LfnOrdinalMask extracts the sequence number from an LFN record's ordinal
// byte.
const LfnOrdinalMask = 0x1F

// LfnMask is the set of attribute bits that, combined with LfnAttr, identify
// an LFN record (spec §4.6).
const LfnMask = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID | AttrDirectory | AttrArchive

// lfnRecordCount returns the number of 32-byte LFN records needed to encode
// a name of length L bytes (spec §4.6): ceil((L+1)/13).
func lfnRecordCount(nameLen int) int {
	return (nameLen + 1 + 12) / 13
}

// SerializeLFN returns the 32-byte LFN records for name, in on-disk write
// order (highest ordinal first, i.e. the record nearest the start of the
// free run), given the checksum of the short entry the name belongs to
// (spec §4.6).
func SerializeLFN(name string, checksum uint8) [][]byte {
	count := lfnRecordCount(len(name))
	records := make([][]byte, count)

	for i := count - 1; i >= 0; i-- {
		buf := make([]byte, DirentSize)

		ordinal := uint8(i+1) & LfnOrdinalMask
		if i == count-1 {
			ordinal |= LfnLastFlag
		}
		buf[0] = ordinal
		buf[11] = LfnAttr
		buf[13] = checksum

		start := i * 13
		end := start + 13
		if end > len(name) {
			end = len(name)
		}
		for j, offset := range CharOrder {
			srcIdx := start + j
			if srcIdx < end {
				buf[offset] = name[srcIdx]
			}
			// Else: left zero, per spec (the NUL terminator and padding).
		}

		records[count-1-i] = buf
	}
	return records
}

// LfnBuilder reassembles a long filename from the LFN records preceding a
// short entry while a directory is iterated (spec §4.6).
type LfnBuilder struct {
	buf             [256]byte
	length          int
	expectedChecksum uint8
	expectedNumber  int
	firstCluster    ClusterID
	firstOffset     uint
	haveFirst       bool
}

// Feed processes one directory record at stream position (cluster, offset).
// It returns ok == false when buf is not an LFN record (LfnMask test fails);
// the caller then treats it as a short-entry candidate. A malformed LFN
// sequence resets the builder's internal state but still reports ok == true,
// since the record itself was an LFN record -- it's simply discarded.
func (b *LfnBuilder) Feed(cluster ClusterID, offset uint, buf []byte) (ok bool) {
	if buf[11]&LfnMask != LfnAttr {
		return false
	}

	ordinal := buf[0]
	checksum := buf[13]

	if ordinal&LfnLastFlag != 0 {
		b.expectedChecksum = checksum
		b.expectedNumber = int(ordinal & LfnOrdinalMask)
		b.firstCluster = cluster
		b.firstOffset = offset
		b.haveFirst = true
		b.length = b.expectedNumber * 13
	} else {
		if !b.haveFirst || checksum != b.expectedChecksum || int(ordinal&LfnOrdinalMask)+1 != b.expectedNumber {
			b.Reset()
			return true
		}
		b.expectedNumber--
	}

	// This record's own ordinal (1-based) holds characters
	// [(ordinal-1)*13, ordinal*13) of the name; b.expectedNumber has just been
	// set/decremented to that ordinal.
	destStart := (b.expectedNumber - 1) * 13
	for j, srcOffset := range CharOrder {
		idx := destStart + j
		if idx >= len(b.buf) {
			break
		}
		c := buf[srcOffset]
		if c == 0 && b.length > idx {
			b.length = idx
		}
		b.buf[idx] = c
	}

	return true
}

// Reset clears the builder's in-progress state, e.g. on encountering a
// removed entry or a malformed record.
func (b *LfnBuilder) Reset() {
	b.expectedNumber = 0
	b.haveFirst = false
}

// Build returns the reassembled name, the position of its first LFN record,
// and true, iff the last record fed completed the sequence down to ordinal 1
// (spec §4.6's "Some((first_lfn_pos, checksum))").
func (b *LfnBuilder) Build() (name string, cluster ClusterID, offset uint, checksum uint8, ok bool) {
	if !b.haveFirst || b.expectedNumber != 1 {
		return "", 0, 0, 0, false
	}
	return string(b.buf[:b.length]), b.firstCluster, b.firstOffset, b.expectedChecksum, true
}
