package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortNameChecksum_MatchesReferenceAlgorithm(t *testing.T) {
	// "FOO     BAR" (8.3 padded) -- compared with an inline reference
	// implementation of the standard FAT rotate-right checksum.
	var name [11]byte
	copy(name[:], "FOO     BAR")

	var cs uint8
	for _, b := range name {
		cs = (cs >> 1) | ((cs & 1) << 7)
		cs += b
	}
	assert.Equal(t, cs, ShortNameChecksum(name))
}

func TestShortNameChecksum_DeterministicAndOrderSensitive(t *testing.T) {
	var a, b [11]byte
	copy(a[:], "ABC     TXT")
	copy(b[:], "CBA     TXT")

	assert.Equal(t, ShortNameChecksum(a), ShortNameChecksum(a))
	assert.NotEqual(t, ShortNameChecksum(a), ShortNameChecksum(b))
}

func TestCreateRawShortEntry_RoundTripsSimpleName(t *testing.T) {
	e := CreateRawShortEntry("HELLO.TXT", true, 42)
	assert.Equal(t, "HELLO.TXT", e.ReconstructedName())
	assert.Equal(t, ClusterID(42), e.FirstCluster())
	assert.True(t, e.IsFile())
}

func TestCreateRawShortEntry_DirectoryHasNoExtension(t *testing.T) {
	e := CreateRawShortEntry("SUBDIR", false, 7)
	assert.Equal(t, "SUBDIR", e.ReconstructedName())
	assert.True(t, e.IsDir())
}

func TestCreateRawShortEntry_LowercaseIsUppercased(t *testing.T) {
	e := CreateRawShortEntry("hello.txt", true, 1)
	assert.Equal(t, "HELLO.TXT", e.ReconstructedName())
}

func TestShortEntry_BytesRoundTrip(t *testing.T) {
	e := CreateRawShortEntry("ABCDEFGH.IJK", true, 0x12345)
	e.FileSize = 9001

	decoded := ShortEntryFromBytes(e.Bytes())
	assert.Equal(t, e.Name, decoded.Name)
	assert.Equal(t, e.Extension, decoded.Extension)
	assert.Equal(t, e.FirstCluster(), decoded.FirstCluster())
	assert.Equal(t, e.FileSize, decoded.FileSize)
	assert.Equal(t, e.Checksum(), decoded.Checksum())
}

func TestShortEntry_IsFree(t *testing.T) {
	free := ShortEntry{}
	assert.True(t, free.IsFree())

	free.Name[0] = 0xE5
	assert.True(t, free.IsFree())

	free.Name[0] = 'A'
	assert.False(t, free.IsFree())
}
