package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFATTable_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		fatType FatType
	}{
		{"FAT12", Fat12},
		{"FAT16", Fat16},
		{"FAT32", Fat32},
	}

	values := []ClusterValue{Free(), Last(), Bad(), NextCluster(9), NextCluster(123)}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeFs(t, tc.fatType, 200, 0)

			for i, v := range values {
				cluster := ClusterID(10 + i)
				require.NoError(t, fs.table.Set(cluster, v))

				got, err := fs.table.Get(cluster)
				require.NoError(t, err)
				assert.Equal(t, v.Kind, got.Kind)
				if v.Kind == ClusterNext {
					assert.Equal(t, v.Next, got.Next)
				}
			}
		})
	}
}

// FAT12 packs two entries per three bytes; writing one entry must not
// disturb its odd/even neighbour sharing that byte.
func TestFATTable_FAT12_PreservesNeighborNibble(t *testing.T) {
	fs := newFakeFs(t, Fat12, 200, 0)

	require.NoError(t, fs.table.Set(20, NextCluster(99)))
	require.NoError(t, fs.table.Set(21, NextCluster(50)))

	got20, err := fs.table.Get(20)
	require.NoError(t, err)
	assert.Equal(t, ClusterNext, got20.Kind)
	assert.Equal(t, ClusterID(99), got20.Next)

	got21, err := fs.table.Get(21)
	require.NoError(t, err)
	assert.Equal(t, ClusterNext, got21.Kind)
	assert.Equal(t, ClusterID(50), got21.Next)

	// Overwrite the even entry again and confirm the odd neighbour survived.
	require.NoError(t, fs.table.Set(20, Last()))
	got21Again, err := fs.table.Get(21)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(50), got21Again.Next)
}

func TestFATTable_FAT32_PreservesReservedBits(t *testing.T) {
	fs := newFakeFs(t, Fat32, 200, 0)

	// Seed the reserved top nibble of the 4th byte directly, then verify
	// Set() doesn't clobber it when it writes a new value.
	cluster := ClusterID(30)
	window, sector, offset, err := fs.table.readWindow(cluster)
	require.NoError(t, err)
	window[3] = 0xF0
	require.NoError(t, fs.table.writeAllCopies(cluster, window, sector, offset))

	require.NoError(t, fs.table.Set(cluster, NextCluster(77)))

	window2, _, _, err := fs.table.readWindow(cluster)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), window2[3]&0xF0, "reserved bits must survive Set()")

	got, err := fs.table.Get(cluster)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(77), got.Next)
}

func TestFATTable_WritesAllCopies(t *testing.T) {
	fs := newFakeFs(t, Fat16, 200, 0)

	cluster := ClusterID(40)
	require.NoError(t, fs.table.Set(cluster, NextCluster(41)))

	secondCopy := NewFATTable(fs.device, &FATBootSector{
		RawFATBootSectorWithBPB: fs.boot.RawFATBootSectorWithBPB,
		FatType:                 fs.boot.FatType,
		SectorsPerFAT:           fs.boot.SectorsPerFAT,
		FirstFatSector:          fs.boot.FirstFatSector + SectorID(fs.boot.SectorsPerFAT),
	})

	got, err := secondCopy.Get(cluster)
	require.NoError(t, err)
	assert.Equal(t, ClusterNext, got.Kind)
	assert.Equal(t, ClusterID(41), got.Next)
}
