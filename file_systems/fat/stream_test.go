package fat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_WriteReadRoundTripAcrossClusterBoundary(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)

	clusterSize := int(fs.boot.BytesPerCluster)
	payload := bytes.Repeat([]byte("x"), clusterSize+clusterSize/2)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	w := fs.OpenStream(head)
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	r := fs.OpenStream(head)
	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := r.Read(got[total:])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	assert.Equal(t, payload, got[:total])
}

func TestStream_WriteAutoExtendsChain(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)

	clusterSize := int(fs.boot.BytesPerCluster)
	w := fs.OpenStream(head)
	_, err = w.Write(make([]byte, clusterSize*2))
	require.NoError(t, err)

	headValue, err := fs.table.Get(head)
	require.NoError(t, err)
	assert.Equal(t, ClusterNext, headValue.Kind)

	tailValue, err := fs.table.Get(headValue.Next)
	require.NoError(t, err)
	assert.Equal(t, ClusterLast, tailValue.Kind)
}

func TestStream_ReadStopsAtEndOfChain(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)

	r := fs.OpenStream(head)
	buf := make([]byte, fs.boot.BytesPerCluster+100)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int(fs.boot.BytesPerCluster), n)

	n2, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
}

func TestStream_FixedRegionRejectsOverflow(t *testing.T) {
	fs := newFakeFs(t, Fat12, 10, 16) // 16 entries * 32 bytes = one 512-byte sector
	s := fs.OpenRootStream()

	region := int(fs.boot.RootDirSectors) * int(fs.boot.BytesPerSector)
	_, err := s.Write(make([]byte, region+1))
	require.Error(t, err)
}

func TestStream_FixedRegionTruncateUnsupported(t *testing.T) {
	fs := newFakeFs(t, Fat12, 10, 16)
	s := fs.OpenRootStream()
	assert.Error(t, s.Truncate())
}

func TestStream_SeekToRepositions(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)
	next, err := fs.Extend(head)
	require.NoError(t, err)

	s := fs.OpenStream(head)
	s.seekTo(next, 5)
	cluster, offset := s.Position()
	assert.Equal(t, next, cluster)
	assert.Equal(t, uint(5), offset)
}
