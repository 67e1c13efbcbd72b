package fat

import (
	"testing"

	stderrors "errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/disko/errors"
)

func TestAllocate_MarksLastAndZeroes(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)

	c, err := fs.Allocate()
	require.NoError(t, err)
	assert.Equal(t, ClusterID(2), c)

	v, err := fs.table.Get(c)
	require.NoError(t, err)
	assert.Equal(t, ClusterLast, v.Kind)

	buf := make([]byte, fs.boot.BytesPerCluster)
	n, err := fs.ReadCluster(c, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, int(fs.boot.BytesPerCluster), n)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestAllocate_SkipsOccupiedClusters(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	require.NoError(t, fs.table.Set(2, Last()))

	c, err := fs.Allocate()
	require.NoError(t, err)
	assert.Equal(t, ClusterID(3), c)
}

func TestAllocate_ExhaustionLeavesTableUnchanged(t *testing.T) {
	fs := newFakeFs(t, Fat16, 3, 0) // only cluster 2 is allocatable
	for c := ClusterID(2); uint(c) < fs.boot.ClustersCount; c++ {
		require.NoError(t, fs.table.Set(c, Last()))
	}

	before := snapshotFAT(t, fs)

	_, err := fs.Allocate()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNoSpaceOnDevice))

	after := snapshotFAT(t, fs)
	assert.Equal(t, before, after, "a failed Allocate must not modify the FAT")
}

func TestExtend_AppendsAndLinks(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)

	next, err := fs.Extend(head)
	require.NoError(t, err)
	assert.NotEqual(t, head, next)

	headValue, err := fs.table.Get(head)
	require.NoError(t, err)
	assert.Equal(t, ClusterNext, headValue.Kind)
	assert.Equal(t, next, headValue.Next)

	nextValue, err := fs.table.Get(next)
	require.NoError(t, err)
	assert.Equal(t, ClusterLast, nextValue.Kind)
}

func TestTruncate_NoOpOnLastCluster(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)

	require.NoError(t, fs.Truncate(head))

	v, err := fs.table.Get(head)
	require.NoError(t, err)
	assert.Equal(t, ClusterLast, v.Kind)
}

func TestTruncate_FreesTail(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)
	mid, err := fs.Extend(head)
	require.NoError(t, err)
	tail, err := fs.Extend(mid)
	require.NoError(t, err)

	require.NoError(t, fs.Truncate(head))

	headValue, err := fs.table.Get(head)
	require.NoError(t, err)
	assert.Equal(t, ClusterLast, headValue.Kind)

	midValue, err := fs.table.Get(mid)
	require.NoError(t, err)
	assert.Equal(t, ClusterFree, midValue.Kind)

	tailValue, err := fs.table.Get(tail)
	require.NoError(t, err)
	assert.Equal(t, ClusterFree, tailValue.Kind)
}

func TestFree_WholeChain(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	head, err := fs.Allocate()
	require.NoError(t, err)
	mid, err := fs.Extend(head)
	require.NoError(t, err)

	require.NoError(t, fs.Free(head))

	for _, c := range []ClusterID{head, mid} {
		v, err := fs.table.Get(c)
		require.NoError(t, err)
		assert.Equal(t, ClusterFree, v.Kind)
	}
}

func TestFree_ConservativeOnAnomalies(t *testing.T) {
	fs := newFakeFs(t, Fat16, 10, 0)
	// Build a chain where the middle cluster is bogusly Free already.
	require.NoError(t, fs.table.Set(2, NextCluster(3)))
	require.NoError(t, fs.table.Set(3, Free()))

	err := fs.Free(2)
	require.Error(t, err)

	// Cluster 2 should still have been reclaimed despite the anomaly.
	v, err := fs.table.Get(2)
	require.NoError(t, err)
	assert.Equal(t, ClusterFree, v.Kind)
}

func snapshotFAT(t *testing.T, fs *Fs) []ClusterValue {
	t.Helper()
	out := make([]ClusterValue, 0, fs.boot.ClustersCount)
	for c := ClusterID(2); uint(c) < fs.boot.ClustersCount; c++ {
		v, err := fs.table.Get(c)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}
