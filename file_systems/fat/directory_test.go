package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_CreateAndFindFile_FixedRoot(t *testing.T) {
	fs := newFakeFs(t, Fat12, 50, 32)
	dir := fs.RootDir()

	file, err := dir.CreateFile("NOTES.TXT")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	entry, err := dir.FindDirEntry("NOTES.TXT")
	require.NoError(t, err)
	assert.True(t, entry.IsFile())
}

func TestDir_CreateAndFindFile_FAT32Root(t *testing.T) {
	fs := newFakeFs(t, Fat32, 50, 0)
	dir := fs.RootDir()

	file, err := dir.CreateFile("DATA.BIN")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	entry, err := dir.FindDirEntry("DATA.BIN")
	require.NoError(t, err)
	assert.True(t, entry.IsFile())
}

func TestDir_CreateDirEntry_RejectsDuplicate(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	_, err := dir.CreateFile("DUP.TXT")
	require.NoError(t, err)

	_, err = dir.CreateFile("DUP.TXT")
	require.Error(t, err)
}

func TestDir_CreateDirEntry_UsesLFNForLongName(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	longName := "this is a long filename.txt"
	_, err := dir.CreateDirEntry(longName, true, 2)
	require.NoError(t, err)

	entry, err := dir.FindDirEntry(longName)
	require.NoError(t, err)
	assert.True(t, entry.HasLFN)
	assert.Equal(t, longName, entry.Name)
}

func TestDir_CreateDirEntry_NoLFNForRoundTrippableName(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	_, err := dir.CreateDirEntry("SHORT.TXT", true, 2)
	require.NoError(t, err)

	entry, err := dir.FindDirEntry("SHORT.TXT")
	require.NoError(t, err)
	assert.False(t, entry.HasLFN)
}

func TestDir_MultipleFiles_CreateAndRemove_ReusesFreedSlot(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 64)
	dir := fs.RootDir()

	for _, name := range []string{"A.TXT", "B.TXT", "C.TXT"} {
		_, err := dir.CreateFile(name)
		require.NoError(t, err)
	}

	count, err := dir.ItemCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, dir.RemoveFile("B.TXT"))

	count, err = dir.ItemCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = dir.FindDirEntry("B.TXT")
	require.Error(t, err)

	// A new file should be able to reuse the slot B.TXT vacated, rather than
	// requiring the directory to grow.
	_, err = dir.CreateFile("D.TXT")
	require.NoError(t, err)

	count, err = dir.ItemCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDir_RemoveFile_FreesClusterChain(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	file, err := dir.CreateFile("BIG.BIN")
	require.NoError(t, err)
	_, err = file.Write(make([]byte, fs.boot.BytesPerCluster*2))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	entry, err := dir.FindDirEntry("BIG.BIN")
	require.NoError(t, err)
	firstCluster := entry.Short.FirstCluster()

	require.NoError(t, dir.RemoveFile("BIG.BIN"))

	v, err := fs.table.Get(firstCluster)
	require.NoError(t, err)
	assert.Equal(t, ClusterFree, v.Kind)
}

func TestDir_CreateDir_DotAndDotDotEntries(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	root := fs.RootDir()

	child, err := root.CreateDir("CHILD")
	require.NoError(t, err)

	dotEntry, err := child.FindDirEntry(".")
	require.NoError(t, err)
	assert.Equal(t, child.StartCluster(), dotEntry.Short.FirstCluster())

	dotDotEntry, err := child.FindDirEntry("..")
	require.NoError(t, err)
	assert.Equal(t, ClusterID(0), dotDotEntry.Short.FirstCluster())
}

func TestDir_RemoveDir_FailsIfNotEmpty(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	root := fs.RootDir()

	child, err := root.CreateDir("CHILD")
	require.NoError(t, err)

	_, err = child.CreateFile("X.TXT")
	require.NoError(t, err)

	err = root.RemoveDir("CHILD")
	require.Error(t, err)
}

func TestDir_RemoveDir_SucceedsWhenEmpty(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	root := fs.RootDir()

	_, err := root.CreateDir("EMPTY")
	require.NoError(t, err)

	require.NoError(t, root.RemoveDir("EMPTY"))

	_, err = root.FindDirEntry("EMPTY")
	require.Error(t, err)
}

func TestDirIterator_StopsAtFreeAndEndOfDirectoryMarker(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	_, err := dir.CreateFile("ONLY.TXT")
	require.NoError(t, err)

	it := dir.Iterator()
	first, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "ONLY.TXT", first.Short.ReconstructedName())

	second, err := it.Next()
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestFile_WriteReadFlushRoundTrip(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	dir := fs.RootDir()

	file, err := dir.CreateFile("ROUND.BIN")
	require.NoError(t, err)

	payload := []byte("hello, fat filesystem")
	_, err = file.Write(payload)
	require.NoError(t, err)
	require.NoError(t, file.Flush())

	entry, err := dir.FindDirEntry("ROUND.BIN")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), entry.Stat().Size)

	reopened := fs.openFile(entry)
	buf := make([]byte, len(payload))
	n, err := reopened.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestMount_ReadOnlyRejectsWrites(t *testing.T) {
	fs := newFakeFs(t, Fat16, 50, 32)
	fs.flags = 0 // no write permission

	dir := fs.RootDir()
	_, err := dir.CreateFile("NOPE.TXT")
	require.Error(t, err)
}
