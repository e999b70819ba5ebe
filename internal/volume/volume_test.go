package volume

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildMBRImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.raw")
	img := make([]byte, 4096*512)

	entry := img[446:462]
	entry[4] = 0x07 // NTFS
	binary.LittleEndian.PutUint32(entry[8:12], 2)    // start LBA
	binary.LittleEndian.PutUint32(entry[12:16], 100) // sector count
	img[510] = 0x55
	img[511] = 0xaa

	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

func TestOpenDecodesMBR(t *testing.T) {
	path := buildMBRImage(t)
	disk, err := Open([]string{path})
	require.NoError(t, err)
	defer disk.Close()

	require.Len(t, disk.Partitions, 1)
	require.Equal(t, "NTFS", disk.Partitions[0].FilesystemType)
	require.Equal(t, int64(2*512), disk.Partitions[0].StartOffset)
	require.Equal(t, int64(100*512), disk.Partitions[0].Size)
}

func TestOpenWithNoPartitionTableYieldsSingleImplicitPartition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))

	disk, err := Open([]string{path})
	require.NoError(t, err)
	defer disk.Close()

	require.Len(t, disk.Partitions, 1)
	require.Equal(t, int64(8192), disk.Partitions[0].Size)
}

func TestSelectFiltersByFilesystemType(t *testing.T) {
	path := buildMBRImage(t)
	disk, err := Open([]string{path})
	require.NoError(t, err)
	defer disk.Close()

	require.Len(t, disk.Select(Filter{FilesystemType: "NTFS"}), 1)
	require.Len(t, disk.Select(Filter{FilesystemType: "FAT32"}), 0)
}

func TestStreamReadAtUnencrypted(t *testing.T) {
	path := buildMBRImage(t)
	disk, err := Open([]string{path})
	require.NoError(t, err)
	defer disk.Close()

	s := OpenStream(disk, disk.Partitions[0], "")
	require.Equal(t, int64(100*512), s.Size())

	buf := make([]byte, 512)
	n, err := s.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 512, n)
}
