package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFormatFallsBackToRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.dd")
	require.NoError(t, os.WriteFile(path, []byte("not a recognized container, just bytes"), 0o644))

	format, err := detectFormat(path)
	require.NoError(t, err)
	require.Equal(t, FormatRaw, format)
}

func TestDetectFormatRecognizesEWF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evidence.E01")
	data := append(append([]byte{}, ewfMagicE01...), make([]byte, 64)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	format, err := detectFormat(path)
	require.NoError(t, err)
	require.Equal(t, FormatEWF, format)
}

func TestDetectFormatRecognizesQCOW(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.qcow2")
	data := append(append([]byte{}, qcowMagic...), make([]byte, 100)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	format, err := detectFormat(path)
	require.NoError(t, err)
	require.Equal(t, FormatQCOW, format)
}

func TestRawImageReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.raw")
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	img, err := Open([]string{path})
	require.NoError(t, err)
	defer img.Close()

	require.Equal(t, int64(4096), img.Size())
	require.Equal(t, FormatRaw, img.Format())

	buf := make([]byte, 100)
	n, err := img.ReadAt(buf, 4000)
	require.NoError(t, err)
	require.Equal(t, 96, n) // short read at end-of-image, not an error
	require.Equal(t, content[4000:4096], buf[:96])
}

func TestRawImageReadAtPastEndReturnsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o644))

	img, err := Open([]string{path})
	require.NoError(t, err)
	defer img.Close()

	n, err := img.ReadAt(make([]byte, 16), 1000)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
