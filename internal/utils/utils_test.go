package utils

import (
	"archive/zip"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.50 KB", FormatSize(1536))
	assert.Equal(t, "200.00 KB", FormatSize(200*1024))
	assert.Equal(t, "3.00 MB", FormatSize(3*1024*1024))
	assert.Equal(t, "1.00 GB", FormatSize(1<<30))
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "0.00 MB/s", FormatSpeed(0))
	assert.Equal(t, "2.50 MB/s", FormatSpeed(2.5*1024*1024))
}

func TestFormatTimeDuration(t *testing.T) {
	assert.Equal(t, "5s", FormatTimeDuration(5*time.Second))
	assert.Equal(t, "2m 3s", FormatTimeDuration(2*time.Minute+3*time.Second))
	assert.Equal(t, "1h 0m 7s", FormatTimeDuration(time.Hour+7*time.Second))
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "report.pdf")
	assert.Equal(t, name, GetUniqueFilename(name))

	require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "report (1).pdf"), GetUniqueFilename(name))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report (1).pdf"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "report (2).pdf"), GetUniqueFilename(name))
}

func TestIsCGNAT(t *testing.T) {
	assert.True(t, IsCGNAT(net.ParseIP("100.64.0.1")))
	assert.True(t, IsCGNAT(net.ParseIP("100.127.255.254")))
	assert.False(t, IsCGNAT(net.ParseIP("100.128.0.1")))
	assert.False(t, IsCGNAT(net.ParseIP("192.168.1.10")))
}

func TestIsTunnelName(t *testing.T) {
	assert.True(t, isTunnelName("wg0"))
	assert.True(t, isTunnelName("utun3"))
	assert.False(t, isTunnelName("eth0"))
}

func TestZipFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "nested", "b.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	target := filepath.Join(t.TempDir(), "files.zip")
	require.NoError(t, ZipFiles(target, []string{a, b}))

	r, err := zip.OpenReader(target)
	require.NoError(t, err)
	defer r.Close()

	got := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		got[f.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"}, got)
}

func TestZipFilesRemovesPartialArchive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "files.zip")
	err := ZipFiles(target, []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.NoFileExists(t, target)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "a-very...", TruncateString("a-very-long-name.txt", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "héllo", TruncateString("héllo", 5))
}
