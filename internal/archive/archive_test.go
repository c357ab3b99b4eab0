package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZipExtractRoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Default", "Cache"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Local State"), []byte("state"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Default", "Cookies"), []byte("cookies"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, Zip(src, &buf))

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, Extract(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dest))

	data, err := os.ReadFile(filepath.Join(dest, "Default", "Cookies"))
	require.NoError(t, err)
	require.Equal(t, "cookies", string(data))
	data, err = os.ReadFile(filepath.Join(dest, "Local State"))
	require.NoError(t, err)
	require.Equal(t, "state", string(data))
	require.DirExists(t, filepath.Join(dest, "Default", "Cache"))
}

func TestExtractRejectsTraversal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	parent := t.TempDir()
	dest := filepath.Join(parent, "out")
	err = Extract(bytes.NewReader(buf.Bytes()), int64(buf.Len()), dest)
	require.ErrorIs(t, err, ErrUnsafePath)
	require.NoFileExists(t, filepath.Join(parent, "evil.txt"))
}

func TestExtractRejectsGarbage(t *testing.T) {
	t.Parallel()

	data := []byte("not a zip")
	require.Error(t, Extract(bytes.NewReader(data), int64(len(data)), t.TempDir()))
}
