package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tgzOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestReadZip(t *testing.T) {
	data := zipOf(t, map[string]string{
		"gerbers/top.gtl":        "G04 top*",
		"__MACOSX/gerbers/._top": "junk",
		"gerbers/.DS_Store":      "junk",
	})
	entries, err := Read("board.ZIP", data, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gerbers/top.gtl", entries[0].Name)
	assert.Equal(t, "G04 top*", string(entries[0].Data))
}

func TestReadTarGz(t *testing.T) {
	data := tgzOf(t, map[string]string{"job/matrix/matrix": "STEP {\n}\n"})
	entries, err := Read("job.tgz", data, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job/matrix/matrix", entries[0].Name)
}

func TestReadEnforcesLimit(t *testing.T) {
	data := zipOf(t, map[string]string{"a.gbr": "0123456789", "b.gbr": "0123456789"})
	_, err := Read("a.zip", data, 15)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestReadCorrupt(t *testing.T) {
	_, err := Read("a.zip", []byte("not a zip"), 0)
	assert.Error(t, err)
	_, err = Read("a.tgz", []byte("not gzip"), 0)
	assert.Error(t, err)
	_, err = Read("a.gbr", nil, 0)
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Zip, KindOf("x.zip"))
	assert.Equal(t, TarGz, KindOf("x.tar.gz"))
	assert.Equal(t, TarGz, KindOf("X.TGZ"))
	assert.Equal(t, None, KindOf("x.gbr"))
}
