package pipeline

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var archiveEntries = []string{
	"README.md",
	"src/",
	"src/main.go",
	"src/util/strings.go",
	"docs/guide.md",
	"./LICENSE",
}

func buildTar(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range archiveEntries {
		hdr := &tar.Header{Name: name, Mode: 0644}
		body := []byte("content of " + name)
		if name[len(name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			body = nil
		}
		hdr.Size = int64(len(body))
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, data []byte, wrap func(io.Writer) (io.WriteCloser, error)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := wrap(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func buildZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range archiveEntries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if strings.HasSuffix(name, "/") {
			continue
		}
		_, err = w.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInspectContainers(t *testing.T) {
	tarball := buildTar(t)
	want := []string{"README.md", "src/", "docs/", "LICENSE"}

	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{name: "tar", data: tarball, format: FormatTar},
		{name: "tar.gz", data: compress(t, tarball, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		}), format: FormatTarGz},
		{name: "tar.zst", data: compress(t, tarball, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		}), format: FormatTarZst},
		{name: "zip", data: buildZip(t), format: FormatZip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "archive", tt.data)
			listing := Inspect(path, 100)
			assert.Equal(t, tt.format, listing.Format)
			assert.Equal(t, want, listing.Entries)
			assert.Equal(t, want, Peek(path, 100))
		})
	}
}

func TestPeekCapsEntries(t *testing.T) {
	path := writeFile(t, "archive.tar", buildTar(t))
	assert.Equal(t, []string{"README.md", "src/"}, Peek(path, 2))
	assert.Empty(t, Peek(path, 0))
}

func TestPeekUnrecognizedInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "text", data: []byte("just some notes\n")},
		{name: "binary", data: bytes.Repeat([]byte{0x01, 0xfe, 0x42}, 4096)},
		{name: "truncated zip", data: buildZip(t)[:40]},
		{name: "gzip of plain text", data: compress(t, bytes.Repeat([]byte("hello world "), 100), func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "input", tt.data)
			listing := Inspect(path, 10)
			assert.Empty(t, listing.Format)
			assert.NotNil(t, listing.Entries)
			assert.Empty(t, listing.Entries)
		})
	}
}
