package pipeline

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
)

// Container formats recognized by Inspect
const (
	FormatZip    = "zip"
	FormatTar    = "tar"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
)

// maxHeaderScan bounds how many archive headers are read while collecting top-level names
const maxHeaderScan = 100_000

// Listing shallow view of a container: the detected format and its top-level entry names.
// Format is empty when the input is not a recognized container.
type Listing struct {
	Format  string   `json:"format"`
	Entries []string `json:"entries"`
}

// Peek returns at most maxEntries top-level entry names. Unrecognized or malformed
// input yields an empty list, never an error.
func Peek(path string, maxEntries int) []string {
	return Inspect(path, maxEntries).Entries
}

// Inspect reads only container headers of the file at path
func Inspect(path string, maxEntries int) Listing {
	listing := Listing{Entries: []string{}}
	if maxEntries <= 0 {
		return listing
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return listing
	}

	switch {
	case isA(mtype, "application/zip"):
		return peekZip(path, maxEntries)
	case isA(mtype, "application/x-tar"):
		return peekTarFile(path, FormatTar, maxEntries, func(r io.Reader) (io.Reader, func(), error) {
			return r, func() {}, nil
		})
	case isA(mtype, "application/gzip"):
		return peekTarFile(path, FormatTarGz, maxEntries, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return gz, func() { gz.Close() }, nil
		})
	case isA(mtype, "application/zstd"):
		return peekTarFile(path, FormatTarZst, maxEntries, func(r io.Reader) (io.Reader, func(), error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, zr.Close, nil
		})
	}
	return listing
}

// isA reports whether mtype or one of its parents is mime
func isA(mtype *mimetype.MIME, mime string) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

func peekZip(path string, maxEntries int) Listing {
	listing := Listing{Entries: []string{}}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return listing
	}
	defer zr.Close()

	listing.Format = FormatZip
	names := newTopLevel(maxEntries)
	for i, f := range zr.File {
		if i >= maxHeaderScan || names.full() {
			break
		}
		names.add(f.Name)
	}
	listing.Entries = names.entries
	return listing
}

type decompressor func(io.Reader) (io.Reader, func(), error)

func peekTarFile(path, format string, maxEntries int, open decompressor) Listing {
	listing := Listing{Entries: []string{}}
	f, err := os.Open(path)
	if err != nil {
		return listing
	}
	defer f.Close()

	r, closeFn, err := open(f)
	if err != nil {
		return listing
	}
	defer closeFn()

	tr := tar.NewReader(r)
	names := newTopLevel(maxEntries)
	for i := 0; i < maxHeaderScan && !names.full(); i++ {
		hdr, err := tr.Next()
		if err == io.EOF {
			listing.Format = format
			break
		}
		if err != nil {
			// A stream that never yielded a header is not a tar
			if i > 0 {
				listing.Format = format
			}
			break
		}
		listing.Format = format
		switch hdr.Typeflag {
		case tar.TypeXGlobalHeader, tar.TypeXHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
			continue
		}
		names.add(hdr.Name)
	}
	listing.Entries = names.entries
	return listing
}

// topLevel collects distinct first path segments in first-seen order
type topLevel struct {
	max     int
	seen    map[string]struct{}
	entries []string
}

func newTopLevel(max int) *topLevel {
	return &topLevel{max: max, seen: map[string]struct{}{}, entries: []string{}}
}

func (t *topLevel) full() bool {
	return len(t.entries) >= t.max
}

func (t *topLevel) add(name string) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(strings.TrimPrefix(name, "./"), "/")
	if name == "" || name == "." {
		return
	}
	top := name
	if i := strings.Index(name, "/"); i >= 0 {
		top = name[:i+1]
	}
	if top == "./" || top == "../" {
		return
	}
	if _, ok := t.seen[top]; ok {
		return
	}
	t.seen[top] = struct{}{}
	t.entries = append(t.entries, top)
}
