// Package archive expands zip and tar.gz uploads into flat entries.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrTooLarge is returned when the expanded content exceeds the limit
var ErrTooLarge = errors.New("archive expands beyond the allowed size")

// Entry is one regular file from an archive
type Entry struct {
	Name string
	Data []byte
}

// Kind of archive container, derived from the file name
type Kind int

const (
	None Kind = iota
	Zip
	TarGz
)

// KindOf inspects the file extension
func KindOf(name string) Kind {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".zip"):
		return Zip
	case strings.HasSuffix(n, ".tgz"), strings.HasSuffix(n, ".tar.gz"), strings.HasSuffix(n, ".odb"):
		return TarGz
	}
	return None
}

// Read expands data. limit caps the total uncompressed size, zero means no cap.
func Read(name string, data []byte, limit int64) ([]Entry, error) {
	switch KindOf(name) {
	case Zip:
		return readZip(data, limit)
	case TarGz:
		return readTarGz(data, limit)
	}
	return nil, fmt.Errorf("%s is not an archive", name)
}

type budget struct {
	left    int64
	limited bool
}

func (b *budget) read(r io.Reader) ([]byte, error) {
	if !b.limited {
		return io.ReadAll(r)
	}
	buf, err := io.ReadAll(io.LimitReader(r, b.left+1))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > b.left {
		return nil, ErrTooLarge
	}
	b.left -= int64(len(buf))
	return buf, nil
}

func readZip(data []byte, limit int64) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	b := &budget{left: limit, limited: limit > 0}
	var out []Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skipEntry(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		buf, err := b.read(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		out = append(out, Entry{Name: clean(f.Name), Data: buf})
	}
	return out, nil
}

func readTarGz(data []byte, limit int64) ([]Entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	b := &budget{left: limit, limited: limit > 0}
	tr := tar.NewReader(gz)
	var out []Entry
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg || skipEntry(h.Name) {
			continue
		}
		buf, err := b.read(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", h.Name, err)
		}
		out = append(out, Entry{Name: clean(h.Name), Data: buf})
	}
	return out, nil
}

// skipEntry drops OS metadata that ships inside archives
func skipEntry(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, "._") || base == ".DS_Store"
}

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
}
