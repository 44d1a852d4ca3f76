// Package detect recognises the fabrication data format of an upload.
package detect

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/archive"
)

// Kind of a single file
type Kind string

const (
	KindGerber  Kind = "gerber"
	KindDrill   Kind = "drill"
	KindStackup Kind = "stackup"
	KindArchive Kind = "archive"
	KindODB     Kind = "odb-entry"
	KindUnknown Kind = "unknown"
)

var gerberExt = map[string]bool{
	".gbr": true, ".ger": true, ".art": true, ".pho": true, ".gtl": true, ".gbl": true,
	".gts": true, ".gbs": true, ".gto": true, ".gbo": true, ".gtp": true, ".gbp": true,
	".gko": true, ".gm1": true, ".gml": true, ".cmp": true, ".sol": true, ".plc": true,
	".stc": true, ".sts": true,
}

var drillExt = map[string]bool{".drl": true, ".drill": true, ".exc": true, ".xln": true, ".nc": true}

// Protel inner layers: .g1 .. .g30, planes .gp1 ..
var protelInner = regexp.MustCompile(`\.g(p)?\d{1,2}$`)

var (
	sigRS274X = [][]byte{[]byte("%FS"), []byte("%MO")}
	sigDraw   = regexp.MustCompile(`D0?[123]\*`)
)

// sniffWindow is how much of a file is inspected for signatures
const sniffWindow = 1024

// Sniff classifies content by its leading bytes
func Sniff(content []byte) Kind {
	head := content
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	for _, sig := range sigRS274X {
		if bytes.Contains(head, sig) {
			return KindGerber
		}
	}
	if bytes.Contains(head, []byte("M48")) {
		return KindDrill
	}
	if bytes.Contains(head, []byte("G04")) || sigDraw.Match(head) {
		return KindGerber
	}
	return KindUnknown
}

// IsODBEntry reports whether an archive path belongs to an ODB++ job
func IsODBEntry(name string) bool {
	n := strings.ToLower(name)
	return n == "matrix/matrix" || strings.HasSuffix(n, "/matrix/matrix")
}

// IsStackup reports whether name is a stackup hint file
func IsStackup(name string) bool {
	base := strings.ToLower(path.Base(name))
	ext := path.Ext(base)
	return strings.HasPrefix(base, "stackup") && (ext == ".yaml" || ext == ".yml" || ext == ".txt")
}

// Classify decides what a single file is from its name and content
func Classify(name string, content []byte) Kind {
	n := strings.ToLower(name)
	ext := path.Ext(n)
	switch {
	case archive.KindOf(n) != archive.None:
		return KindArchive
	case IsODBEntry(n):
		return KindODB
	case IsStackup(n):
		return KindStackup
	case drillExt[ext]:
		return KindDrill
	case gerberExt[ext] || protelInner.MatchString(n):
		if Sniff(content) == KindDrill {
			return KindDrill
		}
		return KindGerber
	}
	// .txt and unknown extensions need a content signature
	return Sniff(content)
}

// Accepted reports whether a file can be part of an upload
func Accepted(name string, content []byte) bool {
	return Classify(name, content) != KindUnknown
}

// Detect returns the format of an upload. ODB++ wins when both signatures are
// present because ODB++ jobs may carry Gerber exports as attachments.
func Detect(files []design.File, limit int64) (design.Format, error) {
	var gerber, odb bool
	for _, f := range files {
		switch Classify(f.Name, f.Content) {
		case KindGerber, KindDrill:
			gerber = true
		case KindODB:
			odb = true
		case KindArchive:
			entries, err := archive.Read(f.Name, f.Content, limit)
			if err != nil {
				// an unreadable tarball is most likely a damaged ODB++ job
				if archive.KindOf(f.Name) == archive.TarGz {
					odb = true
				}
				continue
			}
			for _, e := range entries {
				switch Classify(e.Name, e.Data) {
				case KindODB:
					odb = true
				case KindGerber, KindDrill:
					gerber = true
				}
			}
		}
	}
	switch {
	case odb:
		return design.FormatODBPP, nil
	case gerber:
		return design.FormatGerber, nil
	}
	return "", fmt.Errorf("%w: no Gerber, Excellon or ODB++ signature in %d file(s)", design.ErrFormatUnrecognized, len(files))
}
