package odbpp

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// block is one "KIND { KEY=VALUE ... }" section of an ODB++ structured text file
type block struct {
	kind   string
	fields map[string]string
}

func (b block) get(key string) string { return b.fields[key] }

// maxLine bounds a single line of a structured text file
const maxLine = 1 << 20

// parseStructured reads matrix, stephdr, info and attrlist files. Fields outside
// any block are returned in top. On a read error the fields parsed so far are
// returned with it.
func parseStructured(data []byte) (top map[string]string, blocks []block, err error) {
	top = map[string]string{}
	var cur *block
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), maxLine)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasSuffix(line, "{"):
			blocks = append(blocks, block{
				kind:   strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(line, "{"))),
				fields: map[string]string{},
			})
			cur = &blocks[len(blocks)-1]
		case line == "}":
			cur = nil
		default:
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			k, v = strings.ToUpper(strings.TrimSpace(k)), strings.TrimSpace(v)
			if cur != nil {
				cur.fields[k] = v
			} else {
				top[k] = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return top, blocks, fmt.Errorf("line %d: %w", n+1, err)
	}
	return top, blocks, nil
}

// unitOf reads a UNITS=MM|INCH value
func unitOf(v string, def design.Unit) design.Unit {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "MM":
		return design.UnitMM
	case "INCH", "IN":
		return design.UnitInch
	}
	return def
}
