package gerber

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

var (
	reToolDef = regexp.MustCompile(`^T(\d+)(?:[FSBHZ][\d.]+)*C([\d.]+)`)
	reToolSel = regexp.MustCompile(`^T(\d+)$`)
	reCoordX  = regexp.MustCompile(`X([+-]?[\d.]+)`)
	reCoordY  = regexp.MustCompile(`Y([+-]?[\d.]+)`)
	reDigits  = regexp.MustCompile(`(0+)\.(0+)`)
)

type excellon struct {
	warn     *warnings
	layer    design.DrillLayer
	fn       *fileFunction
	lzero    bool
	intDig   int
	decDig   int
	digitSet bool
	tools    map[int]float64
	current  int
	x, y     float64
	seen     int
}

// parseExcellon reads an NC drill file. Holes keep the file's unit.
func parseExcellon(name string, data []byte) (design.DrillLayer, []design.Warning, error) {
	e := &excellon{
		warn:  newWarnings(name),
		layer: design.DrillLayer{Name: name, Unit: design.UnitInch, Plated: true},
		tools: map[int]float64{},
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if e.line(strings.TrimSpace(sc.Text())) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return e.layer, e.warn.all(), fmt.Errorf("%s: %w", name, err)
	}
	if e.seen == 0 {
		return e.layer, e.warn.all(), fmt.Errorf("%s: no Excellon statements found", name)
	}

	lower := strings.ToLower(name)
	switch {
	case e.fn != nil && e.fn.drill:
		e.layer.Plated = e.fn.plated
		if e.fn.from > 0 && e.fn.to > 0 {
			e.layer.Span = &design.Span{From: e.fn.from, To: e.fn.to}
		}
	case strings.Contains(lower, "npth"), strings.Contains(lower, "non-plated"),
		strings.Contains(lower, "nonplated"), strings.Contains(lower, "non_plated"):
		e.layer.Plated = false
	}
	return e.layer, e.warn.all(), nil
}

// line handles one statement and reports whether the program ended
func (e *excellon) line(l string) bool {
	if l == "" {
		return false
	}
	if strings.HasPrefix(l, ";") {
		if i := strings.Index(l, "TF.FileFunction"); i >= 0 {
			e.fn = parseFileFunction(l[i:])
		}
		return false
	}
	u := strings.ToUpper(l)
	switch {
	case u == "M48", u == "%", u == "M95", u == "G90", u == "G05", u == "G00", u == "M47",
		strings.HasPrefix(u, "FMAT"), strings.HasPrefix(u, "VER"), strings.HasPrefix(u, "ICI"),
		strings.HasPrefix(u, "DETECT"), strings.HasPrefix(u, "ATC"), strings.HasPrefix(u, "G93"):
		e.seen++
	case u == "M30" || u == "M00":
		e.seen++
		return true
	case strings.HasPrefix(u, "METRIC") || u == "M71":
		e.setUnit(design.UnitMM, u)
	case strings.HasPrefix(u, "INCH") || u == "M72":
		e.setUnit(design.UnitInch, u)
	case reToolDef.MatchString(u):
		m := reToolDef.FindStringSubmatch(u)
		n, _ := strconv.Atoi(m[1])
		d, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			e.warn.add("tool T%d has a bad diameter %q", n, m[2])
			return false
		}
		e.tools[n] = d
		e.current = n
		e.seen++
	case reToolSel.MatchString(u):
		n, _ := strconv.Atoi(reToolSel.FindStringSubmatch(u)[1])
		e.current = n
		e.seen++
	case strings.HasPrefix(u, "X") || strings.HasPrefix(u, "Y") || strings.HasPrefix(u, "G85"):
		e.hit(u)
	case strings.HasPrefix(u, "G0") || strings.HasPrefix(u, "M"):
		// routing moves and machine codes carry no holes
		e.seen++
	default:
		e.warn.add("unrecognised drill statement %q", l)
	}
	return false
}

func (e *excellon) setUnit(u design.Unit, stmt string) {
	e.layer.Unit = u
	e.seen++
	if strings.Contains(stmt, "LZ") {
		e.lzero = true
	}
	if m := reDigits.FindStringSubmatch(stmt); m != nil {
		e.intDig, e.decDig, e.digitSet = len(m[1]), len(m[2]), true
	}
}

func (e *excellon) digits() (int, int) {
	if e.digitSet {
		return e.intDig, e.decDig
	}
	if e.layer.Unit == design.UnitMM {
		return 3, 3
	}
	return 2, 4
}

func (e *excellon) coord(v string) (float64, error) {
	if strings.Contains(v, ".") {
		return strconv.ParseFloat(v, 64)
	}
	neg := strings.HasPrefix(v, "-")
	digits := strings.TrimLeft(v, "+-")
	intDig, decDig := e.digits()
	if e.lzero {
		for len(digits) < intDig+decDig {
			digits += "0"
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}
	f := float64(n) / math.Pow(10, float64(decDig))
	if neg {
		f = -f
	}
	return f, nil
}

func (e *excellon) hit(stmt string) {
	// a G85 slot is counted once, at its start point
	if i := strings.Index(stmt, "G85"); i > 0 {
		stmt = stmt[:i]
	}
	if m := reCoordX.FindStringSubmatch(stmt); m != nil {
		v, err := e.coord(m[1])
		if err != nil {
			e.warn.add("bad coordinate in %q", stmt)
			return
		}
		e.x = v
	}
	if m := reCoordY.FindStringSubmatch(stmt); m != nil {
		v, err := e.coord(m[1])
		if err != nil {
			e.warn.add("bad coordinate in %q", stmt)
			return
		}
		e.y = v
	}
	e.seen++
	d, ok := e.tools[e.current]
	if !ok {
		e.warn.add("hit at (%g, %g) without a defined tool", e.x, e.y)
		return
	}
	e.layer.Holes = append(e.layer.Holes, design.Hole{At: design.Point{X: e.x, Y: e.y}, Diameter: d})
}
