package gerber

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

type aperture struct {
	shape    design.Shape
	w, h     float64
	fiducial bool
}

// width of a trace drawn with this aperture
func (a aperture) stroke() float64 {
	if a.h > 0 && a.h < a.w {
		return a.h
	}
	return a.w
}

var (
	reFS = regexp.MustCompile(`^FS([LTD]?)([AI]?)(?:N\d)?(?:G\d)?X(\d)(\d)Y(\d)(\d)`)
	reAD = regexp.MustCompile(`^ADD(\d+)([A-Za-z_.$][A-Za-z0-9_.$-]*)(?:,(.*))?$`)
	reSR = regexp.MustCompile(`^SR(?:X(\d+)Y(\d+)I([\d.]+)J([\d.]+))?$`)
)

// silently accepted extended commands that carry no geometry
var ignoredParams = map[string]bool{
	"IP": true, "OF": true, "IN": true, "LN": true, "AS": true, "MI": true, "SF": true,
	"IR": true, "LM": true, "LR": true, "LS": true, "KO": true, "TO": true,
}

// rs274x holds the graphics state while one file is interpreted
type rs274x struct {
	name  string
	warn  *warnings
	layer *design.Layer
	fn    *fileFunction
	rep   *design.Repeat

	unitSet        bool
	fsSet          bool
	intDig, decDig int
	trailing       bool
	incremental    bool
	apertures      map[int]aperture
	macros         map[string]bool
	current        int
	interp         int
	x, y           float64
	lastOp         int
	clear          bool
	fiducialAttr   bool
	region         bool
	poly           []design.Point
	path           []design.Point
	statements     int
	ended          bool
	warnedMacro    map[string]bool
	warnedNoFormat bool
}

func newRS274X(name string) *rs274x {
	return &rs274x{
		name:        name,
		warn:        newWarnings(name),
		layer:       &design.Layer{Name: name, Unit: design.UnitInch},
		apertures:   map[int]aperture{},
		macros:      map[string]bool{},
		warnedMacro: map[string]bool{},
		intDig:      2,
		decDig:      4,
		interp:      1,
	}
}

var (
	errUndecodable = errors.New("no RS-274X statements found")
	// a file ending inside G36 has lost everything drawn after it
	errUnterminatedRegion = errors.New("file ends inside a region")
)

// parseRS274X interprets a Gerber file. Malformed statements are skipped with a
// warning. An error is returned when nothing in the file was decodable or when
// the file ends inside an open region; the layer is unusable either way.
func parseRS274X(name string, data []byte) (*rs274x, error) {
	s := newRS274X(name)
	s.run(string(data))
	if s.statements == 0 {
		return s, fmt.Errorf("%s: %w", name, errUndecodable)
	}
	if s.region {
		s.warn.add("unterminated region (G36 without G37); %d point(s) discarded", len(s.poly))
		s.poly = nil
	}
	if !s.unitSet {
		s.warn.add("no %%MO unit command; assuming inches")
	}
	if s.region {
		return s, fmt.Errorf("%s: %w", name, errUnterminatedRegion)
	}
	return s, nil
}

func (s *rs274x) run(data string) {
	i := 0
	for i < len(data) && !s.ended {
		switch c := data[i]; c {
		case '%':
			end := strings.IndexByte(data[i+1:], '%')
			if end < 0 {
				s.warn.add("unterminated extended command")
				return
			}
			s.extended(data[i+1 : i+1+end])
			i += end + 2
		case '\r', '\n', ' ', '\t':
			i++
		default:
			end := strings.IndexByte(data[i:], '*')
			if end < 0 {
				if rest := strings.TrimSpace(data[i:]); rest != "" {
					s.warn.add("statement without terminator: %.20q", rest)
				}
				return
			}
			s.word(stripSpace(data[i : i+end]))
			i += end + 1
		}
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func (s *rs274x) extended(block string) {
	block = stripSpace(block)
	if strings.HasPrefix(block, "AM") {
		name := strings.TrimPrefix(block, "AM")
		if i := strings.IndexByte(name, '*'); i >= 0 {
			name = name[:i]
		}
		s.macros[name] = true
		s.statements++
		return
	}
	for _, stmt := range strings.Split(block, "*") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			s.param(stmt)
		}
	}
}

func (s *rs274x) param(stmt string) {
	if len(stmt) < 2 {
		s.warn.add("malformed extended command %q", stmt)
		return
	}
	code := stmt[:2]
	switch code {
	case "FS":
		m := reFS.FindStringSubmatch(stmt)
		if m == nil {
			s.warn.add("malformed format specification %q", stmt)
			return
		}
		s.trailing = m[1] == "T"
		s.incremental = m[2] == "I"
		s.intDig, _ = strconv.Atoi(m[3])
		s.decDig, _ = strconv.Atoi(m[4])
		s.fsSet = true
	case "MO":
		switch strings.TrimPrefix(stmt, "MO") {
		case "MM":
			s.layer.Unit = design.UnitMM
		case "IN":
			s.layer.Unit = design.UnitInch
		default:
			s.warn.add("unknown unit %q", stmt)
			return
		}
		s.unitSet = true
	case "AD":
		s.defineAperture(stmt)
	case "LP":
		s.clear = strings.TrimPrefix(stmt, "LP") == "C"
	case "SR":
		m := reSR.FindStringSubmatch(stmt)
		if m == nil {
			s.warn.add("malformed step and repeat %q", stmt)
			return
		}
		if m[1] != "" && s.rep == nil {
			nx, _ := strconv.Atoi(m[1])
			ny, _ := strconv.Atoi(m[2])
			dx, _ := strconv.ParseFloat(m[3], 64)
			dy, _ := strconv.ParseFloat(m[4], 64)
			if nx*ny > 1 {
				s.rep = &design.Repeat{NX: nx, NY: ny, DX: dx, DY: dy}
			}
		}
	case "TA":
		if strings.HasPrefix(stmt, "TA.AperFunction,") {
			s.fiducialAttr = strings.Contains(strings.ToLower(stmt), "fiducial")
		}
	case "TD":
		if stmt == "TD" || strings.HasPrefix(stmt, "TD.AperFunction") {
			s.fiducialAttr = false
		}
	case "TF":
		if ff := parseFileFunction(stmt); ff != nil {
			s.fn = ff
		}
	default:
		if !ignoredParams[code] {
			s.warn.add("unsupported extended command %q", code)
			return
		}
	}
	s.statements++
}

func (s *rs274x) defineAperture(stmt string) {
	m := reAD.FindStringSubmatch(stmt)
	if m == nil {
		s.warn.add("malformed aperture definition %q", stmt)
		return
	}
	code, _ := strconv.Atoi(m[1])
	var params []float64
	if m[3] != "" {
		for _, p := range strings.Split(m[3], "X") {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				s.warn.add("aperture D%d has a bad parameter %q", code, p)
				return
			}
			params = append(params, v)
		}
	}
	param := func(i int) float64 {
		if i < len(params) {
			return params[i]
		}
		return 0
	}
	a := aperture{fiducial: s.fiducialAttr}
	switch m[2] {
	case "C":
		a.shape, a.w, a.h = design.ShapeCircle, param(0), param(0)
	case "R":
		a.shape, a.w, a.h = design.ShapeRect, param(0), param(1)
	case "O":
		a.shape, a.w, a.h = design.ShapeObround, param(0), param(1)
	case "P":
		a.shape, a.w, a.h = design.ShapePolygon, param(0), param(0)
	default:
		a.shape = design.ShapeMacro
		if !s.macros[m[2]] {
			s.warn.add("aperture D%d references undefined macro %s", code, m[2])
		} else if !s.warnedMacro[m[2]] {
			s.warnedMacro[m[2]] = true
			s.warn.add("macro aperture %s has no computed size", m[2])
		}
	}
	s.apertures[code] = a
	st := &s.layer.Apertures
	st.Count++
	if a.w > 0 {
		if st.Min == 0 || a.w < st.Min {
			st.Min = a.w
		}
		st.Max = math.Max(st.Max, a.w)
	}
	s.statements++
}

func (s *rs274x) word(stmt string) {
	if stmt == "" {
		return
	}
	if strings.HasPrefix(stmt, "G04") || strings.HasPrefix(stmt, "G4 ") {
		// X2 attributes may be written as comments: G04 #@! TF.FileFunction,...
		if i := strings.Index(stmt, "#@!"); i >= 0 {
			s.param(strings.TrimSpace(stmt[i+3:]))
			return
		}
		s.statements++
		return
	}

	var (
		d, mcode   = -1, -1
		x, y, i, j string
	)
	pos := 0
	for pos < len(stmt) {
		letter := stmt[pos]
		pos++
		start := pos
		for pos < len(stmt) && strings.IndexByte("0123456789+-.", stmt[pos]) >= 0 {
			pos++
		}
		val := stmt[start:pos]
		if val == "" {
			s.warn.add("unrecognised statement %q", stmt)
			return
		}
		switch letter {
		case 'G':
			n, _ := strconv.Atoi(val)
			s.gcode(n)
		case 'D':
			d, _ = strconv.Atoi(val)
		case 'M':
			mcode, _ = strconv.Atoi(val)
		case 'X':
			x = val
		case 'Y':
			y = val
		case 'I':
			i = val
		case 'J':
			j = val
		default:
			s.warn.add("unrecognised statement %q", stmt)
			return
		}
	}
	s.statements++

	if mcode == 0 || mcode == 2 {
		s.ended = true
		return
	}
	if d >= 10 {
		if _, ok := s.apertures[d]; !ok {
			s.warn.add("D%d selected before it was defined", d)
		}
		s.current = d
		return
	}
	if x == "" && y == "" && d < 0 {
		return
	}

	nx, ny, err := s.target(x, y)
	if err != nil {
		s.warn.add("%v in %q", err, stmt)
		return
	}
	if d < 0 {
		// deprecated modal operation
		d = s.lastOp
		if d == 0 {
			d = 2
		}
	}
	switch d {
	case 1:
		ci, errI := s.coord(i)
		cj, errJ := s.coord(j)
		if errI != nil || errJ != nil {
			s.warn.add("bad arc offset in %q", stmt)
			return
		}
		s.draw(nx, ny, ci, cj)
	case 2:
		s.move(nx, ny)
	case 3:
		s.flash(nx, ny)
	default:
		s.warn.add("unknown operation D%02d", d)
		return
	}
	s.lastOp = d
}

func (s *rs274x) gcode(n int) {
	switch n {
	case 1, 2, 3:
		s.interp = n
	case 36:
		if s.region {
			s.warn.add("G36 inside an open region")
		}
		s.region = true
		s.poly = nil
	case 37:
		if !s.region {
			s.warn.add("G37 without G36")
		}
		s.closePoly()
		s.region = false
	case 70:
		s.layer.Unit = design.UnitInch
		s.unitSet = true
	case 71:
		s.layer.Unit = design.UnitMM
		s.unitSet = true
	case 90:
		s.incremental = false
	case 91:
		s.incremental = true
	case 74, 75, 54, 55:
	default:
		s.warn.add("unsupported code G%02d", n)
	}
}

func (s *rs274x) coord(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	if strings.Contains(v, ".") {
		return strconv.ParseFloat(v, 64)
	}
	if !s.fsSet && !s.warnedNoFormat {
		s.warnedNoFormat = true
		s.warn.add("coordinates before %%FS; assuming %d.%d leading zero omission", s.intDig, s.decDig)
	}
	neg := strings.HasPrefix(v, "-")
	digits := strings.TrimLeft(v, "+-")
	if s.trailing {
		for len(digits) < s.intDig+s.decDig {
			digits += "0"
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate %q", v)
	}
	f := float64(n) / math.Pow(10, float64(s.decDig))
	if neg {
		f = -f
	}
	return f, nil
}

func (s *rs274x) target(x, y string) (float64, float64, error) {
	nx, ny := s.x, s.y
	if x != "" {
		v, err := s.coord(x)
		if err != nil {
			return 0, 0, err
		}
		if s.incremental {
			v += s.x
		}
		nx = v
	}
	if y != "" {
		v, err := s.coord(y)
		if err != nil {
			return 0, 0, err
		}
		if s.incremental {
			v += s.y
		}
		ny = v
	}
	return nx, ny, nil
}

func (s *rs274x) closePoly() {
	switch {
	case len(s.poly) >= 3:
		s.layer.Regions = append(s.layer.Regions, design.Region{Points: s.poly, Clear: s.clear})
	case len(s.poly) > 0:
		s.warn.add("degenerate region with %d point(s) skipped", len(s.poly))
	}
	s.poly = nil
}

func (s *rs274x) move(nx, ny float64) {
	if s.region {
		s.closePoly()
	}
	s.path = nil
	s.x, s.y = nx, ny
}

func (s *rs274x) draw(nx, ny, i, j float64) {
	from, to := design.Point{X: s.x, Y: s.y}, design.Point{X: nx, Y: ny}
	s.x, s.y = nx, ny
	if s.region {
		if len(s.poly) == 0 {
			s.poly = append(s.poly, from)
		}
		s.poly = append(s.poly, to)
		return
	}
	a, ok := s.apertures[s.current]
	if !ok {
		s.warn.add("draw without a defined aperture at (%g, %g)", nx, ny)
		return
	}
	arc := s.interp != 1
	s.layer.Traces = append(s.layer.Traces, design.Trace{Start: from, End: to, Width: a.stroke(), Arc: arc, Clear: s.clear})

	if arc && from == to && (i != 0 || j != 0) {
		// full circle: keep its extent as a closed contour
		c, r := design.Point{X: from.X + i, Y: from.Y + j}, math.Hypot(i, j)
		s.layer.Contours = append(s.layer.Contours, design.Contour{Points: []design.Point{
			{X: c.X - r, Y: c.Y - r}, {X: c.X + r, Y: c.Y - r}, {X: c.X + r, Y: c.Y + r}, {X: c.X - r, Y: c.Y + r},
		}})
		return
	}
	if len(s.path) == 0 {
		s.path = append(s.path, from)
	}
	s.path = append(s.path, to)
	if len(s.path) >= 4 && to == s.path[0] {
		s.layer.Contours = append(s.layer.Contours, design.Contour{Points: s.path[:len(s.path)-1]})
		s.path = nil
	}
}

func (s *rs274x) flash(nx, ny float64) {
	s.x, s.y = nx, ny
	s.path = nil
	if s.region {
		s.warn.add("flash inside a region at (%g, %g) skipped", nx, ny)
		return
	}
	a, ok := s.apertures[s.current]
	if !ok {
		s.warn.add("flash without a defined aperture at (%g, %g)", nx, ny)
		return
	}
	s.layer.Pads = append(s.layer.Pads, design.Pad{
		At:       design.Point{X: nx, Y: ny},
		Shape:    a.shape,
		Width:    a.w,
		Height:   a.h,
		Fiducial: a.fiducial,
		Clear:    s.clear,
	})
}
