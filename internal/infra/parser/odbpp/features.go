package odbpp

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

const maxWarningsPerFile = 25

type symbol struct {
	shape design.Shape
	w, h  float64
}

var (
	symRound = regexp.MustCompile(`^r([\d.]+)$`)
	symBox   = regexp.MustCompile(`^s([\d.]+)$`)
	symRect  = regexp.MustCompile(`^(rect|oval|di|oct)([\d.]+)x([\d.]+)`)
)

// parseSymbol decodes a standard symbol name. Sizes are in microns or mils,
// scale brings them into the layer unit.
func parseSymbol(name string, scale float64) symbol {
	n := strings.ToLower(name)
	num := func(s string) float64 {
		v, _ := strconv.ParseFloat(s, 64)
		return v * scale
	}
	if m := symRound.FindStringSubmatch(n); m != nil {
		d := num(m[1])
		return symbol{shape: design.ShapeCircle, w: d, h: d}
	}
	if m := symBox.FindStringSubmatch(n); m != nil {
		d := num(m[1])
		return symbol{shape: design.ShapeRect, w: d, h: d}
	}
	if m := symRect.FindStringSubmatch(n); m != nil {
		s := symbol{w: num(m[2]), h: num(m[3])}
		switch m[1] {
		case "rect":
			s.shape = design.ShapeRect
		case "oval":
			s.shape = design.ShapeObround
		default:
			s.shape = design.ShapePolygon
		}
		return s
	}
	return symbol{shape: design.ShapeMacro}
}

func (s symbol) minSize() float64 {
	if s.h > 0 && s.h < s.w {
		return s.h
	}
	return s.w
}

// featureReader decodes one features file into a layer
type featureReader struct {
	file    string
	layer   *design.Layer
	symbols map[int]symbol
	attrs   map[int]string
	warns   []design.Warning
	dropped int

	surfaceClear bool
	contour      []design.Point
	contourHole  bool
	inSurface    bool
}

func (r *featureReader) warn(format string, args ...any) {
	if len(r.warns) >= maxWarningsPerFile {
		r.dropped++
		return
	}
	r.warns = append(r.warns, design.Warning{File: r.file, Message: fmt.Sprintf(format, args...)})
}

func (r *featureReader) warnings() []design.Warning {
	if r.dropped == 0 {
		return r.warns
	}
	return append(r.warns, design.Warning{File: r.file, Message: fmt.Sprintf("%d further warning(s) suppressed", r.dropped)})
}

// parseFeatures reads a features file. def is the job unit, used when the file
// does not declare its own.
func parseFeatures(file string, data []byte, def design.Unit) (*design.Layer, []design.Warning) {
	r := &featureReader{
		file:    file,
		layer:   &design.Layer{Unit: def},
		symbols: map[int]symbol{},
		attrs:   map[int]string{},
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		r.line(strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		r.warn("file truncated at %v", err)
	}
	if r.inSurface {
		r.warn("surface not closed with SE")
	}
	return r.layer, r.warnings()
}

func (r *featureReader) symbolScale(suffix string) float64 {
	unit := r.layer.Unit
	switch strings.ToUpper(suffix) {
	case "I":
		unit = design.UnitInch
	case "M":
		unit = design.UnitMM
	}
	// symbols are microns in metric files and mils in imperial ones
	v := 0.001
	if unit != r.layer.Unit {
		v = r.layer.Unit.FromMM(unit.ToMM(v))
	}
	return v
}

func (r *featureReader) line(line string) {
	if line == "" || line[0] == '#' {
		return
	}
	body, attrs, _ := strings.Cut(line, ";")
	f := strings.Fields(body)
	if len(f) == 0 {
		return
	}
	switch {
	case strings.HasPrefix(strings.ToUpper(line), "UNITS="):
		r.layer.Unit = unitOf(line[6:], r.layer.Unit)
		return
	case f[0] == "U" && len(f) > 1:
		r.layer.Unit = unitOf(f[1], r.layer.Unit)
		return
	case f[0][0] == '$':
		r.defineSymbol(f)
		return
	case f[0][0] == '@':
		if n, err := strconv.Atoi(f[0][1:]); err == nil && len(f) > 1 {
			r.attrs[n] = strings.ToLower(f[1])
		}
		return
	case f[0][0] == '&', f[0] == "F", f[0] == "T", f[0] == "B", strings.HasPrefix(f[0], "ID="):
		return
	}

	switch f[0] {
	case "L":
		r.lineRecord(f, false)
	case "A":
		r.lineRecord(f, true)
	case "P":
		r.padRecord(f, attrs)
	case "S":
		r.inSurface = true
		r.surfaceClear = len(f) > 1 && f[1] == "N"
	case "OB":
		pt, ok := r.point(f, 1)
		if !ok {
			return
		}
		r.contour = []design.Point{pt}
		r.contourHole = len(f) > 3 && f[3] == "H"
	case "OS":
		if pt, ok := r.point(f, 1); ok {
			r.contour = append(r.contour, pt)
		}
	case "OC":
		if pt, ok := r.point(f, 1); ok {
			r.contour = append(r.contour, pt)
		}
	case "OE":
		r.closeContour()
	case "SE":
		r.inSurface = false
	default:
		r.warn("unrecognised record %q", f[0])
	}
}

func (r *featureReader) defineSymbol(f []string) {
	n, err := strconv.Atoi(f[0][1:])
	if err != nil || len(f) < 2 {
		r.warn("malformed symbol definition %q", strings.Join(f, " "))
		return
	}
	suffix := ""
	if len(f) > 2 {
		suffix = f[2]
	}
	s := parseSymbol(f[1], r.symbolScale(suffix))
	r.symbols[n] = s
	st := &r.layer.Apertures
	st.Count++
	if d := s.minSize(); d > 0 {
		if st.Min == 0 || d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
	}
}

func (r *featureReader) point(f []string, at int) (design.Point, bool) {
	if len(f) < at+2 {
		r.warn("record %q is missing coordinates", f[0])
		return design.Point{}, false
	}
	x, err1 := strconv.ParseFloat(f[at], 64)
	y, err2 := strconv.ParseFloat(f[at+1], 64)
	if err1 != nil || err2 != nil {
		r.warn("record %q has bad coordinates", f[0])
		return design.Point{}, false
	}
	return design.Point{X: x, Y: y}, true
}

func (r *featureReader) sym(f []string, at int) (symbol, bool) {
	if len(f) <= at {
		r.warn("record %q is missing a symbol", f[0])
		return symbol{}, false
	}
	n, err := strconv.Atoi(f[at])
	s, ok := r.symbols[n]
	if err != nil || !ok {
		r.warn("record %q references undefined symbol %s", f[0], f[at])
		return symbol{}, false
	}
	return s, true
}

// L xs ys xe ye sym pol dcode
// A xs ys xe ye xc yc sym pol dcode cw
func (r *featureReader) lineRecord(f []string, arc bool) {
	symAt := 5
	if arc {
		symAt = 7
	}
	start, ok1 := r.point(f, 1)
	end, ok2 := r.point(f, 3)
	s, ok3 := r.sym(f, symAt)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	r.layer.Traces = append(r.layer.Traces, design.Trace{
		Start: start,
		End:   end,
		Width: s.minSize(),
		Arc:   arc,
		Clear: len(f) > symAt+1 && f[symAt+1] == "N",
	})
}

// P x y sym pol dcode orient
func (r *featureReader) padRecord(f []string, attrs string) {
	at, ok1 := r.point(f, 1)
	s, ok2 := r.sym(f, 3)
	if !ok1 || !ok2 {
		return
	}
	w, h := s.w, s.h
	if len(f) > 6 {
		if o, err := strconv.Atoi(f[6]); err == nil && o%2 == 1 && o < 8 {
			w, h = h, w
		}
	}
	r.layer.Pads = append(r.layer.Pads, design.Pad{
		At:       at,
		Shape:    s.shape,
		Width:    w,
		Height:   h,
		Clear:    len(f) > 4 && f[4] == "N",
		Fiducial: r.isFiducial(attrs),
	})
}

func (r *featureReader) isFiducial(attrs string) bool {
	if attrs == "" {
		return false
	}
	for _, a := range strings.Split(attrs, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(a), "=")
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		name := r.attrs[n]
		if strings.Contains(name, "fiducial") {
			return true
		}
		// .pad_usage option 2 is fiducial
		if name == ".pad_usage" && v == "2" {
			return true
		}
	}
	return false
}

func (r *featureReader) closeContour() {
	pts := r.contour
	r.contour = nil
	if len(pts) < 3 {
		r.warn("degenerate contour with %d point(s) dropped", len(pts))
		return
	}
	if pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return
	}
	r.layer.Regions = append(r.layer.Regions, design.Region{
		Points: pts,
		Clear:  r.surfaceClear != r.contourHole,
	})
	if !r.contourHole {
		r.layer.Contours = append(r.layer.Contours, design.Contour{Points: pts})
	}
}
