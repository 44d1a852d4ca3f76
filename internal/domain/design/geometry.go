package design

import "math"

// Epsilon is the tolerance used for every threshold comparison in mm.
const Epsilon = 1e-9

// gapEpsilon separates touching features from barely separated ones.
const gapEpsilon = 1e-6

// Box is an axis aligned bounding box. The zero value is empty.
type Box struct {
	MinX  float64 `json:"min_x"`
	MinY  float64 `json:"min_y"`
	MaxX  float64 `json:"max_x"`
	MaxY  float64 `json:"max_y"`
	Valid bool    `json:"valid"`
}

func (b *Box) Add(p Point) {
	if !b.Valid {
		*b = Box{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y, Valid: true}
		return
	}
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

func (b *Box) AddBox(o Box) {
	if !o.Valid {
		return
	}
	b.Add(Point{o.MinX, o.MinY})
	b.Add(Point{o.MaxX, o.MaxY})
}

func (b Box) Width() float64 {
	if !b.Valid {
		return 0
	}
	return b.MaxX - b.MinX
}

func (b Box) Height() float64 {
	if !b.Valid {
		return 0
	}
	return b.MaxY - b.MinY
}

func (b Box) Area() float64 { return b.Width() * b.Height() }

// Expand grows the box by d on every side
func (b Box) Expand(d float64) Box {
	if !b.Valid {
		return b
	}
	return Box{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d, Valid: true}
}

// Overlaps reports whether the interiors of b and o intersect
func (b Box) Overlaps(o Box) bool {
	if !b.Valid || !o.Valid {
		return false
	}
	return b.MinX < o.MaxX-Epsilon && o.MinX < b.MaxX-Epsilon &&
		b.MinY < o.MaxY-Epsilon && o.MinY < b.MaxY-Epsilon
}

// Capsule is a segment swept by a disc: the footprint of a round-aperture trace
// or an approximated pad.
type Capsule struct {
	A, B Point
	R    float64
}

func (c Capsule) Bounds() Box {
	var b Box
	b.Add(c.A)
	b.Add(c.B)
	return b.Expand(c.R)
}

// Covers reports whether p lies inside the capsule
func (c Capsule) Covers(p Point) bool {
	return PointSegmentDistance(p, c.A, c.B) <= c.R+gapEpsilon
}

func TraceCapsule(t Trace) Capsule {
	return Capsule{A: t.Start, B: t.End, R: t.Width / 2}
}

// PadCapsule approximates a pad. Rectangles lose their corners.
func PadCapsule(p Pad) Capsule {
	switch p.Shape {
	case ShapeRect, ShapeObround:
		if p.Width >= p.Height {
			d := (p.Width - p.Height) / 2
			return Capsule{A: Point{p.At.X - d, p.At.Y}, B: Point{p.At.X + d, p.At.Y}, R: p.Height / 2}
		}
		d := (p.Height - p.Width) / 2
		return Capsule{A: Point{p.At.X, p.At.Y - d}, B: Point{p.At.X, p.At.Y + d}, R: p.Width / 2}
	default:
		return Capsule{A: p.At, B: p.At, R: p.Width / 2}
	}
}

// CapsuleGap is the edge to edge distance; zero or negative means touching.
func CapsuleGap(a, b Capsule) float64 {
	return SegmentDistance(a.A, a.B, b.A, b.B) - a.R - b.R
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// PointSegmentDistance returns the distance from p to segment ab
func PointSegmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return dist(p, Point{a.X + t*dx, a.Y + t*dy})
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// SegmentDistance returns the shortest distance between segments p and q
func SegmentDistance(p1, p2, q1, q2 Point) float64 {
	if segmentsIntersect(p1, p2, q1, q2) {
		return 0
	}
	return math.Min(
		math.Min(PointSegmentDistance(p1, q1, q2), PointSegmentDistance(p2, q1, q2)),
		math.Min(PointSegmentDistance(q1, p1, p2), PointSegmentDistance(q2, p1, p2)),
	)
}

// Feature is a copper primitive reduced to a capsule
type Feature struct {
	Capsule
	Pad   bool
	Index int
}

// Center is a representative point used when reporting a location
func (f Feature) Center() Point {
	return Point{(f.A.X + f.B.X) / 2, (f.A.Y + f.B.Y) / 2}
}

// Features returns the dark traces and pads of a layer. Regions are left out:
// pours are checked by the fabricator's own DRC.
func Features(l *Layer) []Feature {
	out := make([]Feature, 0, len(l.Traces)+len(l.Pads))
	for i, t := range l.Traces {
		if t.Clear || t.Width <= 0 {
			continue
		}
		out = append(out, Feature{Capsule: TraceCapsule(t), Index: i})
	}
	for i, p := range l.Pads {
		if p.Clear || p.Width <= 0 {
			continue
		}
		out = append(out, Feature{Capsule: PadCapsule(p), Pad: true, Index: i})
	}
	return out
}

// Grid is a uniform spatial hash over capsules. Items covering more than
// maxItemCells cells are kept aside and tested by bounds on every query.
// Not safe for concurrent queries.
type Grid struct {
	cell      float64
	items     []Feature
	cells     map[[2]int][]int
	oversized []int
	mark      []uint32
	epoch     uint32
}

const (
	// maxGridSpan bounds the number of cells along one axis
	maxGridSpan = 2048
	// maxItemCells bounds the cells one item is registered in
	maxItemCells = 256
)

func NewGrid(items []Feature, cell float64) *Grid {
	var all Box
	for _, it := range items {
		all.AddBox(it.Bounds())
	}
	if span := math.Max(all.Width(), all.Height()) / maxGridSpan; span > cell {
		cell = span
	}
	if cell <= 0 {
		cell = 1
	}
	g := &Grid{cell: cell, items: items, cells: make(map[[2]int][]int), mark: make([]uint32, len(items))}
	for i, it := range items {
		b := it.Bounds()
		x0, y0, x1, y1 := g.span(b)
		if (x1-x0+1)*(y1-y0+1) > maxItemCells {
			g.oversized = append(g.oversized, i)
			continue
		}
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				k := [2]int{x, y}
				g.cells[k] = append(g.cells[k], i)
			}
		}
	}
	return g
}

func (g *Grid) span(b Box) (int, int, int, int) {
	return int(math.Floor(b.MinX / g.cell)), int(math.Floor(b.MinY / g.cell)),
		int(math.Floor(b.MaxX / g.cell)), int(math.Floor(b.MaxY / g.cell))
}

// Query calls fn once for every item whose cell range touches b, and for every
// oversized item whose bounds touch b.
func (g *Grid) Query(b Box, fn func(i int, f Feature)) {
	if !b.Valid || len(g.items) == 0 {
		return
	}
	g.epoch++
	for _, i := range g.oversized {
		o := g.items[i].Bounds()
		if b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY {
			g.mark[i] = g.epoch
			fn(i, g.items[i])
		}
	}
	x0, y0, x1, y1 := g.span(b)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for _, i := range g.cells[[2]int{x, y}] {
				if g.mark[i] == g.epoch {
					continue
				}
				g.mark[i] = g.epoch
				fn(i, g.items[i])
			}
		}
	}
}

// NearPairs visits every pair of features whose gap is below limit. Touching
// pairs (gap <= 0) are skipped because they are electrically connected.
func NearPairs(feats []Feature, limit float64, fn func(a, b Feature, gap float64)) {
	g := NewGrid(feats, math.Max(limit*2, 0.5))
	for i, f := range feats {
		g.Query(f.Bounds().Expand(limit), func(j int, o Feature) {
			if j <= i {
				return
			}
			gap := CapsuleGap(f.Capsule, o.Capsule)
			if gap <= gapEpsilon || gap >= limit {
				return
			}
			fn(f, o, gap)
		})
	}
}

// PolygonArea is the unsigned shoelace area
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

func PadArea(p Pad) float64 {
	switch p.Shape {
	case ShapeRect:
		return p.Width * p.Height
	case ShapeObround:
		r := math.Min(p.Width, p.Height) / 2
		return p.Width*p.Height - (4-math.Pi)*r*r
	case ShapeMacro:
		return 0
	default:
		return math.Pi * p.Width * p.Width / 4
	}
}

func TraceArea(t Trace) float64 {
	return dist(t.Start, t.End)*t.Width + math.Pi*t.Width*t.Width/4
}

// CopperFraction estimates the filled share of the layer bounding box.
// Overlaps are counted twice, so the value is clamped to [0, 1].
func CopperFraction(l *Layer) float64 {
	area := l.Bounds.Area()
	if area <= 0 {
		return 0
	}
	var filled float64
	for _, t := range l.Traces {
		if t.Clear {
			filled -= TraceArea(t)
		} else {
			filled += TraceArea(t)
		}
	}
	for _, p := range l.Pads {
		if p.Clear {
			filled -= PadArea(p)
		} else {
			filled += PadArea(p)
		}
	}
	for _, r := range l.Regions {
		if r.Clear {
			filled -= PolygonArea(r.Points)
		} else {
			filled += PolygonArea(r.Points)
		}
	}
	return math.Max(0, math.Min(1, filled/area))
}

// layerBounds covers every primitive including its aperture extent
func layerBounds(l *Layer) Box {
	var b Box
	for _, t := range l.Traces {
		b.AddBox(TraceCapsule(t).Bounds())
	}
	for _, p := range l.Pads {
		b.AddBox(Box{MinX: p.At.X - p.Width/2, MinY: p.At.Y - p.Height/2,
			MaxX: p.At.X + p.Width/2, MaxY: p.At.Y + p.Height/2, Valid: true})
	}
	for _, r := range l.Regions {
		for _, pt := range r.Points {
			b.Add(pt)
		}
	}
	for _, c := range l.Contours {
		for _, pt := range c.Points {
			b.Add(pt)
		}
	}
	return b
}

// Ring is the annular ring of one hole on one copper layer
type Ring struct {
	Hole  int
	Layer string
	Width float64
}

// padTolerance is how far a pad centre may sit from a hole centre
const padTolerance = 0.025

// AnnularRings returns, per hole that lands on a copper pad, the narrowest ring
// across the copper layers the hole spans.
func AnnularRings(m *Model) []Ring {
	type layerPads struct {
		layer   *Layer
		ordinal int
		grid    *Grid
	}
	var idx []layerPads
	for _, l := range m.CopperLayers() {
		var pads []Feature
		for i, p := range l.Pads {
			if p.Clear || p.Width <= 0 {
				continue
			}
			pads = append(pads, Feature{Capsule: Capsule{A: p.At, B: p.At, R: padTolerance}, Pad: true, Index: i})
		}
		if len(pads) == 0 {
			continue
		}
		idx = append(idx, layerPads{layer: l, ordinal: l.Ordinal, grid: NewGrid(pads, 1)})
	}
	var out []Ring
	for hi, h := range m.Holes {
		if !h.Plated {
			continue
		}
		best := Ring{Hole: -1}
		for _, lp := range idx {
			if h.From > 0 && (lp.ordinal < h.From || lp.ordinal > h.To) {
				continue
			}
			q := Box{MinX: h.At.X, MinY: h.At.Y, MaxX: h.At.X, MaxY: h.At.Y, Valid: true}.Expand(padTolerance)
			lp.grid.Query(q, func(_ int, f Feature) {
				if dist(f.A, h.At) > padTolerance {
					return
				}
				pad := lp.layer.Pads[f.Index]
				w := (pad.MinSize() - h.Diameter) / 2
				if best.Hole < 0 || w < best.Width {
					best = Ring{Hole: hi, Layer: lp.layer.Name, Width: w}
				}
			})
		}
		if best.Hole >= 0 {
			out = append(out, best)
		}
	}
	return out
}
