package design

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsuleGap(t *testing.T) {
	a := TraceCapsule(Trace{Start: Point{0, 0}, End: Point{10, 0}, Width: 0.2})
	b := TraceCapsule(Trace{Start: Point{0, 0.5}, End: Point{10, 0.5}, Width: 0.2})
	assert.InDelta(t, 0.3, CapsuleGap(a, b), 1e-9)

	crossing := TraceCapsule(Trace{Start: Point{5, -5}, End: Point{5, 5}, Width: 0.2})
	assert.Less(t, CapsuleGap(a, crossing), 0.0)
}

func TestPadCapsuleFollowsLongAxis(t *testing.T) {
	c := PadCapsule(Pad{At: Point{1, 1}, Shape: ShapeRect, Width: 0.5, Height: 2})
	assert.Equal(t, 0.25, c.R)
	assert.InDelta(t, 0.25, c.A.Y, 1e-9)
	assert.InDelta(t, 1.75, c.B.Y, 1e-9)
	assert.True(t, c.Covers(Point{1, 1}))
}

func TestNearPairsSkipsConnectedFeatures(t *testing.T) {
	l := &Layer{
		Traces: []Trace{
			{Start: Point{0, 0}, End: Point{10, 0}, Width: 0.2},
			{Start: Point{10, 0}, End: Point{10, 10}, Width: 0.2},
			{Start: Point{0, 0.35}, End: Point{8, 0.35}, Width: 0.2},
		},
	}
	var gaps []float64
	NearPairs(Features(l), 0.5, func(_, _ Feature, gap float64) { gaps = append(gaps, gap) })
	require.Len(t, gaps, 1)
	assert.InDelta(t, 0.15, gaps[0], 1e-9)
}

func TestGridKeepsLongDiagonalsOutOfCells(t *testing.T) {
	diagonal := Feature{Capsule: TraceCapsule(Trace{Start: Point{0, 0}, End: Point{1000, 1000}, Width: 0.2})}
	near := Feature{Capsule: TraceCapsule(Trace{Start: Point{500, 500.5}, End: Point{500, 501.5}, Width: 0.2}), Index: 1}
	far := Feature{Capsule: TraceCapsule(Trace{Start: Point{900, 10}, End: Point{901, 10}, Width: 0.2}), Index: 2}
	g := NewGrid([]Feature{diagonal, near, far}, 0.5)

	assert.Equal(t, []int{0}, g.oversized)
	for _, ids := range g.cells {
		assert.NotContains(t, ids, 0)
	}
	assert.LessOrEqual(t, len(g.cells), 2*maxItemCells)

	var hits []int
	g.Query(near.Bounds().Expand(0.5), func(i int, _ Feature) { hits = append(hits, i) })
	assert.ElementsMatch(t, []int{0, 1}, hits)

	hits = nil
	g.Query(Box{MinX: -5, MinY: 1500, MaxX: -4, MaxY: 1501, Valid: true}, func(i int, _ Feature) { hits = append(hits, i) })
	assert.Empty(t, hits)

	var gaps []float64
	NearPairs([]Feature{diagonal, near, far}, 0.5, func(_, _ Feature, gap float64) { gaps = append(gaps, gap) })
	require.Len(t, gaps, 1)
	assert.InDelta(t, 0.5/math.Sqrt2-0.2, gaps[0], 1e-6)
}

func TestPolygonArea(t *testing.T) {
	assert.InDelta(t, 1500, PolygonArea([]Point{{0, 0}, {50, 0}, {50, 30}, {0, 30}}), 1e-9)
	assert.Zero(t, PolygonArea([]Point{{0, 0}, {1, 1}}))
}

func TestCopperFractionClamps(t *testing.T) {
	l := &Layer{Regions: []Region{
		{Points: square(0, 0, 10)},
		{Points: square(0, 0, 10)},
	}}
	l.Bounds = layerBounds(l)
	assert.Equal(t, 1.0, CopperFraction(l))

	l.Regions[1].Clear = true
	assert.Equal(t, 0.0, CopperFraction(l))
}

func TestPadArea(t *testing.T) {
	assert.InDelta(t, math.Pi/4, PadArea(Pad{Shape: ShapeCircle, Width: 1}), 1e-12)
	assert.InDelta(t, 2, PadArea(Pad{Shape: ShapeRect, Width: 1, Height: 2}), 1e-12)
}

func TestAnnularRingsPicksNarrowestLayer(t *testing.T) {
	m := &Model{
		Layers: []Layer{
			{Name: "top", Role: LayerTopCopper, Ordinal: 1, Pads: []Pad{{At: Point{5, 5}, Shape: ShapeCircle, Width: 0.6, Height: 0.6}}},
			{Name: "bottom", Role: LayerBottomCopper, Ordinal: 2, Pads: []Pad{{At: Point{5, 5}, Shape: ShapeCircle, Width: 0.5, Height: 0.5}}},
		},
		Holes: []Hole{
			{At: Point{5, 5}, Diameter: 0.3, Plated: true},
			{At: Point{20, 20}, Diameter: 0.3, Plated: true},
		},
	}
	rings := AnnularRings(m)
	require.Len(t, rings, 1)
	assert.Equal(t, "bottom", rings[0].Layer)
	assert.InDelta(t, 0.1, rings[0].Width, 1e-9)
}

func TestBoxOverlaps(t *testing.T) {
	var a, b Box
	a.Add(Point{0, 0})
	a.Add(Point{10, 10})
	b.Add(Point{10, 0})
	b.Add(Point{20, 10})
	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Overlaps(b.Expand(1)))
}
