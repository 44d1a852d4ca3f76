package camrules

import (
	"fmt"
	"math"
	"sort"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// padMatchTolerance pairs features whose centres coincide within this distance
const padMatchTolerance = 0.025

// fiducialSearchRadius bounds the pairing of fiducials across layers
const fiducialSearchRadius = 5.0

func hypot(a, b design.Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func checkTraceWidth(m *design.Model, t Thresholds) []Issue {
	type group struct {
		width float64
		count int
		first design.Point
	}
	var out []Issue
	for _, l := range m.CopperLayers() {
		groups := map[float64]*group{}
		for _, tr := range l.Traces {
			if tr.Clear || tr.Width <= 0 || !below(tr.Width, t.MinTraceWidth) {
				continue
			}
			k := design.Round(tr.Width, 4)
			g, ok := groups[k]
			if !ok {
				g = &group{width: tr.Width, first: tr.Start}
				groups[k] = g
			}
			g.count++
		}
		for k, g := range groups {
			out = append(out, Issue{
				Type:     TypeTraceWidth,
				Severity: severityBelow(g.width, t.MinTraceWidth),
				Layer:    l.Name,
				Location: loc(g.first),
				Description: fmt.Sprintf("%d trace(s) of width %.4f mm are below the %.4f mm minimum",
					g.count, k, t.MinTraceWidth),
				Recommendation: fmt.Sprintf("Widen these traces to at least %.4f mm or confirm a finer process class with the fabricator.", t.MinTraceWidth),
			})
		}
	}
	return out
}

func featureKind(f design.Feature) string {
	if f.Pad {
		return "pad"
	}
	return "trace"
}

func checkSpacing(m *design.Model, t Thresholds) []Issue {
	var out []Issue
	for _, l := range m.CopperLayers() {
		design.NearPairs(design.Features(l), t.MinSpacing, func(a, b design.Feature, gap float64) {
			ca, cb := a.Center(), b.Center()
			out = append(out, Issue{
				Type:     TypeSpacing,
				Severity: severityBelow(gap, t.MinSpacing),
				Layer:    l.Name,
				Location: loc(design.Point{X: (ca.X + cb.X) / 2, Y: (ca.Y + cb.Y) / 2}),
				Description: fmt.Sprintf("%s to %s clearance of %.4f mm is below the %.4f mm minimum",
					featureKind(a), featureKind(b), gap, t.MinSpacing),
				Recommendation: fmt.Sprintf("Move the features apart to at least %.4f mm.", t.MinSpacing),
			})
		})
	}
	return out
}

func checkAnnularRing(m *design.Model, t Thresholds) []Issue {
	var out []Issue
	for _, r := range design.AnnularRings(m) {
		if !below(r.Width, t.MinAnnularRing) {
			continue
		}
		h := m.Holes[r.Hole]
		out = append(out, Issue{
			Type:     TypeAnnularRing,
			Severity: severityBelow(r.Width, t.MinAnnularRing),
			Layer:    r.Layer,
			Location: loc(h.At),
			Description: fmt.Sprintf("annular ring of %.4f mm around a %.4f mm hole is below the %.4f mm minimum",
				r.Width, h.Diameter, t.MinAnnularRing),
			Recommendation: fmt.Sprintf("Enlarge the pad to at least %.4f mm or reduce the drill diameter.",
				h.Diameter+2*t.MinAnnularRing),
		})
	}
	return out
}

func checkDrillSize(m *design.Model, t Thresholds) []Issue {
	type group struct {
		diameter float64
		source   string
		count    int
		first    design.Point
	}
	groups := map[float64]*group{}
	for _, h := range m.Holes {
		if h.Diameter <= 0 || !below(h.Diameter, t.MinDrillSize) {
			continue
		}
		k := design.Round(h.Diameter, 4)
		g, ok := groups[k]
		if !ok {
			g = &group{diameter: h.Diameter, source: h.Source, first: h.At}
			groups[k] = g
		}
		g.count++
	}
	var out []Issue
	for k, g := range groups {
		out = append(out, Issue{
			Type:     TypeDrillSize,
			Severity: severityBelow(g.diameter, t.MinDrillSize),
			Layer:    g.source,
			Location: loc(g.first),
			Description: fmt.Sprintf("%d hole(s) of %.4f mm are below the %.4f mm minimum drill",
				g.count, k, t.MinDrillSize),
			Recommendation: fmt.Sprintf("Use a drill of at least %.4f mm or plan for laser drilling.", t.MinDrillSize),
		})
	}
	return out
}

// checkSolderMask compares every mask opening with the copper pad under it
func checkSolderMask(m *design.Model, t Thresholds) []Issue {
	var out []Issue
	for _, pair := range [][2]design.LayerRole{
		{design.LayerMaskTop, design.LayerTopCopper},
		{design.LayerMaskBottom, design.LayerBottomCopper},
	} {
		mask, copper := m.LayerByRole(pair[0]), m.LayerByRole(pair[1])
		if mask == nil || copper == nil {
			continue
		}
		var pads []design.Feature
		for i, p := range copper.Pads {
			if p.Clear || p.Width <= 0 {
				continue
			}
			pads = append(pads, design.Feature{Capsule: design.Capsule{A: p.At, B: p.At, R: padMatchTolerance}, Pad: true, Index: i})
		}
		if len(pads) == 0 {
			continue
		}
		grid := design.NewGrid(pads, 1)
		for _, opening := range mask.Pads {
			if opening.Clear || opening.Width <= 0 {
				continue
			}
			best, found := 0.0, false
			q := design.Box{MinX: opening.At.X, MinY: opening.At.Y, MaxX: opening.At.X, MaxY: opening.At.Y, Valid: true}.Expand(padMatchTolerance)
			grid.Query(q, func(_ int, f design.Feature) {
				if hypot(f.A, opening.At) > padMatchTolerance {
					return
				}
				c := (opening.MinSize() - copper.Pads[f.Index].MinSize()) / 2
				if !found || c < best {
					best, found = c, true
				}
			})
			if !found || !below(best, t.MinSolderMaskClearance) {
				continue
			}
			out = append(out, Issue{
				Type:     TypeSolderMaskClear,
				Severity: severityBelow(best, t.MinSolderMaskClearance),
				Layer:    mask.Name,
				Location: loc(opening.At),
				Description: fmt.Sprintf("solder mask clearance of %.4f mm is below the %.4f mm minimum",
					best, t.MinSolderMaskClearance),
				Recommendation: fmt.Sprintf("Grow the mask opening by %.4f mm per side.", t.MinSolderMaskClearance-best),
			})
		}
	}
	return out
}

// checkDrillToCopper measures each hole against copper it does not land on
func checkDrillToCopper(m *design.Model, t Thresholds) []Issue {
	type index struct {
		layer *design.Layer
		grid  *design.Grid
	}
	var layers []index
	for _, l := range m.CopperLayers() {
		feats := design.Features(l)
		if len(feats) == 0 {
			continue
		}
		layers = append(layers, index{layer: l, grid: design.NewGrid(feats, 1)})
	}
	if len(layers) == 0 {
		return nil
	}

	var out []Issue
	for _, h := range m.Holes {
		if h.Diameter <= 0 {
			continue
		}
		r := h.Diameter / 2
		worst, worstLayer, found := 0.0, "", false
		for _, ix := range layers {
			if h.Plated && h.From > 0 && (ix.layer.Ordinal < h.From || ix.layer.Ordinal > h.To) {
				continue
			}
			q := design.Box{MinX: h.At.X, MinY: h.At.Y, MaxX: h.At.X, MaxY: h.At.Y, Valid: true}.Expand(r + t.MinDrillToCopper)
			ix.grid.Query(q, func(_ int, f design.Feature) {
				if f.Covers(h.At) {
					return
				}
				gap := design.PointSegmentDistance(h.At, f.A, f.B) - f.R - r
				if !below(gap, t.MinDrillToCopper) {
					return
				}
				if !found || gap < worst {
					worst, worstLayer, found = gap, ix.layer.Name, true
				}
			})
		}
		if !found {
			continue
		}
		sev := severityBelow(worst, t.MinDrillToCopper)
		desc := fmt.Sprintf("%.4f mm hole is %.4f mm from unrelated copper, below the %.4f mm minimum",
			h.Diameter, math.Max(worst, 0), t.MinDrillToCopper)
		if worst < 0 {
			sev = SeverityCritical
			desc = fmt.Sprintf("%.4f mm hole cuts into unrelated copper by %.4f mm", h.Diameter, -worst)
		}
		out = append(out, Issue{
			Type:           TypeDrillToCopper,
			Severity:       sev,
			Layer:          worstLayer,
			Location:       loc(h.At),
			Description:    desc,
			Recommendation: fmt.Sprintf("Keep copper at least %.4f mm from the drill edge.", t.MinDrillToCopper),
		})
	}
	return out
}

func checkCopperImbalance(m *design.Model, t Thresholds) []Issue {
	top, bottom := m.LayerByRole(design.LayerTopCopper), m.LayerByRole(design.LayerBottomCopper)
	if top == nil || bottom == nil {
		return nil
	}
	a, b := top.CopperFraction*100, bottom.CopperFraction*100
	diff := math.Abs(a - b)
	if diff <= t.CopperImbalanceTolerance+design.Epsilon {
		return nil
	}
	return []Issue{{
		Type:     TypeCopperImbalance,
		Severity: SeverityWarning,
		Layer:    top.Name + "/" + bottom.Name,
		Description: fmt.Sprintf("top copper %.2f%% and bottom copper %.2f%% differ by %.2f points, above the %.2f point tolerance",
			a, b, diff, t.CopperImbalanceTolerance),
		Recommendation: "Add copper thieving or balance pours on the lighter side to reduce warpage risk.",
	}}
}

// checkAlignment compares fiducials of every layer to those of the first
// layer that has any
func checkAlignment(m *design.Model, t Thresholds) []Issue {
	var withFid []*design.Layer
	for i := range m.Layers {
		if len(m.Layers[i].Fiducials()) > 0 {
			withFid = append(withFid, &m.Layers[i])
		}
	}
	if len(withFid) < 2 {
		return nil
	}
	sort.SliceStable(withFid, func(i, j int) bool { return withFid[i].Ordinal < withFid[j].Ordinal })
	ref := withFid[0].Fiducials()

	var out []Issue
	for _, l := range withFid[1:] {
		for _, p := range l.Fiducials() {
			best := math.Inf(1)
			for _, r := range ref {
				if d := hypot(p, r); d < best {
					best = d
				}
			}
			if best > fiducialSearchRadius || best <= t.MaxLayerMisalignment+design.Epsilon {
				continue
			}
			out = append(out, Issue{
				Type:     TypeLayerMisalignment,
				Severity: severityAbove(best, t.MaxLayerMisalignment),
				Layer:    l.Name,
				Location: loc(p),
				Description: fmt.Sprintf("fiducial is offset %.4f mm from its counterpart on %s, above the %.4f mm tolerance",
					best, withFid[0].Name, t.MaxLayerMisalignment),
				Recommendation: "Check the layer origin and scaling of this file against the reference layer.",
			})
		}
	}
	return out
}
