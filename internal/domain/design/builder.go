package design

import (
	"fmt"
	"math"
	"sort"
)

// SpacingSearchRadius bounds the neighbourhood scanned for the model's min spacing
const SpacingSearchRadius = 1.0

// Build normalizes parser output into a Model. It never modifies raw.
func Build(raw *Raw) (*Model, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no parser output", ErrModelBuild)
	}
	m := &Model{
		Format:     raw.Format,
		Material:   copyMaterial(raw.Material),
		Netlist:    raw.Netlist,
		Components: append([]Component(nil), raw.Components...),
		Ignored:    append([]string(nil), raw.Ignored...),
		Warnings:   append([]Warning(nil), raw.Warnings...),
	}

	var layers []Layer
	for _, l := range raw.Layers {
		if l == nil {
			continue
		}
		if l.Role == LayerOther || l.Role == "" {
			m.Ignored = append(m.Ignored, l.Name)
			continue
		}
		n := normalizeLayer(l)
		if n.PrimitiveCount() == 0 && len(n.Contours) == 0 {
			m.Warnings = append(m.Warnings, Warning{File: n.Name, Message: "layer has no usable primitives; excluded"})
			m.Ignored = append(m.Ignored, n.Name)
			continue
		}
		layers = append(layers, n)
	}
	layers = m.dedupe(layers)
	orderLayers(layers)
	m.Layers = layers

	copper := m.CopperLayers()
	if len(copper) == 0 {
		return nil, fmt.Errorf("%w: no copper layers", ErrModelBuild)
	}

	if raw.Thickness != nil && raw.Thickness.Value > 0 {
		t := round(raw.Thickness.Unit.ToMM(raw.Thickness.Value), 4)
		m.Thickness = &t
		m.ThicknessSource = raw.Thickness.Source
	}

	if err := m.buildHoles(raw.Drills, len(copper)); err != nil {
		return nil, err
	}
	m.computeStats()
	m.buildBoards(raw)
	if err := m.checkStacks(raw.Stacks); err != nil {
		return nil, err
	}
	return m, nil
}

func copyMaterial(in Material) Material {
	out := in
	if in.CopperWeights != nil {
		out.CopperWeights = make(map[string]Attr, len(in.CopperWeights))
		for k, v := range in.CopperWeights {
			out.CopperWeights[k] = v
		}
	}
	return out
}

func scalePoint(p Point, f float64) Point { return Point{p.X * f, p.Y * f} }

func scalePoints(pts []Point, f float64) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = scalePoint(p, f)
	}
	return out
}

func normalizeLayer(in *Layer) Layer {
	f := in.Unit.ToMM(1)
	out := Layer{
		Name:    in.Name,
		Aliases: append([]string(nil), in.Aliases...),
		Role:    in.Role,
		Index:   in.Index,
		Unit:    UnitMM,
		Apertures: ApertureStats{
			Count: in.Apertures.Count,
			Min:   in.Apertures.Min * f,
			Max:   in.Apertures.Max * f,
		},
	}
	out.Traces = make([]Trace, len(in.Traces))
	for i, t := range in.Traces {
		out.Traces[i] = Trace{Start: scalePoint(t.Start, f), End: scalePoint(t.End, f), Width: t.Width * f, Arc: t.Arc, Clear: t.Clear}
	}
	out.Pads = make([]Pad, len(in.Pads))
	for i, p := range in.Pads {
		out.Pads[i] = Pad{At: scalePoint(p.At, f), Shape: p.Shape, Width: p.Width * f, Height: p.Height * f, Fiducial: p.Fiducial, Clear: p.Clear}
	}
	out.Regions = make([]Region, len(in.Regions))
	for i, r := range in.Regions {
		out.Regions[i] = Region{Points: scalePoints(r.Points, f), Clear: r.Clear}
	}
	out.Contours = make([]Contour, len(in.Contours))
	for i, c := range in.Contours {
		out.Contours[i] = Contour{Points: scalePoints(c.Points, f)}
	}
	out.Bounds = layerBounds(&out)
	if out.Role.IsCopper() {
		out.CopperFraction = CopperFraction(&out)
	}
	return out
}

type layerKey struct {
	role  LayerRole
	index int
}

func (m *Model) dedupe(layers []Layer) []Layer {
	seen := map[layerKey]int{}
	var out []Layer
	for _, l := range layers {
		k := layerKey{role: l.Role}
		if l.Role == LayerInnerCopper {
			if l.Index <= 0 {
				out = append(out, l)
				continue
			}
			k.index = l.Index
		}
		at, dup := seen[k]
		if !dup {
			seen[k] = len(out)
			out = append(out, l)
			continue
		}
		kept, dropped := out[at], l
		if dropped.PrimitiveCount() > kept.PrimitiveCount() {
			kept, dropped = dropped, kept
		}
		kept.Aliases = appendUnique(kept.Aliases, dropped.Name)
		for _, a := range dropped.Aliases {
			kept.Aliases = appendUnique(kept.Aliases, a)
		}
		out[at] = kept
		m.Warnings = append(m.Warnings, Warning{
			File:    dropped.Name,
			Message: fmt.Sprintf("duplicate %s layer, merged into %s", dropped.Role, kept.Name),
		})
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

var roleRank = map[LayerRole]int{
	LayerTopCopper:    0,
	LayerInnerCopper:  1,
	LayerBottomCopper: 2,
	LayerMaskTop:      3,
	LayerMaskBottom:   4,
	LayerSilkTop:      5,
	LayerSilkBottom:   6,
	LayerPasteTop:     7,
	LayerPasteBottom:  8,
	LayerOutline:      9,
}

// orderLayers sorts copper top to bottom, then the functional layers, and
// assigns 1-based ordinals.
func orderLayers(layers []Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		a, b := layers[i], layers[j]
		if roleRank[a.Role] != roleRank[b.Role] {
			return roleRank[a.Role] < roleRank[b.Role]
		}
		if a.Role == LayerInnerCopper {
			ai, bi := a.Index, b.Index
			if ai <= 0 {
				ai = math.MaxInt32
			}
			if bi <= 0 {
				bi = math.MaxInt32
			}
			if ai != bi {
				return ai < bi
			}
		}
		return a.Name < b.Name
	})
	for i := range layers {
		layers[i].Ordinal = i + 1
	}
}

func (m *Model) buildHoles(drills []DrillLayer, copperCount int) error {
	for _, dl := range drills {
		f := dl.Unit.ToMM(1)
		from, to, err := m.resolveSpan(dl, copperCount)
		if err != nil {
			return err
		}
		class := classify(dl.Plated, from, to, copperCount)
		for _, h := range dl.Holes {
			d := h.Diameter * f
			if d <= 0 {
				m.Warnings = append(m.Warnings, Warning{File: dl.Name, Message: "hole with zero diameter skipped"})
				continue
			}
			m.Holes = append(m.Holes, Hole{
				At:       scalePoint(h.At, f),
				Diameter: d,
				Plated:   dl.Plated,
				Class:    class,
				From:     from,
				To:       to,
				Source:   dl.Name,
			})
		}
	}
	return nil
}

func (m *Model) resolveSpan(dl DrillLayer, copperCount int) (int, int, error) {
	if dl.Span == nil {
		return 0, 0, nil
	}
	from, to := dl.Span.From, dl.Span.To
	if dl.Span.FromName != "" || dl.Span.ToName != "" {
		a, b := m.LayerByName(dl.Span.FromName), m.LayerByName(dl.Span.ToName)
		if a == nil || b == nil || !a.Role.IsCopper() || !b.Role.IsCopper() {
			return 0, 0, fmt.Errorf("%w: drill layer %s spans unknown layers %q..%q",
				ErrModelBuild, dl.Name, dl.Span.FromName, dl.Span.ToName)
		}
		from, to = a.Ordinal, b.Ordinal
	}
	if from > to {
		from, to = to, from
	}
	if from < 1 || to > copperCount {
		m.Warnings = append(m.Warnings, Warning{
			File:    dl.Name,
			Message: fmt.Sprintf("drill span %d..%d outside the %d copper layers; holes left unclassified", from, to, copperCount),
		})
		return 0, 0, nil
	}
	return from, to, nil
}

func classify(plated bool, from, to, n int) HoleClass {
	switch {
	case !plated:
		return HoleNonPlated
	case from == 0:
		return HoleUnclassified
	case from == 1 && to == n:
		return HoleThrough
	case from == 1 || to == n:
		return HoleBlind
	default:
		return HoleBuried
	}
}

func (m *Model) computeStats() {
	type drillKey struct {
		d     float64
		class HoleClass
	}
	counts := map[drillKey]int{}
	for _, h := range m.Holes {
		counts[drillKey{round(h.Diameter, 4), h.Class}]++
		if h.Plated {
			m.ViaCount++
		}
	}
	m.DrillTable = make([]DrillEntry, 0, len(counts))
	for k, c := range counts {
		m.DrillTable = append(m.DrillTable, DrillEntry{Diameter: k.d, Class: k.class, Count: c})
	}
	sort.Slice(m.DrillTable, func(i, j int) bool {
		a, b := m.DrillTable[i], m.DrillTable[j]
		if a.Diameter != b.Diameter {
			return a.Diameter < b.Diameter
		}
		return a.Class < b.Class
	})

	var minWidth, minGap float64
	for _, l := range m.CopperLayers() {
		for _, t := range l.Traces {
			if t.Clear || t.Width <= 0 {
				continue
			}
			if minWidth == 0 || t.Width < minWidth {
				minWidth = t.Width
			}
		}
		for _, p := range l.Pads {
			if !p.Clear {
				m.PadCount++
			}
		}
		NearPairs(Features(l), SpacingSearchRadius, func(_, _ Feature, gap float64) {
			if minGap == 0 || gap < minGap {
				minGap = gap
			}
		})
	}
	if minWidth > 0 {
		v := round(minWidth, 4)
		m.MinTraceWidth = &v
	}
	if minGap > 0 {
		v := round(minGap, 4)
		m.MinSpacing = &v
	}
}

func (m *Model) checkStacks(pinned [][]string) error {
	for _, stack := range pinned {
		for _, name := range stack {
			if m.LayerByName(name) == nil {
				return fmt.Errorf("%w: board stack references unknown layer %q", ErrModelBuild, name)
			}
		}
	}
	for _, b := range m.Boards {
		for _, name := range b.Stack {
			if m.LayerByName(name) == nil {
				return fmt.Errorf("%w: board %s references unknown layer %q", ErrModelBuild, b.Name, name)
			}
		}
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 { return round(v, places) }

func stackNames(m *Model) []string {
	var names []string
	for _, l := range m.CopperLayers() {
		names = append(names, l.Name)
	}
	return names
}

