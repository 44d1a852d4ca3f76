package design

import (
	"fmt"
	"math"
	"sort"
)

// panelSizeTolerance groups outline contours of the same board size
const panelSizeTolerance = 0.1

// minContourArea filters drawn holes and slots out of outline contours (mm²)
const minContourArea = 1.0

func (m *Model) buildBoards(raw *Raw) {
	footprint := m.footprint()
	stack := stackNames(m)

	m.Panel = Panel{Count: 1, BoardsPerPanel: 1, Source: SourceDefault}
	if raw.Panel != nil && raw.Panel.Count > 0 {
		m.Panel.Count = raw.Panel.Count
		m.Panel.Source = SourceDeclared
	}

	var origins []Point
	switch {
	case raw.Panel != nil && len(raw.Panel.Repeats) > 0:
		f := raw.Panel.Unit.ToMM(1)
		for _, r := range raw.Panel.Repeats {
			for i := 0; i < r.NX; i++ {
				for j := 0; j < r.NY; j++ {
					origins = append(origins, Point{(r.X + float64(i)*r.DX) * f, (r.Y + float64(j)*r.DY) * f})
				}
			}
		}
		m.Panel.Source = SourceDeclared
	default:
		if boxes := detectArray(m.LayerByRole(LayerOutline)); len(boxes) > 1 {
			footprint = boxes[0]
			for _, b := range boxes {
				origins = append(origins, Point{b.MinX, b.MinY})
			}
			if m.Panel.Source == SourceDefault {
				m.Panel.Source = SourceInferred
			}
		}
	}
	if len(origins) == 0 {
		origins = []Point{{footprint.MinX, footprint.MinY}}
	}
	m.Panel.BoardsPerPanel = len(origins)

	for i, o := range origins {
		m.Boards = append(m.Boards, Board{
			Name:      fmt.Sprintf("board-%d", i+1),
			Origin:    Point{round(o.X, 4), round(o.Y, 4)},
			Width:     round(footprint.Width(), 4),
			Height:    round(footprint.Height(), 4),
			Thickness: m.Thickness,
			Stack:     stack,
		})
	}
}

// footprint of a single board: the outline when there is one, otherwise the
// union of the copper extents.
func (m *Model) footprint() Box {
	if ol := m.LayerByRole(LayerOutline); ol != nil && ol.Bounds.Valid {
		if boxes := contourBoxes(ol); len(boxes) > 0 {
			// the largest closed contour is the board edge
			sort.Slice(boxes, func(i, j int) bool { return boxes[i].Area() > boxes[j].Area() })
			return boxes[0]
		}
		return ol.Bounds
	}
	var b Box
	for _, l := range m.CopperLayers() {
		b.AddBox(l.Bounds)
	}
	return b
}

func contourBoxes(l *Layer) []Box {
	var out []Box
	for _, c := range l.Contours {
		var b Box
		for _, p := range c.Points {
			b.Add(p)
		}
		if b.Area() >= minContourArea {
			out = append(out, b)
		}
	}
	for _, r := range l.Regions {
		var b Box
		for _, p := range r.Points {
			b.Add(p)
		}
		if b.Area() >= minContourArea {
			out = append(out, b)
		}
	}
	return out
}

// detectArray looks for a regular grid of equally sized board outlines. It
// returns the member boxes ordered by position, or nil when the outline does
// not describe an array.
func detectArray(outline *Layer) []Box {
	if outline == nil {
		return nil
	}
	boxes := contourBoxes(outline)
	if len(boxes) < 2 {
		return nil
	}
	var clusters [][]Box
	for _, b := range boxes {
		placed := false
		for i, c := range clusters {
			if math.Abs(c[0].Width()-b.Width()) <= panelSizeTolerance &&
				math.Abs(c[0].Height()-b.Height()) <= panelSizeTolerance {
				clusters[i] = append(c, b)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []Box{b})
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool { return len(clusters[i]) > len(clusters[j]) })
	members := clusters[0]
	if len(members) < 2 {
		return nil
	}
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			if members[i].Overlaps(members[j]) {
				return nil
			}
		}
	}
	xs := distinct(members, func(b Box) float64 { return b.MinX })
	ys := distinct(members, func(b Box) float64 { return b.MinY })
	if xs*ys != len(members) {
		return nil
	}
	sort.Slice(members, func(i, j int) bool {
		if math.Abs(members[i].MinY-members[j].MinY) > panelSizeTolerance {
			return members[i].MinY < members[j].MinY
		}
		return members[i].MinX < members[j].MinX
	})
	return members
}

func distinct(boxes []Box, key func(Box) float64) int {
	vals := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		vals = append(vals, key(b))
	}
	sort.Float64s(vals)
	n := 0
	for i, v := range vals {
		if i == 0 || v-vals[i-1] > panelSizeTolerance {
			n++
		}
	}
	return n
}
