// Package summary derives the headline numbers of a design model.
package summary

import (
	"sort"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// SourceUnknown marks a material field the design data does not carry
const SourceUnknown = "unknown"

// Field is a material attribute. Value is empty when Source is unknown.
type Field struct {
	Value  string `json:"value,omitempty"`
	Source string `json:"source"`
}

// Known reports whether the design carried a value
func (f Field) Known() bool { return f.Source != SourceUnknown }

// LayerDetail is the per layer breakdown shown in reports
type LayerDetail struct {
	Ordinal          int                  `json:"ordinal"`
	Name             string               `json:"name"`
	Role             design.LayerRole     `json:"role"`
	Aliases          []string             `json:"aliases,omitempty"`
	Traces           int                  `json:"traces"`
	Pads             int                  `json:"pads"`
	Regions          int                  `json:"regions"`
	Apertures        design.ApertureStats `json:"apertures"`
	CopperPercentage *float64             `json:"copper_percentage,omitempty"`
}

// Summary is a read-only digest of a design.Model. Pointer fields are nil when
// the design does not determine them.
type Summary struct {
	BoardWidth      *float64 `json:"board_width"`
	BoardHeight     *float64 `json:"board_height"`
	BoardThickness  *float64 `json:"board_thickness"`
	ThicknessSource string   `json:"thickness_source"`

	PanelCount     int    `json:"panel_count"`
	BoardsPerPanel int    `json:"boards_per_panel"`
	TotalBoards    int    `json:"total_boards"`
	IsPanelized    bool   `json:"is_panelized"`
	PanelSource    string `json:"panel_source"`

	LayerCount      int `json:"layer_count"`
	InnerLayerCount int `json:"inner_layer_count"`

	Laminate      Field            `json:"laminate"`
	Prepreg       Field            `json:"prepreg"`
	SurfaceFinish Field            `json:"surface_finish"`
	CopperWeights map[string]Field `json:"copper_weights"`

	TotalVias  int            `json:"total_vias"`
	ViaTypes   map[string]int `json:"via_types"`
	TotalPads  int            `json:"total_pads"`
	TotalHoles int            `json:"total_holes"`

	MinTraceWidth  *float64 `json:"min_trace_width"`
	MinSpacing     *float64 `json:"min_spacing"`
	MinDrillSize   *float64 `json:"min_drill_size"`
	MinAnnularRing *float64 `json:"min_annular_ring"`

	CopperAreaPercentage map[string]float64 `json:"copper_area_percentage"`

	NetCount       *int `json:"net_count"`
	ComponentCount *int `json:"component_count"`

	Layers     []LayerDetail       `json:"layers"`
	DrillTable []design.DrillEntry `json:"drill_table"`
}

func ptr[T any](v T) *T { return &v }

func field(a design.Attr) Field {
	if !a.Known() {
		return Field{Source: SourceUnknown}
	}
	return Field{Value: a.Value, Source: string(a.Source)}
}

// Summarize reads m. It never modifies the model and the same model always
// yields the same summary.
func Summarize(m *design.Model) Summary {
	s := Summary{
		PanelCount:           m.Panel.Count,
		BoardsPerPanel:       m.Panel.BoardsPerPanel,
		PanelSource:          string(m.Panel.Source),
		Laminate:             field(m.Material.Laminate),
		Prepreg:              field(m.Material.Prepreg),
		SurfaceFinish:        field(m.Material.SurfaceFinish),
		CopperWeights:        map[string]Field{},
		ViaTypes:             map[string]int{},
		TotalPads:            m.PadCount,
		TotalVias:            m.ViaCount,
		TotalHoles:           len(m.Holes),
		CopperAreaPercentage: map[string]float64{},
		ThicknessSource:      SourceUnknown,
		DrillTable:           m.DrillTable,
	}
	if s.PanelCount < 1 {
		s.PanelCount = 1
	}
	if s.BoardsPerPanel < 1 {
		s.BoardsPerPanel = 1
	}
	s.TotalBoards = s.PanelCount * s.BoardsPerPanel
	s.IsPanelized = s.TotalBoards > 1

	if len(m.Boards) > 0 {
		b := m.Boards[0]
		if b.Width > 0 && b.Height > 0 {
			s.BoardWidth = ptr(design.Round(b.Width, 4))
			s.BoardHeight = ptr(design.Round(b.Height, 4))
		}
	}
	if m.Thickness != nil {
		s.BoardThickness = ptr(design.Round(*m.Thickness, 4))
		s.ThicknessSource = string(m.ThicknessSource)
	}

	for k, v := range m.Material.CopperWeights {
		s.CopperWeights[k] = field(v)
	}

	for _, l := range m.CopperLayers() {
		s.LayerCount++
		if l.Role == design.LayerInnerCopper {
			s.InnerLayerCount++
		}
		s.CopperAreaPercentage[l.Name] = design.Round(l.CopperFraction*100, 2)
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		d := LayerDetail{
			Ordinal:   l.Ordinal,
			Name:      l.Name,
			Role:      l.Role,
			Aliases:   l.Aliases,
			Traces:    len(l.Traces),
			Pads:      len(l.Pads),
			Regions:   len(l.Regions),
			Apertures: l.Apertures,
		}
		if l.Role.IsCopper() {
			d.CopperPercentage = ptr(design.Round(l.CopperFraction*100, 2))
		}
		s.Layers = append(s.Layers, d)
	}

	var minDrill float64
	for _, h := range m.Holes {
		if h.Plated {
			s.ViaTypes[string(h.Class)]++
		}
		if minDrill == 0 || h.Diameter < minDrill {
			minDrill = h.Diameter
		}
	}
	if minDrill > 0 {
		s.MinDrillSize = ptr(design.Round(minDrill, 4))
	}
	if rings := design.AnnularRings(m); len(rings) > 0 {
		sort.Slice(rings, func(i, j int) bool { return rings[i].Width < rings[j].Width })
		s.MinAnnularRing = ptr(design.Round(rings[0].Width, 4))
	}
	if m.MinTraceWidth != nil {
		s.MinTraceWidth = ptr(*m.MinTraceWidth)
	}
	if m.MinSpacing != nil {
		s.MinSpacing = ptr(*m.MinSpacing)
	}
	if m.Netlist != nil {
		s.NetCount = ptr(len(m.Netlist.Nets))
	}
	if len(m.Components) > 0 {
		s.ComponentCount = ptr(len(m.Components))
	}
	return s
}
