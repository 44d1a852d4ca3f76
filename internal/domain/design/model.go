package design

import (
	"fmt"
	"strings"
)

// Format of an uploaded design bundle
type Format string

const (
	FormatGerber Format = "gerber"
	FormatODBPP  Format = "odbpp"
)

// Unit of coordinates and sizes inside a parsed layer
type Unit string

const (
	UnitMM   Unit = "mm"
	UnitInch Unit = "inch"
)

// ToMM converts a value expressed in u to millimetres.
func (u Unit) ToMM(v float64) float64 {
	if u == UnitInch {
		return v * 25.4
	}
	return v
}

// FromMM converts millimetres into u.
func (u Unit) FromMM(v float64) float64 {
	if u == UnitInch {
		return v / 25.4
	}
	return v
}

// FileRole is the role declared (or guessed) for an uploaded file
type FileRole string

const (
	FileCopper     FileRole = "copper"
	FileSolderMask FileRole = "solder-mask"
	FileSilkscreen FileRole = "silkscreen"
	FileDrill      FileRole = "drill"
	FileArchive    FileRole = "archive"
	FileUnknown    FileRole = "unknown"
)

// File is a raw uploaded artifact. Content is never mutated after upload.
type File struct {
	Name    string
	Role    FileRole
	Content []byte
}

func (f File) Size() int64 { return int64(len(f.Content)) }

// FileRef is the persisted view of a File (no bytes)
type FileRef struct {
	Name       string   `json:"name"`
	Role       FileRole `json:"role"`
	Size       int64    `json:"size"`
	StorageKey string   `json:"storage_key,omitempty"`
}

// LayerRole enum
type LayerRole string

const (
	LayerTopCopper    LayerRole = "top-copper"
	LayerInnerCopper  LayerRole = "inner-copper"
	LayerBottomCopper LayerRole = "bottom-copper"
	LayerMaskTop      LayerRole = "solder-mask-top"
	LayerMaskBottom   LayerRole = "solder-mask-bottom"
	LayerSilkTop      LayerRole = "silkscreen-top"
	LayerSilkBottom   LayerRole = "silkscreen-bottom"
	LayerPasteTop     LayerRole = "paste-top"
	LayerPasteBottom  LayerRole = "paste-bottom"
	LayerOutline      LayerRole = "outline"
	LayerOther        LayerRole = "other"
)

func (r LayerRole) IsCopper() bool {
	return r == LayerTopCopper || r == LayerInnerCopper || r == LayerBottomCopper
}

func (r LayerRole) IsMask() bool { return r == LayerMaskTop || r == LayerMaskBottom }

// Side returns the board side a layer role belongs to
func (r LayerRole) Side() Side {
	switch r {
	case LayerTopCopper, LayerMaskTop, LayerSilkTop, LayerPasteTop:
		return SideTop
	case LayerBottomCopper, LayerMaskBottom, LayerSilkBottom, LayerPasteBottom:
		return SideBottom
	}
	return SideNone
}

type Side string

const (
	SideTop    Side = "top"
	SideBottom Side = "bottom"
	SideNone   Side = ""
)

// Shape of an aperture or pad symbol
type Shape string

const (
	ShapeCircle  Shape = "circle"
	ShapeRect    Shape = "rect"
	ShapeObround Shape = "obround"
	ShapePolygon Shape = "polygon"
	ShapeMacro   Shape = "macro"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Trace is a drawn segment. Arcs are kept as their chord.
type Trace struct {
	Start Point   `json:"start"`
	End   Point   `json:"end"`
	Width float64 `json:"width"`
	Arc   bool    `json:"arc,omitempty"`
	Clear bool    `json:"clear,omitempty"`
}

// Pad is a flashed aperture
type Pad struct {
	At       Point   `json:"at"`
	Shape    Shape   `json:"shape"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Fiducial bool    `json:"fiducial,omitempty"`
	Clear    bool    `json:"clear,omitempty"`
}

// MinSize is the smaller pad dimension
func (p Pad) MinSize() float64 {
	if p.Height > 0 && p.Height < p.Width {
		return p.Height
	}
	return p.Width
}

// Region is a filled polygon
type Region struct {
	Points []Point `json:"points"`
	Clear  bool    `json:"clear,omitempty"`
}

// Contour is a closed drawn path, used to find board outlines
type Contour struct {
	Points []Point `json:"points"`
}

// ApertureStats summarises the aperture table of a layer
type ApertureStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
}

// Layer is one conductive or functional plane
type Layer struct {
	Name           string        `json:"name"`
	Aliases        []string      `json:"aliases,omitempty"`
	Role           LayerRole     `json:"role"`
	Index          int           `json:"index,omitempty"`
	Ordinal        int           `json:"ordinal"`
	Unit           Unit          `json:"unit"`
	Traces         []Trace       `json:"traces,omitempty"`
	Pads           []Pad         `json:"pads,omitempty"`
	Regions        []Region      `json:"regions,omitempty"`
	Contours       []Contour     `json:"contours,omitempty"`
	Apertures      ApertureStats `json:"apertures"`
	Bounds         Box           `json:"bounds"`
	CopperFraction float64       `json:"copper_fraction"`
}

// PrimitiveCount counts traces, pads and regions
func (l *Layer) PrimitiveCount() int {
	return len(l.Traces) + len(l.Pads) + len(l.Regions)
}

// Fiducials returns the centres of fiducial pads
func (l *Layer) Fiducials() []Point {
	var out []Point
	for _, p := range l.Pads {
		if p.Fiducial {
			out = append(out, p.At)
		}
	}
	return out
}

// HoleClass of a drilled hole
type HoleClass string

const (
	HoleThrough      HoleClass = "through"
	HoleBlind        HoleClass = "blind"
	HoleBuried       HoleClass = "buried"
	HoleUnclassified HoleClass = "unclassified"
	HoleNonPlated    HoleClass = "non-plated"
)

// Span names the copper layers a drill layer connects. Either ordinals (Gerber X2
// layer numbers) or layer names (ODB++ start/end) are set.
type Span struct {
	From     int    `json:"from,omitempty"`
	To       int    `json:"to,omitempty"`
	FromName string `json:"from_name,omitempty"`
	ToName   string `json:"to_name,omitempty"`
}

// DrillLayer is parser output for one drill file or ODB++ drill layer
type DrillLayer struct {
	Name   string
	Unit   Unit
	Plated bool
	Span   *Span
	Holes  []Hole
}

type Hole struct {
	At       Point     `json:"at"`
	Diameter float64   `json:"diameter"`
	Plated   bool      `json:"plated"`
	Class    HoleClass `json:"class"`
	// From and To are the copper ordinals the hole spans, zero when unknown.
	From   int    `json:"from,omitempty"`
	To     int    `json:"to,omitempty"`
	Source string `json:"source,omitempty"`
}

// DrillEntry is one row of the drill table
type DrillEntry struct {
	Diameter float64   `json:"diameter"`
	Class    HoleClass `json:"class"`
	Count    int       `json:"count"`
}

// Source tells whether a value came from the design data or was guessed
type Source string

const (
	SourceDeclared Source = "declared"
	SourceInferred Source = "inferred"
	SourceDefault  Source = "default"
)

// Attr is an optional material attribute. An empty Value means unknown.
type Attr struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
}

func (a Attr) Known() bool { return strings.TrimSpace(a.Value) != "" }

// Material specification
type Material struct {
	Laminate      Attr            `json:"laminate"`
	Prepreg       Attr            `json:"prepreg"`
	SurfaceFinish Attr            `json:"surface_finish"`
	CopperWeights map[string]Attr `json:"copper_weights,omitempty"`
}

// Merge fills unknown fields of m from o, and lets declared values replace
// inferred ones.
func (m *Material) Merge(o Material) {
	m.Laminate = pickAttr(m.Laminate, o.Laminate)
	m.Prepreg = pickAttr(m.Prepreg, o.Prepreg)
	m.SurfaceFinish = pickAttr(m.SurfaceFinish, o.SurfaceFinish)
	for k, v := range o.CopperWeights {
		if m.CopperWeights == nil {
			m.CopperWeights = map[string]Attr{}
		}
		m.CopperWeights[k] = pickAttr(m.CopperWeights[k], v)
	}
}

func pickAttr(cur, next Attr) Attr {
	if !next.Known() {
		return cur
	}
	if !cur.Known() || (cur.Source != SourceDeclared && next.Source == SourceDeclared) {
		return next
	}
	return cur
}

// Measure is a scalar with its unit and provenance
type Measure struct {
	Value  float64
	Unit   Unit
	Source Source
}

// Repeat is one step-and-repeat array entry
type Repeat struct {
	Step string
	X, Y float64
	DX   float64
	DY   float64
	NX   int
	NY   int
}

// RawPanel carries declared panelization data in parser units
type RawPanel struct {
	Unit    Unit
	Repeats []Repeat
	// Count is the declared number of panels, zero when not declared.
	Count int
}

// Panel is the normalized panelization
type Panel struct {
	Count          int    `json:"count"`
	BoardsPerPanel int    `json:"boards_per_panel"`
	Source         Source `json:"source"`
}

// Board is one physical PCB instance within the panel
type Board struct {
	Name      string   `json:"name"`
	Origin    Point    `json:"origin"`
	Width     float64  `json:"width"`
	Height    float64  `json:"height"`
	Thickness *float64 `json:"thickness,omitempty"`
	Stack     []string `json:"stack"`
}

type Component struct {
	Ref  string `json:"ref"`
	Part string `json:"part,omitempty"`
	Side Side   `json:"side"`
	At   Point  `json:"at"`
}

type Netlist struct {
	Nets []string `json:"nets"`
}

// Warning is a recoverable problem found while parsing
type Warning struct {
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Raw is parser output before normalization. Each layer keeps its own unit.
type Raw struct {
	Format     Format
	Layers     []*Layer
	Drills     []DrillLayer
	Panel      *RawPanel
	Material   Material
	Thickness  *Measure
	Netlist    *Netlist
	Components []Component
	// Stacks optionally pins board layer stacks by name.
	Stacks   [][]string
	Ignored  []string
	Warnings []Warning
}

// Warn appends a warning
func (r *Raw) Warn(file, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{File: file, Message: fmt.Sprintf(format, args...)})
}

// Model is the unified, format independent design. All values are millimetres.
// It is built once per analysis and never mutated afterwards.
type Model struct {
	Format          Format       `json:"format"`
	Layers          []Layer      `json:"layers"`
	Boards          []Board      `json:"boards"`
	Panel           Panel        `json:"panel"`
	Material        Material     `json:"material"`
	Thickness       *float64     `json:"thickness,omitempty"`
	ThicknessSource Source       `json:"thickness_source,omitempty"`
	Holes           []Hole       `json:"holes,omitempty"`
	DrillTable      []DrillEntry `json:"drill_table"`
	PadCount        int          `json:"pad_count"`
	ViaCount        int          `json:"via_count"`
	MinTraceWidth   *float64     `json:"min_trace_width,omitempty"`
	MinSpacing      *float64     `json:"min_spacing,omitempty"`
	Netlist         *Netlist     `json:"netlist,omitempty"`
	Components      []Component  `json:"components,omitempty"`
	Ignored         []string     `json:"ignored,omitempty"`
	Warnings        []Warning    `json:"warnings,omitempty"`
}

// CopperLayers returns copper layers in stack order
func (m *Model) CopperLayers() []*Layer {
	var out []*Layer
	for i := range m.Layers {
		if m.Layers[i].Role.IsCopper() {
			out = append(out, &m.Layers[i])
		}
	}
	return out
}

// LayerByRole returns the first layer with role r
func (m *Model) LayerByRole(r LayerRole) *Layer {
	for i := range m.Layers {
		if m.Layers[i].Role == r {
			return &m.Layers[i]
		}
	}
	return nil
}

// LayerByName resolves a layer name or alias
func (m *Model) LayerByName(name string) *Layer {
	for i := range m.Layers {
		l := &m.Layers[i]
		if strings.EqualFold(l.Name, name) {
			return l
		}
		for _, a := range l.Aliases {
			if strings.EqualFold(a, name) {
				return l
			}
		}
	}
	return nil
}
