package report

import (
	"encoding/json"
	"time"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
)

// Structured is the machine readable report. Unknown values are null.
type Structured struct {
	AnalysisID  string           `json:"analysis_id"`
	Status      analysis.Status  `json:"status"`
	Summary     StructuredFacts  `json:"summary"`
	Issues      []camrules.Issue `json:"issues"`
	IssueCounts camrules.Counts  `json:"issue_counts"`
	Details     Details          `json:"details"`
	Warnings    []design.Warning `json:"warnings"`
}

type StructuredFacts struct {
	BoardWidth           *float64           `json:"board_width"`
	BoardHeight          *float64           `json:"board_height"`
	BoardThickness       *float64           `json:"board_thickness"`
	PanelCount           int                `json:"panel_count"`
	BoardsPerPanel       int                `json:"boards_per_panel"`
	TotalBoards          int                `json:"total_boards"`
	LayerCount           int                `json:"layer_count"`
	InnerLayerCount      int                `json:"inner_layer_count"`
	LaminateType         *string            `json:"laminate_type"`
	CopperWeights        map[string]string  `json:"copper_weights"`
	SurfaceFinish        *string            `json:"surface_finish"`
	TotalVias            int                `json:"total_vias"`
	ViaTypes             map[string]int     `json:"via_types"`
	TotalPads            int                `json:"total_pads"`
	MinTraceWidth        *float64           `json:"min_trace_width"`
	MinSpacing           *float64           `json:"min_spacing"`
	CopperAreaPercentage map[string]float64 `json:"copper_area_percentage"`
}

// Details carries the facts beyond the headline summary
type Details struct {
	ProjectName     string                `json:"project_name"`
	BoardName       string                `json:"board_name"`
	Format          design.Format         `json:"format"`
	CompletedAt     time.Time             `json:"completed_at"`
	IsPanelized     bool                  `json:"is_panelized"`
	PanelSource     string                `json:"panel_source"`
	ThicknessSource string                `json:"thickness_source"`
	MaterialSources map[string]string     `json:"material_sources"`
	Prepreg         *string               `json:"prepreg"`
	TotalHoles      int                   `json:"total_holes"`
	MinDrillSize    *float64              `json:"min_drill_size"`
	MinAnnularRing  *float64              `json:"min_annular_ring"`
	NetCount        *int                  `json:"net_count"`
	ComponentCount  *int                  `json:"component_count"`
	Layers          []summary.LayerDetail `json:"layers"`
	DrillTable      []design.DrillEntry   `json:"drill_table"`
	Files           []design.FileRef      `json:"files"`
}

func known(f summary.Field) *string {
	if !f.Known() {
		return nil
	}
	v := f.Value
	return &v
}

// NewStructured maps a completed analysis onto the report shape
func NewStructured(a *analysis.Analysis) Structured {
	s := a.Result.Summary
	out := Structured{
		AnalysisID: string(a.ID),
		Status:     a.Status,
		Summary: StructuredFacts{
			BoardWidth:           s.BoardWidth,
			BoardHeight:          s.BoardHeight,
			BoardThickness:       s.BoardThickness,
			PanelCount:           s.PanelCount,
			BoardsPerPanel:       s.BoardsPerPanel,
			TotalBoards:          s.TotalBoards,
			LayerCount:           s.LayerCount,
			InnerLayerCount:      s.InnerLayerCount,
			LaminateType:         known(s.Laminate),
			SurfaceFinish:        known(s.SurfaceFinish),
			TotalVias:            s.TotalVias,
			ViaTypes:             s.ViaTypes,
			TotalPads:            s.TotalPads,
			MinTraceWidth:        s.MinTraceWidth,
			MinSpacing:           s.MinSpacing,
			CopperAreaPercentage: s.CopperAreaPercentage,
		},
		Issues:      a.Issues,
		IssueCounts: a.Result.Counts,
		Warnings:    a.Warnings,
		Details: Details{
			ProjectName:     a.ProjectName,
			BoardName:       a.BoardName,
			Format:          a.Format,
			CompletedAt:     a.Result.CompletedAt.UTC(),
			IsPanelized:     s.IsPanelized,
			PanelSource:     s.PanelSource,
			ThicknessSource: s.ThicknessSource,
			MaterialSources: map[string]string{
				"laminate":       s.Laminate.Source,
				"prepreg":        s.Prepreg.Source,
				"surface_finish": s.SurfaceFinish.Source,
			},
			Prepreg:        known(s.Prepreg),
			TotalHoles:     s.TotalHoles,
			MinDrillSize:   s.MinDrillSize,
			MinAnnularRing: s.MinAnnularRing,
			NetCount:       s.NetCount,
			ComponentCount: s.ComponentCount,
			Layers:         s.Layers,
			DrillTable:     s.DrillTable,
			Files:          a.Files,
		},
	}
	if len(s.CopperWeights) > 0 {
		out.Summary.CopperWeights = map[string]string{}
		for k, f := range s.CopperWeights {
			if f.Known() {
				out.Summary.CopperWeights[k] = f.Value
			}
		}
	}
	if out.Issues == nil {
		out.Issues = []camrules.Issue{}
	}
	if out.Warnings == nil {
		out.Warnings = []design.Warning{}
	}
	return out
}

func structured(a *analysis.Analysis) ([]byte, error) {
	return json.MarshalIndent(NewStructured(a), "", "  ")
}
