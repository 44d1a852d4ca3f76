package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
	"github.com/bryanwahyu/automaton-cam/internal/testutil"
)

func completed(t *testing.T) *analysis.Analysis {
	t.Helper()
	b := testutil.Default()
	raw := testutil.Raw(b)
	raw.Layers[0].Traces[0].Width = 0.08
	raw.Material.SurfaceFinish = design.Attr{Value: "ENIG", Source: design.SourceInferred}
	m, err := design.Build(raw)
	require.NoError(t, err)
	issues, err := camrules.NewEngine(camrules.Defaults()).Run(context.Background(), m)
	require.NoError(t, err)
	res := analysis.NewResult(summary.Summarize(m), issues, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return &analysis.Analysis{
		ID:          "0b8a4f7e-3f7c-4d55-9a39-6f1f4c2d9b11",
		ProjectName: "demo",
		BoardName:   "main",
		Status:      analysis.StatusCompleted,
		Format:      design.FormatGerber,
		Result:      &res,
		Issues:      issues,
		Warnings:    []design.Warning{{File: "x.gbr", Message: "unrecognised statement"}},
	}
}

func TestStructuredShape(t *testing.T) {
	out, err := Render(completed(t), FormatStructured)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "0b8a4f7e-3f7c-4d55-9a39-6f1f4c2d9b11", doc["analysis_id"])
	assert.Equal(t, "completed", doc["status"])

	sum := doc["summary"].(map[string]any)
	for _, k := range []string{
		"board_width", "board_height", "board_thickness", "panel_count", "boards_per_panel",
		"total_boards", "layer_count", "inner_layer_count", "laminate_type", "copper_weights",
		"surface_finish", "total_vias", "via_types", "total_pads", "min_trace_width",
		"min_spacing", "copper_area_percentage",
	} {
		assert.Contains(t, sum, k)
	}
	assert.Equal(t, 50.0, sum["board_width"])
	assert.Nil(t, sum["board_thickness"])
	assert.Nil(t, sum["laminate_type"])
	assert.Nil(t, sum["copper_weights"])
	assert.Equal(t, "ENIG", sum["surface_finish"])
	assert.Equal(t, 4.0, sum["layer_count"])

	issues := doc["issues"].([]any)
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]any)
	for _, k := range []string{"type", "severity", "layer", "location", "description", "recommendation"} {
		assert.Contains(t, issue, k)
	}
	counts := doc["issue_counts"].(map[string]any)
	assert.Equal(t, float64(len(issues)), counts["critical"].(float64)+counts["warning"].(float64)+counts["info"].(float64))

	details := doc["details"].(map[string]any)
	assert.Equal(t, "inferred", details["material_sources"].(map[string]any)["surface_finish"])
	assert.Len(t, doc["warnings"], 1)
}

func TestNarrative(t *testing.T) {
	out, err := Render(completed(t), FormatNarrative)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "CAM analysis 0b8a4f7e-3f7c-4d55-9a39-6f1f4c2d9b11")
	assert.Contains(t, text, "50.0000 mm x 30.0000 mm")
	assert.Contains(t, text, "ENIG (inferred)")
	assert.Contains(t, text, "Issues: 0 critical, 1 warning, 0 info")
	assert.Contains(t, text, "trace-width")
	assert.Contains(t, text, "x.gbr: unrecognised statement")
}

func TestRenderRequiresCompletedAnalysis(t *testing.T) {
	a := &analysis.Analysis{ID: "x", Status: analysis.StatusProcessing}
	_, err := Render(a, FormatStructured)
	assert.ErrorIs(t, err, analysis.ErrAnalysisNotReady)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatStructured, f)
	f, err = ParseFormat("Narrative")
	require.NoError(t, err)
	assert.Equal(t, FormatNarrative, f)
	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
