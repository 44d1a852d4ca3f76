package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
)

func newTable(title string) table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetTitle(title)
	return w
}

func mm(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.4f mm", *v)
}

func count(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}

func material(f summary.Field) string {
	if !f.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", f.Value, f.Source)
}

// Narrative renders a plain text report of a completed analysis
func Narrative(a *analysis.Analysis) string {
	s := a.Result.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "CAM analysis %s\n", a.ID)
	fmt.Fprintf(&b, "Project %s, board %s, %s data, completed %s\n\n",
		a.ProjectName, a.BoardName, a.Format, a.Result.CompletedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	facts := newTable("Summary")
	facts.AppendRows([]table.Row{
		{"Board size", fmt.Sprintf("%s x %s", mm(s.BoardWidth), mm(s.BoardHeight))},
		{"Thickness", mm(s.BoardThickness)},
		{"Panels", fmt.Sprintf("%d x %d boards = %d", s.PanelCount, s.BoardsPerPanel, s.TotalBoards)},
		{"Layers", fmt.Sprintf("%d copper, %d inner", s.LayerCount, s.InnerLayerCount)},
		{"Laminate", material(s.Laminate)},
		{"Prepreg", material(s.Prepreg)},
		{"Surface finish", material(s.SurfaceFinish)},
		{"Vias", fmt.Sprintf("%d %s", s.TotalVias, viaTypes(s.ViaTypes))},
		{"Pads", s.TotalPads},
		{"Min trace width", mm(s.MinTraceWidth)},
		{"Min spacing", mm(s.MinSpacing)},
		{"Min drill", mm(s.MinDrillSize)},
		{"Min annular ring", mm(s.MinAnnularRing)},
		{"Nets", count(s.NetCount)},
		{"Components", count(s.ComponentCount)},
	})
	b.WriteString(facts.Render())
	b.WriteString("\n\n")

	if len(s.CopperAreaPercentage) > 0 {
		cu := newTable("Copper coverage")
		cu.AppendHeader(table.Row{"Layer", "Copper %"})
		cu.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		for _, l := range s.Layers {
			if l.CopperPercentage != nil {
				cu.AppendRow(table.Row{l.Name, fmt.Sprintf("%.2f", *l.CopperPercentage)})
			}
		}
		b.WriteString(cu.Render())
		b.WriteString("\n\n")
	}

	c := a.Result.Counts
	fmt.Fprintf(&b, "Issues: %d critical, %d warning, %d info\n", c.Critical, c.Warning, c.Info)
	if len(a.Issues) == 0 {
		b.WriteString("No manufacturability issues found.\n")
	} else {
		it := newTable("")
		it.AppendHeader(table.Row{"Severity", "Type", "Layer", "Location", "Description"})
		it.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 70}})
		for _, is := range a.Issues {
			where := "-"
			if is.Location != nil {
				where = fmt.Sprintf("%.3f, %.3f", is.Location.X, is.Location.Y)
			}
			it.AppendRow(table.Row{is.Severity, is.Type, is.Layer, where, is.Description})
		}
		b.WriteString(it.Render())
		b.WriteString("\n")
	}

	if len(a.Warnings) > 0 {
		fmt.Fprintf(&b, "\nParse warnings (%d):\n", len(a.Warnings))
		for _, w := range a.Warnings {
			if w.File != "" {
				fmt.Fprintf(&b, "  %s: %s\n", w.File, w.Message)
			} else {
				fmt.Fprintf(&b, "  %s\n", w.Message)
			}
		}
	}
	return b.String()
}

func viaTypes(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d %s", m[k], k)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
