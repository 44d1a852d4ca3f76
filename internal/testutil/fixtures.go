// Package testutil generates small, valid fabrication data sets for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// Board describes a rectangular test board. Sizes are millimetres.
type Board struct {
	Width, Height float64
	CopperLayers  int
	TraceWidth    float64
	PadDiameter   float64
	HoleDiameter  float64
	Holes         []design.Point
}

// Default is a 50 x 30 mm four layer board with two plated through holes
func Default() Board {
	return Board{
		Width:        50,
		Height:       30,
		CopperLayers: 4,
		TraceWidth:   0.15,
		PadDiameter:  0.5,
		HoleDiameter: 0.3,
		Holes:        []design.Point{{X: 10, Y: 15}, {X: 40, Y: 15}},
	}
}

func c(v float64) string { return fmt.Sprintf("%d", int64(math.Round(v*1e6))) }

// CopperGerber renders one copper layer: a full board pour, one trace and a pad
// on every hole. fn is the X2 file function, e.g. "Copper,L1,Top".
func CopperGerber(b Board, fn string) []byte {
	var sb strings.Builder
	sb.WriteString("G04 test fixture*\n%FSLAX46Y46*%\n%MOMM*%\n")
	if fn != "" {
		fmt.Fprintf(&sb, "%%TF.FileFunction,%s*%%\n", fn)
	}
	fmt.Fprintf(&sb, "%%ADD10C,%.6f*%%\n%%ADD11C,%.6f*%%\n", b.TraceWidth, b.PadDiameter)
	sb.WriteString("G01*\nG36*\n")
	fmt.Fprintf(&sb, "X0Y0D02*\nX%sY0D01*\nX%sY%sD01*\nX0Y%sD01*\nX0Y0D01*\n", c(b.Width), c(b.Width), c(b.Height), c(b.Height))
	sb.WriteString("G37*\nD10*\n")
	fmt.Fprintf(&sb, "X%sY%sD02*\nX%sY%sD01*\n", c(5), c(5), c(b.Width-5), c(5))
	sb.WriteString("D11*\n")
	for _, h := range b.Holes {
		fmt.Fprintf(&sb, "X%sY%sD03*\n", c(h.X), c(h.Y))
	}
	sb.WriteString("M02*\n")
	return []byte(sb.String())
}

// Excellon renders a plated drill file spanning every copper layer
func Excellon(b Board) []byte {
	var sb strings.Builder
	sb.WriteString("M48\n")
	fmt.Fprintf(&sb, "; #@! TF.FileFunction,Plated,1,%d,PTH\n", b.CopperLayers)
	fmt.Fprintf(&sb, "METRIC,TZ\nT1C%.3f\n%%\nG90\nG05\nT1\n", b.HoleDiameter)
	for _, h := range b.Holes {
		fmt.Fprintf(&sb, "X%.3fY%.3f\n", h.X, h.Y)
	}
	sb.WriteString("M30\n")
	return []byte(sb.String())
}

// GerberSet returns copper files plus the drill file for b
func GerberSet(b Board) []design.File {
	var files []design.File
	for i := 1; i <= b.CopperLayers; i++ {
		var name, fn string
		switch i {
		case 1:
			name, fn = "board-F_Cu.gbr", "Copper,L1,Top"
		case b.CopperLayers:
			name, fn = "board-B_Cu.gbr", fmt.Sprintf("Copper,L%d,Bot", i)
		default:
			name, fn = fmt.Sprintf("board-In%d_Cu.gbr", i-1), fmt.Sprintf("Copper,L%d,Inr", i)
		}
		files = append(files, design.File{Name: name, Role: design.FileCopper, Content: CopperGerber(b, fn)})
	}
	files = append(files, design.File{Name: "board-PTH.drl", Role: design.FileDrill, Content: Excellon(b)})
	return files
}

// Zip packs entries into a zip archive
func Zip(entries map[string][]byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(data); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// TarGz packs entries into a gzipped tarball
func TarGz(entries map[string][]byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write(data); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ODBJob renders b as a minimal ODB++ job (millimetre units) and returns the
// archive entries keyed by path.
func ODBJob(b Board) map[string][]byte {
	files := map[string][]byte{}
	put := func(p, body string) { files["job/"+p] = []byte(body) }

	var matrix strings.Builder
	matrix.WriteString("STEP {\n   COL=1\n   NAME=PCB\n}\n\n")
	var copper []string
	for i := 1; i <= b.CopperLayers; i++ {
		name := fmt.Sprintf("l%d", i)
		switch i {
		case 1:
			name = "top"
		case b.CopperLayers:
			name = "bottom"
		}
		copper = append(copper, name)
		fmt.Fprintf(&matrix, "LAYER {\n   ROW=%d\n   CONTEXT=BOARD\n   TYPE=SIGNAL\n   NAME=%s\n   POLARITY=POSITIVE\n}\n\n", i, strings.ToUpper(name))
	}
	fmt.Fprintf(&matrix, "LAYER {\n   ROW=%d\n   CONTEXT=BOARD\n   TYPE=DRILL\n   NAME=DRILL\n   START_NAME=TOP\n   END_NAME=BOTTOM\n}\n", b.CopperLayers+1)
	put("matrix/matrix", matrix.String())
	put("misc/info", "UNITS=MM\n")

	for _, name := range copper {
		var f strings.Builder
		f.WriteString("UNITS=MM\n#\n")
		fmt.Fprintf(&f, "$0 r%.6g\n$1 r%.6g\n#\n", b.TraceWidth*1000, b.PadDiameter*1000)
		fmt.Fprintf(&f, "S P 0\nOB 0 0 I\nOS %g 0\nOS %g %g\nOS 0 %g\nOS 0 0\nOE\nSE\n", b.Width, b.Width, b.Height, b.Height)
		fmt.Fprintf(&f, "L 5 5 %g 5 0 P 0\n", b.Width-5)
		for _, h := range b.Holes {
			fmt.Fprintf(&f, "P %g %g 1 P 0 0\n", h.X, h.Y)
		}
		put("steps/pcb/layers/"+name+"/features", f.String())
	}

	var d strings.Builder
	fmt.Fprintf(&d, "UNITS=MM\n$0 r%.6g\n", b.HoleDiameter*1000)
	for _, h := range b.Holes {
		fmt.Fprintf(&d, "P %g %g 0 P 0 0\n", h.X, h.Y)
	}
	put("steps/pcb/layers/drill/features", d.String())
	put("steps/pcb/profile", fmt.Sprintf("UNITS=MM\nS P 0\nOB 0 0 I\nOS %g 0\nOS %g %g\nOS 0 %g\nOS 0 0\nOE\nSE\n", b.Width, b.Width, b.Height, b.Height))
	return files
}

// Raw builds parser output for b directly, for tests that start at the model
func Raw(b Board) *design.Raw {
	raw := &design.Raw{Format: design.FormatGerber}
	for i := 1; i <= b.CopperLayers; i++ {
		l := &design.Layer{Name: fmt.Sprintf("L%d", i), Unit: design.UnitMM}
		switch i {
		case 1:
			l.Role = design.LayerTopCopper
		case b.CopperLayers:
			l.Role = design.LayerBottomCopper
		default:
			l.Role, l.Index = design.LayerInnerCopper, i-1
		}
		l.Regions = []design.Region{{Points: []design.Point{{X: 0, Y: 0}, {X: b.Width, Y: 0}, {X: b.Width, Y: b.Height}, {X: 0, Y: b.Height}}}}
		l.Traces = []design.Trace{{Start: design.Point{X: 5, Y: 5}, End: design.Point{X: b.Width - 5, Y: 5}, Width: b.TraceWidth}}
		for _, h := range b.Holes {
			l.Pads = append(l.Pads, design.Pad{At: h, Shape: design.ShapeCircle, Width: b.PadDiameter, Height: b.PadDiameter})
		}
		raw.Layers = append(raw.Layers, l)
	}
	dl := design.DrillLayer{Name: "drill", Unit: design.UnitMM, Plated: true, Span: &design.Span{From: 1, To: b.CopperLayers}}
	for _, h := range b.Holes {
		dl.Holes = append(dl.Holes, design.Hole{At: h, Diameter: b.HoleDiameter, Plated: true, Source: "drill"})
	}
	raw.Drills = []design.DrillLayer{dl}
	return raw
}
