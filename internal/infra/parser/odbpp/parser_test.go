package odbpp

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/testutil"
)

func jobFiles(entries map[string][]byte) []design.File {
	return []design.File{{Name: "job.tgz", Role: design.FileArchive, Content: testutil.TarGz(entries)}}
}

func TestParseJob(t *testing.T) {
	raw, err := New(0).Parse(context.Background(), jobFiles(testutil.ODBJob(testutil.Default())))
	require.NoError(t, err)

	assert.Equal(t, design.FormatODBPP, raw.Format)
	var copper []string
	for _, l := range raw.Layers {
		if l.Role.IsCopper() {
			copper = append(copper, l.Name)
			assert.Equal(t, design.UnitMM, l.Unit)
			require.Len(t, l.Traces, 1)
			assert.InDelta(t, 0.15, l.Traces[0].Width, 1e-12)
			require.Len(t, l.Pads, 2)
			assert.InDelta(t, 0.5, l.Pads[0].Width, 1e-12)
			assert.Len(t, l.Regions, 1)
		}
	}
	assert.Equal(t, []string{"top", "l2", "l3", "bottom"}, copper)
	assert.Equal(t, [][]string{copper}, raw.Stacks)

	require.Len(t, raw.Drills, 1)
	d := raw.Drills[0]
	assert.True(t, d.Plated)
	assert.Equal(t, &design.Span{FromName: "top", ToName: "bottom"}, d.Span)
	require.Len(t, d.Holes, 2)
	assert.InDelta(t, 0.3, d.Holes[0].Diameter, 1e-12)

	m, err := design.Build(raw)
	require.NoError(t, err)
	assert.Len(t, m.CopperLayers(), 4)
	assert.Equal(t, 2, m.ViaCount)
	require.Len(t, m.Boards, 1)
	assert.Equal(t, 50.0, m.Boards[0].Width)
	assert.Equal(t, 30.0, m.Boards[0].Height)
	for _, h := range m.Holes {
		assert.Equal(t, design.HoleThrough, h.Class)
	}
}

func TestParseJobPanelAndAttributes(t *testing.T) {
	entries := testutil.ODBJob(testutil.Default())
	entries["job/matrix/matrix"] = append([]byte("STEP {\n   COL=2\n   NAME=PANEL\n}\n\n"), entries["job/matrix/matrix"]...)
	entries["job/steps/panel/stephdr"] = []byte("UNITS=MM\nX_DATUM=0\nY_DATUM=0\nSTEP-REPEAT {\n   NAME=PCB\n   X=5\n   Y=5\n   DX=60\n   DY=40\n   NX=2\n   NY=3\n   ANGLE=0\n}\n")
	entries["job/misc/attrlist"] = []byte("UNITS=MM\n.board_thickness=1.6\n.surface_finish=ENIG\n.laminate=FR-4\n.panel_count=10\n")
	entries["job/steps/pcb/layers/top/attrlist"] = []byte(".copper_weight=1\n")
	entries["job/steps/pcb/netlists/cadnet/netlist"] = []byte("H optimize n staggered n\n$0 GND\n$1 VCC\n$2 $NONE$\n")
	entries["job/steps/pcb/layers/comp_+_top/components"] = []byte("UNITS=MM\n# CMP 0\nCMP 0 10 15 0 N R1 10k ;0=1\nCMP 1 40 15 90 N C1 100n\n")

	raw, err := New(0).Parse(context.Background(), jobFiles(entries))
	require.NoError(t, err)

	require.NotNil(t, raw.Panel)
	assert.Equal(t, 10, raw.Panel.Count)
	assert.Len(t, raw.Panel.Repeats, 6)
	require.NotNil(t, raw.Thickness)
	assert.Equal(t, design.Measure{Value: 1.6, Unit: design.UnitMM, Source: design.SourceDeclared}, *raw.Thickness)
	assert.Equal(t, "ENIG", raw.Material.SurfaceFinish.Value)
	assert.Equal(t, "FR-4", raw.Material.Laminate.Value)
	assert.Equal(t, design.Attr{Value: "1oz", Source: design.SourceDeclared}, raw.Material.CopperWeights["top"])
	require.NotNil(t, raw.Netlist)
	assert.Equal(t, []string{"GND", "VCC"}, raw.Netlist.Nets)
	require.Len(t, raw.Components, 2)
	assert.Equal(t, design.Component{Ref: "R1", Part: "10k", Side: design.SideTop, At: design.Point{X: 10, Y: 15}}, raw.Components[0])

	m, err := design.Build(raw)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Panel.Count)
	assert.Equal(t, 6, m.Panel.BoardsPerPanel)
	assert.Equal(t, design.SourceDeclared, m.Panel.Source)
}

func TestParseJobAttributeAliasPrecedence(t *testing.T) {
	entries := testutil.ODBJob(testutil.Default())
	entries["job/misc/attrlist"] = []byte("UNITS=MM\n.finish=HASL\n.material=Rogers4350\n.base_material=CEM-3\n.laminate=FR4\n.surface_finish=ENIG\n")

	for i := 0; i < 20; i++ {
		raw, err := New(0).Parse(context.Background(), jobFiles(entries))
		require.NoError(t, err)
		assert.Equal(t, "FR4", raw.Material.Laminate.Value)
		assert.Equal(t, "ENIG", raw.Material.SurfaceFinish.Value)
	}

	delete(entries, "job/misc/attrlist")
	entries["job/steps/pcb/attrlist"] = []byte(".base_material=CEM-3\n.material=Rogers4350\n.finish=HASL\n")
	raw, err := New(0).Parse(context.Background(), jobFiles(entries))
	require.NoError(t, err)
	assert.Equal(t, "Rogers4350", raw.Material.Laminate.Value)
	assert.Equal(t, "HASL", raw.Material.SurfaceFinish.Value)
}

func TestParseJobOverlongLine(t *testing.T) {
	long := bytes.Repeat([]byte("x"), maxLine+1)

	entries := testutil.ODBJob(testutil.Default())
	attrs := []byte(".laminate=FR4\n.comment=")
	attrs = append(attrs, long...)
	attrs = append(attrs, "\n.surface_finish=ENIG\n"...)
	entries["job/misc/attrlist"] = attrs

	raw, err := New(0).Parse(context.Background(), jobFiles(entries))
	require.NoError(t, err)
	assert.Equal(t, "FR4", raw.Material.Laminate.Value)
	assert.Empty(t, raw.Material.SurfaceFinish.Value)
	var found bool
	for _, w := range raw.Warnings {
		if w.File == "misc/attrlist" && strings.Contains(w.Message, "truncated") {
			found = true
		}
	}
	assert.True(t, found, "no truncation warning in %+v", raw.Warnings)

	entries = testutil.ODBJob(testutil.Default())
	entries["job/matrix/matrix"] = append(append([]byte("# "), long...), '\n')
	_, err = New(0).Parse(context.Background(), jobFiles(entries))
	assert.ErrorIs(t, err, design.ErrArchiveCorrupt)
}

func TestParseStructuredReportsScanError(t *testing.T) {
	data := append([]byte("UNITS=MM\nLAYER {\n NAME=TOP\n"), bytes.Repeat([]byte("y"), maxLine+1)...)
	top, blocks, err := parseStructured(data)
	require.ErrorIs(t, err, bufio.ErrTooLong)
	assert.ErrorContains(t, err, "line 4")
	assert.Equal(t, "MM", top["UNITS"])
	require.Len(t, blocks, 1)
	assert.Equal(t, "TOP", blocks[0].get("NAME"))
}

func TestParseNestedRepeats(t *testing.T) {
	entries := testutil.ODBJob(testutil.Default())
	entries["job/matrix/matrix"] = append([]byte("STEP {\n NAME=PANEL\n}\nSTEP {\n NAME=CLUSTER\n}\n"), entries["job/matrix/matrix"]...)
	entries["job/steps/panel/stephdr"] = []byte("STEP-REPEAT {\n NAME=CLUSTER\n X=0\n Y=0\n DX=120\n DY=0\n NX=2\n NY=1\n}\nSTEP-REPEAT {\n NAME=COUPON\n X=0\n Y=100\n DX=0\n DY=0\n NX=1\n NY=1\n}\n")
	entries["job/steps/cluster/stephdr"] = []byte("STEP-REPEAT {\n NAME=PCB\n X=0\n Y=0\n DX=55\n DY=35\n NX=2\n NY=2\n}\n")

	raw, err := New(0).Parse(context.Background(), jobFiles(entries))
	require.NoError(t, err)
	require.NotNil(t, raw.Panel)
	// two clusters of four boards, the coupon does not count
	require.Len(t, raw.Panel.Repeats, 8)
	assert.Equal(t, 120.0, raw.Panel.Repeats[4].X)
}

func TestParseCorruptJobs(t *testing.T) {
	_, err := New(0).Parse(context.Background(), []design.File{{Name: "job.tgz", Content: []byte("not a tarball")}})
	assert.ErrorIs(t, err, design.ErrArchiveCorrupt)

	noMatrix := testutil.ODBJob(testutil.Default())
	delete(noMatrix, "job/matrix/matrix")
	_, err = New(0).Parse(context.Background(), jobFiles(noMatrix))
	assert.ErrorIs(t, err, design.ErrArchiveCorrupt)

	noFeatures := map[string][]byte{}
	for k, v := range testutil.ODBJob(testutil.Default()) {
		if k == "job/matrix/matrix" || k == "job/misc/info" {
			noFeatures[k] = v
		}
	}
	raw, err := New(0).Parse(context.Background(), jobFiles(noFeatures))
	assert.Nil(t, raw)
	assert.ErrorIs(t, err, design.ErrArchiveCorrupt)
}

func TestParseJobMissingLayerWarns(t *testing.T) {
	entries := testutil.ODBJob(testutil.Default())
	delete(entries, "job/steps/pcb/layers/l2/features")
	raw, err := New(0).Parse(context.Background(), jobFiles(entries))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"top", "l3", "bottom"}}, raw.Stacks)
	var found bool
	for _, w := range raw.Warnings {
		if w.Message == "layer l2 listed in the matrix has no features file" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseLooseFiles(t *testing.T) {
	var files []design.File
	for name, data := range testutil.ODBJob(testutil.Default()) {
		files = append(files, design.File{Name: name, Content: data})
	}
	raw, err := New(0).Parse(context.Background(), files)
	require.NoError(t, err)
	assert.Len(t, raw.Stacks[0], 4)
}

func TestParseHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(0).Parse(ctx, jobFiles(testutil.ODBJob(testutil.Default())))
	assert.ErrorIs(t, err, context.Canceled)
}
