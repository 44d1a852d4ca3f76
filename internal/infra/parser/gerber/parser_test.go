package gerber

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/testutil"
)

func TestParseRS274XPrimitives(t *testing.T) {
	src := `G04 sample*
%FSLAX24Y24*%
%MOIN*%
%TA.AperFunction,FiducialPad,Local*%
%ADD10C,0.0400*%
%TD*%
%ADD11R,0.0600X0.0300*%
%ADD12C,0.0080*%
D10*
X10000Y10000D03*
D11*
X20000Y10000D03*
D12*
X0Y0D02*
X10000Y0D01*
G03X10000Y0I5000J0D01*
%LPC*%
D11*
X30000Y10000D03*
M02*
`
	s, err := parseRS274X("top.gtl", []byte(src))
	require.NoError(t, err)

	l := s.layer
	assert.Equal(t, design.UnitInch, l.Unit)
	require.Len(t, l.Pads, 3)
	assert.True(t, l.Pads[0].Fiducial)
	assert.Equal(t, design.Point{X: 1, Y: 1}, l.Pads[0].At)
	assert.Equal(t, design.ShapeRect, l.Pads[1].Shape)
	assert.False(t, l.Pads[1].Fiducial)
	assert.True(t, l.Pads[2].Clear)

	require.Len(t, l.Traces, 2)
	assert.InDelta(t, 0.008, l.Traces[0].Width, 1e-12)
	assert.True(t, l.Traces[1].Arc)
	// the full circle leaves a closed contour behind
	assert.Len(t, l.Contours, 1)

	assert.Equal(t, 3, l.Apertures.Count)
	assert.InDelta(t, 0.008, l.Apertures.Min, 1e-12)
	assert.Empty(t, s.warn.all())
}

func TestParseRS274XTrailingZeroOmission(t *testing.T) {
	src := "%FSTAX23Y23*%\n%MOMM*%\n%ADD10C,0.1*%\nD10*\nX1Y2D03*\nM02*\n"
	s, err := parseRS274X("t.gbr", []byte(src))
	require.NoError(t, err)
	require.Len(t, s.layer.Pads, 1)
	assert.InDelta(t, 10, s.layer.Pads[0].At.X, 1e-9)
	assert.InDelta(t, 20, s.layer.Pads[0].At.Y, 1e-9)
}

func TestParseRS274XRecoversFromMalformedStatements(t *testing.T) {
	src := `%FSLAX26Y26*%
%MOMM*%
%XYZ123*%
%ADD10C,0.2*%
Q99*
D10*
X0Y0D02*
X1000000Y0D01*
D99*
X2000000Y0D01*
G36*
X0Y0D02*
X1000000Y1000000D01*
`
	s, err := parseRS274X("broken.gbr", []byte(src))
	require.ErrorIs(t, err, errUnterminatedRegion)
	assert.Len(t, s.layer.Traces, 1)
	assert.Empty(t, s.layer.Regions)

	var msgs []string
	for _, w := range s.warn.all() {
		msgs = append(msgs, w.Message)
	}
	assert.Contains(t, msgs, `unsupported extended command "XY"`)
	assert.Contains(t, msgs, `unrecognised statement "Q99"`)
	assert.Contains(t, msgs, "D99 selected before it was defined")
	assert.Contains(t, msgs, "unterminated region (G36 without G37); 2 point(s) discarded")
}

func TestParseRS274XRegionsAndContours(t *testing.T) {
	src := `%FSLAX26Y26*%
%MOMM*%
%ADD10C,0.1*%
D10*
X0Y0D02*
X10000000Y0D01*
X10000000Y5000000D01*
X0Y5000000D01*
X0Y0D01*
G36*
X0Y0D02*
X1000000Y0D01*
X1000000Y1000000D01*
G37*
M02*
`
	s, err := parseRS274X("outline.gbr", []byte(src))
	require.NoError(t, err)
	require.Len(t, s.layer.Contours, 1)
	assert.Len(t, s.layer.Contours[0].Points, 4)
	require.Len(t, s.layer.Regions, 1)
	assert.Len(t, s.layer.Regions[0].Points, 3)
}

func TestParseRS274XStepRepeatAndX2Comment(t *testing.T) {
	src := "G04 #@! TF.FileFunction,Copper,L2,Inr*\n%FSLAX26Y26*%\n%MOMM*%\n%SRX3Y2I60.0J40.0*%\n%ADD10C,0.1*%\nD10*\nX0Y0D03*\n%SR*%\nM02*\n"
	s, err := parseRS274X("x.gbr", []byte(src))
	require.NoError(t, err)
	require.NotNil(t, s.fn)
	assert.Equal(t, design.LayerInnerCopper, s.fn.role)
	assert.Equal(t, 1, s.fn.index)
	require.NotNil(t, s.rep)
	assert.Equal(t, design.Repeat{NX: 3, NY: 2, DX: 60, DY: 40}, *s.rep)
}

func TestParseRS274XUndecodable(t *testing.T) {
	_, err := parseRS274X("junk.gbr", []byte("\x00\x01\x02"))
	assert.Error(t, err)
}

func TestParserGerberSet(t *testing.T) {
	b := testutil.Default()
	files := testutil.GerberSet(b)
	files = append(files,
		design.File{Name: "stackup.yaml", Content: []byte("board_thickness: 1.6\nlaminate: FR-4 TG170\nsurface_finish: ENIG\ncopper_weights:\n  top: 1oz\n")},
		design.File{Name: "readme.pdf", Content: []byte("%PDF-1.4")},
	)

	raw, err := New(0, 2).Parse(context.Background(), files)
	require.NoError(t, err)

	require.Len(t, raw.Layers, 4)
	roles := map[design.LayerRole]int{}
	for _, l := range raw.Layers {
		roles[l.Role]++
	}
	assert.Equal(t, map[design.LayerRole]int{
		design.LayerTopCopper:    1,
		design.LayerInnerCopper:  2,
		design.LayerBottomCopper: 1,
	}, roles)

	require.Len(t, raw.Drills, 1)
	assert.Equal(t, &design.Span{From: 1, To: 4}, raw.Drills[0].Span)
	assert.True(t, raw.Drills[0].Plated)
	assert.Len(t, raw.Drills[0].Holes, 2)

	require.NotNil(t, raw.Thickness)
	assert.Equal(t, 1.6, raw.Thickness.Value)
	assert.Equal(t, design.Attr{Value: "FR-4 TG170", Source: design.SourceDeclared}, raw.Material.Laminate)
	assert.Equal(t, "1oz", raw.Material.CopperWeights["top"].Value)
	assert.Contains(t, raw.Ignored, "readme.pdf")
}

func TestParserDropsLayerEndingInsideRegion(t *testing.T) {
	b := testutil.Default()
	b.CopperLayers = 5
	files := testutil.GerberSet(b)
	broken := files[2].Name
	files[2].Content = bytes.Replace(files[2].Content, []byte("G37*\n"), nil, 1)

	raw, err := New(0, 2).Parse(context.Background(), files)
	require.NoError(t, err)

	require.Len(t, raw.Layers, 4)
	for _, l := range raw.Layers {
		assert.NotEqual(t, broken, l.Name)
	}
	assert.Contains(t, raw.Ignored, broken)

	var msgs []string
	for _, w := range raw.Warnings {
		if w.File == broken {
			msgs = append(msgs, w.Message)
		}
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "unterminated region (G36 without G37)")
	assert.Contains(t, joined, "file skipped")
}

func TestParserExpandsZip(t *testing.T) {
	b := testutil.Default()
	entries := map[string][]byte{}
	for _, f := range testutil.GerberSet(b) {
		entries["out/"+f.Name] = f.Content
	}
	entries["out/preview.png"] = []byte("\x89PNG")
	files := []design.File{{Name: "fab_ENIG_1oz.zip", Content: testutil.Zip(entries)}}

	raw, err := New(0, 0).Parse(context.Background(), files)
	require.NoError(t, err)
	assert.Len(t, raw.Layers, 4)
	assert.Equal(t, design.Attr{Value: "ENIG", Source: design.SourceInferred}, raw.Material.SurfaceFinish)
	assert.Equal(t, "1oz", raw.Material.CopperWeights["all"].Value)
	assert.Contains(t, raw.Ignored, "fab_ENIG_1oz.zip/out/preview.png")
}

func TestParserWithoutCopperFails(t *testing.T) {
	files := []design.File{{Name: "silk_top.gbr", Content: []byte("%FSLAX26Y26*%\n%MOMM*%\n%ADD10C,0.1*%\nD10*\nX0Y0D03*\nM02*\n")}}
	_, err := New(0, 1).Parse(context.Background(), files)
	assert.True(t, errors.Is(err, design.ErrParse))
}

func TestParserHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(0, 1).Parse(ctx, testutil.GerberSet(testutil.Default()))
	assert.ErrorIs(t, err, context.Canceled)
}
