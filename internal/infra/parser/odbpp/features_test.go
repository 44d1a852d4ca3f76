package odbpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		name string
		want symbol
	}{
		{"r150", symbol{shape: design.ShapeCircle, w: 0.15, h: 0.15}},
		{"s100", symbol{shape: design.ShapeRect, w: 0.1, h: 0.1}},
		{"rect200x100", symbol{shape: design.ShapeRect, w: 0.2, h: 0.1}},
		{"oval300x120", symbol{shape: design.ShapeObround, w: 0.3, h: 0.12}},
		{"rect200x100xr20", symbol{shape: design.ShapeRect, w: 0.2, h: 0.1}},
		{"my_special_pad", symbol{shape: design.ShapeMacro}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSymbol(tt.name, 0.001)
			assert.Equal(t, tt.want.shape, got.shape)
			assert.InDelta(t, tt.want.w, got.w, 1e-12)
			assert.InDelta(t, tt.want.h, got.h, 1e-12)
		})
	}
}

func TestParseFeatures(t *testing.T) {
	src := `UNITS=MM
#
$0 r100
$1 rect400x200
$2 r10 I
@0 .fiducial_name
@1 .pad_usage
#
L 0 0 10 0 0 P 0
A 0 0 2 0 1 0 2 N 0 Y
P 5 5 1 P 0 1
P 6 6 0 P 0 0;0=3
P 7 7 0 P 0 0;1=2
P 8 8 9 P 0 0
S N 0
OB 0 0 I
OS 1 0
OC 1 1 1 0.5 Y
OE
OB 0.2 0.2 H
OS 0.4 0.2
OS 0.4 0.4
OE
SE
Z 1 2 3
`
	l, warns := parseFeatures("f", []byte(src), design.UnitInch)
	assert.Equal(t, design.UnitMM, l.Unit)

	require.Len(t, l.Traces, 2)
	assert.False(t, l.Traces[0].Clear)
	assert.True(t, l.Traces[1].Arc)
	assert.True(t, l.Traces[1].Clear)
	// a 10 mil symbol inside a metric file
	assert.InDelta(t, 0.254, l.Traces[1].Width, 1e-12)

	require.Len(t, l.Pads, 3)
	// orientation 1 rotates by 90 degrees
	assert.InDelta(t, 0.2, l.Pads[0].Width, 1e-12)
	assert.InDelta(t, 0.4, l.Pads[0].Height, 1e-12)
	assert.True(t, l.Pads[1].Fiducial)
	assert.True(t, l.Pads[2].Fiducial)

	require.Len(t, l.Regions, 2)
	// negative surface: the island clears, the hole inside it fills
	assert.True(t, l.Regions[0].Clear)
	assert.False(t, l.Regions[1].Clear)
	assert.Len(t, l.Contours, 1)

	assert.Equal(t, 3, l.Apertures.Count)
	var msgs []string
	for _, w := range warns {
		msgs = append(msgs, w.Message)
	}
	assert.Equal(t, []string{
		`record "P" references undefined symbol 9`,
		`unrecognised record "Z"`,
	}, msgs)
}

func TestParseFeaturesWarnsOnOverlongLine(t *testing.T) {
	src := "UNITS=MM\n$0 r200\nL 0 0 1 0 0 P 0\nL 0 1 1 1 0 P 0\n#" + strings.Repeat("z", 4<<20) + "\nL 0 2 1 2 0 P 0\n"
	l, warns := parseFeatures("f", []byte(src), design.UnitInch)
	assert.Len(t, l.Traces, 2)
	require.NotEmpty(t, warns)
	assert.Contains(t, warns[len(warns)-1].Message, "file truncated")
}
