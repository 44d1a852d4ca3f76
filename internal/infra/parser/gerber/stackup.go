package gerber

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// stackupHint is the optional stackup.yaml shipped next to a Gerber set
type stackupHint struct {
	Units          string            `yaml:"units"`
	BoardThickness float64           `yaml:"board_thickness"`
	Laminate       string            `yaml:"laminate"`
	Prepreg        string            `yaml:"prepreg"`
	SurfaceFinish  string            `yaml:"surface_finish"`
	CopperWeights  map[string]string `yaml:"copper_weights"`
	PanelCount     int               `yaml:"panel_count"`
}

func parseStackup(data []byte) (*stackupHint, error) {
	var h stackupHint
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode stackup: %w", err)
	}
	return &h, nil
}

func (h *stackupHint) apply(raw *design.Raw) {
	declared := func(v string) design.Attr {
		return design.Attr{Value: strings.TrimSpace(v), Source: design.SourceDeclared}
	}
	m := design.Material{
		Laminate:      declared(h.Laminate),
		Prepreg:       declared(h.Prepreg),
		SurfaceFinish: declared(h.SurfaceFinish),
	}
	for layer, w := range h.CopperWeights {
		if m.CopperWeights == nil {
			m.CopperWeights = map[string]design.Attr{}
		}
		m.CopperWeights[layer] = declared(w)
	}
	raw.Material.Merge(m)

	if h.BoardThickness > 0 {
		unit := design.UnitMM
		if u := strings.ToLower(h.Units); u == "in" || u == "inch" {
			unit = design.UnitInch
		}
		raw.Thickness = &design.Measure{Value: h.BoardThickness, Unit: unit, Source: design.SourceDeclared}
	}
	if h.PanelCount > 0 {
		if raw.Panel == nil {
			raw.Panel = &design.RawPanel{Unit: design.UnitMM}
		}
		raw.Panel.Count = h.PanelCount
	}
}

type keyword struct {
	re    *regexp.Regexp
	value string
}

func word(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + expr + `)(?:[^a-z0-9]|$)`)
}

var (
	laminateWords = []keyword{
		{word(`fr-?4`), "FR-4"},
		{word(`rogers|ro4\d{3}`), "Rogers"},
		{word(`polyimide|kapton`), "Polyimide"},
		{word(`alu(?:minium|minum)?|mcpcb`), "Aluminium"},
	}
	finishWords = []keyword{
		{word(`enepig`), "ENEPIG"},
		{word(`enig`), "ENIG"},
		{word(`hasl[-_]?lf|lf[-_]?hasl`), "Lead-free HASL"},
		{word(`hasl`), "HASL"},
		{word(`osp`), "OSP"},
		{word(`immersion[-_ ]?silver|imag`), "Immersion Silver"},
		{word(`immersion[-_ ]?tin`), "Immersion Tin"},
	}
	reCopperWeight = regexp.MustCompile(`(?:^|[^a-z0-9.])(\d+(?:\.\d+)?)[-_ ]?oz(?:[^a-z]|$)`)
)

// inferMaterial guesses material attributes from file names
func inferMaterial(names []string) design.Material {
	var m design.Material
	inferred := func(v string) design.Attr { return design.Attr{Value: v, Source: design.SourceInferred} }
	for _, n := range names {
		base := strings.ToLower(path.Base(n))
		for _, k := range laminateWords {
			if !m.Laminate.Known() && k.re.MatchString(base) {
				m.Laminate = inferred(k.value)
			}
		}
		for _, k := range finishWords {
			if !m.SurfaceFinish.Known() && k.re.MatchString(base) {
				m.SurfaceFinish = inferred(k.value)
			}
		}
		if m.CopperWeights == nil {
			if c := reCopperWeight.FindStringSubmatch(base); c != nil {
				if w, err := strconv.ParseFloat(c[1], 64); err == nil && w > 0 {
					m.CopperWeights = map[string]design.Attr{"all": inferred(strconv.FormatFloat(w, 'f', -1, 64) + "oz")}
				}
			}
		}
	}
	return m
}
