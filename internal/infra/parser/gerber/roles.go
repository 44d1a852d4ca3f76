package gerber

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// fileFunction is the Gerber X2 .FileFunction attribute
type fileFunction struct {
	role   design.LayerRole
	index  int
	drill  bool
	plated bool
	from   int
	to     int
}

// parseFileFunction reads "TF.FileFunction,Copper,L2,Inr,Signal" style values.
// The "TF." prefix is optional.
func parseFileFunction(attr string) *fileFunction {
	attr = strings.TrimPrefix(strings.TrimSpace(attr), "TF")
	if !strings.HasPrefix(attr, ".FileFunction,") {
		return nil
	}
	f := strings.Split(strings.TrimPrefix(attr, ".FileFunction,"), ",")
	arg := func(i int) string {
		if i < len(f) {
			return strings.ToLower(strings.TrimSpace(f[i]))
		}
		return ""
	}
	side := func(s string) (top, bottom bool) {
		return s == "top", s == "bot"
	}
	ff := &fileFunction{role: design.LayerOther}
	switch arg(0) {
	case "copper":
		n, _ := strconv.Atoi(strings.TrimPrefix(arg(1), "l"))
		switch arg(2) {
		case "top":
			ff.role = design.LayerTopCopper
		case "bot":
			ff.role = design.LayerBottomCopper
		case "inr":
			ff.role = design.LayerInnerCopper
			if n > 1 {
				ff.index = n - 1
			}
		}
	case "soldermask":
		if top, bottom := side(arg(1)); top {
			ff.role = design.LayerMaskTop
		} else if bottom {
			ff.role = design.LayerMaskBottom
		}
	case "legend":
		if top, bottom := side(arg(1)); top {
			ff.role = design.LayerSilkTop
		} else if bottom {
			ff.role = design.LayerSilkBottom
		}
	case "paste":
		if top, bottom := side(arg(1)); top {
			ff.role = design.LayerPasteTop
		} else if bottom {
			ff.role = design.LayerPasteBottom
		}
	case "profile":
		ff.role = design.LayerOutline
	case "plated", "nonplated":
		ff.drill = true
		ff.plated = arg(0) == "plated"
		ff.from, _ = strconv.Atoi(arg(1))
		ff.to, _ = strconv.Atoi(arg(2))
	}
	return ff
}

var protelRoles = map[string]design.LayerRole{
	".gtl": design.LayerTopCopper,
	".cmp": design.LayerTopCopper,
	".gbl": design.LayerBottomCopper,
	".sol": design.LayerBottomCopper,
	".gts": design.LayerMaskTop,
	".stc": design.LayerMaskTop,
	".gbs": design.LayerMaskBottom,
	".sts": design.LayerMaskBottom,
	".gto": design.LayerSilkTop,
	".plc": design.LayerSilkTop,
	".gbo": design.LayerSilkBottom,
	".gtp": design.LayerPasteTop,
	".gbp": design.LayerPasteBottom,
	".gko": design.LayerOutline,
	".gm1": design.LayerOutline,
	".gml": design.LayerOutline,
}

var (
	protelInner = regexp.MustCompile(`^\.gp?(\d{1,2})$`)
	innerName   = []*regexp.Regexp{
		regexp.MustCompile(`inner[_-]?layer[_-]?(\d+)`),
		regexp.MustCompile(`(?:^|[^a-z])in(?:ner)?[_-]?(\d+)(?:[_.-]?cu)?(?:[^a-z0-9]|$)`),
		regexp.MustCompile(`elec(\d+)`),
		regexp.MustCompile(`(?:^|[^a-z])layer[_-]?(\d+)`),
	}
	splitName = regexp.MustCompile(`[^a-z0-9]+`)
)

var (
	topWords     = set("top", "front", "f", "t", "toplayer", "comp", "component")
	bottomWords  = set("bottom", "bot", "back", "b", "bottomlayer")
	maskWords    = set("mask", "solder", "soldermask", "smask", "stop", "stopmask", "resist")
	silkWords    = set("silk", "silkscreen", "silks", "legend", "overlay")
	pasteWords   = set("paste", "solderpaste", "stencil", "cream")
	outlineWords = set("outline", "edge", "edges", "routing", "rout", "profile", "boardoutline", "dimension")
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func anyOf(tokens []string, words map[string]bool) bool {
	for _, t := range tokens {
		if words[t] {
			return true
		}
	}
	return false
}

// roleFromName guesses a layer role from the file name
func roleFromName(name string) (design.LayerRole, int) {
	base := strings.ToLower(path.Base(name))
	ext := path.Ext(base)
	if r, ok := protelRoles[ext]; ok {
		return r, 0
	}
	if m := protelInner.FindStringSubmatch(ext); m != nil {
		n, _ := strconv.Atoi(m[1])
		return design.LayerInnerCopper, n
	}
	stem := strings.TrimSuffix(base, ext)
	tokens := splitName.Split(stem, -1)
	top, bottom := anyOf(tokens, topWords), anyOf(tokens, bottomWords)
	sided := func(t, b design.LayerRole) design.LayerRole {
		switch {
		case top && !bottom:
			return t
		case bottom && !top:
			return b
		}
		return design.LayerOther
	}

	switch {
	case anyOf(tokens, outlineWords):
		return design.LayerOutline, 0
	case anyOf(tokens, pasteWords):
		return sided(design.LayerPasteTop, design.LayerPasteBottom), 0
	case anyOf(tokens, silkWords):
		return sided(design.LayerSilkTop, design.LayerSilkBottom), 0
	case anyOf(tokens, maskWords):
		return sided(design.LayerMaskTop, design.LayerMaskBottom), 0
	}
	if top != bottom {
		return sided(design.LayerTopCopper, design.LayerBottomCopper), 0
	}
	for _, re := range innerName {
		if m := re.FindStringSubmatch(stem); m != nil {
			n, _ := strconv.Atoi(m[1])
			return design.LayerInnerCopper, n
		}
	}
	return design.LayerOther, 0
}
