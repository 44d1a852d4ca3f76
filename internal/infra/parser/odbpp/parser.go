// Package odbpp parses ODB++ jobs delivered as tarballs, zips or loose files.
package odbpp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/archive"
)

// maxRepeatDepth stops runaway step-repeat nesting
const maxRepeatDepth = 8

// Parser implements design.Parser for ODB++ jobs
type Parser struct {
	// MaxExpandedBytes caps archive expansion, zero disables the cap.
	MaxExpandedBytes int64
}

func New(maxExpandedBytes int64) *Parser {
	return &Parser{MaxExpandedBytes: maxExpandedBytes}
}

// matrixLayer is one LAYER row of matrix/matrix
type matrixLayer struct {
	row      int
	name     string
	typ      string
	context  string
	polarity string
	start    string
	end      string
}

type job struct {
	files map[string][]byte
	unit  design.Unit
	raw   *design.Raw
}

func (j *job) get(p string) ([]byte, bool) {
	data, ok := j.files[p]
	return data, ok
}

// structured parses a structured text file of the job. A file cut short by a
// read error keeps what was read and gets a warning.
func (j *job) structured(p string) (map[string]string, []block, bool) {
	data, ok := j.get(p)
	if !ok {
		return nil, nil, false
	}
	top, blocks, err := parseStructured(data)
	if err != nil {
		j.raw.Warn(p, "file truncated at %v", err)
	}
	return top, blocks, true
}

// Parse reads the job matrix and every board layer of the board step
func (p *Parser) Parse(ctx context.Context, files []design.File) (*design.Raw, error) {
	raw := &design.Raw{Format: design.FormatODBPP}
	entries, err := p.collect(files, raw)
	if err != nil {
		return nil, err
	}
	j := &job{files: entries, unit: design.UnitInch, raw: raw}

	matrix, ok := j.get("matrix/matrix")
	if !ok {
		return nil, fmt.Errorf("%w: job has no matrix/matrix", design.ErrArchiveCorrupt)
	}
	if top, _, ok := j.structured("misc/info"); ok {
		j.unit = unitOf(top["UNITS"], j.unit)
	}
	steps, layers, err := parseMatrix(matrix)
	if err != nil {
		return nil, fmt.Errorf("%w: matrix/matrix: %v", design.ErrArchiveCorrupt, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: matrix declares no step", design.ErrArchiveCorrupt)
	}

	repeats := map[string][]design.Repeat{}
	for _, s := range steps {
		repeats[s] = j.stepRepeats(s)
	}
	board := pickBoardStep(steps, repeats)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := j.readLayers(ctx, board, layers); err != nil {
		return nil, err
	}
	j.readPanel(board, steps, repeats)
	j.readAttributes(board, layers)
	j.readNetlist(board)
	j.readComponents(board)
	return raw, nil
}

// collect expands archives and strips the job root so keys look like
// "matrix/matrix" and "steps/pcb/layers/top/features".
func (p *Parser) collect(files []design.File, raw *design.Raw) (map[string][]byte, error) {
	all := map[string][]byte{}
	for _, f := range files {
		if archive.KindOf(f.Name) == archive.None {
			all[strings.ToLower(path.Clean(f.Name))] = f.Content
			continue
		}
		entries, err := archive.Read(f.Name, f.Content, p.MaxExpandedBytes)
		if errors.Is(err, archive.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %s: %v", design.ErrParse, f.Name, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", design.ErrArchiveCorrupt, f.Name, err)
		}
		for _, e := range entries {
			all[strings.ToLower(e.Name)] = e.Data
		}
	}

	root, found := "", false
	for name := range all {
		if name == "matrix/matrix" || strings.HasSuffix(name, "/matrix/matrix") {
			r := strings.TrimSuffix(name, "matrix/matrix")
			if !found || len(r) < len(root) {
				root, found = r, true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: job has no matrix/matrix", design.ErrArchiveCorrupt)
	}
	out := make(map[string][]byte, len(all))
	for name, data := range all {
		rel, ok := strings.CutPrefix(name, root)
		if !ok {
			raw.Ignored = append(raw.Ignored, name)
			continue
		}
		out[rel] = data
	}
	sort.Strings(raw.Ignored)
	return out, nil
}

func parseMatrix(data []byte) (steps []string, layers []matrixLayer, err error) {
	_, blocks, err := parseStructured(data)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range blocks {
		switch b.kind {
		case "STEP":
			if n := b.get("NAME"); n != "" {
				steps = append(steps, strings.ToLower(n))
			}
		case "LAYER":
			row, _ := strconv.Atoi(b.get("ROW"))
			layers = append(layers, matrixLayer{
				row:      row,
				name:     strings.ToLower(b.get("NAME")),
				typ:      strings.ToUpper(b.get("TYPE")),
				context:  strings.ToUpper(b.get("CONTEXT")),
				polarity: strings.ToUpper(b.get("POLARITY")),
				start:    strings.ToLower(b.get("START_NAME")),
				end:      strings.ToLower(b.get("END_NAME")),
			})
		}
	}
	sort.SliceStable(layers, func(a, b int) bool { return layers[a].row < layers[b].row })
	return steps, layers, nil
}

func (m matrixLayer) copper() bool {
	switch m.typ {
	case "SIGNAL", "POWER_GROUND", "MIXED":
		return m.context != "MISC"
	}
	return false
}

// stepRepeats reads STEP-REPEAT blocks of a step header, in job units
func (j *job) stepRepeats(step string) []design.Repeat {
	top, blocks, ok := j.structured("steps/" + step + "/stephdr")
	if !ok {
		return nil
	}
	unit := unitOf(top["UNITS"], j.unit)
	f := j.unit.FromMM(unit.ToMM(1))
	num := func(b block, k string) float64 {
		v, _ := strconv.ParseFloat(b.get(k), 64)
		return v
	}
	var out []design.Repeat
	for _, b := range blocks {
		if b.kind != "STEP-REPEAT" {
			continue
		}
		nx, _ := strconv.Atoi(b.get("NX"))
		ny, _ := strconv.Atoi(b.get("NY"))
		if nx <= 0 || ny <= 0 {
			j.raw.Warn("steps/"+step+"/stephdr", "step repeat of %q has an empty array", b.get("NAME"))
			continue
		}
		out = append(out, design.Repeat{
			Step: strings.ToLower(b.get("NAME")),
			X:    num(b, "X") * f,
			Y:    num(b, "Y") * f,
			DX:   num(b, "DX") * f,
			DY:   num(b, "DY") * f,
			NX:   nx,
			NY:   ny,
		})
	}
	return out
}

// pickBoardStep returns the innermost step: one that is repeated by another
// step and repeats nothing itself. Without step-repeat the conventional names
// win, then the first step.
func pickBoardStep(steps []string, repeats map[string][]design.Repeat) string {
	referenced := map[string]bool{}
	for _, rs := range repeats {
		for _, r := range rs {
			referenced[r.Step] = true
		}
	}
	for _, s := range steps {
		if referenced[s] && len(repeats[s]) == 0 {
			return s
		}
	}
	for _, want := range []string{"pcb", "board", "pcb1", "edit", "o+b"} {
		for _, s := range steps {
			if s == want {
				return s
			}
		}
	}
	for _, s := range steps {
		if len(repeats[s]) == 0 {
			return s
		}
	}
	return steps[0]
}

// readLayers parses the features of every board layer of step
func (j *job) readLayers(ctx context.Context, step string, layers []matrixLayer) error {
	first, last := -1, -1
	var copperRows []int
	for _, l := range layers {
		if l.copper() {
			if first < 0 {
				first = l.row
			}
			last = l.row
			copperRows = append(copperRows, l.row)
		}
	}

	var stack []string
	parsed := 0
	for _, ml := range layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ml.context != "" && ml.context != "BOARD" {
			continue
		}
		p := "steps/" + step + "/layers/" + ml.name + "/features"
		data, ok := j.get(p)
		if !ok {
			if _, z := j.get(p + ".z"); z {
				j.raw.Warn(p, "compressed features files are not supported; layer skipped")
			} else if ml.copper() || ml.typ == "DRILL" {
				j.raw.Warn(p, "layer %s listed in the matrix has no features file", ml.name)
			}
			continue
		}
		layer, warns := parseFeatures(p, data, j.unit)
		j.raw.Warnings = append(j.raw.Warnings, warns...)
		parsed++

		if ml.typ == "DRILL" {
			j.raw.Drills = append(j.raw.Drills, drillLayer(ml, layer))
			continue
		}
		role, index := layerRole(ml, first, last, copperRows)
		if role == design.LayerOther {
			j.raw.Ignored = append(j.raw.Ignored, p)
			continue
		}
		layer.Name, layer.Role, layer.Index = ml.name, role, index
		j.raw.Layers = append(j.raw.Layers, layer)
		if role.IsCopper() {
			stack = append(stack, ml.name)
		}
	}

	if prof, ok := j.get("steps/" + step + "/profile"); ok {
		l, warns := parseFeatures("steps/"+step+"/profile", prof, j.unit)
		j.raw.Warnings = append(j.raw.Warnings, warns...)
		if len(l.Contours) > 0 {
			l.Name, l.Role = "profile", design.LayerOutline
			// the profile is an outline, not copper
			l.Regions = nil
			j.raw.Layers = append(j.raw.Layers, l)
		}
	}

	if parsed == 0 {
		return fmt.Errorf("%w: step %s has no layer features", design.ErrArchiveCorrupt, step)
	}
	if len(stack) > 0 {
		j.raw.Stacks = [][]string{stack}
	}
	return nil
}

func layerRole(ml matrixLayer, first, last int, copperRows []int) (design.LayerRole, int) {
	if ml.copper() {
		switch {
		case ml.row == first:
			return design.LayerTopCopper, 0
		case ml.row == last:
			return design.LayerBottomCopper, 0
		}
		return design.LayerInnerCopper, sort.SearchInts(copperRows, ml.row)
	}
	side := design.SideNone
	switch {
	case first >= 0 && ml.row < first:
		side = design.SideTop
	case last >= 0 && ml.row > last:
		side = design.SideBottom
	case strings.Contains(ml.name, "top"):
		side = design.SideTop
	case strings.Contains(ml.name, "bot"):
		side = design.SideBottom
	}
	pick := func(top, bottom design.LayerRole) (design.LayerRole, int) {
		switch side {
		case design.SideTop:
			return top, 0
		case design.SideBottom:
			return bottom, 0
		}
		return design.LayerOther, 0
	}
	switch ml.typ {
	case "SOLDER_MASK":
		return pick(design.LayerMaskTop, design.LayerMaskBottom)
	case "SILK_SCREEN":
		return pick(design.LayerSilkTop, design.LayerSilkBottom)
	case "SOLDER_PASTE":
		return pick(design.LayerPasteTop, design.LayerPasteBottom)
	}
	return design.LayerOther, 0
}

func drillLayer(ml matrixLayer, l *design.Layer) design.DrillLayer {
	plated := !strings.Contains(ml.name, "npth") && !strings.Contains(ml.name, "non_plated") && !strings.Contains(ml.name, "nonplated")
	dl := design.DrillLayer{Name: ml.name, Unit: l.Unit, Plated: plated}
	if ml.start != "" && ml.end != "" {
		dl.Span = &design.Span{FromName: ml.start, ToName: ml.end}
	}
	for _, p := range l.Pads {
		dl.Holes = append(dl.Holes, design.Hole{At: p.At, Diameter: p.MinSize(), Plated: plated, Source: ml.name})
	}
	// routed slots count once, at their start point
	for _, t := range l.Traces {
		dl.Holes = append(dl.Holes, design.Hole{At: t.Start, Diameter: t.Width, Plated: plated, Source: ml.name})
	}
	return dl
}

// readPanel expands nested step-repeats of the outermost step into board
// origins. Repeats of other steps (coupons) are skipped.
func (j *job) readPanel(board string, steps []string, repeats map[string][]design.Repeat) {
	referenced := map[string]bool{}
	for _, rs := range repeats {
		for _, r := range rs {
			referenced[r.Step] = true
		}
	}
	var top string
	for _, s := range steps {
		if !referenced[s] && len(repeats[s]) > 0 {
			top = s
			break
		}
	}
	if top == "" {
		return
	}
	var out []design.Repeat
	var walk func(step string, ox, oy float64, depth int)
	walk = func(step string, ox, oy float64, depth int) {
		if depth > maxRepeatDepth {
			j.raw.Warn("steps/"+step+"/stephdr", "step-repeat nesting deeper than %d levels ignored", maxRepeatDepth)
			return
		}
		for _, r := range repeats[step] {
			for i := 0; i < r.NX; i++ {
				for k := 0; k < r.NY; k++ {
					x, y := ox+r.X+float64(i)*r.DX, oy+r.Y+float64(k)*r.DY
					if r.Step == board {
						out = append(out, design.Repeat{Step: board, X: x, Y: y, NX: 1, NY: 1})
						continue
					}
					walk(r.Step, x, y, depth+1)
				}
			}
		}
	}
	walk(top, 0, 0, 0)
	if len(out) == 0 {
		return
	}
	if j.raw.Panel == nil {
		j.raw.Panel = &design.RawPanel{}
	}
	j.raw.Panel.Unit = j.unit
	j.raw.Panel.Repeats = out
}

// attrKeys lists the job attributes read, in precedence order. The first alias
// present wins because Material.Merge keeps an already declared value.
var attrKeys = []string{
	"board_thickness",
	"laminate", "material", "base_material",
	"prepreg",
	"surface_finish", "finish",
	"panel_count",
}

// readAttributes picks material and thickness from the job and layer attribute
// lists.
func (j *job) readAttributes(step string, layers []matrixLayer) {
	for _, p := range []string{"misc/attrlist", "steps/" + step + "/attrlist"} {
		top, _, ok := j.structured(p)
		if !ok {
			continue
		}
		unit := unitOf(top["UNITS"], j.unit)
		attrs := make(map[string]string, len(top))
		for k, v := range top {
			name, dotted := strings.CutPrefix(strings.ToLower(k), ".")
			if _, seen := attrs[name]; dotted || !seen {
				attrs[name] = v
			}
		}
		declared := func(v string) design.Attr { return design.Attr{Value: v, Source: design.SourceDeclared} }
		for _, k := range attrKeys {
			v := attrs[k]
			if v == "" {
				continue
			}
			switch k {
			case "board_thickness":
				f, err := strconv.ParseFloat(v, 64)
				if err != nil || f <= 0 {
					j.raw.Warn(p, "board thickness %q is not a positive number", v)
					continue
				}
				j.raw.Thickness = &design.Measure{Value: f, Unit: unit, Source: design.SourceDeclared}
			case "laminate", "material", "base_material":
				j.raw.Material.Merge(design.Material{Laminate: declared(v)})
			case "prepreg":
				j.raw.Material.Merge(design.Material{Prepreg: declared(v)})
			case "surface_finish", "finish":
				j.raw.Material.Merge(design.Material{SurfaceFinish: declared(v)})
			case "panel_count":
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					j.raw.Warn(p, "panel count %q is not a positive integer", v)
					continue
				}
				if j.raw.Panel == nil {
					j.raw.Panel = &design.RawPanel{Unit: j.unit}
				}
				j.raw.Panel.Count = n
			}
		}
	}

	for _, ml := range layers {
		if !ml.copper() {
			continue
		}
		top, _, ok := j.structured("steps/" + step + "/layers/" + ml.name + "/attrlist")
		if !ok {
			continue
		}
		v := top[".COPPER_WEIGHT"]
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			v += "oz"
		}
		j.raw.Material.Merge(design.Material{CopperWeights: map[string]design.Attr{
			ml.name: {Value: v, Source: design.SourceDeclared},
		}})
	}
}

func (j *job) readNetlist(step string) {
	p := "steps/" + step + "/netlists/cadnet/netlist"
	data, ok := j.get(p)
	if !ok {
		return
	}
	nl := &design.Netlist{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 2 || !strings.HasPrefix(f[0], "$") {
			continue
		}
		if name := f[1]; name != "$NONE$" {
			nl.Nets = append(nl.Nets, name)
		}
	}
	if err := sc.Err(); err != nil {
		j.raw.Warn(p, "file truncated at %v", err)
	}
	j.raw.Netlist = nl
}

// readComponents reads CMP records of comp_+_top and comp_+_bot
func (j *job) readComponents(step string) {
	for _, side := range []struct {
		layer string
		side  design.Side
	}{{"comp_+_top", design.SideTop}, {"comp_+_bot", design.SideBottom}} {
		p := "steps/" + step + "/layers/" + side.layer + "/components"
		data, ok := j.get(p)
		if !ok {
			continue
		}
		unit := j.unit
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if strings.HasPrefix(strings.ToUpper(line), "UNITS=") {
				unit = unitOf(line[6:], unit)
				continue
			}
			body, _, _ := strings.Cut(line, ";")
			f := strings.Fields(body)
			if len(f) < 7 || f[0] != "CMP" {
				continue
			}
			x, err1 := strconv.ParseFloat(f[2], 64)
			y, err2 := strconv.ParseFloat(f[3], 64)
			if err1 != nil || err2 != nil {
				j.raw.Warn(p, "component %s has bad coordinates", f[6])
				continue
			}
			c := design.Component{
				Ref:  f[6],
				Side: side.side,
				At:   design.Point{X: unit.ToMM(x), Y: unit.ToMM(y)},
			}
			if len(f) > 7 {
				c.Part = f[7]
			}
			j.raw.Components = append(j.raw.Components, c)
		}
		if err := sc.Err(); err != nil {
			j.raw.Warn(p, "file truncated at %v", err)
		}
	}
}
