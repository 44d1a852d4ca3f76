// Package gerber parses RS-274X Gerber sets with their Excellon drill files.
package gerber

import (
	"context"
	"errors"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/archive"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/detect"
)

// Parser implements design.Parser for Gerber uploads
type Parser struct {
	// MaxExpandedBytes caps archive expansion, zero disables the cap.
	MaxExpandedBytes int64
	// Workers bounds concurrent file parsing.
	Workers int
}

func New(maxExpandedBytes int64, workers int) *Parser {
	if workers <= 0 {
		workers = 4
	}
	return &Parser{MaxExpandedBytes: maxExpandedBytes, Workers: workers}
}

type input struct {
	name string
	kind detect.Kind
	data []byte
}

type result struct {
	layer    *design.Layer
	fn       *fileFunction
	rep      *design.Repeat
	drill    *design.DrillLayer
	stackup  *stackupHint
	warnings []design.Warning
	err      error
}

// Parse interprets every Gerber, drill and stackup file in files
func (p *Parser) Parse(ctx context.Context, files []design.File) (*design.Raw, error) {
	raw := &design.Raw{Format: design.FormatGerber}
	inputs, names, err := p.expand(files, raw)
	if err != nil {
		return nil, err
	}

	results := make([]result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = parseInput(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	copper := 0
	for i, res := range results {
		in := inputs[i]
		raw.Warnings = append(raw.Warnings, res.warnings...)
		if res.err != nil {
			raw.Warnings = append(raw.Warnings, design.Warning{File: in.name, Message: "file skipped: " + res.err.Error()})
			raw.Ignored = append(raw.Ignored, in.name)
			continue
		}
		switch {
		case res.drill != nil:
			raw.Drills = append(raw.Drills, *res.drill)
		case res.stackup != nil:
			res.stackup.apply(raw)
		case res.layer != nil:
			role, index := roleFromName(in.name)
			if res.fn != nil && !res.fn.drill {
				role, index = res.fn.role, res.fn.index
			}
			if role == design.LayerOther {
				raw.Ignored = append(raw.Ignored, in.name)
				continue
			}
			res.layer.Role, res.layer.Index = role, index
			raw.Layers = append(raw.Layers, res.layer)
			if role.IsCopper() {
				copper++
				if res.rep != nil && (raw.Panel == nil || len(raw.Panel.Repeats) == 0) {
					if raw.Panel == nil {
						raw.Panel = &design.RawPanel{}
					}
					raw.Panel.Unit = res.layer.Unit
					raw.Panel.Repeats = []design.Repeat{*res.rep}
				}
			}
		}
	}
	if copper == 0 {
		return nil, fmt.Errorf("%w: no usable copper layer among %d file(s)", design.ErrParse, len(inputs))
	}
	raw.Material.Merge(inferMaterial(names))
	return raw, nil
}

// expand flattens archives and routes each file by kind
func (p *Parser) expand(files []design.File, raw *design.Raw) ([]input, []string, error) {
	var inputs []input
	var names []string
	add := func(name string, data []byte) {
		names = append(names, name)
		switch k := detect.Classify(name, data); k {
		case detect.KindGerber, detect.KindDrill, detect.KindStackup:
			inputs = append(inputs, input{name: name, kind: k, data: data})
		default:
			raw.Ignored = append(raw.Ignored, name)
		}
	}
	for _, f := range files {
		if archive.KindOf(f.Name) == archive.None {
			add(f.Name, f.Content)
			continue
		}
		names = append(names, f.Name)
		entries, err := archive.Read(f.Name, f.Content, p.MaxExpandedBytes)
		if errors.Is(err, archive.ErrTooLarge) {
			return nil, nil, fmt.Errorf("%w: %s: %v", design.ErrParse, f.Name, err)
		}
		if err != nil {
			raw.Warn(f.Name, "archive could not be read: %v", err)
			raw.Ignored = append(raw.Ignored, f.Name)
			continue
		}
		for _, e := range entries {
			add(path.Join(f.Name, e.Name), e.Data)
		}
	}
	return inputs, names, nil
}

func parseInput(in input) result {
	switch in.kind {
	case detect.KindDrill:
		dl, warns, err := parseExcellon(in.name, in.data)
		return result{drill: &dl, warnings: warns, err: err}
	case detect.KindStackup:
		h, err := parseStackup(in.data)
		return result{stackup: h, err: err}
	}
	s, err := parseRS274X(in.name, in.data)
	res := result{layer: s.layer, fn: s.fn, rep: s.rep, warnings: s.warn.all(), err: err}
	if err == nil && s.fn != nil && s.fn.drill {
		// Gerber drill maps (X2 Plated/NonPlated) are documentation only
		res.layer, res.err = nil, nil
		res.warnings = append(res.warnings, design.Warning{File: in.name, Message: "Gerber drill map ignored; holes are read from Excellon files"})
	}
	return res
}
