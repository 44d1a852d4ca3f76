package analyses

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/detect"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/gerber"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/odbpp"
)

// Pipeline runs one analysis from raw files to issues. It keeps no state
// between runs.
type Pipeline struct {
	Parsers          map[design.Format]design.Parser
	MaxExpandedBytes int64
}

// NewPipeline wires the Gerber and ODB++ parsers
func NewPipeline(maxExpandedBytes int64, parseWorkers int) *Pipeline {
	return &Pipeline{
		Parsers: map[design.Format]design.Parser{
			design.FormatGerber: gerber.New(maxExpandedBytes, parseWorkers),
			design.FormatODBPP:  odbpp.New(maxExpandedBytes),
		},
		MaxExpandedBytes: maxExpandedBytes,
	}
}

// Outcome is everything one run produces
type Outcome struct {
	Format  design.Format
	Model   *design.Model
	Summary summary.Summary
	Issues  []camrules.Issue
}

func (p *Pipeline) Run(ctx context.Context, files []design.File, th camrules.Thresholds) (*Outcome, error) {
	format, err := detect.Detect(files, p.MaxExpandedBytes)
	if err != nil {
		return nil, err
	}
	parser, ok := p.Parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %s", design.ErrFormatUnrecognized, format)
	}
	raw, err := parser.Parse(ctx, files)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := design.Build(raw)
	if err != nil {
		return nil, err
	}
	issues, err := camrules.NewEngine(th).Run(ctx, model)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Format:  format,
		Model:   model,
		Summary: summary.Summarize(model),
		Issues:  issues,
	}, nil
}
