// Package camrules runs manufacturability checks against a design model.
package camrules

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

// check reads the model and returns its findings. Checks whose input is absent
// return nothing.
type check struct {
	typ Type
	run func(m *design.Model, t Thresholds) []Issue
}

// Engine applies one set of thresholds. It holds no state between runs and
// never writes to the model, so one engine may serve concurrent analyses.
type Engine struct {
	thresholds Thresholds
	checks     []check
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{
		thresholds: t,
		checks: []check{
			{TypeTraceWidth, checkTraceWidth},
			{TypeSpacing, checkSpacing},
			{TypeAnnularRing, checkAnnularRing},
			{TypeDrillSize, checkDrillSize},
			{TypeSolderMaskClear, checkSolderMask},
			{TypeDrillToCopper, checkDrillToCopper},
			{TypeCopperImbalance, checkCopperImbalance},
			{TypeLayerMisalignment, checkAlignment},
		},
	}
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Run executes every check in a fixed order. Each check's findings are sorted
// and capped at MaxIssuesPerCheck; the overflow becomes one info issue.
func (e *Engine) Run(ctx context.Context, m *design.Model) ([]Issue, error) {
	issues := []Issue{}
	for _, c := range e.checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := c.run(m, e.thresholds)
		sortIssues(found)
		if limit := e.thresholds.MaxIssuesPerCheck; limit > 0 && len(found) > limit {
			dropped := len(found) - limit
			found = append(found[:limit:limit], Issue{
				Type:           c.typ,
				Severity:       SeverityInfo,
				Description:    fmt.Sprintf("%d further %s finding(s) suppressed", dropped, c.typ),
				Recommendation: "Fix the listed findings and re-run the analysis to see the rest.",
			})
		}
		issues = append(issues, found...)
	}
	return issues, nil
}

// severityBelow grades a value under a minimum
func severityBelow(value, limit float64) Severity {
	if limit-value > limit*0.5+design.Epsilon {
		return SeverityCritical
	}
	return SeverityWarning
}

// severityAbove grades a value over a maximum
func severityAbove(value, limit float64) Severity {
	if value-limit > limit*0.5+design.Epsilon {
		return SeverityCritical
	}
	return SeverityWarning
}

func below(value, limit float64) bool { return value < limit-design.Epsilon }

func loc(p design.Point) *Location {
	return &Location{X: design.Round(p.X, 4), Y: design.Round(p.Y, 4)}
}
