// Package report renders completed analyses for callers.
package report

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
)

// Format of a rendered report
type Format string

const (
	FormatStructured Format = "structured"
	FormatNarrative  Format = "narrative"
)

// ParseFormat accepts the format names case-insensitively; empty means structured
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatStructured, "json":
		return FormatStructured, nil
	case FormatNarrative, "text":
		return FormatNarrative, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// ContentType of a rendered format
func (f Format) ContentType() string {
	if f == FormatNarrative {
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

// Render formats a completed analysis
func Render(a *analysis.Analysis, f Format) ([]byte, error) {
	if a.Status != analysis.StatusCompleted || a.Result == nil {
		return nil, fmt.Errorf("%w: status is %s", analysis.ErrAnalysisNotReady, a.Status)
	}
	switch f {
	case FormatNarrative:
		return []byte(Narrative(a)), nil
	case FormatStructured, "":
		return structured(a)
	}
	return nil, fmt.Errorf("unknown report format %q", f)
}
