package camrules

import "sort"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// Type of a detected defect
type Type string

const (
	TypeTraceWidth        Type = "trace-width"
	TypeSpacing           Type = "spacing"
	TypeAnnularRing       Type = "annular-ring"
	TypeDrillSize         Type = "drill-size"
	TypeSolderMaskClear   Type = "solder-mask-clearance"
	TypeDrillToCopper     Type = "drill-to-copper"
	TypeCopperImbalance   Type = "copper-imbalance"
	TypeLayerMisalignment Type = "layer-misalignment"
)

// Location in board millimetres
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Issue is one finding of the rule engine
type Issue struct {
	Type           Type      `json:"type"`
	Severity       Severity  `json:"severity"`
	Layer          string    `json:"layer"`
	Location       *Location `json:"location"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
}

// Counts of issues by severity
type Counts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

func (c Counts) Total() int { return c.Critical + c.Warning + c.Info }

// CountIssues is the only way counts are derived
func CountIssues(issues []Issue) Counts {
	var c Counts
	for _, is := range issues {
		switch is.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityWarning:
			c.Warning++
		default:
			c.Info++
		}
	}
	return c
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		ax, ay := a.Location.xy()
		bx, by := b.Location.xy()
		if ax != bx {
			return ax < bx
		}
		if ay != by {
			return ay < by
		}
		return a.Description < b.Description
	})
}

func (l *Location) xy() (float64, float64) {
	if l == nil {
		return 0, 0
	}
	return l.X, l.Y
}
