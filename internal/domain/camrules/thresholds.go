package camrules

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Thresholds configures the checks. Lengths are millimetres,
// CopperImbalanceTolerance is percentage points.
type Thresholds struct {
	MinTraceWidth            float64 `json:"min_trace_width" yaml:"min_trace_width" validate:"gt=0"`
	MinSpacing               float64 `json:"min_spacing" yaml:"min_spacing" validate:"gt=0"`
	MinAnnularRing           float64 `json:"min_annular_ring" yaml:"min_annular_ring" validate:"gt=0"`
	MinDrillSize             float64 `json:"min_drill_size" yaml:"min_drill_size" validate:"gt=0"`
	MinSolderMaskClearance   float64 `json:"min_solder_mask_clearance" yaml:"min_solder_mask_clearance" validate:"gt=0"`
	MinDrillToCopper         float64 `json:"min_drill_to_copper" yaml:"min_drill_to_copper" validate:"gt=0"`
	CopperImbalanceTolerance float64 `json:"copper_imbalance_tolerance" yaml:"copper_imbalance_tolerance" validate:"gt=0,lte=100"`
	MaxLayerMisalignment     float64 `json:"max_layer_misalignment" yaml:"max_layer_misalignment" validate:"gt=0"`
	MaxIssuesPerCheck        int     `json:"max_issues_per_check" yaml:"max_issues_per_check" validate:"gt=0"`
}

// Defaults are typical standard-class fabrication capabilities
func Defaults() Thresholds {
	return Thresholds{
		MinTraceWidth:            0.1,
		MinSpacing:               0.1,
		MinAnnularRing:           0.05,
		MinDrillSize:             0.15,
		MinSolderMaskClearance:   0.05,
		MinDrillToCopper:         0.2,
		CopperImbalanceTolerance: 10,
		MaxLayerMisalignment:     0.05,
		MaxIssuesPerCheck:        100,
	}
}

// Validate checks every threshold is usable
func (t Thresholds) Validate() error {
	return validate.Struct(t)
}

// Overrides replace individual thresholds for one analysis
type Overrides struct {
	MinTraceWidth            *float64 `json:"min_trace_width,omitempty" yaml:"min_trace_width,omitempty" validate:"omitempty,gt=0"`
	MinSpacing               *float64 `json:"min_spacing,omitempty" yaml:"min_spacing,omitempty" validate:"omitempty,gt=0"`
	MinAnnularRing           *float64 `json:"min_annular_ring,omitempty" yaml:"min_annular_ring,omitempty" validate:"omitempty,gt=0"`
	MinDrillSize             *float64 `json:"min_drill_size,omitempty" yaml:"min_drill_size,omitempty" validate:"omitempty,gt=0"`
	MinSolderMaskClearance   *float64 `json:"min_solder_mask_clearance,omitempty" yaml:"min_solder_mask_clearance,omitempty" validate:"omitempty,gt=0"`
	MinDrillToCopper         *float64 `json:"min_drill_to_copper,omitempty" yaml:"min_drill_to_copper,omitempty" validate:"omitempty,gt=0"`
	CopperImbalanceTolerance *float64 `json:"copper_imbalance_tolerance,omitempty" yaml:"copper_imbalance_tolerance,omitempty" validate:"omitempty,gt=0,lte=100"`
	MaxLayerMisalignment     *float64 `json:"max_layer_misalignment,omitempty" yaml:"max_layer_misalignment,omitempty" validate:"omitempty,gt=0"`
	MaxIssuesPerCheck        *int     `json:"max_issues_per_check,omitempty" yaml:"max_issues_per_check,omitempty" validate:"omitempty,gt=0"`
}

func (o Overrides) Validate() error {
	return validate.Struct(o)
}

// With returns t with every set override applied
func (t Thresholds) With(o Overrides) Thresholds {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.MinTraceWidth, o.MinTraceWidth)
	set(&t.MinSpacing, o.MinSpacing)
	set(&t.MinAnnularRing, o.MinAnnularRing)
	set(&t.MinDrillSize, o.MinDrillSize)
	set(&t.MinSolderMaskClearance, o.MinSolderMaskClearance)
	set(&t.MinDrillToCopper, o.MinDrillToCopper)
	set(&t.CopperImbalanceTolerance, o.CopperImbalanceTolerance)
	set(&t.MaxLayerMisalignment, o.MaxLayerMisalignment)
	if o.MaxIssuesPerCheck != nil {
		t.MaxIssuesPerCheck = *o.MaxIssuesPerCheck
	}
	return t
}
