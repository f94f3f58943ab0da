// Package safety turns raw water parameters into a safety level and display gauges.
package safety

import "github.com/abelzeko/water-monitor/internal/entities"

// Band is one severity rule: a reading falls in the band if any of the
// enabled limits is crossed. Comparisons are strict, so a value equal to
// a limit does not trigger the band. A nil limit is not checked.
type Band struct {
	PHBelow        *float64 `yaml:"ph_below" json:"phBelow,omitempty"`
	PHAbove        *float64 `yaml:"ph_above" json:"phAbove,omitempty"`
	TurbidityAbove *float64 `yaml:"turbidity_above" json:"turbidityAbove,omitempty"`
	TDSAbove       *float64 `yaml:"tds_above" json:"tdsAbove,omitempty"`
}

// Matches reports whether p crosses any limit of the band
func (b Band) Matches(p entities.WaterParameters) bool {
	switch {
	case b.PHBelow != nil && p.PH < *b.PHBelow:
		return true
	case b.PHAbove != nil && p.PH > *b.PHAbove:
		return true
	case b.TurbidityAbove != nil && p.Turbidity > *b.TurbidityAbove:
		return true
	case b.TDSAbove != nil && p.TDS > *b.TDSAbove:
		return true
	}
	return false
}

// Thresholds is the classifier's rule table. Bands are checked from the
// most severe down and the first match wins. Temperature is not a rule input.
type Thresholds struct {
	Critical Band `yaml:"critical" json:"critical"`
	HighRisk Band `yaml:"high_risk" json:"highRisk"`
	LowRisk  Band `yaml:"low_risk" json:"lowRisk"`
}

func limit(v float64) *float64 { return &v }

// DefaultThresholds returns the standard rule table:
//
//	CRITICAL  ph < 5   or ph > 9   or turbidity > 20 or tds > 1000
//	HIGH_RISK ph < 6.5 or ph > 8.5 or turbidity > 5  or tds > 500
//	LOW_RISK                          turbidity > 2  or tds > 300
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: Band{PHBelow: limit(5), PHAbove: limit(9), TurbidityAbove: limit(20), TDSAbove: limit(1000)},
		HighRisk: Band{PHBelow: limit(6.5), PHAbove: limit(8.5), TurbidityAbove: limit(5), TDSAbove: limit(500)},
		LowRisk:  Band{TurbidityAbove: limit(2), TDSAbove: limit(300)},
	}
}

// Classify maps a parameter set to its safety level
func (t Thresholds) Classify(p entities.WaterParameters) entities.SafetyLevel {
	switch {
	case t.Critical.Matches(p):
		return entities.SafetyLevelCritical
	case t.HighRisk.Matches(p):
		return entities.SafetyLevelHighRisk
	case t.LowRisk.Matches(p):
		return entities.SafetyLevelLowRisk
	default:
		return entities.SafetyLevelSafe
	}
}

var defaultThresholds = DefaultThresholds()

// Classify applies the default rule table
func Classify(p entities.WaterParameters) entities.SafetyLevel {
	return defaultThresholds.Classify(p)
}
