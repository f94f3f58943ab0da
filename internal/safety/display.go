package safety

import (
	"math"

	"github.com/abelzeko/water-monitor/internal/entities"
)

// Fill bounds for gauge rendering. A gauge is never drawn empty or full.
const (
	MinFillPercent = 15.0
	MaxFillPercent = 85.0

	displayPadding = 2.0
)

// Normalize maps value from the padded domain [min-2, max+2] onto 0..100 and
// clamps the result to [15, 85]. NaN is treated as the bottom of the scale.
func Normalize(value, min, max float64) float64 {
	lo, hi := min-displayPadding, max+displayPadding
	pct := (value - lo) / (hi - lo) * 100
	if math.IsNaN(pct) {
		return MinFillPercent
	}
	return math.Min(math.Max(pct, MinFillPercent), MaxFillPercent)
}

// IsOutOfRange reports whether value lies outside the display target range
func IsOutOfRange(value, min, max float64) bool {
	return value < min || value > max
}

// Range is a display target for one parameter
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// DisplayRanges holds the gauge targets. They are independent of the
// classifier thresholds: a reading can sit inside its gauge range and still
// be HIGH_RISK, and the other way round.
type DisplayRanges struct {
	PH        Range `yaml:"ph" json:"ph"`
	Temp      Range `yaml:"temp" json:"temp"`
	Turbidity Range `yaml:"turbidity" json:"turbidity"`
	TDS       Range `yaml:"tds" json:"tds"`
}

// DefaultDisplayRanges returns the standard gauge targets
func DefaultDisplayRanges() DisplayRanges {
	return DisplayRanges{
		PH:        Range{Min: 6.5, Max: 8.5},
		Temp:      Range{Min: 15, Max: 35},
		Turbidity: Range{Min: 0, Max: 5},
		TDS:       Range{Min: 0, Max: 500},
	}
}

// Gauge is the display state of a single parameter
type Gauge struct {
	Parameter   string  `json:"parameter"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	FillPercent float64 `json:"fillPercent"`
	OutOfRange  bool    `json:"outOfRange"`
}

func newGauge(name, unit string, value float64, r Range) Gauge {
	return Gauge{
		Parameter:   name,
		Value:       value,
		Unit:        unit,
		Min:         r.Min,
		Max:         r.Max,
		FillPercent: Normalize(value, r.Min, r.Max),
		OutOfRange:  IsOutOfRange(value, r.Min, r.Max),
	}
}

// Gauges computes the four parameter gauges in display order
func (r DisplayRanges) Gauges(p entities.WaterParameters) []Gauge {
	return []Gauge{
		newGauge("ph", "pH", p.PH, r.PH),
		newGauge("turbidity", "NTU", p.Turbidity, r.Turbidity),
		newGauge("tds", "ppm", p.TDS, r.TDS),
		newGauge("temp", "°C", p.Temp, r.Temp),
	}
}
