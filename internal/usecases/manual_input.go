package usecases

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/abelzeko/water-monitor/internal/entities"
)

var (
	leadingFloat = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	leadingInt   = regexp.MustCompile(`^\s*[+-]?\d+`)
)

// CoerceFloat reads the leading decimal number of s. Anything unreadable is 0.
func CoerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(leadingFloat.FindString(s)), 64)
	if err != nil {
		return 0
	}
	return v
}

// CoerceInt reads the leading whole number of s. Anything unreadable is 0.
func CoerceInt(s string) float64 {
	v, err := strconv.ParseInt(strings.TrimSpace(leadingInt.FindString(s)), 10, 64)
	if err != nil {
		return 0
	}
	return float64(v)
}

// ParseManualParameters turns manual form input into a patch. Invalid numbers
// become 0 rather than an error; keys that are absent leave the stored value alone.
// tds is read as a whole number.
func ParseManualParameters(fields map[string]string) entities.ParameterPatch {
	var patch entities.ParameterPatch
	if v, ok := fields["ph"]; ok {
		f := CoerceFloat(v)
		patch.PH = &f
	}
	if v, ok := fields["temp"]; ok {
		f := CoerceFloat(v)
		patch.Temp = &f
	}
	if v, ok := fields["turbidity"]; ok {
		f := CoerceFloat(v)
		patch.Turbidity = &f
	}
	if v, ok := fields["tds"]; ok {
		f := CoerceInt(v)
		patch.TDS = &f
	}
	return patch
}
