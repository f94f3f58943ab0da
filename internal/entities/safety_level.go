package entities

import "fmt"

// SafetyLevel is the four-valued severity classification of a reading.
// Values are ordered by severity, so levels compare with < and >.
type SafetyLevel int

const (
	SafetyLevelSafe SafetyLevel = iota
	SafetyLevelLowRisk
	SafetyLevelHighRisk
	SafetyLevelCritical
)

var safetyLevelNames = [...]string{"SAFE", "LOW_RISK", "HIGH_RISK", "CRITICAL"}

// SafetyLevels lists every level from least to most severe
var SafetyLevels = []SafetyLevel{SafetyLevelSafe, SafetyLevelLowRisk, SafetyLevelHighRisk, SafetyLevelCritical}

func (l SafetyLevel) String() string {
	if l < SafetyLevelSafe || l > SafetyLevelCritical {
		return fmt.Sprintf("SafetyLevel(%d)", int(l))
	}
	return safetyLevelNames[l]
}

// Severity ranks the level from 0 (SAFE) to 3 (CRITICAL)
func (l SafetyLevel) Severity() int {
	return int(l)
}

// Label returns the human readable form, e.g. "LOW RISK"
func (l SafetyLevel) Label() string {
	switch l {
	case SafetyLevelSafe:
		return "SAFE"
	case SafetyLevelLowRisk:
		return "LOW RISK"
	case SafetyLevelHighRisk:
		return "HIGH RISK"
	case SafetyLevelCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// MarshalText encodes the level by name so JSON carries "LOW_RISK" rather than 1
func (l SafetyLevel) MarshalText() ([]byte, error) {
	if l < SafetyLevelSafe || l > SafetyLevelCritical {
		return nil, fmt.Errorf("invalid safety level %d", int(l))
	}
	return []byte(safetyLevelNames[l]), nil
}

// UnmarshalText decodes a level name
func (l *SafetyLevel) UnmarshalText(text []byte) error {
	for i, name := range safetyLevelNames {
		if name == string(text) {
			*l = SafetyLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown safety level %q", string(text))
}
