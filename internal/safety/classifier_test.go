package safety

import (
	"testing"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/stretchr/testify/assert"
)

func params(ph, temp, turbidity, tds float64) entities.WaterParameters {
	return entities.WaterParameters{PH: ph, Temp: temp, Turbidity: turbidity, TDS: tds}
}

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name   string
		params entities.WaterParameters
		want   entities.SafetyLevel
	}{
		{"turbidity above 2 is low risk", params(7.2, 28, 3.5, 180), entities.SafetyLevelLowRisk},
		{"ph above 9 is critical", params(9.5, 30, 1, 100), entities.SafetyLevelCritical},
		{"clean water is safe", params(7.0, 25, 1, 200), entities.SafetyLevelSafe},
		{"tds above 1000 is critical", params(7, 25, 0, 1001), entities.SafetyLevelCritical},
		{"turbidity above 20 is critical", params(7, 25, 20.1, 0), entities.SafetyLevelCritical},
		{"tds above 500 is high risk", params(7, 25, 0, 501), entities.SafetyLevelHighRisk},
		{"turbidity above 5 is high risk", params(7, 25, 5.5, 0), entities.SafetyLevelHighRisk},
		{"tds above 300 is low risk", params(7, 25, 0, 301), entities.SafetyLevelLowRisk},
		{"negative ph is critical", params(-1, 25, 0, 0), entities.SafetyLevelCritical},
		{"most severe rule wins", params(6, 25, 3, 1200), entities.SafetyLevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.params))
		})
	}
}

func TestClassifyBoundariesAreStrict(t *testing.T) {
	assert.Equal(t, entities.SafetyLevelHighRisk, Classify(params(5, 25, 0, 0)))
	assert.Equal(t, entities.SafetyLevelCritical, Classify(params(4.99, 25, 0, 0)))
	assert.Equal(t, entities.SafetyLevelHighRisk, Classify(params(9, 25, 0, 0)))
	assert.Equal(t, entities.SafetyLevelSafe, Classify(params(6.5, 25, 0, 0)))
	assert.Equal(t, entities.SafetyLevelSafe, Classify(params(8.5, 25, 0, 0)))
	assert.Equal(t, entities.SafetyLevelHighRisk, Classify(params(7, 25, 20, 0)))
	assert.Equal(t, entities.SafetyLevelLowRisk, Classify(params(7, 25, 5, 0)))
	assert.Equal(t, entities.SafetyLevelSafe, Classify(params(7, 25, 2, 300)))
	assert.Equal(t, entities.SafetyLevelHighRisk, Classify(params(7, 25, 0, 1000)))
	assert.Equal(t, entities.SafetyLevelLowRisk, Classify(params(7, 25, 0, 500)))
}

func TestClassifyIgnoresTemperature(t *testing.T) {
	for _, temp := range []float64{-40, 0, 25, 60, 100} {
		assert.Equal(t, entities.SafetyLevelSafe, Classify(params(7, temp, 1, 200)))
	}
}

func TestClassifyIsMonotonicAsPHFalls(t *testing.T) {
	prev := entities.SafetyLevelSafe
	seen := map[entities.SafetyLevel]bool{}
	for ph := 7.0; ph >= 4.0; ph -= 0.01 {
		level := Classify(params(ph, 25, 0, 0))
		assert.GreaterOrEqual(t, level, prev, "ph %.2f went back to %s", ph, level)
		assert.NotEqual(t, entities.SafetyLevelLowRisk, level, "ph has no low risk band")
		seen[level] = true
		prev = level
	}
	assert.True(t, seen[entities.SafetyLevelSafe])
	assert.True(t, seen[entities.SafetyLevelHighRisk])
	assert.True(t, seen[entities.SafetyLevelCritical])
}

func TestClassifyIsDeterministic(t *testing.T) {
	p := params(6.4, 30, 4, 450)
	first := Classify(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(p))
	}
	assert.Contains(t, entities.SafetyLevels, first)
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.LowRisk = Band{TDSAbove: limit(150)}

	assert.Equal(t, entities.SafetyLevelLowRisk, th.Classify(params(7, 25, 0, 180)))
	assert.Equal(t, entities.SafetyLevelSafe, th.Classify(params(7, 25, 3, 100)))
	assert.Equal(t, entities.SafetyLevelSafe, Thresholds{}.Classify(params(-3, 25, 99, 9999)))
}
