package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceIDFromName(t *testing.T) {
	assert.Equal(t, "Mettur-Dam", SourceIDFromName("Mettur Dam"))
	assert.Equal(t, "Red-Hills-Lake", SourceIDFromName("Red  Hills\tLake"))
	assert.Equal(t, "Tank", SourceIDFromName("Tank"))
}

func TestDefaultSource(t *testing.T) {
	src := DefaultSource("Village Tank")

	assert.Equal(t, "Village-Tank", src.ID)
	assert.Equal(t, "Village Tank", src.Name)
	assert.Equal(t, WaterParameters{PH: 7.0, Temp: 25, Turbidity: 0, TDS: 100}, src.Params)
	assert.Equal(t, SourceTypeManual, src.SourceType)
	assert.Equal(t, Location{Lat: 11.0, Lng: 77.0}, src.Location)
	assert.Equal(t, "N/A", src.LastUpdated)
}

func TestParameterPatchApplyKeepsOmittedFields(t *testing.T) {
	tds := 1200.0
	before := WaterParameters{PH: 7.2, Temp: 28, Turbidity: 3.5, TDS: 180}

	after := ParameterPatch{TDS: &tds}.Apply(before)

	assert.Equal(t, WaterParameters{PH: 7.2, Temp: 28, Turbidity: 3.5, TDS: 1200}, after)
}

func TestParseLanguage(t *testing.T) {
	lang, err := ParseLanguage(" TA ")
	require.NoError(t, err)
	assert.Equal(t, LanguageTamil, lang)
	assert.Equal(t, "Tamil", lang.DisplayName())

	_, err = ParseLanguage("fr")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestFallbackPrediction(t *testing.T) {
	p := FallbackPrediction()

	assert.Equal(t, []string{"Analysis Unavailable"}, p.Diseases)
	assert.Equal(t, 0.0, p.Confidence)
	assert.Equal(t, "UNKNOWN", p.RiskLevel)
	assert.NotEmpty(t, p.Recommendations)
}

func TestSafetyLevelOrderingAndJSON(t *testing.T) {
	assert.True(t, SafetyLevelSafe < SafetyLevelLowRisk)
	assert.True(t, SafetyLevelLowRisk < SafetyLevelHighRisk)
	assert.True(t, SafetyLevelHighRisk < SafetyLevelCritical)
	assert.Equal(t, 3, SafetyLevelCritical.Severity())
	assert.Equal(t, "LOW RISK", SafetyLevelLowRisk.Label())

	b, err := json.Marshal(MapMarker{Name: "Mettur Dam", Status: SafetyLevelHighRisk})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"HIGH_RISK"`)

	var m MapMarker
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, SafetyLevelHighRisk, m.Status)

	assert.Error(t, m.Status.UnmarshalText([]byte("MAYBE")))
}

func TestSeedSourcesAreInCatalog(t *testing.T) {
	for _, src := range SeedSources("10:00:00") {
		assert.Contains(t, SourcesByDistrict[src.District], src.Name)
		assert.Equal(t, SourceTypeIOT, src.SourceType)
	}
}
