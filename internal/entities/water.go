// Package entities contains the core domain objects for the water-monitor application
package entities

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SourceType tells where a source's readings come from. Informational only.
type SourceType string

const (
	SourceTypeIOT    SourceType = "IOT"
	SourceTypeManual SourceType = "MANUAL"
)

// WaterParameters is a single set of sensor readings
type WaterParameters struct {
	PH        float64 `json:"ph"`
	Temp      float64 `json:"temp"`      // °C
	Turbidity float64 `json:"turbidity"` // NTU
	TDS       float64 `json:"tds"`       // ppm
}

// Location is a latitude/longitude pair
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// WaterSource represents a named water body or tank tracked by the monitor
type WaterSource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	District    string          `json:"district"`
	Params      WaterParameters `json:"params"`
	SourceType  SourceType      `json:"sourceType"`
	LastUpdated string          `json:"lastUpdated"` // display string, not parsed
	Location    Location        `json:"location"`
}

// Values used when a source has no readings yet
const (
	DefaultPH          = 7.0
	DefaultTemp        = 25.0
	DefaultTurbidity   = 0.0
	DefaultTDS         = 100.0
	DefaultLat         = 11.0
	DefaultLng         = 77.0
	DefaultLastUpdated = "N/A"
)

// DefaultParameters returns the readings assigned to a source nobody has measured
func DefaultParameters() WaterParameters {
	return WaterParameters{
		PH:        DefaultPH,
		Temp:      DefaultTemp,
		Turbidity: DefaultTurbidity,
		TDS:       DefaultTDS,
	}
}

// DefaultSource returns the record reported for a source name the store does not know
func DefaultSource(name string) WaterSource {
	return WaterSource{
		ID:          SourceIDFromName(name),
		Name:        name,
		Params:      DefaultParameters(),
		SourceType:  SourceTypeManual,
		LastUpdated: DefaultLastUpdated,
		Location:    Location{Lat: DefaultLat, Lng: DefaultLng},
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SourceIDFromName derives a source identifier by replacing whitespace runs with dashes
func SourceIDFromName(name string) string {
	return whitespaceRun.ReplaceAllString(name, "-")
}

// ParameterPatch carries a partial update; nil fields keep their previous value
type ParameterPatch struct {
	PH        *float64 `json:"ph,omitempty"`
	Temp      *float64 `json:"temp,omitempty"`
	Turbidity *float64 `json:"turbidity,omitempty"`
	TDS       *float64 `json:"tds,omitempty"`
}

// Apply merges the patch over p and returns the result
func (patch ParameterPatch) Apply(p WaterParameters) WaterParameters {
	if patch.PH != nil {
		p.PH = *patch.PH
	}
	if patch.Temp != nil {
		p.Temp = *patch.Temp
	}
	if patch.Turbidity != nil {
		p.Turbidity = *patch.Turbidity
	}
	if patch.TDS != nil {
		p.TDS = *patch.TDS
	}
	return p
}

// FullPatch builds a patch that overwrites every parameter
func FullPatch(p WaterParameters) ParameterPatch {
	return ParameterPatch{PH: &p.PH, Temp: &p.Temp, Turbidity: &p.Turbidity, TDS: &p.TDS}
}

// Language is a supported locale tag for AI narratives
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTamil   Language = "ta"
	LanguageHindi   Language = "hi"
)

// ErrUnknownLanguage is returned by ParseLanguage for unsupported tags
var ErrUnknownLanguage = errors.New("unknown language")

// SupportedLanguages lists the locale tags in display order
var SupportedLanguages = []Language{LanguageEnglish, LanguageTamil, LanguageHindi}

// ParseLanguage validates a locale tag
func ParseLanguage(tag string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(tag)))
	for _, l := range SupportedLanguages {
		if l == lang {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, tag)
}

// DisplayName returns the English name of the language, used in AI prompts
func (l Language) DisplayName() string {
	switch l {
	case LanguageTamil:
		return "Tamil"
	case LanguageHindi:
		return "Hindi"
	default:
		return "English"
	}
}

// RiskPrediction is the AI disease-risk narrative for one parameter set
type RiskPrediction struct {
	Diseases        []string `json:"diseases"`
	Recommendations string   `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	RiskLevel       string   `json:"riskLevel"`
}

// Fallback values returned when the prediction service cannot produce a result
const (
	AnalysisUnavailable     = "Analysis Unavailable"
	FallbackRecommendations = "Please check water quality manually and consult authorities."
	UnknownRiskLevel        = "UNKNOWN"
)

// FallbackPrediction is the well-formed result handed out on any service failure
func FallbackPrediction() RiskPrediction {
	return RiskPrediction{
		Diseases:        []string{AnalysisUnavailable},
		Recommendations: FallbackRecommendations,
		Confidence:      0,
		RiskLevel:       UnknownRiskLevel,
	}
}

// MapMarker is one pin rendered on the map panel
type MapMarker struct {
	Name   string      `json:"name"`
	Lat    float64     `json:"lat"`
	Lng    float64     `json:"lng"`
	Status SafetyLevel `json:"status"`
}

// Citation is a web source backing a geospatial narrative
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// GeoInsight is the narrative about water bodies near a coordinate
type GeoInsight struct {
	Narrative string     `json:"narrative"`
	Citations []Citation `json:"citations"`
}

// GeoInsightFailed is the narrative shown when the nearby lookup fails
const GeoInsightFailed = "AI Analysis failed. Please try again."
