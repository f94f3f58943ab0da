// Package openai talks to the hosted language model that writes disease-risk
// and nearby-water narratives.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyResponse is returned when the model answers with no content
var ErrEmptyResponse = errors.New("received empty response from OpenAI")

// ErrMissingField is returned when a required field is absent from the structured result
var ErrMissingField = errors.New("required field missing from OpenAI response")

// RiskResponse is the structured disease-risk result requested from the model.
// Pointer fields let the parser tell an absent field from a zero value.
type RiskResponse struct {
	Diseases        *[]string `json:"diseases" jsonschema_description:"Plausible water-borne diseases for these readings; empty if none"`
	Recommendations *string   `json:"recommendations" jsonschema_description:"Safety recommendation for the people using this water"`
	Confidence      *float64  `json:"confidence" jsonschema_description:"Confidence in the assessment from 0 to 100"`
	RiskLevel       *string   `json:"riskLevel" jsonschema_description:"Overall risk level label, e.g. LOW, MODERATE, HIGH"`
}

// NearbyResponse is the structured result of the nearby water body lookup
type NearbyResponse struct {
	Narrative *string           `json:"narrative" jsonschema_description:"Description of the nearby water bodies, why they matter and their capacity"`
	Citations *[]NearbyCitation `json:"citations" jsonschema_description:"Web pages backing the description"`
}

// NearbyCitation is one source link in a NearbyResponse
type NearbyCitation struct {
	Title string `json:"title" jsonschema_description:"Page title, may be empty"`
	URL   string `json:"url" jsonschema_description:"Absolute URL of the page"`
}

// Service defines the interface for interacting with the language model.
type Service interface {
	PredictDiseaseRisk(ctx context.Context, params entities.WaterParameters, lang entities.Language) (*entities.RiskPrediction, error)
	NearbyWaterBodies(ctx context.Context, at entities.Location) (*entities.GeoInsight, error)
}

// Config holds the client settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	client       openai.Client
	model        openai.ChatModel
	riskSchema   interface{}
	nearbySchema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewService creates and initializes a new Service.
func NewService(cfg Config) (Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	// one outbound call per request: the caller owns fallback, so no client retries
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4o
	}

	return &serviceImpl{
		client:       openai.NewClient(opts...),
		model:        model,
		riskSchema:   GenerateSchema[RiskResponse](),
		nearbySchema: GenerateSchema[NearbyResponse](),
	}, nil
}

// RiskPrompt builds the request text for a parameter set
func RiskPrompt(params entities.WaterParameters, lang entities.Language) string {
	return fmt.Sprintf(`Analyze these water quality parameters:
  pH: %g,
  Temp: %g°C,
  Turbidity: %g NTU,
  TDS: %g ppm.

Predict potential water-borne disease risks and provide safety recommendations in %s.
Return a structured JSON with the list of diseases, a recommendation, a numeric confidence from 0 to 100 and a risk level.`,
		params.PH, params.Temp, params.Turbidity, params.TDS, lang.DisplayName())
}

// NearbyPrompt builds the request text for the nearby water body lookup
func NearbyPrompt(at entities.Location) string {
	return fmt.Sprintf(`I am currently at latitude %g, longitude %g.
Find and suggest at least 3 prominent public water tanks, lakes, or reservoirs near this location in Tamil Nadu.
Explain why they are significant and mention their general capacity if possible.
Also, give me the Google Maps link for each, and list the web pages you relied on as citations.`,
		at.Lat, at.Lng)
}

func (s *serviceImpl) complete(ctx context.Context, prompt, schemaName, description string, schema interface{}) (string, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        schemaName,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: respFormat,
		Model:          s.model,
	})
	if err != nil {
		return "", fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return chat.Choices[0].Message.Content, nil
}

// PredictDiseaseRisk asks the model for a disease-risk narrative. Any transport,
// empty or malformed answer is returned as an error.
func (s *serviceImpl) PredictDiseaseRisk(ctx context.Context, params entities.WaterParameters, lang entities.Language) (*entities.RiskPrediction, error) {
	content, err := s.complete(ctx, RiskPrompt(params, lang), "disease_prediction",
		"Water-borne disease risk assessment for a set of water quality readings", s.riskSchema)
	if err != nil {
		return nil, err
	}

	prediction, err := ParseRiskResponse(content)
	if err != nil {
		log.Warnf("Failed to parse OpenAI risk response: %v\nRaw response: %s", err, content)
		return nil, err
	}
	return prediction, nil
}

// ParseRiskResponse decodes the model's answer and checks every required field
func ParseRiskResponse(content string) (*entities.RiskPrediction, error) {
	raw := ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in OpenAI response")
	}

	var resp RiskResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}

	switch {
	case resp.Diseases == nil:
		return nil, fmt.Errorf("%w: diseases", ErrMissingField)
	case resp.Recommendations == nil:
		return nil, fmt.Errorf("%w: recommendations", ErrMissingField)
	case resp.Confidence == nil:
		return nil, fmt.Errorf("%w: confidence", ErrMissingField)
	case resp.RiskLevel == nil:
		return nil, fmt.Errorf("%w: riskLevel", ErrMissingField)
	}

	confidence := *resp.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	return &entities.RiskPrediction{
		Diseases:        *resp.Diseases,
		Recommendations: *resp.Recommendations,
		Confidence:      confidence,
		RiskLevel:       *resp.RiskLevel,
	}, nil
}

// NearbyWaterBodies asks the model about public water bodies around a coordinate
func (s *serviceImpl) NearbyWaterBodies(ctx context.Context, at entities.Location) (*entities.GeoInsight, error) {
	content, err := s.complete(ctx, NearbyPrompt(at), "nearby_water_bodies",
		"Public water bodies near a coordinate with supporting links", s.nearbySchema)
	if err != nil {
		return nil, err
	}

	insight, err := ParseNearbyResponse(content)
	if err != nil {
		log.Warnf("Failed to parse OpenAI nearby response: %v\nRaw response: %s", err, content)
		return nil, err
	}
	return insight, nil
}

// ParseNearbyResponse decodes the nearby lookup answer
func ParseNearbyResponse(content string) (*entities.GeoInsight, error) {
	raw := ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in OpenAI response")
	}

	var resp NearbyResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	if resp.Narrative == nil || *resp.Narrative == "" {
		return nil, fmt.Errorf("%w: narrative", ErrMissingField)
	}

	insight := &entities.GeoInsight{Narrative: *resp.Narrative, Citations: []entities.Citation{}}
	if resp.Citations != nil {
		for _, c := range *resp.Citations {
			if c.URL == "" {
				continue
			}
			insight.Citations = append(insight.Citations, entities.Citation{Title: c.Title, URL: c.URL})
		}
	}
	return insight, nil
}
