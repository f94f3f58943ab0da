// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/integration"
	"github.com/abelzeko/water-monitor/internal/integration/openai"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/metrics"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/abelzeko/water-monitor/internal/safety"
)

// DefaultPredictionTimeout bounds a single risk narrative request
const DefaultPredictionTimeout = 30 * time.Second

// WaterUseCase handles business logic related to water sources
type WaterUseCase struct {
	aiService  openai.Service
	citations  *integration.CitationResolver
	simulator  *Simulator
	thresholds safety.Thresholds
	ranges     safety.DisplayRanges
	timeout    time.Duration
	stamp      repository.Stamper
}

// Options tunes a WaterUseCase; zero values select the defaults
type Options struct {
	Thresholds        *safety.Thresholds
	DisplayRanges     *safety.DisplayRanges
	PredictionTimeout time.Duration
	Stamp             repository.Stamper
	Citations         *integration.CitationResolver
}

// NewWaterUseCase creates a new water use case. aiService may be nil, in which
// case every narrative request returns the fallback.
func NewWaterUseCase(aiService openai.Service, simulator *Simulator, opts Options) *WaterUseCase {
	uc := &WaterUseCase{
		aiService:  aiService,
		citations:  opts.Citations,
		simulator:  simulator,
		thresholds: safety.DefaultThresholds(),
		ranges:     safety.DefaultDisplayRanges(),
		timeout:    opts.PredictionTimeout,
		stamp:      opts.Stamp,
	}
	if opts.Thresholds != nil {
		uc.thresholds = *opts.Thresholds
	}
	if opts.DisplayRanges != nil {
		uc.ranges = *opts.DisplayRanges
	}
	if uc.timeout <= 0 {
		uc.timeout = DefaultPredictionTimeout
	}
	if uc.stamp == nil {
		uc.stamp = repository.DisplayStamp
	}
	if uc.citations == nil {
		uc.citations = integration.NewCitationResolver(nil)
	}
	if uc.simulator == nil {
		uc.simulator = NewSimulator(DefaultRefreshDelay, nil)
	}
	return uc
}

// Classify returns the safety level of a reading
func (uc *WaterUseCase) Classify(params entities.WaterParameters) entities.SafetyLevel {
	return uc.thresholds.Classify(params)
}

// Gauges returns the display gauges of a reading
func (uc *WaterUseCase) Gauges(params entities.WaterParameters) []safety.Gauge {
	return uc.ranges.Gauges(params)
}

// SourceStatus is a source with everything derived from its readings
type SourceStatus struct {
	Source entities.WaterSource `json:"source"`
	Level  entities.SafetyLevel `json:"level"`
	Gauges []safety.Gauge       `json:"gauges"`
}

func (uc *WaterUseCase) status(src entities.WaterSource) SourceStatus {
	return SourceStatus{
		Source: src,
		Level:  uc.Classify(src.Params),
		Gauges: uc.Gauges(src.Params),
	}
}

// written classifies a freshly stored reading and counts it
func (uc *WaterUseCase) written(src entities.WaterSource) SourceStatus {
	st := uc.status(src)
	metrics.ObserveClassification(st.Level)
	return st
}

// GetSourceStatus looks a source up and classifies it. Unknown names yield the default record.
func (uc *WaterUseCase) GetSourceStatus(sess *Session, name string) (SourceStatus, error) {
	src, err := sess.Store.Get(name)
	if err != nil {
		return SourceStatus{}, fmt.Errorf("failed to get source %s: %w", name, err)
	}
	return uc.status(src), nil
}

// ActiveStatus returns the status of the session's active source
func (uc *WaterUseCase) ActiveStatus(sess *Session) (SourceStatus, error) {
	return uc.GetSourceStatus(sess, sess.Active().Source)
}

// ListStatuses returns every stored source in insertion order
func (uc *WaterUseCase) ListStatuses(sess *Session) ([]SourceStatus, error) {
	sources, err := sess.Store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	result := make([]SourceStatus, 0, len(sources))
	for _, src := range sources {
		result = append(result, uc.status(src))
	}
	return result, nil
}

// DistrictStatuses returns the stored sources of one district in insertion order
func (uc *WaterUseCase) DistrictStatuses(sess *Session, district string) ([]SourceStatus, error) {
	all, err := uc.ListStatuses(sess)
	if err != nil {
		return nil, err
	}
	result := make([]SourceStatus, 0, len(all))
	for _, st := range all {
		if st.Source.District == district {
			result = append(result, st)
		}
	}
	return result, nil
}

// SaveManual stores a manual reading for name, keeping omitted fields
func (uc *WaterUseCase) SaveManual(sess *Session, name string, patch entities.ParameterPatch) (SourceStatus, error) {
	log.Infof("Saving manual reading for %s", name)
	src, err := sess.Store.Upsert(name, patch)
	if err != nil {
		return SourceStatus{}, fmt.Errorf("failed to save reading for %s: %w", name, err)
	}
	return uc.written(src), nil
}

// RegisterSource adds a manually tracked source and makes it the active selection
func (uc *WaterUseCase) RegisterSource(sess *Session, name, district string) (SourceStatus, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SourceStatus{}, fmt.Errorf("source name is required")
	}

	src := entities.DefaultSource(name)
	src.District = strings.TrimSpace(district)
	src.LastUpdated = uc.stamp()

	stored, err := sess.Store.Register(src)
	if err != nil {
		return SourceStatus{}, err
	}
	sess.Select(stored.District, stored.Name)
	log.Infof("Registered source %s (%s) in district %q", stored.Name, stored.ID, stored.District)
	return uc.written(stored), nil
}

// ScheduleRefresh starts a simulated refresh of name; onDone runs when it lands
func (uc *WaterUseCase) ScheduleRefresh(sess *Session, name string, onDone func(SourceStatus, error)) {
	log.Infof("Scheduling simulated refresh of %s in %s", name, uc.simulator.Delay())
	uc.simulator.RefreshAfter(sess.Store, name, func(src entities.WaterSource, err error) {
		var st SourceStatus
		if err == nil {
			st = uc.written(src)
		}
		if onDone != nil {
			onDone(st, err)
		}
	})
}

// RefreshNow applies a simulated refresh immediately
func (uc *WaterUseCase) RefreshNow(sess *Session, name string) (SourceStatus, error) {
	src, err := uc.simulator.RefreshNow(sess.Store, name)
	if err != nil {
		return SourceStatus{}, err
	}
	return uc.written(src), nil
}

// RequestRiskNarrative asks the AI service for a disease-risk narrative. It
// never fails: timeouts, transport errors and malformed answers all produce
// the fallback prediction.
func (uc *WaterUseCase) RequestRiskNarrative(ctx context.Context, params entities.WaterParameters, lang entities.Language) entities.RiskPrediction {
	if uc.aiService == nil {
		metrics.ObservePrediction(metrics.OutcomeFallback, 0)
		return entities.FallbackPrediction()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	started := time.Now()
	prediction, err := uc.aiService.PredictDiseaseRisk(ctx, params, lang)
	elapsed := time.Since(started).Seconds()
	if err != nil || prediction == nil {
		log.Errorf("Disease prediction failed, using fallback: %v", err)
		metrics.ObservePrediction(metrics.OutcomeFallback, elapsed)
		return entities.FallbackPrediction()
	}
	if prediction.Diseases == nil {
		prediction.Diseases = []string{}
	}

	metrics.ObservePrediction(metrics.OutcomeSuccess, elapsed)
	return *prediction
}

// PredictionResult is the outcome of a tracked narrative request
type PredictionResult struct {
	TrackedPrediction
	// Current is false when a newer request was issued while this one was in flight.
	// A stale result carries the newest committed prediction when there is one,
	// and its own answer otherwise.
	Current bool `json:"current"`
}

// PredictForSource requests a narrative for the named source and commits it to
// the session only if no newer request has been issued in the meantime.
func (uc *WaterUseCase) PredictForSource(ctx context.Context, sess *Session, name string, lang entities.Language) (PredictionResult, error) {
	src, err := sess.Store.Get(name)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("failed to get source %s: %w", name, err)
	}

	token := sess.Predictions.Begin()
	prediction := uc.RequestRiskNarrative(ctx, src.Params, lang)

	result := PredictionResult{
		TrackedPrediction: TrackedPrediction{
			Token:      token,
			Source:     name,
			Params:     src.Params,
			Language:   lang,
			Prediction: prediction,
		},
	}
	result.Current = sess.Predictions.Commit(result.TrackedPrediction)
	if !result.Current {
		log.Warnw("Discarding stale risk prediction", "source", name, "token", token)
		metrics.ObservePrediction(metrics.OutcomeStale, 0)
		// an older commit is no better than this result
		if current, ok := sess.Predictions.Current(); ok && current.Token > token {
			result.TrackedPrediction = current
		}
	}
	return result, nil
}

// MapMarkers returns one marker per stored source, each with its own status
func (uc *WaterUseCase) MapMarkers(sess *Session) ([]entities.MapMarker, error) {
	sources, err := sess.Store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	markers := make([]entities.MapMarker, 0, len(sources))
	for _, src := range sources {
		name := src.Name
		if name == "" {
			name = "Unknown Tank"
		}
		lat, lng := src.Location.Lat, src.Location.Lng
		if lat == 0 && lng == 0 {
			lat, lng = entities.DefaultLat, entities.DefaultLng
		}
		markers = append(markers, entities.MapMarker{
			Name:   name,
			Lat:    lat,
			Lng:    lng,
			Status: uc.Classify(src.Params),
		})
	}
	return markers, nil
}

// NearbyInsight describes public water bodies around a coordinate. Failures
// degrade to a fixed message with no citations.
func (uc *WaterUseCase) NearbyInsight(ctx context.Context, at entities.Location) entities.GeoInsight {
	failed := entities.GeoInsight{Narrative: entities.GeoInsightFailed, Citations: []entities.Citation{}}
	if uc.aiService == nil {
		return failed
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	insight, err := uc.aiService.NearbyWaterBodies(ctx, at)
	if err != nil || insight == nil {
		log.Errorf("Nearby water body lookup failed: %v", err)
		return failed
	}
	insight.Citations = uc.citations.Resolve(ctx, insight.Citations)
	return *insight
}

// FormatSourceInfo formats a source status for chat display
func (uc *WaterUseCase) FormatSourceInfo(st SourceStatus) string {
	var result strings.Builder
	src := st.Source

	result.WriteString(fmt.Sprintf("Water source %s", src.Name))
	if src.District != "" {
		result.WriteString(fmt.Sprintf(" (%s)", src.District))
	}
	result.WriteString(":\n\n")
	result.WriteString(fmt.Sprintf("🛡️ Safety: %s\n", st.Level.Label()))

	for _, g := range st.Gauges {
		marker := ""
		if g.OutOfRange {
			marker = " ⚠️"
		}
		result.WriteString(fmt.Sprintf("• %s: %g %s (target %g–%g)%s\n", g.Parameter, g.Value, g.Unit, g.Min, g.Max, marker))
	}

	result.WriteString(fmt.Sprintf("📡 Source: %s\n", src.SourceType))
	result.WriteString(fmt.Sprintf("🕒 Last update: %s", src.LastUpdated))
	return result.String()
}

// FormatPrediction formats a risk narrative for chat display
func (uc *WaterUseCase) FormatPrediction(p entities.RiskPrediction) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("AI disease risk: %s (confidence %g%%)\n\n", p.RiskLevel, p.Confidence))

	if len(p.Diseases) == 0 {
		result.WriteString("Predicted water-borne diseases: none\n")
	} else {
		result.WriteString("Predicted water-borne diseases:\n")
		for _, d := range p.Diseases {
			result.WriteString("• " + d + "\n")
		}
	}
	result.WriteString("\nAction recommended: " + p.Recommendations)
	return result.String()
}
