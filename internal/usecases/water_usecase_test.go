package usecases

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/integration"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/abelzeko/water-monitor/internal/safety"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAIService is a scripted stand-in for the language model
type fakeAIService struct {
	mu         sync.Mutex
	prediction *entities.RiskPrediction
	insight    *entities.GeoInsight
	err        error
	delay      time.Duration
	calls      int
	lastLang   entities.Language
}

func (f *fakeAIService) PredictDiseaseRisk(ctx context.Context, params entities.WaterParameters, lang entities.Language) (*entities.RiskPrediction, error) {
	f.mu.Lock()
	f.calls++
	f.lastLang = lang
	delay, err, prediction := f.delay, f.err, f.prediction
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	p := *prediction
	return &p, nil
}

func (f *fakeAIService) NearbyWaterBodies(ctx context.Context, at entities.Location) (*entities.GeoInsight, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := *f.insight
	return &i, nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store := repository.NewMemorySourceRepository(func() string { return "10:30:00" })
	sess, err := NewSeededSession(store, "09:00:00")
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func newTestUseCase(ai *fakeAIService, opts Options) *WaterUseCase {
	if opts.Stamp == nil {
		opts.Stamp = func() string { return "10:30:00" }
	}
	// a nil *fakeAIService must not become a non-nil interface
	if ai == nil {
		return NewWaterUseCase(nil, NewSimulator(10*time.Millisecond, nil), opts)
	}
	return NewWaterUseCase(ai, NewSimulator(10*time.Millisecond, nil), opts)
}

func samplePrediction() *entities.RiskPrediction {
	return &entities.RiskPrediction{
		Diseases:        []string{"Cholera", "Typhoid"},
		Recommendations: "Boil water before drinking.",
		Confidence:      82,
		RiskLevel:       "HIGH",
	}
}

func TestSeededSessionStatus(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	st, err := uc.ActiveStatus(sess)
	require.NoError(t, err)
	assert.Equal(t, "Mettur Dam", st.Source.Name)
	assert.Equal(t, entities.SafetyLevelLowRisk, st.Level, "turbidity 3.5 crosses the low-risk limit")
	assert.Len(t, st.Gauges, 4)

	all, err := uc.ListStatuses(sess)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Mettur Dam", all[0].Source.Name)
	assert.Equal(t, "Red Hills Lake", all[1].Source.Name)
}

func TestUnknownSourceStatusIsDefault(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	st, err := uc.GetSourceStatus(sess, "Vaigai Dam")
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultSource("Vaigai Dam"), st.Source)
	assert.Equal(t, entities.SafetyLevelSafe, st.Level)
}

func TestSaveManualMergesAndReclassifies(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	patch := ParseManualParameters(map[string]string{"tds": "1200"})
	st, err := uc.SaveManual(sess, "Mettur Dam", patch)
	require.NoError(t, err)

	assert.Equal(t, 7.2, st.Source.Params.PH)
	assert.Equal(t, 28.0, st.Source.Params.Temp)
	assert.Equal(t, 3.5, st.Source.Params.Turbidity)
	assert.Equal(t, 1200.0, st.Source.Params.TDS)
	assert.Equal(t, "10:30:00", st.Source.LastUpdated)
	assert.Equal(t, entities.SafetyLevelCritical, st.Level)
}

func TestRegisterSourceBecomesActive(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	st, err := uc.RegisterSource(sess, "  Ward 12 Tank ", "Madurai")
	require.NoError(t, err)
	assert.Equal(t, "Ward-12-Tank", st.Source.ID)
	assert.Equal(t, "Madurai", st.Source.District)
	assert.Equal(t, entities.SourceTypeManual, st.Source.SourceType)
	assert.Equal(t, entities.DefaultParameters(), st.Source.Params)
	assert.Equal(t, "10:30:00", st.Source.LastUpdated)

	active := sess.Active()
	assert.Equal(t, "Madurai", active.District)
	assert.Equal(t, "Ward 12 Tank", active.Source)

	_, err = uc.RegisterSource(sess, "   ", "Madurai")
	assert.Error(t, err)
}

func TestCustomThresholdsAreApplied(t *testing.T) {
	sess := newTestSession(t)
	strict := safety.DefaultThresholds()
	limit := 3.0
	strict.Critical.TurbidityAbove = &limit
	uc := newTestUseCase(nil, Options{Thresholds: &strict})

	st, err := uc.GetSourceStatus(sess, "Mettur Dam")
	require.NoError(t, err)
	assert.Equal(t, entities.SafetyLevelCritical, st.Level)
}

func TestRequestRiskNarrativeSuccess(t *testing.T) {
	ai := &fakeAIService{prediction: samplePrediction()}
	uc := newTestUseCase(ai, Options{})

	got := uc.RequestRiskNarrative(context.Background(), entities.DefaultParameters(), entities.LanguageTamil)
	assert.Equal(t, *samplePrediction(), got)
	assert.Equal(t, entities.LanguageTamil, ai.lastLang)
	assert.Equal(t, 1, ai.calls)
}

func TestRequestRiskNarrativeFallbackOnError(t *testing.T) {
	ai := &fakeAIService{err: errors.New("connection refused")}
	uc := newTestUseCase(ai, Options{})

	got := uc.RequestRiskNarrative(context.Background(), entities.DefaultParameters(), entities.LanguageEnglish)
	assert.Equal(t, entities.FallbackPrediction(), got)
	assert.Equal(t, 1, ai.calls, "no retry on failure")
}

func TestRequestRiskNarrativeFallbackOnTimeout(t *testing.T) {
	ai := &fakeAIService{prediction: samplePrediction(), delay: time.Second}
	uc := newTestUseCase(ai, Options{PredictionTimeout: 20 * time.Millisecond})

	got := uc.RequestRiskNarrative(context.Background(), entities.DefaultParameters(), entities.LanguageEnglish)
	assert.Equal(t, entities.FallbackPrediction(), got)
}

func TestRequestRiskNarrativeWithoutService(t *testing.T) {
	uc := newTestUseCase(nil, Options{})
	got := uc.RequestRiskNarrative(context.Background(), entities.DefaultParameters(), entities.LanguageHindi)
	assert.Equal(t, entities.FallbackPrediction(), got)
}

func TestRequestRiskNarrativeEmptyDiseaseList(t *testing.T) {
	p := samplePrediction()
	p.Diseases = nil
	uc := newTestUseCase(&fakeAIService{prediction: p}, Options{})

	got := uc.RequestRiskNarrative(context.Background(), entities.DefaultParameters(), entities.LanguageEnglish)
	assert.NotNil(t, got.Diseases)
	assert.Empty(t, got.Diseases)
}

func TestPredictForSourceCommitsLatest(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(&fakeAIService{prediction: samplePrediction()}, Options{})

	res, err := uc.PredictForSource(context.Background(), sess, "Mettur Dam", entities.LanguageEnglish)
	require.NoError(t, err)
	assert.True(t, res.Current)
	assert.Equal(t, "Mettur Dam", res.Source)
	assert.Equal(t, 7.2, res.Params.PH)

	current, ok := sess.Predictions.Current()
	require.True(t, ok)
	assert.Equal(t, res.Token, current.Token)
}

func TestPredictForSourceDiscardsStaleResult(t *testing.T) {
	sess := newTestSession(t)
	slow := &fakeAIService{prediction: samplePrediction(), delay: 200 * time.Millisecond}
	uc := newTestUseCase(slow, Options{})

	done := make(chan PredictionResult, 1)
	go func() {
		res, err := uc.PredictForSource(context.Background(), sess, "Mettur Dam", entities.LanguageEnglish)
		assert.NoError(t, err)
		done <- res
	}()

	// let the slow request take its token first
	require.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()
		return slow.calls == 1
	}, time.Second, 5*time.Millisecond)

	fast := newTestUseCase(&fakeAIService{prediction: &entities.RiskPrediction{
		Diseases: []string{}, Recommendations: "Safe to use.", Confidence: 90, RiskLevel: "LOW",
	}}, Options{})
	latest, err := fast.PredictForSource(context.Background(), sess, "Red Hills Lake", entities.LanguageEnglish)
	require.NoError(t, err)
	assert.True(t, latest.Current)

	stale := <-done
	assert.False(t, stale.Current)
	assert.Equal(t, latest.Token, stale.Token, "stale result reports the displayed prediction")
	assert.Equal(t, "Red Hills Lake", stale.Source)

	current, ok := sess.Predictions.Current()
	require.True(t, ok)
	assert.Equal(t, "LOW", current.Prediction.RiskLevel)
}

func TestStaleResultKeepsOwnAnswerWhileNewestIsPending(t *testing.T) {
	sess := newTestSession(t)
	predictWith := func(risk string, delay time.Duration) (*WaterUseCase, *fakeAIService) {
		ai := &fakeAIService{prediction: &entities.RiskPrediction{Diseases: []string{}, RiskLevel: risk}, delay: delay}
		return newTestUseCase(ai, Options{}), ai
	}
	waitForCall := func(ai *fakeAIService) {
		require.Eventually(t, func() bool {
			ai.mu.Lock()
			defer ai.mu.Unlock()
			return ai.calls == 1
		}, time.Second, 5*time.Millisecond)
	}

	first, _ := predictWith("A", 0)
	a, err := first.PredictForSource(context.Background(), sess, "Mettur Dam", entities.LanguageEnglish)
	require.NoError(t, err)
	require.True(t, a.Current)

	second, secondAI := predictWith("B", 100*time.Millisecond)
	third, thirdAI := predictWith("C", 500*time.Millisecond)

	bDone := make(chan PredictionResult, 1)
	go func() {
		res, err := second.PredictForSource(context.Background(), sess, "Red Hills Lake", entities.LanguageEnglish)
		assert.NoError(t, err)
		bDone <- res
	}()
	waitForCall(secondAI)

	cDone := make(chan PredictionResult, 1)
	go func() {
		res, err := third.PredictForSource(context.Background(), sess, "Mettur Dam", entities.LanguageEnglish)
		assert.NoError(t, err)
		cDone <- res
	}()
	waitForCall(thirdAI)

	b := <-bDone
	assert.False(t, b.Current)
	assert.Equal(t, a.Token+1, b.Token)
	assert.Equal(t, "Red Hills Lake", b.Source)
	assert.Equal(t, "B", b.Prediction.RiskLevel, "no older commit replaces a stale answer")

	current, ok := sess.Predictions.Current()
	require.True(t, ok)
	assert.Equal(t, a.Token, current.Token, "stale answer is not committed")

	c := <-cDone
	assert.True(t, c.Current)
	assert.Equal(t, b.Token+1, c.Token)
	assert.Equal(t, "C", c.Prediction.RiskLevel)
}

// storedReadings reads watermon_classifications_total for one level
func storedReadings(t *testing.T, level entities.SafetyLevel) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "watermon_classifications_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "level" && lp.GetValue() == level.String() {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestClassificationMetricCountsWritesOnly(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})
	before := storedReadings(t, entities.SafetyLevelLowRisk)

	_, err := uc.ListStatuses(sess)
	require.NoError(t, err)
	_, err = uc.ActiveStatus(sess)
	require.NoError(t, err)
	_, err = uc.MapMarkers(sess)
	require.NoError(t, err)
	assert.Equal(t, before, storedReadings(t, entities.SafetyLevelLowRisk), "reads are not counted")

	tds := 400.0
	_, err = uc.SaveManual(sess, "Red Hills Lake", entities.ParameterPatch{TDS: &tds})
	require.NoError(t, err)
	assert.Equal(t, before+1, storedReadings(t, entities.SafetyLevelLowRisk))
}

func TestMapMarkersClassifyEachSource(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	ph := 4.5
	_, err := uc.SaveManual(sess, "Red Hills Lake", entities.ParameterPatch{PH: &ph})
	require.NoError(t, err)

	markers, err := uc.MapMarkers(sess)
	require.NoError(t, err)
	require.Len(t, markers, 2)

	assert.Equal(t, entities.MapMarker{Name: "Mettur Dam", Lat: 11.7853, Lng: 77.8016, Status: entities.SafetyLevelLowRisk}, markers[0])
	assert.Equal(t, "Red Hills Lake", markers[1].Name)
	assert.Equal(t, entities.SafetyLevelCritical, markers[1].Status)
}

func TestScheduleRefreshUpdatesStore(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	done := make(chan SourceStatus, 1)
	uc.ScheduleRefresh(sess, "Mettur Dam", func(st SourceStatus, err error) {
		assert.NoError(t, err)
		done <- st
	})

	select {
	case st := <-done:
		assert.Equal(t, "10:30:00", st.Source.LastUpdated)
		assert.Equal(t, "Salem", st.Source.District)
		stored, err := sess.Store.Get("Mettur Dam")
		require.NoError(t, err)
		assert.Equal(t, st.Source.Params, stored.Params)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not complete")
	}
}

func TestNearbyInsightResolvesTitles(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Chembarambakkam Lake</title></head><body></body></html>"))
	}))
	defer page.Close()

	ai := &fakeAIService{insight: &entities.GeoInsight{
		Narrative: "Three reservoirs are nearby.",
		Citations: []entities.Citation{
			{Title: "", URL: page.URL},
			{Title: "Puzhal", URL: "https://example.org/puzhal"},
		},
	}}
	uc := newTestUseCase(ai, Options{Citations: integration.NewCitationResolver(page.Client())})

	got := uc.NearbyInsight(context.Background(), entities.Location{Lat: 13.08, Lng: 80.27})
	assert.Equal(t, "Three reservoirs are nearby.", got.Narrative)
	require.Len(t, got.Citations, 2)
	assert.Equal(t, "Chembarambakkam Lake", got.Citations[0].Title)
	assert.Equal(t, "Puzhal", got.Citations[1].Title)
}

func TestNearbyInsightFailure(t *testing.T) {
	uc := newTestUseCase(&fakeAIService{err: errors.New("boom")}, Options{})

	got := uc.NearbyInsight(context.Background(), entities.Location{Lat: 13.08, Lng: 80.27})
	assert.Equal(t, entities.GeoInsightFailed, got.Narrative)
	assert.Empty(t, got.Citations)
}

func TestFormatPrediction(t *testing.T) {
	uc := newTestUseCase(nil, Options{})

	text := uc.FormatPrediction(*samplePrediction())
	assert.Contains(t, text, "HIGH")
	assert.Contains(t, text, "• Cholera")
	assert.Contains(t, text, "Boil water before drinking.")

	text = uc.FormatPrediction(entities.RiskPrediction{Diseases: []string{}, Recommendations: "ok", RiskLevel: "LOW"})
	assert.Contains(t, text, "none")
}

func TestFormatSourceInfoFlagsOutOfRange(t *testing.T) {
	sess := newTestSession(t)
	uc := newTestUseCase(nil, Options{})

	turbidity := 9.0
	st, err := uc.SaveManual(sess, "Mettur Dam", entities.ParameterPatch{Turbidity: &turbidity})
	require.NoError(t, err)

	text := uc.FormatSourceInfo(st)
	assert.Contains(t, text, "Water source Mettur Dam (Salem)")
	assert.Contains(t, text, "HIGH RISK")
	assert.Contains(t, text, "⚠️")
	assert.Contains(t, text, "Last update: 10:30:00")
}
