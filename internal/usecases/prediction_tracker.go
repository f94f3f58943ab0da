package usecases

import (
	"sync"

	"github.com/abelzeko/water-monitor/internal/entities"
)

// TrackedPrediction is a narrative together with the request that produced it
type TrackedPrediction struct {
	Token      uint64                   `json:"token"`
	Source     string                   `json:"source"`
	Params     entities.WaterParameters `json:"params"`
	Language   entities.Language        `json:"language"`
	Prediction entities.RiskPrediction  `json:"prediction"`
}

// PredictionTracker gives last-write-wins semantics to overlapping narrative
// requests: each request takes a token, and a result is kept only if its token
// is still the latest one issued.
type PredictionTracker struct {
	mu      sync.Mutex
	latest  uint64
	current *TrackedPrediction
}

// NewPredictionTracker creates an empty tracker
func NewPredictionTracker() *PredictionTracker {
	return &PredictionTracker{}
}

// Begin issues the token for a new request
func (t *PredictionTracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest++
	return t.latest
}

// Commit stores the result if token is still the latest. It reports whether the result was kept.
func (t *PredictionTracker) Commit(result TrackedPrediction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if result.Token != t.latest {
		return false
	}
	t.current = &result
	return true
}

// Current returns the displayed prediction, if any
func (t *PredictionTracker) Current() (TrackedPrediction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return TrackedPrediction{}, false
	}
	return *t.current, true
}
