package usecases

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/metrics"
	"github.com/abelzeko/water-monitor/internal/repository"
)

// DefaultRefreshDelay is how long a simulated sensor refresh takes
const DefaultRefreshDelay = 1500 * time.Millisecond

// Simulator produces fake sensor readings in place of a real device feed
type Simulator struct {
	delay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulator creates a simulator. A nil rnd is seeded from the clock.
func NewSimulator(delay time.Duration, rnd *rand.Rand) *Simulator {
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{delay: delay, rnd: rnd}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// Simulate draws one plausible reading: pH 6.5-8.5, temp 24-32 °C,
// turbidity 0-10 NTU (one decimal each) and a whole tds of 100-699 ppm.
func (s *Simulator) Simulate() entities.WaterParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.WaterParameters{
		PH:        roundTenth(6.5 + s.rnd.Float64()*2),
		Temp:      roundTenth(24 + s.rnd.Float64()*8),
		Turbidity: roundTenth(s.rnd.Float64() * 10),
		TDS:       math.Floor(100 + s.rnd.Float64()*600),
	}
}

// RefreshNow replaces the readings of name with a simulated set
func (s *Simulator) RefreshNow(store repository.SourceRepository, name string) (entities.WaterSource, error) {
	src, err := store.Upsert(name, entities.FullPatch(s.Simulate()))
	if err != nil {
		return entities.WaterSource{}, fmt.Errorf("failed to refresh %s: %w", name, err)
	}
	metrics.ObserveRefresh()
	log.Infof("Simulated refresh of %s: %+v", name, src.Params)
	return src, nil
}

// RefreshAfter refreshes name once after the fixed delay. It cannot be
// cancelled; onDone runs on the timer goroutine and must check that its
// receiver is still interested before acting on the result.
func (s *Simulator) RefreshAfter(store repository.SourceRepository, name string, onDone func(entities.WaterSource, error)) {
	time.AfterFunc(s.delay, func() {
		src, err := s.RefreshNow(store, name)
		if err != nil {
			log.Errorf("Scheduled refresh failed: %v", err)
		}
		if onDone != nil {
			onDone(src, err)
		}
	})
}

// Delay returns the fixed refresh delay
func (s *Simulator) Delay() time.Duration {
	return s.delay
}
