package usecases

import (
	"fmt"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/robfig/cron/v3"
)

// AutoRefresher periodically runs the simulated refresh for every IOT source of a session
type AutoRefresher struct {
	cron      *cron.Cron
	simulator *Simulator
	session   *Session
}

// NewAutoRefresher schedules refreshes with a standard five-field cron spec
func NewAutoRefresher(spec string, simulator *Simulator, session *Session) (*AutoRefresher, error) {
	a := &AutoRefresher{
		cron:      cron.New(),
		simulator: simulator,
		session:   session,
	}
	if _, err := a.cron.AddFunc(spec, a.RefreshAll); err != nil {
		return nil, fmt.Errorf("failed to set up cron job: %w", err)
	}
	return a, nil
}

// RefreshAll refreshes each IOT source once
func (a *AutoRefresher) RefreshAll() {
	sources, err := a.session.Store.List()
	if err != nil {
		log.Errorf("Scheduled refresh could not list sources: %v", err)
		return
	}

	refreshed := 0
	for _, src := range sources {
		if src.SourceType != entities.SourceTypeIOT {
			continue
		}
		if _, err := a.simulator.RefreshNow(a.session.Store, src.Name); err != nil {
			log.Errorf("Scheduled refresh failed: %v", err)
			continue
		}
		refreshed++
	}
	log.Infof("Scheduled refresh updated %d IOT sources", refreshed)
}

// Start runs the scheduler in its own goroutine
func (a *AutoRefresher) Start() {
	a.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish
func (a *AutoRefresher) Stop() {
	<-a.cron.Stop().Done()
}
