package usecases

import (
	"math/rand"
	"testing"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshAllSkipsManualSources(t *testing.T) {
	store := repository.NewMemorySourceRepository(func() string { return "12:00:00" })
	sess, err := NewSeededSession(store, "09:00:00")
	require.NoError(t, err)

	manual := entities.DefaultSource("Ward Tank")
	manual.LastUpdated = "09:00:00"
	_, err = store.Register(manual)
	require.NoError(t, err)

	refresher, err := NewAutoRefresher("@every 1h", NewSimulator(time.Millisecond, rand.New(rand.NewSource(5))), sess)
	require.NoError(t, err)
	refresher.RefreshAll()

	sources, err := store.List()
	require.NoError(t, err)
	require.Len(t, sources, 3)
	for _, src := range sources {
		if src.SourceType == entities.SourceTypeIOT {
			assert.Equal(t, "12:00:00", src.LastUpdated, src.Name)
		} else {
			assert.Equal(t, "09:00:00", src.LastUpdated, src.Name)
			assert.Equal(t, entities.DefaultParameters(), src.Params)
		}
	}
}

func TestNewAutoRefresherRejectsBadSchedule(t *testing.T) {
	sess := NewSession(repository.NewMemorySourceRepository(nil))
	_, err := NewAutoRefresher("not a schedule", NewSimulator(0, nil), sess)
	assert.Error(t, err)
}

func TestAutoRefresherStartStop(t *testing.T) {
	sess := NewSession(repository.NewMemorySourceRepository(nil))
	refresher, err := NewAutoRefresher("@every 1h", NewSimulator(0, nil), sess)
	require.NoError(t, err)

	refresher.Start()
	refresher.Stop()
}
