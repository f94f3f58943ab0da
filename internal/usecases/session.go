package usecases

import (
	"sync"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/repository"
)

// Session is the state of one dashboard user: their Parameter Store, the
// active selection, the narrative language and the latest prediction.
type Session struct {
	Store       repository.SourceRepository
	Predictions *PredictionTracker
	Devices     *PairingRegistry

	mu       sync.RWMutex
	district string
	source   string
	language entities.Language
}

// NewSession wraps a store; the caller seeds it
func NewSession(store repository.SourceRepository) *Session {
	return &Session{
		Store:       store,
		Predictions: NewPredictionTracker(),
		Devices:     NewPairingRegistry(),
		district:    entities.InitialDistrict,
		source:      entities.InitialSource,
		language:    entities.LanguageEnglish,
	}
}

// NewSeededSession creates a session over store and loads the seed sources
func NewSeededSession(store repository.SourceRepository, lastUpdated string) (*Session, error) {
	if err := repository.Seed(store, entities.SeedSources(lastUpdated)); err != nil {
		return nil, err
	}
	return NewSession(store), nil
}

// Selection is the active district and source
type Selection struct {
	District string            `json:"district"`
	Source   string            `json:"source"`
	Language entities.Language `json:"language"`
}

// Active returns the current selection
func (s *Session) Active() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Selection{District: s.district, Source: s.source, Language: s.language}
}

// Select makes name the active source. An empty district keeps the current one.
// Switching district without naming a source picks the district's first catalog
// source, if it has any.
func (s *Session) Select(district, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if district != "" && district != s.district {
		s.district = district
		if name == "" {
			if sources := entities.SourcesByDistrict[district]; len(sources) > 0 {
				s.source = sources[0]
			}
		}
	}
	if name != "" {
		s.source = name
	}
}

// SetLanguage changes the narrative language
func (s *Session) SetLanguage(lang entities.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// Close releases the store
func (s *Session) Close() error {
	return s.Store.Close()
}
