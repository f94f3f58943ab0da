// Package repository provides data access implementations
package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
)

// SourceRepository is the Parameter Store: it owns every WaterSource of a session.
// It is total over names: Get on an unknown name yields the default record.
type SourceRepository interface {
	Get(name string) (entities.WaterSource, error)
	Upsert(name string, patch entities.ParameterPatch) (entities.WaterSource, error)
	Register(src entities.WaterSource) (entities.WaterSource, error)
	List() ([]entities.WaterSource, error)
	Close() error
}

// Stamper produces the last-updated display marker for a write
type Stamper func() string

// DisplayStamp formats the wall clock as a time-of-day string
func DisplayStamp() string {
	return time.Now().Format("15:04:05")
}

// Open creates a repository for the given driver ("memory" or "sqlite")
func Open(driver, dsn string, stamp Stamper) (SourceRepository, error) {
	switch driver {
	case "", "memory":
		return NewMemorySourceRepository(stamp), nil
	case "sqlite", "sqlite3":
		repo, err := NewSQLiteSourceRepository(dsn, stamp)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Seed registers every source in order
func Seed(repo SourceRepository, sources []entities.WaterSource) error {
	for _, src := range sources {
		if _, err := repo.Register(src); err != nil {
			return fmt.Errorf("failed to seed %s: %w", src.Name, err)
		}
	}
	return nil
}

// MemorySourceRepository keeps sources in a map and remembers insertion order
type MemorySourceRepository struct {
	mu      sync.RWMutex
	sources map[string]entities.WaterSource
	order   []string
	stamp   Stamper
}

// NewMemorySourceRepository creates an empty in-memory store
func NewMemorySourceRepository(stamp Stamper) *MemorySourceRepository {
	if stamp == nil {
		stamp = DisplayStamp
	}
	return &MemorySourceRepository{
		sources: make(map[string]entities.WaterSource),
		stamp:   stamp,
	}
}

// Get returns the stored record, or the default record for unknown names
func (r *MemorySourceRepository) Get(name string) (entities.WaterSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return entities.DefaultSource(name), nil
}

// Upsert merges the supplied parameters into the record and stamps it
func (r *MemorySourceRepository) Upsert(name string, patch entities.ParameterPatch) (entities.WaterSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[name]
	if !ok {
		src = entities.DefaultSource(name)
		r.order = append(r.order, name)
	}
	src.Params = patch.Apply(src.Params)
	src.LastUpdated = r.stamp()
	r.sources[name] = src
	return src, nil
}

// Register stores a new record keyed by its name. Registering an existing
// name replaces the record but keeps its position.
func (r *MemorySourceRepository) Register(src entities.WaterSource) (entities.WaterSource, error) {
	if src.Name == "" {
		return entities.WaterSource{}, fmt.Errorf("source name is required")
	}
	src.ID = entities.SourceIDFromName(src.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[src.Name]; !ok {
		r.order = append(r.order, src.Name)
	}
	r.sources[src.Name] = src
	return src, nil
}

// List returns all records in insertion order
func (r *MemorySourceRepository) List() ([]entities.WaterSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entities.WaterSource, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result, nil
}

// Close is a no-op for the in-memory store
func (r *MemorySourceRepository) Close() error {
	return nil
}
