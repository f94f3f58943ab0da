package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	_ "github.com/mattn/go-sqlite3"
)

// InMemoryDSN keeps the database inside the process; it disappears on Close
const InMemoryDSN = ":memory:"

// SQLiteSourceRepository implements SourceRepository using SQLite
type SQLiteSourceRepository struct {
	db    *sql.DB
	DSN   string
	stamp Stamper
}

// NewSQLiteSourceRepository opens the database and creates the schema.
// An empty dsn selects a private in-memory database.
func NewSQLiteSourceRepository(dsn string, stamp Stamper) (*SQLiteSourceRepository, error) {
	if dsn == "" {
		dsn = InMemoryDSN
	}

	log.Infof("Opening source database at %s", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	repo, err := NewSQLiteSourceRepositoryFromDB(db, stamp)
	if err != nil {
		db.Close()
		return nil, err
	}
	repo.DSN = dsn
	return repo, nil
}

// NewSQLiteSourceRepositoryFromDB creates the schema on an already opened database
func NewSQLiteSourceRepositoryFromDB(db *sql.DB, stamp Stamper) (*SQLiteSourceRepository, error) {
	if stamp == nil {
		stamp = DisplayStamp
	}

	// seq keeps insertion order; name is the unique key
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS water_sources (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		id TEXT NOT NULL,
		district TEXT NOT NULL DEFAULT '',
		ph REAL NOT NULL,
		temp REAL NOT NULL,
		turbidity REAL NOT NULL,
		tds REAL NOT NULL,
		source_type TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteSourceRepository{
		db:    db,
		stamp: stamp,
	}, nil
}

// Close closes the database connection
func (r *SQLiteSourceRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const selectSourceSQL = `
	SELECT name, id, district, ph, temp, turbidity, tds, source_type, last_updated, lat, lng
	FROM water_sources`

const upsertSourceSQL = `
	INSERT INTO water_sources(name, id, district, ph, temp, turbidity, tds, source_type, last_updated, lat, lng)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
	id=excluded.id,
	district=excluded.district,
	ph=excluded.ph,
	temp=excluded.temp,
	turbidity=excluded.turbidity,
	tds=excluded.tds,
	source_type=excluded.source_type,
	last_updated=excluded.last_updated,
	lat=excluded.lat,
	lng=excluded.lng`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (entities.WaterSource, error) {
	var src entities.WaterSource
	var sourceType string
	err := row.Scan(
		&src.Name,
		&src.ID,
		&src.District,
		&src.Params.PH,
		&src.Params.Temp,
		&src.Params.Turbidity,
		&src.Params.TDS,
		&sourceType,
		&src.LastUpdated,
		&src.Location.Lat,
		&src.Location.Lng,
	)
	src.SourceType = entities.SourceType(sourceType)
	return src, err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func writeSource(db execer, src entities.WaterSource) error {
	_, err := db.Exec(upsertSourceSQL,
		src.Name,
		src.ID,
		src.District,
		src.Params.PH,
		src.Params.Temp,
		src.Params.Turbidity,
		src.Params.TDS,
		string(src.SourceType),
		src.LastUpdated,
		src.Location.Lat,
		src.Location.Lng,
	)
	return err
}

// Get returns the stored record, or the default record for unknown names
func (r *SQLiteSourceRepository) Get(name string) (entities.WaterSource, error) {
	src, err := scanSource(r.db.QueryRow(selectSourceSQL+" WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return entities.DefaultSource(name), nil
	}
	if err != nil {
		return entities.WaterSource{}, fmt.Errorf("failed to query source %s: %w", name, err)
	}
	return src, nil
}

// Upsert merges the supplied parameters into the record and stamps it
func (r *SQLiteSourceRepository) Upsert(name string, patch entities.ParameterPatch) (entities.WaterSource, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return entities.WaterSource{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	src, err := scanSource(tx.QueryRow(selectSourceSQL+" WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		src = entities.DefaultSource(name)
	} else if err != nil {
		tx.Rollback()
		return entities.WaterSource{}, fmt.Errorf("failed to query source %s: %w", name, err)
	}

	src.Params = patch.Apply(src.Params)
	src.LastUpdated = r.stamp()

	if err := writeSource(tx, src); err != nil {
		tx.Rollback()
		return entities.WaterSource{}, fmt.Errorf("failed to update source %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return entities.WaterSource{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return src, nil
}

// Register stores a new record keyed by its name
func (r *SQLiteSourceRepository) Register(src entities.WaterSource) (entities.WaterSource, error) {
	if src.Name == "" {
		return entities.WaterSource{}, fmt.Errorf("source name is required")
	}
	src.ID = entities.SourceIDFromName(src.Name)

	if err := writeSource(r.db, src); err != nil {
		return entities.WaterSource{}, fmt.Errorf("failed to register source %s: %w", src.Name, err)
	}
	return src, nil
}

// List returns all records in insertion order
func (r *SQLiteSourceRepository) List() ([]entities.WaterSource, error) {
	rows, err := r.db.Query(selectSourceSQL + " ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var result []entities.WaterSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}
