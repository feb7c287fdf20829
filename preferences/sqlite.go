package preferences

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tutortoise/live-detection-service/models"
)

//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// SQLiteStore persists a single preferences row.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preferences db: %w", err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply preferences schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (models.Preferences, error) {
	var (
		p    models.Preferences
		mode string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT confidence, acceleration FROM user_preferences WHERE id = 1`,
	).Scan(&p.Confidence, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Preferences{}, ErrNotFound
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	if p.Acceleration, err = models.ParseAccelerationMode(mode); err != nil {
		return models.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p models.Preferences) error {
	query := `
		INSERT INTO user_preferences (id, confidence, acceleration, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			confidence = excluded.confidence,
			acceleration = excluded.acceleration,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, p.Confidence, p.Acceleration.Name(), s.now().Unix()); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
