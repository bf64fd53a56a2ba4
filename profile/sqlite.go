package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const profilesSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	role         TEXT NOT NULL CHECK (role IN ('admin', 'teacher', 'student')),
	display_name TEXT NOT NULL DEFAULT '',
	points       INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);`

// SQLStore serves profiles from a relational "profiles" table on SQLite.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore opens (or creates) the database at dbPath. Use ":memory:" in
// tests. A nil logger discards.
func NewSQLStore(dbPath string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &SQLStore{
		db:     db,
		logger: logger.With("component", "profile_store"),
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the profiles table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	_, err := s.db.ExecContext(ctx, profilesSchema)
	return err
}

// Get loads the profile for id, or ErrNotFound. A row with an unreadable
// timestamp is still returned; the bad column is logged and left zero.
func (s *SQLStore) Get(ctx context.Context, id string) (*Profile, error) {
	s.logger.Debug("sql", "op", "select", "table", "profiles", "id", id)

	var p Profile
	var role, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, display_name, points, created_at, updated_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &role, &p.DisplayName, &p.Points, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if p.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	p.CreatedAt = s.parseTime(id, "created_at", createdAt)
	p.UpdatedAt = s.parseTime(id, "updated_at", updatedAt)
	return &p, nil
}

// Put upserts p, stamping UpdatedAt and, when zero, CreatedAt. An existing
// row keeps its original created_at.
func (s *SQLStore) Put(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.logger.Debug("sql", "op", "upsert", "table", "profiles", "id", p.ID)

	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, role, display_name, points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   role = excluded.role,
		   display_name = excluded.display_name,
		   points = excluded.points,
		   updated_at = excluded.updated_at`,
		p.ID, string(p.Role), p.DisplayName, p.Points,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// AddPoints adds delta to an existing balance and returns the new total.
func (s *SQLStore) AddPoints(ctx context.Context, id string, delta int64) (int64, error) {
	s.logger.Debug("sql", "op", "add_points", "table", "profiles", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET points = points + ?, updated_at = ? WHERE id = ?`,
		delta, s.now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT points FROM profiles WHERE id = ?`, id).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return total, nil
}

// Delete removes the row for id. Missing rows are not an error.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "profiles", "id", id)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) parseTime(id, column, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		s.logger.Warn("unreadable profile timestamp", "id", id, "column", column, "value", value, "error", err)
		return time.Time{}
	}
	return t
}
