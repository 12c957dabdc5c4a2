// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout keeps a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a user has never enrolled.
var ErrNotFound = xerrors.New("no enrollment found")

// Store wraps SQLite access for enrollments and attempts.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("open db: %w", err)
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, xerrors.Errorf("migrate db: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			user_id TEXT PRIMARY KEY,
			phrase TEXT NOT NULL,
			pattern TEXT NOT NULL,
			enrolled_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			similarity REAL NOT NULL,
			total_time REAL NOT NULL,
			average_press_time REAL NOT NULL,
			key_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user_created ON attempts(user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEnrollment stores the reference pattern for a user, replacing any
// previous one.
func (s *Store) UpsertEnrollment(ctx context.Context, userID, phrase string, pattern model.KeystrokePattern) (model.Enrollment, error) {
	if userID == "" {
		return model.Enrollment{}, xerrors.New("user id is empty")
	}
	encoded, err := json.Marshal(pattern)
	if err != nil {
		return model.Enrollment{}, xerrors.Errorf("encode pattern: %w", err)
	}
	enrolledAt := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrollments (user_id, phrase, pattern, enrolled_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			phrase = excluded.phrase,
			pattern = excluded.pattern,
			enrolled_at = excluded.enrolled_at`,
		userID, phrase, string(encoded), enrolledAt.Format(timeLayout),
	)
	if err != nil {
		return model.Enrollment{}, xerrors.Errorf("upsert enrollment: %w", err)
	}
	return model.Enrollment{
		UserID:     userID,
		Phrase:     phrase,
		Pattern:    pattern,
		EnrolledAt: enrolledAt,
	}, nil
}

// GetEnrollment returns the enrollment of a user or ErrNotFound.
func (s *Store) GetEnrollment(ctx context.Context, userID string) (model.Enrollment, error) {
	var (
		enrollment model.Enrollment
		encoded    string
		enrolledAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, phrase, pattern, enrolled_at FROM enrollments WHERE user_id = ?`, userID,
	).Scan(&enrollment.UserID, &enrollment.Phrase, &encoded, &enrolledAt)
	if xerrors.Is(err, sql.ErrNoRows) {
		return model.Enrollment{}, ErrNotFound
	}
	if err != nil {
		return model.Enrollment{}, xerrors.Errorf("query enrollment: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &enrollment.Pattern); err != nil {
		return model.Enrollment{}, xerrors.Errorf("decode pattern: %w", err)
	}
	enrollment.EnrolledAt, err = time.Parse(timeLayout, enrolledAt)
	if err != nil {
		return model.Enrollment{}, xerrors.Errorf("parse enrolled_at: %w", err)
	}
	return enrollment, nil
}

// DeleteEnrollment removes a user's enrollment. It returns ErrNotFound when
// there was nothing to remove.
func (s *Store) DeleteEnrollment(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE user_id = ?`, userID)
	if err != nil {
		return xerrors.Errorf("delete enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Errorf("delete enrollment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAttempt records a completed attempt and returns it with ID and
// CreatedAt filled in when they were empty.
func (s *Store) InsertAttempt(ctx context.Context, attempt model.Attempt) (model.Attempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, user_id, mode, outcome, similarity, total_time, average_press_time, key_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.UserID,
		string(attempt.Mode),
		attempt.Outcome,
		attempt.Similarity,
		attempt.TotalTime,
		attempt.AveragePressTime,
		attempt.KeyCount,
		attempt.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Attempt{}, xerrors.Errorf("insert attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns attempts filtered by the history config, oldest first.
func (s *Store) ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.Attempt, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.User != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, cfg.User)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT id, user_id, mode, outcome, similarity, total_time, average_press_time, key_count, created_at
		FROM attempts
		WHERE %s
		ORDER BY created_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Errorf("query attempts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var attempts []model.Attempt
	for rows.Next() {
		var (
			a         model.Attempt
			mode      string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &mode, &a.Outcome, &a.Similarity, &a.TotalTime, &a.AveragePressTime, &a.KeyCount, &createdAt); err != nil {
			return nil, xerrors.Errorf("scan attempt: %w", err)
		}
		a.Mode = model.Mode(mode)
		parsed, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, xerrors.Errorf("parse created_at: %w", err)
		}
		a.CreatedAt = parsed
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(attempts) > cfg.Last {
		attempts = attempts[len(attempts)-cfg.Last:]
	}
	return attempts, nil
}
