// Package sqlite provides an embedded session journal backed by SQLite.
// It uses modernc.org/sqlite, a pure Go driver, so single-binary deployments
// need no CGO.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	upload_id    TEXT PRIMARY KEY,
	object_key   TEXT NOT NULL,
	state        TEXT NOT NULL,
	initiated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_state ON upload_sessions(state);
`

// Journal implements journal.Journal on a local SQLite file.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates or opens the journal database at path. Use ":memory:" for an
// ephemeral journal in tests.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Journal, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("session journal opened")

	return &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Record stores a freshly initiated session.
func (j *Journal) Record(ctx context.Context, session *domain.UploadSession) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (upload_id, object_key, state, initiated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(upload_id) DO UPDATE SET state = excluded.state`,
		session.ID, session.Key, string(session.State), session.InitiatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// UpdateState transitions a journaled session to a new state.
func (j *Journal) UpdateState(ctx context.Context, uploadID string, state domain.SessionState) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE upload_sessions SET state = ? WHERE upload_id = ?`,
		string(state), uploadID,
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return journal.ErrSessionNotFound
	}
	return nil
}

// List returns all journaled sessions, most recent first.
func (j *Journal) List(ctx context.Context) ([]domain.UploadSession, error) {
	return j.query(ctx, `
		SELECT upload_id, object_key, state, initiated_at
		FROM upload_sessions
		ORDER BY initiated_at DESC`)
}

// ListStale returns sessions still marked initiated, most recent first.
func (j *Journal) ListStale(ctx context.Context) ([]domain.UploadSession, error) {
	return j.query(ctx, `
		SELECT upload_id, object_key, state, initiated_at
		FROM upload_sessions
		WHERE state = ?
		ORDER BY initiated_at DESC`,
		string(domain.SessionStateInitiated))
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// query runs a session select and scans the rows.
func (j *Journal) query(ctx context.Context, q string, args ...any) ([]domain.UploadSession, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.UploadSession
	for rows.Next() {
		var s domain.UploadSession
		var state, initiated string
		if err := rows.Scan(&s.ID, &s.Key, &state, &initiated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.State = domain.SessionState(state)
		if t, err := time.Parse(time.RFC3339Nano, initiated); err == nil {
			s.InitiatedAt = t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

var _ journal.Journal = (*Journal)(nil)
