// Package postgres provides a session journal backed by PostgreSQL, for
// fleets of uploaders that share one journal.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	upload_id    TEXT PRIMARY KEY,
	object_key   TEXT NOT NULL,
	state        TEXT NOT NULL,
	initiated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_state ON upload_sessions(state);
`

// Journal implements journal.Journal on a pgx connection pool.
type Journal struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to PostgreSQL with the given DSN and ensures the schema.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Journal, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create journal pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	logger.Info().Msg("session journal connected to PostgreSQL")

	return &Journal{
		pool:   pool,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Record stores a freshly initiated session.
func (j *Journal) Record(ctx context.Context, session *domain.UploadSession) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO upload_sessions (upload_id, object_key, state, initiated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (upload_id) DO UPDATE SET state = EXCLUDED.state`,
		session.ID, session.Key, string(session.State), session.InitiatedAt,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// UpdateState transitions a journaled session to a new state.
func (j *Journal) UpdateState(ctx context.Context, uploadID string, state domain.SessionState) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE upload_sessions SET state = $1 WHERE upload_id = $2`,
		string(state), uploadID,
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
		WHERE state = $1
		ORDER BY initiated_at DESC`,
		string(domain.SessionStateInitiated))
}

// Close releases the pool.
func (j *Journal) Close() error {
	j.pool.Close()
	return nil
}

// query runs a session select and scans the rows.
func (j *Journal) query(ctx context.Context, q string, args ...any) ([]domain.UploadSession, error) {
	rows, err := j.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.UploadSession
	for rows.Next() {
		var s domain.UploadSession
		var state string
		if err := rows.Scan(&s.ID, &s.Key, &state, &s.InitiatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.State = domain.SessionState(state)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

var _ journal.Journal = (*Journal)(nil)
