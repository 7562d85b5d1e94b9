// Package journal persists multipart upload sessions locally so that
// sessions orphaned by crashes or abandoned uploads can be found and
// aborted later. The journal is advisory: failures degrade to log lines and
// never fail a transfer.
package journal

import (
	"context"
	"errors"

	"github.com/prn-tf/tencos/internal/domain"
)

// ErrSessionNotFound indicates the requested session is not journaled.
var ErrSessionNotFound = errors.New("session not found")

// Journal records the lifecycle of multipart upload sessions.
type Journal interface {
	// Record stores a freshly initiated session.
	Record(ctx context.Context, session *domain.UploadSession) error

	// UpdateState transitions a journaled session to a new state.
	UpdateState(ctx context.Context, uploadID string, state domain.SessionState) error

	// List returns all journaled sessions, most recent first.
	List(ctx context.Context) ([]domain.UploadSession, error)

	// ListStale returns sessions still marked initiated, most recent first.
	// These are candidates for abort.
	ListStale(ctx context.Context) ([]domain.UploadSession, error)

	// Close releases the underlying store.
	Close() error
}

// Noop is a Journal that records nothing. Used when journaling is disabled.
type Noop struct{}

// NewNoop creates a no-op journal.
func NewNoop() Noop { return Noop{} }

// Record implements Journal.
func (Noop) Record(context.Context, *domain.UploadSession) error { return nil }

// UpdateState implements Journal.
func (Noop) UpdateState(context.Context, string, domain.SessionState) error { return nil }

// List implements Journal.
func (Noop) List(context.Context) ([]domain.UploadSession, error) { return nil, nil }

// ListStale implements Journal.
func (Noop) ListStale(context.Context) ([]domain.UploadSession, error) { return nil, nil }

// Close implements Journal.
func (Noop) Close() error { return nil }

var _ Journal = Noop{}
