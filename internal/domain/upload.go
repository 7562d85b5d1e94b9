// Package domain contains the core entities for the tencos transfer client.
package domain

import (
	"sort"
	"time"
)

// SessionState represents the lifecycle state of a multipart upload session.
type SessionState string

const (
	// SessionStateInitiated indicates the session exists on the service and
	// no completion or abort has happened yet.
	SessionStateInitiated SessionState = "Initiated"

	// SessionStateCompleted indicates the completion manifest was accepted.
	SessionStateCompleted SessionState = "Completed"

	// SessionStateAborted indicates the session was aborted on the service.
	SessionStateAborted SessionState = "Aborted"
)

// MaxPartNumber is the highest part number the service accepts.
const MaxPartNumber = 10000

// UploadSession correlates all parts of one multipart upload. The ID is
// assigned by the service on initiation and is opaque to the client.
type UploadSession struct {
	// ID is the service-assigned upload id.
	ID string

	// Key is the object key the session will materialize as.
	Key string

	// InitiatedAt is when the session was initiated, client clock.
	InitiatedAt time.Time

	// State is the current lifecycle state as known to this client.
	State SessionState
}

// NewUploadSession creates a session record for a freshly initiated upload.
func NewUploadSession(id, key string) *UploadSession {
	return &UploadSession{
		ID:          id,
		Key:         key,
		InitiatedAt: time.Now().UTC(),
		State:       SessionStateInitiated,
	}
}

// PartRecord pairs a part number with the integrity token the service
// returned for that part.
type PartRecord struct {
	// PartNumber is the 1-based sequence number of the part.
	PartNumber int

	// ETag is the integrity token returned by the service.
	ETag string
}

// SortParts orders part records ascending by part number. The completion
// manifest must list parts in ascending order no matter in which order the
// uploads finished.
func SortParts(parts []PartRecord) {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
}

// ValidateParts checks that part numbers are contiguous and ascending from 1
// with no gaps or duplicates. Records must already be sorted.
func ValidateParts(parts []PartRecord) error {
	if len(parts) == 0 {
		return ErrNoParts
	}
	for i, p := range parts {
		if p.PartNumber != i+1 {
			return ErrPartOrder
		}
	}
	return nil
}
