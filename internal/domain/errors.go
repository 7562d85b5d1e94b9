// Package domain contains the core entities for the tencos transfer client.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent client-side rule violations and remote
// protocol violations. They are distinct from plain transport errors
// (connection refused, DNS failure, etc.), which are surfaced as-is.

var (
	// ===========================================
	// Configuration Errors
	// ===========================================

	// ErrMissingSecretID indicates the access key id was not provided.
	ErrMissingSecretID = errors.New("missing secret id")

	// ErrMissingSecretKey indicates the secret key was not provided.
	ErrMissingSecretKey = errors.New("missing secret key")

	// ErrMissingRegion indicates the COS region was not provided.
	ErrMissingRegion = errors.New("missing region")

	// ErrMissingBucket indicates the bucket name was not provided.
	ErrMissingBucket = errors.New("missing bucket")

	// ===========================================
	// Object Errors
	// ===========================================

	// ErrEmptyObjectKey indicates an empty object key was supplied.
	ErrEmptyObjectKey = errors.New("object key must not be empty")

	// ===========================================
	// Signing Errors
	// ===========================================

	// ErrInvalidSignPath indicates the path to sign does not start with "/".
	ErrInvalidSignPath = errors.New("sign path must start with /")

	// ErrDuplicateSignedKey indicates two header or parameter names collide
	// after lower-casing, which would make the canonical form ambiguous.
	ErrDuplicateSignedKey = errors.New("duplicate header or parameter name after lower-casing")

	// ===========================================
	// Multipart Upload Errors
	// ===========================================

	// ErrUploadIDMissing indicates the initiate response carried no UploadId.
	ErrUploadIDMissing = errors.New("initiate response missing upload id")

	// ErrETagMissing indicates a successful part response carried no ETag header.
	ErrETagMissing = errors.New("part response missing ETag header")

	// ErrPartNumberOverflow indicates the part counter would wrap.
	ErrPartNumberOverflow = errors.New("part number overflow")

	// ErrNoParts indicates a completion manifest with no parts.
	ErrNoParts = errors.New("no parts to complete")

	// ErrPartOrder indicates part records are not strictly ascending and
	// contiguous from 1.
	ErrPartOrder = errors.New("part numbers must be contiguous and ascending from 1")

	// ===========================================
	// Local I/O Errors
	// ===========================================

	// ErrShortRead indicates a part byte range could not be read in full.
	ErrShortRead = errors.New("short read while extracting part range")
)

// ProtocolError represents a non-2xx response from the storage service, or
// a 2xx response missing a required field. The response body is kept as
// diagnostic text.
type ProtocolError struct {
	// Op is the operation that failed (e.g. "PutObject", "UploadPart").
	Op string

	// StatusCode is the HTTP status returned by the service.
	StatusCode int

	// Body is the raw response body, truncated for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

// NewProtocolError creates a ProtocolError, truncating the body to a
// reasonable diagnostic length.
func NewProtocolError(op string, statusCode int, body []byte) *ProtocolError {
	const maxBody = 2048
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &ProtocolError{
		Op:         op,
		StatusCode: statusCode,
		Body:       string(body),
	}
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
