// Package transfer drives whole-object uploads: it picks the simple or
// multipart route by size, runs the initiate/upload-parts/complete sequence,
// and assembles the completion manifest.
package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/journal"
	"github.com/prn-tf/tencos/internal/metrics"
	"github.com/prn-tf/tencos/internal/transport"
)

// MultipartThreshold is the file size above which uploads switch to the
// multipart route. Files of exactly this size still take the simple route.
const MultipartThreshold = 5 * 1024 * 1024

// DefaultPartSize is the byte range each part covers unless configured.
const DefaultPartSize = 5 * 1024 * 1024

// Route labels for metrics and logs.
const (
	routeSimple    = "simple"
	routeMultipart = "multipart"
)

// Config contains the dependencies for an Uploader.
type Config struct {
	Executor *transport.Executor

	// Journal may be nil; sessions then go unrecorded.
	Journal journal.Journal

	Logger  zerolog.Logger
	Metrics *metrics.Collector

	// Threshold defaults to MultipartThreshold.
	Threshold int64

	// PartSize defaults to DefaultPartSize.
	PartSize int64

	// Concurrency bounds in-flight part uploads; defaults to 1, the
	// strictly sequential behavior.
	Concurrency int
}

// Uploader orchestrates uploads against one bucket endpoint. Immutable
// after construction and safe for concurrent use.
type Uploader struct {
	exec        *transport.Executor
	journal     journal.Journal
	logger      zerolog.Logger
	metrics     *metrics.Collector
	threshold   int64
	partSize    int64
	concurrency int
}

// NewUploader creates an Uploader from its config.
func NewUploader(cfg Config) *Uploader {
	jrnl := cfg.Journal
	if jrnl == nil {
		jrnl = journal.NewNoop()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = MultipartThreshold
	}
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Uploader{
		exec:        cfg.Executor,
		journal:     jrnl,
		logger:      cfg.Logger.With().Str("component", "transfer").Logger(),
		metrics:     cfg.Metrics,
		threshold:   threshold,
		partSize:    partSize,
		concurrency: concurrency,
	}
}

// Upload sends the file at localPath to objectKey, choosing the route by
// file size, and returns the object's canonical URL. Metadata entries become
// x-cos-meta-* headers on the object.
func (u *Uploader) Upload(ctx context.Context, localPath, objectKey string, metadata map[string]string) (string, error) {
	if objectKey == "" {
		return "", domain.ErrEmptyObjectKey
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	if info.Size() > u.threshold {
		url, err := u.multipartUpload(ctx, localPath, objectKey, info.Size(), metadata)
		u.metrics.ObserveUpload(routeMultipart, err)
		return url, err
	}

	url, err := u.simpleUpload(ctx, localPath, objectKey, metadata)
	u.metrics.ObserveUpload(routeSimple, err)
	return url, err
}

// Abort terminates a multipart session on the service and marks it aborted
// in the journal.
func (u *Uploader) Abort(ctx context.Context, objectKey, uploadID string) error {
	_, err := u.exec.Do(ctx, transport.Request{
		Op:     "AbortMultipartUpload",
		Method: http.MethodDelete,
		Key:    objectKey,
		Params: map[string]string{"uploadId": uploadID},
	})
	if err != nil {
		return err
	}
	u.markSession(ctx, uploadID, domain.SessionStateAborted)

	u.logger.Info().
		Str("key", objectKey).
		Str("upload_id", uploadID).
		Msg("multipart upload aborted")
	return nil
}

// =============================================================================
// Simple Route
// =============================================================================

// simpleUpload sends the whole file body in one PUT.
func (u *Uploader) simpleUpload(ctx context.Context, localPath, objectKey string, metadata map[string]string) (string, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	headers := transport.MetadataHeaders(metadata)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	headers["Content-Type"] = detectContentType(localPath)

	_, err = u.exec.Do(ctx, transport.Request{
		Op:      "PutObject",
		Method:  http.MethodPut,
		Key:     objectKey,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return "", err
	}
	u.metrics.AddUploadedBytes(int64(len(body)))

	url := u.exec.Endpoint().ObjectURL(objectKey)
	u.logger.Info().
		Str("key", objectKey).
		Int("size", len(body)).
		Str("route", routeSimple).
		Msg("object uploaded")
	return url, nil
}

// =============================================================================
// Multipart Route
// =============================================================================

// multipartUpload runs the initiate / upload-parts / complete sequence.
// Any failure after initiation triggers a best-effort abort of the remote
// session; the originating error is always the one returned.
func (u *Uploader) multipartUpload(ctx context.Context, localPath, objectKey string, fileSize int64, metadata map[string]string) (string, error) {
	spans, err := PlanParts(fileSize, u.partSize)
	if err != nil {
		return "", err
	}

	uploadID, err := u.initiate(ctx, objectKey, metadata)
	if err != nil {
		return "", err
	}
	u.recordSession(ctx, domain.NewUploadSession(uploadID, objectKey))

	u.logger.Info().
		Str("key", objectKey).
		Str("upload_id", uploadID).
		Int64("size", fileSize).
		Int("parts", len(spans)).
		Msg("multipart upload initiated")

	parts, err := u.uploadParts(ctx, localPath, objectKey, uploadID, spans)
	if err != nil {
		u.bestEffortAbort(ctx, objectKey, uploadID)
		return "", err
	}

	if err := u.complete(ctx, objectKey, uploadID, parts); err != nil {
		u.bestEffortAbort(ctx, objectKey, uploadID)
		return "", err
	}
	u.markSession(ctx, uploadID, domain.SessionStateCompleted)

	url := u.exec.Endpoint().ObjectURL(objectKey)
	u.logger.Info().
		Str("key", objectKey).
		Str("upload_id", uploadID).
		Int("parts", len(parts)).
		Msg("multipart upload completed")
	return url, nil
}

// initiate starts a session and returns the service-assigned upload id.
func (u *Uploader) initiate(ctx context.Context, objectKey string, metadata map[string]string) (string, error) {
	resp, err := u.exec.Do(ctx, transport.Request{
		Op:      "InitiateMultipartUpload",
		Method:  http.MethodPost,
		Key:     objectKey,
		Params:  map[string]string{"uploads": ""},
		Headers: transport.MetadataHeaders(metadata),
	})
	if err != nil {
		return "", err
	}
	return parseInitiateResult(resp.Body)
}

// uploadParts sends every span and collects the part records. Spans run on
// a bounded worker group; results land in per-span slots, so no ordering is
// assumed about which upload finishes first.
func (u *Uploader) uploadParts(ctx context.Context, localPath, objectKey, uploadID string, spans []PartSpan) ([]domain.PartRecord, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	records := make([]domain.PartRecord, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for _, span := range spans {
		g.Go(func() error {
			record, err := u.uploadPart(gctx, file, objectKey, uploadID, span)
			u.metrics.ObservePart(err)
			if err != nil {
				return err
			}
			records[span.Number-1] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The slots are already ascending by construction; sorting and
	// validating keeps the manifest invariant independent of how the
	// records were gathered.
	domain.SortParts(records)
	if err := domain.ValidateParts(records); err != nil {
		return nil, err
	}
	return records, nil
}

// uploadPart reads one span's exact byte range and PUTs it.
func (u *Uploader) uploadPart(ctx context.Context, file *os.File, objectKey, uploadID string, span PartSpan) (domain.PartRecord, error) {
	buf := make([]byte, span.Size)
	n, err := file.ReadAt(buf, span.Offset)
	if int64(n) != span.Size {
		return domain.PartRecord{}, fmt.Errorf("%w: part %d got %d of %d bytes",
			domain.ErrShortRead, span.Number, n, span.Size)
	}
	_ = err // a full read at EOF is still a full read

	resp, err := u.exec.Do(ctx, transport.Request{
		Op:     "UploadPart",
		Method: http.MethodPut,
		Key:    objectKey,
		Params: map[string]string{
			"partNumber": fmt.Sprintf("%d", span.Number),
			"uploadId":   uploadID,
		},
		Body: buf,
	})
	if err != nil {
		return domain.PartRecord{}, fmt.Errorf("part %d: %w", span.Number, err)
	}

	etag := resp.Header.Get("Etag")
	if etag == "" {
		return domain.PartRecord{}, fmt.Errorf("part %d: %w", span.Number, domain.ErrETagMissing)
	}
	u.metrics.AddUploadedBytes(span.Size)

	u.logger.Debug().
		Str("upload_id", uploadID).
		Int("part_number", span.Number).
		Int64("size", span.Size).
		Msg("part uploaded")

	return domain.PartRecord{PartNumber: span.Number, ETag: etag}, nil
}

// complete submits the ascending manifest. A rejection here is fatal for
// the whole upload; there is no partial completion.
func (u *Uploader) complete(ctx context.Context, objectKey, uploadID string, parts []domain.PartRecord) error {
	body, err := buildCompleteManifest(parts)
	if err != nil {
		return err
	}

	_, err = u.exec.Do(ctx, transport.Request{
		Op:      "CompleteMultipartUpload",
		Method:  http.MethodPost,
		Key:     objectKey,
		Params:  map[string]string{"uploadId": uploadID},
		Headers: map[string]string{"Content-Type": "application/xml"},
		Body:    body,
	})
	return err
}

// bestEffortAbort tries to free the remote session after a failure. The
// abort's own error is only logged so the original failure stays visible.
func (u *Uploader) bestEffortAbort(ctx context.Context, objectKey, uploadID string) {
	if err := u.Abort(ctx, objectKey, uploadID); err != nil {
		u.logger.Warn().Err(err).
			Str("key", objectKey).
			Str("upload_id", uploadID).
			Msg("failed to abort multipart session; it may linger on the service")
	}
}

// recordSession journals a new session; journal trouble is only logged.
func (u *Uploader) recordSession(ctx context.Context, session *domain.UploadSession) {
	if err := u.journal.Record(ctx, session); err != nil {
		u.logger.Warn().Err(err).Str("upload_id", session.ID).Msg("failed to journal session")
	}
}

// markSession updates a journaled session's state; journal trouble is only
// logged.
func (u *Uploader) markSession(ctx context.Context, uploadID string, state domain.SessionState) {
	if err := u.journal.UpdateState(ctx, uploadID, state); err != nil && err != journal.ErrSessionNotFound {
		u.logger.Warn().Err(err).Str("upload_id", uploadID).Msg("failed to update journaled session")
	}
}
