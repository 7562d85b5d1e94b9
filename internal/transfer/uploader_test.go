package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/tencos/internal/auth"
	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/transport"
)

// fakeCOS emulates the subset of the service the uploader talks to: simple
// PUT, initiate, part PUT, complete and abort.
type fakeCOS struct {
	mu sync.Mutex

	simpleBody    []byte
	simpleHeaders http.Header

	initiated       bool
	initiateHeaders http.Header
	uploadID        string

	parts map[int][]byte

	completeBody []byte
	aborted      bool
	deleted      bool

	failInitiate bool
	failPart     int
	failComplete bool
	omitETag     bool
	emptyInitXML bool
}

func newFakeCOS() *fakeCOS {
	return &fakeCOS{uploadID: "upload-abc123", parts: make(map[int][]byte)}
}

func (f *fakeCOS) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		query := r.URL.Query()
		body, _ := io.ReadAll(r.Body)

		switch {
		case r.Method == http.MethodPost && query.Has("uploads"):
			if f.failInitiate {
				http.Error(w, "injected initiate failure", http.StatusServiceUnavailable)
				return
			}
			f.initiated = true
			f.initiateHeaders = r.Header.Clone()
			w.Header().Set("Content-Type", "application/xml")
			if f.emptyInitXML {
				fmt.Fprint(w, `<InitiateMultipartUploadResult></InitiateMultipartUploadResult>`)
				return
			}
			fmt.Fprintf(w, `<InitiateMultipartUploadResult><UploadId>%s</UploadId></InitiateMultipartUploadResult>`, f.uploadID)

		case r.Method == http.MethodPut && query.Has("partNumber"):
			number, _ := strconv.Atoi(query.Get("partNumber"))
			if f.failPart == number {
				http.Error(w, "injected part failure", http.StatusInternalServerError)
				return
			}
			f.parts[number] = body
			if !f.omitETag {
				w.Header().Set("Etag", fmt.Sprintf(`"etag-%d"`, number))
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && query.Has("uploadId"):
			if f.failComplete {
				http.Error(w, "injected complete failure", http.StatusConflict)
				return
			}
			f.completeBody = body
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodDelete && query.Has("uploadId"):
			f.aborted = true
			w.WriteHeader(http.StatusNoContent)

		case r.Method == http.MethodDelete:
			f.deleted = true
			w.WriteHeader(http.StatusNoContent)

		case r.Method == http.MethodHead:
			w.Header().Set("X-Cos-Meta-Origin", "unit-test")
			w.Header().Set("Etag", `"head-etag"`)
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut:
			f.simpleBody = body
			f.simpleHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)

		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	})
}

// assembled returns the part bodies concatenated in part-number order.
func (f *fakeCOS) assembled() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	numbers := make([]int, 0, len(f.parts))
	for n := range f.parts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var buf bytes.Buffer
	for _, n := range numbers {
		buf.Write(f.parts[n])
	}
	return buf.Bytes()
}

// memJournal records journal calls for assertions.
type memJournal struct {
	mu       sync.Mutex
	recorded []domain.UploadSession
	states   map[string]domain.SessionState
}

func newMemJournal() *memJournal {
	return &memJournal{states: make(map[string]domain.SessionState)}
}

func (j *memJournal) Record(_ context.Context, s *domain.UploadSession) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recorded = append(j.recorded, *s)
	j.states[s.ID] = s.State
	return nil
}

func (j *memJournal) UpdateState(_ context.Context, id string, state domain.SessionState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states[id] = state
	return nil
}

func (j *memJournal) List(context.Context) ([]domain.UploadSession, error)      { return nil, nil }
func (j *memJournal) ListStale(context.Context) ([]domain.UploadSession, error) { return nil, nil }
func (j *memJournal) Close() error                                              { return nil }

func (j *memJournal) stateOf(id string) domain.SessionState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.states[id]
}

func newTestUploader(t *testing.T, server *httptest.Server, cfg Config) *Uploader {
	t.Helper()

	endpoint, err := domain.NewEndpoint("ap-guangzhou", "bkt-1250000000")
	require.NoError(t, err)

	cfg.Executor = transport.NewExecutor(transport.Config{
		Endpoint:   endpoint,
		Signer:     auth.NewSigner(domain.Credentials{SecretID: "ak", SecretKey: "sk"}),
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
		BaseURL:    server.URL,
	})
	cfg.Logger = zerolog.Nop()
	return NewUploader(cfg)
}

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()

	body := make([]byte, size)
	_, err := rand.Read(body)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return path, body
}

func TestUpload_SimpleRouteAtThreshold(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 1024, PartSize: 512})

	path, body := writeTempFile(t, 1024)
	url, err := u.Upload(context.Background(), path, "docs/exact.bin", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://bkt-1250000000.cos.ap-guangzhou.myqcloud.com/docs/exact.bin", url)
	assert.Equal(t, body, fake.simpleBody)
	assert.False(t, fake.initiated, "a file of exactly the threshold size must not go multipart")
	assert.NotEmpty(t, fake.simpleHeaders.Get("Content-Type"))
	assert.NotEmpty(t, fake.simpleHeaders.Get("Authorization"))
}

func TestUpload_MultipartOneByteOverThreshold(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 1024, PartSize: 512})

	path, body := writeTempFile(t, 1025)
	url, err := u.Upload(context.Background(), path, "docs/over.bin", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://bkt-1250000000.cos.ap-guangzhou.myqcloud.com/docs/over.bin", url)
	assert.True(t, fake.initiated)
	assert.Len(t, fake.parts, 3)
	assert.Len(t, fake.parts[3], 1, "final part carries the remainder byte")
	assert.Equal(t, body, fake.assembled())
	assert.False(t, fake.aborted)
}

func TestUpload_MultipartConcurrentManifestOrdered(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	jrnl := newMemJournal()
	u := newTestUploader(t, server, Config{
		Threshold:   256,
		PartSize:    256,
		Concurrency: 4,
		Journal:     jrnl,
	})

	path, body := writeTempFile(t, 256*7+13)
	_, err := u.Upload(context.Background(), path, "docs/big.bin", nil)
	require.NoError(t, err)

	assert.Equal(t, body, fake.assembled())

	var manifest struct {
		Parts []struct {
			PartNumber int    `xml:"PartNumber"`
			ETag       string `xml:"ETag"`
		} `xml:"Part"`
	}
	require.NoError(t, xml.Unmarshal(fake.completeBody, &manifest))
	require.Len(t, manifest.Parts, 8)
	for i, part := range manifest.Parts {
		assert.Equal(t, i+1, part.PartNumber, "manifest must ascend regardless of completion order")
		assert.Equal(t, fmt.Sprintf(`"etag-%d"`, i+1), part.ETag)
	}

	assert.Equal(t, domain.SessionStateCompleted, jrnl.stateOf(fake.uploadID))
}

func TestUpload_PartFailureAborts(t *testing.T) {
	fake := newFakeCOS()
	fake.failPart = 2
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	jrnl := newMemJournal()
	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100, Journal: jrnl})

	path, _ := writeTempFile(t, 300)
	_, err := u.Upload(context.Background(), path, "docs/fail.bin", nil)
	require.Error(t, err)

	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusInternalServerError, protoErr.StatusCode)

	assert.True(t, fake.aborted, "a failed part must trigger a best-effort abort")
	assert.Nil(t, fake.completeBody)
	assert.Equal(t, domain.SessionStateAborted, jrnl.stateOf(fake.uploadID))
}

func TestUpload_CompleteFailureAborts(t *testing.T) {
	fake := newFakeCOS()
	fake.failComplete = true
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100})

	path, _ := writeTempFile(t, 150)
	_, err := u.Upload(context.Background(), path, "docs/fail.bin", nil)
	require.Error(t, err)

	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.True(t, fake.aborted)
}

func TestUpload_MissingETagAborts(t *testing.T) {
	fake := newFakeCOS()
	fake.omitETag = true
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100})

	path, _ := writeTempFile(t, 150)
	_, err := u.Upload(context.Background(), path, "docs/noetag.bin", nil)
	require.ErrorIs(t, err, domain.ErrETagMissing)
	assert.True(t, fake.aborted)
}

func TestUpload_InitiateFailureStopsOrchestration(t *testing.T) {
	fake := newFakeCOS()
	fake.failInitiate = true
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100})

	path, _ := writeTempFile(t, 150)
	_, err := u.Upload(context.Background(), path, "docs/init.bin", nil)
	require.Error(t, err)

	var protoErr *domain.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusServiceUnavailable, protoErr.StatusCode)
	assert.Empty(t, fake.parts, "no part may be sent after a failed initiation")
	assert.False(t, fake.aborted)
}

func TestUpload_InitiateWithoutUploadID(t *testing.T) {
	fake := newFakeCOS()
	fake.emptyInitXML = true
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100})

	path, _ := writeTempFile(t, 150)
	_, err := u.Upload(context.Background(), path, "docs/noid.bin", nil)
	require.ErrorIs(t, err, domain.ErrUploadIDMissing)
	assert.False(t, fake.aborted, "nothing to abort before an upload id exists")
}

func TestUpload_MetadataOnBothRoutes(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{Threshold: 100, PartSize: 100})
	metadata := map[string]string{"origin": "unit-test"}

	simplePath, _ := writeTempFile(t, 50)
	_, err := u.Upload(context.Background(), simplePath, "docs/small.bin", metadata)
	require.NoError(t, err)
	assert.Equal(t, "unit-test", fake.simpleHeaders.Get("x-cos-meta-origin"))

	bigPath, _ := writeTempFile(t, 150)
	_, err = u.Upload(context.Background(), bigPath, "docs/large.bin", metadata)
	require.NoError(t, err)
	assert.Equal(t, "unit-test", fake.initiateHeaders.Get("x-cos-meta-origin"))
}

func TestUpload_EmptyKey(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{})

	path, _ := writeTempFile(t, 10)
	_, err := u.Upload(context.Background(), path, "", nil)
	require.ErrorIs(t, err, domain.ErrEmptyObjectKey)
}

func TestUpload_MissingFile(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{})

	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "absent"), "docs/x", nil)
	require.Error(t, err)
	assert.False(t, fake.initiated)
}

func TestHead_ExtractsMetadata(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{})

	metadata, err := u.Head(context.Background(), "docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"origin": "unit-test"}, metadata)
}

func TestDelete(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	u := newTestUploader(t, server, Config{})

	require.NoError(t, u.Delete(context.Background(), "docs/report.pdf"))
	assert.True(t, fake.deleted)
}

func TestAbort(t *testing.T) {
	fake := newFakeCOS()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	jrnl := newMemJournal()
	u := newTestUploader(t, server, Config{Journal: jrnl})

	require.NoError(t, u.Abort(context.Background(), "docs/stale.bin", "upload-abc123"))
	assert.True(t, fake.aborted)
	assert.Equal(t, domain.SessionStateAborted, jrnl.stateOf("upload-abc123"))
}
