package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/tencos/internal/auth"
	"github.com/prn-tf/tencos/internal/domain"
)

func testExecutor(t *testing.T, handler http.Handler) (*Executor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoint, err := domain.NewEndpoint("ap-guangzhou", "bkt")
	require.NoError(t, err)

	exec := NewExecutor(Config{
		Endpoint: endpoint,
		Signer:   auth.NewSigner(domain.Credentials{SecretID: "id", SecretKey: "key"}),
		Logger:   zerolog.Nop(),
		BaseURL:  srv.URL,
	})
	return exec, srv
}

func TestExecutor_SignsAndAddsHeaders(t *testing.T) {
	var got *http.Request
	var gotBody int64
	exec, _ := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))

	resp, err := exec.Do(context.Background(), Request{
		Op:     "PutObject",
		Method: "put",
		Key:    "dir/file.txt",
		Headers: map[string]string{
			"Content-Type":    "text/plain",
			"x-cos-meta-User": "alice",
		},
		Body: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, "/dir/file.txt", got.URL.Path)
	assert.Equal(t, "bkt.cos.ap-guangzhou.myqcloud.com", got.Host)
	assert.Equal(t, int64(5), gotBody)
	assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
	assert.Equal(t, "alice", got.Header.Get("x-cos-meta-User"))
	assert.NotEmpty(t, got.Header.Get(RequestIDHeader))

	authz := got.Header.Get("Authorization")
	assert.Contains(t, authz, "q-sign-algorithm=sha1")
	assert.Contains(t, authz, "q-ak=id")
	// Everything sent must be signed, Host and Content-Length included.
	assert.Contains(t, authz, "content-length")
	assert.Contains(t, authz, "content-type")
	assert.Contains(t, authz, "host")
	assert.Contains(t, authz, "x-cos-meta-user")
}

func TestExecutor_QueryParams(t *testing.T) {
	var gotQuery string
	exec, _ := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))

	_, err := exec.Do(context.Background(), Request{
		Op:     "UploadPart",
		Method: "put",
		Key:    "k",
		Params: map[string]string{"partNumber": "3", "uploadId": "u-1"},
		Body:   []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, "partNumber=3&uploadId=u-1", gotQuery)
}

func TestExecutor_BareQueryMarker(t *testing.T) {
	var gotQuery string
	exec, _ := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))

	_, err := exec.Do(context.Background(), Request{
		Op:     "InitiateMultipartUpload",
		Method: "post",
		Key:    "k",
		Params: map[string]string{"uploads": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads", gotQuery)
}

func TestExecutor_Non2xxIsProtocolError(t *testing.T) {
	exec, _ := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<Error><Code>AccessDenied</Code></Error>"))
	}))

	_, err := exec.Do(context.Background(), Request{
		Op:     "DeleteObject",
		Method: "delete",
		Key:    "k",
	})
	require.Error(t, err)

	var pe *domain.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "DeleteObject", pe.Op)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.Contains(t, pe.Body, "AccessDenied")
}

func TestExecutor_EmptyKeyRejected(t *testing.T) {
	exec, _ := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := exec.Do(context.Background(), Request{Op: "HeadObject", Method: "head", Key: ""})
	require.ErrorIs(t, err, domain.ErrEmptyObjectKey)
}

func TestMetadataHeaders(t *testing.T) {
	headers := MetadataHeaders(map[string]string{"User-Id": "7", "source": "sync"})
	assert.Equal(t, map[string]string{
		"x-cos-meta-User-Id": "7",
		"x-cos-meta-source":  "sync",
	}, headers)

	assert.Nil(t, MetadataHeaders(nil))
}
