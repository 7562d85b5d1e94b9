// Package transport performs single HTTP exchanges against the COS endpoint.
// One call, one request, one signature; retries are the caller's business.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/auth"
	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/metrics"
)

// RequestIDHeader carries a client-generated id for correlating logs.
const RequestIDHeader = "x-cos-client-request-id"

// Request describes one outgoing exchange.
type Request struct {
	// Op names the logical operation for errors, logs and metrics.
	Op string

	// Method is the HTTP method.
	Method string

	// Key is the target object key.
	Key string

	// Params are the query parameters. They are sent on the URL and signed.
	Params map[string]string

	// Headers are additional headers (content type, metadata). Host,
	// Content-Length and the request id are added by the executor.
	Headers map[string]string

	// Body is the request payload, nil for HEAD/DELETE/initiate.
	Body []byte
}

// Response is the outcome of a successful (2xx) exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Config contains the dependencies for an Executor.
type Config struct {
	Endpoint domain.Endpoint
	Signer   *auth.Signer

	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client

	// Expiry is the signing window per request; defaults to auth.DefaultExpiry.
	Expiry time.Duration

	Logger zerolog.Logger

	// Metrics may be nil to disable collection.
	Metrics *metrics.Collector

	// BaseURL overrides the virtual-host URL. Signing still uses the
	// endpoint's Host; the override only redirects the wire target, which
	// tests and private gateways rely on.
	BaseURL string
}

// Executor issues signed requests against one bucket endpoint. It is
// immutable after construction and safe for concurrent use.
type Executor struct {
	endpoint domain.Endpoint
	signer   *auth.Signer
	client   *http.Client
	expiry   time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Collector
	baseURL  string
}

// NewExecutor creates an Executor from its config.
func NewExecutor(cfg Config) *Executor {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = auth.DefaultExpiry
	}
	return &Executor{
		endpoint: cfg.Endpoint,
		signer:   cfg.Signer,
		client:   client,
		expiry:   expiry,
		logger:   cfg.Logger.With().Str("component", "transport").Logger(),
		metrics:  cfg.Metrics,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// Endpoint returns the endpoint identity the executor is bound to.
func (e *Executor) Endpoint() domain.Endpoint {
	return e.endpoint
}

// Do performs one exchange. Any 2xx status is success; anything else
// returns a *domain.ProtocolError carrying the response body. Transport
// failures are returned as-is.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Key == "" {
		return nil, domain.ErrEmptyObjectKey
	}

	requestID := uuid.NewString()

	// The signed header map must be exactly what goes on the wire.
	headers := make(map[string]string, len(req.Headers)+3)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers["Host"] = e.endpoint.Host()
	headers[RequestIDHeader] = requestID
	if req.Body != nil {
		headers["Content-Length"] = strconv.Itoa(len(req.Body))
	}

	authorization, err := e.signer.Sign(req.Method, e.endpoint.ObjectPath(req.Key), req.Params, headers, e.expiry)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", req.Op, err)
	}

	httpReq, err := e.buildHTTPRequest(ctx, req, headers, authorization)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Op, err)
	}

	start := time.Now()
	httpResp, err := e.client.Do(httpReq)
	e.metrics.ObserveRequest(req.Op, time.Since(start), err)
	if err != nil {
		e.logger.Error().Err(err).
			Str("op", req.Op).
			Str("request_id", requestID).
			Msg("transport failure")
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", req.Op, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		e.logger.Error().
			Str("op", req.Op).
			Str("key", req.Key).
			Str("request_id", requestID).
			Int("status", httpResp.StatusCode).
			Msg("request rejected")
		return nil, domain.NewProtocolError(req.Op, httpResp.StatusCode, body)
	}

	e.logger.Debug().
		Str("op", req.Op).
		Str("key", req.Key).
		Str("request_id", requestID).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// buildHTTPRequest assembles the wire request from the signed maps.
func (e *Executor) buildHTTPRequest(ctx context.Context, req Request, headers map[string]string, authorization string) (*http.Request, error) {
	rawURL := e.endpoint.ObjectURL(req.Key)
	if e.baseURL != "" {
		rawURL = e.baseURL + e.endpoint.ObjectPath(req.Key)
	}
	if qs := encodeQuery(req.Params); qs != "" {
		rawURL += "?" + qs
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), rawURL, body)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		switch strings.ToLower(k) {
		case "host":
			httpReq.Host = v
		case "content-length":
			// Set via the request field, not the header map.
		default:
			// Direct map assignment preserves the caller's header casing,
			// which matters for user metadata names.
			httpReq.Header[k] = []string{v}
		}
	}
	httpReq.Header.Set("Authorization", authorization)
	if req.Body != nil {
		httpReq.ContentLength = int64(len(req.Body))
	}

	return httpReq, nil
}

// encodeQuery renders params as a query string. Valueless markers like
// "uploads" stay bare, matching the service's documented request shapes.
func encodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := params[k]
		if v == "" {
			parts = append(parts, url.QueryEscape(k))
			continue
		}
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	return strings.Join(parts, "&")
}

// MetadataHeaders flattens user metadata into provider-prefixed headers.
// The supplied key casing is preserved on the wire.
func MetadataHeaders(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	headers := make(map[string]string, len(metadata))
	for k, v := range metadata {
		headers[domain.MetaHeaderPrefix+k] = v
	}
	return headers
}
