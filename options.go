package tencos

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/cache"
	memorycache "github.com/prn-tf/tencos/internal/cache/memory"
	"github.com/prn-tf/tencos/internal/journal"
	"github.com/prn-tf/tencos/internal/metrics"
)

// Option customizes a Client beyond its required Config.
type Option func(*options)

type options struct {
	logger      *zerolog.Logger
	httpClient  *http.Client
	baseURL     string
	threshold   int64
	partSize    int64
	concurrency int
	signExpiry  time.Duration
	journal     journal.Journal
	cache       cache.Cache
	cacheTTL    time.Duration
	metrics     *metrics.Collector
	clock       func() time.Time
	driver      objectDriver
}

// withDriver swaps the wire protocol implementation. Reserved for the
// config loader's s3 driver selection.
func withDriver(d objectDriver) Option {
	return func(o *options) { o.driver = d }
}

// WithLogger sets the logger for the client and its components. The default
// discards all output.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithHTTPClient sets the HTTP client used for all exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBaseURL redirects requests to a gateway or test server instead of the
// bucket's virtual-host URL. Signing is unaffected.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithThreshold sets the file size above which uploads go multipart.
func WithThreshold(threshold int64) Option {
	return func(o *options) { o.threshold = threshold }
}

// WithPartSize sets the byte range each multipart part covers.
func WithPartSize(partSize int64) Option {
	return func(o *options) { o.partSize = partSize }
}

// WithConcurrency bounds in-flight part uploads. The default is sequential.
func WithConcurrency(concurrency int) Option {
	return func(o *options) { o.concurrency = concurrency }
}

// WithSignExpiry sets the validity window of each request signature.
func WithSignExpiry(expiry time.Duration) Option {
	return func(o *options) { o.signExpiry = expiry }
}

// WithJournal records multipart sessions so orphans can be found and
// aborted after a crash.
func WithJournal(j journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithCache serves object metadata from the cache for up to ttl before
// asking the service again. A zero ttl caches indefinitely.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithMetrics enables Prometheus collection on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the time source used for signing windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithMemoryCache caches object metadata in process for up to ttl.
func WithMemoryCache(ttl time.Duration) Option {
	return func(o *options) {
		o.cache = memorycache.NewCache()
		o.cacheTTL = ttl
	}
}

