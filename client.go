// Package tencos is a client for Tencent Cloud Object Storage. It signs
// requests with the provider's sha1 scheme, uploads files over the simple or
// multipart route by size, and exposes head, delete and abort operations.
package tencos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/auth"
	"github.com/prn-tf/tencos/internal/cache"
	memorycache "github.com/prn-tf/tencos/internal/cache/memory"
	rediscache "github.com/prn-tf/tencos/internal/cache/redis"
	"github.com/prn-tf/tencos/internal/config"
	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/journal"
	"github.com/prn-tf/tencos/internal/journal/postgres"
	"github.com/prn-tf/tencos/internal/journal/sqlite"
	"github.com/prn-tf/tencos/internal/metrics"
	"github.com/prn-tf/tencos/internal/s3compat"
	"github.com/prn-tf/tencos/internal/transfer"
	"github.com/prn-tf/tencos/internal/transport"
)

// Config identifies the target bucket and the secret pair that signs
// requests for it.
type Config struct {
	SecretID  string
	SecretKey string
	Region    string
	Bucket    string
}

// Session is a journaled multipart upload session.
type Session struct {
	// ID is the service-assigned upload id.
	ID string

	// Key is the target object key.
	Key string

	// State is "initiated", "completed" or "aborted".
	State string

	// InitiatedAt is when the session was started.
	InitiatedAt time.Time
}

// objectDriver is the wire-protocol seam: the native signed transport and
// the S3-compatible surface both satisfy it.
type objectDriver interface {
	Upload(ctx context.Context, localPath, objectKey string, metadata map[string]string) (string, error)
	Head(ctx context.Context, objectKey string) (map[string]string, error)
	Delete(ctx context.Context, objectKey string) error
	Abort(ctx context.Context, objectKey, uploadID string) error
}

// Client performs object operations against one bucket. Immutable after
// construction and safe for concurrent use.
type Client struct {
	uploader objectDriver
	endpoint domain.Endpoint
	journal  journal.Journal
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// New creates a Client from the given config and options.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	creds := domain.Credentials{SecretID: cfg.SecretID, SecretKey: cfg.SecretKey}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := domain.NewEndpoint(cfg.Region, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if o.logger != nil {
		logger = *o.logger
	}

	signer := auth.NewSigner(creds)
	if o.clock != nil {
		signer = auth.NewSignerWithClock(creds, o.clock)
	}

	executor := transport.NewExecutor(transport.Config{
		Endpoint:   endpoint,
		Signer:     signer,
		HTTPClient: o.httpClient,
		Expiry:     o.signExpiry,
		Logger:     logger,
		Metrics:    o.metrics,
		BaseURL:    o.baseURL,
	})

	jrnl := o.journal
	if jrnl == nil {
		jrnl = journal.NewNoop()
	}

	var uploader objectDriver = transfer.NewUploader(transfer.Config{
		Executor:    executor,
		Journal:     jrnl,
		Logger:      logger,
		Metrics:     o.metrics,
		Threshold:   o.threshold,
		PartSize:    o.partSize,
		Concurrency: o.concurrency,
	})
	if o.driver != nil {
		uploader = o.driver
	}

	return &Client{
		uploader: uploader,
		endpoint: endpoint,
		journal:  jrnl,
		cache:    o.cache,
		cacheTTL: o.cacheTTL,
		metrics:  o.metrics,
		logger:   logger.With().Str("component", "client").Logger(),
	}, nil
}

// FromEnv creates a Client from environment variables and an optional
// config file found on the default search path.
func FromEnv(opts ...Option) (*Client, error) {
	return FromConfigFile("", opts...)
}

// FromConfigFile creates a Client from the given config file, with
// environment variables taking precedence. The journal and cache drivers
// named by the configuration are opened here.
func FromConfigFile(path string, opts ...Option) (*Client, error) {
	appCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := newLogger(appCfg.Logging)

	configured := []Option{
		WithLogger(logger),
		WithThreshold(appCfg.Transfer.MultipartThreshold),
		WithPartSize(appCfg.Transfer.PartSize),
		WithConcurrency(appCfg.Transfer.Concurrency),
		WithSignExpiry(appCfg.Transfer.SignExpiry),
		WithMetrics(metrics.NewCollector()),
	}

	ctx := context.Background()

	if appCfg.Transfer.Driver == "s3" {
		s3Uploader, err := s3compat.NewUploader(ctx, s3compat.Config{
			Credentials: domain.Credentials{
				SecretID:  appCfg.Credentials.SecretID,
				SecretKey: appCfg.Credentials.SecretKey,
			},
			Endpoint: domain.Endpoint{
				Region: appCfg.Endpoint.Region,
				Bucket: appCfg.Endpoint.Bucket,
			},
			Threshold: appCfg.Transfer.MultipartThreshold,
			PartSize:  appCfg.Transfer.PartSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build s3 driver: %w", err)
		}
		configured = append(configured, withDriver(s3Uploader))
	}

	switch appCfg.Journal.Driver {
	case "sqlite":
		j, err := sqlite.Open(ctx, appCfg.Journal.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		configured = append(configured, WithJournal(j))
	case "postgres":
		j, err := postgres.Open(ctx, appCfg.Journal.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		configured = append(configured, WithJournal(j))
	}

	switch appCfg.Cache.Driver {
	case "memory":
		configured = append(configured, WithCache(memorycache.NewCache(), appCfg.Cache.TTL))
	case "redis":
		c, err := rediscache.NewCache(ctx, rediscache.Config{
			Addr:        appCfg.Cache.Addr(),
			Password:    appCfg.Cache.Password,
			DB:          appCfg.Cache.DB,
			PoolSize:    appCfg.Cache.PoolSize,
			DialTimeout: appCfg.Cache.DialTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		configured = append(configured, WithCache(c, appCfg.Cache.TTL))
	}

	return New(Config{
		SecretID:  appCfg.Credentials.SecretID,
		SecretKey: appCfg.Credentials.SecretKey,
		Region:    appCfg.Endpoint.Region,
		Bucket:    appCfg.Endpoint.Bucket,
	}, append(configured, opts...)...)
}

// newLogger builds the zerolog root logger from logging settings.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat
	return zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
}

// Upload sends the file at localPath to objectKey and returns the object's
// URL. Files strictly larger than the multipart threshold go multipart.
func (c *Client) Upload(ctx context.Context, localPath, objectKey string, metadata map[string]string) (string, error) {
	url, err := c.uploader.Upload(ctx, localPath, objectKey, metadata)
	if err != nil {
		return "", err
	}
	c.invalidateCached(ctx, objectKey)
	return url, nil
}

// GetObjectMetadata returns the object's user metadata, serving from the
// cache when one is configured. Cache trouble falls through to the service.
func (c *Client) GetObjectMetadata(ctx context.Context, objectKey string) (map[string]string, error) {
	if objectKey == "" {
		return nil, domain.ErrEmptyObjectKey
	}

	if cached, ok := c.cachedMetadata(ctx, objectKey); ok {
		return cached, nil
	}

	metadata, err := c.uploader.Head(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, objectKey, metadata)
	return metadata, nil
}

// DeleteObject removes the object and drops any cached metadata for it.
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return domain.ErrEmptyObjectKey
	}
	if err := c.uploader.Delete(ctx, objectKey); err != nil {
		return err
	}
	c.invalidateCached(ctx, objectKey)
	return nil
}

// AbortUpload terminates a multipart session that was left behind, freeing
// its storage on the service.
func (c *Client) AbortUpload(ctx context.Context, objectKey, uploadID string) error {
	return c.uploader.Abort(ctx, objectKey, uploadID)
}

// Sessions lists journaled multipart sessions, most recent first. Without a
// configured journal the list is empty.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	recorded, err := c.journal.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, len(recorded))
	for i, s := range recorded {
		sessions[i] = Session{
			ID:          s.ID,
			Key:         s.Key,
			State:       string(s.State),
			InitiatedAt: s.InitiatedAt,
		}
	}
	return sessions, nil
}

// Close releases the journal and cache.
func (c *Client) Close() error {
	var errs []error
	if err := c.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Metrics returns the client's collector, nil when metrics are disabled.
func (c *Client) Metrics() *metrics.Collector {
	return c.metrics
}

// =============================================================================
// Metadata Cache
// =============================================================================

func (c *Client) cachedMetadata(ctx context.Context, objectKey string) (map[string]string, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, cache.MetadataKey(c.endpoint.Bucket, objectKey))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", objectKey).Msg("metadata cache read failed")
		}
		return nil, false
	}
	var metadata map[string]string
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, false
	}
	return metadata, true
}

func (c *Client) storeCached(ctx context.Context, objectKey string, metadata map[string]string) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cache.MetadataKey(c.endpoint.Bucket, objectKey), raw, c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("key", objectKey).Msg("metadata cache write failed")
	}
}

func (c *Client) invalidateCached(ctx context.Context, objectKey string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, cache.MetadataKey(c.endpoint.Bucket, objectKey)); err != nil {
		c.logger.Warn().Err(err).Str("key", objectKey).Msg("metadata cache invalidation failed")
	}
}
