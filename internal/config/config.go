// Package config provides configuration management for the tencos client.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete client configuration.
type Config struct {
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Endpoint    EndpointConfig    `mapstructure:"endpoint"`
	Transfer    TransferConfig    `mapstructure:"transfer"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Ops         OpsConfig         `mapstructure:"ops"`
}

// CredentialsConfig holds the secret pair used for request signing.
type CredentialsConfig struct {
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
}

// EndpointConfig identifies the target bucket.
type EndpointConfig struct {
	Region string `mapstructure:"region"`
	Bucket string `mapstructure:"bucket"`
}

// TransferConfig holds upload behavior settings.
type TransferConfig struct {
	// Driver selects the wire protocol: "native" or "s3".
	Driver string `mapstructure:"driver"`

	// MultipartThreshold is the file size above which uploads go multipart.
	MultipartThreshold int64 `mapstructure:"multipart_threshold"`

	// PartSize is the byte range each part covers.
	PartSize int64 `mapstructure:"part_size"`

	// Concurrency bounds in-flight part uploads.
	Concurrency int `mapstructure:"concurrency"`

	// SignExpiry is the validity window of each request signature.
	SignExpiry time.Duration `mapstructure:"sign_expiry"`
}

// JournalConfig holds session journal settings.
// Supports both SQLite and PostgreSQL backends.
type JournalConfig struct {
	// Driver specifies the journal backend: "none", "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// SQLite settings (used when Driver is "sqlite")
	Path string `mapstructure:"path"`

	// PostgreSQL settings (used when Driver is "postgres")
	DSN string `mapstructure:"dsn"`
}

// CacheConfig holds metadata cache settings.
type CacheConfig struct {
	// Driver specifies the cache backend: "none", "memory" or "redis".
	Driver string `mapstructure:"driver"`

	// TTL bounds how long cached metadata is served.
	TTL time.Duration `mapstructure:"ttl"`

	// Redis settings (used when Driver is "redis")
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address in host:port format.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// OpsConfig holds the optional operational HTTP listener settings.
type OpsConfig struct {
	// Enabled determines if the health/metrics listener starts.
	Enabled bool `mapstructure:"enabled"`

	// Addr is the listen address in host:port format.
	Addr string `mapstructure:"addr"`

	// MetricsPath is the URL path for the metrics endpoint.
	MetricsPath string `mapstructure:"metrics_path"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values and are prefixed
// with TENCOS_ using _ as separator. The conventional TENCENT_SECRET_ID,
// TENCENT_SECRET_KEY, TENCENT_COS_REGION and TENCENT_COS_BUCKET variables
// are honored as well.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TENCOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tencos")
	}

	// Config file not found is acceptable; env vars can carry everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the provider's conventional variable names onto the
// config keys so existing shell environments keep working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("credentials.secret_id", "TENCOS_CREDENTIALS_SECRET_ID", "TENCENT_SECRET_ID")
	_ = v.BindEnv("credentials.secret_key", "TENCOS_CREDENTIALS_SECRET_KEY", "TENCENT_SECRET_KEY")
	_ = v.BindEnv("endpoint.region", "TENCOS_ENDPOINT_REGION", "TENCENT_COS_REGION")
	_ = v.BindEnv("endpoint.bucket", "TENCOS_ENDPOINT_BUCKET", "TENCENT_COS_BUCKET")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Transfer defaults
	v.SetDefault("transfer.driver", "native")
	v.SetDefault("transfer.multipart_threshold", 5*1024*1024)
	v.SetDefault("transfer.part_size", 5*1024*1024)
	v.SetDefault("transfer.concurrency", 1)
	v.SetDefault("transfer.sign_expiry", time.Hour)

	// Journal defaults
	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.path", "./data/tencos.db")
	v.SetDefault("journal.dsn", "")

	// Cache defaults
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.dial_timeout", 5*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Ops listener defaults
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", "127.0.0.1:9465")
	v.SetDefault("ops.metrics_path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Credentials.SecretID == "" {
		return fmt.Errorf("credentials.secret_id is required")
	}
	if c.Credentials.SecretKey == "" {
		return fmt.Errorf("credentials.secret_key is required")
	}
	if c.Endpoint.Region == "" {
		return fmt.Errorf("endpoint.region is required")
	}
	if c.Endpoint.Bucket == "" {
		return fmt.Errorf("endpoint.bucket is required")
	}

	validDrivers := map[string]bool{"native": true, "s3": true}
	if !validDrivers[c.Transfer.Driver] {
		return fmt.Errorf("transfer.driver must be 'native' or 's3'")
	}
	if c.Transfer.PartSize <= 0 {
		return fmt.Errorf("transfer.part_size must be positive")
	}
	if c.Transfer.MultipartThreshold <= 0 {
		return fmt.Errorf("transfer.multipart_threshold must be positive")
	}
	if c.Transfer.Concurrency < 1 {
		return fmt.Errorf("transfer.concurrency must be at least 1")
	}
	if c.Transfer.SignExpiry <= 0 {
		return fmt.Errorf("transfer.sign_expiry must be positive")
	}

	validJournals := map[string]bool{"none": true, "sqlite": true, "postgres": true}
	if !validJournals[c.Journal.Driver] {
		return fmt.Errorf("journal.driver must be 'none', 'sqlite' or 'postgres'")
	}
	if c.Journal.Driver == "sqlite" && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required for sqlite driver")
	}
	if c.Journal.Driver == "postgres" && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn is required for postgres driver")
	}

	validCaches := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCaches[c.Cache.Driver] {
		return fmt.Errorf("cache.driver must be 'none', 'memory' or 'redis'")
	}
	if c.Cache.Driver == "redis" && c.Cache.Host == "" {
		return fmt.Errorf("cache.host is required for redis driver")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
