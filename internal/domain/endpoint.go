// Package domain contains the core entities for the tencos transfer client.
package domain

import (
	"fmt"
	"strings"
)

// ProviderDomain is the DNS suffix of the COS service.
const ProviderDomain = "myqcloud.com"

// MetaHeaderPrefix is the prefix for user-defined metadata headers.
const MetaHeaderPrefix = "x-cos-meta-"

// Credentials holds the access key pair for signing requests.
// Immutable for the lifetime of a client; never logged.
type Credentials struct {
	SecretID  string
	SecretKey string
}

// Validate checks that both halves of the key pair are present.
func (c Credentials) Validate() error {
	if c.SecretID == "" {
		return ErrMissingSecretID
	}
	if c.SecretKey == "" {
		return ErrMissingSecretKey
	}
	return nil
}

// Endpoint identifies one bucket in one region. Region and bucket combine
// deterministically into the virtual host name every request is addressed to.
type Endpoint struct {
	Region string
	Bucket string
}

// NewEndpoint creates an Endpoint after validating its parts.
func NewEndpoint(region, bucket string) (Endpoint, error) {
	if region == "" {
		return Endpoint{}, ErrMissingRegion
	}
	if bucket == "" {
		return Endpoint{}, ErrMissingBucket
	}
	return Endpoint{Region: region, Bucket: bucket}, nil
}

// Host returns the virtual host name, e.g. "mybucket.cos.ap-guangzhou.myqcloud.com".
func (e Endpoint) Host() string {
	return fmt.Sprintf("%s.cos.%s.%s", e.Bucket, e.Region, ProviderDomain)
}

// BaseURL returns the HTTPS base URL for the bucket.
func (e Endpoint) BaseURL() string {
	return "https://" + e.Host()
}

// ObjectURL returns the canonical URL for an object key.
func (e Endpoint) ObjectURL(key string) string {
	return e.BaseURL() + "/" + strings.TrimPrefix(key, "/")
}

// ObjectPath returns the signing path for an object key. Signing paths
// always start with "/".
func (e Endpoint) ObjectPath(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}
