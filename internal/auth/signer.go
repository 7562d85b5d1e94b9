package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/tencos/internal/domain"
)

// SignAlgorithm is the fixed algorithm identifier in the authorization token.
const SignAlgorithm = "sha1"

// DefaultExpiry is the signing window applied when the caller does not
// choose one.
const DefaultExpiry = 3600 * time.Second

// Signer produces COS authorization tokens for outgoing requests.
// The zero clock means time.Now; tests inject a fixed clock to get
// byte-for-byte reproducible tokens.
type Signer struct {
	creds domain.Credentials
	now   func() time.Time
}

// NewSigner creates a Signer for the given credentials.
func NewSigner(creds domain.Credentials) *Signer {
	return &Signer{creds: creds, now: time.Now}
}

// NewSignerWithClock creates a Signer with an injected clock.
func NewSignerWithClock(creds domain.Credentials, now func() time.Time) *Signer {
	return &Signer{creds: creds, now: now}
}

// Sign builds the authorization token for one request. The header and param
// maps must be exactly the ones transmitted; any divergence makes the remote
// verifier reject the request. The token is valid for the window
// [now, now+expiry] and is never reused across requests.
func (s *Signer) Sign(method, path string, params, headers map[string]string, expiry time.Duration) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", domain.ErrInvalidSignPath
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	start := s.now().Unix()
	end := start + int64(expiry/time.Second)
	keyTime := fmt.Sprintf("%d;%d", start, end)

	return s.signWithKeyTime(method, path, params, headers, keyTime)
}

// signWithKeyTime performs the two-stage HMAC chain for a fixed key_time.
//
//	sign_key       = hex(HMAC-SHA1(secret_key, key_time))
//	http_string    = lower(method) \n path \n canonical_params \n canonical_headers \n
//	string_to_sign = "sha1" \n key_time \n sha1hex(http_string) \n
//	signature      = hex(HMAC-SHA1(sign_key, string_to_sign))
func (s *Signer) signWithKeyTime(method, path string, params, headers map[string]string, keyTime string) (string, error) {
	paramForm, err := Canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	headerForm, err := Canonicalize(headers)
	if err != nil {
		return "", fmt.Errorf("canonicalize headers: %w", err)
	}

	signKey := hmacSHA1(s.creds.SecretKey, keyTime)

	httpString := strings.ToLower(method) + "\n" +
		path + "\n" +
		paramForm.Encoded + "\n" +
		headerForm.Encoded + "\n"

	stringToSign := SignAlgorithm + "\n" +
		keyTime + "\n" +
		sha1Hex(httpString) + "\n"

	signature := hmacSHA1(signKey, stringToSign)

	// Field order is fixed; the remote verifier splits on & and expects
	// exactly this sequence.
	token := strings.Join([]string{
		"q-sign-algorithm=" + SignAlgorithm,
		"q-ak=" + s.creds.SecretID,
		"q-sign-time=" + keyTime,
		"q-key-time=" + keyTime,
		"q-header-list=" + headerForm.KeyList,
		"q-url-param-list=" + paramForm.KeyList,
		"q-signature=" + signature,
	}, "&")

	return token, nil
}

// hmacSHA1 computes hex(HMAC-SHA1(key, message)).
func hmacSHA1(key, message string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// sha1Hex computes the hex SHA1 digest of message.
func sha1Hex(message string) string {
	sum := sha1.Sum([]byte(message))
	return hex.EncodeToString(sum[:])
}
