// Package crypto signs and verifies resolver requests. Resolution is a
// privileged call, so the trigger must prove it holds the shared secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by a signed resolver request.
const (
	HeaderTimestamp = "X-Resolver-Timestamp"
	HeaderSignature = "X-Resolver-Signature"
)

// DefaultMaxSkew is how far a request timestamp may drift from the server clock.
const DefaultMaxSkew = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("crypto: missing signature headers")
	ErrBadTimestamp     = errors.New("crypto: timestamp outside allowed window")
	ErrBadSignature     = errors.New("crypto: signature mismatch")
)

// ResolverAuth holds the shared secret for resolver requests. The signature
// is base64(HMAC-SHA256(secret, timestamp+method+path+body)).
type ResolverAuth struct {
	Secret  string
	MaxSkew time.Duration
}

// Headers returns the signing headers for a request made now.
func (a *ResolverAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers with a caller-supplied Unix timestamp.
func (a *ResolverAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(a.Secret), ts+method+path+body),
	}
}

// Verify checks a request's timestamp and signature against now.
func (a *ResolverAuth) Verify(method, path, body, ts, sig string, now time.Time) error {
	if ts == "" || sig == "" {
		return ErrMissingSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, ts)
	}
	skew := a.MaxSkew
	if skew <= 0 {
		skew = DefaultMaxSkew
	}
	if d := now.Sub(time.Unix(unix, 0)); d > skew || d < -skew {
		return ErrBadTimestamp
	}

	want := hmacSHA256Base64([]byte(a.Secret), ts+method+path+body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// redacted is printed in place of the secret, whatever its length.
const redacted = "ResolverAuth{secret=****}"

// String returns a redacted representation suitable for logging. No part of
// the secret, including its length, is revealed.
func (a *ResolverAuth) String() string { return redacted }

// GoString keeps %#v from dumping the secret.
func (a *ResolverAuth) GoString() string { return redacted }

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
