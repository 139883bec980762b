// Package idempotency guards mutating endpoints against duplicate
// submissions. Clients send an Idempotency-Key header with checkout and
// order mutations; the first request holding a key runs the handler and
// records its response, and retries of the same request replay that
// recorded response instead of running the handler again.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed record is retained before the key
// may be claimed again.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused reports an idempotency key presented with a request that
// differs from the one that first claimed it.
var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// ClaimState reports what Begin found for a key.
type ClaimState int

const (
	// ClaimNew means the key was unclaimed and the request should proceed.
	ClaimNew ClaimState = iota
	// ClaimReplay means a recorded response exists and should be returned as-is.
	ClaimReplay
	// ClaimInFlight means another request holds the key and has not finished.
	ClaimInFlight
)

// Claim is the outcome of claiming a key. Response is populated only
// when State is ClaimReplay.
type Claim struct {
	State    ClaimState
	Response StoredResponse
}

// StoredResponse is the recorded HTTP response replayed for duplicates.
type StoredResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists key claims and their recorded responses.
type Store interface {
	// Begin claims key for the given request fingerprint. Reusing a key
	// with a different fingerprint fails with ErrKeyReused.
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	// Complete records the response produced for a claimed key.
	Complete(ctx context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error
	// Release drops the claim so the client may retry.
	Release(ctx context.Context, key string) error
	// CleanupExpired deletes up to limit expired records and reports how
	// many were removed.
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// docID derives a stable document identifier from the scoped key so raw
// client-supplied keys never appear in storage paths.
func docID(key string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hop-by-hop and per-response headers that must not be replayed verbatim.
var volatileHeaders = map[string]struct{}{
	"Connection":          {},
	"Content-Length":      {},
	"Date":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// recordableHeader copies h, dropping headers that are regenerated per
// response. Returns nil when nothing survives.
func recordableHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	kept := make(http.Header, len(h))
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if _, volatile := volatileHeaders[canonical]; volatile {
			continue
		}
		kept[canonical] = append([]string(nil), values...)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func cloneHeader(h http.Header) http.Header {
	clone := make(http.Header, len(h))
	for name, values := range h {
		clone[name] = append([]string(nil), values...)
	}
	return clone
}
