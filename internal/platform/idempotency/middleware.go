package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clearcart/api/internal/platform/auth"
)

const (
	defaultHeader = "Idempotency-Key"
	replayHeader  = "X-Idempotent-Replay"
)

// Logger receives diagnostics for store failures inside the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

// Option adjusts middleware behaviour.
type Option func(*guard)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) Option {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL configures how long recorded responses are retained.
func WithTTL(ttl time.Duration) Option {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLogger injects a logger for persistence errors.
func WithLogger(logger Logger) Option {
	return func(g *guard) {
		g.logger = logger
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(g *guard) {
		if now != nil {
			g.now = now
		}
	}
}

type guard struct {
	store  Store
	next   http.Handler
	header string
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

// Middleware enforces idempotency keys on mutating requests (POST, PUT,
// PATCH, DELETE). Requests without the key header are rejected with 400.
// A nil store disables the middleware entirely.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		g := &guard{
			store:  store,
			next:   next,
			header: defaultHeader,
			ttl:    DefaultTTL,
			now:    time.Now,
		}
		for _, opt := range opts {
			if opt != nil {
				opt(g)
			}
		}
		return g
	}
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !mutating(r.Method) {
		g.next.ServeHTTP(w, r)
		return
	}

	key := strings.TrimSpace(r.Header.Get(g.header))
	if key == "" {
		writeError(w, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "idempotency_read_body_failed", "unable to read request body")
		return
	}

	caller := callerID(r.Context())
	fp := fingerprint(r, body, caller)
	// Keys are scoped per caller so one shopper cannot replay another's
	// response by guessing their key.
	scoped := key + "|" + caller

	claim, err := g.store.Begin(r.Context(), scoped, fp, g.now().UTC(), g.ttl)
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			writeError(w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
			return
		}
		g.logf("idempotency: claim failed for key %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch claim.State {
	case ClaimReplay:
		replay(w, claim.Response)
		return
	case ClaimInFlight:
		writeError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	rec := newCapture()
	g.next.ServeHTTP(rec, r)

	if err := g.store.Complete(r.Context(), scoped, fp, rec.snapshot(), g.now().UTC(), g.ttl); err != nil {
		g.logf("idempotency: failed to record response for key %s (caller %s): %v", key, caller, err)
		if releaseErr := g.store.Release(r.Context(), scoped); releaseErr != nil {
			g.logf("idempotency: failed to release key %s: %v", key, releaseErr)
		}
		writeError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}

	if err := rec.flush(w); err != nil {
		g.logf("idempotency: failed to write response for key %s: %v", key, err)
	}
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// bufferBody drains the request body and replaces it with a replayable
// reader so the wrapped handler still sees the full payload.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// callerID identifies the requester for key scoping: shopper UID first,
// then internal service subject, falling back to anonymous for guests.
func callerID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil && svc.Subject != "" {
		return svc.Subject
	}
	return "anonymous"
}

// fingerprint binds a claim to the shape of the request so a key cannot
// silently cover two different mutations.
func fingerprint(r *http.Request, body []byte, caller string) string {
	bodyHash := ""
	if len(body) > 0 {
		bodyHash = hashHex(body)
	}
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		caller,
		bodyHash,
	}
	return hashHex([]byte(strings.Join(parts, "|")))
}

func replay(w http.ResponseWriter, resp StoredResponse) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range resp.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set(replayHeader, "true")

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}

// capture buffers the wrapped handler's response so it can be persisted
// before anything reaches the client.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCapture() *capture {
	return &capture{header: make(http.Header)}
}

func (c *capture) Header() http.Header {
	return c.header
}

func (c *capture) WriteHeader(status int) {
	if status > 0 {
		c.status = status
	}
}

func (c *capture) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *capture) snapshot() StoredResponse {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	var body []byte
	if c.body.Len() > 0 {
		body = c.body.Bytes()
	}
	return StoredResponse{
		Status: status,
		Header: cloneHeader(c.header),
		Body:   body,
	}
}

func (c *capture) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range c.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if c.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(c.body.Bytes())
	return err
}
