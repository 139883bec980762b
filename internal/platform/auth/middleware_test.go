package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type fakeVerifier struct {
	token *firebaseauth.Token
	err   error
	seen  string
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	f.seen = idToken
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type fakeUserGetter struct {
	record  *firebaseauth.UserRecord
	fetches int
	lastUID string
}

func (f *fakeUserGetter) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	f.fetches++
	f.lastUID = uid
	return f.record, nil
}

func staffToken(uid string) *firebaseauth.Token {
	return &firebaseauth.Token{
		UID: uid,
		Claims: map[string]any{
			"role":  []any{"staff"},
			"email": "clerk@example.com",
		},
	}
}

func TestRequireFirebaseAuthAcceptsStaffToken(t *testing.T) {
	verifier := &fakeVerifier{token: staffToken("user-9")}
	users := &fakeUserGetter{record: &firebaseauth.UserRecord{UserInfo: &firebaseauth.UserInfo{UID: "user-9"}}}
	authn := NewAuthenticator(verifier, WithUserGetter(users))

	var sawHandler bool
	handler := authn.RequireFirebaseAuth(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHandler = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "user-9" {
			t.Fatalf("unexpected uid %q", identity.UID)
		}
		if identity.Email != "clerk@example.com" {
			t.Fatalf("unexpected email %q", identity.Email)
		}
		if !identity.HasRole(RoleStaff) {
			t.Fatalf("expected staff role, got %v", identity.Roles)
		}

		first, err := identity.User(r.Context())
		if err != nil {
			t.Fatalf("load user: %v", err)
		}
		second, err := identity.User(r.Context())
		if err != nil {
			t.Fatalf("load user again: %v", err)
		}
		if first != second {
			t.Fatalf("expected memoized user record")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer id-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !sawHandler {
		t.Fatalf("handler not invoked")
	}
	if verifier.seen != "id-token" {
		t.Fatalf("verifier saw %q", verifier.seen)
	}
	if users.fetches != 1 || users.lastUID != "user-9" {
		t.Fatalf("expected one user fetch for user-9, got %d for %q", users.fetches, users.lastUID)
	}
}

func TestRequireFirebaseAuthRejectsWrongRole(t *testing.T) {
	verifier := &fakeVerifier{token: &firebaseauth.Token{
		UID:    "user-1",
		Claims: map[string]any{"role": "user"},
	}}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for a shopper token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer id-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "insufficient_role" {
		t.Fatalf("expected insufficient_role, got %v", body["error"])
	}
}

func TestRequireFirebaseAuthExpiredToken(t *testing.T) {
	verifier := &fakeVerifier{err: ErrTokenExpired}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired, got %v", body["error"])
	}
}

func TestRequireFirebaseAuthDefaultsToShopperRole(t *testing.T) {
	verifier := &fakeVerifier{token: &firebaseauth.Token{UID: "user-2", Claims: map[string]any{}}}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
			t.Fatalf("expected default %q role, got %v", RoleUser, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer no-role-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestOptionalFirebaseAuthPassesGuestsThrough(t *testing.T) {
	verifier := &fakeVerifier{token: staffToken("user-3")}
	authn := NewAuthenticator(verifier)

	handler := authn.OptionalFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity for a guest request")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if verifier.seen != "" {
		t.Fatalf("verifier should not be called without a bearer header")
	}
}

func TestOptionalFirebaseAuthStillRejectsBadTokens(t *testing.T) {
	verifier := &fakeVerifier{err: ErrTokenInvalid}
	authn := NewAuthenticator(verifier)

	handler := authn.OptionalFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
