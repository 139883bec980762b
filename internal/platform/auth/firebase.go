package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/clearcart/api/internal/platform/config"
)

// FirebaseVerifier wraps the Firebase Admin SDK for shopper token checks.
// Every SDK call runs under a bounded context so a slow Admin API cannot
// stall request handling.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseVerifier construction.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the per-call deadline for Admin SDK requests.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier initialises the Admin SDK against the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	v := &FirebaseVerifier{client: authClient, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyIDToken validates a shopper ID token against Firebase.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, cancel, err := v.bounded(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return v.client.VerifyIDToken(ctx, idToken)
}

// GetUser fetches the Firebase user record behind a verified token.
func (v *FirebaseVerifier) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	ctx, cancel, err := v.bounded(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return v.client.GetUser(ctx, uid)
}

func (v *FirebaseVerifier) bounded(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if v == nil || v.client == nil {
		return ctx, nil, errors.New("firebase verifier not initialised")
	}
	if v.timeout <= 0 {
		return ctx, func() {}, nil
	}
	boundedCtx, cancel := context.WithTimeout(ctx, v.timeout)
	return boundedCtx, cancel, nil
}
