package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRateLimitDefault     = 120
	defaultRateLimitAuth        = 240
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultSecurityIAPIssuer    = "https://cloud.google.com/iap"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultNotificationTopic    = "order-notifications"
	defaultCurrency             = "USD"
	defaultTaxRateBps           = 1800
	defaultFreeShippingAt       = 50000
	defaultShippingFee          = 5000
	defaultCartTTL              = 30 * 24 * time.Hour
	defaultReservationTTL       = 30 * time.Minute
	defaultSweepInterval        = time.Minute
	defaultSweepBatchSize       = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Pricing     PricingConfig
	Sessions    SessionConfig
	Sweeps      SweepConfig
	RateLimits  RateLimitConfig
	Features    FeatureFlags
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topics used for asynchronous dispatch.
type PubSubConfig struct {
	ProjectID         string
	EmulatorHost      string
	NotificationTopic string
}

// PricingConfig holds the totals computation parameters. Monetary values are
// minor currency units.
type PricingConfig struct {
	DefaultCurrency       string
	TaxRateBps            int64
	FreeShippingThreshold int64
	ShippingFee           int64
}

// SessionConfig controls anonymous cart session tokens and cart retention.
type SessionConfig struct {
	SigningKey string
	CartTTL    time.Duration
}

// SweepConfig controls the background expiry sweeps.
type SweepConfig struct {
	Interval       time.Duration
	BatchSize      int
	ReservationTTL time.Duration
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnablePromotions bool
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loader)

type loader struct {
	envFile         string
	explicit        map[string]string
	systemEnv       bool
	secrets         SecretResolver
	requiredSecrets []string
	panicOnMissing  bool
}

func newLoader(opts []Option) loader {
	l := loader{
		envFile:   defaultEnvFile,
		systemEnv: true,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) {
		l.explicit = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(l *loader) {
		l.systemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) {
		l.secrets = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader
// (e.g. "Sessions.SigningKey").
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) {
		l.requiredSecrets = append(l.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(l *loader) {
		l.panicOnMissing = true
	}
}

// env resolves configuration keys with the precedence
// explicit map > OS environment > .env file.
type env struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func (l loader) environ() (env, error) {
	dotenv, err := readDotEnv(l.envFile)
	if err != nil {
		return env{}, err
	}
	return env{explicit: l.explicit, system: l.systemEnv, dotenv: dotenv}, nil
}

func (e env) lookup(key string) (string, bool) {
	if value, ok := e.explicit[key]; ok {
		return value, true
	}
	if e.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := e.dotenv[key]
	return value, ok
}

func (e env) str(key, fallback string) string {
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func (e env) dur(key string, fallback time.Duration) time.Duration {
	if value, ok := e.lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (e env) num(key string, fallback int) int {
	if value, ok := e.lookup(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func (e env) num64(key string, fallback int64) int64 {
	if value, ok := e.lookup(key); ok && value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (e env) flag(key string, fallback bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// csv splits a comma-separated value, dropping empty entries.
func (e env) csv(key string) []string {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses "name=value,name=value" lists with lowercased names.
func (e env) pairs(key string) map[string]string {
	out := make(map[string]string)
	raw, ok := e.lookup(key)
	if !ok {
		return out
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(entry), "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			out[name] = value
		}
	}
	return out
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	environ, err := newLoader(opts).environ()
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range environ.dotenv {
		values[key] = value
	}
	if environ.system {
		for _, entry := range os.Environ() {
			key, value, found := strings.Cut(entry, "=")
			if !found || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range environ.explicit {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	environ, err := l.environ()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         environ.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  environ.dur("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: environ.dur("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  environ.dur("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       environ.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: environ.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    environ.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: environ.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:         environ.str("API_PUBSUB_PROJECT_ID", ""),
			EmulatorHost:      environ.str("API_PUBSUB_EMULATOR_HOST", ""),
			NotificationTopic: environ.str("API_PUBSUB_NOTIFICATION_TOPIC", defaultNotificationTopic),
		},
		Pricing: PricingConfig{
			DefaultCurrency:       strings.ToUpper(environ.str("API_PRICING_DEFAULT_CURRENCY", defaultCurrency)),
			TaxRateBps:            environ.num64("API_PRICING_TAX_RATE_BPS", defaultTaxRateBps),
			FreeShippingThreshold: environ.num64("API_PRICING_FREE_SHIPPING_THRESHOLD", defaultFreeShippingAt),
			ShippingFee:           environ.num64("API_PRICING_SHIPPING_FEE", defaultShippingFee),
		},
		Sessions: SessionConfig{
			SigningKey: environ.str("API_SESSION_SIGNING_KEY", ""),
			CartTTL:    environ.dur("API_SESSION_CART_TTL", defaultCartTTL),
		},
		Sweeps: SweepConfig{
			Interval:       environ.dur("API_SWEEP_INTERVAL", defaultSweepInterval),
			BatchSize:      environ.num("API_SWEEP_BATCH_SIZE", defaultSweepBatchSize),
			ReservationTTL: environ.dur("API_SWEEP_RESERVATION_TTL", defaultReservationTTL),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       environ.num("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: environ.num("API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
		},
		Features: FeatureFlags{
			EnablePromotions: environ.flag("API_FEATURE_PROMOTIONS", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(environ.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   environ.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  environ.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: environ.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   environ.csv("API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           environ.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              environ.dur("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  environ.dur("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: environ.num("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore and Pub/Sub projects default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved := make(map[string]string)
	for _, target := range []struct {
		name  string
		field *string
	}{
		{"Sessions.SigningKey", &cfg.Sessions.SigningKey},
	} {
		value, err := resolveSecret(ctx, *target.field, l.secrets)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if missing := missingSecrets(l.requiredSecrets, resolved); missing != nil {
		if l.panicOnMissing {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

func (c Config) validate() error {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	check(c.Server.Port != "", "Server.Port")
	check(c.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(strings.TrimSpace(c.PubSub.NotificationTopic) != "", "PubSub.NotificationTopic")
	check(len(c.Pricing.DefaultCurrency) == 3, "Pricing.DefaultCurrency")
	check(c.Pricing.TaxRateBps >= 0 && c.Pricing.TaxRateBps <= 10000, "Pricing.TaxRateBps")
	check(c.Pricing.FreeShippingThreshold >= 0, "Pricing.FreeShippingThreshold")
	check(c.Pricing.ShippingFee >= 0, "Pricing.ShippingFee")
	check(c.Sessions.CartTTL > 0, "Sessions.CartTTL")
	check(c.Sweeps.Interval > 0, "Sweeps.Interval")
	check(c.Sweeps.BatchSize > 0, "Sweeps.BatchSize")
	check(c.Sweeps.ReservationTTL > 0, "Sweeps.ReservationTTL")
	check(strings.TrimSpace(c.Idempotency.Header) != "", "Idempotency.Header")
	check(c.Idempotency.TTL > 0, "Idempotency.TTL")
	check(c.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(c.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref := strings.TrimSpace(value)
	if legacy, ok := strings.CutPrefix(ref, "sm://"); ok {
		ref = "secret://" + legacy
	}
	if !strings.HasPrefix(ref, "secret://") {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// MissingSecretsError indicates that one or more required secrets failed to resolve.
// Secret names are redacted in log-facing output.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var names []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

// readDotEnv parses KEY=VALUE lines, tolerating comments, blank lines,
// "export " prefixes, and single or double quoting. A missing file is
// not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "export "); ok {
			line = strings.TrimSpace(rest)
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
