// Package secrets resolves secret:// references against Google Secret
// Manager, with an in-process cache and a local fallback file for
// development machines that have no cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
)

// managerClient is the slice of the Secret Manager API the fetcher uses.
// Tests substitute it via WithSecretManagerClient.
type managerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

var dialManager = func(ctx context.Context, opts ...option.ClientOption) (managerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret:// references. Resolved values are cached for
// the life of the process; secrets are rotated by restarting.
type Fetcher struct {
	client     managerClient
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment labels the deployment environment. Fallback files are
// only consulted in local-style environments.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		f.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the project ID used when a reference does not
// carry its own project query parameter.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) {
		f.defaultProject = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path of the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallbackPath = strings.TrimSpace(path)
	}
}

// WithClientOptions forwards Cloud client options when dialing Secret
// Manager.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// WithSecretManagerClient injects a preconfigured client, primarily for
// tests.
func WithSecretManagerClient(client managerClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not
// fatal: the fetcher degrades to fallback-only mode so local runs work
// without credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.client == nil {
		client, err := dialManager(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the underlying client if the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the secret value for a secret://name reference.
// Optional query parameters: version (default latest) and project.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := parseRef(raw)
	if err != nil {
		return "", err
	}

	key := ref.canonical + "#" + ref.version
	if value, ok := f.cached(key); ok {
		return value, nil
	}

	project := ref.project
	if project == "" {
		project = f.defaultProject
	}

	if f.client != nil && project != "" {
		value, err := f.access(ctx, project, ref.name, ref.version)
		if err == nil {
			f.store(key, value)
			return value, nil
		}
		if !recoverableLocally(err) {
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secrets: manager unreachable, trying fallback file",
			zap.String("ref", ref.canonical), zap.Error(err))
	}

	value, ok := f.localValue(ref)
	if !ok {
		return "", fmt.Errorf("secrets: no value available for %s", ref.canonical)
	}
	f.store(key, value)
	return value, nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

// Fallback files exist for local development only. In deployed
// environments a manager failure surfaces as an error rather than
// silently serving values from disk.
func (f *Fetcher) fallbackAllowed() bool {
	switch f.env {
	case "", "local", "dev", "development", "test":
		return true
	}
	return false
}

func (f *Fetcher) localValue(ref reference) (string, bool) {
	if !f.fallbackAllowed() {
		return "", false
	}
	f.loadFallback()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback file error", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[ref.canonical+"#"+ref.version]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

// loadFallback reads KEY=VALUE lines. Keys may be secret:// references
// (optionally with a version parameter) or the legacy sm:// form.
func (f *Fetcher) loadFallback() {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}

		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			return
		}
		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackErr = fmt.Errorf("secrets: open fallback file %s: %w", path, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			rawKey, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			key := strings.TrimSpace(rawKey)
			value = strings.TrimSpace(value)
			if key == "" {
				continue
			}
			if legacy, ok := strings.CutPrefix(key, "sm://"); ok {
				key = "secret://" + legacy
			}
			if ref, err := parseRef(key); err == nil {
				f.fallback[ref.canonical] = value
				f.fallback[ref.canonical+"#"+ref.version] = value
			} else {
				f.fallback[key] = value
			}
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
	})
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func parseRef(raw string) (reference, error) {
	if strings.TrimSpace(raw) == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = defaultVersion
	}

	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// recoverableLocally reports errors that justify trying the fallback
// file rather than failing outright.
func recoverableLocally(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
