// Package client is the client-side half of local authentication: an
// in-memory credential cache hydrated from the gateway, and an HTTP transport
// that attaches the cached token to outbound API calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"authgate/pkg/backend"
	"authgate/pkg/domain"
)

// ServerSidePlaceholder is what AccessToken returns on server-side instances,
// where the real token comes from the request cookies instead.
const ServerSidePlaceholder = "server-side"

const (
	defaultTimeout = 10 * time.Second
	hydrationKey   = "hydrate"
	maxBodyBytes   = 1 << 20
)

var (
	instanceMu sync.Mutex
	instance   *LocalAuthService
)

// LocalAuthService owns the process-wide token and user cache.
type LocalAuthService struct {
	appURL     *url.URL
	backend    *backend.Client
	httpClient *http.Client
	logger     *slog.Logger
	serverSide bool
	mirror     Mirror

	mu    sync.RWMutex
	token string
	user  *domain.UserProfile

	hydration singleflight.Group
}

// Option configures a LocalAuthService.
type Option func(*LocalAuthService)

// WithHTTPClient replaces the default client. It should carry a cookie jar so
// the session cookies set by the gateway are replayed on hydration.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *LocalAuthService) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LocalAuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerSide marks the instance as running inside a rendering server.
func WithServerSide() Option {
	return func(s *LocalAuthService) {
		s.serverSide = true
	}
}

// WithMirror persists the cache outside the process.
func WithMirror(m Mirror) Option {
	return func(s *LocalAuthService) {
		s.mirror = m
	}
}

// New returns the process-wide LocalAuthService, creating it on the first
// call. Later calls return the existing instance and ignore their arguments.
func New(backendURL, appURL string, opts ...Option) (*LocalAuthService, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return instance, nil
	}
	s, err := newService(backendURL, appURL, opts...)
	if err != nil {
		return nil, err
	}
	instance = s
	return s, nil
}

func newService(backendURL, appURL string, opts ...Option) (*LocalAuthService, error) {
	u, err := url.Parse(strings.TrimRight(appURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid app url %q", appURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	s := &LocalAuthService{
		appURL:     u,
		httpClient: &http.Client{Timeout: defaultTimeout, Jar: jar},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backend, err = backend.New(backendURL, backend.WithHTTPClient(s.httpClient))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Login exchanges credentials with the backend and caches the session.
func (s *LocalAuthService) Login(ctx context.Context, email, password string) bool {
	sess, err := s.backend.Login(ctx, backend.Credentials{Email: email, Password: password})
	if err != nil {
		s.logger.WarnContext(ctx, "login failed", "error", err)
		return false
	}
	s.establish(ctx, sess)
	return true
}

// Register creates an account on the backend and caches the session.
func (s *LocalAuthService) Register(ctx context.Context, email, password string) bool {
	sess, err := s.backend.Register(ctx, backend.Credentials{Email: email, Password: password})
	if err != nil {
		s.logger.WarnContext(ctx, "registration failed", "error", err)
		return false
	}
	s.establish(ctx, sess)
	return true
}

// AccessToken returns the cached token, hydrating from the gateway when the
// cache is empty. An empty string means unauthenticated.
func (s *LocalAuthService) AccessToken(ctx context.Context) string {
	if s.serverSide {
		return ServerSidePlaceholder
	}
	s.ensureHydrated(ctx)
	token, _ := s.snapshot()
	return token
}

// CurrentUser returns the cached profile, hydrating like AccessToken. It
// returns nil when unauthenticated.
func (s *LocalAuthService) CurrentUser(ctx context.Context) *domain.UserProfile {
	if s.serverSide {
		return nil
	}
	s.ensureHydrated(ctx)
	_, user := s.snapshot()
	return user
}

// Logout asks the gateway to clear the cookies, then forgets the session
// whether or not that call succeeded.
func (s *LocalAuthService) Logout(ctx context.Context) {
	if err := s.post(ctx, "/auth/logout", nil); err != nil {
		s.logger.WarnContext(ctx, "logout request failed", "error", err)
	}
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.Clear(); err != nil {
			s.logger.WarnContext(ctx, "failed to clear session mirror", "error", err)
		}
	}
}

func (s *LocalAuthService) establish(ctx context.Context, sess *domain.Session) {
	s.store(ctx, sess.Token, sess.User)
	if err := s.post(ctx, "/auth/session", sess); err != nil {
		s.logger.WarnContext(ctx, "failed to persist session cookies", "error", err)
	}
}

func (s *LocalAuthService) store(ctx context.Context, token string, user *domain.UserProfile) {
	if user == nil {
		degraded := domain.DegradedProfile(token)
		user = &degraded
	}
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.Save(token, user); err != nil {
			s.logger.WarnContext(ctx, "failed to mirror session", "error", err)
		}
	}
}

func (s *LocalAuthService) snapshot() (string, *domain.UserProfile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.user
}

// ensureHydrated joins or starts a hydration while the cache is empty, and
// tries exactly once more if the first one left it empty.
func (s *LocalAuthService) ensureHydrated(ctx context.Context) {
	for attempt := 0; attempt < 2; attempt++ {
		if token, _ := s.snapshot(); token != "" {
			return
		}
		_, _, _ = s.hydration.Do(hydrationKey, func() (any, error) {
			// A hydration that finished between the check above and Do
			// already filled the cache.
			if token, _ := s.snapshot(); token != "" {
				return nil, nil
			}
			s.hydrate(context.WithoutCancel(ctx))
			return nil, nil
		})
	}
}

// hydrate reads the session from the gateway. Anything but a 200 leaves the
// cache empty.
func (s *LocalAuthService) hydrate(ctx context.Context) {
	req, err := http.NewRequestWithContext(bypassInterceptor(ctx), http.MethodGet, s.endpoint("/auth/oss"), nil)
	if err != nil {
		s.logger.WarnContext(ctx, "build hydration request", "error", err)
		return
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "hydration request failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		s.logger.DebugContext(ctx, "no session to hydrate", "status", resp.StatusCode)
		return
	}

	var sess domain.Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&sess); err != nil {
		s.logger.WarnContext(ctx, "undecodable hydration response", "error", err)
		return
	}
	if sess.Token == "" {
		return
	}
	s.store(ctx, sess.Token, sess.User)
}

func (s *LocalAuthService) post(ctx context.Context, path string, body any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(bypassInterceptor(ctx), http.MethodPost, s.endpoint(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s returned %d", path, resp.StatusCode)
	}
	return nil
}

func (s *LocalAuthService) endpoint(path string) string {
	return s.appURL.String() + path
}
