// Package backend is a typed client for the backend API endpoints the
// authentication boundary depends on: the health capability probe, login,
// register and the current-user lookup.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/sentinel"
)

const defaultTimeout = 10 * time.Second

// maxBodyBytes bounds how much of a backend response is read.
const maxBodyBytes = 1 << 20

// Health is the subset of GET /health the gateway relies on.
type Health struct {
	AuthProvider string `json:"auth_provider"`
	Version      string `json:"version"`
}

// Credentials is the login/register request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		tracer:  otel.Tracer("authgate/pkg/backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Health probes the backend capability endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*domain.Session, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, creds Credentials) (*domain.Session, error) {
	return c.authenticate(ctx, "/auth/register", creds)
}

// Me returns the profile behind a bearer token.
func (c *Client) Me(ctx context.Context, token string) (*domain.UserProfile, error) {
	var u domain.UserProfile
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &u); err != nil {
		return nil, err
	}
	u = u.Normalize()
	return &u, nil
}

func (c *Client) authenticate(ctx context.Context, path string, creds Credentials) (*domain.Session, error) {
	var s domain.Session
	if err := c.do(ctx, http.MethodPost, path, "", creds, &s); err != nil {
		return nil, err
	}
	if s.Token == "" {
		return nil, dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeUnavailable, "backend returned no token")
	}
	if s.User != nil {
		u := s.User.Normalize()
		if u.Name == "" {
			u.Name = creds.Email
		}
		s.User = &u
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.route", path)),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "backend unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return dErrors.Wrap(errors.Join(sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "read backend response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return statusError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return dErrors.Wrap(errors.Join(sentinel.ErrInvalidState, err), dErrors.CodeUnavailable, "decode backend response")
	}
	return nil
}

// statusError turns a non-2xx backend response into a coded error carrying the
// backend's detail message when it has one.
func statusError(status int, raw []byte) error {
	detail := parseDetail(raw)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return dErrors.New(dErrors.CodeUnauthorized, orDefault(detail, "invalid email or password"))
	case http.StatusConflict:
		return dErrors.New(dErrors.CodeConflict, orDefault(detail, "account already exists"))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dErrors.New(dErrors.CodeInvalidInput, orDefault(detail, "invalid request"))
	case http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, orDefault(detail, "not found"))
	default:
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, fmt.Sprintf("backend returned %d", status))
	}
}

// parseDetail reads {"detail": ...}. Validation failures carry a list of
// {"msg": ...} objects instead of a string.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
