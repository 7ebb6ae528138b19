// Package hosted adapts an external OIDC issuer as the hosted identity
// provider: authorization-code sign-in with PKCE, a sealed session cookie and
// ID token verification on every read.
package hosted

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"authgate/internal/audit"
	"authgate/internal/session"
	"authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

const (
	DefaultCookieName = "hosted_session"
	flowCookieName    = "hosted_flow"
	flowLifetime      = 10 * time.Minute
)

// Config is the hosted provider configuration.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	CookieName   string
	// SessionMaxAge bounds the sealed session cookie; the ID token expiry
	// still applies on every read.
	SessionMaxAge time.Duration
	Secure        bool
	// Audit receives sign-in outcomes. Optional.
	Audit AuditPublisher
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Session is a verified hosted session.
type Session struct {
	User        domain.HostedUser
	AccessToken string
	Expiry      time.Time
}

// stored is the payload sealed into the session cookie.
type stored struct {
	IDToken     string    `json:"id_token"`
	AccessToken string    `json:"access_token,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// flowState survives the round trip to the issuer.
type flowState struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to,omitempty"`
}

type claims struct {
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Nonce             string `json:"nonce"`
	SelectedTeamID    string `json:"selected_team_id"`
}

// Provider runs the hosted sign-in flow and reads hosted sessions.
type Provider struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	sessions   *session.Codec
	flows      *session.Codec
	cookieName string
	secure     bool
	audit      AuditPublisher
	logger     *slog.Logger
}

// New discovers the issuer configuration and builds a Provider.
func New(ctx context.Context, cfg Config, secret []byte, logger *slog.Logger) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("hosted provider requires issuer, client id and redirect url: %w", sentinel.ErrInvalidState)
	}
	issuer, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover hosted issuer %s: %w", cfg.Issuer, err)
	}
	verifier := issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newProvider(cfg, issuer.Endpoint(), verifier, secret, logger)
}

func newProvider(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, secret []byte, logger *slog.Logger) (*Provider, error) {
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 30 * 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	sessions, err := session.NewCodec(secret, cfg.SessionMaxAge)
	if err != nil {
		return nil, err
	}
	flows, err := session.NewCodec(secret, flowLifetime)
	if err != nil {
		return nil, err
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		verifier:   verifier,
		sessions:   sessions,
		flows:      flows,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		audit:      cfg.Audit,
		logger:     logger,
	}, nil
}

// Session verifies the hosted session cookie and its ID token.
func (p *Provider) Session(r *http.Request) (*Session, error) {
	c, err := r.Cookie(p.cookieName)
	if err != nil || c.Value == "" {
		return nil, sentinel.ErrNotFound
	}
	opened, err := p.sessions.Open(p.cookieName, c.Value)
	if err != nil {
		return nil, err
	}
	var st stored
	if err := json.Unmarshal([]byte(opened.Value), &st); err != nil {
		return nil, fmt.Errorf("decode hosted session: %w: %v", sentinel.ErrInvalidState, err)
	}
	idToken, err := p.verifier.Verify(r.Context(), st.IDToken)
	if err != nil {
		return nil, fmt.Errorf("verify hosted id token: %w: %v", sentinel.ErrExpired, err)
	}
	var cl claims
	if err := idToken.Claims(&cl); err != nil {
		return nil, fmt.Errorf("decode hosted claims: %w: %v", sentinel.ErrInvalidState, err)
	}
	s := &Session{
		User:   userFromClaims(cl),
		Expiry: idToken.Expiry,
	}
	if st.Expiry.IsZero() || time.Now().Before(st.Expiry) {
		s.AccessToken = st.AccessToken
	}
	return s, nil
}

// beginSignIn stores the flow state and returns the issuer authorization URL.
func (p *Provider) beginSignIn(w http.ResponseWriter, returnTo string) (string, error) {
	state, err := randomString(32)
	if err != nil {
		return "", err
	}
	nonce, err := randomString(32)
	if err != nil {
		return "", err
	}
	flow := flowState{
		State:    state,
		Verifier: oauth2.GenerateVerifier(),
		Nonce:    nonce,
		ReturnTo: safeReturnTo(returnTo),
	}
	raw, err := json.Marshal(flow)
	if err != nil {
		return "", fmt.Errorf("encode flow state: %w", err)
	}
	sealed, err := p.flows.Seal(flowCookieName, string(raw))
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    sealed.Raw,
		Path:     "/",
		MaxAge:   int(flowLifetime.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return p.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(flow.Verifier),
		oidc.Nonce(nonce),
	), nil
}

// completeSignIn exchanges the authorization code, verifies the ID token and
// writes the session cookie. It returns the local path to land on.
func (p *Provider) completeSignIn(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	c, err := r.Cookie(flowCookieName)
	if err != nil {
		return "", fmt.Errorf("missing flow cookie: %w", sentinel.ErrNotFound)
	}
	p.clearCookie(w, flowCookieName)

	opened, err := p.flows.Open(flowCookieName, c.Value)
	if err != nil {
		return "", err
	}
	var flow flowState
	if err := json.Unmarshal([]byte(opened.Value), &flow); err != nil {
		return "", fmt.Errorf("decode flow state: %w: %v", sentinel.ErrInvalidState, err)
	}

	q := r.URL.Query()
	if q.Get("state") == "" || q.Get("state") != flow.State {
		return "", fmt.Errorf("state mismatch: %w", sentinel.ErrTampered)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("missing authorization code: %w", sentinel.ErrInvalidState)
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return "", fmt.Errorf("exchange authorization code: %w: %v", sentinel.ErrInvalidState, err)
		}
		return "", fmt.Errorf("exchange authorization code: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return "", fmt.Errorf("no id_token in token response: %w", sentinel.ErrInvalidState)
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w: %v", sentinel.ErrTampered, err)
	}
	var cl claims
	if err := idToken.Claims(&cl); err != nil {
		return "", fmt.Errorf("decode claims: %w: %v", sentinel.ErrInvalidState, err)
	}
	if cl.Nonce != flow.Nonce {
		return "", fmt.Errorf("nonce mismatch: %w", sentinel.ErrTampered)
	}

	payload, err := json.Marshal(stored{IDToken: rawID, AccessToken: token.AccessToken, Expiry: token.Expiry})
	if err != nil {
		return "", fmt.Errorf("encode hosted session: %w", err)
	}
	sealed, err := p.sessions.Seal(p.cookieName, string(payload))
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    sealed.Raw,
		Path:     "/",
		MaxAge:   int(p.sessions.MaxAge().Seconds()),
		Expires:  sealed.ExpiresAt,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	p.logger.InfoContext(ctx, "hosted sign-in completed", "subject", cl.Subject)
	p.emit(ctx, audit.Event{
		Action:   string(audit.EventHostedSignInSucceeded),
		Subject:  cl.Subject,
		Email:    cl.Email,
		Provider: domain.ProviderHosted.String(),
	})
	return flow.ReturnTo, nil
}

func (p *Provider) emit(ctx context.Context, ev audit.Event) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Emit(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "failed to record audit event",
			"action", ev.Action,
			"error", err,
		)
	}
}

// signOut clears the hosted session cookie.
func (p *Provider) signOut(w http.ResponseWriter) {
	p.clearCookie(w, p.cookieName)
}

func (p *Provider) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func userFromClaims(cl claims) domain.HostedUser {
	name := cl.Name
	if name == "" {
		name = cl.PreferredUsername
	}
	return domain.HostedUser{
		ID:             cl.Subject,
		DisplayName:    name,
		PrimaryEmail:   cl.Email,
		SelectedTeamID: cl.SelectedTeamID,
	}
}

// safeReturnTo only allows local absolute paths.
func safeReturnTo(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
