// Package identity answers "who is calling" for a request on the server side,
// under whichever provider is active.
package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"authgate/internal/hosted"
	"authgate/internal/provider"
	"authgate/internal/session"
	"authgate/pkg/domain"
	"authgate/pkg/platform/middleware/request"
	"authgate/pkg/platform/sentinel"
)

// CredentialReader reads the local session cookies.
type CredentialReader interface {
	Get(r *http.Request) (session.Credentials, bool)
}

// HostedSessions reads the hosted session.
type HostedSessions interface {
	Session(r *http.Request) (*hosted.Session, error)
}

// Resolver resolves the caller identity and access token for a request.
type Resolver struct {
	providers provider.Source
	creds     CredentialReader
	hosted    HostedSessions
	logger    *slog.Logger
}

// New creates a Resolver. hostedSessions may be nil when no hosted provider
// is configured; hosted requests then resolve to no identity.
func New(providers provider.Source, creds CredentialReader, hostedSessions HostedSessions, logger *slog.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		creds:     creds,
		hosted:    hostedSessions,
		logger:    logger,
	}
}

// User returns the caller identity, or nil when the caller is anonymous or
// their stored state cannot be read.
func (res *Resolver) User(r *http.Request) *domain.Identity {
	if provider.Current(r.Context(), res.providers).IsHosted() {
		s := res.hostedSession(r)
		if s == nil {
			return nil
		}
		return domain.HostedIdentity(s.User)
	}

	creds, ok := res.creds.Get(r)
	if !ok {
		return nil
	}
	if !creds.HasUser() {
		return domain.LocalIdentity(domain.DegradedProfile(creds.Token))
	}
	user, err := creds.User()
	if err != nil {
		res.logger.ErrorContext(r.Context(), "stored user profile is malformed",
			"request_id", request.GetRequestID(r.Context()),
			"error", err,
		)
		return nil
	}
	return domain.LocalIdentity(*user)
}

// AccessToken returns the bearer credential to forward upstream.
func (res *Resolver) AccessToken(r *http.Request) (string, bool) {
	if provider.Current(r.Context(), res.providers).IsHosted() {
		s := res.hostedSession(r)
		if s == nil || s.AccessToken == "" {
			return "", false
		}
		return s.AccessToken, true
	}

	creds, ok := res.creds.Get(r)
	if !ok {
		return "", false
	}
	return creds.Token, true
}

func (res *Resolver) hostedSession(r *http.Request) *hosted.Session {
	ctx := r.Context()
	if res.hosted == nil {
		res.logger.WarnContext(ctx, "hosted provider active but not configured",
			"request_id", request.GetRequestID(ctx),
		)
		return nil
	}
	s, err := res.hosted.Session(r)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			res.logger.WarnContext(ctx, "hosted session unreadable",
				"request_id", request.GetRequestID(ctx),
				"error", err,
			)
		}
		return nil
	}
	return s
}
