// Package service implements the server-side local sign-in flows: it talks to
// the backend, fills in missing profiles and records audit events. Cookie
// handling stays in the handler.
package service

import (
	"context"
	"log/slog"

	"authgate/internal/audit"
	"authgate/internal/auth/models"
	"authgate/internal/platform/metrics"
	"authgate/pkg/backend"
	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/middleware/request"
)

// Backend is the subset of the backend API the flows use.
type Backend interface {
	Login(ctx context.Context, creds backend.Credentials) (*domain.Session, error)
	Register(ctx context.Context, creds backend.Credentials) (*domain.Session, error)
	Me(ctx context.Context, token string) (*domain.UserProfile, error)
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	backend Backend
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func New(b Backend, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{backend: b, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login validates the request and exchanges the credentials with the backend.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*domain.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.metrics.IncAuthAttempt("login", "invalid")
		return nil, err
	}

	sess, err := s.backend.Login(ctx, backend.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		s.metrics.IncAuthAttempt("login", outcome(err))
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventLoginFailed),
			Subject:  req.Email,
			Email:    req.Email,
			Provider: domain.ProviderLocal.String(),
			Reason:   string(dErrors.CodeOf(err)),
		})
		return nil, err
	}

	sess.User = s.completeProfile(ctx, sess.Token, sess.User, req.Email)
	s.metrics.IncAuthAttempt("login", "success")
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventLoginSucceeded),
		Subject:  sess.User.ID.String(),
		Email:    req.Email,
		Provider: domain.ProviderLocal.String(),
	})
	return sess, nil
}

// Register validates the request and creates the account on the backend.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*domain.Session, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.metrics.IncAuthAttempt("register", "invalid")
		return nil, err
	}

	sess, err := s.backend.Register(ctx, backend.Credentials{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		s.metrics.IncAuthAttempt("register", outcome(err))
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventRegistrationFailed),
			Subject:  req.Email,
			Email:    req.Email,
			Provider: domain.ProviderLocal.String(),
			Reason:   string(dErrors.CodeOf(err)),
		})
		return nil, err
	}

	sess.User = s.completeProfile(ctx, sess.Token, sess.User, req.Email)
	s.metrics.IncAuthAttempt("register", "success")
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventUserRegistered),
		Subject:  sess.User.ID.String(),
		Email:    req.Email,
		Provider: domain.ProviderLocal.String(),
	})
	return sess, nil
}

// Establish persists a token the caller obtained from the backend itself.
// The profile always comes from the backend's /auth/me; a profile supplied by
// the caller is never trusted. A token the backend rejects is refused. When
// the backend cannot be reached the degraded profile is used.
func (s *Service) Establish(ctx context.Context, req models.SessionRequest) (*domain.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var user domain.UserProfile
	fetched, err := s.backend.Me(ctx, req.Token)
	switch {
	case err == nil:
		user = fetched.Normalize()
	case dErrors.HasCode(err, dErrors.CodeUnavailable):
		s.logger.WarnContext(ctx, "profile lookup failed, storing degraded profile",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		user = domain.DegradedProfile(req.Token)
	default:
		s.metrics.IncAuthAttempt("session", "rejected")
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventSessionRejected),
			Provider: domain.ProviderLocal.String(),
			Reason:   string(dErrors.CodeOf(err)),
		})
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "session token rejected")
	}

	s.emit(ctx, audit.Event{
		Action:   string(audit.EventSessionEstablished),
		Subject:  user.ID.String(),
		Email:    user.Email,
		Provider: user.Provider.String(),
	})
	return &domain.Session{Token: req.Token, User: &user}, nil
}

// RecordLogout audits a logout. Logout itself cannot fail.
func (s *Service) RecordLogout(ctx context.Context, user *domain.UserProfile) {
	ev := audit.Event{
		Action:   string(audit.EventLoggedOut),
		Provider: domain.ProviderLocal.String(),
	}
	if user != nil {
		ev.Subject = user.ID.String()
		ev.Email = user.Email
	}
	s.emit(ctx, ev)
}

// completeProfile makes sure a session always carries a profile: the backend
// response first, then /auth/me, then the degraded profile.
func (s *Service) completeProfile(ctx context.Context, token string, user *domain.UserProfile, email string) *domain.UserProfile {
	if user != nil {
		u := user.Normalize()
		if u.Name == "" {
			u.Name = email
		}
		return &u
	}
	if fetched, err := s.backend.Me(ctx, token); err == nil {
		return fetched
	}
	degraded := domain.DegradedProfile(token)
	return &degraded
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event",
			"request_id", request.GetRequestID(ctx),
			"action", ev.Action,
			"error", err,
		)
	}
}

func outcome(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthorized:
		return "rejected"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return "invalid"
	default:
		return "error"
	}
}
