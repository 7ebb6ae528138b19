// Package handler exposes the local sign-in flows over HTTP. It is the only
// place that writes or clears the local session cookies.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"authgate/internal/auth/models"
	"authgate/internal/platform/metrics"
	"authgate/internal/session"
	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
	"authgate/pkg/platform/middleware/request"
)

const maxBodyBytes = 64 << 10

// Service defines the interface for the local sign-in flows.
type Service interface {
	Login(ctx context.Context, req models.LoginRequest) (*domain.Session, error)
	Register(ctx context.Context, req models.RegisterRequest) (*domain.Session, error)
	Establish(ctx context.Context, req models.SessionRequest) (*domain.Session, error)
	RecordLogout(ctx context.Context, user *domain.UserProfile)
}

// CookieStore persists the local session cookies.
type CookieStore interface {
	Set(w http.ResponseWriter, token string, user *domain.UserProfile) error
	Get(r *http.Request) (session.Credentials, bool)
	Clear(w http.ResponseWriter)
	Revoke(ctx context.Context, creds session.Credentials) error
}

// Handler handles the /auth endpoints.
type Handler struct {
	auth    Service
	cookies CookieStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a new auth Handler.
func New(auth Service, cookies CookieStore, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		auth:    auth,
		cookies: cookies,
		logger:  logger,
		metrics: m,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/session", h.handleSession)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/oss", h.handleHydrate)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.Login(r.Context(), req)
	h.respond(w, r, "login", sess, err)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.Register(r.Context(), req)
	h.respond(w, r, "register", sess, err)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.Establish(r.Context(), req)
	h.respond(w, r, "session", sess, err)
}

// handleHydrate returns the session held in the cookies. A token without a
// readable user snapshot is answered with the degraded profile.
func (h *Handler) handleHydrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creds, ok := h.cookies.Get(r)
	if !ok {
		h.metrics.IncHydration("unauthenticated")
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return
	}

	user, err := creds.User()
	if err != nil {
		h.logger.ErrorContext(ctx, "stored user snapshot is malformed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	}
	if user == nil {
		degraded := domain.DegradedProfile(creds.Token)
		user = &degraded
		h.metrics.IncHydration("degraded")
	} else {
		h.metrics.IncHydration("ok")
	}
	httputil.WriteJSON(w, http.StatusOK, domain.Session{Token: creds.Token, User: user})
}

// handleLogout always succeeds: revocation failures are logged and the
// cookies are cleared regardless.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var user *domain.UserProfile
	if creds, ok := h.cookies.Get(r); ok {
		if err := h.cookies.Revoke(ctx, creds); err != nil {
			h.logger.WarnContext(ctx, "failed to revoke session cookie",
				"request_id", request.GetRequestID(ctx),
				"error", err,
			)
		}
		var err error
		if user, err = creds.User(); err != nil {
			h.logger.WarnContext(ctx, "stored user snapshot is malformed",
				"request_id", request.GetRequestID(ctx),
				"error", err,
			)
		}
	}
	h.cookies.Clear(w)
	h.auth.RecordLogout(ctx, user)
	httputil.WriteJSON(w, http.StatusOK, models.LogoutResponse{Status: "logged_out"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(ctx, "invalid auth request body",
			"request_id", request.GetRequestID(ctx),
			"path", r.URL.Path,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// respond persists a successful session in cookies and echoes it back.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, action string, sess *domain.Session, err error) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "auth request failed",
				"request_id", requestID,
				"action", action,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	if err := h.cookies.Set(w, sess.Token, sess.User); err != nil {
		h.logger.ErrorContext(ctx, "failed to persist session cookies",
			"request_id", requestID,
			"action", action,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}
