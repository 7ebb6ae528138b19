package hosted

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"authgate/internal/audit"
	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
	"authgate/pkg/platform/middleware/request"
	"authgate/pkg/platform/sentinel"
)

// Register mounts the hosted sign-in routes.
func (p *Provider) Register(r chi.Router) {
	r.Get("/handler/sign-in", p.handleSignIn)
	r.Get("/handler/callback", p.handleCallback)
	r.Post("/handler/sign-out", p.handleSignOut)
}

func (p *Provider) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := p.beginSignIn(w, r.URL.Query().Get("return_to"))
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to start hosted sign-in",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start sign-in"))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (p *Provider) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	if idpErr := r.URL.Query().Get("error"); idpErr != "" {
		p.clearCookie(w, flowCookieName)
		p.logger.WarnContext(ctx, "hosted issuer returned an error",
			"request_id", requestID,
			"error", idpErr,
			"error_description", r.URL.Query().Get("error_description"),
		)
		p.emitFailure(r, idpErr)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "sign-in was not completed"))
		return
	}

	returnTo, err := p.completeSignIn(ctx, w, r)
	if err != nil {
		p.logger.WarnContext(ctx, "hosted sign-in failed",
			"request_id", requestID,
			"error", err,
		)
		if errors.Is(err, sentinel.ErrUnavailable) {
			p.emitFailure(r, string(dErrors.CodeUnavailable))
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unavailable"))
			return
		}
		p.emitFailure(r, "verification_failed")
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "sign-in could not be verified"))
		return
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

func (p *Provider) handleSignOut(w http.ResponseWriter, r *http.Request) {
	p.signOut(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Provider) emitFailure(r *http.Request, reason string) {
	p.emit(r.Context(), audit.Event{
		Action:   string(audit.EventHostedSignInFailed),
		Provider: domain.ProviderHosted.String(),
		Reason:   reason,
	})
}
