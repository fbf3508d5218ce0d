package server

import (
	"net/http"

	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/rs/zerolog/log"
)

// ResumeRedirectMiddleware completes a pending interactive sign-in when the
// identity provider sends the browser back to the redirect URI, then
// navigates to the page that started the sign-in. On failure the same page
// is loaded and the guard shows the error.
func (s *Server) ResumeRedirectMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if r.URL.Path != s.redirectPath || !provider.IsRedirectResponse(query) {
			next(w, r)
			return
		}

		result, err := s.provider.HandleRedirect(r.Context(), query)
		if err != nil {
			returnURL := RouteHome
			var authErr *provider.InteractiveAuthError
			if errors.As(err, &authErr) && authErr.ReturnURL != "" {
				returnURL = authErr.ReturnURL
			}
			logError(r.Method, r.URL.Path, err.Error())
			http.Redirect(w, r, safeReturnURL(returnURL), http.StatusSeeOther)
			return
		}
		if result == nil {
			next(w, r)
			return
		}

		log.Info().Str("account", result.Session.AccountID).Str("return_url", result.ReturnURL).Msg("Resuming after sign-in")
		http.Redirect(w, r, safeReturnURL(result.ReturnURL), http.StatusSeeOther)
	}
}

// RedirectLandingHandler serves the redirect URI when it is not the home
// page. Authorization responses are consumed by ResumeRedirectMiddleware.
func (s *Server) RedirectLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteHome, http.StatusSeeOther)
	}
}
