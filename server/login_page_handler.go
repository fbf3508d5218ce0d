package server

import (
	"net/http"

	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName   string
	SignInURL string
	Error     string
}

// LoginPageHandler displays the sign-in page (GET /login)
func (s *Server) LoginPageHandler() (http.HandlerFunc, error) {
	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		return nil, err
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessions.Active(); ok {
			http.Redirect(w, r, RouteHome, http.StatusSeeOther)
			return
		}

		data := LoginPageData{
			AppName:   s.config.GetAppName(),
			SignInURL: RouteAuthLogin,
		}
		if failure := s.provider.InteractionFailure(); failure != nil {
			data.Error = failure.Description
			if data.Error == "" {
				data.Error = failure.Code
			}
		}
		renderTemplate(w, loginTmpl, http.StatusOK, data)
	}, nil
}

// SignInHandler starts interactive sign-in from the login page
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessions.Active(); ok {
			http.Redirect(w, r, RouteHome, http.StatusSeeOther)
			return
		}
		s.metrics.RecordInteractiveRequest(metrics.InteractiveGuard)
		s.beginInteraction(w, r, RouteHome)
	}
}

// RetryHandler forgets the failed sign-in and goes back to the page that
// needed it, where the guard starts a new sign-in
func (s *Server) RetryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.provider.ClearInteractionFailure(); err != nil {
			log.Err(err).Msg("[Server RetryHandler] failed to clear interaction failure")
		}
		http.Redirect(w, r, safeReturnURL(r.URL.Query().Get("return")), http.StatusSeeOther)
	}
}

// LogoutHandler signs out of every cached session and sends the browser to
// the identity provider's end-session endpoint
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nav := &pageNavigator{}
		if err := s.provider.SignOut(provider.WithNavigator(r.Context(), nav)); err != nil {
			log.Err(err).Msg("[Server LogoutHandler] sign-out failed")
			s.renderAuthError(w, http.StatusInternalServerError, RouteHome, "signout_failed", "Sign-out could not be completed.")
			return
		}

		target := nav.Target()
		if target == "" {
			target = RouteLogin
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
