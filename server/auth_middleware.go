package server

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/rs/zerolog/log"
)

// pageNavigator records where the browser has to go. Handlers render the
// loading page which forwards the browser to the recorded target.
type pageNavigator struct {
	mu     sync.Mutex
	target string
}

func (n *pageNavigator) Navigate(_ context.Context, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = target
}

func (n *pageNavigator) Target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

type loadingPageData struct {
	AppName string
	Target  string
}

type errorPageData struct {
	AppName     string
	Code        string
	Description string
	RetryURL    string
}

// RequireSession guards protected pages. With an active session the page is
// rendered. After a failed sign-in the error page is shown until the user
// retries. Otherwise interactive sign-in starts and only the loading page is
// rendered.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, ok := s.sessions.Active(); ok {
				w.Header().Set("Cache-Control", "no-store")
				next(w, r)
				return
			}

			if failure := s.provider.InteractionFailure(); failure != nil {
				s.renderAuthError(w, http.StatusOK, r.URL.RequestURI(), failure.Code, failure.Description)
				return
			}

			s.metrics.RecordInteractiveRequest(metrics.InteractiveGuard)
			s.beginInteraction(w, r, r.URL.RequestURI())
		}
	}
}

// beginInteraction starts interactive sign-in for the login scopes and
// renders the loading page. returnURL is where the user lands afterwards.
func (s *Server) beginInteraction(w http.ResponseWriter, r *http.Request, returnURL string) {
	nav := &pageNavigator{}
	ctx := provider.WithReturnURL(provider.WithNavigator(r.Context(), nav), returnURL)

	if err := s.provider.AcquireInteractively(ctx, s.config.LoginRequest()); err != nil {
		log.Err(err).Str("return_url", returnURL).Msg("[Server] failed to start interactive sign-in")
		s.renderAuthError(w, http.StatusInternalServerError, returnURL, "interaction_failed", "Sign-in could not be started.")
		return
	}
	s.renderNavigation(w, returnURL, nav.Target())
}

func (s *Server) renderNavigation(w http.ResponseWriter, returnURL, target string) {
	if target == "" {
		s.renderAuthError(w, http.StatusInternalServerError, returnURL, "interaction_failed", "The identity provider could not be reached.")
		return
	}
	renderTemplate(w, loadingTemplate, http.StatusOK, loadingPageData{
		AppName: s.config.GetAppName(),
		Target:  target,
	})
}

func (s *Server) renderAuthError(w http.ResponseWriter, status int, returnURL, code, description string) {
	renderTemplate(w, errorTemplate, status, errorPageData{
		AppName:     s.config.GetAppName(),
		Code:        code,
		Description: description,
		RetryURL:    RouteAuthRetry + "?return=" + url.QueryEscape(safeReturnURL(returnURL)),
	})
}
