package server

import (
	"net/http"

	"github.com/jrsteele09/hourstracker-client/apiclient"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
)

type dashboardPageData struct {
	AppName      string
	Session      session.Session
	User         *apiclient.AppUser
	ProfileError string
	SignOutURL   string
}

// DashboardHandler renders the protected home page. It must be wrapped by
// RequireSession.
func (s *Server) DashboardHandler() (http.HandlerFunc, error) {
	tmpl, err := ParseTemplate("dashboard.html")
	if err != nil {
		return nil, err
	}

	return func(w http.ResponseWriter, r *http.Request) {
		active, _ := s.sessions.Active()

		// API calls may need the user back at the identity provider
		nav := &pageNavigator{}
		ctx := provider.WithReturnURL(provider.WithNavigator(r.Context(), nav), r.URL.RequestURI())

		data := dashboardPageData{
			AppName:    s.config.GetAppName(),
			Session:    active,
			SignOutURL: RouteAuthLogout,
		}

		user, err := s.api.FetchCurrentUser(ctx)
		if target := nav.Target(); target != "" {
			s.renderNavigation(w, r.URL.RequestURI(), target)
			return
		}
		if err != nil {
			log.Err(err).Str("account", active.AccountID).Msg("[Server DashboardHandler] failed to load profile")
			data.ProfileError = "Unable to load your profile."
		} else {
			data.User = user
		}

		renderTemplate(w, tmpl, http.StatusOK, data)
	}, nil
}
