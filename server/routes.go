package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/hourstracker-client/internal/metrics"
)

func (s *Server) initRoutes() error {
	dashboard, err := s.DashboardHandler()
	if err != nil {
		return err
	}
	login, err := s.LoginPageHandler()
	if err != nil {
		return err
	}

	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(dashboard, s.HTMLMiddleWare(s.RequireSession())...))

	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(login, s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogin, ChainMiddleware(s.SignInHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthRetry, ChainMiddleware(s.RetryHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// The identity provider returns to the redirect URI; "/" is already covered by the dashboard
	if s.redirectPath != RouteHome {
		s.RegisterRouteHandler("GET "+s.redirectPath, ChainMiddleware(s.RedirectLandingHandler(), s.HTMLMiddleWare()...))
	}

	if s.gatherer != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler(s.gatherer))
	}

	s.RegisterRouteFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		logError(r.Method, r.URL.Path, "not found")
		http.Error(w, fmt.Sprintf("404 - %s not found", r.URL.Path), http.StatusNotFound)
	})
	return nil
}
