package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/hourstracker-client/apiclient"
	"github.com/jrsteele09/hourstracker-client/internal/config"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// CredentialProvider is the part of the credential provider the pages drive
type CredentialProvider interface {
	AcquireInteractively(ctx context.Context, scopes []string) error
	HandleRedirect(ctx context.Context, query url.Values) (*provider.AuthResult, error)
	InteractionFailure() *cache.InteractionFailure
	ClearInteractionFailure() error
	SignOut(ctx context.Context) error
}

type SessionReader interface {
	Active() (session.Session, bool)
}

// UserFetcher calls the Hours Tracker API through the authorized gateway
type UserFetcher interface {
	FetchCurrentUser(ctx context.Context) (*apiclient.AppUser, error)
}

var _ UserFetcher = (*apiclient.Client)(nil)

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	provider     CredentialProvider
	sessions     SessionReader
	api          UserFetcher
	metrics      metrics.Recorder
	gatherer     prometheus.Gatherer
	redirectPath string
}

type Option func(*Server)

// WithMetrics records guard activity in recorder and serves gatherer on /metrics
func WithMetrics(recorder metrics.Recorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = recorder
		s.gatherer = gatherer
	}
}

func New(config config.Config, p CredentialProvider, sessions SessionReader, api UserFetcher, opts ...Option) (*Server, error) {
	redirectURI, err := url.Parse(config.GetRedirectURI())
	if err != nil {
		return nil, fmt.Errorf("[Server New] invalid redirect uri %q: %w", config.GetRedirectURI(), err)
	}

	s := &Server{
		env:          config.GetEnv(),
		mux:          http.NewServeMux(),
		config:       config,
		provider:     p,
		sessions:     sessions,
		api:          api,
		metrics:      metrics.Nop{},
		redirectPath: redirectURI.Path,
	}
	if s.redirectPath == "" {
		s.redirectPath = "/"
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", colouredMethod(method), path, Red+error+ResetColor)
}

// safeReturnURL only allows paths on this client
func safeReturnURL(returnURL string) string {
	if !strings.HasPrefix(returnURL, "/") || strings.HasPrefix(returnURL, "//") || strings.HasPrefix(returnURL, "/\\") {
		return RouteHome
	}
	return returnURL
}
