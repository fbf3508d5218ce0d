package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/hourstracker-client/apiclient"
	"github.com/jrsteele09/hourstracker-client/gateway"
	"github.com/jrsteele09/hourstracker-client/internal/config"
	"github.com/jrsteele09/hourstracker-client/internal/metrics"
	"github.com/jrsteele09/hourstracker-client/provider"
	"github.com/jrsteele09/hourstracker-client/provider/cache"
	"github.com/jrsteele09/hourstracker-client/server"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running client")
	}
	log.Info().Msg("Client stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Bytes("stack", debug.Stack()).Msgf("Recovered from panic: %v", r)
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	repo, err := openCache(c)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	credentials, err := provider.New(ctx, c, repo, provider.WithMetrics(recorder))
	cancel()
	if err != nil {
		return fmt.Errorf("provider.New: %w", err)
	}

	store := session.NewStore(credentials)
	store.Initialize()
	defer store.Close()

	api := apiclient.New(c.GetAPIBaseURL())
	gateway.New(credentials, store, c.APITokenRequest(), gateway.WithMetrics(recorder)).Register(api)

	handler, err := server.New(c, credentials, store, api, server.WithMetrics(recorder, reg))
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	returnError = shutdown(httpServer)
	return returnError
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openCache returns the persistent cache when CACHE_PATH is set, otherwise an
// in-memory cache that forgets every session on exit
func openCache(c config.CacheConfig) (cache.Repo, error) {
	if c.GetCachePath() == "" {
		log.Info().Msg("Using in-memory session cache")
		return cache.NewInMemoryRepo(), nil
	}
	if c.GetCacheKey() == "" {
		return nil, fmt.Errorf("CACHE_KEY is required when CACHE_PATH is set")
	}

	sealer, err := cache.NewSealer(c.GetCacheKey())
	if err != nil {
		return nil, fmt.Errorf("cache.NewSealer: %w", err)
	}
	repo, err := cache.NewSQLiteRepo(c.GetCachePath(), sealer)
	if err != nil {
		return nil, fmt.Errorf("cache.NewSQLiteRepo: %w", err)
	}
	log.Info().Str("path", c.GetCachePath()).Msg("Using persistent session cache")
	return repo, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Client listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
