// Package metrics exposes Prometheus counters for the session lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Silent acquisition outcomes
const (
	SilentCacheHit  = "cache_hit"
	SilentRefreshed = "refreshed"
	SilentFailed    = "failed"
)

// Reasons an interactive authentication was requested
const (
	InteractiveGuard         = "guard"
	InteractiveSilentFailure = "silent_failure"
	InteractiveUnauthorized  = "unauthorized"
	InteractiveJoined        = "joined"
)

// Recorder is used by the provider and gateway to count lifecycle events
type Recorder interface {
	RecordSilentAcquisition(outcome string)
	RecordInteractiveRequest(reason string)
	RecordRedirectResult(success bool)
	RecordGatewayRequest(authenticated bool)
	RecordAuthorizationRejected()
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	silent      *prometheus.CounterVec
	interactive *prometheus.CounterVec
	redirects   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	rejected    prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		silent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourstracker_silent_acquisitions_total",
			Help: "Silent credential acquisitions by outcome.",
		}, []string{"outcome"}),
		interactive: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourstracker_interactive_requests_total",
			Help: "Interactive authentication requests by reason.",
		}, []string{"reason"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourstracker_redirect_results_total",
			Help: "Identity provider redirect resumptions by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourstracker_gateway_requests_total",
			Help: "API requests seen by the gateway.",
		}, []string{"authenticated"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourstracker_authorization_rejected_total",
			Help: "API responses rejected with 401.",
		}),
	}
	reg.MustRegister(c.silent, c.interactive, c.redirects, c.requests, c.rejected)
	return c
}

func (c *Collector) RecordSilentAcquisition(outcome string) {
	c.silent.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordInteractiveRequest(reason string) {
	c.interactive.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRedirectResult(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.redirects.WithLabelValues(result).Inc()
}

func (c *Collector) RecordGatewayRequest(authenticated bool) {
	label := "false"
	if authenticated {
		label = "true"
	}
	c.requests.WithLabelValues(label).Inc()
}

func (c *Collector) RecordAuthorizationRejected() {
	c.rejected.Inc()
}

// Handler serves the registry in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordSilentAcquisition(string)  {}
func (Nop) RecordInteractiveRequest(string) {}
func (Nop) RecordRedirectResult(bool)       {}
func (Nop) RecordGatewayRequest(bool)       {}
func (Nop) RecordAuthorizationRejected()    {}
