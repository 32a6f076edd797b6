// Package metrics exposes Prometheus counters for the authentication flows and session lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow names used as the flow label.
const (
	FlowRequestOTP = "request_otp"
	FlowVerifyOTP  = "verify_otp"
	FlowRefresh    = "refresh"
	FlowLogout     = "logout"
)

// Recorder owns a registry and the service counters. It implements the session store Observer.
type Recorder struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	evicted  prometheus.Counter
	swept    prometheus.Counter
	limited  prometheus.Counter
}

// NewRecorder returns a Recorder on a fresh registry that also carries the Go and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otpauth",
			Name:      "flow_outcomes_total",
			Help:      "Authentication flow results by flow and outcome (ok or an error kind).",
		}, []string{"flow", "outcome"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otpauth",
			Name:      "sessions_evicted_total",
			Help:      "Active sessions revoked to make room under the per-user cap.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otpauth",
			Name:      "sessions_swept_total",
			Help:      "Active sessions moved to expired by the cleanup sweep.",
		}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "otpauth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
	}
	reg.MustRegister(r.outcomes, r.evicted, r.swept, r.limited,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// FlowOutcome counts one finished flow. A nil Recorder is a no-op.
func (r *Recorder) FlowOutcome(flow, outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(flow, outcome).Inc()
}

func (r *Recorder) SessionsEvicted(n int) {
	if r == nil {
		return
	}
	r.evicted.Add(float64(n))
}

func (r *Recorder) SessionsSwept(n int64) {
	if r == nil {
		return
	}
	r.swept.Add(float64(n))
}

// RateLimited counts one rejected request.
func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.limited.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
