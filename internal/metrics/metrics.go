package metrics

import (
	"net/http"
	"strconv"
	"time"

	"deposit-governance/internal/governance"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the governance service
type Metrics struct {
	// Engine metrics
	eventsTotal      *prometheus.CounterVec
	depositedTokens  prometheus.Counter
	voteWeightTotal  *prometheus.CounterVec
	proposalsByPhase *prometheus.GaugeVec
	lapsedProposals  prometheus.Gauge

	// Outbox relay metrics
	relayPublished prometheus.Counter
	relayFailures  prometheus.Counter
	outboxPending  prometheus.Gauge

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance on its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_events_total",
				Help: "Total number of committed governance events by type",
			},
			[]string{"type"},
		),

		depositedTokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "governance_deposited_tokens_total",
				Help: "Total tokens transferred into the treasury by deposits",
			},
		),

		voteWeightTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_vote_weight_total",
				Help: "Total token weight cast by side",
			},
			[]string{"side"},
		),

		proposalsByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governance_proposals",
				Help: "Number of proposals by lifecycle phase and status",
			},
			[]string{"phase", "status"},
		),

		lapsedProposals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "governance_lapsed_unfinalized_proposals",
				Help: "Proposals whose voting window closed without an admin finalization",
			},
		),

		relayPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "governance_outbox_published_total",
				Help: "Total number of outbox events relayed",
			},
		),

		relayFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "governance_outbox_publish_failures_total",
				Help: "Total number of failed outbox relay attempts",
			},
		),

		outboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "governance_outbox_pending",
				Help: "Outbox events left unpublished after the last relay pass",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.eventsTotal,
		m.depositedTokens,
		m.voteWeightTotal,
		m.proposalsByPhase,
		m.lapsedProposals,
		m.relayPublished,
		m.relayFailures,
		m.outboxPending,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveEvent records a committed engine event. Register it with governance.WithEventHook.
func (m *Metrics) ObserveEvent(event governance.Event) {
	m.eventsTotal.WithLabelValues(string(event.Type())).Inc()

	switch ev := event.(type) {
	case governance.DepositMade:
		m.depositedTokens.Add(ev.Amount.InexactFloat64())
	case governance.VoteCasted:
		side := "denial"
		if ev.Approval {
			side = "approval"
		}
		m.voteWeightTotal.WithLabelValues(side).Add(ev.Weight.InexactFloat64())
	}
}

// PhaseCount is the number of proposals in one phase with one status
type PhaseCount struct {
	Phase  governance.Phase
	Status string
	Count  int
}

// SetProposalPhases replaces the per-phase proposal gauges
func (m *Metrics) SetProposalPhases(counts []PhaseCount) {
	m.proposalsByPhase.Reset()
	for _, c := range counts {
		m.proposalsByPhase.WithLabelValues(string(c.Phase), c.Status).Set(float64(c.Count))
	}
}

func (m *Metrics) SetLapsedProposals(n int) {
	m.lapsedProposals.Set(float64(n))
}

// RecordRelay records the outcome of one relay pass
func (m *Metrics) RecordRelay(published, failed, pending int) {
	m.relayPublished.Add(float64(published))
	m.relayFailures.Add(float64(failed))
	m.outboxPending.Set(float64(pending))
}

// GinMiddleware records request counts and latency per route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
