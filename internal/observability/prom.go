package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Provisioning
	ProvisionResults   *prometheus.CounterVec
	ProvisionDuration  *prometheus.HistogramVec
	SchemaDriftRetries prometheus.Counter

	// Tokens
	TokenVerifications *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labshare",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labshare",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "labshare",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labshare",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labshare",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		ProvisionResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labshare",
				Subsystem: "provisioning",
				Name:      "results_total",
				Help:      "Provisioning outcomes by organization kind and result.",
			},
			[]string{"kind", "result"}, // result=committed|rolled_back|rejected
		),
		ProvisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labshare",
				Subsystem: "provisioning",
				Name:      "duration_seconds",
				Help:      "Provisioning transaction duration by kind and result.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"kind", "result"},
		),
		SchemaDriftRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "labshare",
				Subsystem: "provisioning",
				Name:      "schema_drift_retries_total",
				Help:      "User inserts retried without the optional provenance column.",
			},
		),
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labshare",
				Subsystem: "auth",
				Name:      "token_verifications_total",
				Help:      "Bearer token checks by outcome.",
			},
			[]string{"outcome"}, // outcome=ok|expired|invalid|missing
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.ProvisionResults, p.ProvisionDuration, p.SchemaDriftRetries,
		p.TokenVerifications,
	)

	return p
}

func (p *Prom) ObserveProvision(kind, result string, d time.Duration) {
	if p == nil {
		return
	}
	p.ProvisionResults.WithLabelValues(kind, result).Inc()
	p.ProvisionDuration.WithLabelValues(kind, result).Observe(d.Seconds())
}

func (p *Prom) IncSchemaDriftRetry() {
	if p == nil {
		return
	}
	p.SchemaDriftRetries.Inc()
}

func (p *Prom) IncTokenOutcome(outcome string) {
	if p == nil {
		return
	}
	p.TokenVerifications.WithLabelValues(outcome).Inc()
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
