package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spigell/interviewer/internal/ai"
)

const namespace = "interviewer"

type Metrics struct {
	registry *prometheus.Registry

	requestDuration  *prometheus.SummaryVec
	requests         *prometheus.CounterVec
	generateDuration *prometheus.HistogramVec
	generations      *prometheus.CounterVec
	transitions      *prometheus.CounterVec
}

// New registers the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestDuration: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.95: 0.005,
					0.99: 0.001,
				},
			},
			[]string{"method", "path", "status_code"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		generateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generate_duration_seconds",
				Help:      "Generative backend call duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"provider", "model"},
		),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generate_requests_total",
				Help:      "Total number of generative backend calls by result",
			},
			[]string{"provider", "model", "result"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidate_transitions_total",
				Help:      "Candidate status transitions",
			},
			[]string{"from", "to"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records latency and count per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		duration := time.Since(start).Seconds()

		method := ctx.Request.Method
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		statusCode := strconv.Itoa(ctx.Writer.Status())

		m.requestDuration.WithLabelValues(method, path, statusCode).Observe(duration)
		m.requests.WithLabelValues(method, path, statusCode).Inc()
	}
}

// Transition counts a candidate moving between statuses. Equal statuses are
// ignored.
func (m *Metrics) Transition(from, to string) {
	if from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Instrument wraps a generator so every call is timed and counted.
func (m *Metrics) Instrument(provider string, g ai.Generator) ai.Generator {
	return &instrumented{metrics: m, provider: provider, next: g}
}

type instrumented struct {
	metrics  *Metrics
	provider string
	next     ai.Generator
}

func (i *instrumented) Generate(ctx context.Context, req ai.Request) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, req)

	model := i.next.Model()
	i.metrics.generateDuration.WithLabelValues(i.provider, model).Observe(time.Since(start).Seconds())
	i.metrics.generations.WithLabelValues(i.provider, model, result(err)).Inc()

	return out, err
}

func (i *instrumented) Model() string { return i.next.Model() }

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
