// Package metrics records Prometheus metrics from bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
)

const namespace = "gqlendpoint"

// Metrics holds the endpoint's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests      *prometheus.CounterVec
	requestTime   prometheus.Histogram
	responseBytes prometheus.Histogram
	operations    *prometheus.CounterVec
	operationTime *prometheus.HistogramVec
	schemaBuilds  *prometheus.CounterVec
	schemaTime    prometheus.Histogram
	loaderBatches *prometheus.CounterVec
	loaderKeys    *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests served, by status code.",
		}, []string{"code"}),
		requestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Time to serve an HTTP request.",
			Buckets: prometheus.DefBuckets,
		}),
		responseBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "response_size_bytes",
			Help:    "Size of HTTP response bodies.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "operations_total",
			Help: "GraphQL operations executed, by type and outcome.",
		}, []string{"type", "outcome"}),
		operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "graphql", Name: "operation_duration_seconds",
			Help:    "Time to execute a GraphQL operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		schemaBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "schema", Name: "builds_total",
			Help: "Schema builds, by document origin and outcome.",
		}, []string{"origin", "outcome"}),
		schemaTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "schema", Name: "build_duration_seconds",
			Help:    "Time to build the executable schema.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		loaderBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loader", Name: "batches_total",
			Help: "Batch calls issued by deferred loaders.",
		}, []string{"loader", "outcome"}),
		loaderKeys: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "loader", Name: "batch_keys",
			Help:    "Keys per loader batch call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"loader"}),
	}
	reg.MustRegister(
		m.requests, m.requestTime, m.responseBytes,
		m.operations, m.operationTime,
		m.schemaBuilds, m.schemaTime,
		m.loaderBatches, m.loaderKeys,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Subscribe feeds the collectors from the global bus. It returns a function
// removing the subscriptions.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	offs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.requests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			m.requestTime.Observe(e.Duration.Seconds())
			m.responseBytes.Observe(float64(e.Bytes))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			m.operations.WithLabelValues(e.OperationType, outcome(len(e.Errors) > 0)).Inc()
			m.operationTime.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SchemaBuilt) {
			origin := "source"
			if e.FromCache {
				origin = "cache"
			}
			m.schemaBuilds.WithLabelValues(origin, outcome(e.Err != nil)).Inc()
			m.schemaTime.Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.LoaderDispatch) {
			m.loaderBatches.WithLabelValues(e.Loader, outcome(e.Err != nil)).Inc()
			m.loaderKeys.WithLabelValues(e.Loader).Observe(float64(e.Keys))
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
