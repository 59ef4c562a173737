// Package metrics exposes prometheus counters for the labeler pipeline.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pride_labeler"

// Metrics implements the pipeline observer contracts over a dedicated
// prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	labelsCreated     *prometheus.CounterVec
	labelsNegated     *prometheus.CounterVec
	triggersIgnored   *prometheus.CounterVec
	writesDeferred    prometheus.Counter
	replays           *prometheus.CounterVec
	eventsReceived    prometheus.Counter
	eventsMalformed   prometheus.Counter
	streamConnects    prometheus.Counter
	streamDisconnects prometheus.Counter
}

// New builds a registry with process collectors and the labeler counters.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		labelsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_created_total",
			Help:      "Label assertions written with neg=false",
		}, []string{"val"}),
		labelsNegated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_negated_total",
			Help:      "Label assertions written with neg=true",
		}, []string{"val"}),
		triggersIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_ignored_total",
			Help:      "Inbound triggers that produced no ledger write",
		}, []string{"reason"}),
		writesDeferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_deferred_total",
			Help:      "Failed ledger writes parked in the pending queue",
		}),
		replays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_replays_total",
			Help:      "Pending queue replay outcomes",
		}, []string{"outcome"}),
		eventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Commit events matching the watched collection",
		}),
		eventsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_malformed_total",
			Help:      "Stream frames or records that failed to decode",
		}),
		streamConnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connects_total",
			Help:      "Successful jetstream connections",
		}),
		streamDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_disconnects_total",
			Help:      "Jetstream connection closures",
		}),
	}
}

// Mutation outcomes.

func (m *Metrics) LabelCreated(val string) {
	m.labelsCreated.WithLabelValues(val).Inc()
}

func (m *Metrics) LabelNegated(val string) {
	m.labelsNegated.WithLabelValues(val).Inc()
}

func (m *Metrics) TriggerIgnored(reason string) {
	m.triggersIgnored.WithLabelValues(reason).Inc()
}

func (m *Metrics) WriteDeferred() {
	m.writesDeferred.Inc()
}

// Replay outcomes.

func (m *Metrics) ReplaySucceeded() {
	m.replays.WithLabelValues("succeeded").Inc()
}

func (m *Metrics) ReplayFailed() {
	m.replays.WithLabelValues("failed").Inc()
}

func (m *Metrics) ReplayAbandoned() {
	m.replays.WithLabelValues("abandoned").Inc()
}

// Stream outcomes.

func (m *Metrics) EventReceived() {
	m.eventsReceived.Inc()
}

func (m *Metrics) EventMalformed() {
	m.eventsMalformed.Inc()
}

func (m *Metrics) StreamConnected() {
	m.streamConnects.Inc()
}

func (m *Metrics) StreamDisconnected() {
	m.streamDisconnects.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until context cancellation.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	log.Printf("metrics server listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
