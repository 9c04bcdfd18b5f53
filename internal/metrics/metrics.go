// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
)

const namespace = "sensord"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Polls        *prometheus.CounterVec   // mode, result
	PollDuration *prometheus.HistogramVec // mode
	Devices      prometheus.Gauge
	LinkRate     prometheus.Gauge
	Restarts     *prometheus.CounterVec // result
	Commands     *prometheus.CounterVec // command, result
	CycleErrors  prometheus.Counter
	LastCycle    prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Device polls by mode and result.",
		}, []string{"mode", "result"}),

		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Wall time of one device poll including retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"mode"}),

		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices loaded from the registry in the last cycle.",
		}),

		LinkRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_success_rate",
			Help:      "Success rate over the radio health window.",
		}),

		Restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "radio_restarts_total",
			Help:      "Radio stack restarts by result.",
		}, []string{"result"}),

		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_commands_total",
			Help:      "Queued commands by command and result.",
		}, []string{"command", "result"}),

		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Daemon cycles that ended in an error or panic.",
		}),

		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		}),
	}

	m.Registry.MustRegister(
		m.Polls,
		m.PollDuration,
		m.Devices,
		m.LinkRate,
		m.Restarts,
		m.Commands,
		m.CycleErrors,
		m.LastCycle,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePoll records one poll.
func (m *Metrics) ObservePoll(mode string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Polls.WithLabelValues(mode, result).Inc()
	m.PollDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRestart records a radio restart attempt.
func (m *Metrics) ObserveRestart(err error) {
	if err != nil {
		m.Restarts.WithLabelValues("error").Inc()
		return
	}
	m.Restarts.WithLabelValues("ok").Inc()
}

// ObserveCommand records one queue line outcome. result is dispatched, failed or skipped.
// Command names come from an external file; anything unrecognised is labelled "unknown".
func (m *Metrics) ObserveCommand(command, result string) {
	m.Commands.WithLabelValues(commandLabel(command), result).Inc()
}

func commandLabel(command string) string {
	switch command {
	case cmdqueue.CommandSetWateringThresholds, cmdqueue.CommandControlActuator:
		return command
	default:
		return "unknown"
	}
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes path on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr, path string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
