package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the poller's Prometheus collectors on a private registry.
type Metrics struct {
	Registry        *prometheus.Registry
	Cycles          *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	PagesFetched    prometheus.Counter
	EventsNew       prometheus.Counter
	EventsForwarded prometheus.Counter
	State           prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "starkcron_cycles_total", Help: "Completed poll cycles"},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "starkcron_cycle_duration_seconds", Help: "Poll cycle latency", Buckets: prometheus.DefBuckets},
			[]string{"status"},
		),
		PagesFetched: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "starkcron_pages_fetched_total", Help: "Feed pages fetched"},
		),
		EventsNew: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "starkcron_events_new_total", Help: "Events stored for the first time"},
		),
		EventsForwarded: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "starkcron_events_forwarded_total", Help: "Events delivered to the indexing API"},
		),
		State: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "starkcron_controller_state", Help: "0 idle, 1 fetching"},
		),
	}
	m.Registry.MustRegister(m.Cycles, m.CycleDuration, m.PagesFetched, m.EventsNew, m.EventsForwarded, m.State)
	return m
}

// ObserveCycle records the outcome of one cycle.
func (m *Metrics) ObserveCycle(err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Cycles.WithLabelValues(status).Inc()
	m.CycleDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}

func (m *Metrics) NewEvents(n int) {
	if m == nil {
		return
	}
	m.EventsNew.Add(float64(n))
}

func (m *Metrics) Forwarded(n int) {
	if m == nil {
		return
	}
	m.EventsForwarded.Add(float64(n))
}

// SetFetching flips the controller state gauge.
func (m *Metrics) SetFetching(fetching bool) {
	if m == nil {
		return
	}
	if fetching {
		m.State.Set(1)
		return
	}
	m.State.Set(0)
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the metrics server until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server start", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
	return <-errCh
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
