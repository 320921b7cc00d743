package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector holds the daemon's Prometheus series. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	framesSent     *prometheus.CounterVec
	frameErrors    prometheus.Counter
	droppedBlocks  prometheus.Counter
	transitions    *prometheus.CounterVec
	results        *prometheus.CounterVec
	protocolErrors prometheus.Counter
	connected      prometheus.Gauge
	hooks          *prometheus.CounterVec
}

// New registers all series on a private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captionjoin_frames_sent_total",
			Help: "Audio frames written to the backend, by kind.",
		}, []string{"kind"}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "captionjoin_frame_send_errors_total",
			Help: "Audio frames dropped because the socket write failed.",
		}),
		droppedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "captionjoin_capture_blocks_dropped_total",
			Help: "Capture blocks dropped because the event loop was saturated.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captionjoin_recorder_transitions_total",
			Help: "Recorder status transitions, by target status.",
		}, []string{"status"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captionjoin_results_total",
			Help: "Transcript result messages received, by finality.",
		}, []string{"final"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "captionjoin_protocol_errors_total",
			Help: "Server messages that could not be decoded.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "captionjoin_connected_recorders",
			Help: "Recorders currently connected.",
		}),
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captionjoin_hooks_total",
			Help: "Final-phrase hook invocations, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.framesSent, c.frameErrors, c.droppedBlocks, c.transitions,
		c.results, c.protocolErrors, c.connected, c.hooks)
	return c
}

func (c *Collector) FrameSent(kind string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameError() {
	if c == nil {
		return
	}
	c.frameErrors.Inc()
}

func (c *Collector) BlockDropped() {
	if c == nil {
		return
	}
	c.droppedBlocks.Inc()
}

func (c *Collector) Transition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) Result(final bool) {
	if c == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	c.results.WithLabelValues(label).Inc()
}

func (c *Collector) ProtocolError() {
	if c == nil {
		return
	}
	c.protocolErrors.Inc()
}

func (c *Collector) SetConnected(n int) {
	if c == nil {
		return
	}
	c.connected.Set(float64(n))
}

// Hook records a hook outcome: sent, skipped, dropped or failed.
func (c *Collector) Hook(outcome string) {
	if c == nil {
		return
	}
	c.hooks.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry for tests and handlers.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
