// Package metrics holds the Prometheus instruments for the capture pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all pipeline instruments.
type Metrics struct {
	Registry *prometheus.Registry

	// Capture
	Chunks          prometheus.Counter
	OverrunSamples  prometheus.Counter
	Capturing       prometheus.Gauge
	CaptureFailures prometheus.Counter
	ResampleErrors  prometheus.Counter

	// VAD
	Windows         prometheus.Counter
	SegmentsEmitted prometheus.Counter
	SegmentsDropped *prometheus.CounterVec

	// Recognition
	Decodes       prometheus.Counter
	DecodeErrors  prometheus.Counter
	DecodeLatency prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_capture_chunks_total",
			Help: "Total number of audio chunks delivered by the capture source",
		}),
		OverrunSamples: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_ring_overrun_samples_total",
			Help: "Total number of samples overwritten in the ring buffer before being read",
		}),
		Capturing: f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_capturing",
			Help: "1 while the microphone is being captured",
		}),
		CaptureFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_capture_failures_total",
			Help: "Total number of failed or lost microphone captures",
		}),
		ResampleErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_resample_errors_total",
			Help: "Total number of chunks discarded because resampling failed",
		}),

		Windows: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_vad_windows_total",
			Help: "Total number of windows scored by the VAD",
		}),
		SegmentsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_vad_segments_total",
			Help: "Total number of speech segments emitted by the VAD",
		}),
		SegmentsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_segments_dropped_total",
			Help: "Total number of segments dropped before publication",
		}, []string{"reason"}),

		Decodes: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_decodes_total",
			Help: "Total number of segments decoded",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "parley_decode_errors_total",
			Help: "Total number of failed decodes",
		}),
		DecodeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_decode_duration_seconds",
			Help:    "Time spent decoding one segment",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_decode_queue_depth",
			Help: "Segments waiting for the decode worker",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on listener until ctx ends.
func (m *Metrics) Serve(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics endpoint listening", "addr", listener.Addr().String())
	}
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
