package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// Metrics provides observability for the capture pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Frames run through the pipeline
	Frames prometheus.Counter

	// Faces detected across all frames
	Faces prometheus.Counter

	// Access decisions by outcome
	Decisions *prometheus.CounterVec

	// Per-frame processing latency
	FrameLatency prometheus.Histogram

	// 1 while a capture session runs
	CaptureRunning prometheus.Gauge
}

// New registers all facegate metrics on a fresh registry along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Frames: f.NewCounter(prometheus.CounterOpts{
			Name: "facegate_frames_processed_total",
			Help: "Total frames run through the recognition pipeline",
		}),
		Faces: f.NewCounter(prometheus.CounterOpts{
			Name: "facegate_faces_detected_total",
			Help: "Total faces detected across all processed frames",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_access_decisions_total",
			Help: "Access decisions by outcome",
		}, []string{"decision"}), // decision: "granted", "denied", "already_granted"
		FrameLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_frame_duration_seconds",
			Help:    "Duration of detection, recognition and annotation for one frame",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CaptureRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "facegate_capture_running",
			Help: "1 while a capture session is running",
		}),
	}
	return m
}

// ObserveFrame records one processed frame.
func (m *Metrics) ObserveFrame(faces int, took time.Duration) {
	if m == nil {
		return
	}
	m.Frames.Inc()
	m.Faces.Add(float64(faces))
	m.FrameLatency.Observe(took.Seconds())
}

// ObserveDecision records an access decision.
func (m *Metrics) ObserveDecision(d types.Decision) {
	if m != nil && d != types.DecisionNone {
		m.Decisions.WithLabelValues(d.String()).Inc()
	}
}

func (m *Metrics) SetCaptureRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.CaptureRunning.Set(1)
	} else {
		m.CaptureRunning.Set(0)
	}
}

// WatchDisplay exports frame-mailbox counters read from the display hub at
// scrape time.
func (m *Metrics) WatchDisplay(drops func() uint64, subscribers func() int) {
	f := promauto.With(m.registry)
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "facegate_display_frames_dropped_total",
		Help: "Frames replaced before a stream subscriber read them",
	}, func() float64 { return float64(drops()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "facegate_display_subscribers",
		Help: "Connected MJPEG stream subscribers",
	}, func() float64 { return float64(subscribers()) })
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
