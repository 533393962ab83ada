package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glscale_frames_processed_total",
		Help: "Total number of frames scaled and returned by a filter",
	}, []string{"name"})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glscale_frames_dropped_total",
		Help: "Total number of frames a filter returned no output for",
	}, []string{"name", "reason"})
	ComposeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glscale_compose_seconds",
		Help:    "Time spent blocked in a synchronous compose",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"name"})
	ResourcesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glscale_accel_objects_created_total",
		Help: "Total number of accelerator objects created",
	}, []string{"kind"})
	ResourcesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glscale_accel_objects_deleted_total",
		Help: "Total number of accelerator objects deleted",
	}, []string{"kind"})
	AudioBuffersDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glscale_audio_buffers_discarded_total",
		Help: "Total number of audio buffers thrown away by the dummy output",
	})
)

// Drop reasons
const (
	ReasonConfig    = "config"
	ReasonAllocate  = "allocate"
	ReasonResource  = "resource"
	ReasonTransfer  = "transfer"
	ReasonCompose   = "compose"
	ReasonNoPicture = "no_picture"
)

type FilterMetrics struct {
	FramesProcessed prometheus.Counter
	ComposeSeconds  prometheus.Observer
	name            string
}

func NewFilterMetrics(name string) FilterMetrics {
	f := FilterMetrics{
		FramesProcessed: FramesProcessed.WithLabelValues(name),
		ComposeSeconds:  ComposeSeconds.WithLabelValues(name),
		name:            name,
	}
	f.FramesProcessed.Add(0)
	return f
}

func (f FilterMetrics) Dropped(reason string) {
	FramesDropped.WithLabelValues(f.name, reason).Inc()
}

// Handler should usually be mounted at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
