// Package metrics exposes meter readings and pipeline counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	"tracktweak/internal/meter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracktweak"

// HTTP surface, registered on the default registry.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracktweak_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "code"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracktweak_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds by route",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"route"})
)

// Source is the read side of a meter. *meter.Meter satisfies it.
type Source interface {
	ID() string
	Stats() meter.Stats
	Level() float64
	MomentaryLoudness() float64
	ShortTermLoudness() float64
	IntegratedLoudness() float64
}

// Register adds collectors for src to reg. Every value is read at scrape
// time, so nothing runs on the audio path. Collectors carry a meter_id
// label so several meters can share a registry.
func Register(reg prometheus.Registerer, src Source) error {
	labels := prometheus.Labels{"meter_id": src.ID()}

	counter := func(name, help string, read func(meter.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "meter",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	gauge := func(name, help string, read func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "meter",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, read)
	}

	collectors := []prometheus.Collector{
		counter("blocks_total", "Audio blocks processed",
			func(s meter.Stats) uint64 { return s.Blocks }),
		counter("frames_completed_total", "Analysis frames captured for the transform",
			func(s meter.Stats) uint64 { return s.FramesCompleted }),
		counter("frames_dropped_total", "Analysis frames discarded while another was pending",
			func(s meter.Stats) uint64 { return s.FramesDropped }),
		counter("transforms_total", "Frames transformed into the display spectrum",
			func(s meter.Stats) uint64 { return s.Transforms }),
		counter("deferred_publishes_total", "Spectrum publications postponed by a busy reader",
			func(s meter.Stats) uint64 { return s.DeferredPublishes }),
		gauge("level", "RMS of the reference channel over the last block", src.Level),
		gauge("momentary_lufs", "Momentary loudness (400 ms)", src.MomentaryLoudness),
		gauge("short_term_lufs", "Short-term loudness (3 s)", src.ShortTermLoudness),
		gauge("integrated_lufs", "Integrated loudness", src.IntegratedLoudness),
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("metrics: register meter %s: %w", src.ID(), err)
	}
	return nil
}
