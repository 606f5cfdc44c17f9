// Package metrics exposes Prometheus instrumentation for the analysis engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Classification metrics
	ClassificationsTotal *prometheus.CounterVec
	AnalysisDuration     prometheus.Histogram
	AnalysesActive       prometheus.Gauge
	SamplesTotal         *prometheus.CounterVec

	// Stream metrics
	ConnectionsTotal *prometheus.CounterVec
	FrameTimeouts    prometheus.Counter

	// Publish metrics
	ResultsPublished *prometheus.CounterVec
	PublishErrors    prometheus.Counter

	// AMI metrics
	AMIReconnects  prometheus.Counter
	AMIWritebacks  *prometheus.CounterVec
	AMIChannelsMap prometheus.GaugeFunc
)

// Init registers all metrics. Safe to call more than once.
func Init(channelCount func() float64) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		ClassificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpa_classifications_total",
				Help: "Completed classifications by outcome",
			},
			[]string{"outcome"},
		)

		AnalysisDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cpa_analysis_duration_seconds",
				Help:    "Wall time from first frame to verdict",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12.8s
			},
		)

		AnalysesActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cpa_analyses_active",
				Help: "Analyses currently in progress",
			},
		)

		SamplesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpa_samples_total",
				Help: "Analyzed audio samples by detected label",
			},
			[]string{"label"},
		)

		ConnectionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpa_connections_total",
				Help: "Accepted media streams by transport",
			},
			[]string{"transport"},
		)

		FrameTimeouts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cpa_frame_timeouts_total",
				Help: "Poll windows that expired without a frame",
			},
		)

		ResultsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpa_results_published_total",
				Help: "Results delivered to each publisher backend",
			},
			[]string{"backend"},
		)

		PublishErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cpa_publish_errors_total",
				Help: "Failed result publishes",
			},
		)

		AMIReconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cpa_ami_reconnects_total",
				Help: "AMI session re-establishments",
			},
		)

		AMIWritebacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpa_ami_writebacks_total",
				Help: "Setvar write-backs by result",
			},
			[]string{"result"},
		)

		registry.MustRegister(
			ClassificationsTotal,
			AnalysisDuration,
			AnalysesActive,
			SamplesTotal,
			ConnectionsTotal,
			FrameTimeouts,
			ResultsPublished,
			PublishErrors,
			AMIReconnects,
			AMIWritebacks,
		)

		if channelCount != nil {
			AMIChannelsMap = prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "cpa_ami_channels_tracked",
					Help: "Channels currently held in the correlation registry",
				},
				channelCount,
			)
			registry.MustRegister(AMIChannelsMap)
		}
	})
}

// Handler returns the scrape endpoint for the internal registry.
func Handler() http.Handler {
	if registry == nil {
		Init(nil)
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
