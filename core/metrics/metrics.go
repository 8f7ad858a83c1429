package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drowsiness_build_info",
		Help: "Build information of the drowsiness API.",
	}, []string{"build", "env"})

	FramesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drowsiness_landmark_frames_ingested_total", Help: "Total landmark frames accepted by ingestors.",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drowsiness_landmark_frames_dropped_total", Help: "Total landmark messages dropped by ingestors.",
	}, []string{"reason"})
	ActiveIngestors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drowsiness_landmark_ingestors_active", Help: "Number of landmark ingestors currently streaming.",
	})

	QuiescenceWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drowsiness_quiescence_waits_total", Help: "Stream quiescence waits by stream and outcome.",
	}, []string{"stream", "outcome"})

	FinishOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drowsiness_finish_outcomes_total", Help: "Finish workflow outcomes by error kind.",
	}, []string{"result"})
	FinishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drowsiness_finish_duration_seconds",
		Help:    "Wall-clock duration of the finish workflow.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 11),
	})
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drowsiness_inference_duration_seconds",
		Help:    "Duration of a single fatigue model call.",
		Buckets: prometheus.DefBuckets,
	})
	ScoresCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drowsiness_scores_committed_total", Help: "Total drowsiness score records committed.",
	})
)
