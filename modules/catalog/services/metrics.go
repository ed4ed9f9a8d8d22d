package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesync",
		Subsystem: "sync",
		Name:      "updates_total",
		Help:      "Rows processed by the update applier broken down by result.",
	}, []string{"result"})

	syncChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamesync",
		Subsystem: "sync",
		Name:      "chunks_total",
		Help:      "Bulk chunks processed broken down by terminal outcome.",
	}, []string{"outcome"})

	syncInvalidEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesync",
		Subsystem: "sync",
		Name:      "invalid_entries_total",
		Help:      "Entries excluded from publishing after a failed bulk action.",
	})

	syncIndexCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gamesync",
		Subsystem: "sync",
		Name:      "index_collisions_total",
		Help:      "Lookup keys ignored because an earlier entry already claimed them.",
	})

	syncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gamesync",
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a ProcessMetadata run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"result"})
)

func recordUpdate(result string) {
	if result == "" {
		result = "other"
	}
	syncUpdates.WithLabelValues(result).Inc()
}

func recordChunk(outcome ChunkOutcome, invalid int) {
	syncChunks.WithLabelValues(string(outcome)).Inc()
	if invalid > 0 {
		syncInvalidEntries.Add(float64(invalid))
	}
}
