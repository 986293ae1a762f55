package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankfeed_ingestion_rows_total",
		Help: "Statement rows by terminal outcome.",
	}, []string{"outcome"})

	ingestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankfeed_ingestion_runs_total",
		Help: "Ingestion runs by result.",
	}, []string{"status"})

	cleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bankfeed_ingestion_cleanup_failures_total",
		Help: "Uploaded files that could not be removed after ingestion.",
	})
)

const (
	outcomePersisted  = "persisted"
	outcomeDuplicate  = "duplicate"
	outcomeParseError = "parse_error"
	outcomeFailed     = "failed"
)
