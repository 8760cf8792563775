package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "contentcheck_run_duration_sec",
	Help: "Total duration of moderation runs",
})

var runCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentcheck_runs",
	Help: "Number of moderation runs, by verdict",
}, []string{"verdict"})

var artifactsDispatched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_artifacts_dispatched",
	Help: "Number of artifacts sent for label extraction",
})

var extractionFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_extraction_failures",
	Help: "Number of label extractions which failed",
})

var verifierFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_verifier_failures",
	Help: "Number of text verification calls which failed",
})
