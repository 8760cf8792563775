package textcheck

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "contentcheck_verifier_duration_sec",
	Help: "Duration of text verification calls, by verifier",
}, []string{"verifier"})

var verifierCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentcheck_verifier_count",
	Help: "Number of text verification calls, by verifier and result",
}, []string{"verifier", "result"})
