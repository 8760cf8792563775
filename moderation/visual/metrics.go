package visual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hiveAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "contentcheck_hive_api_duration_sec",
	Help: "Duration of Hive image auto-labeling API calls",
})

var hiveAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentcheck_hive_api_count",
	Help: "Number of Hive image auto-labeling API calls, by HTTP status code",
}, []string{"status"})

var labelCacheCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentcheck_label_cache_lookups",
	Help: "Number of label cache lookups, by result (hit, miss, error)",
}, []string{"result"})
