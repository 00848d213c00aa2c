package download

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingolens",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Total bytes received from the model origin",
		},
		[]string{"model"},
	)

	downloadFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingolens",
			Subsystem: "download",
			Name:      "files_total",
			Help:      "Total model files fully transferred",
		},
		[]string{"model"},
	)

	downloadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingolens",
			Subsystem: "download",
			Name:      "failures_total",
			Help:      "Total failed downloads",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(downloadBytesTotal, downloadFilesTotal, downloadFailuresTotal)
}
