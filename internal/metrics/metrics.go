package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds only this tool's collectors so a textfile export stays
	// free of Go runtime series.
	Registry = prometheus.NewRegistry()

	FetchTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "abusech_fetch_total", Help: "feed requests by result"}, []string{"feed", "result"})
	FetchDuration  = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "abusech_fetch_duration_seconds", Help: "feed request latency", Buckets: prometheus.DefBuckets}, []string{"feed"})
	EntriesTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "abusech_entries_total", Help: "entries seen per stage"}, []string{"feed", "stage"})
	RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "abusech_records_written_total", Help: "records rendered by the output sink"}, []string{"format"})
)

func init() {
	Registry.MustRegister(FetchTotal, FetchDuration, EntriesTotal, RecordsWritten)
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
