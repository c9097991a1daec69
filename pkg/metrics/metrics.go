package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_events_written_total",
		Help: "Events accepted into the bucket index.",
	})
	EventsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_events_read_total",
		Help: "Events returned by range reads.",
	})
	RangeTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_range_truncations_total",
		Help: "Range reads cut short by the result ceiling.",
	})
	EventsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_events_purged_total",
		Help: "Events removed by purge.",
	})
	FlagReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_flag_reads_total",
		Help: "Flag definition reads.",
	})
	FlagWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redflag_flag_writes_total",
		Help: "Flag definition creates, updates and deletes.",
	})
)
