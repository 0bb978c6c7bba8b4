package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsAdded counts events accepted into the spool per category.
	EventsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalpipe_events_added_total",
			Help: "Events accepted into the local spool",
		},
		[]string{"category"},
	)

	// EventsBlocked counts events refused by admission control.
	EventsBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signalpipe_events_blocked_total",
			Help: "Events refused because the spool passed its size cap",
		},
	)

	// EventsDropped counts validation failures before spooling.
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalpipe_events_dropped_total",
			Help: "Events dropped by local validation",
		},
		[]string{"category"},
	)

	// Flushes counts flush cycles by settlement outcome.
	Flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalpipe_flush_total",
			Help: "Flush cycles by settlement outcome",
		},
		[]string{"result"},
	)

	// BatchSize tracks the size of the last sent batch.
	BatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalpipe_flush_batch_size",
			Help: "Number of events in the most recent flush batch",
		},
	)

	// QueueDepth tracks unclaimed events in the spool.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalpipe_queue_depth",
			Help: "Unclaimed events waiting in the spool",
		},
	)

	// SpoolBytes tracks the spool file size on disk.
	SpoolBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalpipe_spool_bytes",
			Help: "Size of the spool file on disk",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsAdded)
	prometheus.MustRegister(EventsBlocked)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(Flushes)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(SpoolBytes)
}
