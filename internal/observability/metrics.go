package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the schedulers report into. All
// instances share one Metrics value; each update is an independent
// atomic operation on the underlying collector.
type Metrics struct {
	registry *prometheus.Registry

	FetchDuration   *prometheus.HistogramVec
	FetchFailures   *prometheus.CounterVec
	SkippedRecords  *prometheus.CounterVec
	SeedingTorrents *prometheus.GaugeVec
	TorrentSizes    *prometheus.HistogramVec
	MatchedTorrents *prometheus.GaugeVec
	MatchedBytes    *prometheus.GaugeVec
	Decisions       *prometheus.CounterVec
	Deletions       *prometheus.CounterVec
	RemovalFailures *prometheus.CounterVec
	CycleOverruns   *prometheus.CounterVec
	SchedulerPanics *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg and returns the shared
// Metrics value passed by reference to every scheduler.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gearbox_fetch_duration_seconds",
			Help: "Time it took to fetch torrent state from one instance",
		}, []string{"instance"}),

		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_fetch_failures_total",
			Help: "Number of poll cycles skipped because fetching torrents failed",
		}, []string{"instance"}),

		SkippedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_skipped_records_total",
			Help: "Number of torrent records dropped because they could not be normalized",
		}, []string{"instance"}),

		SeedingTorrents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gearbox_seeding_torrents",
			Help: "Number of seeding torrents seen in the last poll cycle",
		}, []string{"instance"}),

		TorrentSizes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gearbox_torrent_size_bytes",
			Help: "Size of torrents matched by a policy. Sum and count give total size and torrent count per policy.",
			// 500MB up to 1TB
			Buckets: prometheus.ExponentialBuckets(0.5e9, 2, 11),
		}, []string{"instance", "policy"}),

		MatchedTorrents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gearbox_matched_torrents",
			Help: "Torrents matched per policy in the last poll cycle",
		}, []string{"instance", "policy"}),

		MatchedBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gearbox_matched_bytes",
			Help: "Total size of torrents matched per policy in the last poll cycle",
		}, []string{"instance", "policy"}),

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_decisions_total",
			Help: "Deletion decisions produced, by mode (enforce or dry_run)",
		}, []string{"instance", "policy", "mode"}),

		Deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_torrent_deletions_total",
			Help: "Number of torrents removed, per instance and policy",
		}, []string{"instance", "policy"}),

		RemovalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_removal_failures_total",
			Help: "Number of individual torrent removals that failed",
		}, []string{"instance"}),

		CycleOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_cycle_overruns_total",
			Help: "Number of cycles that ran longer than the configured poll interval",
		}, []string{"instance"}),

		SchedulerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gearbox_scheduler_panics_total",
			Help: "Number of panics recovered in an instance scheduler loop",
		}, []string{"instance"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
