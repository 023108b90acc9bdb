package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/boinkor-net/gearbox-maintenance/internal/observability"
	"github.com/boinkor-net/gearbox-maintenance/internal/policy"
)

// Client is the seed-box collaborator an instance scheduler drives.
// Removing an id the seed-box no longer knows must report success.
type Client interface {
	FetchTorrents(ctx context.Context) ([]policy.Snapshot, int, error)
	RemoveTorrent(ctx context.Context, id int64, deleteData bool) error
}

// Instance is one configured seed-box with its validated rules.
type Instance struct {
	URL          string
	PollInterval time.Duration
	Rules        policy.RuleSet
	Client       Client
}

// instanceScheduler owns one seed-box connection and runs its poll
// loop. Cycles on one instance never overlap; a cycle's removals all
// finish before the next interval starts counting.
type instanceScheduler struct {
	instance Instance
	enforce  bool
	grace    time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func newInstanceScheduler(inst Instance, enforce bool, grace time.Duration, metrics *observability.Metrics) *instanceScheduler {
	return &instanceScheduler{
		instance: inst,
		enforce:  enforce,
		grace:    grace,
		metrics:  metrics,
		log:      log.With().Str("instance", inst.URL).Logger(),
	}
}

// run polls until ctx is cancelled. Intervals are measured from cycle
// start, not from cycle end, so a slow fetch does not drift the
// schedule. Cancellation is only observed between cycles: a cycle that
// has started runs to completion.
func (s *instanceScheduler) run(ctx context.Context) {
	s.log.Info().Dur("poll_interval", s.instance.PollInterval).Bool("enforce", s.enforce).Msg("scheduler running")
	for {
		start := time.Now()
		s.runCycle(ctx)

		wait := s.instance.PollInterval - time.Since(start)
		if wait <= 0 {
			s.metrics.CycleOverruns.WithLabelValues(s.instance.URL).Inc()
			s.log.Warn().
				Dur("cycle_duration", time.Since(start)).
				Dur("poll_interval", s.instance.PollInterval).
				Msg("cycle ran longer than the poll interval, starting next cycle immediately")
			wait = 0
		}
		idle := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			idle.Stop()
			s.log.Info().Msg("scheduler stopped")
			return
		case <-idle.C:
		}
	}
}

// runCycle shields the cycle's RPCs from the shutdown signal: a cycle
// that has started runs to completion on its own context. Only once the
// grace period has elapsed after cancellation is the cycle itself
// cancelled and its in-flight RPCs abandoned.
func (s *instanceScheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		overstay := time.NewTimer(s.grace)
		defer overstay.Stop()
		select {
		case <-overstay.C:
			cancel()
		case <-cycleCtx.Done():
		}
	})
	defer stop()
	s.cycle(cycleCtx)
}

// cycle runs one fetch-evaluate-act pass. A failed fetch skips the
// whole cycle; the configured interval is the only retry throttle.
func (s *instanceScheduler) cycle(ctx context.Context) {
	timer := prometheus.NewTimer(s.metrics.FetchDuration.WithLabelValues(s.instance.URL))
	snapshots, skipped, err := s.instance.Client.FetchTorrents(ctx)
	timer.ObserveDuration()
	if err != nil {
		s.metrics.FetchFailures.WithLabelValues(s.instance.URL).Inc()
		s.log.Warn().Err(err).Msg("fetching torrents failed, skipping cycle")
		return
	}
	if skipped > 0 {
		s.metrics.SkippedRecords.WithLabelValues(s.instance.URL).Add(float64(skipped))
		s.log.Warn().Int("skipped", skipped).Msg("dropped malformed torrent records")
	}
	s.metrics.SeedingTorrents.WithLabelValues(s.instance.URL).Set(float64(len(snapshots)))

	decisions := s.evaluate(snapshots)
	s.act(ctx, decisions)
}

func (s *instanceScheduler) evaluate(snapshots []policy.Snapshot) []policy.Decision {
	counts := make(map[string]int)
	sizes := make(map[string]int64)
	var decisions []policy.Decision
	for _, snap := range snapshots {
		dec, ok := s.instance.Rules.Evaluate(snap)
		if !ok {
			continue
		}
		dec.DryRun = !s.enforce
		counts[dec.Policy]++
		sizes[dec.Policy] += snap.TotalSize
		s.metrics.TorrentSizes.WithLabelValues(s.instance.URL, dec.Policy).Observe(float64(snap.TotalSize))
		decisions = append(decisions, dec)
	}
	for _, p := range s.instance.Rules.Policies() {
		s.metrics.MatchedTorrents.WithLabelValues(s.instance.URL, p.Name).Set(float64(counts[p.Name]))
		s.metrics.MatchedBytes.WithLabelValues(s.instance.URL, p.Name).Set(float64(sizes[p.Name]))
	}
	return decisions
}

// act executes or logs the cycle's decisions. In enforce mode removals
// fan out concurrently; one failed removal never blocks or cancels its
// siblings, and the torrent is retried implicitly next cycle because it
// still exists on the seed-box.
func (s *instanceScheduler) act(ctx context.Context, decisions []policy.Decision) {
	if len(decisions) == 0 {
		s.log.Debug().Msg("no torrents matched any policy")
		return
	}
	var withData, withoutData int
	for _, dec := range decisions {
		if dec.DeleteData {
			withData++
		} else {
			withoutData++
		}
	}

	if !s.enforce {
		for _, dec := range decisions {
			s.metrics.Decisions.WithLabelValues(s.instance.URL, dec.Policy, "dry_run").Inc()
			s.log.Info().
				Str("torrent", dec.Name).
				Str("hash", dec.Hash).
				Str("policy", dec.Policy).
				Bool("delete_data", dec.DeleteData).
				Msg("would delete torrent")
		}
		return
	}

	s.log.Info().Int("with_data", withData).Int("without_data", withoutData).Msg("deleting matched torrents")
	var wg sync.WaitGroup
	for _, dec := range decisions {
		s.metrics.Decisions.WithLabelValues(s.instance.URL, dec.Policy, "enforce").Inc()
		wg.Add(1)
		go func(dec policy.Decision) {
			defer wg.Done()
			if err := s.instance.Client.RemoveTorrent(ctx, dec.TorrentID, dec.DeleteData); err != nil {
				s.metrics.RemovalFailures.WithLabelValues(s.instance.URL).Inc()
				s.log.Warn().Err(err).
					Str("torrent", dec.Name).
					Str("hash", dec.Hash).
					Str("policy", dec.Policy).
					Msg("removing torrent failed, will retry next cycle")
				return
			}
			s.metrics.Deletions.WithLabelValues(s.instance.URL, dec.Policy).Inc()
			s.log.Info().
				Str("torrent", dec.Name).
				Str("hash", dec.Hash).
				Str("policy", dec.Policy).
				Bool("delete_data", dec.DeleteData).
				Msg("deleted torrent")
		}(dec)
	}
	wg.Wait()
}
