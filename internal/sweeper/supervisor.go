package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/boinkor-net/gearbox-maintenance/internal/observability"
)

// DefaultGracePeriod bounds how long Run waits for schedulers to finish
// their current cycle after cancellation.
const DefaultGracePeriod = 30 * time.Second

// Supervisor runs one scheduler per instance. Failures in one
// instance's loop are contained: they are counted, logged and the loop
// restarts, while every other instance keeps polling. The enforce flag
// and the metrics value are fixed at construction.
type Supervisor struct {
	instances []Instance
	enforce   bool
	metrics   *observability.Metrics
	grace     time.Duration
}

func NewSupervisor(instances []Instance, enforce bool, metrics *observability.Metrics) *Supervisor {
	return &Supervisor{
		instances: instances,
		enforce:   enforce,
		metrics:   metrics,
		grace:     DefaultGracePeriod,
	}
}

// Run polls all instances until ctx is cancelled, then waits up to the
// grace period for in-flight cycles to finish. Schedulers still running
// after that are abandoned.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, inst := range s.instances {
		wg.Add(1)
		go func(inst Instance) {
			defer wg.Done()
			sched := newInstanceScheduler(inst, s.enforce, s.grace, s.metrics)
			for ctx.Err() == nil {
				s.supervise(ctx, sched)
			}
		}(inst)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	<-ctx.Done()
	log.Info().Dur("grace_period", s.grace).Msg("shutting down, waiting for schedulers to finish their cycles")
	select {
	case <-done:
		log.Info().Msg("all schedulers stopped")
	case <-time.After(s.grace):
		log.Warn().Msg("grace period elapsed, abandoning remaining schedulers")
	}
}

// supervise runs one scheduler and contains any panic escaping its
// loop. After a panic the scheduler sits out one poll interval before
// it restarts, so a persistently broken instance cannot spin hot.
func (s *Supervisor) supervise(ctx context.Context, sched *instanceScheduler) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerPanics.WithLabelValues(sched.instance.URL).Inc()
			log.Error().
				Str("instance", sched.instance.URL).
				Interface("panic", r).
				Msg("scheduler loop panicked, restarting after one poll interval")
			pause := time.NewTimer(sched.instance.PollInterval)
			select {
			case <-ctx.Done():
				pause.Stop()
			case <-pause.C:
			}
		}
	}()
	sched.run(ctx)
}
