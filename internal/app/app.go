package app

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/boinkor-net/gearbox-maintenance/internal/config"
	"github.com/boinkor-net/gearbox-maintenance/internal/observability"
	"github.com/boinkor-net/gearbox-maintenance/internal/sweeper"
	"github.com/boinkor-net/gearbox-maintenance/internal/transmission"
)

// Run wires config into a supervisor and polls until SIGINT/SIGTERM.
func Run(cfg config.Config, enforce bool) {
	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	instances := make([]sweeper.Instance, 0, len(cfg.Instances))
	for _, ic := range cfg.Instances {
		client, err := transmission.New(ic.URL, ic.User, ic.Password)
		if err != nil {
			log.Fatal().Err(err).Str("instance", ic.URL).Msg("init transmission client")
		}
		instances = append(instances, sweeper.Instance{
			URL:          ic.URL,
			PollInterval: ic.PollInterval,
			Rules:        ic.Rules,
			Client:       client,
		})
	}

	var srv *http.Server
	if cfg.Server.MetricsAddr != "" {
		srv = &http.Server{
			Addr:         cfg.Server.MetricsAddr,
			Handler:      observability.Router(metrics),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("metrics server crashed")
			}
		}()
	}

	if !enforce {
		log.Info().Msg("dry-run mode: decisions will be logged, nothing will be deleted")
	}
	sup := sweeper.NewSupervisor(instances, enforce, metrics)
	sup.Run(rootCtx)

	if srv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		_ = srv.Shutdown(shCtx)
	}
}
