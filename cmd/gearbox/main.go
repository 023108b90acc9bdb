package main

import (
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/boinkor-net/gearbox-maintenance/internal/app"
	"github.com/boinkor-net/gearbox-maintenance/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/gearbox.yaml", "path to the config file")
	enforce := flag.Bool("f", false, "actually perform policy actions instead of logging them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	config.SetupLogging(cfg.Server.LogLevel)

	app.Run(cfg, *enforce)
}
