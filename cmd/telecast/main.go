package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nkkko/telecast/internal/config"
	"github.com/nkkko/telecast/internal/engine"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	dataDir := flag.String("data", "", "Data directory (overrides configuration)")
	serverAddr := flag.String("addr", "", "API listen address (overrides configuration)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *dataDir, *serverAddr, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Engine exited with error")
		shutdown(eng)
		os.Exit(1)
	}

	shutdown(eng)
}

func shutdown(eng *engine.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := eng.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
}
