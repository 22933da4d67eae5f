package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortcode/internal/app"
	"github.com/MikhailRaia/shortcode/internal/config"
	"github.com/MikhailRaia/shortcode/internal/logger"
)

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to create heap profile")
		return
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Error().Err(err).Msg("Failed to write heap profile")
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.MemProfile != "" {
		defer writeHeapProfile(cfg.MemProfile)
	}

	return application.Run(ctx)
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running application")
	}
}
