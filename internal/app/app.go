package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/MikhailRaia/shortcode/internal/config"
	"github.com/MikhailRaia/shortcode/internal/generator"
	"github.com/MikhailRaia/shortcode/internal/handler"
	"github.com/MikhailRaia/shortcode/internal/service"
	"github.com/MikhailRaia/shortcode/internal/storage"
	"github.com/MikhailRaia/shortcode/internal/storage/cache"
	"github.com/MikhailRaia/shortcode/internal/storage/file"
	"github.com/MikhailRaia/shortcode/internal/storage/memory"
	"github.com/MikhailRaia/shortcode/internal/storage/mysql"
	"github.com/MikhailRaia/shortcode/internal/storage/postgres"
	"github.com/MikhailRaia/shortcode/internal/worker"
)

type App struct {
	config     *config.Config
	storage    storage.URLStorage
	purger     *worker.PurgeWorkerPool
	handler    http.Handler
	grpcServer *grpc.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gen, err := generator.New(cfg.CodeStrategy, cfg.CodeLength)
	if err != nil {
		store.Close()
		return nil, err
	}

	policy, err := service.ParseReusePolicy(cfg.ReusePolicy)
	if err != nil {
		store.Close()
		return nil, err
	}

	urlService := service.NewURLService(store, gen, service.Options{
		BaseURL:     cfg.BaseURL,
		Policy:      policy,
		MaxAttempts: cfg.MaxAttempts,
	})

	purgeConfig := worker.DefaultConfig()
	purgeConfig.WorkerCount = cfg.PurgeWorkers
	purger := worker.NewPurgeWorkerPool(urlService, purgeConfig)
	urlService.SetPurger(purger)

	a := &App{
		config:  cfg,
		storage: store,
		purger:  purger,
		handler: handler.NewHandler(urlService).RegisterRoutes(),
	}
	if cfg.GRPCAddress != "" {
		a.grpcServer = handler.NewGRPCServer(urlService)
	}

	return a, nil
}

// newStorage picks the first configured backend: PostgreSQL, MySQL, file, memory.
// The result is wrapped in the Redis cache when a Redis address is set.
func newStorage(ctx context.Context, cfg *config.Config) (storage.URLStorage, error) {
	var (
		store storage.URLStorage
		err   error
	)

	switch {
	case cfg.DatabaseDSN != "":
		store, err = postgres.NewStorage(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		log.Info().Msg("Using PostgreSQL storage")
	case cfg.MySQLDSN != "":
		store, err = mysql.NewStorage(cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mysql storage: %w", err)
		}
		log.Info().Msg("Using MySQL storage")
	case cfg.FileStoragePath != "":
		store, err = file.NewStorage(cfg.FileStoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		log.Info().Str("path", cfg.FileStoragePath).Msg("Using file storage")
	default:
		store = memory.NewStorage()
		log.Info().Msg("Using in-memory storage")
	}

	if cfg.RedisAddr == "" {
		return store, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, running without cache")
		return store, nil
	}
	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("Using Redis lookup cache")

	return cache.NewStorage(store, client, cfg.CacheTTL), nil
}

// Handler returns the HTTP handler with all routes registered.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and gRPC until ctx is cancelled or a server fails, then
// shuts everything down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	httpListener, err := net.Listen("tcp", a.config.ServerAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.ServerAddress, err)
	}

	var grpcListener net.Listener
	if a.grpcServer != nil {
		grpcListener, err = net.Listen("tcp", a.config.GRPCAddress)
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.config.GRPCAddress, err)
		}
	}

	a.purger.Start()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("address", httpListener.Addr().String()).Str("baseURL", a.config.BaseURL).Msg("Starting HTTP server")
		if err := srv.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil {
		g.Go(func() error {
			log.Info().Str("address", grpcListener.Addr().String()).Msg("Starting gRPC server")
			if err := a.grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				a.grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutdownCtx.Done():
				a.grpcServer.Stop()
			}
		}

		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	if err := a.purger.Shutdown(a.config.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("Purge workers did not finish in time")
	}
	if err := a.storage.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
	}

	log.Info().Msg("Shutdown complete")
	return runErr
}
