// Command server serves pull simulation, ledger history and refresh over HTTP,
// with a gRPC health endpoint and an optional scheduled refresh sweep.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xtding233/gacha-ledger/internal/api"
	"github.com/xtding233/gacha-ledger/internal/config"
	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/game"
	"github.com/xtding233/gacha-ledger/internal/ledger"
	"github.com/xtding233/gacha-ledger/internal/logger"
	"github.com/xtding233/gacha-ledger/internal/refresh"
	"github.com/xtding233/gacha-ledger/internal/service"
	"github.com/xtding233/gacha-ledger/internal/session"
)

func main() {
	path := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "gacha-ledger"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := ledger.NewClient(ledger.ClientOptions{
		BaseURL:   cfg.Ledger.BaseURL,
		APIKey:    cfg.Ledger.APIKey,
		RateLimit: rate.Limit(cfg.Ledger.RateLimit),
		Burst:     cfg.Ledger.Burst,
		Timeout:   cfg.Ledger.Timeout,
		PageSize:  cfg.Ledger.PageSize,
		Scale:     ledger.RarityScale{TopStars: cfg.Ledger.TopStars},
		Logger:    logger.Named("ledger"),
	})

	loader := game.NewLoader(cfg.Rules.Dir)
	var rules game.Chain
	if cfg.Rules.Remote {
		rules = append(rules, client)
	}
	rules = append(rules, loader)
	if cfg.Rules.Fallback {
		rules = append(rules, game.Builtin())
	}

	if cfg.Rules.Watch {
		w, err := game.NewWatcher(loader, logger.Named("rules"), nil)
		if err != nil {
			return err
		}
		defer w.Close()
		go w.Run(ctx)
	}

	sim := service.NewSimulator(rules, store, service.SimulatorOptions{
		DailyLimit: cfg.Simulate.DailyLimit,
		Logger:     logger.Named("simulate"),
	})
	hist := service.NewHistory(client, rules, service.HistoryOptions{
		Costs:     loader,
		Scopes:    store,
		FreePulls: gacha.FreePullPolicy(cfg.Simulate.FreePulls),
		Logger:    logger.Named("history"),
	})
	coord := refresh.NewCoordinator(client, refresh.Options{
		PollInterval: cfg.Sync.PollInterval,
		Budget:       cfg.Sync.Budget,
		Grace:        cfg.Sync.Grace,
	}, logger.Named("refresh"))

	if cfg.Sync.SweepCron != "" {
		sweeper := refresh.NewSweeper(coord, store, cfg.Sync.SweepJitter, logger.Named("sweep"))
		if err := sweeper.Start(ctx, cfg.Sync.SweepCron); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	handler := api.NewHandler(api.Options{
		Simulator: sim,
		History:   hist,
		Refresh:   coord,
		Stats:     client,
		Scopes:    store,
		Logger:    logger.Named("http"),
	})
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	var gs *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		gs = grpc.NewServer()
		hs := health.NewServer()
		grpc_health_v1.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		go func() {
			log.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
			if err := gs.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
		defer hs.Shutdown()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if gs != nil {
		gs.GracefulStop()
	}
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (session.Store, error) {
	if cfg.Database.SQLitePath == "" {
		return session.NewMemoryStore(), nil
	}
	return session.NewSQLiteStore(cfg.Database.SQLitePath, logger.Named("session"))
}
