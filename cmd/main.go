package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dogfinder-bot/internal/api"
	"dogfinder-bot/internal/bot"
	"dogfinder-bot/internal/config"
	"dogfinder-bot/internal/controller"
	"dogfinder-bot/internal/metrics"
	"dogfinder-bot/internal/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("configs/config.yml", ".env")
	if err != nil {
		slog.Error("init config err", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	fetchAPI, err := api.NewFetchAPI(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		api.WithRecorder(m),
	)
	if err != nil {
		slog.Error("failed to create api client", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		slog.Error("failed to create Redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	ctrl := controller.New(redisClient, controller.FetchSessions(fetchAPI), m)

	tgBot, err := bot.NewBot(cfg.Telegram.Token, ctrl, bot.Options{
		UpdateTimeout:  cfg.Telegram.Timeout,
		BreedsCacheTTL: cfg.Breeds.Cache.TTL,
		SendPhotos:     cfg.Dogs.Photos,
		PhotoTimeout:   cfg.Dogs.PhotoTimeout,
		PhotoCacheTTL:  cfg.Dogs.PhotoCacheTTL,
		Observer:       m,
	})
	if err != nil {
		slog.Error("failed to create bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tgBot.Start(gctx)
		if gctx.Err() == nil {
			return errors.New("bot stopped receiving updates")
		}
		return nil
	})

	if cfg.Metrics.Address != "" {
		// pprof registers itself on the default mux
		http.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              cfg.Metrics.Address,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			slog.Info("Serving metrics", "address", cfg.Metrics.Address)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	<-gctx.Done()
	slog.Info("Shutting down gracefully...")
	tgBot.Stop()

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", "error", err)
	}
	slog.Info("Application shutdown complete")
}
