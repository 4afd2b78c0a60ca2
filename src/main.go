package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/cruxtone/hymnsift/src/features/analysis"
	"github.com/cruxtone/hymnsift/src/features/config"
	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/cruxtone/hymnsift/src/features/janitor"
	"github.com/cruxtone/hymnsift/src/features/logging"
	"github.com/cruxtone/hymnsift/src/features/lyrics"
	"github.com/cruxtone/hymnsift/src/features/metrics"
	"github.com/cruxtone/hymnsift/src/features/notify"
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/quality"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/features/worker"
	"github.com/cruxtone/hymnsift/src/infra/cache"
	"github.com/cruxtone/hymnsift/src/infra/database"
	"github.com/cruxtone/hymnsift/src/infra/providers"
	"github.com/cruxtone/hymnsift/src/infra/ratelimit"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/cruxtone/hymnsift/src/infra/retry"
)

func main() {
	// Secrets (Genius token, Telegram token) usually arrive via .env.
	_ = godotenv.Load()

	cfgManager, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := cfgManager.Get()

	logger := logging.SetupLogger(cfgManager)
	slog.SetDefault(logger)

	redisClient := redisstore.NewClient(cfg.Redis)
	if err := redisstore.Ping(context.Background(), redisClient); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	keys := redisstore.NewKeys(cfg.Queue.Namespace)

	library, err := database.NewSqliteLibrary(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open library: %v", err)
	}
	defer library.Close()

	queueService := queue.NewService(redisClient, keys,
		time.Duration(cfg.Queue.ActiveTTL)*time.Second,
		time.Duration(cfg.Queue.CompletedTTL)*time.Second)

	etaCalculator := progress.NewETACalculator()
	tracker := progress.NewTracker(redisClient, keys, etaCalculator)

	lyricsCache := cache.NewLyricsCache(redisClient, keys,
		time.Duration(cfg.Lyrics.CacheTTL)*time.Second,
		time.Duration(cfg.Lyrics.NegativeCacheTTL)*time.Second)

	httpTimeout := time.Duration(cfg.Lyrics.HTTPTimeout) * time.Second
	geniusToken := ""
	if p, ok := cfg.Lyrics.Providers["genius"]; ok && p.Token != nil {
		geniusToken = *p.Token
	}
	providerEnabled := func(name string) bool {
		p, ok := cfg.Lyrics.Providers[name]
		return ok && p.Enabled
	}
	providerChain := []lyrics.Provider{
		providers.NewLRCLibProvider(providerEnabled("lrclib"), httpTimeout),
		providers.NewLyricsOvhProvider(providerEnabled("lyrics_ovh"), httpTimeout),
		providers.NewGeniusProvider(providerEnabled("genius"), geniusToken,
			time.Duration(cfg.Lyrics.GeniusTimeout)*time.Second, cfg.Lyrics.GeniusRetries),
	}

	// Only Genius carries configured rate limits; the free providers run
	// unguarded.
	guards := map[string]*ratelimit.Guard{
		"genius": ratelimit.NewGuard(
			ratelimit.NewTokenBucket(cfg.RateLimit.BucketCapacity, cfg.RateLimit.BucketRefillRate),
			ratelimit.NewSlidingWindow(time.Duration(cfg.RateLimit.WindowSize)*time.Second, cfg.RateLimit.MaxRequests),
		),
	}
	retryPolicy := retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		BaseDelay:    cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		JitterFactor: cfg.Retry.JitterFactor,
	}
	lyricsService := lyrics.NewService(providerChain, lyricsCache, guards, retryPolicy)

	analyzer := analysis.NewLyricsAnalyzer(lyricsService)
	validator := quality.NewValidator()

	var notifier worker.Notifier
	if telegramNotifier := notify.NewTelegramNotifier(cfg.Telegram); telegramNotifier != nil {
		notifier = telegramNotifier
	}

	workerService := worker.New(queueService, tracker, validator, analyzer, library, notifier,
		time.Duration(cfg.Worker.PollInterval*float64(time.Second)))
	workerService.Start()

	janitorService := janitor.New(queueService, tracker, lyricsCache,
		time.Duration(cfg.Janitor.Interval)*time.Second,
		time.Duration(cfg.Lyrics.CacheMaxAgeDays)*24*time.Hour,
		time.Duration(cfg.Janitor.StaleJobsH)*time.Hour)
	janitorService.Start()

	analysisService := analysis.NewService(queueService, library, etaCalculator)
	server := hosting.NewServer(cfgManager,
		func(app *fiber.App) { analysis.RegisterRoutes(app, analysisService) },
		func(app *fiber.App) { queue.RegisterRoutes(app, queueService) },
		func(app *fiber.App) { worker.RegisterRoutes(app, workerService, queueService, tracker) },
		metrics.RegisterRoutes,
	)
	slog.Info("Starting server", "port", cfg.Server.Port)
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	slog.Info("Shutting down...")

	janitorService.Stop()
	if ok := workerService.Stop(time.Duration(cfg.Worker.StopTimeout * float64(time.Second))); !ok {
		slog.Error("Worker did not stop cleanly")
	}
	if err := server.Shutdown(); err != nil {
		log.Fatalf("failed to shutdown server: %v", err)
	}
	slog.Info("Server gracefully shut down.")
}
