// Package main is the entry point for the bytebin server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/bytebin-io/bytebin/internal/cache"
	"github.com/bytebin-io/bytebin/internal/config"
	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/index"
	"github.com/bytebin-io/bytebin/internal/logsink"
	"github.com/bytebin-io/bytebin/internal/ratelimit"
	"github.com/bytebin-io/bytebin/internal/server"
	"github.com/bytebin-io/bytebin/internal/storage"
)

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	if homeDir, err := os.UserHomeDir(); err == nil {
		configEnv := filepath.Join(homeDir, ".config", "bytebin", ".env")
		if _, err := os.Stat(configEnv); err == nil {
			_ = godotenv.Load(configEnv)
		}
	}

	// Local .env can override
	_ = godotenv.Load()
}

// setupLogging configures zerolog: pretty console output on a terminal,
// structured JSON otherwise.
func setupLogging(debug bool) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func main() {
	loadEnvFiles()

	configPath := flag.String("config", "config.yml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	setupLogging(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("failed to load configuration")
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Bool("s3", cfg.S3).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("bytebin starting")

	executor := storage.NewExecutor(cfg.CorePoolSize)
	defer executor.Close()

	local, err := storage.NewLocalDiskBackend("local", cfg.ContentPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create local storage backend")
	}

	backends := []storage.Backend{local}
	listers := []index.Lister{local}
	var selector storage.Selector = storage.NewStaticSelector(local)

	if cfg.S3 {
		s3Backend, err := storage.NewS3Backend(context.Background(), "s3", cfg.S3Bucket, storage.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create s3 storage backend")
		}
		backends = append(backends, s3Backend)
		listers = append(listers, s3Backend)

		// Large or long-lived content goes to s3, the rest stays local.
		if cfg.S3ExpiryThresholdMins > 0 {
			selector = storage.NewIfExpiryGtSelector(time.Duration(cfg.S3ExpiryThresholdMins)*time.Minute, s3Backend, selector)
		}
		if cfg.S3SizeThresholdKb > 0 {
			selector = storage.NewIfSizeGtSelector(cfg.S3SizeThresholdKb*1024, s3Backend, selector)
		}
	}

	idx, err := index.Initialise(context.Background(), cfg.IndexPath, listers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open content index")
	}
	defer idx.Close()

	coordinator := storage.NewCoordinator(executor, backends, selector, idx)

	var loader cache.Loader
	if cfg.CacheSaveDirect {
		loader = cache.NewDirectLoader(coordinator.Load, executor)
	} else {
		loader = cache.New(coordinator.Load, executor,
			time.Duration(cfg.CacheExpiryMinutes)*time.Minute,
			int64(cfg.CacheMaxSizeMb)*content.MegabyteLength)
	}

	sink := logsink.New(cfg.LoggingHTTPURI, time.Duration(cfg.LoggingHTTPFlushPeriodSeconds)*time.Second)
	defer sink.Close()

	notFoundLimiter := ratelimit.NewExponential(
		cfg.ReadFailedAmount,
		time.Duration(cfg.ReadFailedPeriodMins)*time.Minute,
		cfg.ReadFailedMultiplier,
		time.Duration(cfg.ReadFailedMaxPeriodMins)*time.Minute,
	)

	srv, err := server.New(server.Options{
		Host:             cfg.Host,
		Port:             cfg.Port,
		KeyLength:        cfg.KeyLength,
		MaxContentLength: cfg.MaxContentLengthMb * content.MegabyteLength,
		MetricsEnabled:   cfg.MetricsEnabled,
		HostAliases:      cfg.HTTPHostAliases,
		AdminAPIKeys:     cfg.AdminAPIKeys,
		Loader:           loader,
		Storage:          coordinator,
		RateLimits:       ratelimit.NewHandler(cfg.APIKeys),
		PostLimiter:      ratelimit.NewFixedWindow(time.Duration(cfg.PostRateLimitPeriodMins)*time.Minute, cfg.PostRateLimit),
		UpdateLimiter:    ratelimit.NewFixedWindow(time.Duration(cfg.UpdateRateLimitPeriodMins)*time.Minute, cfg.UpdateRateLimit),
		ReadLimiter:      ratelimit.NewFixedWindow(time.Duration(cfg.ReadRateLimitPeriodMins)*time.Minute, cfg.ReadRateLimit),
		NotFoundLimiter:  notFoundLimiter,
		ExpiryPolicy: server.NewExpiryPolicy(cfg.LifetimeMinutes,
			cfg.LifetimeMinutesByUserAgent),
		LogSink: sink,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	housekeeping, stopHousekeeping := context.WithCancel(context.Background())
	defer stopHousekeeping()

	invalidationPeriod := time.Duration(cfg.CacheExpiryMinutes) * time.Minute
	if invalidationPeriod <= 0 {
		invalidationPeriod = 10 * time.Minute
	}
	executor.ScheduleRepeating(housekeeping, time.Minute, invalidationPeriod, func() {
		coordinator.RunInvalidation(housekeeping)
	})
	executor.ScheduleRepeating(housekeeping, time.Hour, time.Hour, notFoundLimiter.Prune)
	if cached, ok := loader.(*cache.CachedLoader); ok {
		executor.ScheduleRepeating(housekeeping, invalidationPeriod, invalidationPeriod, cached.Prune)
	}

	if cfg.StartupAudit {
		audit := storage.NewAuditTask(idx, backends)
		executor.Submit(func() {
			audit.Run(housekeeping)
		})
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("bytebin stopped")
}
