package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/feedharvester/config"
	"sjsage522/feedharvester/helpers"
	"sjsage522/feedharvester/internal/browser"
	"sjsage522/feedharvester/internal/crawler"
	"sjsage522/feedharvester/internal/store"
	"sjsage522/feedharvester/logger"
	"sjsage522/feedharvester/services/cache"
	"sjsage522/feedharvester/services/publisher"
	"sjsage522/feedharvester/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code: 1 for configuration errors, 0 otherwise
func run(args []string) int {
	// Load environment variables
	godotenv.Load()

	cfg, err := config.LoadConfig(args)
	if err != nil {
		logger.Init()
		logger.Default.Error().Err(err).Msg("Invalid configuration")
		return 1
	}
	if cfg == nil {
		// Help was printed
		return 0
	}

	os.Setenv("HARVEST_ENVIRONMENT", cfg.Environment)
	logger.Init()
	log := logger.Default

	selectors := crawler.DefaultSelectors()
	if cfg.SelectorsFile != "" {
		selectors, err = crawler.LoadSelectors(cfg.SelectorsFile)
		if err != nil {
			log.Error().Err(err).Str("file", cfg.SelectorsFile).Msg("Invalid selector profile")
			return 1
		}
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("username", cfg.Username).
		Str("profile_url", cfg.ProfileURL()).
		Int("max_scrolls", cfg.MaxScrolls).
		Int("batch_size", cfg.BatchSize).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			log.Info().Str("username", cfg.Username).Msg("Another run holds the lock, skipping")
		} else {
			log.Error().Err(err).Msg("Failed to initialize services")
		}
		return 0
	}
	defer services.Cleanup()

	stats, seen := harvest(ctx, cfg, selectors, services)
	reportStore(ctx, services.Store, logger.ForStore())

	log.Info().
		Int("unique_ids", seen.Len()).
		Int("inserted", stats.Inserted).
		Msg("Shutting down gracefully...")
	return 0
}

// Services holds all the initialized services
type Services struct {
	Page      browser.Page
	Store     store.Store
	Publisher publisher.Publisher
	Failures  helpers.LoggerInterface

	releaseLock func()
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Page != nil {
		s.Page.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
	if s.releaseLock != nil {
		s.releaseLock()
	}
}

// initializeServices takes the run lock and opens storage, the optional
// publisher and the page
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{Failures: helpers.NopLogger{}}

	if cfg.MemcacheAddr != "" {
		cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		release, err := cache.AcquireLock(cacheService, cache.LockKey(cfg.Username), cfg.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			return nil, err
		case err != nil:
			logger.ForCache().Warn().Err(err).Msg("Run lock unavailable, continuing without it")
		default:
			services.releaseLock = release
			logger.Info("Acquired run lock on Memcache at %s", cfg.MemcacheAddr)
		}
	}

	st, err := store.Open(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		services.Cleanup()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	services.Store = st

	if cfg.ErrorLog != "" {
		services.Failures = helpers.NewLogger(cfg.ErrorLog)
	}

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.ForPublisher().Warn().Err(err).Msg("Redis unavailable, batch events disabled")
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	page, err := openPage(ctx, cfg)
	if err != nil {
		services.Cleanup()
		return nil, err
	}
	services.Page = page

	return services, nil
}

func openPage(ctx context.Context, cfg *config.Config) (browser.Page, error) {
	if cfg.FixtureDir != "" {
		page, err := browser.LoadFixtureDir(cfg.FixtureDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixtures: %w", err)
		}
		logger.Info("Replaying %s", cfg.FixtureDir)
		return page, nil
	}

	// Production hosts have no display
	headless := !cfg.ShowBrowser || cfg.IsProduction()
	page, err := browser.NewChromePage(ctx, browser.ChromeOptions{
		RemoteURL: cfg.ChromeURL,
		Headless:  headless,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return page, nil
}

// harvest runs one scroll-extract-persist pass over the configured feed
func harvest(ctx context.Context, cfg *config.Config, selectors crawler.Selectors, services *Services) (worker.Stats, *crawler.SeenSet) {
	seen := crawler.NewSeenSet()
	paginator := crawler.NewPaginator(crawler.PaginatorConfig{
		Username:    cfg.Username,
		ProfileURL:  cfg.ProfileURL(),
		ScrollPause: cfg.ScrollPause,
		MaxScrolls:  cfg.MaxScrolls,
		WaitTimeout: cfg.WaitTimeout,
		NavTimeout:  cfg.NavTimeout,
		BatchSize:   cfg.BatchSize,
		Selectors:   selectors,
	}, services.Page, seen)

	persister := store.NewPersister(services.Store)
	persister.SetFailureLog(services.Failures)

	w := worker.NewWorker(
		ctx,
		paginator,
		persister,
		services.Publisher,
		cfg.Username,
		cfg.QueueSize,
	)

	return w.Run(), seen
}

// recentRecordsLogged is how many stored records are listed at debug level
const recentRecordsLogged = 5

// reportStore logs what storage holds once the run is over
func reportStore(ctx context.Context, st store.Store, log *logger.Logger) {
	// The run may have been cancelled; the summary still runs
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	total, err := st.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read storage summary")
		return
	}

	event := log.Info().Int("total_records", total)
	id, ok, err := st.LatestID(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to read latest record")
	case ok:
		event = event.Int64("latest_id", id)
		if rec, err := st.Get(ctx, id); err == nil && rec.CreatedAt != nil {
			event = event.Time("latest_created_at", *rec.CreatedAt)
		}
	}
	event.Msg("Storage summary")

	if !logger.IsDebugEnabled() {
		return
	}
	recent, err := st.List(ctx, recentRecordsLogged)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list recent records")
		return
	}
	for _, rec := range recent {
		log.Debug().
			Int64("id", rec.ID).
			Str("author", rec.Author).
			Str("content", rec.Content).
			Msg("Recent record")
	}
}
