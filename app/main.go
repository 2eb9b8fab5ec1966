package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lysyi3m/meme-comb/app/api"
	"github.com/lysyi3m/meme-comb/app/bot"
	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/cfg"
	"github.com/lysyi3m/meme-comb/app/classifier"
	"github.com/lysyi3m/meme-comb/app/collection"
	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/dedup"
	"github.com/lysyi3m/meme-comb/app/feed"
	"github.com/lysyi3m/meme-comb/app/recommend"
	"github.com/lysyi3m/meme-comb/app/source"
	"github.com/lysyi3m/meme-comb/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appConfig.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Meme Comb", "version", appConfig.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keywordCatalog := catalog.Default()
	if appConfig.CatalogPath != "" {
		keywordCatalog, err = catalog.Load(appConfig.CatalogPath)
		if err != nil {
			fatal("Failed to load keyword catalog", err)
		}
	}
	slog.Info("Keyword catalog loaded", "version", keywordCatalog.Version)

	configCache := source.NewConfigCache(appConfig.SourcesDir)
	if err := configCache.Run(); err != nil {
		fatal("Failed to load source configurations", err)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount())

	if err := checkCredentials(appConfig, configCache.GetEnabledConfigs()); err != nil {
		fatal("Missing credentials", err)
	}

	var botAPI *tgbotapi.BotAPI
	if appConfig.BotEnabled {
		botAPI, err = tgbotapi.NewBotAPI(appConfig.TelegramToken)
		if err != nil {
			fatal("Failed to connect to Telegram", err)
		}
	}

	store, closeStore, err := openStore(ctx, appConfig)
	if err != nil {
		fatal("Failed to open storage", err)
	}
	defer closeStore()

	registry := dedup.NewRegistry(store)
	registry.Load(ctx)

	pool := collection.NewStore(store)
	pool.Load(ctx)

	engine := recommend.NewEngine(keywordCatalog, store, recommend.Options{
		MinRatings:  appConfig.MinRatings,
		MaxKeywords: appConfig.MaxKeywords,
	})
	engine.Load(ctx)

	blocked, seen := registry.Counts()
	slog.Info("State restored",
		"accepted", pool.Len(),
		"rejected", pool.RejectedLen(),
		"blocked_images", blocked,
		"seen_signatures", seen,
		"users", engine.UserCount())

	screener := classifier.NewClassifier(keywordCatalog, registry, classifier.Policy{
		Strict:            appConfig.StrictMode,
		MinWords:          appConfig.MinWords,
		MinWordsWithImage: appConfig.MinWordsWithImage,
		CategoryThreshold: appConfig.CategoryThreshold,
		RepeatThreshold:   appConfig.RepeatThreshold,
		LongTextWords:     appConfig.LongTextWords,
		BlockOnReject:     appConfig.BlockOnReject,
	})

	httpClient := &http.Client{Timeout: 30 * time.Second}
	router := source.NewRouter(configCache, map[source.Kind]source.Client{
		source.KindVK:  source.NewVKClient(httpClient, appConfig.VKToken, appConfig.UserAgent),
		source.KindRSS: source.NewRSSClient(httpClient, appConfig.UserAgent),
	}, source.NewMetadataEnricher(httpClient, appConfig.UserAgent))

	acquirerConfig := tasks.DefaultAcquirerConfig()
	acquirerConfig.BatchSize = appConfig.BatchSize
	acquirerConfig.FetchRetries = appConfig.FetchRetries
	acquirerConfig.MinPoolSize = appConfig.MinPoolSize
	acquirerConfig.TopUpSize = appConfig.TopUpSize
	acquirerConfig.MaxTopUpRounds = appConfig.MaxTopUpRounds

	acquirer := tasks.NewAcquirer(configCache, router, screener, registry, pool, store, acquirerConfig)

	scheduler := tasks.NewScheduler(acquirer, tasks.SchedulerConfig{
		Interval:    time.Duration(appConfig.RefreshInterval) * time.Second,
		RefreshSize: appConfig.RefreshSize,
	})
	scheduler.Start()
	defer scheduler.Stop()

	memeFeed := feed.NewFeed(pool, engine, registry, keywordCatalog.Version)

	selfLink := strings.TrimRight(appConfig.BaseUrl, "/") + "/feed.xml"
	generator := feed.NewGenerator("Meme Comb", selfLink, appConfig.Version)

	apiHandler := api.NewHandler(memeFeed, generator, configCache, scheduler, acquirer,
		appConfig.FeedMaxItems, appConfig.Version)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port, "api_enabled", appConfig.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	botDone := make(chan struct{})
	if botAPI != nil {
		chatBot := bot.NewBot(memeFeed, bot.NewTelegramSender(botAPI))
		go func() {
			defer close(botDone)
			chatBot.Run(ctx, botAPI)
		}()
	} else {
		close(botDone)
		slog.Info("Telegram bot disabled")
	}

	slog.Info("Meme Comb started")

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		stop()
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	<-botDone

	// Scheduler is stopped via defer and waits for the in-flight task
	slog.Info("Meme Comb shutdown complete")
}

// checkCredentials fails when no upstream can be reached or when the bot is
// enabled without a token.
func checkCredentials(appConfig *cfg.Cfg, enabled []*source.Config) error {
	usable := 0
	for _, config := range enabled {
		if config.Kind == source.KindVK && appConfig.VKToken == "" {
			slog.Warn("VK source configured without VK token", "source", config.Name)
			continue
		}
		usable++
	}
	if usable == 0 {
		return errors.New("no usable sources: set VK_TOKEN for VK sources or configure RSS sources")
	}

	if appConfig.BotEnabled && appConfig.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required unless the bot is disabled")
	}

	return nil
}

func openStore(ctx context.Context, appConfig *cfg.Cfg) (database.BlobStore, func(), error) {
	switch appConfig.StorageBackend {
	case "redis":
		store, err := database.NewRedisStore(ctx, appConfig.RedisAddr, appConfig.RedisPassword, appConfig.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to Redis", "addr", appConfig.RedisAddr, "db", appConfig.RedisDB)
		return store, func() { store.Close() }, nil
	case "sqlite":
		db, err := database.NewConnection(appConfig.DBPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to database", "path", appConfig.DBPath)
		return database.NewSQLiteStore(db), func() { db.Close() }, nil
	default:
		store, err := database.NewFileStore(appConfig.DataDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using file storage", "dir", appConfig.DataDir)
		return store, func() {}, nil
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
