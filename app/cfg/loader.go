package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	StorageBackend string `long:"storage" env:"STORAGE_BACKEND" default:"file" choice:"file" choice:"sqlite" choice:"redis" description:"Snapshot storage backend"`
	DataDir        string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for file snapshots"`
	DBPath         string `long:"db-path" env:"DB_PATH" default:"./data/meme-comb.db" description:"SQLite database path (sqlite backend)"`
	RedisAddr      string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address (redis backend)"`
	RedisPassword  string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password (redis backend)"`
	RedisDB        int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number (redis backend)"`

	// Source configuration
	SourcesDir  string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	CatalogPath string `long:"catalog" env:"CATALOG_PATH" description:"Keyword catalog YAML (built-in catalog when empty)"`
	VKToken     string `long:"vk-token" env:"VK_TOKEN" description:"VK API access token"`

	// Acquisition configuration
	RefreshInterval int `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"3600" description:"Refresh interval in seconds"`
	RefreshSize     int `long:"refresh-size" env:"REFRESH_SIZE" default:"10" description:"New items wanted per refresh cycle"`
	BatchSize       int `long:"batch-size" env:"BATCH_SIZE" default:"20" description:"Posts requested per source call"`
	FetchRetries    int `long:"fetch-retries" env:"FETCH_RETRIES" default:"3" description:"Retries per failed source call"`
	MinPoolSize     int `long:"min-pool-size" env:"MIN_POOL_SIZE" default:"50" description:"Accepted pool size that triggers top-up fetches"`
	TopUpSize       int `long:"top-up-size" env:"TOP_UP_SIZE" default:"10" description:"New items wanted per top-up cycle"`
	MaxTopUpRounds  int `long:"max-top-up-rounds" env:"MAX_TOP_UP_ROUNDS" default:"3" description:"Top-up cycles allowed after a refresh"`

	// Classifier configuration
	StrictMode         bool `long:"strict" env:"STRICT_MODE" description:"Require an office/workplace keyword in every item"`
	MinWords           int  `long:"min-words" env:"MIN_WORDS" default:"0" description:"Minimum words for text-only items (0 disables)"`
	MinWordsWithImage  bool `long:"min-words-with-image" env:"MIN_WORDS_WITH_IMAGE" description:"Apply the minimum word count to image captions too"`
	CategoryThreshold  int  `long:"category-threshold" env:"CATEGORY_THRESHOLD" default:"20" description:"Advertising category score that rejects an item"`
	RepeatThreshold    int  `long:"repeat-threshold" env:"REPEAT_THRESHOLD" default:"3" description:"Repeats of one word that mark long text as degenerate"`
	LongTextWords      int  `long:"long-text-words" env:"LONG_TEXT_WORDS" default:"50" description:"Word count above which repetition is checked"`
	KeepRejectedImages bool `long:"keep-rejected-images" env:"KEEP_REJECTED_IMAGES" description:"Do not block images of rejected items"`

	// Recommendation configuration
	MinRatings  int `long:"min-ratings" env:"MIN_RATINGS" default:"5" description:"Ratings needed before personalised ranking"`
	MaxKeywords int `long:"max-keywords" env:"MAX_KEYWORDS" default:"15" description:"Keywords extracted per item"`

	// HTTP configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://memes.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	FeedMaxItems int    `long:"feed-max-items" env:"FEED_MAX_ITEMS" default:"50" description:"Items in the RSS export"`

	// Telegram configuration
	TelegramToken string `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"Telegram bot token"`
	DisableBot    bool   `long:"disable-bot" env:"DISABLE_BOT" description:"Run without the Telegram bot"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Meme Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Moscow)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads an optional .env file, then flags and environment. It returns
// nil without error when help was requested.
func Load() (*Cfg, error) {
	if err := loadEnvFile(cmp.Or(os.Getenv("ENV_FILE"), ".env")); err != nil {
		return nil, err
	}

	cfg, err := parse(os.Args[1:])
	if err != nil || cfg == nil {
		return cfg, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		StorageBackend:    raw.StorageBackend,
		DataDir:           raw.DataDir,
		DBPath:            raw.DBPath,
		RedisAddr:         raw.RedisAddr,
		RedisPassword:     raw.RedisPassword,
		RedisDB:           raw.RedisDB,
		SourcesDir:        raw.SourcesDir,
		CatalogPath:       raw.CatalogPath,
		VKToken:           raw.VKToken,
		RefreshInterval:   raw.RefreshInterval,
		RefreshSize:       raw.RefreshSize,
		BatchSize:         raw.BatchSize,
		FetchRetries:      raw.FetchRetries,
		MinPoolSize:       raw.MinPoolSize,
		TopUpSize:         raw.TopUpSize,
		MaxTopUpRounds:    raw.MaxTopUpRounds,
		StrictMode:        raw.StrictMode,
		MinWords:          raw.MinWords,
		MinWordsWithImage: raw.MinWordsWithImage,
		CategoryThreshold: raw.CategoryThreshold,
		RepeatThreshold:   raw.RepeatThreshold,
		LongTextWords:     raw.LongTextWords,
		BlockOnReject:     !raw.KeepRejectedImages,
		MinRatings:        raw.MinRatings,
		MaxKeywords:       raw.MaxKeywords,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		FeedMaxItems:      raw.FeedMaxItems,
		TelegramToken:     raw.TelegramToken,
		BotEnabled:        !raw.DisableBot,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	positive := []struct {
		name  string
		value int
	}{
		{"refresh-interval", cfg.RefreshInterval},
		{"refresh-size", cfg.RefreshSize},
		{"batch-size", cfg.BatchSize},
		{"top-up-size", cfg.TopUpSize},
		{"category-threshold", cfg.CategoryThreshold},
		{"repeat-threshold", cfg.RepeatThreshold},
		{"long-text-words", cfg.LongTextWords},
		{"min-ratings", cfg.MinRatings},
		{"max-keywords", cfg.MaxKeywords},
		{"feed-max-items", cfg.FeedMaxItems},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if cfg.FetchRetries < 0 || cfg.MinPoolSize < 0 || cfg.MaxTopUpRounds < 0 || cfg.MinWords < 0 {
		return fmt.Errorf("retry, pool and word limits must not be negative")
	}

	return nil
}

func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
