package cfg

type Cfg struct {
	// Storage configuration
	StorageBackend string
	DataDir        string
	DBPath         string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Source configuration
	SourcesDir  string
	CatalogPath string
	VKToken     string

	// Acquisition configuration
	RefreshInterval int
	RefreshSize     int
	BatchSize       int
	FetchRetries    int
	MinPoolSize     int
	TopUpSize       int
	MaxTopUpRounds  int

	// Classifier configuration
	StrictMode        bool
	MinWords          int
	MinWordsWithImage bool
	CategoryThreshold int
	RepeatThreshold   int
	LongTextWords     int
	BlockOnReject     bool

	// Recommendation configuration
	MinRatings  int
	MaxKeywords int

	// HTTP configuration
	Port         string
	BaseUrl      string
	APIAccessKey string
	FeedMaxItems int

	// Telegram configuration
	TelegramToken string
	BotEnabled    bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
