package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "TIMELINEWATCH_CONFIG"
	envFilePathEnv    = "TIMELINEWATCH_ENV_FILE"
	keywordsEnv       = "TIMELINEWATCH_KEYWORDS"
	excludedEnv       = "TIMELINEWATCH_EXCLUDED"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	natsURLEnv        = "NATS_URL"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"

	defaultEnvFile = ".env"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Source        SourceConfig       `yaml:"source"`
	Session       SessionConfig      `yaml:"session"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Stats         StatsConfig        `yaml:"stats"`
	Settings      Settings           `yaml:"settings"`
	Transport     TransportConfig    `yaml:"transport"`
	Storage       StorageConfig      `yaml:"storage"`
	Sentiment     SentimentConfig    `yaml:"sentiment"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig describes the observed document. Files win over URLs when both are set.
type SourceConfig struct {
	Profile   string   `yaml:"profile"`
	URL       string   `yaml:"url"`
	BaseURL   string   `yaml:"baseUrl"`
	Cookie    string   `yaml:"cookie"`
	UserAgent string   `yaml:"userAgent"`
	Files     []string `yaml:"files"`
}

// SessionConfig holds discovery cadences.
type SessionConfig struct {
	PollInterval       time.Duration `yaml:"pollInterval"`
	RefreshInterval    time.Duration `yaml:"refreshInterval"`
	CacheResetInterval time.Duration `yaml:"cacheResetInterval"`
	StepTimeout        time.Duration `yaml:"stepTimeout"`
	MinReloadSpacing   time.Duration `yaml:"minReloadSpacing"`
	ScrollAfterScan    bool          `yaml:"scrollAfterScan"`
	MaxPerCheck        int           `yaml:"maxPerCheck"`
	MaxProbeFailures   int           `yaml:"maxProbeFailures"`
}

// DedupConfig bounds the discovery caches.
type DedupConfig struct {
	MaxIDs         int `yaml:"maxIds"`
	RetainIDs      int `yaml:"retainIds"`
	MaxContent     int `yaml:"maxContent"`
	RetainContent  int `yaml:"retainContent"`
	FingerprintLen int `yaml:"fingerprintLen"`
}

// StatsConfig tunes the aggregator.
type StatsConfig struct {
	RecomputeInterval time.Duration `yaml:"recomputeInterval"`
	RecentLimit       int           `yaml:"recentLimit"`
	MaxSeenIDs        int           `yaml:"maxSeenIds"`
}

// Settings are the user-facing filters; read-only once loaded.
type Settings struct {
	KeywordList  []string `yaml:"keywords"`
	ExcludedList []string `yaml:"excludedTerms"`
}

// Keywords returns a copy of the configured keywords.
func (s Settings) Keywords() []string {
	return append([]string(nil), s.KeywordList...)
}

// ExcludedTerms returns a copy of the configured excluded terms.
func (s Settings) ExcludedTerms() []string {
	return append([]string(nil), s.ExcludedList...)
}

// TransportConfig selects the emitter channels. NATS is enabled by a non-empty URL.
type TransportConfig struct {
	LocalBuffer int    `yaml:"localBuffer"`
	NATSURL     string `yaml:"natsUrl"`
	NATSSubject string `yaml:"natsSubject"`
}

// StorageConfig enables durable processed-post tracking. Postgres wins over Redis.
type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// PostgresConfig describes the processed-posts table.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// RedisConfig describes the processed-posts set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// SentimentConfig picks the analyzer: auto, chatgpt, ml, vader or off.
type SentimentConfig struct {
	Provider  string        `yaml:"provider"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
	ChatGPT   ChatGPTConfig `yaml:"chatgpt"`
	ML        MLConfig      `yaml:"ml"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MLConfig describes the inference service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	// AlertThreshold is the 1-minute trend percentage that triggers an activity alert; 0 disables.
	AlertThreshold int `yaml:"alertThreshold"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// HTTPConfig holds the stats API listener; empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	loadEnvFile()

	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if parsed, err := Parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = parsed
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes YAML over the defaults, so absent keys keep their default values.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// loadEnvFile pulls variables from a dotenv file without overriding the real environment.
func loadEnvFile() {
	path := os.Getenv(envFilePathEnv)
	if path == "" {
		path = defaultEnvFile
	}
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", path, err)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(keywordsEnv); v != "" {
		c.Settings.KeywordList = splitList(v)
	}
	if v := os.Getenv(excludedEnv); v != "" {
		c.Settings.ExcludedList = splitList(v)
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.Transport.NATSURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.Sentiment.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.Sentiment.ChatGPT.Model = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Default returns the configuration used when nothing is provided.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Source: SourceConfig{
			Profile: "twitter",
			BaseURL: "https://twitter.com",
		},
		Session: SessionConfig{
			PollInterval:       time.Second,
			RefreshInterval:    30 * time.Second,
			CacheResetInterval: 5 * time.Minute,
			StepTimeout:        10 * time.Second,
			MinReloadSpacing:   5 * time.Second,
			ScrollAfterScan:    true,
			MaxPerCheck:        50,
			MaxProbeFailures:   3,
		},
		Dedup: DedupConfig{
			MaxIDs:         2000,
			RetainIDs:      1000,
			MaxContent:     1000,
			RetainContent:  500,
			FingerprintLen: 20,
		},
		Stats: StatsConfig{
			RecomputeInterval: 5 * time.Second,
			RecentLimit:       50,
			MaxSeenIDs:        10000,
		},
		Transport: TransportConfig{LocalBuffer: 256, NATSSubject: "timelinewatch.posts"},
		Storage: StorageConfig{
			Postgres: PostgresConfig{Table: "processed_posts"},
			Redis:    RedisConfig{Key: "timelinewatch:processed", TTL: 24 * time.Hour},
		},
		Sentiment: SentimentConfig{
			Provider:  "auto",
			Interval:  time.Minute,
			BatchSize: 50,
			ChatGPT: ChatGPTConfig{
				Endpoint: "https://api.openai.com/v1",
				Model:    "gpt-4o-mini",
				Timeout:  60 * time.Second,
				SystemPrompt: "You analyze the sentiment of short social media posts about " +
					"a topic. Answer with a JSON object only.",
			},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Describe renders the non-secret parts of the configuration for startup logs.
func (c Config) Describe() []any {
	return []any{
		"profile", c.Source.Profile,
		"keywords", strings.Join(c.Settings.KeywordList, ","),
		"poll", c.Session.PollInterval.String(),
		"sentiment", c.Sentiment.Provider,
		"nats", c.Transport.NATSURL != "",
		"postgres", c.Storage.Postgres.DSN != "",
		"redis", c.Storage.Redis.Addr != "",
		"telegram", c.Notifications.Telegram.Enabled(),
		"http", c.HTTP.Addr,
		"log_level", c.Logging.Level,
		"max_per_check", c.Session.MaxPerCheck,
	}
}
