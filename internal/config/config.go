package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string

	Import      ImportConfig
	Quota       QuotaConfig
	Categorizer CategorizerConfig
}

// ImportConfig holds the batch defaults applied to every import.
type ImportConfig struct {
	MaxConcurrency      int
	ChunkSize           int
	MaxRetries          int
	EnableRecovery      bool
	MaxFileSize         int64
	LargeFileThreshold  int64
	DedupThreshold      float64
	MaxUploadBytes      int64
	DuplicateCheckLimit int
}

type QuotaConfig struct {
	DefaultTier string
	Limits      map[string]int
}

type CategorizerConfig struct {
	BatchSize    int
	Timeout      time.Duration
	CacheBucket  string
	CacheTTL     time.Duration
	CacheEntries int
}

// key, environment variable, default
var bindings = []struct {
	key, env string
	def      any
}{
	{"port", "PROMPTVAULT_PORT", 8760},
	{"nats.url", "NATS_URL", "nats://hermes:4222"},
	{"nats.token", "NATS_TOKEN", ""},
	{"database_url", "DATABASE_URL", ""},
	{"log_level", "LOG_LEVEL", "info"},
	{"anthropic.api_key", "ANTHROPIC_API_KEY", ""},
	{"anthropic.model", "PROMPTVAULT_MODEL", "claude-haiku-4-5-20251001"},
	{"slack.bot_token", "SLACK_BOT_TOKEN", ""},
	{"slack.channel", "SLACK_IMPORTS_CHANNEL", ""},
	{"api_token", "PROMPTVAULT_API_TOKEN", ""},

	{"import.max_concurrency", "PROMPTVAULT_MAX_CONCURRENCY", 3},
	{"import.chunk_size", "PROMPTVAULT_CHUNK_SIZE", 10},
	{"import.max_retries", "PROMPTVAULT_MAX_RETRIES", 2},
	{"import.enable_recovery", "PROMPTVAULT_ENABLE_RECOVERY", true},
	{"import.max_file_size", "PROMPTVAULT_MAX_FILE_SIZE", 50 << 20},
	{"import.large_file_threshold", "PROMPTVAULT_LARGE_FILE_THRESHOLD", 5 << 20},
	{"import.dedup_threshold", "PROMPTVAULT_DEDUP_THRESHOLD", 0.95},
	{"import.max_upload_bytes", "PROMPTVAULT_MAX_UPLOAD_BYTES", 200 << 20},
	{"import.duplicate_check_limit", "PROMPTVAULT_DUPLICATE_CHECK_LIMIT", 1000},

	{"quota.default_tier", "PROMPTVAULT_DEFAULT_TIER", "free"},

	{"categorizer.batch_size", "PROMPTVAULT_CATEGORIZE_BATCH_SIZE", 10},
	{"categorizer.timeout", "PROMPTVAULT_CATEGORIZE_TIMEOUT", "30s"},
	{"categorizer.cache_bucket", "PROMPTVAULT_CACHE_BUCKET", "promptvault-categories"},
	{"categorizer.cache_ttl", "PROMPTVAULT_CACHE_TTL", "24h"},
	{"categorizer.cache_entries", "PROMPTVAULT_CACHE_ENTRIES", 10000},
}

// Load reads configuration from the environment and, when configFile is
// set or ~/.config/promptvault/config.yaml exists, from a YAML file.
// Environment variables win over the file. Malformed numbers and durations
// fall back to their defaults.
func Load(configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "promptvault"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", b.env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Port:            intValue(v, "port"),
		NatsURL:         v.GetString("nats.url"),
		NatsToken:       v.GetString("nats.token"),
		DatabaseURL:     v.GetString("database_url"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		AnthropicAPIKey: v.GetString("anthropic.api_key"),
		AnthropicModel:  v.GetString("anthropic.model"),
		SlackBotToken:   v.GetString("slack.bot_token"),
		SlackChannel:    v.GetString("slack.channel"),
		APIToken:        v.GetString("api_token"),
		Import: ImportConfig{
			MaxConcurrency:      intValue(v, "import.max_concurrency"),
			ChunkSize:           intValue(v, "import.chunk_size"),
			MaxRetries:          intValue(v, "import.max_retries"),
			EnableRecovery:      boolValue(v, "import.enable_recovery"),
			MaxFileSize:         int64(intValue(v, "import.max_file_size")),
			LargeFileThreshold:  int64(intValue(v, "import.large_file_threshold")),
			DedupThreshold:      floatValue(v, "import.dedup_threshold"),
			MaxUploadBytes:      int64(intValue(v, "import.max_upload_bytes")),
			DuplicateCheckLimit: intValue(v, "import.duplicate_check_limit"),
		},
		Quota: QuotaConfig{
			DefaultTier: strings.ToLower(v.GetString("quota.default_tier")),
			Limits:      limits(v),
		},
		Categorizer: CategorizerConfig{
			BatchSize:    intValue(v, "categorizer.batch_size"),
			Timeout:      durationValue(v, "categorizer.timeout"),
			CacheBucket:  v.GetString("categorizer.cache_bucket"),
			CacheTTL:     durationValue(v, "categorizer.cache_ttl"),
			CacheEntries: intValue(v, "categorizer.cache_entries"),
		},
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL()
	}
	return cfg, nil
}

// defaultDatabaseURL is a SQLite file next to the config file.
func defaultDatabaseURL() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sqlite://promptvault.db"
	}
	return "sqlite://" + filepath.Join(home, ".config", "promptvault", "promptvault.db")
}

// limits reads per-tier overrides from the quota.limits map in the config
// file, e.g. {free: 100}.
func limits(v *viper.Viper) map[string]int {
	raw := v.GetStringMapString("quota.limits")
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]int, len(raw))
	for tier, s := range raw {
		if n, err := strconv.Atoi(s); err == nil {
			out[strings.ToLower(tier)] = n
		}
	}
	return out
}

func defaultOf(key string) any {
	for _, b := range bindings {
		if b.key == key {
			return b.def
		}
	}
	return nil
}

func intValue(v *viper.Viper, key string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return n
	}
	n, _ := defaultOf(key).(int)
	return n
}

func floatValue(v *viper.Viper, key string) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64); err == nil {
		return f
	}
	f, _ := defaultOf(key).(float64)
	return f
}

func boolValue(v *viper.Viper, key string) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key))); err == nil {
		return b
	}
	b, _ := defaultOf(key).(bool)
	return b
}

func durationValue(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key))); err == nil {
		return d
	}
	s, _ := defaultOf(key).(string)
	d, _ := time.ParseDuration(s)
	return d
}
