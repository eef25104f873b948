// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	WebhookPath   string `yaml:"webhook_path"`
	WebhookSecret string `yaml:"webhook_secret"`
	SyncWebhooks  bool   `yaml:"sync_webhooks"` // process inline instead of on the worker pool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	Backend string        `yaml:"backend"` // memory|redis
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

type ChannelConfig struct {
	Kind          string        `yaml:"kind"` // telegram|whatsapp|noop
	Token         string        `yaml:"token"`
	BridgeURL     string        `yaml:"bridge_url"`
	Workers       int           `yaml:"workers"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type ProviderConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Interactive       bool          `yaml:"interactive"`
	TaskMode          string        `yaml:"task_mode"`
}

type LLMConfig struct {
	Backend         string        `yaml:"backend"` // none|openai|gemini
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent LLM calls
	Timeout         time.Duration `yaml:"timeout"`
}

type RouterConfig struct {
	Classifier     string        `yaml:"classifier"` // deterministic|llm
	MaxActiveTasks int           `yaml:"max_active_tasks"`
	Timeout        time.Duration `yaml:"timeout"`
}

type PersonalityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Persona string `yaml:"persona"`
}

type WebhookConfig struct {
	ForwardProgress bool `yaml:"forward_progress"`
	Workers         int  `yaml:"workers"`
	QueueSize       int  `yaml:"queue_size"`
}

type MemoryConfig struct {
	Enabled             bool          `yaml:"enabled"`
	LLMExtraction       bool          `yaml:"llm_extraction"`
	WindowTokens        int           `yaml:"window"`
	RetrieveLimit       int           `yaml:"retrieve_limit"`
	MinConfidence       float64       `yaml:"min_confidence"`
	SupersededRetention time.Duration `yaml:"superseded_retention"`
}

type ConnectorsConfig struct {
	Aliases    map[string][]string `yaml:"aliases"` // alias -> connector ids
	CatalogURL string              `yaml:"catalog_url"`
	CatalogKey string              `yaml:"catalog_key"`
	CacheTTL   time.Duration       `yaml:"cache_ttl"`
}

type CleanupConfig struct {
	Cron           string        `yaml:"cron"`
	BatchSize      int           `yaml:"batch_size"`
	MaxBatches     int           `yaml:"max_batches"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	WebhookQuiet   time.Duration `yaml:"webhook_quiet"`
	HardCeiling    time.Duration `yaml:"hard_ceiling"`
	ReconcileLimit int           `yaml:"reconcile_limit"`
}

type TTLConfig struct {
	Session      time.Duration `yaml:"session"`
	Message      time.Duration `yaml:"message"`
	Task         time.Duration `yaml:"task"`
	WebhookEvent time.Duration `yaml:"webhook_event"`
	Attachment   time.Duration `yaml:"attachment"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Channel     ChannelConfig     `yaml:"channel"`
	Provider    ProviderConfig    `yaml:"provider"`
	LLM         LLMConfig         `yaml:"llm"`
	Router      RouterConfig      `yaml:"router"`
	Personality PersonalityConfig `yaml:"personality"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Memory      MemoryConfig      `yaml:"memory"`
	Connectors  ConnectorsConfig  `yaml:"connectors"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	TTL         TTLConfig         `yaml:"ttl"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, overlays environment variables
// (a .env file next to the process is loaded first if present), fills
// defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load() // optional

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) || !dev {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.Runtime.Dev = dev
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"BRIDGE_WEBHOOK_SECRET", &cfg.Server.WebhookSecret},
		{"BRIDGE_PROVIDER_API_KEY", &cfg.Provider.APIKey},
		{"BRIDGE_DATABASE_URL", &cfg.Database.URL},
		{"BRIDGE_REDIS_URL", &cfg.Redis.URL},
		{"BRIDGE_LLM_API_KEY", &cfg.LLM.APIKey},
		{"BRIDGE_CHANNEL_TOKEN", &cfg.Channel.Token},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhooks/provider"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
		if cfg.Runtime.Dev {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Limit <= 0 {
		cfg.RateLimit.Limit = 20
	}
	cfg.RateLimit.Window = normalizeTTL(cfg.RateLimit.Window, time.Minute)
	if cfg.Channel.Kind == "" {
		cfg.Channel.Kind = "noop"
	}
	if cfg.Channel.Workers <= 0 {
		cfg.Channel.Workers = 4
	}
	cfg.Channel.FlushInterval = normalizeTTL(cfg.Channel.FlushInterval, 5*time.Second)

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.manus.ai"
	}
	cfg.Provider.Timeout = normalizeTTL(cfg.Provider.Timeout, 30*time.Second)
	if cfg.Provider.MaxAttempts <= 0 {
		cfg.Provider.MaxAttempts = 3
	}
	cfg.Provider.BaseBackoff = normalizeTTL(cfg.Provider.BaseBackoff, 500*time.Millisecond)
	if cfg.Provider.RequestsPerSecond <= 0 {
		cfg.Provider.RequestsPerSecond = 5
	}
	if cfg.Provider.TaskMode == "" {
		cfg.Provider.TaskMode = "adaptive"
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "none"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Backend {
		case "gemini":
			cfg.LLM.Model = "gemini-2.0-flash"
		default:
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.ConcurrentLimit <= 0 {
		cfg.LLM.ConcurrentLimit = 4
	}
	cfg.LLM.Timeout = normalizeTTL(cfg.LLM.Timeout, 20*time.Second)

	if cfg.Router.Classifier == "" {
		cfg.Router.Classifier = "deterministic"
	}
	if cfg.Router.MaxActiveTasks <= 0 || cfg.Router.MaxActiveTasks > 20 {
		cfg.Router.MaxActiveTasks = 20
	}
	cfg.Router.Timeout = normalizeTTL(cfg.Router.Timeout, 15*time.Second)

	if cfg.Webhook.Workers <= 0 {
		cfg.Webhook.Workers = 4
	}
	if cfg.Webhook.QueueSize <= 0 {
		cfg.Webhook.QueueSize = 256
	}

	if cfg.Memory.WindowTokens <= 0 {
		cfg.Memory.WindowTokens = 1500
	}
	if cfg.Memory.RetrieveLimit <= 0 {
		cfg.Memory.RetrieveLimit = 10
	}
	if cfg.Memory.MinConfidence <= 0 {
		cfg.Memory.MinConfidence = 0.6
	}
	cfg.Memory.SupersededRetention = normalizeTTL(cfg.Memory.SupersededRetention, 30*24*time.Hour)

	cfg.Connectors.CacheTTL = normalizeTTL(cfg.Connectors.CacheTTL, 10*time.Minute)

	if cfg.Cleanup.Cron == "" {
		cfg.Cleanup.Cron = "*/10 * * * *"
	}
	if cfg.Cleanup.BatchSize <= 0 {
		cfg.Cleanup.BatchSize = 500
	}
	if cfg.Cleanup.MaxBatches <= 0 {
		cfg.Cleanup.MaxBatches = 20
	}
	cfg.Cleanup.StaleAfter = normalizeTTL(cfg.Cleanup.StaleAfter, 30*time.Minute)
	cfg.Cleanup.WebhookQuiet = normalizeTTL(cfg.Cleanup.WebhookQuiet, 15*time.Minute)
	cfg.Cleanup.HardCeiling = normalizeTTL(cfg.Cleanup.HardCeiling, 24*time.Hour)
	if cfg.Cleanup.ReconcileLimit <= 0 {
		cfg.Cleanup.ReconcileLimit = 50
	}

	cfg.TTL.Session = normalizeTTL(cfg.TTL.Session, 7*24*time.Hour)
	cfg.TTL.Message = normalizeTTL(cfg.TTL.Message, 30*24*time.Hour)
	cfg.TTL.Task = normalizeTTL(cfg.TTL.Task, 30*24*time.Hour)
	cfg.TTL.WebhookEvent = normalizeTTL(cfg.TTL.WebhookEvent, 14*24*time.Hour)
	cfg.TTL.Attachment = normalizeTTL(cfg.TTL.Attachment, 30*24*time.Hour)
}

// Validate fails fast on settings the process cannot run without.
func (c *Config) Validate() error {
	if c.Server.WebhookSecret == "" {
		return errors.New("server.webhook_secret is required")
	}
	if c.Database.URL == "" && !c.Runtime.Dev {
		return errors.New("database.url is required")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("ratelimit.backend=redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown ratelimit.backend %q", c.RateLimit.Backend)
	}
	switch c.Channel.Kind {
	case "telegram":
		if c.Channel.Token == "" {
			return errors.New("channel.token is required for telegram")
		}
	case "whatsapp":
		if c.Channel.BridgeURL == "" {
			return errors.New("channel.bridge_url is required for whatsapp")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown channel.kind %q", c.Channel.Kind)
	}
	switch c.LLM.Backend {
	case "none":
	case "openai", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for backend %s", c.LLM.Backend)
		}
	default:
		return fmt.Errorf("unknown llm.backend %q", c.LLM.Backend)
	}
	switch c.Router.Classifier {
	case "deterministic", "llm":
	default:
		return fmt.Errorf("unknown router.classifier %q", c.Router.Classifier)
	}
	if c.Memory.MinConfidence > 1 {
		return errors.New("memory.min_confidence must be within [0,1]")
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
