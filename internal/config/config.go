package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"GPTQ_LOG_LEVEL, overwrite" validate:"omitempty,oneof=trace debug info warn error"`
	Format   string `yaml:"format" env:"GPTQ_LOG_FORMAT, overwrite" validate:"omitempty,oneof=json console"`
	Sampling bool   `yaml:"sampling" env:"GPTQ_LOG_SAMPLING, overwrite"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"GPTQ_HTTP_PORT, overwrite" validate:"gte=0,lte=65535"`
	AdminPort      int           `yaml:"admin_port" env:"GPTQ_ADMIN_PORT, overwrite" validate:"gte=0,lte=65535"` // worker /metrics
	RequestTimeout time.Duration `yaml:"request_timeout" env:"GPTQ_HTTP_REQUEST_TIMEOUT, overwrite"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"GPTQ_DATABASE_DRIVER, overwrite" validate:"oneof=postgres sqlite"`
	URL      string `yaml:"url" env:"GPTQ_DATABASE_URL, overwrite" validate:"required"`
	MaxConns int32  `yaml:"max_conns" env:"GPTQ_DATABASE_MAX_CONNS, overwrite"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"GPTQ_REDIS_URL, overwrite" validate:"required"`
	Password string        `yaml:"password" env:"GPTQ_REDIS_PASSWORD, overwrite"`
	DB       int           `yaml:"db" env:"GPTQ_REDIS_DB, overwrite"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"GPTQ_REDIS_CACHE_TTL, overwrite"` // terminal job lookups
}

type AIConfig struct {
	Provider      string        `yaml:"provider" env:"GPTQ_AI_PROVIDER, overwrite" validate:"oneof=openai gemini echo"`
	APIKey        string        `yaml:"api_key" env:"GPTQ_AI_API_KEY, overwrite"`
	BaseURL       string        `yaml:"base_url" env:"GPTQ_AI_BASE_URL, overwrite"` // OpenAI-compatible gateways
	Model         string        `yaml:"model" env:"GPTQ_AI_MODEL, overwrite"`
	Temperature   *float64      `yaml:"temperature" env:"GPTQ_AI_TEMPERATURE, overwrite, noinit" validate:"omitempty,gte=0,lte=2"` // nil = default
	ContextWindow int           `yaml:"context_window" env:"GPTQ_AI_CONTEXT_WINDOW, overwrite"`
	ReplyMargin   int           `yaml:"reply_margin" env:"GPTQ_AI_REPLY_MARGIN, overwrite"`
	Timeout       time.Duration `yaml:"timeout" env:"GPTQ_AI_TIMEOUT, overwrite"`
}

const DefaultTemperature = 0.4

// Temp returns the configured sampling temperature; an explicit 0 is kept.
func (c AIConfig) Temp() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

type BotConfig struct {
	Token   string `yaml:"token" env:"GPTQ_BOT_TOKEN, overwrite"`
	Command string `yaml:"command" env:"GPTQ_BOT_COMMAND, overwrite"` // e.g. /gpt
	Workers int    `yaml:"workers" env:"GPTQ_BOT_WORKERS, overwrite"`
}

type QueueConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval" env:"GPTQ_QUEUE_POLL_INTERVAL, overwrite"`
	DefaultWebhookURL string        `yaml:"default_webhook_url" env:"GPTQ_QUEUE_DEFAULT_WEBHOOK_URL, overwrite" validate:"omitempty,url"`
	DebugRequesterIDs []string      `yaml:"debug_requester_ids" env:"GPTQ_QUEUE_DEBUG_REQUESTER_IDS, overwrite"`
	RecentLimit       int           `yaml:"recent_limit" env:"GPTQ_QUEUE_RECENT_LIMIT, overwrite"`
	LeaseTTL          time.Duration `yaml:"lease_ttl" env:"GPTQ_QUEUE_LEASE_TTL, overwrite"`
	RateLimit         int           `yaml:"rate_limit" env:"GPTQ_QUEUE_RATE_LIMIT, overwrite" validate:"gte=0"` // commands per requester per window, 0 = off
	RateWindow        time.Duration `yaml:"rate_window" env:"GPTQ_QUEUE_RATE_WINDOW, overwrite"`
}

type DeliveryConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"GPTQ_DELIVERY_TIMEOUT, overwrite"`
}

type EventsConfig struct {
	AMQPURL string `yaml:"amqp_url" env:"GPTQ_EVENTS_AMQP_URL, overwrite"`
	Queue   string `yaml:"queue" env:"GPTQ_EVENTS_QUEUE, overwrite"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Bot      BotConfig      `yaml:"bot"`
	Queue    QueueConfig    `yaml:"queue"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Events   EventsConfig   `yaml:"events"`

	Runtime RuntimeConfig `yaml:"-"`
}

// to help with testing
var envProcess = envconfig.Process

// LoadConfig reads the YAML file at path (optional when it does not exist),
// overlays GPTQ_* environment variables, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// environment-only deployments
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envProcess(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.AdminPort == 0 {
		cfg.HTTP.AdminPort = 9090
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = time.Hour
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
		if cfg.Runtime.Dev && cfg.AI.APIKey == "" {
			cfg.AI.Provider = "echo"
		}
	}
	if cfg.AI.Model == "" {
		switch cfg.AI.Provider {
		case "gemini":
			cfg.AI.Model = "gemini-2.0-flash"
		default:
			cfg.AI.Model = "gpt-4o-mini"
		}
	}
	if cfg.AI.Temperature == nil {
		t := DefaultTemperature
		cfg.AI.Temperature = &t
	}
	if cfg.AI.ContextWindow <= 0 {
		cfg.AI.ContextWindow = 4097
	}
	if cfg.AI.ReplyMargin <= 0 {
		cfg.AI.ReplyMargin = 150
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Bot.Command == "" {
		cfg.Bot.Command = "/gpt"
	}
	if !strings.HasPrefix(cfg.Bot.Command, "/") {
		cfg.Bot.Command = "/" + cfg.Bot.Command
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = time.Second
	}
	if cfg.Queue.RecentLimit <= 0 {
		cfg.Queue.RecentLimit = 5
	}
	if cfg.Queue.LeaseTTL <= 0 {
		cfg.Queue.LeaseTTL = 30 * time.Second
	}
	if cfg.Queue.RateWindow <= 0 {
		cfg.Queue.RateWindow = time.Minute
	}
	if cfg.Delivery.Timeout <= 0 {
		cfg.Delivery.Timeout = 15 * time.Second
	}
	if cfg.Events.Queue == "" {
		cfg.Events.Queue = "gpt-queue.jobs"
	}
}

var validate = validator.New()

// Validate checks struct constraints plus the cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.AI.Provider != "echo" && cfg.AI.APIKey == "" {
		return errors.New("invalid config: ai.api_key is required unless ai.provider is echo")
	}
	return nil
}
