package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"tradebridge/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Terminal   TerminalConfig
	Server     ServerConfig
	Dispatcher DispatcherConfig
	Registry   RegistryConfig
	Monitor    MonitorConfig
	Safety     SafetyConfig
	Relay      RelayConfig
	Platform   PlatformConfig
	Journal    JournalConfig
	Runtime    RuntimeConfig
	Strategies []models.Strategy `validate:"dive"`
}

type TerminalConfig struct {
	CommandURL      string `validate:"required,url"`
	TelemetryURL    string `validate:"required,url"`
	AuthToken       string
	ProtocolVersion string
	ReconnectMin    time.Duration
	ReconnectMax    time.Duration
	PriceMaxAge     time.Duration
}

type ServerConfig struct {
	Listen            string
	AuthToken         string
	LockoutThreshold  int `validate:"gte=1"`
	LockoutWindow     time.Duration
	TelemetryInterval time.Duration
	Catalog           string
	Balance           float64
	Currency          string
}

type DispatcherConfig struct {
	QueueSize       int `validate:"gte=1"`
	Timeout         time.Duration
	MaxRetries      int `validate:"gte=0"`
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	DedupeRetention time.Duration
}

type RegistryConfig struct {
	Interval         time.Duration
	FailureThreshold int `validate:"gte=1"`
}

type MonitorConfig struct {
	TickInterval time.Duration
	BarCount     int `validate:"gte=1"`
}

type SafetyConfig struct {
	MaxPositions         int
	MaxVolume            float64
	MaxDrawdownPct       float64
	DailyLossLimit       float64
	CorrelationThreshold float64
	Correlations         []CorrelationPair `mapstructure:"correlations"`
	MarginBuffer         float64
	MaxSpreadPoints      float64
	Sessions             []string
	News                 NewsConfig
}

type CorrelationPair struct {
	A     string  `mapstructure:"a"`
	B     string  `mapstructure:"b"`
	Value float64 `mapstructure:"value"`
}

type NewsConfig struct {
	Enabled     bool
	PauseBefore time.Duration
	PauseAfter  time.Duration
	Events      []NewsEvent
}

type NewsEvent struct {
	Currency string    `mapstructure:"currency"`
	Title    string    `mapstructure:"title"`
	Impact   string    `mapstructure:"impact"`
	At       string    `mapstructure:"at"`
	Time     time.Time `mapstructure:"-"`
}

type RelayConfig struct {
	NATSURL string
	Subject string
}

type PlatformConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	ExecutorID string
	Timeout    time.Duration
}

type JournalConfig struct {
	DSN    string
	Buffer int
}

type RuntimeConfig struct {
	Log       LogConfig
	Profiling ProfilingConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type ProfilingConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load reads configs/config.yaml (or path when set), applies TRADEBRIDGE_*
// environment overrides and expands ${VAR} references in secrets.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("TRADEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Terminal = TerminalConfig{
		CommandURL:      v.GetString("terminal.command_url"),
		TelemetryURL:    v.GetString("terminal.telemetry_url"),
		AuthToken:       envSub(v, "terminal.auth_token"),
		ProtocolVersion: v.GetString("terminal.protocol_version"),
		ReconnectMin:    v.GetDuration("terminal.reconnect_min"),
		ReconnectMax:    v.GetDuration("terminal.reconnect_max"),
		PriceMaxAge:     v.GetDuration("terminal.price_max_age"),
	}

	cfg.Server = ServerConfig{
		Listen:            v.GetString("server.listen"),
		AuthToken:         envSub(v, "server.auth_token"),
		LockoutThreshold:  v.GetInt("server.lockout_threshold"),
		LockoutWindow:     v.GetDuration("server.lockout_window"),
		TelemetryInterval: v.GetDuration("server.telemetry_interval"),
		Catalog:           v.GetString("server.catalog"),
		Balance:           v.GetFloat64("server.balance"),
		Currency:          v.GetString("server.currency"),
	}

	cfg.Dispatcher = DispatcherConfig{
		QueueSize:       v.GetInt("dispatcher.queue_size"),
		Timeout:         v.GetDuration("dispatcher.timeout"),
		MaxRetries:      v.GetInt("dispatcher.max_retries"),
		BackoffInitial:  v.GetDuration("dispatcher.backoff_initial"),
		BackoffMax:      v.GetDuration("dispatcher.backoff_max"),
		DedupeRetention: v.GetDuration("dispatcher.dedupe_retention"),
	}

	cfg.Registry = RegistryConfig{
		Interval:         v.GetDuration("registry.interval"),
		FailureThreshold: v.GetInt("registry.failure_threshold"),
	}

	cfg.Monitor = MonitorConfig{
		TickInterval: v.GetDuration("monitor.tick_interval"),
		BarCount:     v.GetInt("monitor.bar_count"),
	}

	cfg.Safety = SafetyConfig{
		MaxPositions:         v.GetInt("safety.max_positions"),
		MaxVolume:            v.GetFloat64("safety.max_volume"),
		MaxDrawdownPct:       v.GetFloat64("safety.max_drawdown_pct"),
		DailyLossLimit:       v.GetFloat64("safety.daily_loss_limit"),
		CorrelationThreshold: v.GetFloat64("safety.correlation_threshold"),
		MarginBuffer:         v.GetFloat64("safety.margin_buffer"),
		MaxSpreadPoints:      v.GetFloat64("safety.max_spread_points"),
		Sessions:             v.GetStringSlice("safety.sessions"),
		News: NewsConfig{
			Enabled:     v.GetBool("safety.news.enabled"),
			PauseBefore: v.GetDuration("safety.news.pause_before"),
			PauseAfter:  v.GetDuration("safety.news.pause_after"),
		},
	}
	if err := v.UnmarshalKey("safety.correlations", &cfg.Safety.Correlations); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать матрицу корреляций: %w", err)
	}
	if err := v.UnmarshalKey("safety.news.events", &cfg.Safety.News.Events); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать календарь новостей: %w", err)
	}
	for i, ev := range cfg.Safety.News.Events {
		at, err := time.Parse(time.RFC3339, ev.At)
		if err != nil {
			return nil, fmt.Errorf("Некорректное время новости %q: %w", ev.Title, err)
		}
		cfg.Safety.News.Events[i].Time = at.UTC()
	}

	cfg.Relay = RelayConfig{
		NATSURL: envSub(v, "relay.nats_url"),
		Subject: v.GetString("relay.subject"),
	}

	cfg.Platform = PlatformConfig{
		BaseURL:    v.GetString("platform.base_url"),
		APIKey:     envSub(v, "platform.api_key"),
		APISecret:  envSub(v, "platform.api_secret"),
		ExecutorID: v.GetString("platform.executor_id"),
		Timeout:    v.GetDuration("platform.timeout"),
	}

	cfg.Journal = JournalConfig{
		DSN:    envSub(v, "journal.dsn"),
		Buffer: v.GetInt("journal.buffer"),
	}

	cfg.Runtime = RuntimeConfig{
		Log: LogConfig{
			Level:      v.GetString("runtime.log.level"),
			Format:     v.GetString("runtime.log.format"),
			File:       v.GetString("runtime.log.file"),
			MaxSize:    v.GetInt("runtime.log.max_size"),
			MaxBackups: v.GetInt("runtime.log.max_backups"),
			MaxAge:     v.GetInt("runtime.log.max_age"),
			Compress:   v.GetBool("runtime.log.compress"),
		},
		Profiling: ProfilingConfig{
			Enabled:         v.GetBool("runtime.profiling.enabled"),
			ServerAddress:   v.GetString("runtime.profiling.server_address"),
			ApplicationName: v.GetString("runtime.profiling.application_name"),
		},
	}

	if err := v.UnmarshalKey("strategies", &cfg.Strategies); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать стратегии: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("terminal.command_url", "ws://127.0.0.1:8765/command")
	v.SetDefault("terminal.telemetry_url", "ws://127.0.0.1:8765/telemetry")
	v.SetDefault("terminal.protocol_version", "1.0.0")
	v.SetDefault("terminal.reconnect_min", time.Second)
	v.SetDefault("terminal.reconnect_max", 30*time.Second)
	v.SetDefault("terminal.price_max_age", 3*time.Second)

	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.lockout_threshold", 5)
	v.SetDefault("server.lockout_window", 5*time.Minute)
	v.SetDefault("server.telemetry_interval", time.Second)
	v.SetDefault("server.balance", 10000.0)
	v.SetDefault("server.currency", "USD")

	v.SetDefault("dispatcher.queue_size", 64)
	v.SetDefault("dispatcher.timeout", 5*time.Second)
	v.SetDefault("dispatcher.max_retries", 3)
	v.SetDefault("dispatcher.backoff_initial", 500*time.Millisecond)
	v.SetDefault("dispatcher.backoff_max", 5*time.Second)
	v.SetDefault("dispatcher.dedupe_retention", 10*time.Minute)

	v.SetDefault("registry.interval", 5*time.Second)
	v.SetDefault("registry.failure_threshold", 3)

	v.SetDefault("monitor.tick_interval", 15*time.Second)
	v.SetDefault("monitor.bar_count", 200)

	v.SetDefault("safety.margin_buffer", 1.0)

	v.SetDefault("relay.subject", "executor.commands")
	v.SetDefault("platform.timeout", 15*time.Second)
	v.SetDefault("journal.buffer", 256)

	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.max_size", 50)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age", 14)
	v.SetDefault("runtime.profiling.application_name", "tradebridge")
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("Некорректная конфигурация: %w", err)
	}

	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if seen[s.ID] {
			return fmt.Errorf("Повторяющийся id стратегии: %s", s.ID)
		}
		seen[s.ID] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("Стратегия %s: %w", s.ID, err)
		}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func envSub(v *viper.Viper, key string) string {
	val := v.GetString(key)
	if val == "" {
		return ""
	}

	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
