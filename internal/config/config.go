package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidInput wraps every validation failure; startup treats it as fatal.
var ErrInvalidInput = errors.New("invalid input")

const (
	ModeLive  = "live"
	ModePaper = "paper"

	AuthPrivateKey = "private_key"
	AuthAPIToken   = "api_token"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Venue     VenueConfig     `yaml:"venue"`
	Auth      AuthConfig      `yaml:"auth"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type VenueConfig struct {
	Mode        string        `yaml:"mode"`
	BaseURL     string        `yaml:"base_url"`
	GeoURL      string        `yaml:"geo_url"`
	WSURL       string        `yaml:"ws_url"`
	Chain       string        `yaml:"chain"`
	Timeout     time.Duration `yaml:"timeout"`
	PriceMaxAge time.Duration `yaml:"price_max_age"`
	// PriceStream enables the websocket mark price feed; REST is the fallback.
	PriceStream    *bool         `yaml:"price_stream"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
}

func (v VenueConfig) PriceStreamEnabled() bool {
	return v.PriceStream != nil && *v.PriceStream
}

type AuthConfig struct {
	Mode string `yaml:"mode"`

	PrivateKey string `yaml:"-"`
	APIToken   string `yaml:"-"`
	APIKey     string `yaml:"-"`
}

type StrategyConfig struct {
	Symbol          string        `yaml:"symbol"`
	SpreadBps       float64       `yaml:"spread_bps"`
	OrderSize       float64       `yaml:"order_size"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	TickSize        float64       `yaml:"tick_size"`
	LotSize         float64       `yaml:"lot_size"`
	// MaxStaleTicks is the count of consecutive failed price fetches after
	// which every further failure is escalated; zero never escalates.
	MaxStaleTicks int `yaml:"max_stale_ticks"`
}

type RiskConfig struct {
	MaxPosition   float64       `yaml:"max_position"`
	MaxOpenOrders int           `yaml:"max_open_orders"`
	MaxMarkAge    time.Duration `yaml:"max_mark_age"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type EventsConfig struct {
	JSONLPath string `yaml:"jsonl_path"`
	Buffer    int    `yaml:"buffer"`
}

type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChatID    string `yaml:"chat_id"`
	QueueSize int    `yaml:"queue_size"`
	// Prefix tags every message, e.g. "[standx-mm] ...".
	Prefix string `yaml:"prefix"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse returns the config alongside a validation error so callers can apply
// overrides and call Validate again.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

// NormalizeSymbol upper-cases a symbol and appends the -USD quote when missing.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ""
	}
	if !strings.HasSuffix(symbol, "-USD") {
		symbol += "-USD"
	}
	return symbol
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 10
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
	if cfg.Venue.Mode == "" {
		cfg.Venue.Mode = ModeLive
	}
	if cfg.Venue.BaseURL == "" {
		cfg.Venue.BaseURL = "https://perps.standx.com"
	}
	if cfg.Venue.GeoURL == "" {
		cfg.Venue.GeoURL = "https://api.standx.com"
	}
	if cfg.Venue.WSURL == "" {
		cfg.Venue.WSURL = deriveWSURL(cfg.Venue.BaseURL)
	}
	if cfg.Venue.Chain == "" {
		cfg.Venue.Chain = "bsc"
	}
	if cfg.Venue.Timeout == 0 {
		cfg.Venue.Timeout = 10 * time.Second
	}
	if cfg.Venue.PriceMaxAge == 0 {
		cfg.Venue.PriceMaxAge = 5 * time.Second
	}
	if cfg.Venue.PriceStream == nil {
		enabled := true
		cfg.Venue.PriceStream = &enabled
	}
	if cfg.Venue.ReconnectDelay == 0 {
		cfg.Venue.ReconnectDelay = 3 * time.Second
	}
	if cfg.Venue.PingInterval == 0 {
		cfg.Venue.PingInterval = 20 * time.Second
	}
	if cfg.Venue.TokenTTL == 0 {
		cfg.Venue.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthPrivateKey
	}
	if cfg.Strategy.Symbol == "" {
		cfg.Strategy.Symbol = "BTC"
	}
	cfg.Strategy.Symbol = NormalizeSymbol(cfg.Strategy.Symbol)
	if cfg.Strategy.SpreadBps == 0 {
		cfg.Strategy.SpreadBps = 8
	}
	if cfg.Strategy.OrderSize == 0 {
		cfg.Strategy.OrderSize = 0.0015
	}
	if cfg.Strategy.RefreshInterval == 0 {
		cfg.Strategy.RefreshInterval = 30 * time.Second
	}
	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = 15 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/standx-mm-bot.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = 256
	}
	if cfg.Telegram.QueueSize == 0 {
		cfg.Telegram.QueueSize = 32
	}
	if cfg.Telegram.Prefix == "" {
		cfg.Telegram.Prefix = "standx-mm"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := envValue("STANDX_API_URL"); v != "" {
		cfg.Venue.BaseURL = v
	}
	if v := envValue("STANDX_GEO_URL"); v != "" {
		cfg.Venue.GeoURL = v
	}
	if v := envValue("STANDX_WS_URL"); v != "" {
		cfg.Venue.WSURL = v
	}
	if v := envValue("STANDX_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := envValue("SYMBOL"); v != "" {
		cfg.Strategy.Symbol = v
	}
	if v := envValue("ORDER_SIZE"); v != "" {
		if size, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategy.OrderSize = size
		}
	}
	if v := envValue("STANDX_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := envValue("STANDX_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := envValue("STANDX_TIMESCALE_DSN"); v != "" {
		cfg.Timescale.DSN = v
	}
	cfg.Auth.PrivateKey = envValue("WALLET_PRIVATE_KEY")
	cfg.Auth.APIToken = envValue("STANDX_API_TOKEN")
	cfg.Auth.APIKey = envValue("STANDX_API_KEY")
}

// Validate re-checks a config after callers changed it in place.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	if cfg.Strategy.Symbol == "" {
		return invalid("strategy.symbol is required")
	}
	if cfg.Strategy.SpreadBps <= 0 {
		return invalid("strategy.spread_bps must be > 0")
	}
	if cfg.Strategy.OrderSize <= 0 {
		return invalid("strategy.order_size must be > 0")
	}
	if cfg.Strategy.RefreshInterval <= 0 {
		return invalid("strategy.refresh_interval must be > 0")
	}
	if cfg.Strategy.TickSize < 0 || cfg.Strategy.LotSize < 0 {
		return invalid("strategy.tick_size and strategy.lot_size must be >= 0")
	}
	if cfg.Strategy.MaxStaleTicks < 0 {
		return invalid("strategy.max_stale_ticks must be >= 0")
	}
	if cfg.Risk.MaxPosition < 0 || cfg.Risk.MaxOpenOrders < 0 || cfg.Risk.MaxMarkAge < 0 {
		return invalid("risk limits must be >= 0")
	}
	if cfg.Shutdown.Timeout < 0 {
		return invalid("shutdown.timeout must be >= 0")
	}
	switch cfg.Venue.Mode {
	case ModeLive:
		if err := validateAuth(cfg.Auth); err != nil {
			return err
		}
	case ModePaper:
	default:
		return invalid(fmt.Sprintf("venue.mode %q must be %s or %s", cfg.Venue.Mode, ModeLive, ModePaper))
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return invalid("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return invalid("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

func validateAuth(auth AuthConfig) error {
	switch auth.Mode {
	case AuthPrivateKey:
		if auth.PrivateKey == "" {
			return invalid("WALLET_PRIVATE_KEY is required for auth mode private_key")
		}
	case AuthAPIToken:
		if auth.APIToken == "" || auth.APIKey == "" {
			return invalid("STANDX_API_TOKEN and STANDX_API_KEY are required for auth mode api_token")
		}
	default:
		return invalid(fmt.Sprintf("auth.mode %q must be %s or %s", auth.Mode, AuthPrivateKey, AuthAPIToken))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}

func deriveWSURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws-stream/v1"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws-stream/v1"
	}
	return "wss://perps.standx.com/ws-stream/v1"
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
