package config

import (
	"strings"
	"time"
	_ "time/tzdata" // archive timestamps are local to the dispatch center

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Poller   PollerConfig   `yaml:"poller" mapstructure:"poller"`
	ErrorLog ErrorLogConfig `yaml:"errorlog" mapstructure:"errorlog"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend holding the archive,
// staging and evaluation tables.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// PollerConfig configures the collect/merge/purge cycle.
type PollerConfig struct {
	CallWindowMins    int    `yaml:"call_window_mins" mapstructure:"call_window_mins"`
	CommentWindowMins int    `yaml:"comment_window_mins" mapstructure:"comment_window_mins"`
	UnitWindowMins    int    `yaml:"unit_window_mins" mapstructure:"unit_window_mins"`
	MaxAgeMins        int    `yaml:"max_age_mins" mapstructure:"max_age_mins"`
	CommentMaxChars   int    `yaml:"comment_max_chars" mapstructure:"comment_max_chars"`
	CommentSeparator  string `yaml:"comment_separator" mapstructure:"comment_separator"`
	StageTimeoutSecs  int    `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	Timezone          string `yaml:"timezone" mapstructure:"timezone"`
	ArrivedStatus     string `yaml:"arrived_status" mapstructure:"arrived_status"`
}

// ErrorLogConfig configures the append-only failure log.
type ErrorLogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotifyConfig configures operator alerts raised on stage failures.
type NotifyConfig struct {
	SubjectPrefix string     `yaml:"subject_prefix" mapstructure:"subject_prefix"`
	TimeoutSecs   int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	URLs          []string   `yaml:"urls" mapstructure:"urls"`
	WebhookURL    string     `yaml:"webhook_url" mapstructure:"webhook_url"`
	SMTP          SMTPConfig `yaml:"smtp" mapstructure:"smtp"`
}

// SMTPConfig describes the operator distribution list mail relay.
type SMTPConfig struct {
	Host        string   `yaml:"host" mapstructure:"host"`
	Port        int      `yaml:"port" mapstructure:"port"`
	Username    string   `yaml:"username" mapstructure:"username"`
	Password    string   `yaml:"password" mapstructure:"password"`
	FromAddress string   `yaml:"from_address" mapstructure:"from_address"`
	FromName    string   `yaml:"from_name" mapstructure:"from_name"`
	To          []string `yaml:"to" mapstructure:"to"`
	Encryption  string   `yaml:"encryption" mapstructure:"encryption"`
}

// RetryConfig configures retries around opening the store. Cycle stages
// are never retried.
type RetryConfig struct {
	ConnectAttempts  int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CallWindow is the trailing window for call attribute extraction.
func (p PollerConfig) CallWindow() time.Duration {
	return time.Duration(p.CallWindowMins) * time.Minute
}

// CommentWindow is the trailing window for comment extraction.
func (p PollerConfig) CommentWindow() time.Duration {
	return time.Duration(p.CommentWindowMins) * time.Minute
}

// UnitWindow is the trailing window for unit arrival counts.
func (p PollerConfig) UnitWindow() time.Duration {
	return time.Duration(p.UnitWindowMins) * time.Minute
}

// MaxAge is the age after which evaluation rows are swept.
func (p PollerConfig) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeMins) * time.Minute
}

// StageTimeout bounds each stage's transaction.
func (p PollerConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSecs) * time.Second
}

// Location resolves the archive time zone.
func (p PollerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", p.Timezone)
	}
	return loc, nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HOTCALLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 2)
	v.SetDefault("poller.call_window_mins", 8)
	v.SetDefault("poller.comment_window_mins", 8)
	v.SetDefault("poller.unit_window_mins", 25)
	v.SetDefault("poller.max_age_mins", 120)
	v.SetDefault("poller.comment_max_chars", 4000)
	v.SetDefault("poller.comment_separator", "")
	v.SetDefault("poller.stage_timeout_secs", 60)
	v.SetDefault("poller.timezone", "America/Chicago")
	v.SetDefault("poller.arrived_status", "AR")
	v.SetDefault("errorlog.path", "hotcalls-poller-errors.log")
	v.SetDefault("notify.subject_prefix", "Hot Calls Poller")
	v.SetDefault("notify.timeout_secs", 10)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", 25)
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.to", []string{})
	v.SetDefault("notify.smtp.from_address", "")
	v.SetDefault("notify.smtp.from_name", "Hot Calls Poller")
	v.SetDefault("notify.smtp.encryption", "auto")
	v.SetDefault("retry.connect_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects configurations the poller cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required (HOTCALLS_STORE_DATABASE_URL)")
	}

	p := c.Poller
	windows := map[string]int{
		"poller.call_window_mins":    p.CallWindowMins,
		"poller.comment_window_mins": p.CommentWindowMins,
		"poller.unit_window_mins":    p.UnitWindowMins,
		"poller.max_age_mins":        p.MaxAgeMins,
		"poller.comment_max_chars":   p.CommentMaxChars,
		"poller.stage_timeout_secs":  p.StageTimeoutSecs,
	}
	for key, val := range windows {
		if val <= 0 {
			return eris.Errorf("config: %s must be positive, got %d", key, val)
		}
	}
	if p.ArrivedStatus == "" {
		return eris.New("config: poller.arrived_status is required")
	}
	if _, err := p.Location(); err != nil {
		return err
	}

	if smtp := c.Notify.SMTP; smtp.Host != "" {
		if len(smtp.To) == 0 {
			return eris.New("config: notify.smtp.to needs at least one operator address")
		}
		if smtp.FromAddress == "" {
			return eris.New("config: notify.smtp.from_address is required when notify.smtp.host is set")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
