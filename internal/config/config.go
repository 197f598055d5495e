// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration for one activation run.
// It is constructed once at startup and shared read-only by all workers.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Airtable   AirtableConfig   `mapstructure:"airtable" yaml:"airtable"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Activation ActivationConfig `mapstructure:"activation" yaml:"activation"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// AirtableConfig identifies the record store holding pending accounts.
// The API key is sensitive and is bound to the IMAPAGENT_AIRTABLE_API_KEY
// environment variable rather than read from the config file.
type AirtableConfig struct {
	APIKey      string  `mapstructure:"api_key" yaml:"-"`
	BaseID      string  `mapstructure:"base_id" yaml:"base_id"`
	TableID     string  `mapstructure:"table_id" yaml:"table_id"`
	View        string  `mapstructure:"view" yaml:"view"`
	StatusField string  `mapstructure:"status_field" yaml:"status_field"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second

	// ReportTimeout bounds a single outcome write back to the record store.
	ReportTimeout time.Duration `mapstructure:"report_timeout" yaml:"report_timeout"`
}

// BrowserConfig controls the Chrome process and the per-session persona.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	Args           []string `mapstructure:"args" yaml:"args"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Locale         string   `mapstructure:"locale" yaml:"locale"`
	Timezone       string   `mapstructure:"timezone" yaml:"timezone"`
}

// ActivationConfig holds the run parameters and per-step timeout budgets for
// the account activation workflow.
type ActivationConfig struct {
	LoginURL           string `mapstructure:"login_url" yaml:"login_url"`
	SettingsURLPattern string `mapstructure:"settings_url_pattern" yaml:"settings_url_pattern"`
	MaxAccounts        int    `mapstructure:"max_accounts" yaml:"max_accounts"`
	MaxWorkers         int    `mapstructure:"max_workers" yaml:"max_workers"`

	// Per-step wait budgets. Optional-screen budgets bound how long the
	// detector polls before concluding the screen is absent; mandatory
	// budgets are fatal for the account when exceeded.
	CookieBannerWait   time.Duration `mapstructure:"cookie_banner_wait" yaml:"cookie_banner_wait"`
	MandatoryFieldWait time.Duration `mapstructure:"mandatory_field_wait" yaml:"mandatory_field_wait"`
	MFADismissWait     time.Duration `mapstructure:"mfa_dismiss_wait" yaml:"mfa_dismiss_wait"`
	SkipScreenWait     time.Duration `mapstructure:"skip_screen_wait" yaml:"skip_screen_wait"`
	NextScreenWait     time.Duration `mapstructure:"next_screen_wait" yaml:"next_screen_wait"`
	InboxWait          time.Duration `mapstructure:"inbox_wait" yaml:"inbox_wait"`
	MenuWait           time.Duration `mapstructure:"menu_wait" yaml:"menu_wait"`
	SettingsURLWait    time.Duration `mapstructure:"settings_url_wait" yaml:"settings_url_wait"`
	ToggleProbeWait    time.Duration `mapstructure:"toggle_probe_wait" yaml:"toggle_probe_wait"`
	ToggleVisibleWait  time.Duration `mapstructure:"toggle_visible_wait" yaml:"toggle_visible_wait"`
	ToggleConfirmWait  time.Duration `mapstructure:"toggle_confirm_wait" yaml:"toggle_confirm_wait"`
	ToggleSettleWait   time.Duration `mapstructure:"toggle_settle_wait" yaml:"toggle_settle_wait"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	AccountTimeout     time.Duration `mapstructure:"account_timeout" yaml:"account_timeout"`
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly rather than run misconfigured.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "imap-activator")
	v.SetDefault("logger.log_file", "imap-activator.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Airtable --
	v.SetDefault("airtable.view", "IMAP")
	v.SetDefault("airtable.status_field", "IMAP Status")
	v.SetDefault("airtable.rate_limit", 5.0)
	v.SetDefault("airtable.report_timeout", 30*time.Second)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "Europe/Warsaw")

	// -- Activation --
	v.SetDefault("activation.login_url",
		"https://konto.onet.pl/en/signin?state=https%3A%2F%2Fpoczta.onet.pl%2F&client_id=poczta.onet.pl.front.onetapi.pl")
	v.SetDefault("activation.settings_url_pattern", `ustawienia\.poczta\.onet\.pl`)
	v.SetDefault("activation.max_accounts", 2)
	v.SetDefault("activation.max_workers", 2)
	v.SetDefault("activation.cookie_banner_wait", "10s")
	v.SetDefault("activation.mandatory_field_wait", "15s")
	v.SetDefault("activation.mfa_dismiss_wait", "5s")
	v.SetDefault("activation.skip_screen_wait", "10s")
	v.SetDefault("activation.next_screen_wait", "5s")
	v.SetDefault("activation.inbox_wait", "30s")
	v.SetDefault("activation.menu_wait", "10s")
	v.SetDefault("activation.settings_url_wait", "20s")
	v.SetDefault("activation.toggle_probe_wait", "5s")
	v.SetDefault("activation.toggle_visible_wait", "10s")
	v.SetDefault("activation.toggle_confirm_wait", "10s")
	v.SetDefault("activation.toggle_settle_wait", "2s")
	v.SetDefault("activation.navigation_timeout", "90s")
	v.SetDefault("activation.account_timeout", "5m")
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("airtable.api_key", "IMAPAGENT_AIRTABLE_API_KEY")
	v.BindEnv("airtable.base_id", "IMAPAGENT_AIRTABLE_BASE_ID")
	v.BindEnv("airtable.table_id", "IMAPAGENT_AIRTABLE_TABLE_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal can miss env-only keys when no config file was present.
	if cfg.Airtable.APIKey == "" {
		cfg.Airtable.APIKey = os.Getenv("IMAPAGENT_AIRTABLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Activation.MaxWorkers <= 0 {
		return fmt.Errorf("activation.max_workers must be a positive integer")
	}
	if c.Activation.MaxAccounts <= 0 {
		return fmt.Errorf("activation.max_accounts must be a positive integer")
	}
	if c.Activation.LoginURL == "" {
		return fmt.Errorf("activation.login_url is required")
	}
	if _, err := regexp.Compile(c.Activation.SettingsURLPattern); err != nil {
		return fmt.Errorf("activation.settings_url_pattern is not a valid regexp: %w", err)
	}
	if c.Airtable.RateLimit <= 0 {
		return fmt.Errorf("airtable.rate_limit must be positive")
	}
	return nil
}
