// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the application reads.
const EnvPrefix = "CHARTWISE"

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Settings  SettingsConfig  `mapstructure:"settings" yaml:"settings"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider          LLMProvider          `mapstructure:"provider" yaml:"provider"`
	Model             string               `mapstructure:"model" yaml:"model"`
	APIKey            string               `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string               `mapstructure:"endpoint" yaml:"endpoint"`
	MaxTokens         int                  `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64              `mapstructure:"temperature" yaml:"temperature"`
	APITimeout        time.Duration        `mapstructure:"api_timeout" yaml:"api_timeout"`
	RequestTimeout    time.Duration        `mapstructure:"request_timeout" yaml:"request_timeout"`
	RequestsPerMinute int                  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Retry             RetryConfig          `mapstructure:"retry" yaml:"retry"`
	KeyFormats        map[string]KeyFormat `mapstructure:"key_formats" yaml:"key_formats"`
	SafetyFilters     map[string]string    `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// RetryConfig drives the gateway's backoff: delay(attempt) = BaseDelay * 2^attempt.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

// KeyFormat is a provider-specific sanity check for API keys. Empty fields disable the check.
type KeyFormat struct {
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	MinLength int    `mapstructure:"min_length" yaml:"min_length"`
}

// ErrKeyFormat is wrapped by CheckKey when a key does not match its provider's format.
var ErrKeyFormat = errors.New("api key format is invalid")

// CheckKey validates key against the format configured for provider.
// Providers without a configured format accept any non-empty key.
func (c LLMConfig) CheckKey(provider LLMProvider, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrKeyFormat)
	}
	format, ok := c.KeyFormats[strings.ToLower(string(provider))]
	if !ok {
		return nil
	}
	if format.Prefix != "" && !strings.HasPrefix(key, format.Prefix) {
		return fmt.Errorf("%w: %s keys start with %q", ErrKeyFormat, provider, format.Prefix)
	}
	if format.MinLength > 0 && len(key) < format.MinLength {
		return fmt.Errorf("%w: %s keys are at least %d characters", ErrKeyFormat, provider, format.MinLength)
	}
	return nil
}

// ExtractorConfig tunes page extraction.
type ExtractorConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	MaxListItems int           `mapstructure:"max_list_items" yaml:"max_list_items"`
}

// RelayConfig configures the HTTP surface used by the extension popup.
type RelayConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	BridgeTimeout   time.Duration `mapstructure:"bridge_timeout" yaml:"bridge_timeout"`
}

// BrowserConfig configures the headless Chrome page host.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	// Locale and Timezone are reported to pages; an empty Timezone keeps the host's.
	Locale   string `mapstructure:"locale" yaml:"locale"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// SettingsConfig locates the persisted user settings file.
type SettingsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chartwise")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-1.5-flash-latest")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.request_timeout", "45s")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.retry.max_attempts", 3)
	v.SetDefault("llm.retry.base_delay", "1s")
	v.SetDefault("llm.key_formats.gemini.prefix", "AIza")
	v.SetDefault("llm.key_formats.gemini.min_length", 30)
	v.SetDefault("llm.key_formats.openai.prefix", "sk-")
	v.SetDefault("llm.key_formats.openai.min_length", 20)

	// -- Extractor --
	v.SetDefault("extractor.cache_ttl", "5s")
	v.SetDefault("extractor.max_list_items", 10)

	// -- Relay --
	v.SetDefault("relay.listen_addr", "127.0.0.1:8787")
	v.SetDefault("relay.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("relay.shutdown_timeout", "10s")
	v.SetDefault("relay.bridge_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")

	// -- Settings --
	v.SetDefault("settings.path", "")
}

// BindEnv configures v to read CHARTWISE_* environment variables, mapping
// nested keys with underscores (llm.api_key -> CHARTWISE_LLM_API_KEY).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider-native variable names are accepted as fallbacks for the key.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into the
// process environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// A missing API key is not an error here; it is reported per request.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.Extractor.CacheTTL < 0 {
		return fmt.Errorf("extractor.cache_ttl must not be negative")
	}
	if c.Extractor.MaxListItems <= 0 {
		return fmt.Errorf("extractor.max_list_items must be a positive integer")
	}
	if c.Relay.ListenAddr == "" {
		return fmt.Errorf("relay.listen_addr is required")
	}
	return nil
}

// Validate checks the LLM configuration.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider '%s'. Supported: [%s, %s]", l.Provider, ProviderGemini, ProviderOpenAI)
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be a positive integer")
	}
	if l.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be a positive duration")
	}
	if l.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}
