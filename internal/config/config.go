package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is used when no path is provided on the command line or environment.
const DefaultConfigPath = "config.yaml"

// envPrefix prefixes every environment override, e.g. QINGCHENG_DATABASE_DSN.
const envPrefix = "QINGCHENG"

// AppConfig holds process-level options passed from the command line.
type AppConfig struct {
	ConfigPath string
}

// Config is the static service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Gemini   GeminiConfig   `mapstructure:"gemini" yaml:"gemini"`
	Payment  PaymentConfig  `mapstructure:"payment" yaml:"payment"`
	Redeem   RedeemConfig   `mapstructure:"redeem" yaml:"redeem"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Usage    UsageConfig    `mapstructure:"usage" yaml:"usage"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	SiteName string `mapstructure:"site-name" yaml:"site-name"`
	Mode     string `mapstructure:"mode" yaml:"mode"` // gin mode: debug, release or test.
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// JWTConfig controls user token signing.
type JWTConfig struct {
	Secret      string `mapstructure:"secret" yaml:"secret"`
	ExpiryHours int    `mapstructure:"expiry-hours" yaml:"expiry-hours"`
}

// Expiry returns the token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	if c.ExpiryHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.ExpiryHours) * time.Hour
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // text or json.
	File       string `mapstructure:"file" yaml:"file"`     // Empty logs to stdout only.
	MaxSizeMB  int    `mapstructure:"max-size-mb" yaml:"max-size-mb"`
	MaxBackups int    `mapstructure:"max-backups" yaml:"max-backups"`
	MaxAgeDays int    `mapstructure:"max-age-days" yaml:"max-age-days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// GeminiConfig configures the upstream AI provider.
type GeminiConfig struct {
	APIKey          string `mapstructure:"api-key" yaml:"api-key"`
	BaseURL         string `mapstructure:"base-url" yaml:"base-url"`
	TimeoutSeconds  int    `mapstructure:"timeout-seconds" yaml:"timeout-seconds"`
	MaxAttempts     int    `mapstructure:"max-attempts" yaml:"max-attempts"`
	BaseDelayMillis int    `mapstructure:"base-delay-millis" yaml:"base-delay-millis"`
	ImageModel      string `mapstructure:"image-model" yaml:"image-model"`
	AnalyzeModel    string `mapstructure:"analyze-model" yaml:"analyze-model"`
	ValidateModel   string `mapstructure:"validate-model" yaml:"validate-model"`
}

// PaymentConfig groups payment gateway options.
type PaymentConfig struct {
	Alipay AlipayConfig `mapstructure:"alipay" yaml:"alipay"`
}

// AlipayConfig holds the static gateway options. Credentials live in the settings table.
type AlipayConfig struct {
	GatewayURL string `mapstructure:"gateway-url" yaml:"gateway-url"`
	Subject    string `mapstructure:"subject" yaml:"subject"`
	// AllowUnverifiedNotify processes callbacks whose signature fails to verify.
	// Leave false outside of gateway sandbox debugging.
	AllowUnverifiedNotify bool `mapstructure:"allow-unverified-notify" yaml:"allow-unverified-notify"`
}

// RedeemConfig controls redemption code validation.
type RedeemConfig struct {
	TimeZone           string `mapstructure:"time-zone" yaml:"time-zone"`
	RateLimitPerMinute int    `mapstructure:"rate-limit-per-minute" yaml:"rate-limit-per-minute"`
}

// Location resolves the configured time zone, falling back to UTC+8.
func (c RedeemConfig) Location() *time.Location {
	if name := strings.TrimSpace(c.TimeZone); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("UTC+8", 8*60*60)
}

// RedisConfig enables the shared rate limiter when URL is set.
type RedisConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// UsageConfig controls how long invocation records are kept.
type UsageConfig struct {
	RetentionDays int `mapstructure:"retention-days" yaml:"retention-days"` // 0 keeps records forever.
}

// Default returns the configuration written by `config init`.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:     "",
			Port:     8080,
			SiteName: "Qingcheng",
			Mode:     "release",
		},
		Database: DatabaseConfig{DSN: "file:data/qingcheng.db"},
		JWT:      JWTConfig{ExpiryHours: 168},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Gemini: GeminiConfig{
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSeconds:  120,
			MaxAttempts:     3,
			BaseDelayMillis: 2000,
			ImageModel:      "gemini-2.5-flash-image",
			AnalyzeModel:    "gemini-3-flash-preview",
			ValidateModel:   "gemini-2.0-flash",
		},
		Payment: PaymentConfig{Alipay: AlipayConfig{
			GatewayURL: "https://openapi.alipay.com/gateway.do",
			Subject:    "AI credits",
		}},
		Redeem: RedeemConfig{TimeZone: "Asia/Shanghai", RateLimitPerMinute: 10},
		Redis:  RedisConfig{Prefix: "qingcheng:"},
		Usage:  UsageConfig{RetentionDays: 90},
	}
}

// ResolveConfigPath returns the explicit path, the QINGCHENG_CONFIG variable or the default.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); env != "" {
		return env
	}
	return DefaultConfigPath
}

// ConfigExists reports whether a config file is present at path.
func ConfigExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads the YAML file at path, applies environment overrides and validates the result.
// A missing file is not an error; defaults and environment variables still apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" && ConfigExists(path) {
		v.SetConfigFile(path)
		if errRead := v.ReadInConfig(); errRead != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	}

	var cfg Config
	if errDecode := v.Unmarshal(&cfg); errDecode != nil {
		return Config{}, fmt.Errorf("config: decode: %w", errDecode)
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override values absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.site-name", d.Server.SiteName)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.expiry-hours", d.JWT.ExpiryHours)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max-size-mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max-backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max-age-days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("gemini.api-key", d.Gemini.APIKey)
	v.SetDefault("gemini.base-url", d.Gemini.BaseURL)
	v.SetDefault("gemini.timeout-seconds", d.Gemini.TimeoutSeconds)
	v.SetDefault("gemini.max-attempts", d.Gemini.MaxAttempts)
	v.SetDefault("gemini.base-delay-millis", d.Gemini.BaseDelayMillis)
	v.SetDefault("gemini.image-model", d.Gemini.ImageModel)
	v.SetDefault("gemini.analyze-model", d.Gemini.AnalyzeModel)
	v.SetDefault("gemini.validate-model", d.Gemini.ValidateModel)
	v.SetDefault("payment.alipay.gateway-url", d.Payment.Alipay.GatewayURL)
	v.SetDefault("payment.alipay.subject", d.Payment.Alipay.Subject)
	v.SetDefault("payment.alipay.allow-unverified-notify", d.Payment.Alipay.AllowUnverifiedNotify)
	v.SetDefault("redeem.time-zone", d.Redeem.TimeZone)
	v.SetDefault("redeem.rate-limit-per-minute", d.Redeem.RateLimitPerMinute)
	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("usage.retention-days", d.Usage.RetentionDays)
}
