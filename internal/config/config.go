package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	Auth         AuthConfig         `yaml:"auth"`
	Verification VerificationConfig `yaml:"verification"`
	Twilio       TwilioConfig       `yaml:"twilio"`
	Email        EmailConfig        `yaml:"email"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	SES          SESConfig          `yaml:"ses"`
	Sequence     SequenceConfig     `yaml:"sequence"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Perplexity   PerplexityConfig   `yaml:"perplexity"`
	PDF          PDFConfig          `yaml:"pdf"`
	Storage      StorageConfig      `yaml:"storage"`
	Feeds        FeedsConfig        `yaml:"feeds"`
	Estimation   EstimationConfig   `yaml:"estimation"`
	CORS         CORSConfig         `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// RunScheduler starts the sequence scheduler inside the API process.
	RunScheduler bool `yaml:"run_scheduler"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis; sessions,
// rate limits and locks then fall back to in-process or Postgres backends.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Env       string `yaml:"env"`   // "dev" or "prod"
	Level     string `yaml:"level"` // debug, info, warn, error
	RedactPII bool   `yaml:"redact_pii"`
}

// AuthConfig holds admin authentication settings
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	CookieName      string `yaml:"cookie_name"`
	CookieSecure    bool   `yaml:"cookie_secure"`
	SessionHours    int    `yaml:"session_hours"`
	DownloadTTLHour int    `yaml:"download_ttl_hours"`
}

// SessionTTL returns the admin JWT lifetime
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionHours) * time.Hour
}

// DownloadTTL returns the lifetime of guide download tokens
func (c AuthConfig) DownloadTTL() time.Duration {
	return time.Duration(c.DownloadTTLHour) * time.Hour
}

// VerificationConfig holds SMS verification and auth session settings
type VerificationConfig struct {
	Mode             string   `yaml:"mode"` // "twilio" or "local"
	DevMode          bool     `yaml:"dev_mode"`
	TestCodes        []string `yaml:"test_codes"`
	CodeTTLSeconds   int      `yaml:"code_ttl_seconds"`
	MaxAttempts      int      `yaml:"max_attempts"`
	SessionTTLMinute int      `yaml:"session_ttl_minutes"`
	MaxSends         int      `yaml:"max_sends_per_session"`
	SendsPerHour     int      `yaml:"sends_per_phone_per_hour"`
}

// CodeTTL returns how long a generated code stays valid
func (c VerificationConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

// SessionTTL returns how long an auth session stays valid
func (c VerificationConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinute) * time.Minute
}

// TwilioConfig holds Twilio REST credentials
type TwilioConfig struct {
	AccountSID       string `yaml:"account_sid"`
	AuthToken        string `yaml:"auth_token"`
	VerifyServiceSID string `yaml:"verify_service_sid"`
	FromNumber       string `yaml:"from_number"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	// WebhookURL is the public URL Twilio posts inbound SMS to. When set,
	// inbound requests must carry a valid X-Twilio-Signature.
	WebhookURL string `yaml:"webhook_url"`
}

// Timeout returns the configured timeout as a duration
func (c TwilioConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmailConfig holds transport selection and sender identity
type EmailConfig struct {
	Transport         string `yaml:"transport"` // "smtp", "ses" or "log"
	FromEmail         string `yaml:"from_email"`
	FromName          string `yaml:"from_name"`
	ReplyTo           string `yaml:"reply_to"`
	SiteURL           string `yaml:"site_url"`
	NotificationEmail string `yaml:"notification_email"`
}

// SMTPConfig holds SMTP server settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLSMode  string `yaml:"tls_mode"` // auto, starttls, ssl, none
}

// SESConfig holds AWS SES settings
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SequenceConfig holds email drip settings
type SequenceConfig struct {
	Enabled             bool  `yaml:"enabled"`
	TickIntervalSeconds int   `yaml:"tick_interval_seconds"`
	DayOffsets          []int `yaml:"day_offsets"`
	BatchSize           int   `yaml:"batch_size"`
	MaxAttempts         int   `yaml:"max_attempts"`
	RetryBackoffMinutes int   `yaml:"retry_backoff_minutes"`
	StaleAfterMinutes   int   `yaml:"stale_after_minutes"`
}

// TickInterval returns the scheduler poll interval
func (c SequenceConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// RetryBackoff returns the base delay before a failed send is retried
func (c SequenceConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMinutes) * time.Minute
}

// StaleAfter returns how long a claimed row may stay in sending before recovery
func (c SequenceConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// OpenAIConfig holds OpenAI API configuration for article generation
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Enabled bool   `yaml:"enabled"`
}

// PerplexityConfig holds Perplexity API configuration for research notes
type PerplexityConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Enabled bool   `yaml:"enabled"`
}

// PDFConfig holds headless browser settings for guide rendering
type PDFConfig struct {
	ChromeBin      string `yaml:"chrome_bin"`
	ControlURL     string `yaml:"control_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-render timeout
func (c PDFConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds guide PDF storage settings
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	S3Prefix  string `yaml:"s3_prefix"`
}

// FeedsConfig lists RSS sources used for article topic ideas
type FeedsConfig struct {
	URLs []string `yaml:"urls"`
}

// EstimationConfig holds the price table used by the estimator
type EstimationConfig struct {
	DefaultPricePerM2 float64            `yaml:"default_price_per_m2"`
	PricePerM2        map[string]float64 `yaml:"price_per_m2"` // keyed by postal code prefix
	Spread            float64            `yaml:"spread"`
}

// CORSConfig holds allowed origins for the public site and admin UI
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Logging.Env == "" {
		cfg.Logging.Env = "dev"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "immo_admin"
	}
	if cfg.Auth.SessionHours == 0 {
		cfg.Auth.SessionHours = 12
	}
	if cfg.Auth.DownloadTTLHour == 0 {
		cfg.Auth.DownloadTTLHour = 24
	}
	if cfg.Verification.Mode == "" {
		cfg.Verification.Mode = "local"
	}
	if len(cfg.Verification.TestCodes) == 0 {
		cfg.Verification.TestCodes = []string{"123456"}
	}
	if cfg.Verification.CodeTTLSeconds == 0 {
		cfg.Verification.CodeTTLSeconds = 600
	}
	if cfg.Verification.MaxAttempts == 0 {
		cfg.Verification.MaxAttempts = 5
	}
	if cfg.Verification.SessionTTLMinute == 0 {
		cfg.Verification.SessionTTLMinute = 30
	}
	if cfg.Verification.MaxSends == 0 {
		cfg.Verification.MaxSends = 3
	}
	if cfg.Verification.SendsPerHour == 0 {
		cfg.Verification.SendsPerHour = 5
	}
	if cfg.Twilio.TimeoutSeconds == 0 {
		cfg.Twilio.TimeoutSeconds = 15
	}
	if cfg.Email.Transport == "" {
		cfg.Email.Transport = "log"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Vendre Mon Bien"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TLSMode == "" {
		cfg.SMTP.TLSMode = "auto"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "eu-west-3"
	}
	if cfg.Sequence.TickIntervalSeconds == 0 {
		cfg.Sequence.TickIntervalSeconds = 900
	}
	if len(cfg.Sequence.DayOffsets) == 0 {
		cfg.Sequence.DayOffsets = []int{0, 2, 5, 10}
	}
	if cfg.Sequence.BatchSize == 0 {
		cfg.Sequence.BatchSize = 100
	}
	if cfg.Sequence.MaxAttempts == 0 {
		cfg.Sequence.MaxAttempts = 3
	}
	if cfg.Sequence.RetryBackoffMinutes == 0 {
		cfg.Sequence.RetryBackoffMinutes = 30
	}
	if cfg.Sequence.StaleAfterMinutes == 0 {
		cfg.Sequence.StaleAfterMinutes = 60
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Perplexity.BaseURL == "" {
		cfg.Perplexity.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Perplexity.Model == "" {
		cfg.Perplexity.Model = "sonar"
	}
	if cfg.PDF.TimeoutSeconds == 0 {
		cfg.PDF.TimeoutSeconds = 60
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "data/guides"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "guides/"
	}
	if cfg.Estimation.DefaultPricePerM2 == 0 {
		cfg.Estimation.DefaultPricePerM2 = 3200
	}
	if cfg.Estimation.Spread == 0 {
		cfg.Estimation.Spread = 0.08
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Logging.Env, "APP_ENV")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Verification.Mode, "VERIFICATION_MODE")
	setString(&cfg.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.Twilio.VerifyServiceSID, "TWILIO_VERIFY_SERVICE_SID")
	setString(&cfg.Twilio.FromNumber, "TWILIO_FROM_NUMBER")
	setString(&cfg.Email.Transport, "EMAIL_TRANSPORT")
	setString(&cfg.Email.FromEmail, "EMAIL_FROM")
	setString(&cfg.Email.SiteURL, "SITE_URL")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.Username, "SMTP_USER")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.SES.Region, "AWS_SES_REGION")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Perplexity.APIKey, "PERPLEXITY_API_KEY")
	setString(&cfg.Storage.S3Bucket, "S3_BUCKET")
	setString(&cfg.PDF.ChromeBin, "CHROME_BIN")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		}
	}
	if os.Getenv("VERIFICATION_DEV_MODE") == "true" {
		cfg.Verification.DevMode = true
	}
	if cfg.OpenAI.APIKey != "" {
		cfg.OpenAI.Enabled = true
	}
	if cfg.Perplexity.APIKey != "" {
		cfg.Perplexity.Enabled = true
	}
	if cfg.Storage.S3Bucket != "" {
		cfg.Storage.Type = "s3"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
