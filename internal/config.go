package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Tenant        TenantConfig        `mapstructure:"tenant"`
	Scanner       ScannerConfig       `mapstructure:"scanner"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AdminTokenTTL  time.Duration `mapstructure:"admin_token_ttl"`
	AdminPermision string        `mapstructure:"admin_permission"`
}

type PaymentConfig struct {
	GatewayURL       string        `mapstructure:"gateway_url" validate:"required,url"`
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	Currency         string        `mapstructure:"currency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxReadRetries   int           `mapstructure:"max_read_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	PublicBaseURL    string        `mapstructure:"public_base_url"`
	SuccessPath      string        `mapstructure:"success_path"`
	GeneralEventCode string        `mapstructure:"general_event_code"`
	CodePrefix       string        `mapstructure:"code_prefix"`
	DefaultNextFee   int64         `mapstructure:"default_next_fee"`
	DefaultFastFee   int64         `mapstructure:"default_fast_track_fee"`
}

type TenantConfig struct {
	DefaultOrganizationSlug string   `mapstructure:"default_organization_slug"`
	PriorityAllowlist       []string `mapstructure:"priority_allowlist"`
	PriorityForAll          bool     `mapstructure:"priority_for_all"`
}

type ScannerConfig struct {
	Lookback    time.Duration `mapstructure:"lookback"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	Interval    time.Duration `mapstructure:"interval"`

	// IntentWindow and MaxPages bound the sweep over recent gateway intents.
	IntentWindow time.Duration `mapstructure:"intent_window"`
	MaxPages     int           `mapstructure:"max_pages"`
}

type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	DB             int           `mapstructure:"db"`
	SubmitLimit    int           `mapstructure:"submit_limit"`
	SubmitWindow   time.Duration `mapstructure:"submit_window"`
	StatusCacheTTL time.Duration `mapstructure:"status_cache_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LoadConfigFromEnv builds the configuration for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       getEnv("HTTP_OPENAPI_PATH", "./api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTIssuer:      getEnv("JWT_ISSUER", "song-requests"),
			AdminTokenTTL:  getEnvAsDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
			AdminPermision: getEnv("ADMIN_PERMISSION", "manage_requests"),
		},
		Payment: PaymentConfig{
			GatewayURL:       getEnv("PAYMENT_GATEWAY_URL", "https://api.stripe.com"),
			SecretKey:        getEnv("PAYMENT_SECRET_KEY", ""),
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvAsDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
			Currency:         getEnv("PAYMENT_CURRENCY", "usd"),
			RequestTimeout:   getEnvAsDuration("PAYMENT_REQUEST_TIMEOUT", 10*time.Second),
			MaxReadRetries:   getEnvAsInt("PAYMENT_MAX_READ_RETRIES", 3),
			RetryBaseDelay:   getEnvAsDuration("PAYMENT_RETRY_BASE_DELAY", 200*time.Millisecond),
			PublicBaseURL:    getEnv("PAYMENT_PUBLIC_BASE_URL", "http://localhost:3000"),
			SuccessPath:      getEnv("PAYMENT_SUCCESS_PATH", "/requests/success"),
			GeneralEventCode: getEnv("PAYMENT_GENERAL_EVENT_CODE", "general"),
			CodePrefix:       getEnv("PAYMENT_CODE_PREFIX", "M10"),
			DefaultNextFee:   int64(getEnvAsInt("PAYMENT_DEFAULT_NEXT_FEE", 2000)),
			DefaultFastFee:   int64(getEnvAsInt("PAYMENT_DEFAULT_FAST_TRACK_FEE", 1000)),
		},
		Tenant: TenantConfig{
			DefaultOrganizationSlug: getEnv("TENANT_DEFAULT_ORGANIZATION_SLUG", ""),
			PriorityAllowlist:       splitCSV(getEnv("TENANT_PRIORITY_ALLOWLIST", "")),
			PriorityForAll:          getEnv("TENANT_PRIORITY_FOR_ALL", "true") == "true",
		},
		Scanner: ScannerConfig{
			Lookback:     getEnvAsDuration("SCANNER_LOOKBACK", 90*24*time.Hour),
			BatchSize:    getEnvAsInt("SCANNER_BATCH_SIZE", 100),
			Concurrency:  getEnvAsInt("SCANNER_CONCURRENCY", 4),
			Interval:     getEnvAsDuration("SCANNER_INTERVAL", 15*time.Minute),
			IntentWindow: getEnvAsDuration("SCANNER_INTENT_WINDOW", 7*24*time.Hour),
			MaxPages:     getEnvAsInt("SCANNER_MAX_PAGES", 10),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			SubmitLimit:    getEnvAsInt("REDIS_SUBMIT_LIMIT", 20),
			SubmitWindow:   getEnvAsDuration("REDIS_SUBMIT_WINDOW", time.Minute),
			StatusCacheTTL: getEnvAsDuration("REDIS_STATUS_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "song-requests.events"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Scanner.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("scanner config: %v", err))
	}

	if c.Tenant.PriorityEnabled() && (c.Payment.DefaultNextFee <= 0 || c.Payment.DefaultFastFee <= 0) {
		errs = append(errs, "payment config: default fees must be positive while priority requests are enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if c.GatewayURL == "" {
		return errors.New("gateway_url is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("invalid gateway_url: %w", err)
	}
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.DefaultNextFee < 0 || c.DefaultFastFee < 0 {
		return errors.New("default fees cannot be negative")
	}
	return nil
}

// PriorityEnabled reports whether any organization may take priority requests.
func (c *TenantConfig) PriorityEnabled() bool {
	return c.PriorityForAll || len(c.PriorityAllowlist) > 0
}

func (c *ScannerConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if c.Lookback <= 0 {
		return errors.New("lookback must be positive")
	}
	return nil
}
