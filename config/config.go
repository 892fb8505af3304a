package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the OCR job service.
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Worker     WorkerConfig
	Rasterizer RasterizerConfig
	OCR        OCRConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Validation ValidationConfig
	Security   SecurityConfig
	Health     HealthConfig

	dbPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// RedisConfig holds Redis connection configuration for the result cache.
// Redis is never load-bearing: a missing/unreachable Redis degrades to a
// NoopResultCache rather than failing requests.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// WorkerConfig holds the worker pool configuration. The pool is a fixed
// size for the lifetime of the process; it does not scale dynamically.
type WorkerConfig struct {
	NumWorkers   int
	PollInterval time.Duration
	PanicBackoff time.Duration
}

// RasterizerConfig holds configuration for turning an uploaded PDF into
// one image per page.
type RasterizerConfig struct {
	MutoolPath string
	DPI        int
}

// OCRConfig holds backend-adapter configuration.
type OCRConfig struct {
	Backend         string // "hosted" or "self-hosted"
	Mode            string // backend-specific processing mode, passed through verbatim
	OllamaURL       string
	HFToken         string
	HFModel         string
	RequestTimeout  time.Duration
	RoutingConfPath string // optional file watched for live backend-routing changes
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `json:"format" validate:"oneof=json console"`
	Output     string `json:"output" validate:"oneof=stdout stderr file"`
	Filename   string `json:"filename,omitempty"`
	TimeFormat string `json:"time_format"`
	Structured bool   `json:"structured"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Port      string `json:"port"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
}

// ValidationConfig holds upload validation configuration
type ValidationConfig struct {
	MaxFileSize        int64    `json:"max_file_size"`
	MinFileSize        int64    `json:"min_file_size"`
	AllowedMimeTypes   []string `json:"allowed_mime_types"`
	AllowedExtensions  []string `json:"allowed_extensions"`
	RequireContentType bool     `json:"require_content_type"`
}

// SecurityConfig holds HTTP-layer security configuration
type SecurityConfig struct {
	RateLimitEnabled    bool          `json:"rate_limit_enabled"`
	RateLimitPerMinute  int           `json:"rate_limit_per_minute"`
	CorsEnabled         bool          `json:"cors_enabled"`
	CorsAllowedOrigins  []string      `json:"cors_allowed_origins"`
	RequestTimeoutLimit time.Duration `json:"request_timeout_limit"`
	MaxRequestBodySize  int64         `json:"max_request_body_size"`
	// ControlTokenSecret, when non-empty, requires a matching bearer token
	// on the delete (Control) endpoint. Empty disables the guard.
	ControlTokenSecret string `json:"-"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled       bool          `json:"enabled"`
	Path          string        `json:"path"`
	CheckInterval time.Duration `json:"check_interval"`
	Timeout       time.Duration `json:"timeout"`
	ReadinessPath string        `json:"readiness_path"`
	LivenessPath  string        `json:"liveness_path"`
}

// StorePath returns the SQLite database file backing the Store. It lives
// outside any one sub-config because both the Store and the health
// endpoint's db_path report need it.
func (c *Config) StorePath() string {
	return c.dbPath
}

// Load reads configuration from environment variables and returns Config
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
		},
		Worker: WorkerConfig{
			NumWorkers:   getIntEnv("NUM_WORKERS", 2),
			PollInterval: getDurationEnv("WORKER_POLL_INTERVAL", 1*time.Second),
			PanicBackoff: getDurationEnv("WORKER_PANIC_BACKOFF", 2*time.Second),
		},
		Rasterizer: RasterizerConfig{
			MutoolPath: getEnv("MUTOOL_PATH", "mutool"),
			DPI:        getIntEnv("RASTERIZE_DPI", 150),
		},
		OCR: OCRConfig{
			Backend:         getEnv("OCR_BACKEND", "self-hosted"),
			Mode:            getEnv("OCR_MODE", "default"),
			OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
			HFToken:         getEnv("HF_TOKEN", ""),
			HFModel:         getEnv("HF_MODEL", ""),
			RequestTimeout:  getDurationEnv("OCR_REQUEST_TIMEOUT", 60*time.Second),
			RoutingConfPath: getEnv("OCR_ROUTING_CONFIG", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", "logs/app.log"),
			TimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
			Structured: getBoolEnv("LOG_STRUCTURED", true),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("METRICS_ENABLED", true),
			Port:      getEnv("METRICS_PORT", "9090"),
			Path:      getEnv("METRICS_PATH", "/metrics"),
			Namespace: getEnv("METRICS_NAMESPACE", "ocr_job_service"),
			Subsystem: getEnv("METRICS_SUBSYSTEM", "pipeline"),
		},
		Validation: ValidationConfig{
			MaxFileSize:        getInt64Env("MAX_FILE_SIZE_MB", 50) * 1024 * 1024,
			MinFileSize:        1,
			RequireContentType: getBoolEnv("VALIDATION_REQUIRE_CONTENT_TYPE", true),
			AllowedMimeTypes: getStringSliceEnv("VALIDATION_ALLOWED_MIME_TYPES", []string{
				"application/pdf",
				"image/png", "image/jpeg", "image/tiff", "image/bmp", "image/webp",
			}),
			AllowedExtensions: getStringSliceEnv("VALIDATION_ALLOWED_EXTENSIONS", []string{
				".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".bmp", ".webp",
			}),
		},
		Security: SecurityConfig{
			RateLimitEnabled:    getBoolEnv("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitPerMinute:  getIntEnv("SECURITY_RATE_LIMIT_PER_MINUTE", 60),
			CorsEnabled:         getBoolEnv("SECURITY_CORS_ENABLED", true),
			CorsAllowedOrigins:  getStringSliceEnv("SECURITY_CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeoutLimit: getDurationEnv("SECURITY_REQUEST_TIMEOUT_LIMIT", 300*time.Second),
			MaxRequestBodySize:  getInt64Env("MAX_FILE_SIZE_MB", 50) * 1024 * 1024,
			ControlTokenSecret:  getEnv("CONTROL_TOKEN_SECRET", ""),
		},
		Health: HealthConfig{
			Enabled:       getBoolEnv("HEALTH_ENABLED", true),
			Path:          getEnv("HEALTH_PATH", "/health"),
			CheckInterval: getDurationEnv("HEALTH_CHECK_INTERVAL", 30*time.Second),
			Timeout:       getDurationEnv("HEALTH_TIMEOUT", 5*time.Second),
			ReadinessPath: getEnv("HEALTH_READINESS_PATH", "/ready"),
			LivenessPath:  getEnv("HEALTH_LIVENESS_PATH", "/live"),
		},
	}
	cfg.dbPath = getEnv("DB_PATH", "./data/ocrjobs.db")
	return cfg
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
		log.Printf("warning: invalid int64 value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Printf("warning: invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// GetRedisURL returns the host:port for the result-cache Redis connection
func (c *Config) GetRedisURL() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Validate checks that the configuration is usable before the server starts.
func (c *Config) Validate() error {
	if c.Worker.NumWorkers < 1 {
		return NewValidationErr("NUM_WORKERS must be at least 1")
	}
	if c.OCR.Backend != "hosted" && c.OCR.Backend != "self-hosted" {
		return NewValidationErr("OCR_BACKEND must be 'hosted' or 'self-hosted'")
	}
	if dir := dirOf(c.dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

type validationErr string

func (e validationErr) Error() string { return string(e) }

// NewValidationErr is a tiny local error constructor so config validation
// doesn't have to import pkg/errors (which in turn has no use for config
// concerns).
func NewValidationErr(msg string) error { return validationErr(msg) }
