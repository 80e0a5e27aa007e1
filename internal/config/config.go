package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Store    StoreConfig    `mapstructure:"store" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// job submissions per second per token subject; zero disables the limit
	SubmitRateLimit float64 `mapstructure:"submit_rate_limit" validate:"gte=0"`
	SubmitRateBurst int     `mapstructure:"submit_rate_burst" validate:"gte=0"`
}

// DatabaseConfig contains PostgreSQL settings. URL is required when the
// postgres store backend is selected.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLM provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// LLMConfig contains the generation provider settings.
// Only the API key of the selected provider is required.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	ModelName        string        `mapstructure:"model_name" validate:"required"`
	PromptTemplate   string        `mapstructure:"prompt_template_path" validate:"omitempty,file"`
	ImageOutput      bool          `mapstructure:"image_output"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" validate:"gt=0"`
}

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StoreConfig selects and configures the durable job backend.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=memory postgres redis"`
	Namespace     string        `mapstructure:"namespace" validate:"required"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
}
