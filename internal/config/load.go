package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GENQUEUE"

var configKeys = []string{
	"server.port",
	"server.log_level",
	"server.shutdown_timeout",
	"server.submit_rate_limit",
	"server.submit_rate_burst",
	"database.url",
	"database.max_open_conns",
	"database.max_idle_conns",
	"auth.jwt_secret",
	"auth.token_lifetime",
	"llm.provider",
	"llm.gemini_api_key",
	"llm.openai_api_key",
	"llm.model_name",
	"llm.prompt_template_path",
	"llm.image_output",
	"llm.max_retries",
	"llm.retry_delay",
	"llm.request_timeout",
	"llm.progress_interval",
	"store.backend",
	"store.namespace",
	"store.write_timeout",
	"store.redis_addr",
	"store.redis_password",
	"store.redis_db",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file. Keys map to variables as GENQUEUE_<SECTION>_<KEY>,
// e.g. store.backend is GENQUEUE_STORE_BACKEND.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LLM.ModelName == "" {
		cfg.LLM.ModelName = defaultModels[cfg.LLM.Provider]
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the settings each store backend
// depends on.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Store.Backend {
	case BackendPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("invalid configuration: database.url is required for the %s store backend", BackendPostgres)
		}
	case BackendRedis:
		if cfg.Store.RedisAddr == "" {
			return fmt.Errorf("invalid configuration: store.redis_addr is required for the %s store backend", BackendRedis)
		}
	}
	return nil
}

var defaultModels = map[string]string{
	ProviderGemini: "gemini-2.0-flash",
	ProviderOpenAI: "gpt-4o-mini",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.submit_rate_limit", 2)
	v.SetDefault("server.submit_rate_burst", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("auth.token_lifetime", "60m")
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.request_timeout", "120s")
	v.SetDefault("llm.progress_interval", "2s")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.namespace", "generation_jobs")
	v.SetDefault("store.write_timeout", "10s")
	v.SetDefault("store.redis_db", 0)
}
