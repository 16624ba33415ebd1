// Package config loads and validates gateway configuration from an optional
// YAML file plus environment variables, with env taking precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProviderConfig holds the gateway-owned key for one upstream provider.
type ProviderConfig struct {
	APIKey string
	UseResponsesAPI bool
}

// CacheConfig controls the request cache (§4.2).
type CacheConfig struct {
	Enabled     bool
	Backend     string // memory|remote
	TTL         time.Duration
	KeyStrategy string // default|semantic|hierarchical|content_based
	MaxSize     int
	RedisURL    string
}

// RateLimitConfig controls the limiter layer (§4.3).
type RateLimitConfig struct {
	Enabled bool
}

// RealtimeConfig controls the realtime session engine (§4.1).
type RealtimeConfig struct {
	Enabled              bool
	MaxBufferMs          int
	LowWaterMs           int
	MaxIdleSeconds        int
	MaxSessionMinutes    int
	MaxConcurrentGlobal  int
	MaxConcurrentPerKey  int
	APMAudioSecondsPerMin int
	RPMPerMinute         int
	ReconnectBudgetMs    int
}

// ServerConfig controls the HTTP/WS bind and timeouts.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GatewayKeyConfig declares one statically-provisioned gateway key (§6
// auth.keys[]). The actual credential string is the generated KeyInfo.ID,
// logged once at startup; config only carries its quota and display name.
type GatewayKeyConfig struct {
	DisplayName     string `mapstructure:"display_name"`
	RequestsPerHour int64  `mapstructure:"requests_per_hour"`
	RequestsPerDay  int64  `mapstructure:"requests_per_day"`
	TokensPerHour   int64  `mapstructure:"tokens_per_hour"`
	TokensPerDay    int64  `mapstructure:"tokens_per_day"`
	RPMPerMinute    int    `mapstructure:"rpm_per_minute"`
}

// AuthConfig controls credential handling.
type AuthConfig struct {
	AllowClientProviderKeys bool
	Keys                    []GatewayKeyConfig
}

// Config is the top-level, validated configuration object.
type Config struct {
	Env       string
	LogLevel  string
	Server    ServerConfig
	Auth      AuthConfig
	OpenAI    ProviderConfig
	Gemini    ProviderConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
}

// Load reads configuration from path (if non-empty and present), from
// environment variables, and from built-in defaults, then validates it.
// A missing YAML file is not an error: env-only deployments are valid.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// Absence is fine; a file that exists but cannot be read or
		// parsed is a startup error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindLegacyEnvAliases(v)

	var gatewayKeys []GatewayKeyConfig
	if err := v.UnmarshalKey("auth.keys", &gatewayKeys); err != nil {
		return nil, fmt.Errorf("config: auth.keys: %w", err)
	}

	cfg := &Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("logging.level"),
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Auth: AuthConfig{
			AllowClientProviderKeys: v.GetBool("auth.allow_client_provider_keys"),
			Keys:                    gatewayKeys,
		},
		OpenAI: ProviderConfig{
			APIKey:          v.GetString("providers.openai.api_key"),
			UseResponsesAPI: v.GetBool("providers.openai.use_responses_api"),
		},
		Gemini: ProviderConfig{
			APIKey: v.GetString("providers.gemini.api_key"),
		},
		Cache: CacheConfig{
			Enabled:     v.GetBool("cache.enabled"),
			Backend:     v.GetString("cache.backend"),
			TTL:         v.GetDuration("cache.ttl"),
			KeyStrategy: v.GetString("cache.key_strategy"),
			MaxSize:     v.GetInt("cache.max_size"),
			RedisURL:    v.GetString("cache.redis_url"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("rate_limiting.enabled"),
		},
		Realtime: RealtimeConfig{
			Enabled:               v.GetBool("realtime.enabled"),
			MaxBufferMs:           v.GetInt("realtime.max_buffer_ms"),
			LowWaterMs:            v.GetInt("realtime.low_water_ms"),
			MaxIdleSeconds:        v.GetInt("realtime.max_idle_seconds"),
			MaxSessionMinutes:     v.GetInt("realtime.max_session_minutes"),
			MaxConcurrentGlobal:   v.GetInt("realtime.max_concurrent_global"),
			MaxConcurrentPerKey:   v.GetInt("realtime.max_concurrent_per_key"),
			APMAudioSecondsPerMin: v.GetInt("realtime.apm_audio_seconds_per_min"),
			RPMPerMinute:          v.GetInt("realtime.rpm_per_minute"),
			ReconnectBudgetMs:     v.GetInt("realtime.reconnect_budget_ms"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("auth.allow_client_provider_keys", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.key_strategy", "default")
	v.SetDefault("cache.max_size", 10000)

	v.SetDefault("rate_limiting.enabled", true)

	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.max_buffer_ms", 5000)
	v.SetDefault("realtime.low_water_ms", 1000)
	v.SetDefault("realtime.max_idle_seconds", 60)
	v.SetDefault("realtime.max_session_minutes", 15)
	v.SetDefault("realtime.max_concurrent_global", 500)
	v.SetDefault("realtime.max_concurrent_per_key", 10)
	v.SetDefault("realtime.apm_audio_seconds_per_min", 180)
	v.SetDefault("realtime.rpm_per_minute", 60)
	v.SetDefault("realtime.reconnect_budget_ms", 2000)
}

// bindLegacyEnvAliases wires the flat env-var names named in the gateway's
// external interface (GATEWAY_PORT, REDIS_URL, ...) onto the nested keys.
func bindLegacyEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("server.port", "GATEWAY_PORT", "PORT")
	_ = v.BindEnv("server.host", "GATEWAY_HOST", "HOST")
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.openai.use_responses_api", "OPENAI_USE_RESPONSES_API")
	_ = v.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("cache.enabled", "CACHE_ENABLED")
	_ = v.BindEnv("cache.ttl", "CACHE_TTL")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.redis_url", "REDIS_URL")
	_ = v.BindEnv("rate_limiting.enabled", "RATE_LIMITING_ENABLED")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
}

// Validate returns a descriptive error for any configuration that would
// make the gateway unsafe or impossible to start (§6 exit code 1 path).
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch c.Cache.Backend {
	case "memory", "remote":
	default:
		return fmt.Errorf("config: cache.backend must be memory or remote, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "remote" && c.Cache.RedisURL == "" {
		return fmt.Errorf("config: cache.backend=remote requires cache.redis_url / REDIS_URL")
	}
	switch c.Cache.KeyStrategy {
	case "default", "semantic", "hierarchical", "content_based":
	default:
		return fmt.Errorf("config: cache.key_strategy %q is not one of default|semantic|hierarchical|content_based", c.Cache.KeyStrategy)
	}
	if c.Realtime.MaxBufferMs <= 0 {
		return fmt.Errorf("config: realtime.max_buffer_ms must be positive")
	}
	if c.Realtime.MaxIdleSeconds <= 0 {
		return fmt.Errorf("config: realtime.max_idle_seconds must be positive")
	}
	if c.OpenAI.APIKey == "" && c.Gemini.APIKey == "" && !c.Auth.AllowClientProviderKeys {
		return fmt.Errorf("config: no gateway-owned provider key configured and auth.allow_client_provider_keys is false")
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		return fmt.Errorf("config: logging.level must not be empty")
	}
	return nil
}

// EnvFromOSOrDefault is a small helper for call sites that want a raw env
// lookup outside the viper-bound config tree.
func EnvFromOSOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
