package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// ErrMissingSecret is returned by Validate when a required secret is not set.
var ErrMissingSecret = errors.New("required secret not configured")

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Groq       GroqConfig
	R2         R2Config
	Suno       SunoConfig
	SunoDirect SunoDirectConfig
	Tasks      TasksConfig
	Storage    StorageConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerHour int
	PromptsPerMin   int
}

// GroqConfig points at any OpenAI-compatible chat completion endpoint.
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// SunoConfig configures the sunoapi.org generation client.
type SunoConfig struct {
	APIKey        string
	BaseURL       string
	CallbackURL   string
	Model         string
	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxRetries    int
	BackoffUnit   time.Duration
	MaxConcurrent int
}

// SunoDirectConfig configures the cookie-authenticated studio session used
// for library browsing.
type SunoDirectConfig struct {
	Cookie         string
	SessionToken   string
	BaseURL        string
	ClerkURL       string
	ClerkJSVersion string
}

// Enabled reports whether a studio cookie was supplied.
func (c SunoDirectConfig) Enabled() bool {
	return c.Cookie != ""
}

type TasksConfig struct {
	Backend  string // "file" or "redis"
	File     string
	RedisKey string
	KeepDays int
}

type StorageConfig struct {
	OutputDir string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("SUNO_API_KEY")
	readSecret("SUNO_COOKIE")
	readSecret("SUNO_SESSION")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.prompts_per_min", "RATELIMIT_PROMPTS_PER_MIN")
	_ = v.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = v.BindEnv("groq.model", "GROQ_MODEL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("suno.api_key", "SUNO_API_KEY")
	_ = v.BindEnv("suno.base_url", "SUNO_BASE_URL")
	_ = v.BindEnv("suno.callback_url", "SUNO_CALLBACK_URL")
	_ = v.BindEnv("suno.model", "SUNO_MODEL")
	_ = v.BindEnv("suno.poll_interval", "SUNO_POLL_INTERVAL")
	_ = v.BindEnv("suno.max_wait", "SUNO_MAX_WAIT")
	_ = v.BindEnv("suno.max_retries", "SUNO_MAX_RETRIES")
	_ = v.BindEnv("suno.backoff_unit", "SUNO_BACKOFF_UNIT")
	_ = v.BindEnv("suno.max_concurrent", "SUNO_MAX_CONCURRENT")
	_ = v.BindEnv("suno_direct.cookie", "SUNO_COOKIE")
	_ = v.BindEnv("suno_direct.session_token", "SUNO_SESSION")
	_ = v.BindEnv("suno_direct.base_url", "SUNO_STUDIO_URL")
	_ = v.BindEnv("suno_direct.clerk_url", "SUNO_CLERK_URL")
	_ = v.BindEnv("tasks.backend", "TASKS_BACKEND")
	_ = v.BindEnv("tasks.file", "TASKS_FILE")
	_ = v.BindEnv("tasks.redis_key", "TASKS_REDIS_KEY")
	_ = v.BindEnv("tasks.keep_days", "TASKS_KEEP_DAYS")
	_ = v.BindEnv("storage.output_dir", "OUTPUT_DIR")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.generate_per_hour", 20)
	v.SetDefault("ratelimit.prompts_per_min", 30)

	// Prompt model defaults
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Suno defaults
	v.SetDefault("suno.base_url", "https://api.sunoapi.org")
	v.SetDefault("suno.callback_url", "https://webhook.site/dummy")
	v.SetDefault("suno.model", "V4")
	v.SetDefault("suno.poll_interval", 10*time.Second)
	v.SetDefault("suno.max_wait", 300*time.Second)
	v.SetDefault("suno.max_retries", 3)
	v.SetDefault("suno.backoff_unit", 5*time.Second)
	v.SetDefault("suno.max_concurrent", 2)

	v.SetDefault("suno_direct.base_url", "https://studio-api.suno.ai")
	v.SetDefault("suno_direct.clerk_url", "https://clerk.suno.com")
	v.SetDefault("suno_direct.clerk_js_version", "5.56.0")

	// Task queue defaults
	v.SetDefault("tasks.backend", "file")
	v.SetDefault("tasks.file", "data/pending_tasks.json")
	v.SetDefault("tasks.redis_key", "sunoflow:tasks")
	v.SetDefault("tasks.keep_days", 7)

	v.SetDefault("storage.output_dir", "outputs")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			PromptsPerMin:   v.GetInt("ratelimit.prompts_per_min"),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Suno: SunoConfig{
			APIKey:        v.GetString("suno.api_key"),
			BaseURL:       v.GetString("suno.base_url"),
			CallbackURL:   v.GetString("suno.callback_url"),
			Model:         v.GetString("suno.model"),
			PollInterval:  v.GetDuration("suno.poll_interval"),
			MaxWait:       v.GetDuration("suno.max_wait"),
			MaxRetries:    v.GetInt("suno.max_retries"),
			BackoffUnit:   v.GetDuration("suno.backoff_unit"),
			MaxConcurrent: v.GetInt("suno.max_concurrent"),
		},
		SunoDirect: SunoDirectConfig{
			Cookie:         v.GetString("suno_direct.cookie"),
			SessionToken:   v.GetString("suno_direct.session_token"),
			BaseURL:        v.GetString("suno_direct.base_url"),
			ClerkURL:       v.GetString("suno_direct.clerk_url"),
			ClerkJSVersion: v.GetString("suno_direct.clerk_js_version"),
		},
		Tasks: TasksConfig{
			Backend:  strings.ToLower(v.GetString("tasks.backend")),
			File:     v.GetString("tasks.file"),
			RedisKey: v.GetString("tasks.redis_key"),
			KeepDays: v.GetInt("tasks.keep_days"),
		},
		Storage: StorageConfig{
			OutputDir: v.GetString("storage.output_dir"),
		},
	}

	return cfg, nil
}

// Validate checks that required secrets are present and that the generation
// settings are usable. Missing secrets are a startup error, not something
// to retry at runtime.
func (c *Config) Validate() error {
	if c.Suno.APIKey == "" {
		return fmt.Errorf("%w: SUNO_API_KEY", ErrMissingSecret)
	}
	if c.Suno.MaxRetries < 1 {
		return fmt.Errorf("suno.max_retries must be at least 1, got %d", c.Suno.MaxRetries)
	}
	if c.Suno.PollInterval <= 0 || c.Suno.MaxWait <= 0 {
		return fmt.Errorf("suno.poll_interval and suno.max_wait must be positive")
	}
	if c.Suno.MaxConcurrent < 0 {
		return fmt.Errorf("suno.max_concurrent must not be negative, got %d", c.Suno.MaxConcurrent)
	}
	switch c.Tasks.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown tasks.backend %q (want file or redis)", c.Tasks.Backend)
	}
	return nil
}

// R2Configured reports whether object storage credentials are present.
func (c *Config) R2Configured() bool {
	return c.R2.AccountID != "" && c.R2.AccessKeyID != "" && c.R2.SecretAccessKey != ""
}
