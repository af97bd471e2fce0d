package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	InferenceURL      string   `mapstructure:"INFERENCE_URL"`
	InferenceTimeout  string   `mapstructure:"INFERENCE_TIMEOUT"`
	CORSOrigins       []string `mapstructure:"FRONTEND_URL"`
	JWTSecret         string   `mapstructure:"JWT_SECRET"`
	JWTExpire         string   `mapstructure:"JWT_EXPIRE"`
	ServerURL         string   `mapstructure:"SERVER_URL"`
	KeepAliveInterval string   `mapstructure:"KEEPALIVE_INTERVAL"`
	UploadDir         string   `mapstructure:"UPLOAD_DIR"`
	MaxUploadSize     string   `mapstructure:"MAX_UPLOAD_SIZE"`
	BodyLimit         string   `mapstructure:"BODY_LIMIT"`
	GeminiAPIKey      string   `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string   `mapstructure:"GEMINI_MODEL"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
}

// devJWTSecret is only accepted when ENV=development.
const devJWTSecret = "sympto-development-secret"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("INFERENCE_URL", "http://localhost:8000")
	v.SetDefault("INFERENCE_TIMEOUT", "30s")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("JWT_EXPIRE", "7d")
	v.SetDefault("KEEPALIVE_INTERVAL", "12m")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", "10M")
	v.SetDefault("BODY_LIMIT", "50M")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"INFERENCE_URL", "INFERENCE_TIMEOUT", "FRONTEND_URL",
		"JWT_SECRET", "JWT_EXPIRE", "SERVER_URL", "KEEPALIVE_INTERVAL",
		"UPLOAD_DIR", "MAX_UPLOAD_SIZE", "BODY_LIMIT",
		"GEMINI_API_KEY", "GEMINI_MODEL", "REDIS_URL",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("FRONTEND_URL"); origins != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// JWT secret of at least 32 bytes is required; every duration and size option
// must parse.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be \"development\", \"production\" or \"test\", got %q", c.Env)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development, got %d", len(c.JWTSecret))
	}
	if c.InferenceURL == "" {
		return fmt.Errorf("INFERENCE_URL is required")
	}
	if _, err := ParseDuration(c.JWTExpire); err != nil {
		return fmt.Errorf("JWT_EXPIRE: %w", err)
	}
	if _, err := ParseDuration(c.InferenceTimeout); err != nil {
		return fmt.Errorf("INFERENCE_TIMEOUT: %w", err)
	}
	if _, err := ParseDuration(c.KeepAliveInterval); err != nil {
		return fmt.Errorf("KEEPALIVE_INTERVAL: %w", err)
	}
	if _, err := ParseSize(c.MaxUploadSize); err != nil {
		return fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	if _, err := ParseSize(c.BodyLimit); err != nil {
		return fmt.Errorf("BODY_LIMIT: %w", err)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

func (c *Config) TokenTTL() time.Duration {
	d, _ := ParseDuration(c.JWTExpire)
	return d
}

func (c *Config) ForwardTimeout() time.Duration {
	d, _ := ParseDuration(c.InferenceTimeout)
	return d
}

func (c *Config) KeepAlive() time.Duration {
	d, _ := ParseDuration(c.KeepAliveInterval)
	return d
}

func (c *Config) UploadLimit() int64 {
	n, _ := ParseSize(c.MaxUploadSize)
	return n
}

func (c *Config) JSONBodyLimit() int64 {
	n, _ := ParseSize(c.BodyLimit)
	return n
}

// ParseDuration accepts Go durations ("30s", "12m") and whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// ParseSize parses a human-readable size string ("10M", "512K", "1G", or a
// bare byte count) into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n * multiplier, nil
}
