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

type Env struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE_URL"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBPort     string `mapstructure:"DB_PORT"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`
	RedisPass string `mapstructure:"REDIS_PASSWORD"`
	RedisDB   int    `mapstructure:"REDIS_DB"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	JWTIssuer  string        `mapstructure:"JWT_ISSUER"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	DefaultWebsiteID    uint `mapstructure:"DEFAULT_WEBSITE_ID"`
	RequireConfirmation bool `mapstructure:"REQUIRE_CONFIRMATION"`
	PasswordMinLength   int  `mapstructure:"PASSWORD_MIN_LENGTH"`

	LoginMaxAttempts         int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginWindow              time.Duration `mapstructure:"LOGIN_WINDOW"`
	PasswordResetMaxAttempts int           `mapstructure:"PASSWORD_RESET_MAX_ATTEMPTS"`
	PasswordResetWindow      time.Duration `mapstructure:"PASSWORD_RESET_WINDOW"`

	LockoutThreshold int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration  time.Duration `mapstructure:"LOCKOUT_DURATION"`
	ResetTokenTTL    time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	MagicLinkTTL     time.Duration `mapstructure:"MAGIC_LINK_TTL"`
	RememberMeTTL    time.Duration `mapstructure:"REMEMBER_ME_TTL"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleUserInfoURL  string `mapstructure:"GOOGLE_USERINFO_URL"`
	AppleClientID      string `mapstructure:"APPLE_CLIENT_ID"`
	AppleClientSecret  string `mapstructure:"APPLE_CLIENT_SECRET"`
	AppleUserInfoURL   string `mapstructure:"APPLE_USERINFO_URL"`

	KafkaBrokers     []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopicPrefix string   `mapstructure:"KAFKA_TOPIC_PREFIX"`
}

var keys = []string{
	"APP_ENV", "PORT", "BASE_URL",
	"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"JWT_SECRET", "JWT_ISSUER", "SESSION_TTL",
	"DEFAULT_WEBSITE_ID", "REQUIRE_CONFIRMATION", "PASSWORD_MIN_LENGTH",
	"LOGIN_MAX_ATTEMPTS", "LOGIN_WINDOW", "PASSWORD_RESET_MAX_ATTEMPTS", "PASSWORD_RESET_WINDOW",
	"LOCKOUT_THRESHOLD", "LOCKOUT_DURATION", "RESET_TOKEN_TTL", "MAGIC_LINK_TTL", "REMEMBER_ME_TTL",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_USERINFO_URL",
	"APPLE_CLIENT_ID", "APPLE_CLIENT_SECRET", "APPLE_USERINFO_URL",
	"KAFKA_BROKERS", "KAFKA_TOPIC_PREFIX",
}

// LoadEnv reads .env (if present) into the process environment and then
// resolves every setting from the environment on top of the defaults.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	var env Env
	if err := v.Unmarshal(&env); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	env.KafkaBrokers = splitList(env.KafkaBrokers)

	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("BASE_URL", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "customers")
	v.SetDefault("DB_PORT", "5432")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ISSUER", "customer-auth-service")
	v.SetDefault("SESSION_TTL", "24h")

	v.SetDefault("DEFAULT_WEBSITE_ID", 1)
	v.SetDefault("REQUIRE_CONFIRMATION", false)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)

	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_WINDOW", "15m")
	v.SetDefault("PASSWORD_RESET_MAX_ATTEMPTS", 3)
	v.SetDefault("PASSWORD_RESET_WINDOW", "1h")

	v.SetDefault("LOCKOUT_THRESHOLD", 10)
	v.SetDefault("LOCKOUT_DURATION", "10m")
	v.SetDefault("RESET_TOKEN_TTL", "2h")
	v.SetDefault("MAGIC_LINK_TTL", "15m")
	v.SetDefault("REMEMBER_ME_TTL", "720h")

	v.SetDefault("GOOGLE_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo")
	v.SetDefault("APPLE_USERINFO_URL", "")

	v.SetDefault("KAFKA_BROKERS", []string{})
	v.SetDefault("KAFKA_TOPIC_PREFIX", "customer")
}

func (e *Env) validate() error {
	if e.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if e.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", e.LoginMaxAttempts)
	}
	if e.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_WINDOW must be positive, got %s", e.LoginWindow)
	}
	return nil
}

func (e *Env) IsProduction() bool {
	return e.AppEnv == "production"
}

// splitList accepts both a real list and a single comma separated value from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
