package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSettings = errors.New("JWT_KEY, JWT_ISSUER and JWT_AUDIENCE must all be set")

type Config struct {
	Env   string
	Port  int
	DBURL string

	// Storage selects the account directory backend: "postgres" or "memory".
	Storage string
	// ResetStore selects the reset request backend: "postgres" or "redis".
	ResetStore string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTKey      string
	JWTIssuer   string
	JWTAudience string

	BcryptCost int

	// Zero means reset requests never expire.
	ResetTokenTTL      time.Duration
	ResetSweepInterval time.Duration

	ProfileCacheTTL time.Duration

	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
	AdminRole      string

	CORSAllowedOrigins []string
	OTLPEndpoint       string
}

// Load reads the process configuration from the environment. A .env file in
// the working directory is honoured when present. Signing settings are
// mandatory: the service refuses to start without them.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		Storage:    strings.ToLower(getEnv("STORAGE", "postgres")),
		ResetStore: strings.ToLower(getEnv("RESET_STORE", "postgres")),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTKey:      os.Getenv("JWT_KEY"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		BcryptCost: getEnvInt("BCRYPT_COST", 0),

		ResetTokenTTL:      getEnvDuration("RESET_TOKEN_TTL", 0),
		ResetSweepInterval: getEnvDuration("RESET_SWEEP_INTERVAL", time.Minute),

		ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL", 5*time.Second),

		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminFirstName: getEnv("ADMIN_FIRST_NAME", "Store"),
		AdminLastName:  getEnv("ADMIN_LAST_NAME", "Admin"),
		AdminRole:      getEnv("ADMIN_ROLE", "admin"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTKey) == "" || strings.TrimSpace(c.JWTIssuer) == "" || strings.TrimSpace(c.JWTAudience) == "" {
		return ErrMissingJWTSettings
	}

	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORAGE %q", c.Storage)
	}

	switch c.ResetStore {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unsupported RESET_STORE %q", c.ResetStore)
	}

	if c.ResetTokenTTL < 0 {
		return errors.New("RESET_TOKEN_TTL must not be negative")
	}

	return nil
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "beststore")
	pass := getEnv("DB_PASSWORD", "beststore")
	name := getEnv("DB_NAME", "beststore")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
