package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port             string
	LogLevel         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string

	DatabaseURL   string
	DBRLSRole     string
	DBAutoMigrate bool

	SupabaseURL     string
	SupabaseAnonKey string
	JWTSecret       string
	JWTAudience     string
	AuthMode        string
	AuthTimeout     time.Duration
}

// Load reads the environment. Callers are expected to have loaded any .env
// file beforehand.
func Load() (Config, error) {
	cfg := Config{
		Port:             envOrDefault("PORT", "8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		MetricsNamespace: envOrDefault("METRICS_NAMESPACE", "voicethoughts"),
		AllowedOrigins:   splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		DBRLSRole:        envOrDefault("DB_RLS_ROLE", "authenticated"),
		SupabaseURL:      strings.TrimRight(trimmed("SUPABASE_URL"), "/"),
		SupabaseAnonKey:  trimmed("SUPABASE_ANON_KEY"),
		JWTSecret:        trimmed("SUPABASE_JWT_SECRET"),
		JWTAudience:      envOrDefault("SUPABASE_JWT_AUDIENCE", "authenticated"),
		AuthMode:         strings.ToLower(trimmed("AUTH_MODE")),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AuthTimeout, err = durationFromEnv("AUTH_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DBAutoMigrate, err = boolFromEnv("DB_AUTO_MIGRATE", false); err != nil {
		return Config{}, err
	}

	cfg.DatabaseURL = trimmed("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = databaseURLFromParts()
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database is not configured: set DATABASE_URL or user/password/host/port/dbname")
	}

	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeRemote
		if cfg.JWTSecret != "" {
			cfg.AuthMode = AuthModeJWT
		}
	}
	switch cfg.AuthMode {
	case AuthModeJWT:
		if cfg.JWTSecret == "" {
			return Config{}, errors.New("AUTH_MODE=jwt requires SUPABASE_JWT_SECRET")
		}
	case AuthModeRemote:
		if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
			return Config{}, errors.New("AUTH_MODE=remote requires SUPABASE_URL and SUPABASE_ANON_KEY")
		}
	default:
		return Config{}, fmt.Errorf("invalid AUTH_MODE %q: want %q or %q", cfg.AuthMode, AuthModeJWT, AuthModeRemote)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// databaseURLFromParts builds a connection string from the discrete
// Supabase variables used by the dashboard's "connection parameters".
func databaseURLFromParts() string {
	user := trimmed("user")
	host := trimmed("host")
	name := trimmed("dbname")
	if user == "" || host == "" || name == "" {
		return ""
	}
	port := envOrDefault("port", "5432")
	sslMode := envOrDefault("DB_SSLMODE", "require")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, trimmed("password")),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

func envOrDefault(key, fallback string) string {
	if v := trimmed(key); v != "" {
		return v
	}
	return fallback
}

func trimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := trimmed(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	raw := trimmed(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
