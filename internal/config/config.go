package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// RateLimitRule はスコープごとの固定ウィンドウ制限値を表す。
type RateLimitRule struct {
	Points int
	Window time.Duration
}

func (r RateLimitRule) String() string {
	return fmt.Sprintf("%d/%s", r.Points, r.Window)
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret            string
	JWTExpiresIn         time.Duration
	SessionLookupTimeout time.Duration

	// Server
	ServerPort string
	BaseURL    string
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitAPI           RateLimitRule
	RateLimitAuth          RateLimitRule
	RateLimitSitemap       RateLimitRule
	RateLimitSweepInterval time.Duration
	RedisURL               string

	// Import
	ImportRate     int
	PushgatewayURL string

	// Admin bootstrap
	AdminEmail    string
	AdminPassword string
}

// IsProduction は本番環境として動作する場合にtrueを返す。
func (c *Config) IsProduction() bool {
	return c.Environment != EnvDevelopment
}

// RateLimits はスコープ名をキーとした制限値を返す。
func (c *Config) RateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"api":     c.RateLimitAPI,
		"auth":    c.RateLimitAuth,
		"sitemap": c.RateLimitSitemap,
	}
}

// LoadDotEnv は.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	var invalid []string

	cfg.Environment = strings.ToLower(getEnvString("APP_ENV", EnvProduction))
	if cfg.Environment != EnvProduction && cfg.Environment != EnvDevelopment {
		invalid = append(invalid, "APP_ENV")
	}

	var err error
	if cfg.RateLimitAPI, err = getEnvRateLimit("RATE_LIMIT_API", RateLimitRule{Points: 100, Window: 60 * time.Second}); err != nil {
		invalid = append(invalid, "RATE_LIMIT_API")
	}
	if cfg.RateLimitAuth, err = getEnvRateLimit("RATE_LIMIT_AUTH", RateLimitRule{Points: 5, Window: 900 * time.Second}); err != nil {
		invalid = append(invalid, "RATE_LIMIT_AUTH")
	}
	if cfg.RateLimitSitemap, err = getEnvRateLimit("RATE_LIMIT_SITEMAP", RateLimitRule{Points: 10, Window: 60 * time.Second}); err != nil {
		invalid = append(invalid, "RATE_LIMIT_SITEMAP")
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables have invalid values: %v", invalid)
	}

	// Optional fields with defaults
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.JWTExpiresIn = getEnvDuration("JWT_EXPIRES_IN", 168*time.Hour)
	cfg.SessionLookupTimeout = getEnvDuration("SESSION_LOOKUP_TIMEOUT", 2*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", strings.TrimRight(cfg.BaseURL, "/"))
	cfg.RateLimitSweepInterval = getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ImportRate = getEnvInt("IMPORT_RATE", 50)
	cfg.PushgatewayURL = getEnvString("PUSHGATEWAY_URL", "")
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "")
	cfg.AdminPassword = getEnvString("ADMIN_PASSWORD", "")

	return cfg, nil
}

// ParseRateLimit は"100/60s"形式の文字列を解析する。
// ウィンドウに単位がない場合は秒として扱う。
func ParseRateLimit(s string) (RateLimitRule, error) {
	points, window, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateLimitRule{}, fmt.Errorf("rate limit %q: expected points/window", s)
	}

	n, err := strconv.Atoi(points)
	if err != nil || n <= 0 {
		return RateLimitRule{}, fmt.Errorf("rate limit %q: points must be a positive integer", s)
	}

	var d time.Duration
	if secs, err := strconv.Atoi(window); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(window); err != nil {
		return RateLimitRule{}, fmt.Errorf("rate limit %q: %w", s, err)
	}
	if d <= 0 {
		return RateLimitRule{}, fmt.Errorf("rate limit %q: window must be positive", s)
	}

	return RateLimitRule{Points: n, Window: d}, nil
}

func getEnvRateLimit(key string, defaultVal RateLimitRule) (RateLimitRule, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return ParseRateLimit(v)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
