package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort            = "8080"
	DefaultAssetRoot       = "assets"
	DefaultAPIBase         = "https://discord.com/api/v10"
	DefaultCDNBase         = "https://cdn.discordapp.com"
	DefaultMemberPageSize  = 1000
	DefaultRateLimitRetry  = 3
	DefaultDownloadTries   = 3
	DefaultDownloadBackoff = time.Second
	DefaultRequestDelay    = 200 * time.Millisecond
	DefaultStaleRunAfter   = 6 * time.Hour

	// MemoryDatabaseURL selects the in-process registry instead of Postgres
	MemoryDatabaseURL = "memory://"
)

// Config holds runtime settings read from the environment
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	AssetRoot           string
	GuildID             string
	BotToken            string
	APIBase             string
	CDNBase             string
	MemberPageSize      int
	RateLimitRetries    int
	DownloadMaxAttempts int
	DownloadBaseDelay   time.Duration
	RequestDelay        time.Duration
	StaleRunAfter       time.Duration
}

// LoadDotEnv loads .env in development. In production, variables should be set directly.
func LoadDotEnv() {
	if os.Getenv("ENV") == "production" {
		return
	}
	envPath := ".env"
	// Overload so .env values win over stale shell exports
	if err := godotenv.Overload(envPath); err != nil {
		log.Printf("⚠️  .env file not found at %s, using system environment variables", envPath)
		return
	}
	log.Printf("✓ Loaded environment variables from %s", envPath)
}

// Load builds a Config from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env:       strings.TrimSpace(os.Getenv("ENV")),
		Port:      strings.TrimPrefix(strings.TrimSpace(os.Getenv("PORT")), ":"),
		AssetRoot: strings.TrimSpace(os.Getenv("ASSET_ROOT")),
		GuildID:   strings.TrimSpace(os.Getenv("GUILD_ID")),
		BotToken:  strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		APIBase:   strings.TrimRight(strings.TrimSpace(os.Getenv("DISCORD_API_BASE")), "/"),
		CDNBase:   strings.TrimRight(strings.TrimSpace(os.Getenv("DISCORD_CDN_BASE")), "/"),
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.AssetRoot == "" {
		cfg.AssetRoot = DefaultAssetRoot
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.CDNBase == "" {
		cfg.CDNBase = DefaultCDNBase
	}

	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = dbURL

	if cfg.MemberPageSize, err = intEnv("MEMBER_PAGE_SIZE", DefaultMemberPageSize); err != nil {
		return nil, err
	}
	if cfg.MemberPageSize < 1 || cfg.MemberPageSize > DefaultMemberPageSize {
		return nil, fmt.Errorf("MEMBER_PAGE_SIZE must be between 1 and %d, got %d", DefaultMemberPageSize, cfg.MemberPageSize)
	}
	if cfg.RateLimitRetries, err = intEnv("RATE_LIMIT_RETRIES", DefaultRateLimitRetry); err != nil {
		return nil, err
	}
	if cfg.DownloadMaxAttempts, err = intEnv("DOWNLOAD_MAX_ATTEMPTS", DefaultDownloadTries); err != nil {
		return nil, err
	}
	if cfg.DownloadBaseDelay, err = durationEnv("DOWNLOAD_BASE_DELAY", DefaultDownloadBackoff); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = durationEnv("REQUEST_DELAY", DefaultRequestDelay); err != nil {
		return nil, err
	}
	if cfg.StaleRunAfter, err = durationEnv("STALE_RUN_AFTER", DefaultStaleRunAfter); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsesMemoryStore reports whether the registry should live in process memory
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

// databaseURL returns DATABASE_URL or builds a DSN from the individual DB_* variables
func databaseURL() (string, error) {
	connStr := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if connStr != "" {
		return connStr, nil
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	sslmode := os.Getenv("DB_SSLMODE")

	if host == "" || user == "" || dbname == "" {
		return "", fmt.Errorf("database connection variables not set. Set DATABASE_URL or DB_HOST, DB_USER, DB_NAME")
	}
	if port == "" {
		port = "5432"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode), nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, value)
	}
	return value, nil
}

// durationEnv accepts Go durations ("250ms") or plain milliseconds ("250")
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("%s must not be negative, got %d", key, ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, value)
	}
	return value, nil
}
