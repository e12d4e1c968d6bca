package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Discord Bot
	DiscordToken string `koanf:"discord_token"`

	// Discord OAuth2
	DiscordClientID     string `koanf:"discord_client_id"`
	DiscordClientSecret string `koanf:"discord_client_secret"`
	DiscordRedirectURI  string `koanf:"discord_redirect_uri"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Web Server
	WebBind           string `koanf:"web_bind"`
	WebUIBaseURL      string `koanf:"-"`
	PublicFrontendURL string `koanf:"public_frontend_url"`

	// Session
	JWTSecret string `koanf:"jwt_secret"`

	LogLevel string `koanf:"log_level"`

	// Wizard
	SessionBackend        string `koanf:"session_backend"`
	RedisURL              string `koanf:"redis_url"`
	PositionOrder         string `koanf:"position_order"`
	RequireFullAllocation bool   `koanf:"require_full_allocation"`
	EntryAllowlist        string `koanf:"entry_allowlist"`
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

func defaults() Config {
	return Config{
		WebBind:            "0.0.0.0:3000",
		DiscordRedirectURI: "http://localhost:3000/api/auth/callback",
		JWTSecret:          "dev-only-change-me",
		LogLevel:           "info",
		SessionBackend:     BackendPostgres,
		PositionOrder:      "asc",
	}
}

// Load layers defaults, the YAML file named by CONFIG_FILE (if any) and the
// environment, in that order of precedence.
func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// DISCORD_TOKEN -> discord_token
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	// Extract base URL from redirect URI
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)
	if cfg.PublicFrontendURL == "" {
		cfg.PublicFrontendURL = cfg.WebUIBaseURL
	}
	cfg.PublicFrontendURL = strings.TrimRight(cfg.PublicFrontendURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.SessionBackend {
	case BackendPostgres, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.PositionOrder {
	case "asc", "desc":
	default:
		return fmt.Errorf("invalid POSITION_ORDER %q", c.PositionOrder)
	}
	return nil
}

// OAuthEnabled reports whether the web login can be offered.
func (c *Config) OAuthEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != ""
}

// AllowList returns the ENTRY_ALLOWLIST entries.
func (c *Config) AllowList() []string {
	var out []string
	for _, v := range strings.Split(c.EntryAllowlist, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
