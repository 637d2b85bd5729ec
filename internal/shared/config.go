package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix prefixes every environment variable that overrides a config value.
const EnvPrefix = "SPOTCHAT_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify" envPrefix:"SPOTIFY_"`
	Gemini   GeminiConfig   `toml:"gemini" envPrefix:"GEMINI_"`
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Store    StoreConfig    `toml:"store" envPrefix:"STORE_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DATABASE_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
}

// SpotifyConfig contains Spotify application credentials and endpoints.
//
// ClientSecret is only needed for app-scoped (client credentials) calls; user login is PKCE.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"CLIENT_SECRET"`
	CallbackURL  string `toml:"callback_url" env:"CALLBACK_URL"`
	AccountsURL  string `toml:"accounts_url" env:"ACCOUNTS_URL"`
	APIURL       string `toml:"api_url" env:"API_URL"`
	Market       string `toml:"market" env:"MARKET"`
}

// GeminiConfig contains the text generation fallback settings.
type GeminiConfig struct {
	APIKey string `toml:"api_key" env:"API_KEY"`
	Model  string `toml:"model" env:"MODEL"`
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string `toml:"base_url" env:"BASE_URL"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                  string        `toml:"host" env:"HOST"`
	Port                  int           `toml:"port" env:"PORT"`
	SessionTTL            time.Duration `toml:"session_ttl" env:"SESSION_TTL"`
	CookieSecure          bool          `toml:"cookie_secure" env:"COOKIE_SECURE"`
	TrustForwardedHeaders bool          `toml:"trust_forwarded_headers" env:"TRUST_FORWARDED_HEADERS"`
	ChatRate              float64       `toml:"chat_rate" env:"CHAT_RATE"`
	ChatBurst             int           `toml:"chat_burst" env:"CHAT_BURST"`
}

// StoreConfig selects the session and cache backend.
type StoreConfig struct {
	Type     string `toml:"type" env:"TYPE"`
	RedisURL string `toml:"redis_url" env:"REDIS_URL"`
}

// DatabaseConfig contains database connection settings for the sqlite store.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// Load builds the runtime configuration: the TOML file at path when it exists (defaults otherwise),
// then variables from a .env file, then SPOTCHAT_* environment overrides.
func Load(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		config = DefaultConfig()
	} else if err != nil {
		return nil, err
	}

	_ = godotenv.Load()

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config values with SPOTCHAT_* environment variables.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
