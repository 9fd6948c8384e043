package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all receiptgen configuration.
type Config struct {
	Name string `yaml:"name"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Generative AI content provider
	Content ContentConfig `yaml:"content"`

	// Receipt template + browser rasterizer
	Render RenderConfig `yaml:"render"`

	// Bulk export pipeline
	Bulk BulkConfig `yaml:"bulk"`

	// Telegram bot used by the access gate
	Telegram TelegramConfig `yaml:"telegram"`

	// Access gate / sessions
	Access AccessConfig `yaml:"access"`

	// SQLite store for settings and sessions
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// Base URL of a running receiptgen server, used by CLI clients
	// (login, members) to reach the membership endpoints.
	PublicURL string `yaml:"public_url"`
}

// ContentConfig configures the Gemini/Imagen content provider.
type ContentConfig struct {
	APIKey         string `yaml:"api_key"`
	TextModel      string `yaml:"text_model"`
	ImageModel     string `yaml:"image_model"`
	AspectRatio    string `yaml:"aspect_ratio"`
	Timeout        string `yaml:"timeout"`
	SignatureMaxPx int    `yaml:"signature_max_px"`
}

// BulkConfig configures the bulk export pipeline.
type BulkConfig struct {
	MaxNames int `yaml:"max_names"`
}

// TelegramConfig configures the Telegram bot integration.
type TelegramConfig struct {
	BotToken     string `yaml:"bot_token"`
	BotUsername  string `yaml:"bot_username"`
	GroupChatID  string `yaml:"group_chat_id"`
	APIBase      string `yaml:"api_base"`
	Timeout      string `yaml:"timeout"`
	NotifyLogins bool   `yaml:"notify_logins"`
}

// AccessConfig configures the access gate.
type AccessConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
	// Emergency access is disabled unless both fields are set. The password
	// is stored as a bcrypt hash, never in clear text.
	EmergencyUsername     string `yaml:"emergency_username"`
	EmergencyPasswordHash string `yaml:"emergency_password_hash"`
	// Where CLI clients keep their session token.
	TokenFile string `yaml:"token_file"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DatabasePath     string `yaml:"database_path"`
	SettingsDebounce string `yaml:"settings_debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "receiptgen",

		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     "30s",
			WriteTimeout:    "10m",
			ShutdownTimeout: "15s",
			PublicURL:       "http://localhost:3000",
		},

		Content: ContentConfig{
			TextModel:      "gemini-2.5-flash",
			ImageModel:     "imagen-4.0-generate-001",
			AspectRatio:    "4:3",
			Timeout:        "60s",
			SignatureMaxPx: 240,
		},

		Render: DefaultRenderConfig(),

		Bulk: BulkConfig{
			MaxNames: 500,
		},

		Telegram: TelegramConfig{
			APIBase: "https://api.telegram.org",
			Timeout: "15s",
		},

		Access: AccessConfig{
			SessionTTL: "24h",
			TokenFile:  ".receiptgen/session.jwt",
		},

		Store: StoreConfig{
			DatabasePath:     ".receiptgen/receiptgen.db",
			SettingsDebounce: "500ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// The original deployment exported the Gemini key as API_KEY.
	if key := os.Getenv("API_KEY"); key != "" {
		c.Content.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Content.APIKey = key
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_USERNAME"); v != "" {
		c.Telegram.BotUsername = v
	}
	if v := os.Getenv("TELEGRAM_GROUP_CHAT_ID"); v != "" {
		c.Telegram.GroupChatID = v
	}

	if v := os.Getenv("RECEIPTGEN_JWT_SECRET"); v != "" {
		c.Access.JWTSecret = v
	}
	if v := os.Getenv("RECEIPTGEN_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("RECEIPTGEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RECEIPTGEN_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("CHROME_BIN"); v != "" {
		c.Render.ChromeBin = v
	}
}

// Validate validates the configuration needed to serve.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Access.JWTSecret == "" {
		return fmt.Errorf("access jwt secret not configured (set RECEIPTGEN_JWT_SECRET or access.jwt_secret)")
	}
	if len(c.Access.JWTSecret) < 16 {
		return fmt.Errorf("access jwt secret must be at least 16 bytes")
	}
	if (c.Access.EmergencyUsername == "") != (c.Access.EmergencyPasswordHash == "") {
		return fmt.Errorf("access.emergency_username and access.emergency_password_hash must be set together")
	}
	if c.Bulk.MaxNames <= 0 {
		return fmt.Errorf("bulk.max_names must be positive")
	}
	return nil
}

// TelegramConfigured reports whether the bot integration has what it needs.
func (c *Config) TelegramConfigured() bool {
	return c.Telegram.BotToken != "" && c.Telegram.GroupChatID != ""
}

// EmergencyAccessEnabled reports whether the emergency credential is active.
func (c *Config) EmergencyAccessEnabled() bool {
	return c.Access.EmergencyUsername != "" && c.Access.EmergencyPasswordHash != ""
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout. Bulk exports stream a
// whole archive in one response, so this is generous.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 10*time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 15*time.Second)
}

// GetContentTimeout returns the per-call timeout for AI requests.
func (c *Config) GetContentTimeout() time.Duration {
	return parseDuration(c.Content.Timeout, 60*time.Second)
}

// GetTelegramTimeout returns the Bot API request timeout.
func (c *Config) GetTelegramTimeout() time.Duration {
	return parseDuration(c.Telegram.Timeout, 15*time.Second)
}

// GetSessionTTL returns the session validity window.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Access.SessionTTL, 24*time.Hour)
}

// GetSettingsDebounce returns the settings write debounce delay.
func (c *Config) GetSettingsDebounce() time.Duration {
	return parseDuration(c.Store.SettingsDebounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
