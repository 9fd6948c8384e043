package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_ContentKey(t *testing.T) {
	t.Run("API_KEY sets the Gemini key", func(t *testing.T) {
		t.Setenv("API_KEY", "legacy-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "legacy-key", cfg.Content.APIKey)
	})

	t.Run("GEMINI_API_KEY wins over API_KEY", func(t *testing.T) {
		t.Setenv("API_KEY", "legacy-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Content.APIKey)
	})

	t.Run("unset env keeps file value", func(t *testing.T) {
		t.Setenv("API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := &Config{Content: ContentConfig{APIKey: "from-file"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.Content.APIKey)
	})
}

func TestEnvOverrides_Telegram(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_BOT_USERNAME", "kiit_receipts_bot")
	t.Setenv("TELEGRAM_GROUP_CHAT_ID", "-100987")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "kiit_receipts_bot", cfg.Telegram.BotUsername)
	assert.Equal(t, "-100987", cfg.Telegram.GroupChatID)
	assert.True(t, cfg.TelegramConfigured())
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Setenv("RECEIPTGEN_DB", "/var/lib/receiptgen/db.sqlite")
	t.Setenv("RECEIPTGEN_ADDR", ":8088")
	t.Setenv("RECEIPTGEN_URL", "https://receipts.example.org")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("RECEIPTGEN_JWT_SECRET", "s3cr3t-s3cr3t-s3cr3t")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/var/lib/receiptgen/db.sqlite", cfg.Store.DatabasePath)
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, "https://receipts.example.org", cfg.Server.PublicURL)
	assert.Equal(t, "/usr/bin/chromium", cfg.Render.ChromeBin)
	assert.Equal(t, "s3cr3t-s3cr3t-s3cr3t", cfg.Access.JWTSecret)
}

func TestLoggingConfig_Categories(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"store": false}}
	assert.False(t, lc.IsCategoryEnabled("store"))
	assert.True(t, lc.IsCategoryEnabled("bulk"))

	opts := lc.Options()
	assert.Equal(t, lc.Categories, opts.Categories)
}
