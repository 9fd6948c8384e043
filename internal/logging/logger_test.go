package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGet_NamesLoggerByCategory(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	Get(CategoryBulk).Info("rendered %d of %d", 2, 5)
	Get(CategoryRender).Debug("ready signal after %dms", 40)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "bulk", entries[0].LoggerName)
	assert.Equal(t, "rendered 2 of 5", entries[0].Message)
	assert.Equal(t, "render", entries[1].LoggerName)
}

func TestGet_CachesPerCategory(t *testing.T) {
	UseLogger(zap.NewNop())
	assert.Same(t, Get(CategoryAccess), Get(CategoryAccess))
	assert.NotSame(t, Get(CategoryAccess), Get(CategoryStore))
}

func TestWith_AddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	Get(CategoryAPI).With("request_id", "abc").Warn("slow request")

	entries := logs.FilterField(zap.String("request_id", "abc")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "slow request", entries[0].Message)
}

func TestInitialize_DisabledCategoryIsNoop(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "receiptgen.log")

	err := Initialize(Options{
		Level:      "debug",
		Format:     "json",
		File:       logPath,
		Categories: map[string]bool{"store": false},
	})
	require.NoError(t, err)
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategoryBulk))

	Get(CategoryStore).Info("hidden entry")
	Get(CategoryBulk).Info("visible entry")
	Sync()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "visible entry"))
	assert.False(t, strings.Contains(content, "hidden entry"))
}

func TestInitialize_RejectsUnknownLevel(t *testing.T) {
	err := Initialize(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestCategoryHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	API("listening on %s", ":8080")
	Bulk("wrote %s", "a.zip")
	BulkDebug("remembered %d name pairs", 3)
	Render("wrote %s", "r.png")
	RenderDebug("preview rendered for %s", "REC-1")
	Access("membership check for user %d", 7)
	Zap().Named("http").Info("raw")

	got := map[string]string{}
	for _, e := range logs.All() {
		got[e.LoggerName] += e.Level.String() + ":" + e.Message + ";"
	}
	assert.Equal(t, map[string]string{
		"api":    "info:listening on :8080;",
		"bulk":   "info:wrote a.zip;debug:remembered 3 name pairs;",
		"render": "info:wrote r.png;debug:preview rendered for REC-1;",
		"access": "info:membership check for user 7;",
		"http":   "info:raw;",
	}, got)
}
