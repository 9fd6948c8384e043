package config

import "time"

// RenderConfig configures the receipt template and the headless browser
// that rasterizes it.
type RenderConfig struct {
	// Chrome binary; empty lets rod download/locate one.
	ChromeBin string `yaml:"chrome_bin"`
	// Connect to an already running Chrome instead of launching one.
	DebuggerURL string `yaml:"debugger_url"`
	Headless    bool   `yaml:"headless"`
	// Extra launch flags, e.g. "--no-sandbox".
	Flags []string `yaml:"flags"`

	// Receipt surface width in CSS pixels.
	ViewportWidth int `yaml:"viewport_width"`
	// Device scale factor used for screenshots.
	Scale float64 `yaml:"scale"`

	// How long to wait for the page's ready signal.
	ReadyTimeout string `yaml:"ready_timeout"`
	// Fixed wait used when the ready signal never arrives.
	SettleDelay string `yaml:"settle_delay"`

	// Optional directory holding receipt.html.tmpl; watched for changes.
	TemplateDir string `yaml:"template_dir"`
}

// DefaultRenderConfig returns sensible defaults.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Headless:      true,
		ViewportWidth: 896,
		Scale:         3,
		ReadyTimeout:  "5s",
		SettleDelay:   "500ms",
	}
}

// GetReadyTimeout returns the ready-signal timeout.
func (c RenderConfig) GetReadyTimeout() time.Duration {
	return parseDuration(c.ReadyTimeout, 5*time.Second)
}

// GetSettleDelay returns the fallback settling delay.
func (c RenderConfig) GetSettleDelay() time.Duration {
	return parseDuration(c.SettleDelay, 500*time.Millisecond)
}

// GetViewportWidth returns the viewport width.
func (c RenderConfig) GetViewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 896
	}
	return c.ViewportWidth
}

// GetScale returns the screenshot scale factor.
func (c RenderConfig) GetScale() float64 {
	if c.Scale <= 0 {
		return 3
	}
	return c.Scale
}
