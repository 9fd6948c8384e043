package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"receiptgen/internal/config"
	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// ReceiptSelector identifies the element captured by Rasterize.
const ReceiptSelector = "#receipt"

// Rasterizer renders a record to PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, rec receipt.Record) ([]byte, error)
}

// Releaser is implemented by rasterizers whose render target can be cleared
// between jobs.
type Releaser interface {
	Release(ctx context.Context) error
}

// Options configures the browser rasterizer.
type Options struct {
	ChromeBin      string
	DebuggerURL    string
	Headless       bool
	Flags          []string
	ViewportWidth  int
	ViewportHeight int
	Scale          float64
	ReadyTimeout   time.Duration
	SettleDelay    time.Duration
}

// OptionsFromConfig maps render config onto rasterizer options.
func OptionsFromConfig(rc config.RenderConfig) Options {
	return Options{
		ChromeBin:     rc.ChromeBin,
		DebuggerURL:   rc.DebuggerURL,
		Headless:      rc.Headless,
		Flags:         rc.Flags,
		ViewportWidth: rc.GetViewportWidth(),
		Scale:         rc.GetScale(),
		ReadyTimeout:  rc.GetReadyTimeout(),
		SettleDelay:   rc.GetSettleDelay(),
	}
}

func (o Options) viewportHeight() int {
	if o.ViewportHeight <= 0 {
		return 1400
	}
	return o.ViewportHeight
}

// Browser owns one Chrome instance and a single off-screen page that every
// rasterization reuses. Calls are serialized.
type Browser struct {
	opts      Options
	templates *Templates
	log       *logging.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewBrowser creates a rasterizer. The browser is started lazily on the
// first Rasterize call, or explicitly with Start.
func NewBrowser(opts Options, templates *Templates) *Browser {
	return &Browser{
		opts:      opts,
		templates: templates,
		log:       logging.Get(logging.CategoryRender),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked(ctx)
}

func (b *Browser) startLocked(ctx context.Context) error {
	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return nil
		}
		b.log.Warn("stale browser connection detected, reconnecting")
		b.closeLocked()
	}

	controlURL := b.opts.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(b.opts.Headless)
		if b.opts.ChromeBin != "" {
			l = l.Bin(b.opts.ChromeBin)
		}
		for _, raw := range b.opts.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		b.launcher = l
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		b.closeLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	b.log.Info("browser connected")
	return nil
}

// ensurePageLocked returns the shared render target, creating it on first use.
func (b *Browser) ensurePageLocked(ctx context.Context) (*rod.Page, error) {
	if err := b.startLocked(ctx); err != nil {
		return nil, err
	}
	if b.page != nil {
		return b.page, nil
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.ViewportWidth,
		Height:            b.opts.viewportHeight(),
		DeviceScaleFactor: b.opts.Scale,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	transparent := 0.0
	if err := (proto.EmulationSetDefaultBackgroundColorOverride{
		Color: &proto.DOMRGBA{R: 0, G: 0, B: 0, A: &transparent},
	}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set transparent background: %w", err)
	}

	b.page = page
	return page, nil
}

// Rasterize loads the receipt document into the shared page, waits for it to
// settle and captures the receipt element as PNG.
func (b *Browser) Rasterize(ctx context.Context, rec receipt.Record) ([]byte, error) {
	doc, err := b.templates.Page(rec)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.ensurePageLocked(ctx)
	if err != nil {
		return nil, err
	}

	png, err := b.captureLocked(ctx, page, string(doc))
	if err != nil {
		// Drop the page so the next call starts from a fresh target.
		_ = page.Close()
		b.page = nil
		return nil, fmt.Errorf("rasterize %s: %w", rec.ReceiptNumber, err)
	}
	b.log.Debug("rasterized %s (%d bytes)", rec.ReceiptNumber, len(png))
	return png, nil
}

// loadLocked replaces the page document with doc after clearing the ready
// signal of the previous one.
func (b *Browser) loadLocked(ctx context.Context, page *rod.Page, doc string) error {
	p := page.Context(ctx)
	if _, err := p.Eval(resetReadyExpression); err != nil {
		return fmt.Errorf("reset ready signal: %w", err)
	}
	if err := p.SetDocumentContent(doc); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	return nil
}

func (b *Browser) captureLocked(ctx context.Context, page *rod.Page, doc string) ([]byte, error) {
	if err := b.loadLocked(ctx, page, doc); err != nil {
		return nil, err
	}
	p := page.Context(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, b.opts.ReadyTimeout)
	err := page.Context(waitCtx).Wait(rod.Eval(ReadyExpression))
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Debug("ready signal missing after %s, settling for %s", b.opts.ReadyTimeout, b.opts.SettleDelay)
		select {
		case <-time.After(b.opts.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	el, err := p.Element(ReceiptSelector)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", ReceiptSelector, err)
	}
	png, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	if len(png) == 0 {
		return nil, errors.New("screenshot returned no data")
	}
	return png, nil
}

// Release navigates the shared page to about:blank, dropping the last
// receipt document and its window state. The browser stays up. A page that
// cannot be navigated is closed and recreated on next use.
func (b *Browser) Release(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return nil
	}
	p := b.page.Context(ctx)
	if err := p.Navigate("about:blank"); err != nil {
		_ = b.page.Close()
		b.page = nil
		return fmt.Errorf("release render target: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		b.log.Debug("about:blank load wait: %v", err)
	}
	b.log.Debug("render target released")
	return nil
}

// Close shuts the page and the browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Browser) closeLocked() error {
	var err error
	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}
