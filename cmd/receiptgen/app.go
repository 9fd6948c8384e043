package main

import (
	"context"
	"fmt"

	"receiptgen/internal/config"
	"receiptgen/internal/content"
	"receiptgen/internal/logging"
	"receiptgen/internal/render"
	"receiptgen/internal/settings"
	"receiptgen/internal/store"
)

// components are the pieces shared by serve, render and bulk.
type components struct {
	store     *store.Store
	content   content.Provider
	templates *render.Templates
	browser   *render.Browser
	settings  settings.Settings
}

func openComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}
	c := &components{store: st}

	c.settings, err = settings.Load(ctx, st)
	if err != nil {
		logging.BootWarn("using default settings: %v", err)
	}

	c.content, err = content.New(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	c.templates, err = render.NewTemplates(cfg.Render.TemplateDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load receipt template: %w", err)
	}
	c.browser = render.NewBrowser(render.OptionsFromConfig(cfg.Render), c.templates)
	return c, nil
}

func (c *components) Close() {
	if err := c.browser.Close(); err != nil {
		logging.BootWarn("closing browser: %v", err)
	}
	if err := c.store.Close(); err != nil {
		logging.BootWarn("closing store: %v", err)
	}
}
