package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"receiptgen/internal/access"
	"receiptgen/internal/bulk"
	"receiptgen/internal/generator"
	"receiptgen/internal/logging"
	"receiptgen/internal/render"
	"receiptgen/internal/server"
	"receiptgen/internal/settings"
	"receiptgen/internal/telegram"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the receipt API: form helpers, preview, single and bulk export,
and the Telegram access gate. Runs until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	tg := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.GroupChatID, cfg.GetTelegramTimeout())
	gate, err := access.NewGate(access.GateOptionsFromConfig(cfg), tg, comps.store)
	if err != nil {
		return err
	}

	saver := settings.NewSaver(comps.store, cfg.GetSettingsDebounce())
	saver.OnSaved(func(s settings.Settings, err error) {
		if err == nil {
			logging.Get(logging.CategorySettings).Info("settings saved for %q", s.SchoolName)
		}
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := saver.Close(closeCtx); err != nil {
			logging.BootWarn("final settings save failed: %v", err)
		}
	}()

	pipeline := bulk.New(comps.content, comps.browser, generator.New(), bulk.Options{MaxNames: cfg.Bulk.MaxNames})
	srv := server.New(cfg, server.Deps{
		Gate:      gate,
		Telegram:  tg,
		Content:   comps.content,
		Raster:    comps.browser,
		Templates: comps.templates,
		Pipeline:  pipeline,
		Generator: generator.New(),
		Saver:     saver,
		Settings:  comps.settings,
		Store:     comps.store,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Nothing is running yet if the watcher fails.
	watcher, err := startTemplateWatcher(gctx, comps.templates)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n, err := comps.store.PruneRevoked(gctx); err != nil {
					logging.Get(logging.CategoryStore).Warn("prune revoked sessions: %v", err)
				} else if n > 0 {
					logging.Get(logging.CategoryStore).Debug("pruned %d expired revocations", n)
				}
			}
		}
	})

	logging.Boot("serving on %s (access mode %s)", cfg.Server.Addr, gate.Mode())
	return g.Wait()
}

// startTemplateWatcher reloads the receipt template on change when a template
// directory is configured. It returns nil when there is nothing to watch.
func startTemplateWatcher(ctx context.Context, templates *render.Templates) (*render.TemplateWatcher, error) {
	dir := templates.Dir()
	if dir == "" {
		return nil, nil
	}
	watcher, err := render.NewTemplateWatcher(templates, 0)
	if err != nil {
		return nil, fmt.Errorf("watch templates: %w", err)
	}
	watcher.OnReload(func(err error) {
		if err != nil {
			logging.Get(logging.CategoryRender).Error("template reload failed, keeping previous: %v", err)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("watch templates: %w", err)
	}
	logging.Boot("watching %s for template changes", dir)
	return watcher, nil
}
