package render

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"receiptgen/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// TemplateWatcher reloads Templates when the template file in its override
// directory changes. Bursts of events are collapsed into one reload.
type TemplateWatcher struct {
	templates *Templates
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	log       *logging.Logger

	mu       sync.Mutex
	pending  time.Time
	running  bool
	reloads  int
	stopCh   chan struct{}
	doneCh   chan struct{}
	onReload func(error)
}

// NewTemplateWatcher watches the directory templates was loaded from.
func NewTemplateWatcher(templates *Templates, debounce time.Duration) (*TemplateWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &TemplateWatcher{
		templates: templates,
		watcher:   w,
		debounce:  debounce,
		log:       logging.Get(logging.CategoryRender),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after every reload attempt.
func (tw *TemplateWatcher) OnReload(fn func(error)) {
	tw.mu.Lock()
	tw.onReload = fn
	tw.mu.Unlock()
}

// Start begins watching. It is non-blocking.
func (tw *TemplateWatcher) Start(ctx context.Context) error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	if err := tw.watcher.Add(tw.templates.Dir()); err != nil {
		tw.mu.Lock()
		tw.running = false
		tw.mu.Unlock()
		return err
	}
	tw.log.Info("watching template directory %s", tw.templates.Dir())

	go tw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (tw *TemplateWatcher) Stop() {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		_ = tw.watcher.Close()
		return
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.stopCh)
	<-tw.doneCh
	if err := tw.watcher.Close(); err != nil {
		tw.log.Error("error closing template watcher: %v", err)
	}
}

// Reloads returns how many reloads have been attempted.
func (tw *TemplateWatcher) Reloads() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.reloads
}

func (tw *TemplateWatcher) run(ctx context.Context) {
	defer close(tw.doneCh)

	ticker := time.NewTicker(tw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopCh:
			return
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != TemplateName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			tw.mu.Lock()
			tw.pending = time.Now()
			tw.mu.Unlock()
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.log.Error("template watcher error: %v", err)
		case <-ticker.C:
			tw.flush()
		}
	}
}

func (tw *TemplateWatcher) flush() {
	tw.mu.Lock()
	if tw.pending.IsZero() || time.Since(tw.pending) < tw.debounce {
		tw.mu.Unlock()
		return
	}
	tw.pending = time.Time{}
	tw.mu.Unlock()

	err := tw.templates.Reload()
	if err != nil {
		tw.log.Warn("template reload failed, keeping previous version: %v", err)
	} else {
		tw.log.Info("receipt template reloaded")
	}

	tw.mu.Lock()
	tw.reloads++
	fn := tw.onReload
	tw.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
