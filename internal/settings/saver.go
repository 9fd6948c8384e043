package settings

import (
	"context"
	"sync"
	"time"

	"receiptgen/internal/logging"
)

// Saver debounces settings writes: a write happens delay after the last
// Schedule call, and only the latest settings are written.
type Saver struct {
	kv    KV
	delay time.Duration
	log   *logging.Logger

	writeMu sync.Mutex // serializes writes

	mu      sync.Mutex
	timer   *time.Timer
	pending *Settings
	closed  bool
	onSaved func(Settings, error)
}

// NewSaver creates a saver writing to kv.
func NewSaver(kv KV, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Saver{kv: kv, delay: delay, log: logging.Get(logging.CategorySettings)}
}

// OnSaved registers a callback run after every write attempt.
func (s *Saver) OnSaved(fn func(Settings, error)) {
	s.mu.Lock()
	s.onSaved = fn
	s.mu.Unlock()
}

// Schedule queues st for writing, replacing any pending settings and
// restarting the debounce window.
func (s *Saver) Schedule(st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &st
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		_ = s.Flush(context.Background())
	})
}

// Pending reports whether a write is waiting for the debounce window.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Flush writes pending settings now, if any.
func (s *Saver) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	st := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	fn := s.onSaved
	s.mu.Unlock()

	if st == nil {
		return nil
	}
	err := Save(ctx, s.kv, *st)
	if err != nil {
		s.log.Error("could not save settings: %v", err)
	} else {
		s.log.Debug("settings saved")
	}
	if fn != nil {
		fn(*st, err)
	}
	return err
}

// Cancel drops any pending write.
func (s *Saver) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset cancels pending writes and clears the stored settings.
func (s *Saver) Reset(ctx context.Context) (Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.Cancel()
	return Reset(ctx, s.kv)
}

// Close flushes pending settings and stops accepting new ones.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush(ctx)
}
