package inbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/notifly/internal/events"
)

// DefaultCountInterval is how often the unread count is polled.
const DefaultCountInterval = 30 * time.Second

// Sync keeps a Store current while a view is mounted: it polls the unread
// count on a timer and re-fetches the full list whenever a
// notifications-changed event is published on the bus.
type Sync struct {
	store    *Store
	bus      *events.Bus
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSync creates a Sync. A zero interval uses DefaultCountInterval; a nil
// bus disables event-driven refresh.
func NewSync(store *Store, bus *events.Bus, interval time.Duration, logger *slog.Logger) *Sync {
	if interval <= 0 {
		interval = DefaultCountInterval
	}
	return &Sync{
		store:    store,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Start begins polling and listening. Calling Start on a running Sync is a no-op.
func (s *Sync) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var evs <-chan events.Event
	unsubscribe := func() {}
	if s.bus != nil {
		evs, unsubscribe = s.bus.Subscribe()
	}

	go func(done chan struct{}) {
		defer close(done)
		defer unsubscribe()
		// Once the parent context ends the Sync can be started again.
		defer func() {
			s.mu.Lock()
			if s.done == done {
				s.cancel()
				s.cancel, s.done = nil, nil
			}
			s.mu.Unlock()
		}()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.store.RefreshCount(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("refresh unread count", "error", err)
				}
			case ev, ok := <-evs:
				if !ok {
					evs = nil
					continue
				}
				if ev.Type != events.NotificationsChanged {
					continue
				}
				if _, err := s.store.Refresh(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("refresh notifications", "error", err)
				}
			}
		}
	}(s.done)
}

// Stop cancels the timer and the bus subscription and waits for the loop to
// exit. It is safe to call more than once.
func (s *Sync) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// OpenPanel performs the on-demand full fetch made when the notification
// panel is shown.
func (s *Sync) OpenPanel(ctx context.Context) (Snapshot, error) {
	return s.store.Refresh(ctx)
}
