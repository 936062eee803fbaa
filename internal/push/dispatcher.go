package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/notifly/internal/metrics"
	"github.com/dukerupert/notifly/internal/model"
	"github.com/dukerupert/notifly/internal/preference"
	"github.com/dukerupert/notifly/internal/store"
	"github.com/dukerupert/notifly/internal/websocket"
)

const (
	DefaultIcon  = "/static/icons/icon-192.png"
	DefaultBadge = "/static/icons/badge-72.png"

	defaultCleanupInterval = time.Hour
	sentRetention          = 30 * 24 * time.Hour
	sendConcurrency        = 4
	sendTimeout            = 15 * time.Second
)

// ErrInvalidEvent is returned by Emit for events it cannot deliver.
var ErrInvalidEvent = errors.New("invalid event")

// Sender delivers a payload to one subscription. *Service is the production Sender.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Mailer delivers a notification by email.
type Mailer interface {
	SendNotification(ctx context.Context, to, subject, body string) error
}

// Broadcaster tells a user's open pages that something changed.
type Broadcaster interface {
	BroadcastTo(userID int64, msg websocket.Message)
}

// EmitResult describes what Emit did with an event.
type EmitResult struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate"`
	Pushed    int   `json:"pushed"`
	Emailed   bool  `json:"emailed"`
}

// Stores groups the stores the dispatcher reads and writes.
type Stores struct {
	Notifications *store.NotificationStore
	Preferences   *store.PreferenceStore
	Push          *store.PushStore
	Sent          *store.SentStore
}

// Dispatcher turns events into notification records and fans them out to
// the channels each user has verified and enabled.
type Dispatcher struct {
	stores  Stores
	sender  Sender
	mailer  Mailer
	hub     Broadcaster
	metrics *metrics.Metrics
	logger  *slog.Logger

	interval time.Duration

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher. mailer and hub may be nil.
func NewDispatcher(stores Stores, sender Sender, mailer Mailer, hub Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		stores:   stores,
		sender:   sender,
		mailer:   mailer,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		interval: defaultCleanupInterval,
	}
}

// SetCleanupInterval changes how often old dedup records are purged. It
// must be called before Start.
func (d *Dispatcher) SetCleanupInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

// Emit records ev for its user and delivers it. An event whose ReferenceID
// was already emitted is reported as a duplicate and not delivered again.
func (d *Dispatcher) Emit(ctx context.Context, ev model.Event) (EmitResult, error) {
	if ev.UserID <= 0 {
		return EmitResult{}, fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}
	if !model.ValidKind(ev.Kind) {
		return EmitResult{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.Title == "" {
		return EmitResult{}, fmt.Errorf("%w: missing title", ErrInvalidEvent)
	}
	category := ev.Category
	if category == "" {
		category = model.CategoryForKind(ev.Kind)
	}
	if !preference.Category(category).Valid() {
		return EmitResult{}, fmt.Errorf("%w: unknown category %q", ErrInvalidEvent, category)
	}

	if ev.ReferenceID != "" {
		first, err := d.stores.Sent.RecordSent(ev.UserID, ev.Kind, ev.ReferenceID)
		if err != nil {
			return EmitResult{}, err
		}
		if !first {
			d.logger.Debug("duplicate event ignored", "user_id", ev.UserID, "kind", ev.Kind, "reference_id", ev.ReferenceID)
			return EmitResult{Duplicate: true}, nil
		}
	}

	n, err := d.stores.Notifications.Create(ev.UserID, ev.Kind, ev.Title, ev.Text, ev.Details, ev.URL, ev.ReferenceID)
	if err != nil {
		if ev.ReferenceID != "" {
			d.stores.Sent.Forget(ev.UserID, ev.Kind, ev.ReferenceID)
		}
		return EmitResult{}, err
	}
	if d.metrics != nil {
		d.metrics.NotificationsEmitted.WithLabelValues(n.Kind).Inc()
	}
	res := EmitResult{ID: n.ID}

	if d.hub != nil {
		d.hub.BroadcastTo(ev.UserID, websocket.NewMessage("notifications", "changed", n.ID, map[string]any{"kind": n.Kind}))
	}

	prefs, err := d.stores.Preferences.Load(ev.UserID)
	if err != nil {
		// The record exists; delivery to other channels is best effort.
		d.logger.Error("load preferences for delivery", "user_id", ev.UserID, "error", err)
		return res, nil
	}
	cat := preference.Category(category)

	if prefs.Get(preference.ChannelPush).Allows(cat) && d.sender != nil {
		res.Pushed = d.pushToUser(ctx, ev.UserID, BuildPayload(n))
	}

	email := prefs.Get(preference.ChannelEmail)
	if email.Allows(cat) && d.mailer != nil {
		if err := d.mailer.SendNotification(ctx, email.Contact, n.Title, emailBody(n)); err != nil {
			d.countEmail("failed")
			d.logger.Warn("email notification failed", "user_id", ev.UserID, "error", err)
		} else {
			d.countEmail("sent")
			res.Emailed = true
		}
	}

	if prefs.Get(preference.ChannelPhone).Allows(cat) {
		d.logger.Debug("sms delivery not configured", "user_id", ev.UserID, "notification_id", n.ID)
	}

	d.logger.Info("notification emitted",
		"user_id", ev.UserID, "id", n.ID, "kind", n.Kind, "pushed", res.Pushed, "emailed", res.Emailed)
	return res, nil
}

// SendTest pushes a test notification to every subscription of the user,
// regardless of preferences, and returns how many were delivered.
func (d *Dispatcher) SendTest(ctx context.Context, userID int64) int {
	if d.sender == nil {
		return 0
	}
	return d.pushToUser(ctx, userID, Payload{
		Title: "Test notification",
		Body:  "Push notifications are working.",
		Icon:  DefaultIcon,
		Badge: DefaultBadge,
		Tag:   "test",
		Data:  Data{URL: "/", Kind: model.KindSystem},
	})
}

// pushToUser sends payload to all of the user's subscriptions concurrently.
// Expired subscriptions are deleted.
func (d *Dispatcher) pushToUser(ctx context.Context, userID int64, payload Payload) int {
	subs, err := d.stores.Push.ListByUser(userID)
	if err != nil {
		d.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return 0
	}

	var sent atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			err := d.sender.Send(sctx, sub, payload)
			switch {
			case err == nil:
				sent.Add(1)
				d.count("sent")
			case errors.Is(err, ErrExpired):
				d.count("expired")
				d.logger.Warn("push subscription expired", "user_id", userID, "device_id", sub.DeviceID)
				if err := d.stores.Push.DeleteByEndpoint(sub.Endpoint); err != nil {
					d.logger.Error("delete expired subscription", "error", err)
				}
			default:
				d.count("failed")
				d.logger.Warn("push send failed", "user_id", userID, "device_id", sub.DeviceID, "error", err)
			}
			// Failures on one device never cancel the others.
			return nil
		})
	}
	g.Wait()
	return int(sent.Load())
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.PushSends.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) countEmail(result string) {
	if d.metrics != nil {
		d.metrics.EmailsSent.WithLabelValues("notification", result).Inc()
	}
}

// BuildPayload renders a notification record as a push payload.
func BuildPayload(n *model.Notification) Payload {
	p := Payload{
		Title:              n.Title,
		Body:               n.Text,
		Icon:               DefaultIcon,
		Badge:              DefaultBadge,
		Tag:                fmt.Sprintf("%s-%d", n.Kind, n.ID),
		Data:               Data{URL: n.URL, Kind: n.Kind, ID: n.ID},
		RequireInteraction: n.Kind == model.KindSecurity,
	}
	if n.ReferenceID != "" {
		// Updates about the same thing replace each other on the device.
		p.Tag = n.Kind + "-" + n.ReferenceID
	}
	switch n.Kind {
	case model.KindOrder, model.KindTracking:
		p.Actions = []Action{{Action: "view-order", Title: "Track order"}}
	case model.KindPromo, model.KindPopup:
		p.Actions = []Action{{Action: "view-menu", Title: "See menu"}}
	case model.KindRecipe:
		p.Actions = []Action{{Action: "view-recipe", Title: "View recipe"}}
	}
	return p
}

func emailBody(n *model.Notification) string {
	if n.Details == "" {
		return n.Text
	}
	return n.Text + "\n\n" + n.Details
}

// Start begins the cleanup loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.cleanup()
			}
		}
	}()
}

// Stop gracefully stops the cleanup loop.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) cleanup() {
	n, err := d.stores.Sent.CleanupSent(time.Now().Add(-sentRetention))
	if err != nil {
		d.logger.Error("cleanup sent notifications", "error", err)
		return
	}
	if n > 0 {
		d.logger.Debug("cleaned up sent notifications", "count", n)
	}
}
