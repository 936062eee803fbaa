// Package subscription manages notification permission and the push
// subscription of one device context.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/notifly/internal/notifyerr"
	"github.com/dukerupert/notifly/internal/platform"
)

const DefaultScriptURL = "/sw.js"

// SaveRequest is what the backend stores for a device.
type SaveRequest struct {
	DeviceID     string                `json:"device_id"`
	DeviceName   string                `json:"device_name,omitempty"`
	Subscription platform.Subscription `json:"subscription"`
}

// Backend persists subscriptions keyed by the authenticated user.
type Backend interface {
	VAPIDKey(ctx context.Context) (string, error)
	SaveSubscription(ctx context.Context, req SaveRequest) error
	RemoveSubscription(ctx context.Context, deviceID string) error
}

// Config configures a Manager.
type Config struct {
	ScriptURL string
	// ApplicationServerKey is the VAPID public key. When empty it is fetched
	// from the backend.
	ApplicationServerKey string
	DeviceID             string
	DeviceName           string
}

// Manager is the single writer of the device's push subscription.
type Manager struct {
	platform platform.Platform
	backend  Backend
	cfg      Config
	logger   *slog.Logger

	flight singleflight.Group

	// mu serialises subscribe against unsubscribe and guards the pending flags.
	mu             sync.Mutex
	pendingSave    bool
	pendingRemoval bool
}

// NewManager creates a Manager for one device context.
func NewManager(p platform.Platform, backend Backend, cfg Config, logger *slog.Logger) *Manager {
	if cfg.ScriptURL == "" {
		cfg.ScriptURL = DefaultScriptURL
	}
	return &Manager{
		platform: p,
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
	}
}

// QueryPermission reads the current consent state without prompting.
func (m *Manager) QueryPermission() platform.PermissionState {
	return m.platform.Permission()
}

// RequestPermission shows the consent prompt once. A dismissed prompt is
// reported as denied. The returned error is only set for unsupported hosts
// and platform failures; a denial is not an error.
func (m *Manager) RequestPermission(ctx context.Context) (platform.PermissionState, error) {
	if m.platform.Permission() == platform.PermissionUnsupported {
		return platform.PermissionUnsupported, notifyerr.ErrUnsupportedPlatform
	}

	state, err := m.platform.RequestPermission(ctx)
	if err != nil {
		return platform.PermissionDenied, fmt.Errorf("request permission: %w", err)
	}

	switch state {
	case platform.PermissionGranted:
		return state, nil
	case platform.PermissionDefault:
		m.logger.Info("permission prompt dismissed")
		return platform.PermissionDenied, nil
	default:
		return platform.PermissionDenied, nil
	}
}

// RegisterDeliveryEndpoint registers the background delivery context.
// An existing registration is returned as is.
func (m *Manager) RegisterDeliveryEndpoint(ctx context.Context) (platform.Registration, error) {
	v, err, _ := m.flight.Do("register", func() (any, error) {
		return m.register(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(platform.Registration), nil
}

func (m *Manager) register(ctx context.Context) (platform.Registration, error) {
	if m.platform.Permission() == platform.PermissionUnsupported {
		return nil, notifyerr.ErrUnsupportedPlatform
	}

	reg, err := m.platform.Registration(ctx, m.cfg.ScriptURL)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	if reg != nil {
		return reg, nil
	}

	reg, err = m.platform.Register(ctx, m.cfg.ScriptURL)
	if err != nil {
		return nil, fmt.Errorf("register delivery endpoint: %w", err)
	}
	m.logger.Info("delivery endpoint registered", "scope", reg.Scope())
	return reg, nil
}

// Subscribe returns the device's push subscription, creating it and saving
// it to the backend when none exists. Concurrent calls share one attempt.
//
// If the platform subscription was created but the backend save failed, the
// subscription is returned together with the error; Sync retries the save.
func (m *Manager) Subscribe(ctx context.Context) (*platform.Subscription, error) {
	type result struct {
		sub *platform.Subscription
		err error
	}
	v, _, _ := m.flight.Do("subscribe", func() (any, error) {
		sub, err := m.subscribe(ctx)
		return result{sub: sub, err: err}, nil
	})
	r := v.(result)
	return r.sub, r.err
}

func (m *Manager) subscribe(ctx context.Context) (*platform.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.platform.Permission() {
	case platform.PermissionUnsupported:
		return nil, notifyerr.ErrUnsupportedPlatform
	case platform.PermissionDenied:
		return nil, notifyerr.ErrPermissionDenied
	case platform.PermissionDefault:
		state, err := m.RequestPermission(ctx)
		if err != nil {
			return nil, err
		}
		if state != platform.PermissionGranted {
			return nil, notifyerr.ErrPermissionDenied
		}
	}

	reg, err := m.RegisterDeliveryEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := reg.Subscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup subscription: %w", err)
	}
	if existing != nil {
		m.logger.Debug("returning existing subscription", "reason", notifyerr.ErrSubscriptionConflict)
		return existing, nil
	}

	key := m.applicationServerKey(ctx)
	sub, err := reg.Subscribe(ctx, platform.SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	m.pendingRemoval = false

	if err := m.backend.SaveSubscription(ctx, m.saveRequest(sub)); err != nil {
		m.pendingSave = true
		m.logger.Warn("save subscription failed; will retry on sync", "error", err)
		return sub, fmt.Errorf("save subscription: %w", err)
	}
	m.pendingSave = false

	m.logger.Info("push subscription created", "device_id", m.cfg.DeviceID)
	return sub, nil
}

func (m *Manager) applicationServerKey(ctx context.Context) string {
	if m.cfg.ApplicationServerKey != "" {
		return m.cfg.ApplicationServerKey
	}
	key, err := m.backend.VAPIDKey(ctx)
	if err != nil || key == "" {
		m.logger.Warn("no application server key; subscribing without one", "error", err)
		return ""
	}
	return key
}

func (m *Manager) saveRequest(sub *platform.Subscription) SaveRequest {
	return SaveRequest{
		DeviceID:     m.cfg.DeviceID,
		DeviceName:   m.cfg.DeviceName,
		Subscription: *sub,
	}
}

// Unsubscribe tears down the local subscription and asks the backend to
// forget it. A backend failure is logged and left for Sync; the device is
// still reported as unsubscribed.
func (m *Manager) Unsubscribe(ctx context.Context) (bool, error) {
	v, err, _ := m.flight.Do("unsubscribe", func() (any, error) {
		return m.unsubscribe(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (m *Manager) unsubscribe(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.platform.Registration(ctx, m.cfg.ScriptURL)
	if err != nil {
		return false, fmt.Errorf("lookup registration: %w", err)
	}
	if reg == nil {
		return false, nil
	}

	sub, err := reg.Subscription(ctx)
	if err != nil {
		return false, fmt.Errorf("lookup subscription: %w", err)
	}
	if sub == nil {
		return false, nil
	}

	ok, err := reg.Unsubscribe(ctx)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	if !ok {
		m.logger.Warn("platform kept the push subscription", "device_id", m.cfg.DeviceID)
		return false, nil
	}
	m.pendingSave = false

	if err := m.backend.RemoveSubscription(ctx, m.cfg.DeviceID); err != nil {
		m.pendingRemoval = true
		m.logger.Warn("remove subscription from backend failed; will retry on sync", "error", err)
		return true, nil
	}
	m.pendingRemoval = false
	return true, nil
}

// IsSubscribed looks the subscription up on the registration every time.
func (m *Manager) IsSubscribed(ctx context.Context) (bool, error) {
	if m.platform.Permission() == platform.PermissionUnsupported {
		return false, nil
	}
	reg, err := m.platform.Registration(ctx, m.cfg.ScriptURL)
	if err != nil {
		return false, fmt.Errorf("lookup registration: %w", err)
	}
	if reg == nil {
		return false, nil
	}
	sub, err := reg.Subscription(ctx)
	if err != nil {
		return false, fmt.Errorf("lookup subscription: %w", err)
	}
	return sub != nil, nil
}

// Sync reconciles the backend with the device. It is called on every app
// load: an existing subscription is saved again (last write wins) and a
// removal that failed earlier is retried.
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.platform.Permission() == platform.PermissionUnsupported {
		return nil
	}

	reg, err := m.platform.Registration(ctx, m.cfg.ScriptURL)
	if err != nil {
		return fmt.Errorf("lookup registration: %w", err)
	}
	var sub *platform.Subscription
	if reg != nil {
		if sub, err = reg.Subscription(ctx); err != nil {
			return fmt.Errorf("lookup subscription: %w", err)
		}
	}

	if sub == nil {
		if !m.pendingRemoval {
			return nil
		}
		if err := m.backend.RemoveSubscription(ctx, m.cfg.DeviceID); err != nil && !errors.Is(err, notifyerr.ErrNotFound) {
			return fmt.Errorf("remove subscription: %w", err)
		}
		m.pendingRemoval = false
		return nil
	}

	if err := m.backend.SaveSubscription(ctx, m.saveRequest(sub)); err != nil {
		m.pendingSave = true
		return fmt.Errorf("save subscription: %w", err)
	}
	m.pendingSave = false
	return nil
}

// Pending reports whether a backend save or removal is waiting for Sync.
func (m *Manager) Pending() (save, removal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingSave, m.pendingRemoval
}
