package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/notifly/internal/notifyerr"
	"github.com/dukerupert/notifly/internal/platform"
	"github.com/dukerupert/notifly/internal/platform/platformtest"
)

type fakeBackend struct {
	mu        sync.Mutex
	key       string
	keyErr    error
	saved     []SaveRequest
	removed   []string
	saveErr   error
	removeErr error
}

func (b *fakeBackend) VAPIDKey(ctx context.Context) (string, error) {
	if b.keyErr != nil {
		return "", b.keyErr
	}
	return b.key, nil
}

func (b *fakeBackend) SaveSubscription(ctx context.Context, req SaveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saved = append(b.saved, req)
	return nil
}

func (b *fakeBackend) RemoveSubscription(ctx context.Context, deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removeErr != nil {
		return b.removeErr
	}
	b.removed = append(b.removed, deviceID)
	return nil
}

func newTestManager(t *testing.T, state platform.PermissionState) (*Manager, *platformtest.Platform, *fakeBackend) {
	t.Helper()
	p := platformtest.New(state)
	b := &fakeBackend{key: "vapid-public"}
	m := NewManager(p, b, Config{DeviceID: "device-1", DeviceName: "Test Browser"}, slog.Default())
	return m, p, b
}

func TestQueryPermissionDoesNotPrompt(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionDefault)

	if got := m.QueryPermission(); got != platform.PermissionDefault {
		t.Errorf("permission = %q, want %q", got, platform.PermissionDefault)
	}
	if p.Prompts() != 0 {
		t.Errorf("prompts = %d, want 0", p.Prompts())
	}
}

func TestRequestPermissionDismissedFailsClosed(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionDefault)
	p.PromptAnswer = platform.PermissionDefault

	state, err := m.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("request permission: %v", err)
	}
	if state != platform.PermissionDenied {
		t.Errorf("state = %q, want %q", state, platform.PermissionDenied)
	}
	if p.Prompts() != 1 {
		t.Errorf("prompts = %d, want 1", p.Prompts())
	}
}

func TestRequestPermissionUnsupported(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionUnsupported)

	state, err := m.RequestPermission(context.Background())
	if !errors.Is(err, notifyerr.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
	}
	if state != platform.PermissionUnsupported {
		t.Errorf("state = %q, want unsupported", state)
	}
	if p.Prompts() != 0 {
		t.Errorf("prompts = %d, want 0", p.Prompts())
	}
}

func TestRegisterDeliveryEndpointIdempotent(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	r1, err := m.RegisterDeliveryEndpoint(ctx)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	r2, err := m.RegisterDeliveryEndpoint(ctx)
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if r1 != r2 {
		t.Error("expected the same registration handle")
	}
	if p.Registers() != 1 {
		t.Errorf("registers = %d, want 1", p.Registers())
	}
}

func TestSubscribeFromDefaultPermission(t *testing.T) {
	m, p, b := newTestManager(t, platform.PermissionDefault)
	ctx := context.Background()

	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub == nil || sub.Endpoint == "" {
		t.Fatal("expected subscription with endpoint")
	}
	if p.Prompts() != 1 {
		t.Errorf("prompts = %d, want 1", p.Prompts())
	}

	ok, err := m.IsSubscribed(ctx)
	if err != nil {
		t.Fatalf("is subscribed: %v", err)
	}
	if !ok {
		t.Error("expected IsSubscribed = true")
	}

	if len(b.saved) != 1 {
		t.Fatalf("saved = %d, want 1", len(b.saved))
	}
	if b.saved[0].DeviceID != "device-1" {
		t.Errorf("device_id = %q, want %q", b.saved[0].DeviceID, "device-1")
	}
	if b.saved[0].Subscription.Endpoint != sub.Endpoint {
		t.Errorf("saved endpoint = %q, want %q", b.saved[0].Subscription.Endpoint, sub.Endpoint)
	}
}

func TestSubscribeUsesBackendVAPIDKey(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	reg, _ := p.Registration(ctx, DefaultScriptURL)
	opts := reg.(*platformtest.Registration).LastOptions
	if opts.ApplicationServerKey != "vapid-public" {
		t.Errorf("application server key = %q, want %q", opts.ApplicationServerKey, "vapid-public")
	}
	if !opts.UserVisibleOnly {
		t.Error("expected UserVisibleOnly")
	}
}

func TestSubscribeWithoutServerKey(t *testing.T) {
	m, p, b := newTestManager(t, platform.PermissionGranted)
	b.keyErr = notifyerr.ErrNetwork
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	reg, _ := p.Registration(ctx, DefaultScriptURL)
	if key := reg.(*platformtest.Registration).LastOptions.ApplicationServerKey; key != "" {
		t.Errorf("application server key = %q, want empty", key)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	m, p, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	s1, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	s2, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe again: %v", err)
	}
	if s1.Endpoint != s2.Endpoint {
		t.Errorf("endpoints differ: %q != %q", s1.Endpoint, s2.Endpoint)
	}

	reg, _ := p.Registration(ctx, DefaultScriptURL)
	if n := reg.(*platformtest.Registration).Subscribes(); n != 1 {
		t.Errorf("platform subscribes = %d, want 1", n)
	}
	if len(b.saved) != 1 {
		t.Errorf("saved = %d, want 1", len(b.saved))
	}
}

func TestSubscribeConcurrentCreatesOne(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	var wg sync.WaitGroup
	endpoints := make([]string, 10)
	for i := range endpoints {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := m.Subscribe(ctx)
			if err != nil {
				t.Errorf("subscribe: %v", err)
				return
			}
			endpoints[i] = sub.Endpoint
		}(i)
	}
	wg.Wait()

	for _, e := range endpoints[1:] {
		if e != endpoints[0] {
			t.Fatalf("divergent subscriptions: %q != %q", e, endpoints[0])
		}
	}
	reg, _ := p.Registration(ctx, DefaultScriptURL)
	if n := reg.(*platformtest.Registration).Subscribes(); n != 1 {
		t.Errorf("platform subscribes = %d, want 1", n)
	}
}

func TestSubscribeDenied(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionDenied)

	_, err := m.Subscribe(context.Background())
	if !errors.Is(err, notifyerr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if len(b.saved) != 0 {
		t.Errorf("saved = %d, want 0", len(b.saved))
	}
}

func TestSubscribeUnsupported(t *testing.T) {
	m, _, _ := newTestManager(t, platform.PermissionUnsupported)

	_, err := m.Subscribe(context.Background())
	if !errors.Is(err, notifyerr.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestSubscribeBackendFailureRetriedOnSync(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()
	b.saveErr = notifyerr.ErrNetwork

	sub, err := m.Subscribe(ctx)
	if !errors.Is(err, notifyerr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if sub == nil {
		t.Fatal("expected local subscription despite backend failure")
	}
	if save, _ := m.Pending(); !save {
		t.Error("expected pending save")
	}

	b.saveErr = nil
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if save, _ := m.Pending(); save {
		t.Error("expected pending save cleared")
	}
	if len(b.saved) != 1 || b.saved[0].Subscription.Endpoint != sub.Endpoint {
		t.Errorf("saved = %+v, want the local subscription", b.saved)
	}
}

func TestUnsubscribe(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ok, err := m.Unsubscribe(ctx)
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if !ok {
		t.Error("expected unsubscribe = true")
	}
	if subscribed, _ := m.IsSubscribed(ctx); subscribed {
		t.Error("expected IsSubscribed = false")
	}
	if len(b.removed) != 1 || b.removed[0] != "device-1" {
		t.Errorf("removed = %v, want [device-1]", b.removed)
	}
}

func TestUnsubscribeBackendFailureIsNonFatal(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.removeErr = notifyerr.ErrNetwork

	ok, err := m.Unsubscribe(ctx)
	if err != nil {
		t.Fatalf("unsubscribe should not fail on backend error: %v", err)
	}
	if !ok {
		t.Error("expected unsubscribe = true")
	}
	if subscribed, _ := m.IsSubscribed(ctx); subscribed {
		t.Error("expected local state unsubscribed")
	}
	if _, removal := m.Pending(); !removal {
		t.Error("expected pending removal")
	}

	b.removeErr = nil
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(b.removed) != 1 {
		t.Errorf("removed = %d, want 1 after sync", len(b.removed))
	}
	if _, removal := m.Pending(); removal {
		t.Error("expected pending removal cleared")
	}
}

func TestUnsubscribeWithoutSubscription(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionGranted)

	ok, err := m.Unsubscribe(context.Background())
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if ok {
		t.Error("expected unsubscribe = false with nothing to tear down")
	}
	if len(b.removed) != 0 {
		t.Errorf("removed = %d, want 0", len(b.removed))
	}
}

func TestUnsubscribeRefusedByPlatform(t *testing.T) {
	m, p, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	reg, _ := p.Registration(ctx, DefaultScriptURL)
	reg.(*platformtest.Registration).Refuse = true

	ok, err := m.Unsubscribe(ctx)
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if ok {
		t.Error("expected unsubscribe = false when the platform keeps the subscription")
	}
	if len(b.removed) != 0 {
		t.Errorf("removed = %v, want none", b.removed)
	}
	if subscribed, _ := m.IsSubscribed(ctx); !subscribed {
		t.Error("expected IsSubscribed = true")
	}
}

func TestIsSubscribedReflectsRevocation(t *testing.T) {
	m, p, _ := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	reg, _ := p.Registration(ctx, DefaultScriptURL)
	reg.(*platformtest.Registration).Revoke()

	ok, err := m.IsSubscribed(ctx)
	if err != nil {
		t.Fatalf("is subscribed: %v", err)
	}
	if ok {
		t.Error("expected IsSubscribed = false after out-of-band revocation")
	}
}

func TestResubscribeAfterUnsubscribeSupersedes(t *testing.T) {
	m, _, b := newTestManager(t, platform.PermissionGranted)
	ctx := context.Background()

	s1, _ := m.Subscribe(ctx)
	m.Unsubscribe(ctx)
	s2, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if s1.Endpoint == s2.Endpoint {
		t.Error("expected a new endpoint after resubscribe")
	}
	if len(b.saved) != 2 || b.saved[1].DeviceID != b.saved[0].DeviceID {
		t.Errorf("expected both saves under the same device id, got %+v", b.saved)
	}
}
