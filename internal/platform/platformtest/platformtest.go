// Package platformtest provides an in-memory host platform for tests.
package platformtest

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/notifly/internal/platform"
)

// Platform is a scriptable platform.Platform. PromptAnswer is what the
// simulated user picks when prompted; PermissionDefault models a dismissed prompt.
type Platform struct {
	mu            sync.Mutex
	state         platform.PermissionState
	PromptAnswer  platform.PermissionState
	prompts       int
	registrations map[string]*Registration
	registers     int
}

// New returns a platform in the given permission state.
func New(state platform.PermissionState) *Platform {
	return &Platform{
		state:         state,
		PromptAnswer:  platform.PermissionGranted,
		registrations: make(map[string]*Registration),
	}
}

func (p *Platform) Permission() platform.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetPermission changes the state out-of-band, as a user editing browser settings would.
func (p *Platform) SetPermission(state platform.PermissionState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Platform) RequestPermission(ctx context.Context) (platform.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++
	if p.state == platform.PermissionUnsupported {
		return p.state, nil
	}
	if p.state == platform.PermissionDefault && p.PromptAnswer != platform.PermissionDefault {
		p.state = p.PromptAnswer
	}
	return p.state, nil
}

// Prompts returns how many times the consent prompt was shown.
func (p *Platform) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

func (p *Platform) Registration(ctx context.Context, scriptURL string) (platform.Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reg, ok := p.registrations[scriptURL]
	if !ok {
		return nil, nil
	}
	return reg, nil
}

func (p *Platform) Register(ctx context.Context, scriptURL string) (platform.Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == platform.PermissionUnsupported {
		return nil, errors.New("background delivery not supported")
	}
	p.registers++
	reg := &Registration{scope: scriptURL}
	p.registrations[scriptURL] = reg
	return reg, nil
}

// Registers returns how many registrations were performed.
func (p *Platform) Registers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registers
}

// Registration is an in-memory push registration.
type Registration struct {
	mu             sync.Mutex
	scope          string
	current        *platform.Subscription
	subscribes     int
	LastOptions    platform.SubscribeOptions
	SubscribeErr   error
	UnsubscribeErr error
	// Refuse makes Unsubscribe report false and keep the subscription.
	Refuse bool
}

func (r *Registration) Scope() string { return r.scope }

func (r *Registration) Subscription(ctx context.Context) (*platform.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, nil
	}
	sub := *r.current
	return &sub, nil
}

func (r *Registration) Subscribe(ctx context.Context, opts platform.SubscribeOptions) (*platform.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SubscribeErr != nil {
		return nil, r.SubscribeErr
	}
	r.subscribes++
	r.LastOptions = opts
	if r.current == nil {
		r.current = &platform.Subscription{
			Endpoint: "https://push.example.test/" + uuid.NewString(),
			Keys: platform.Keys{
				P256dh: randomKey(65),
				Auth:   randomKey(16),
			},
		}
	}
	sub := *r.current
	return &sub, nil
}

func (r *Registration) Unsubscribe(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UnsubscribeErr != nil {
		return false, r.UnsubscribeErr
	}
	if r.current == nil || r.Refuse {
		return false, nil
	}
	r.current = nil
	return true, nil
}

// Revoke drops the subscription out-of-band, as the push service would.
func (r *Registration) Revoke() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}

// Subscribes returns how many push subscribe calls reached the registration.
func (r *Registration) Subscribes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribes
}

func randomKey(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Shown is a notification rendered by Displayer.
type Shown struct {
	Title   string
	Options platform.NotificationOptions
}

// Displayer records shown notifications, collapsing by tag like the host does.
type Displayer struct {
	mu    sync.Mutex
	shown []Shown
	Err   error
}

func (d *Displayer) ShowNotification(ctx context.Context, title string, opts platform.NotificationOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	if opts.Tag != "" {
		for i, s := range d.shown {
			if s.Options.Tag == opts.Tag {
				d.shown[i] = Shown{Title: title, Options: opts}
				return nil
			}
		}
	}
	d.shown = append(d.shown, Shown{Title: title, Options: opts})
	return nil
}

// Shown returns the visible notifications.
func (d *Displayer) Shown() []Shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Shown, len(d.shown))
	copy(out, d.shown)
	return out
}

// Clients is an in-memory window list.
type Clients struct {
	mu      sync.Mutex
	Windows []platform.Window
	Focused []string
	Opened  []string
	Claims  int
}

func (c *Clients) MatchAll(ctx context.Context) ([]platform.Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.Window, len(c.Windows))
	copy(out, c.Windows)
	return out, nil
}

func (c *Clients) Focus(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Focused = append(c.Focused, id)
	return nil
}

func (c *Clients) OpenWindow(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Opened = append(c.Opened, url)
	return nil
}

func (c *Clients) Claim(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Claims++
	return nil
}

// Lifecycle counts SkipWaiting calls.
type Lifecycle struct {
	mu    sync.Mutex
	Skips int
}

func (l *Lifecycle) SkipWaiting(ctx context.Context) error {
	l.mu.Lock()
	l.Skips++
	l.mu.Unlock()
	return nil
}
