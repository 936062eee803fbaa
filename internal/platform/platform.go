// Package platform describes the host capabilities the notification client
// depends on: the permission prompt, the background delivery registration,
// the push manager, and the surfaces available to the background context.
package platform

import "context"

// PermissionState is the platform-held consent status for notifications.
type PermissionState string

const (
	PermissionUnsupported PermissionState = "unsupported"
	PermissionDefault     PermissionState = "default"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
)

// Keys are the client encryption keys of a push subscription.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a platform-issued push handle.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// SubscribeOptions are passed to the push manager when creating a subscription.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey string
}

// Registration is a registered background delivery context.
type Registration interface {
	Scope() string
	// Subscription returns the active subscription or nil when there is none.
	Subscription(ctx context.Context) (*Subscription, error)
	Subscribe(ctx context.Context, opts SubscribeOptions) (*Subscription, error)
	Unsubscribe(ctx context.Context) (bool, error)
}

// Platform is the page-side view of the host.
type Platform interface {
	// Permission reads the consent state. It must never prompt.
	Permission() PermissionState
	// RequestPermission shows the consent prompt once. A dismissed prompt
	// reports PermissionDefault.
	RequestPermission(ctx context.Context) (PermissionState, error)
	// Registration returns the registration for scriptURL, or nil.
	Registration(ctx context.Context, scriptURL string) (Registration, error)
	Register(ctx context.Context, scriptURL string) (Registration, error)
}

// Action is a notification action button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationOptions mirrors the options accepted by the host when showing
// a system notification.
type NotificationOptions struct {
	Body               string
	Icon               string
	Badge              string
	Tag                string
	Renotify           bool
	RequireInteraction bool
	Actions            []Action
	Data               map[string]any
}

// Displayer renders system notifications from the background context.
// Notifications sharing a tag replace each other at the platform level.
type Displayer interface {
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) error
}

// Window is an open application window visible to the background context.
type Window struct {
	ID      string
	URL     string
	Focused bool
}

// Clients exposes the application windows controlled by the background context.
type Clients interface {
	MatchAll(ctx context.Context) ([]Window, error)
	Focus(ctx context.Context, id string) error
	OpenWindow(ctx context.Context, url string) error
	// Claim takes control of already open pages.
	Claim(ctx context.Context) error
}

// Lifecycle controls activation of a freshly installed background context.
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
}
