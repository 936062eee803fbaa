package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dukerupert/notifly/internal/platform"
)

// showTimeout bounds rendering; hosts terminate handlers that do not settle promptly.
const showTimeout = 5 * time.Second

// Click is a notification activation.
type Click struct {
	// Action is the pressed action button, empty for a body click.
	Action string
	Data   map[string]any
	// Close dismisses the clicked notification.
	Close func()
}

// Handler runs in the background delivery context.
type Handler struct {
	display   platform.Displayer
	clients   platform.Clients
	lifecycle platform.Lifecycle
	origin    string
	logger    *slog.Logger
}

// NewHandler creates a delivery handler. origin is the application origin
// (scheme://host) used to find windows to focus.
func NewHandler(display platform.Displayer, clients platform.Clients, lifecycle platform.Lifecycle, origin string, logger *slog.Logger) *Handler {
	return &Handler{
		display:   display,
		clients:   clients,
		lifecycle: lifecycle,
		origin:    origin,
		logger:    logger,
	}
}

// HandlePush renders one notification for raw and returns once it is shown.
func (h *Handler) HandlePush(ctx context.Context, raw []byte) error {
	msg := Decode(raw)
	if msg.PlainText {
		h.logger.Debug("push payload is not JSON; showing as text")
	}
	d := Normalize(msg)

	ctx, cancel := context.WithTimeout(ctx, showTimeout)
	defer cancel()

	if err := h.display.ShowNotification(ctx, d.Title, d.Options); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}

// HandleClick closes the notification and routes the user. It returns the
// route that was focused or opened.
func (h *Handler) HandleClick(ctx context.Context, c Click) (string, error) {
	if c.Close != nil {
		c.Close()
	}

	if c.Action != "" {
		route := ActionRoute(c.Action)
		if err := h.clients.OpenWindow(ctx, route); err != nil {
			return "", fmt.Errorf("open window: %w", err)
		}
		return route, nil
	}

	target := DefaultRoute
	if u, ok := c.Data["url"].(string); ok && u != "" {
		target = u
	}

	windows, err := h.clients.MatchAll(ctx)
	if err != nil {
		return "", fmt.Errorf("match clients: %w", err)
	}
	for _, w := range windows {
		if h.sameOrigin(w.URL) {
			if err := h.clients.Focus(ctx, w.ID); err != nil {
				return "", fmt.Errorf("focus window: %w", err)
			}
			return w.URL, nil
		}
	}

	if err := h.clients.OpenWindow(ctx, target); err != nil {
		return "", fmt.Errorf("open window: %w", err)
	}
	return target, nil
}

func (h *Handler) sameOrigin(raw string) bool {
	if h.origin == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	o, err := url.Parse(h.origin)
	if err != nil {
		return false
	}
	return u.Scheme == o.Scheme && u.Host == o.Host
}

// Install activates a new handler version without waiting for open pages to close.
func (h *Handler) Install(ctx context.Context) error {
	if err := h.lifecycle.SkipWaiting(ctx); err != nil {
		return fmt.Errorf("skip waiting: %w", err)
	}
	return nil
}

// Activate takes control of pages that were opened under an older version.
func (h *Handler) Activate(ctx context.Context) error {
	if err := h.clients.Claim(ctx); err != nil {
		return fmt.Errorf("claim clients: %w", err)
	}
	h.logger.Info("delivery handler activated")
	return nil
}
