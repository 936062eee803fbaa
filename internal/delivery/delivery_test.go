package delivery

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukerupert/notifly/internal/platform"
	"github.com/dukerupert/notifly/internal/platform/platformtest"
)

func newTestHandler() (*Handler, *platformtest.Displayer, *platformtest.Clients, *platformtest.Lifecycle) {
	d := &platformtest.Displayer{}
	c := &platformtest.Clients{}
	l := &platformtest.Lifecycle{}
	return NewHandler(d, c, l, "https://notifly.test", slog.Default()), d, c, l
}

func TestDecodeFullPayload(t *testing.T) {
	raw := []byte(`{
		"title": "Order ready",
		"body": "Your order #12 is ready",
		"icon": "/i.png",
		"badge": "/b.png",
		"tag": "order-12",
		"requireInteraction": true,
		"data": {"url": "/order_tracking?id=12", "kind": "order", "id": 12},
		"actions": [{"action": "view-order", "title": "View"}, {"title": "no id"}]
	}`)

	m := Decode(raw)
	if m.PlainText {
		t.Fatal("expected structured decode")
	}
	if m.Title != "Order ready" {
		t.Errorf("title = %q, want %q", m.Title, "Order ready")
	}
	if m.Kind != KindOrder {
		t.Errorf("kind = %q, want %q", m.Kind, KindOrder)
	}
	if m.URL != "/order_tracking?id=12" {
		t.Errorf("url = %q", m.URL)
	}
	if !m.RequireInteraction {
		t.Error("expected requireInteraction")
	}
	if len(m.Actions) != 1 || m.Actions[0].Action != "view-order" {
		t.Errorf("actions = %+v, want only view-order", m.Actions)
	}
}

func TestDecodePlainText(t *testing.T) {
	m := Decode([]byte("Your table is ready"))
	if !m.PlainText {
		t.Error("expected plain text fallback")
	}
	if m.Body != "Your table is ready" {
		t.Errorf("body = %q, want raw text", m.Body)
	}
	if m.Kind != KindUnknown {
		t.Errorf("kind = %q, want unknown", m.Kind)
	}
}

func TestDecodeJSONString(t *testing.T) {
	m := Decode([]byte(`"hello \u00e9"`))
	if !m.PlainText {
		t.Error("expected plain text fallback")
	}
	if m.Body != "hello é" {
		t.Errorf("body = %q, want unquoted string", m.Body)
	}
}

func TestDecodeMalformedFieldIgnored(t *testing.T) {
	m := Decode([]byte(`{"title": 42, "body": "hello", "actions": "nope"}`))
	if m.PlainText {
		t.Fatal("expected object decode")
	}
	if m.Title != "" {
		t.Errorf("title = %q, want empty", m.Title)
	}
	if m.Body != "hello" {
		t.Errorf("body = %q, want %q", m.Body, "hello")
	}
	if len(m.Actions) != 0 {
		t.Errorf("actions = %v, want none", m.Actions)
	}
}

func TestDecodeTopLevelKind(t *testing.T) {
	m := Decode([]byte(`{"type": "promo"}`))
	if m.Kind != KindPromo {
		t.Errorf("kind = %q, want %q", m.Kind, KindPromo)
	}
	m = Decode([]byte(`{"kind": "weird"}`))
	if m.Kind != KindUnknown {
		t.Errorf("kind = %q, want unknown", m.Kind)
	}
}

func TestNormalizeMissingTitle(t *testing.T) {
	d := Normalize(Decode([]byte(`{"body": "hi"}`)))
	if d.Title != DefaultTitle {
		t.Errorf("title = %q, want %q", d.Title, DefaultTitle)
	}
	if d.Options.Icon != DefaultIcon {
		t.Errorf("icon = %q, want %q", d.Options.Icon, DefaultIcon)
	}
	if d.Options.Badge != DefaultBadge {
		t.Errorf("badge = %q, want %q", d.Options.Badge, DefaultBadge)
	}
	if d.Options.Data["url"] != DefaultRoute {
		t.Errorf("url = %v, want %q", d.Options.Data["url"], DefaultRoute)
	}
}

func TestNormalizeEmptyPayloadNeverEmpty(t *testing.T) {
	d := Normalize(Decode([]byte(`{}`)))
	if d.Title == "" || d.Options.Body == "" {
		t.Errorf("got empty notification: %+v", d)
	}
}

func TestNormalizeKindRoute(t *testing.T) {
	d := Normalize(Decode([]byte(`{"data": {"kind": "recipe"}}`)))
	if d.Options.Data["url"] != "/recipe_1st" {
		t.Errorf("url = %v, want /recipe_1st", d.Options.Data["url"])
	}
}

func TestNormalizeTagRenotify(t *testing.T) {
	d := Normalize(Message{Tag: "order-1"})
	if !d.Options.Renotify {
		t.Error("expected renotify for tagged notification")
	}
	d = Normalize(Message{})
	if d.Options.Renotify {
		t.Error("expected no renotify without tag")
	}
}

func TestActionRoute(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{"view-order", "/order_tracking"},
		{"view-menu", "/order_1st"},
		{"view-recipe", "/recipe_1st"},
		{"view-cart", "/cart"},
		{"complete-order", "/cart"},
		{"something-else", "/"},
	}
	for _, tt := range tests {
		if got := ActionRoute(tt.action); got != tt.want {
			t.Errorf("ActionRoute(%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestHandlePushShowsOne(t *testing.T) {
	h, d, _, _ := newTestHandler()
	ctx := context.Background()

	if err := h.HandlePush(ctx, []byte(`not json at all`)); err != nil {
		t.Fatalf("handle push: %v", err)
	}
	shown := d.Shown()
	if len(shown) != 1 {
		t.Fatalf("shown = %d, want 1", len(shown))
	}
	if shown[0].Title != DefaultTitle {
		t.Errorf("title = %q, want %q", shown[0].Title, DefaultTitle)
	}
	if shown[0].Options.Body != "not json at all" {
		t.Errorf("body = %q", shown[0].Options.Body)
	}
}

func TestHandlePushSameTagReplaces(t *testing.T) {
	h, d, _, _ := newTestHandler()
	ctx := context.Background()

	h.HandlePush(ctx, []byte(`{"title": "Preparing", "tag": "order-7"}`))
	h.HandlePush(ctx, []byte(`{"title": "Ready", "tag": "order-7"}`))

	shown := d.Shown()
	if len(shown) != 1 {
		t.Fatalf("shown = %d, want 1", len(shown))
	}
	if shown[0].Title != "Ready" {
		t.Errorf("title = %q, want %q", shown[0].Title, "Ready")
	}
}

func TestHandleClickAction(t *testing.T) {
	h, _, c, _ := newTestHandler()
	c.Windows = []platform.Window{{ID: "w1", URL: "https://notifly.test/"}}
	closed := false

	route, err := h.HandleClick(context.Background(), Click{
		Action: "view-order",
		Data:   map[string]any{"url": "/recipe_1st"},
		Close:  func() { closed = true },
	})
	if err != nil {
		t.Fatalf("handle click: %v", err)
	}
	if !closed {
		t.Error("expected notification closed")
	}
	if route != "/order_tracking" {
		t.Errorf("route = %q, want /order_tracking", route)
	}
	if len(c.Opened) != 1 || c.Opened[0] != "/order_tracking" {
		t.Errorf("opened = %v", c.Opened)
	}
}

func TestHandleClickFocusesExistingWindow(t *testing.T) {
	h, _, c, _ := newTestHandler()
	c.Windows = []platform.Window{
		{ID: "other", URL: "https://elsewhere.test/"},
		{ID: "app", URL: "https://notifly.test/menu"},
	}

	_, err := h.HandleClick(context.Background(), Click{Data: map[string]any{"url": "/cart"}})
	if err != nil {
		t.Fatalf("handle click: %v", err)
	}
	if len(c.Focused) != 1 || c.Focused[0] != "app" {
		t.Errorf("focused = %v, want [app]", c.Focused)
	}
	if len(c.Opened) != 0 {
		t.Errorf("opened = %v, want none", c.Opened)
	}
}

func TestHandleClickOpensTargetWhenNoWindow(t *testing.T) {
	h, _, c, _ := newTestHandler()

	route, err := h.HandleClick(context.Background(), Click{Data: map[string]any{"url": "/cart"}})
	if err != nil {
		t.Fatalf("handle click: %v", err)
	}
	if route != "/cart" {
		t.Errorf("route = %q, want /cart", route)
	}

	route, _ = h.HandleClick(context.Background(), Click{})
	if route != "/" {
		t.Errorf("route = %q, want /", route)
	}
	if len(c.Opened) != 2 {
		t.Errorf("opened = %v, want 2 windows", c.Opened)
	}
}

func TestLifecycle(t *testing.T) {
	h, _, c, l := newTestHandler()
	ctx := context.Background()

	if err := h.Install(ctx); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := h.Activate(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if l.Skips != 1 {
		t.Errorf("skip waiting = %d, want 1", l.Skips)
	}
	if c.Claims != 1 {
		t.Errorf("claims = %d, want 1", c.Claims)
	}
}
