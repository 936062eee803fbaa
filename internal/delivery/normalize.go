package delivery

import "github.com/dukerupert/notifly/internal/platform"

const (
	DefaultTitle = "Notifly"
	DefaultBody  = "You have a new notification."
	DefaultIcon  = "/static/icons/icon-192.png"
	DefaultBadge = "/static/icons/badge-72.png"
	DefaultRoute = "/"
)

// actionRoutes maps action button identifiers to in-app routes.
var actionRoutes = map[string]string{
	"view-order":     "/order_tracking",
	"track-order":    "/order_tracking",
	"view-menu":      "/order_1st",
	"view-recipe":    "/recipe_1st",
	"view-cart":      "/cart",
	"complete-order": "/cart",
}

// kindRoutes is the target for a body click when the payload carries no URL.
var kindRoutes = map[Kind]string{
	KindOrder:    "/order_tracking",
	KindTracking: "/order_tracking",
	KindPromo:    "/order_1st",
	KindRecipe:   "/recipe_1st",
}

// ActionRoute returns the route for an action identifier, or DefaultRoute.
func ActionRoute(action string) string {
	if r, ok := actionRoutes[action]; ok {
		return r
	}
	return DefaultRoute
}

// Display is a notification ready to hand to the platform.
type Display struct {
	Title   string
	Options platform.NotificationOptions
}

// Normalize fills every missing field with a fixed default so the platform
// never renders an empty notification.
func Normalize(m Message) Display {
	title := m.Title
	if title == "" {
		title = DefaultTitle
	}
	body := m.Body
	if body == "" {
		body = DefaultBody
	}
	icon := m.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	badge := m.Badge
	if badge == "" {
		badge = DefaultBadge
	}

	url := m.URL
	if url == "" {
		url = kindRoutes[m.Kind]
	}
	if url == "" {
		url = DefaultRoute
	}

	data := make(map[string]any, len(m.Data)+2)
	for k, v := range m.Data {
		data[k] = v
	}
	data["url"] = url
	data["kind"] = string(m.Kind)

	return Display{
		Title: title,
		Options: platform.NotificationOptions{
			Body:               body,
			Icon:               icon,
			Badge:              badge,
			Tag:                m.Tag,
			Renotify:           m.Tag != "",
			RequireInteraction: m.RequireInteraction,
			Actions:            m.Actions,
			Data:               data,
		},
	}
}
