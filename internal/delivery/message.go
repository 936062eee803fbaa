// Package delivery is the background delivery handler: it turns inbound push
// payloads into system notifications and routes clicks back into the app.
package delivery

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dukerupert/notifly/internal/platform"
)

// Kind tags a message with the notification family it belongs to.
type Kind string

const (
	KindOrder    Kind = "order"
	KindPromo    Kind = "promo"
	KindRecipe   Kind = "recipe"
	KindSecurity Kind = "security"
	KindSystem   Kind = "system"
	KindTracking Kind = "tracking"
	KindPopup    Kind = "popup"
	KindUnknown  Kind = "unknown"
)

var knownKinds = map[Kind]bool{
	KindOrder:    true,
	KindPromo:    true,
	KindRecipe:   true,
	KindSecurity: true,
	KindSystem:   true,
	KindTracking: true,
	KindPopup:    true,
}

// ParseKind maps s to a known kind or KindUnknown.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if knownKinds[k] {
		return k
	}
	return KindUnknown
}

// Message is a decoded push payload. Every field may be empty.
type Message struct {
	Kind               Kind
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	URL                string
	RequireInteraction bool
	Actions            []platform.Action
	// Data holds the payload's data object, including fields this handler
	// does not interpret.
	Data map[string]any
	// PlainText is set when the payload was not a JSON object and its raw
	// text was used as the body.
	PlainText bool
}

// Decode parses raw defensively. A payload that is not a JSON object becomes
// a plain-text message; malformed individual fields are ignored rather than
// failing the whole payload.
func Decode(raw []byte) Message {
	trimmed := bytes.TrimSpace(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		body := string(trimmed)
		// A bare JSON string is shown without its quotes.
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			body = s
		}
		return Message{
			Kind:      KindUnknown,
			Body:      body,
			PlainText: true,
		}
	}

	var m Message
	decodeField(fields, "title", &m.Title)
	decodeField(fields, "body", &m.Body)
	decodeField(fields, "icon", &m.Icon)
	decodeField(fields, "badge", &m.Badge)
	decodeField(fields, "tag", &m.Tag)
	decodeField(fields, "requireInteraction", &m.RequireInteraction)

	var actions []platform.Action
	if decodeField(fields, "actions", &actions) {
		for _, a := range actions {
			if a.Action != "" {
				m.Actions = append(m.Actions, a)
			}
		}
	}

	var data map[string]any
	if decodeField(fields, "data", &data) {
		m.Data = data
		if u, ok := data["url"].(string); ok {
			m.URL = u
		}
		if k, ok := data["kind"].(string); ok {
			m.Kind = ParseKind(k)
		}
	}

	// Some producers put the kind at the top level.
	if m.Kind == "" {
		var kind string
		if decodeField(fields, "kind", &kind) || decodeField(fields, "type", &kind) {
			m.Kind = ParseKind(kind)
		}
	}
	if m.Kind == "" {
		m.Kind = KindUnknown
	}

	return m
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
