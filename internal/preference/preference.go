// Package preference holds per-user, per-channel notification preferences
// and the verification gate that protects them.
package preference

import (
	"fmt"

	"github.com/dukerupert/notifly/internal/notifyerr"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
	ChannelPush  Channel = "push"
)

// Channels lists every channel in display order.
var Channels = []Channel{ChannelEmail, ChannelPhone, ChannelPush}

// Category is a family of notifications a channel can carry.
type Category string

const (
	CategoryOrderUpdates Category = "order_updates"
	CategoryPromotions   Category = "promotions"
	CategorySecurity     Category = "security"
	CategoryNewContent   Category = "new_content"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryOrderUpdates, CategoryPromotions, CategorySecurity, CategoryNewContent}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelPush:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	switch c {
	case CategoryOrderUpdates, CategoryPromotions, CategorySecurity, CategoryNewContent:
		return true
	}
	return false
}

// ChannelPreference is one channel's settings for a user.
type ChannelPreference struct {
	Channel    Channel           `json:"channel"`
	Contact    string            `json:"contact,omitempty"`
	Verified   bool              `json:"verified"`
	Enabled    bool              `json:"enabled"`
	Categories map[Category]bool `json:"categories"`
}

// Allows reports whether the channel should carry notifications of category c.
func (p ChannelPreference) Allows(c Category) bool {
	return p.Verified && p.Enabled && p.Categories[c]
}

// Preferences are all channel preferences of a user, keyed by channel.
type Preferences map[Channel]ChannelPreference

// Default returns the unverified, disabled preference for ch.
func Default(ch Channel) ChannelPreference {
	cats := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		cats[c] = false
	}
	return ChannelPreference{Channel: ch, Categories: cats}
}

// Defaults returns a fresh Preferences with every channel at its default.
func Defaults() Preferences {
	p := make(Preferences, len(Channels))
	for _, ch := range Channels {
		p[ch] = Default(ch)
	}
	return p
}

// Clone returns a deep copy of p.
func (p Preferences) Clone() Preferences {
	out := make(Preferences, len(p))
	for ch, cp := range p {
		cats := make(map[Category]bool, len(cp.Categories))
		for c, v := range cp.Categories {
			cats[c] = v
		}
		cp.Categories = cats
		out[ch] = cp
	}
	return out
}

// Get returns the preference for ch, falling back to its default.
func (p Preferences) Get(ch Channel) ChannelPreference {
	if cp, ok := p[ch]; ok {
		if cp.Categories == nil {
			cp.Categories = Default(ch).Categories
		}
		return cp
	}
	return Default(ch)
}

// Validate checks that no unverified channel is enabled or has a category
// turned on, and that every key is known.
func Validate(p Preferences) error {
	for ch, cp := range p {
		if !ch.Valid() {
			return fmt.Errorf("unknown channel %q", ch)
		}
		if cp.Channel != "" && cp.Channel != ch {
			return fmt.Errorf("channel %q stored under %q", cp.Channel, ch)
		}
		for c, on := range cp.Categories {
			if !c.Valid() {
				return fmt.Errorf("unknown category %q", c)
			}
			if on && !cp.Verified {
				return fmt.Errorf("%s %s: %w", ch, c, notifyerr.ErrChannelNotVerified)
			}
		}
		if cp.Enabled && !cp.Verified {
			return fmt.Errorf("%s: %w", ch, notifyerr.ErrChannelNotVerified)
		}
	}
	return nil
}
