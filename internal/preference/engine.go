package preference

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/notifyerr"
)

const (
	DefaultChallengeTTL = 10 * time.Minute
	maxCodeAttempts     = 5
	codeDigits          = 6
)

// FieldEnabled is the channel's master switch. Any other field name is a Category.
const FieldEnabled = "enabled"

// Backend is the only persistence path for preferences.
type Backend interface {
	LoadPreferences(ctx context.Context, userID int64) (Preferences, error)
	SavePreferences(ctx context.Context, userID int64, prefs Preferences) error
}

// CodeSender delivers a verification code to a contact value.
type CodeSender interface {
	SendCode(ctx context.Context, ch Channel, contact, code string) error
}

// VerificationReason tells a wrong code apart from a missing challenge.
type VerificationReason string

const (
	ReasonMismatch    VerificationReason = "mismatch"
	ReasonExpired     VerificationReason = "expired"
	ReasonNoChallenge VerificationReason = "no_challenge"
)

// VerificationError is returned by CompleteVerification when the channel
// could not be verified. It is never used for transport failures.
type VerificationError struct {
	Channel Channel
	Reason  VerificationReason
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %s", e.Channel, e.Reason)
}

func (e *VerificationError) Is(target error) bool {
	switch target {
	case notifyerr.ErrVerificationMismatch:
		return e.Reason == ReasonMismatch
	case notifyerr.ErrVerificationExpired:
		return e.Reason == ReasonExpired || e.Reason == ReasonNoChallenge
	}
	return false
}

// Challenge is a pending verification. It lives only in memory.
type Challenge struct {
	Channel   Channel
	Contact   string
	IssuedAt  time.Time
	ExpiresAt time.Time

	codeHash []byte
	attempts int
}

// Engine applies preference changes for the session's user. Every change is
// loaded from and saved to the backend; the engine keeps no preference cache.
type Engine struct {
	backend Backend
	sender  CodeSender
	session auth.Session
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu         sync.Mutex
	challenges map[Channel]*Challenge
}

// NewEngine creates an Engine. A nil sender falls back to DemoSender.
func NewEngine(backend Backend, sender CodeSender, session auth.Session, logger *slog.Logger) *Engine {
	if sender == nil {
		sender = DemoSender{Logger: logger}
	}
	return &Engine{
		backend:    backend,
		sender:     sender,
		session:    session,
		logger:     logger,
		ttl:        DefaultChallengeTTL,
		now:        time.Now,
		challenges: make(map[Channel]*Challenge),
	}
}

// Load reads the user's preferences from the backend.
func (e *Engine) Load(ctx context.Context) (Preferences, error) {
	prefs, err := e.backend.LoadPreferences(ctx, e.session.UserID())
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	out := Defaults()
	for ch := range prefs {
		if ch.Valid() {
			cp := prefs.Get(ch)
			cp.Channel = ch
			out[ch] = cp
		}
	}
	return out, nil
}

// update loads, applies fn, validates and saves. fn must not keep p.
func (e *Engine) update(ctx context.Context, fn func(p Preferences) error) (Preferences, error) {
	prefs, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	next := prefs.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := Validate(next); err != nil {
		return nil, err
	}
	if err := e.backend.SavePreferences(ctx, e.session.UserID(), next); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	return next, nil
}

// SetChannelValue sets the channel's enabled switch (field FieldEnabled) or
// one of its categories. Turning anything on for an unverified channel is
// rejected with notifyerr.ErrChannelNotVerified and nothing is saved.
func (e *Engine) SetChannelValue(ctx context.Context, ch Channel, field string, value bool) (Preferences, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	if field != FieldEnabled && !Category(field).Valid() {
		return nil, fmt.Errorf("unknown field %q", field)
	}

	return e.update(ctx, func(p Preferences) error {
		cp := p.Get(ch)
		if value && !cp.Verified {
			return fmt.Errorf("%s: %w", ch, notifyerr.ErrChannelNotVerified)
		}
		if field == FieldEnabled {
			cp.Enabled = value
		} else {
			cp.Categories[Category(field)] = value
		}
		p[ch] = cp
		return nil
	})
}

// SetContact changes the contact value a channel delivers to. A changed value
// resets verified, enabled and every category in the same save, and discards
// any pending challenge for the old value.
func (e *Engine) SetContact(ctx context.Context, ch Channel, contact string) (Preferences, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	prefs, err := e.update(ctx, func(p Preferences) error {
		cp := p.Get(ch)
		if cp.Contact == contact {
			return errUnchanged
		}
		reset := Default(ch)
		reset.Contact = contact
		p[ch] = reset
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return e.Load(ctx)
	}
	if err != nil {
		return nil, err
	}
	e.CancelVerification(ch)
	return prefs, nil
}

var errUnchanged = errors.New("unchanged")

// ResetChannel restores ch to its default, dropping its contact value.
func (e *Engine) ResetChannel(ctx context.Context, ch Channel) (Preferences, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	e.CancelVerification(ch)
	return e.update(ctx, func(p Preferences) error {
		p[ch] = Default(ch)
		return nil
	})
}

// BeginVerification issues a one-time code for ch and hands it to the code
// sender. A previous pending challenge for ch is replaced.
func (e *Engine) BeginVerification(ctx context.Context, ch Channel) (*Challenge, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	prefs, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	cp := prefs.Get(ch)
	if ch != ChannelPush && cp.Contact == "" {
		return nil, fmt.Errorf("%s: no contact value to verify", ch)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	if err := e.sender.SendCode(ctx, ch, cp.Contact, code); err != nil {
		return nil, fmt.Errorf("send code: %w", err)
	}

	now := e.now()
	c := &Challenge{
		Channel:   ch,
		Contact:   cp.Contact,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.ttl),
		codeHash:  hash,
	}

	e.mu.Lock()
	e.challenges[ch] = c
	e.mu.Unlock()

	out := *c
	out.codeHash = nil
	return &out, nil
}

// Pending reports whether ch has a live verification challenge.
func (e *Engine) Pending(ch Channel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.challenges[ch]
	return ok && e.now().Before(c.ExpiresAt)
}

// CancelVerification discards the pending challenge for ch, as when the
// user leaves the verification screen.
func (e *Engine) CancelVerification(ch Channel) {
	e.mu.Lock()
	delete(e.challenges, ch)
	e.mu.Unlock()
}

// CompleteVerification checks code against the pending challenge. On a match
// the channel becomes verified and enabled. Otherwise a *VerificationError
// is returned and preferences are left untouched. When loading or saving
// fails the challenge is kept, so the same code can be entered again.
func (e *Engine) CompleteVerification(ctx context.Context, ch Channel, code string) (Preferences, error) {
	e.mu.Lock()
	c, ok := e.challenges[ch]
	if !ok {
		e.mu.Unlock()
		return nil, &VerificationError{Channel: ch, Reason: ReasonNoChallenge}
	}
	if !e.now().Before(c.ExpiresAt) {
		delete(e.challenges, ch)
		e.mu.Unlock()
		return nil, &VerificationError{Channel: ch, Reason: ReasonExpired}
	}
	if err := bcrypt.CompareHashAndPassword(c.codeHash, []byte(code)); err != nil {
		c.attempts++
		if c.attempts >= maxCodeAttempts {
			delete(e.challenges, ch)
		}
		e.mu.Unlock()
		return nil, &VerificationError{Channel: ch, Reason: ReasonMismatch}
	}
	contact := c.Contact
	e.mu.Unlock()

	prefs, err := e.update(ctx, func(p Preferences) error {
		cp := p.Get(ch)
		// The contact changed after the code was issued.
		if cp.Contact != contact {
			return &VerificationError{Channel: ch, Reason: ReasonExpired}
		}
		cp.Verified = true
		cp.Enabled = true
		p[ch] = cp
		return nil
	})
	var verr *VerificationError
	if err != nil && !errors.As(err, &verr) {
		// The challenge stays pending so the same code can be retried.
		return nil, err
	}
	e.mu.Lock()
	if e.challenges[ch] == c {
		delete(e.challenges, ch)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.logger.Info("channel verified", "channel", ch, "user_id", e.session.UserID())
	return prefs, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// DemoSender logs the code instead of delivering it. It stands in for
// channels without a delivery integration.
type DemoSender struct {
	Logger *slog.Logger
}

func (s DemoSender) SendCode(ctx context.Context, ch Channel, contact, code string) error {
	s.Logger.Info("verification code issued", "channel", ch, "contact", contact, "code", code)
	return nil
}

// CodeSenderFunc adapts a function to CodeSender.
type CodeSenderFunc func(ctx context.Context, ch Channel, contact, code string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, ch Channel, contact, code string) error {
	return f(ctx, ch, contact, code)
}
