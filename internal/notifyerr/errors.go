// Package notifyerr defines the error taxonomy shared by the notification
// client components and the messages shown to users for each class.
package notifyerr

import "errors"

var (
	// ErrPermissionDenied means the user blocked notifications. Not retryable
	// until the user changes the platform setting.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrUnsupportedPlatform means the host has no notification capability.
	// The feature UI should be disabled rather than retried.
	ErrUnsupportedPlatform = errors.New("notifications not supported on this platform")

	// ErrNetwork is a transient backend failure. Recovery is a later refresh.
	ErrNetwork = errors.New("network failure")

	// ErrVerificationMismatch means a submitted verification code was wrong.
	ErrVerificationMismatch = errors.New("verification code mismatch")

	// ErrVerificationExpired means no live challenge exists for the channel.
	ErrVerificationExpired = errors.New("verification challenge expired")

	// ErrChannelNotVerified rejects enabling a channel or category before
	// the channel's contact value has been verified.
	ErrChannelNotVerified = errors.New("channel not verified")

	// ErrSubscriptionConflict is resolved by returning the existing
	// subscription; it is exported so callers can recognise the case in logs.
	ErrSubscriptionConflict = errors.New("push subscription already exists")

	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// Message returns a specific, actionable message for err. Every user
// initiated failure maps to its own text; only unknown errors fall through
// to the generic message.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Notifications are blocked. Allow them in your browser settings and try again."
	case errors.Is(err, ErrUnsupportedPlatform):
		return "This browser does not support notifications."
	case errors.Is(err, ErrVerificationMismatch):
		return "Wrong code. Check the code we sent and try again."
	case errors.Is(err, ErrVerificationExpired):
		return "This code has expired. Request a new one."
	case errors.Is(err, ErrChannelNotVerified):
		return "Verify this contact before turning these notifications on."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has ended. Sign in again."
	case errors.Is(err, ErrNotFound):
		return "That notification no longer exists."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the server. Your change will sync when the connection is back."
	default:
		return "Something went wrong. Please try again."
	}
}
