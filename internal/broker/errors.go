package broker

import "errors"

var (
	// ErrToolUnavailable means the tool is known but its provider app
	// credentials are not configured in this deployment. Not a bug: tools
	// are feature-flagged by configuration.
	ErrToolUnavailable = errors.New("tool not available")

	// ErrInvalidState covers every state verification failure on callback:
	// expired, forged, structurally corrupt, or already consumed. Callers
	// render it as "please retry connecting", never as a stack trace.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotConnected means no connection exists for (user, tool).
	ErrNotConnected = errors.New("not connected")

	// ErrReauthorizationRequired means the stored credential cannot be
	// trusted anymore: the provider rejected the refresh token, or the
	// ciphertext no longer decrypts under the configured key. Both resolve
	// identically: the stale row is dropped and the user reconnects.
	ErrReauthorizationRequired = errors.New("reauthorization required")
)
