// Package auth gates the demo→live mode transition behind a TOTP
// check. Switching a trading bot to live mode is a dangerous action;
// when a shared secret is configured, callers must present a valid
// one-time code to arm it.
package auth

import (
	"errors"

	"github.com/pquerna/otp/totp"
)

// ErrInvalidCode is returned when the presented TOTP code does not
// match the configured secret.
var ErrInvalidCode = errors.New("invalid confirmation code")

// LiveArmGuard verifies one-time codes for the live-mode transition.
// An empty secret disables the guard (every code passes).
type LiveArmGuard struct {
	secret string
}

// NewLiveArmGuard creates a guard. secret is a base32 TOTP secret, or
// "" to disable the check.
func NewLiveArmGuard(secret string) *LiveArmGuard {
	return &LiveArmGuard{secret: secret}
}

// Enabled reports whether a secret is configured.
func (g *LiveArmGuard) Enabled() bool { return g.secret != "" }

// Verify checks a one-time code against the secret. Always succeeds
// when the guard is disabled.
func (g *LiveArmGuard) Verify(code string) error {
	if !g.Enabled() {
		return nil
	}
	if !totp.Validate(code, g.secret) {
		return ErrInvalidCode
	}
	return nil
}
