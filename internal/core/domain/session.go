package domain

import "time"

// DefaultGrantLifetime is applied when a login response carries no expiry.
const DefaultGrantLifetime = 24 * time.Hour

// Grant is the result of a successful login: everything needed to
// install a session.
type Grant struct {
	Identity   Identity
	Credential string
	ExpiresAt  time.Time
}

// Validate checks that the grant can be installed as a session.
func (g Grant) Validate() error {
	if err := g.Identity.Validate(); err != nil {
		return err
	}
	if g.Credential == "" {
		return ErrSessionInvalid.WithDetails("credential is required")
	}
	if g.ExpiresAt.IsZero() {
		return ErrSessionInvalid.WithDetails("expiry is required")
	}
	return nil
}

// Session is a point-in-time snapshot of the client session.
// The zero value is "no session".
type Session struct {
	Identity      Identity `json:"identity"`
	Credential    string   `json:"-"`
	ExpiresAt     int64    `json:"expires_at"` // Unix milliseconds
	WarningIssued bool     `json:"warning_issued"`
}

// Present reports whether the triple is populated.
func (s Session) Present() bool {
	return s.Credential != "" && s.ExpiresAt != 0 && s.Identity.ID != 0
}

// ValidAt reports whether the session is present and unexpired at now.
func (s Session) ValidAt(now time.Time) bool {
	return s.Present() && now.UnixMilli() < s.ExpiresAt
}

// RemainingAt returns expiry - now, clamped to zero.
func (s Session) RemainingAt(now time.Time) time.Duration {
	if !s.Present() {
		return 0
	}
	remaining := s.ExpiresAt - now.UnixMilli()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining) * time.Millisecond
}

// Expiry returns the expiry instant, or the zero time with no session.
func (s Session) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpiresAt)
}
