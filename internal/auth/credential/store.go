package credential

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/storage"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// Persisted key layout.
const (
	KeyCredential = "token"
	KeyExpiry     = "token_expires"
	KeyIdentity   = "userInfo"
)

var persistedKeys = []string{KeyCredential, KeyExpiry, KeyIdentity}

// Store is the single source of truth for the current session.
//
// All three fields are installed and cleared together. Every method is
// safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	session domain.Session

	local  storage.LocalStore
	logger logger.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates an empty store backed by local.
func NewStore(local storage.LocalStore, opts ...Option) *Store {
	s := &Store{
		local: local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger).With("component", "credential")
	return s
}

// Save installs a new session and persists it. warningIssued is reset.
// On validation or storage failure nothing changes.
func (s *Store) Save(ctx context.Context, grant domain.Grant) error {
	if err := grant.Validate(); err != nil {
		return err
	}

	identity, err := domain.MarshalIdentity(grant.Identity)
	if err != nil {
		return domain.ErrSessionInvalid.WithCause(err)
	}
	expiry := grant.ExpiresAt.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.local.SetItems(ctx, map[string]string{
		KeyCredential: grant.Credential,
		KeyExpiry:     strconv.FormatInt(expiry, 10),
		KeyIdentity:   identity,
	})
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}

	s.session = domain.Session{
		Identity:   grant.Identity,
		Credential: grant.Credential,
		ExpiresAt:  expiry,
	}

	s.logger.Info("session saved",
		"user_id", grant.Identity.ID,
		"role", grant.Identity.Role.String(),
		"expires_at", grant.ExpiresAt.Format(time.RFC3339))
	return nil
}

// Restore loads the persisted triple into memory. It reports whether a
// triple was installed; the installed session may already be expired.
// A corrupt triple is discarded and its keys removed.
func (s *Store) Restore(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]string, len(persistedKeys))
	for _, key := range persistedKeys {
		v, err := s.local.GetItem(ctx, key)
		if err != nil {
			if !errors.Is(err, storage.ErrKeyNotFound) {
				s.logger.Warn("restore: read failed", "key", key, "error", err)
			}
			return false
		}
		values[key] = v
	}

	session, err := decode(values)
	if err != nil {
		s.logger.Warn("restore: discarding corrupt session", "error", err)
		if rmErr := s.local.RemoveItems(ctx, persistedKeys...); rmErr != nil {
			s.logger.Warn("restore: remove corrupt keys failed", "error", rmErr)
		}
		return false
	}

	s.session = session
	s.logger.Debug("session restored", "user_id", session.Identity.ID, "valid", session.ValidAt(s.now()))
	return true
}

func decode(values map[string]string) (domain.Session, error) {
	credential := values[KeyCredential]
	if credential == "" {
		return domain.Session{}, domain.ErrRestoreFailed.WithDetails("empty credential")
	}

	expiry, err := strconv.ParseInt(values[KeyExpiry], 10, 64)
	if err != nil || expiry <= 0 {
		return domain.Session{}, domain.ErrRestoreFailed.WithDetails("bad expiry " + strconv.Quote(values[KeyExpiry]))
	}

	identity, err := domain.UnmarshalIdentity(values[KeyIdentity])
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		Identity:   identity,
		Credential: credential,
		ExpiresAt:  expiry,
	}, nil
}

// Clear removes the session from memory and storage. Memory is always
// cleared; a storage failure is returned.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.session.Present()
	s.session = domain.Session{}

	if err := s.local.RemoveItems(ctx, persistedKeys...); err != nil {
		s.logger.Warn("clear: remove persisted keys failed", "error", err)
		return domain.ErrStorage.WithCause(err)
	}
	if had {
		s.logger.Info("session cleared")
	}
	return nil
}

// IsValid reports whether a full triple is present and unexpired.
func (s *Store) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ValidAt(s.now())
}

// TimeRemaining returns expiry - now, clamped to zero.
func (s *Store) TimeRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.RemainingAt(s.now())
}

// HasCredential reports whether a credential is held, valid or not.
func (s *Store) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Credential != ""
}

// Credential returns the held credential, valid or not.
func (s *Store) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Credential
}

// Identity returns the current identity when the session is valid.
func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.ValidAt(s.now()) {
		return domain.Identity{}, false
	}
	return s.session.Identity, true
}

// Snapshot returns a copy of the current session, valid or not.
func (s *Store) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// MarkWarningIssued sets warningIssued and reports whether this call
// set it. Only the first caller per installed credential gets true.
func (s *Store) MarkWarningIssued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Present() || s.session.WarningIssued {
		return false
	}
	s.session.WarningIssued = true
	return true
}

// WarningIssued reports whether a warning was issued for the current credential.
func (s *Store) WarningIssued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.WarningIssued
}

// ResetWarning clears warningIssued.
func (s *Store) ResetWarning() {
	s.mu.Lock()
	s.session.WarningIssued = false
	s.mu.Unlock()
}
