package credential

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/storage"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(local storage.LocalStore) (*Store, *clock) {
	c := &clock{now: t0}
	return NewStore(local, WithClock(c.Now), WithLogger(logger.NewNop())), c
}

func alice(expires time.Time) domain.Grant {
	return domain.Grant{
		Identity:   domain.Identity{ID: 7, Username: "alice", Role: domain.RoleCustomer},
		Credential: "tok-alice",
		ExpiresAt:  expires,
	}
}

// failingStore rejects every write.
type failingStore struct {
	*storage.Memory
}

func (f failingStore) SetItems(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func (f failingStore) RemoveItems(context.Context, ...string) error {
	return errors.New("disk full")
}

func TestStore_SaveAndQuery(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	s, c := newTestStore(local)

	if s.IsValid() {
		t.Fatal("empty store should not be valid")
	}
	if s.TimeRemaining() != 0 {
		t.Fatal("empty store should have zero remaining")
	}

	if err := s.Save(ctx, alice(t0.Add(time.Hour))); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	if !s.IsValid() {
		t.Error("expected valid after Save")
	}
	if got := s.TimeRemaining(); got != time.Hour {
		t.Errorf("TimeRemaining() = %v, want 1h", got)
	}
	id, ok := s.Identity()
	if !ok || id.Username != "alice" {
		t.Errorf("Identity() = %+v, %v", id, ok)
	}

	for key, want := range map[string]string{
		KeyCredential: "tok-alice",
		KeyExpiry:     strconv.FormatInt(t0.Add(time.Hour).UnixMilli(), 10),
	} {
		if got, _ := local.GetItem(ctx, key); got != want {
			t.Errorf("persisted %s = %q, want %q", key, got, want)
		}
	}

	c.Advance(time.Hour)
	if s.IsValid() {
		t.Error("expected invalid at expiry")
	}
	if !s.HasCredential() {
		t.Error("stale credential should still be held")
	}
	if _, ok := s.Identity(); ok {
		t.Error("Identity() should be unavailable after expiry")
	}
}

func TestStore_SaveRejectsIncompleteGrant(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(storage.NewMemory())

	if err := s.Save(ctx, alice(t0.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	bad := []domain.Grant{
		{Identity: domain.Identity{ID: 1}, ExpiresAt: t0.Add(time.Hour)},
		{Identity: domain.Identity{ID: 1}, Credential: "x"},
		{Credential: "x", ExpiresAt: t0.Add(time.Hour)},
	}
	for i, g := range bad {
		if err := s.Save(ctx, g); !errors.Is(err, domain.ErrSessionInvalid) {
			t.Errorf("case %d: Save() = %v, want ErrSessionInvalid", i, err)
		}
	}

	if s.Credential() != "tok-alice" {
		t.Error("rejected Save must not change the installed session")
	}
}

func TestStore_SaveStorageFailure(t *testing.T) {
	s, _ := newTestStore(failingStore{storage.NewMemory()})

	err := s.Save(context.Background(), alice(t0.Add(time.Hour)))
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("Save() = %v, want ErrStorage", err)
	}
	if s.HasCredential() {
		t.Error("failed persist must not install the session")
	}
}

func TestStore_SaveResetsWarning(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(storage.NewMemory())
	s.Save(ctx, alice(t0.Add(time.Hour)))

	if !s.MarkWarningIssued() {
		t.Fatal("first MarkWarningIssued() should win")
	}
	if s.MarkWarningIssued() {
		t.Fatal("second MarkWarningIssued() should lose")
	}

	s.Save(ctx, alice(t0.Add(2*time.Hour)))
	if s.WarningIssued() {
		t.Error("Save must reset warningIssued")
	}
}

func TestStore_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	s, _ := newTestStore(local)
	s.Save(ctx, alice(t0.Add(time.Hour)))

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s.IsValid() || s.HasCredential() || s.TimeRemaining() != 0 {
		t.Error("memory not cleared")
	}
	if local.Len() != 0 {
		t.Errorf("storage still holds %d keys", local.Len())
	}

	snap := s.Snapshot()
	if snap.Present() {
		t.Errorf("Snapshot() = %+v after Clear", snap)
	}
}

func TestStore_ClearStorageFailureStillClearsMemory(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	ok, _ := newTestStore(mem)
	ok.Save(ctx, alice(t0.Add(time.Hour)))

	s, _ := newTestStore(failingStore{mem})
	s.Restore(ctx)

	if err := s.Clear(ctx); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Clear() = %v, want ErrStorage", err)
	}
	if s.HasCredential() {
		t.Error("memory must be cleared even when storage fails")
	}
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()

	first, _ := newTestStore(local)
	if err := first.Save(ctx, alice(t0.Add(30*time.Minute))); err != nil {
		t.Fatal(err)
	}

	second, _ := newTestStore(local)
	if !second.Restore(ctx) {
		t.Fatal("Restore() = false, want true")
	}
	if !second.IsValid() {
		t.Error("restored session should be valid")
	}
	if got := second.TimeRemaining(); got != 30*time.Minute {
		t.Errorf("TimeRemaining() = %v, want 30m", got)
	}
	if first.Snapshot() != second.Snapshot() {
		t.Errorf("restored %+v, saved %+v", second.Snapshot(), first.Snapshot())
	}
}

func TestStore_RestoreStaleSession(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()

	first, _ := newTestStore(local)
	first.Save(ctx, alice(t0.Add(-time.Minute)))

	second, _ := newTestStore(local)
	if !second.Restore(ctx) {
		t.Fatal("stale triple should still be installed")
	}
	if second.IsValid() {
		t.Error("stale session must not be valid")
	}
	if !second.HasCredential() {
		t.Error("stale credential should be held")
	}
}

func TestStore_RestoreMissingOrCorrupt(t *testing.T) {
	good := map[string]string{
		KeyCredential: "tok",
		KeyExpiry:     strconv.FormatInt(t0.Add(time.Hour).UnixMilli(), 10),
		KeyIdentity:   `{"id":3,"username":"bob","role":2}`,
	}

	tests := []struct {
		name        string
		mutate      func(map[string]string)
		wantRemoved bool
	}{
		{"missing credential", func(m map[string]string) { delete(m, KeyCredential) }, false},
		{"missing expiry", func(m map[string]string) { delete(m, KeyExpiry) }, false},
		{"missing identity", func(m map[string]string) { delete(m, KeyIdentity) }, false},
		{"non-numeric expiry", func(m map[string]string) { m[KeyExpiry] = "tomorrow" }, true},
		{"malformed identity", func(m map[string]string) { m[KeyIdentity] = "{not json" }, true},
		{"identity without id", func(m map[string]string) { m[KeyIdentity] = `{"username":"x"}` }, true},
		{"empty credential", func(m map[string]string) { m[KeyCredential] = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			local := storage.NewMemory()
			values := make(map[string]string, len(good))
			for k, v := range good {
				values[k] = v
			}
			tt.mutate(values)
			local.SetItems(ctx, values)

			s, _ := newTestStore(local)
			if s.Restore(ctx) {
				t.Fatal("Restore() = true, want false")
			}
			if s.IsValid() || s.HasCredential() {
				t.Error("no session should be installed")
			}
			if tt.wantRemoved && local.Len() != 0 {
				t.Errorf("corrupt keys not removed: %d left", local.Len())
			}
		})
	}
}

func TestStore_RestoreOverSealedBadger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := storage.Config{Engine: storage.EngineBadger, Dir: dir, Passphrase: "correct horse"}
	cfg.Badger = storage.DefaultBadgerConfig()
	cfg.Badger.SyncWrites = false

	local, err := storage.Open(cfg, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	first, _ := newTestStore(local)
	if err := first.Save(ctx, alice(t0.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	local.Close()

	reopened, err := storage.Open(cfg, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	second, _ := newTestStore(reopened)
	if !second.Restore(ctx) || second.Credential() != "tok-alice" {
		t.Errorf("restore across process restart failed: %+v", second.Snapshot())
	}
}
