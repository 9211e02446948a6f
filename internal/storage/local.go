package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("local store closed")
)

// LocalStore is a durable string-keyed store, the client equivalent of
// browser local storage.
//
// Implementations must be safe for concurrent use. SetItems and
// RemoveItems apply all keys or none.
type LocalStore interface {
	// GetItem returns the stored value, or ErrKeyNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores a single value.
	SetItem(ctx context.Context, key, value string) error

	// SetItems stores several values atomically.
	SetItems(ctx context.Context, items map[string]string) error

	// RemoveItem removes a key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// RemoveItems removes several keys atomically.
	RemoveItems(ctx context.Context, keys ...string) error

	// Close releases resources held by the store.
	Close() error
}

// Engine names accepted by Open.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config selects and configures a LocalStore.
type Config struct {
	// Engine is "memory" or "badger". Default: "badger".
	Engine string

	// Dir is the Badger data directory.
	Dir string

	// Passphrase, when set, seals every value with a key derived from it.
	Passphrase string

	// Badger holds engine tuning.
	Badger BadgerConfig
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Engine: EngineBadger,
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// Open builds the LocalStore described by cfg.
func Open(cfg Config, log logger.Logger) (LocalStore, error) {
	log = logger.OrDefault(log)

	var base LocalStore
	switch strings.ToLower(cfg.Engine) {
	case EngineMemory:
		base = NewMemory()
	case EngineBadger, "":
		b, err := NewBadger(cfg.Dir, cfg.Badger, log)
		if err != nil {
			return nil, err
		}
		base = b
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", cfg.Engine)
	}

	if cfg.Passphrase == "" {
		return base, nil
	}

	sealed, err := NewSealed(context.Background(), base, []byte(cfg.Passphrase))
	if err != nil {
		base.Close()
		return nil, err
	}
	return sealed, nil
}
