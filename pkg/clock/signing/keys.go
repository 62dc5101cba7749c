package signing

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/latticedb/lattice/pkg/log"
)

// Key is one HMAC signing key. Keys rotate: a key signs until it expires,
// and remains available for validation until it is purged.
type Key struct {
	// ID identifies the key in gossiped signatures. Always non-zero.
	ID int64

	Secret []byte

	// ExpiresAt is the time the key stops being used for signing.
	ExpiresAt time.Time
}

// KeyStore holds the cluster's signing keys.
type KeyStore interface {
	// ActiveKey returns the key currently used for signing, if any.
	ActiveKey() (Key, bool)

	// Key returns the key with the given id, if it is still held.
	Key(id int64) (Key, bool)

	// Refresh ensures an active key exists, generating one if needed, and
	// returns it.
	Refresh(ctx context.Context) (Key, error)
}

// MemoryKeyStore is an in-process KeyStore generating random HMAC keys.
type MemoryKeyStore struct {
	rotationInterval time.Duration

	mu   sync.Mutex
	keys map[int64]Key

	logger log.Logger
}

func NewMemoryKeyStore(rotationInterval time.Duration, logger log.Logger) *MemoryKeyStore {
	return &MemoryKeyStore{
		rotationInterval: rotationInterval,
		keys:             make(map[int64]Key),
		logger:           logger.WithSubsystem("signing"),
	}
}

func (s *MemoryKeyStore) ActiveKey() (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activeKeyLocked()
}

func (s *MemoryKeyStore) Key(id int64) (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	return key, ok
}

func (s *MemoryKeyStore) Refresh(_ context.Context) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.activeKeyLocked(); ok {
		return key, nil
	}

	key, err := generateKey(time.Now().Add(s.rotationInterval))
	if err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	s.keys[key.ID] = key

	s.logger.Info(
		"generated signing key",
		zap.Int64("key-id", key.ID),
		zap.Time("expires-at", key.ExpiresAt),
	)
	return key, nil
}

// AddKey stores the given key, such as a key learned from another member of
// the cluster.
func (s *MemoryKeyStore) AddKey(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key.ID] = key
}

// RemoveKey purges the key with the given id. Signatures produced with a
// purged key no longer validate.
func (s *MemoryKeyStore) RemoveKey(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, id)
}

// activeKeyLocked returns the unexpired key with the latest expiry.
func (s *MemoryKeyStore) activeKeyLocked() (Key, bool) {
	now := time.Now()

	var candidates []Key
	for _, key := range s.keys {
		if key.ExpiresAt.After(now) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return Key{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.After(candidates[j].ExpiresAt)
	})
	return candidates[0], true
}

func generateKey(expiresAt time.Time) (Key, error) {
	var id int64
	for id == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return Key{}, err
		}
		// Clear the sign bit so the id survives signed encodings.
		id = int64(binary.BigEndian.Uint64(b[:]) >> 1)
	}

	secret := make([]byte, sha1.Size)
	if _, err := rand.Read(secret); err != nil {
		return Key{}, err
	}

	return Key{
		ID:        id,
		Secret:    secret,
		ExpiresAt: expiresAt,
	}, nil
}
