// Package signing signs and validates logical times with rotating HMAC
// keys, so a node only merges an externally gossiped time when it was
// endorsed by a holder of a valid signing key.
package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/latticedb/lattice/pkg/clock"
	"github.com/latticedb/lattice/pkg/log"
)

var (
	// ErrKeyNotFound indicates the key that produced a signature has been
	// rotated out.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrProofMismatch indicates a signature did not match the signed time.
	ErrProofMismatch = errors.New("proof mismatch")
)

// Validator signs and validates logical times using the keys in a KeyStore.
//
// Implements clock.Validator.
type Validator struct {
	store KeyStore

	// refresh deduplicates concurrent key refreshes.
	refresh singleflight.Group

	logger log.Logger
}

func NewValidator(store KeyStore, logger log.Logger) *Validator {
	return &Validator{
		store:  store,
		logger: logger.WithSubsystem("signing"),
	}
}

// SignLogicalTime signs the given time, refreshing the signing keys if there
// is no active key.
func (v *Validator) SignLogicalTime(
	ctx context.Context,
	t clock.LogicalTime,
) (clock.SignedLogicalTime, error) {
	key, ok := v.store.ActiveKey()
	if !ok {
		res, err, _ := v.refresh.Do("refresh", func() (interface{}, error) {
			return v.store.Refresh(ctx)
		})
		if err != nil {
			return clock.SignedLogicalTime{}, fmt.Errorf("refresh keys: %w", err)
		}
		key = res.(Key)
	}
	return sign(key, t), nil
}

// TrySignLogicalTime signs the given time with the active key, if any,
// without refreshing. If no key is available the returned key id is 0.
func (v *Validator) TrySignLogicalTime(t clock.LogicalTime) clock.SignedLogicalTime {
	key, ok := v.store.ActiveKey()
	if !ok {
		return clock.SignedLogicalTime{Time: t}
	}
	return sign(key, t)
}

// Validate checks the signed time's proof was produced by a key this node
// still holds.
func (v *Validator) Validate(_ context.Context, st clock.SignedLogicalTime) error {
	key, ok := v.store.Key(st.KeyID)
	if !ok {
		return fmt.Errorf("%w: key %d", ErrKeyNotFound, st.KeyID)
	}

	proof := computeProof(key.Secret, st.Time)
	if !hmac.Equal(proof[:], st.Proof[:]) {
		return fmt.Errorf("%w: %s", ErrProofMismatch, st.Time)
	}
	return nil
}

var _ clock.Validator = &Validator{}

func sign(key Key, t clock.LogicalTime) clock.SignedLogicalTime {
	return clock.SignedLogicalTime{
		Time:  t,
		Proof: computeProof(key.Secret, t),
		KeyID: key.ID,
	}
}

// computeProof computes the HMAC-SHA1 digest of the time's big-endian
// (seconds, increment) encoding.
func computeProof(secret []byte, t clock.LogicalTime) clock.Proof {
	var msg [8]byte
	binary.BigEndian.PutUint32(msg[0:4], t.Secs)
	binary.BigEndian.PutUint32(msg[4:8], t.Inc)

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])

	var proof clock.Proof
	copy(proof[:], mac.Sum(nil))
	return proof
}
