package clock

import (
	"context"
	"crypto/sha1"
)

// Proof is a digest attesting that a LogicalTime was endorsed by a holder of
// a valid signing key. The zero value is the placeholder proof used when no
// real signature is attached.
type Proof [sha1.Size]byte

// IsPlaceholder returns whether p is the placeholder proof.
func (p Proof) IsPlaceholder() bool {
	return p == Proof{}
}

// SignedLogicalTime is a LogicalTime plus the proof and the id of the key
// that produced it. A key id of 0 with a placeholder proof means no real
// signature is available.
type SignedLogicalTime struct {
	Time  LogicalTime
	Proof Proof
	KeyID int64
}

// Validator signs and validates logical times.
//
// Implementations may reach the cluster's key storage, so SignLogicalTime
// and Validate accept a context bounded by the caller's deadline.
type Validator interface {
	// SignLogicalTime signs the given time, refreshing the signing keys if
	// required.
	SignLogicalTime(ctx context.Context, t LogicalTime) (SignedLogicalTime, error)

	// TrySignLogicalTime signs the given time with the keys already cached,
	// without blocking. If no key is available the returned key id is 0.
	TrySignLogicalTime(t LogicalTime) SignedLogicalTime

	// Validate checks the proof was produced by a known signing key.
	Validate(ctx context.Context, st SignedLogicalTime) error
}

// FeatureVersion reports whether the cluster's negotiated protocol version
// is fully upgraded to the version that introduced a gated wire field.
type FeatureVersion interface {
	IsFullyUpgraded() bool
}
