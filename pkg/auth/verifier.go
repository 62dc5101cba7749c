package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Token represents an authenticated Lattice token.
type Token struct {
	// Expiry contains the time the token expires, or zero if there is no
	// expiry.
	Expiry time.Time

	// Internal indicates the holder is another member of the cluster.
	Internal bool

	// AdvanceClusterTime indicates the holder may advance the cluster time
	// directly.
	AdvanceClusterTime bool
}

// Verifier verifies client tokens.
type Verifier interface {
	Verify(token string) (*Token, error)
}
