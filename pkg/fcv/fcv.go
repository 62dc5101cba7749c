// Package fcv tracks the cluster's negotiated feature compatibility version.
//
// Nodes in a mixed-version cluster negotiate the lowest version any member
// supports. Wire fields introduced by a newer version must not be sent until
// every member has upgraded, so senders gate those fields on the feature
// version being fully upgraded to the version that introduced them.
package fcv

import (
	"fmt"

	"go.uber.org/atomic"
)

// Version is a negotiated feature compatibility version.
//
// The zero value means the version has not yet been negotiated.
type Version int32

const (
	Version1 Version = iota + 1
	Version2

	// Latest is the newest version this build supports.
	Latest = Version2
)

func (v Version) String() string {
	switch v {
	case Version1:
		return "1"
	case Version2:
		return "2"
	default:
		return fmt.Sprintf("unknown(%d)", int32(v))
	}
}

// FCV holds the current feature compatibility version. It may be updated at
// runtime as the cluster upgrades.
type FCV struct {
	version *atomic.Int32
}

func New(initial Version) *FCV {
	return &FCV{
		version: atomic.NewInt32(int32(initial)),
	}
}

func (f *FCV) Version() Version {
	return Version(f.version.Load())
}

func (f *FCV) Set(v Version) {
	f.version.Store(int32(v))
}

// IsFullyUpgraded returns whether the version has been negotiated and every
// member of the cluster is at the target version.
func (f *FCV) IsFullyUpgraded(target Version) bool {
	v := f.Version()
	return v != 0 && v == target
}

// Gate is a predicate bound to a target version, answering whether the
// cluster is fully upgraded to it.
type Gate struct {
	fcv    *FCV
	target Version
}

func (f *FCV) Gate(target Version) *Gate {
	return &Gate{
		fcv:    f,
		target: target,
	}
}

func (g *Gate) IsFullyUpgraded() bool {
	return g.fcv.IsFullyUpgraded(g.target)
}
