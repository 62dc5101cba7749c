package clock

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DefaultMaxAcceptableDriftSecs is the default number of seconds an incoming
// time may lead this node's wall clock: one year.
const DefaultMaxAcceptableDriftSecs = 365 * 24 * 60 * 60

type Config struct {
	// MaxAcceptableDriftSecs is the maximum number of seconds an incoming
	// time may be ahead of this node's wall clock before it is rejected.
	MaxAcceptableDriftSecs uint32 `json:"max_acceptable_drift_secs" yaml:"max_acceptable_drift_secs"`

	// PermitGossipOutRefresh permits refreshing the signing keys while
	// serialising an outbound time for an external client.
	PermitGossipOutRefresh bool `json:"permit_gossip_out_refresh" yaml:"permit_gossip_out_refresh"`
}

func (c *Config) Validate() error {
	if c.MaxAcceptableDriftSecs == 0 {
		return fmt.Errorf("missing max acceptable drift secs")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Uint32Var(
		&c.MaxAcceptableDriftSecs,
		"clock.max-acceptable-drift-secs",
		c.MaxAcceptableDriftSecs,
		`
Maximum number of seconds an incoming cluster time may be ahead of this
node's wall clock before it is rejected.`,
	)
	fs.BoolVar(
		&c.PermitGossipOutRefresh,
		"clock.permit-gossip-out-refresh",
		c.PermitGossipOutRefresh,
		`
Whether serialising an outbound time for an external client may refresh the
signing keys.`,
	)
}
