package signing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

const DefaultKeyRotationInterval = 90 * 24 * time.Hour

type Config struct {
	// Enabled configures whether the node signs outbound times for external
	// clients. Disabled on nodes not yet added to a cluster.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// KeyRotationInterval is the lifetime of each generated signing key.
	KeyRotationInterval time.Duration `json:"key_rotation_interval" yaml:"key_rotation_interval"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.KeyRotationInterval <= 0 {
		return fmt.Errorf("missing key rotation interval")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVar(
		&c.Enabled,
		"signing.enabled",
		c.Enabled,
		`
Whether the node signs outbound cluster times for external clients.`,
	)
	fs.DurationVar(
		&c.KeyRotationInterval,
		"signing.key-rotation-interval",
		c.KeyRotationInterval,
		`
Lifetime of each generated signing key.`,
	)
}
