package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/latticedb/lattice/pkg/auth"
	"github.com/latticedb/lattice/pkg/clock"
	"github.com/latticedb/lattice/pkg/clock/signing"
	"github.com/latticedb/lattice/pkg/fcv"
	"github.com/latticedb/lattice/pkg/log"
)

type HTTPConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP
	// connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *HTTPConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *HTTPConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"http.bind-addr",
		c.BindAddr,
		`
The host/port to listen for incoming HTTP connections.`,
	)
}

type ClusterConfig struct {
	// NodeID is a unique identifier for this node in the cluster.
	NodeID string `json:"node_id" yaml:"node_id"`

	// NodeIDPrefix is a node ID prefix, where the rest of the node ID is
	// generated to ensure uniqueness.
	NodeIDPrefix string `json:"node_id_prefix" yaml:"node_id_prefix"`

	// FeatureVersion is the negotiated feature compatibility version the
	// node starts with.
	FeatureVersion int32 `json:"feature_version" yaml:"feature_version"`
}

func (c *ClusterConfig) Validate() error {
	if c.NodeID != "" && c.NodeIDPrefix != "" {
		return fmt.Errorf("cannot specify both node ID and node ID prefix")
	}
	if c.FeatureVersion < 0 || fcv.Version(c.FeatureVersion) > fcv.Latest {
		return fmt.Errorf("unsupported feature version: %d", c.FeatureVersion)
	}
	return nil
}

func (c *ClusterConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.NodeID,
		"cluster.node-id",
		c.NodeID,
		`
A unique identifier for the node in the cluster.

Generated by default.`,
	)
	fs.StringVar(
		&c.NodeIDPrefix,
		"cluster.node-id-prefix",
		c.NodeIDPrefix,
		`
A node ID prefix, where the rest of the node ID is generated to ensure
uniqueness.`,
	)
	fs.Int32Var(
		&c.FeatureVersion,
		"cluster.feature-version",
		c.FeatureVersion,
		`
The negotiated feature compatibility version the node starts with.`,
	)
}

type WallClockConfig struct {
	// NTPServer is the NTP server used to correct the node's wall clock. If
	// empty the system clock is used uncorrected.
	NTPServer string `json:"ntp_server" yaml:"ntp_server"`

	// NTPSyncInterval is the interval between NTP offset refreshes.
	NTPSyncInterval time.Duration `json:"ntp_sync_interval" yaml:"ntp_sync_interval"`
}

func (c *WallClockConfig) Validate() error {
	if c.NTPServer != "" && c.NTPSyncInterval <= 0 {
		return fmt.Errorf("missing ntp sync interval")
	}
	return nil
}

func (c *WallClockConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.NTPServer,
		"wallclock.ntp-server",
		c.NTPServer,
		`
NTP server used to correct the node's wall clock.

If empty the system clock is used uncorrected.`,
	)
	fs.DurationVar(
		&c.NTPSyncInterval,
		"wallclock.ntp-sync-interval",
		c.NTPSyncInterval,
		`
Interval between NTP offset refreshes.`,
	)
}

type Config struct {
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Cluster   ClusterConfig   `json:"cluster" yaml:"cluster"`
	Clock     clock.Config    `json:"clock" yaml:"clock"`
	Signing   signing.Config  `json:"signing" yaml:"signing"`
	Auth      auth.Config     `json:"auth" yaml:"auth"`
	WallClock WallClockConfig `json:"wallclock" yaml:"wallclock"`
	Log       log.Config      `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the server. During
	// the grace period, the listener is closed then waits for active
	// requests to complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BindAddr: ":8630",
		},
		Cluster: ClusterConfig{
			FeatureVersion: int32(fcv.Latest),
		},
		Clock: clock.Config{
			MaxAcceptableDriftSecs: clock.DefaultMaxAcceptableDriftSecs,
			PermitGossipOutRefresh: true,
		},
		Signing: signing.Config{
			Enabled:             true,
			KeyRotationInterval: signing.DefaultKeyRotationInterval,
		},
		WallClock: WallClockConfig{
			NTPSyncInterval: 10 * time.Minute,
		},
		Log: log.Config{
			Level: "info",
		},
		GracePeriod: time.Minute,
	}
}

func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Clock.Validate(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if err := c.Signing.Validate(); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := c.WallClock.Validate(); err != nil {
		return fmt.Errorf("wallclock: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.HTTP.RegisterFlags(fs)
	c.Cluster.RegisterFlags(fs)
	c.Clock.RegisterFlags(fs)
	c.Signing.RegisterFlags(fs)
	c.Auth.RegisterFlags(fs)
	c.WallClock.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received to gracefully shutdown
the server before terminating.`,
	)
}
