// Package clock implements the causality-tracking clock of a Lattice
// cluster: a process-local vector of logical timestamps, one per tracked
// component, advanced by a component-wise max-merge and exchanged with peers
// by gossiping it in request and response metadata.
package clock

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/pkg/auth"
	"github.com/latticedb/lattice/pkg/log"
	"github.com/latticedb/lattice/pkg/wallclock"
)

// maxComponentValue is the maximum representable seconds or increment value
// of a component's time. Capped at the signed 32 bit maximum so accepted
// times survive signed conversions.
const maxComponentValue = math.MaxInt32

// AuthSettings exposes the cluster-wide authentication settings the clock
// consults when deciding whether to merge a time from a possibly
// unauthenticated caller.
type AuthSettings interface {
	AuthEnabled() bool
}

// VectorClock tracks one logical time per component.
//
// A single instance is created per process at startup and lives for the
// process's lifetime; every call site receives it from the composition root.
//
// All methods are safe for concurrent use. The lock is held only for the
// in-memory merge or read, never across signing or message parsing.
type VectorClock struct {
	cfg Config

	wallClock wallclock.Source

	// validator is nil on nodes with no signing service configured, such as
	// a node not yet added to a cluster.
	validator Validator

	auth AuthSettings

	// formats binds each component to its gossip format for the lifetime of
	// the process.
	formats [numComponents]format

	metrics *Metrics

	logger log.Logger

	// mu protects vector and enabled.
	mu      sync.Mutex
	vector  logicalTimeArray
	enabled bool
}

// New creates the process's vector clock.
//
// configTimeGate controls when the config time may be written to outbound
// messages, preventing mixed-version clusters from gossiping a field unknown
// to older members.
func New(
	cfg Config,
	wallClock wallclock.Source,
	validator Validator,
	authSettings AuthSettings,
	configTimeGate FeatureVersion,
	logger log.Logger,
) *VectorClock {
	c := &VectorClock{
		cfg:       cfg,
		wallClock: wallClock,
		validator: validator,
		auth:      authSettings,
		metrics:   newMetrics(),
		logger:    logger.WithSubsystem("clock"),
		enabled:   true,
	}
	c.formats = [numComponents]format{
		ClusterTime: &signedFormat{
			field: clusterTimeFieldName,
			clock: c,
		},
		ConfigTime: &gatedFormat{
			format: &plainFormat{field: configTimeFieldName},
			gate:   configTimeGate,
		},
	}
	return c
}

// Time returns a snapshot of the current vector time.
func (c *VectorClock) Time() VectorTime {
	c.mu.Lock()
	defer c.mu.Unlock()

	return VectorTime{times: c.vector}
}

// IsEnabled returns whether the clock is advancing. A disabled clock may
// still be queried.
func (c *VectorClock) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.enabled
}

// Disable stops the clock advancing.
func (c *VectorClock) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
}

// Metrics returns the clock's metrics.
func (c *VectorClock) Metrics() *Metrics {
	return c.metrics
}

// GossipOut serialises the current vector time into the outbound message.
//
// Internal cluster members receive every component through a lower-overhead
// path that skips signing; external clients go through full trust evaluation
// per component. If there is no live session, defaultTags decides the path.
//
// Returns whether the cluster time component was output.
func (c *VectorClock) GossipOut(
	ctx context.Context,
	sess auth.Session,
	out *bson.D,
	defaultTags auth.Tags,
) (bool, error) {
	tags := defaultTags
	if sess != nil {
		tags = sess.Tags()
	}

	now := c.Time()
	if tags&auth.TagInternalClient != 0 {
		return c.gossipOutInternal(ctx, sess, out, now.times)
	}
	return c.gossipOutExternal(ctx, sess, out, now.times)
}

// GossipIn merges the times in the inbound message into the clock.
//
// The whole message is decoded into a candidate vector before any component
// is merged, so a decode failure never partially applies a message.
func (c *VectorClock) GossipIn(
	ctx context.Context,
	sess auth.Session,
	in bson.Raw,
	couldBeUnauthenticated bool,
	defaultTags auth.Tags,
) error {
	tags := defaultTags
	if sess != nil {
		tags = sess.Tags()
	}

	var newTime logicalTimeArray
	for _, component := range gossipComponents(tags) {
		t, err := c.formats[component].in(ctx, sess, in, couldBeUnauthenticated)
		if err != nil {
			c.metrics.GossipInErrorsTotal.
				With(prometheus.Labels{"component": component.String()}).Inc()
			c.logger.Warn(
				"rejected inbound time",
				zap.Stringer("component", component),
				zap.Error(err),
			)
			return err
		}
		newTime[component] = t
	}

	if err := c.advanceTime(newTime); err != nil {
		return err
	}

	for _, component := range gossipComponents(tags) {
		c.metrics.GossipInTotal.
			With(prometheus.Labels{"component": component.String()}).Inc()
	}
	return nil
}

func (c *VectorClock) gossipOutInternal(
	ctx context.Context,
	sess auth.Session,
	out *bson.D,
	times logicalTimeArray,
) (bool, error) {
	clusterTimeWasOutput := false
	for _, component := range gossipComponents(auth.TagInternalClient) {
		wasOutput, err := c.gossipOutComponent(ctx, sess, out, times, component)
		if err != nil {
			return false, err
		}
		if component == ClusterTime {
			clusterTimeWasOutput = wasOutput
		}
	}
	return clusterTimeWasOutput, nil
}

func (c *VectorClock) gossipOutExternal(
	ctx context.Context,
	sess auth.Session,
	out *bson.D,
	times logicalTimeArray,
) (bool, error) {
	return c.gossipOutComponent(ctx, sess, out, times, ClusterTime)
}

func (c *VectorClock) gossipOutComponent(
	ctx context.Context,
	sess auth.Session,
	out *bson.D,
	times logicalTimeArray,
	component Component,
) (bool, error) {
	wasOutput, err := c.formats[component].out(
		ctx, sess, c.cfg.PermitGossipOutRefresh, out, times[component],
	)
	if err != nil {
		return false, err
	}
	if wasOutput {
		c.metrics.GossipOutTotal.
			With(prometheus.Labels{"component": component.String()}).Inc()
	}
	return wasOutput, nil
}

// gossipComponents returns the components gossiped with a session holding
// the given tags. Internal members exchange every component; external
// clients only the cluster time.
func gossipComponents(tags auth.Tags) []Component {
	if tags&auth.TagInternalClient != 0 {
		return []Component{ClusterTime, ConfigTime}
	}
	return []Component{ClusterTime}
}

// advanceTime merges the candidate vector into the clock: for every
// component independently, the stored time is replaced only if the candidate
// strictly exceeds it. The merge is atomic across all components, so readers
// never observe a vector with only some components updated.
func (c *VectorClock) advanceTime(newTime logicalTimeArray) error {
	if err := c.passesRateLimiter(newTime); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}

	for i := range c.vector {
		if newTime[i].After(c.vector[i]) {
			c.vector[i] = newTime[i]
		}
	}
	return nil
}

// passesRateLimiter validates the candidate vector against wall-clock drift
// and the maximum representable time. It is a pure validation pass with no
// side effects, run before taking the lock.
func (c *VectorClock) passesRateLimiter(newTime logicalTimeArray) error {
	wallClockSecs := uint32(c.wallClock.Now().Unix())
	maxDriftSecs := c.cfg.MaxAcceptableDriftSecs

	for component := Component(0); component < numComponents; component++ {
		t := newTime[component]
		if t.IsZero() {
			continue
		}

		name := c.formats[component].fieldName()

		// Both values are unsigned, so compare them first to avoid
		// wrap-around.
		if t.Secs > wallClockSecs && t.Secs-wallClockSecs > maxDriftSecs {
			c.metrics.RateLimitedTotal.Inc()
			return fmt.Errorf(
				"%w: new %s, %d, is too far from this node's wall clock time, %d",
				ErrRateLimited, name, t.Secs, wallClockSecs,
			)
		}

		if !lessThanOrEqualToMaxPossibleTime(t, 0) {
			c.metrics.RateLimitedTotal.Inc()
			return fmt.Errorf(
				"%w: %s", ErrBeyondMax, name,
			)
		}
	}
	return nil
}

func lessThanOrEqualToMaxPossibleTime(t LogicalTime, nTicks uint32) bool {
	return t.Secs <= maxComponentValue && t.Inc <= maxComponentValue-nTicks
}

// ResetForTest zeroes the vector and re-enables the clock. Used exclusively
// by test harnesses.
func (c *VectorClock) ResetForTest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vector = logicalTimeArray{}
	c.enabled = true
}

// AdvanceClusterTimeForTest advances only the cluster time component,
// bypassing gossip. Used exclusively by test harnesses.
func (c *VectorClock) AdvanceClusterTimeForTest(t LogicalTime) error {
	var newTime logicalTimeArray
	newTime[ClusterTime] = t
	return c.advanceTime(newTime)
}
