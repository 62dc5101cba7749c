package clock

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Component identifies one tracked causal-time dimension.
//
// Components are a closed, ordered set used as an array index, so their
// order is fixed for the lifetime of the process.
type Component int

const (
	// ClusterTime is the cluster-wide causal time.
	ClusterTime Component = iota
	// ConfigTime is the configuration-topology time.
	ConfigTime

	numComponents
)

func (c Component) String() string {
	switch c {
	case ClusterTime:
		return "clusterTime"
	case ConfigTime:
		return "configTime"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// LogicalTime is a (seconds, increment) logical timestamp, independent of
// wall-clock time.
//
// The zero value means "never advanced".
type LogicalTime struct {
	Secs uint32
	Inc  uint32
}

// NewLogicalTime creates a LogicalTime from a BSON timestamp.
func NewLogicalTime(ts primitive.Timestamp) LogicalTime {
	return LogicalTime{
		Secs: ts.T,
		Inc:  ts.I,
	}
}

// Timestamp returns the BSON timestamp representation.
func (t LogicalTime) Timestamp() primitive.Timestamp {
	return primitive.Timestamp{
		T: t.Secs,
		I: t.Inc,
	}
}

// After returns whether t is strictly greater than o.
func (t LogicalTime) After(o LogicalTime) bool {
	if t.Secs != o.Secs {
		return t.Secs > o.Secs
	}
	return t.Inc > o.Inc
}

func (t LogicalTime) IsZero() bool {
	return t.Secs == 0 && t.Inc == 0
}

func (t LogicalTime) String() string {
	return fmt.Sprintf("Timestamp(%d, %d)", t.Secs, t.Inc)
}

// logicalTimeArray is one LogicalTime slot per component.
type logicalTimeArray [numComponents]LogicalTime

// VectorTime is an immutable snapshot of the clock, one LogicalTime per
// component. It is a value copy, so it never changes after being read and
// readers cannot observe partial updates.
type VectorTime struct {
	times logicalTimeArray
}

// Time returns the snapshot's time for the given component.
func (vt VectorTime) Time(c Component) LogicalTime {
	return vt.times[c]
}

func (vt VectorTime) ClusterTime() LogicalTime {
	return vt.times[ClusterTime]
}

func (vt VectorTime) ConfigTime() LogicalTime {
	return vt.times[ConfigTime]
}
