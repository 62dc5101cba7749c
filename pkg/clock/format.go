package clock

import (
	"context"
	"crypto/sha1"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/latticedb/lattice/pkg/auth"
)

const (
	clusterTimeFieldName = "$clusterTime"
	configTimeFieldName  = "$configTime"

	signedTimeFieldName     = "clusterTime"
	signatureFieldName      = "signature"
	signatureHashFieldName  = "hash"
	signatureKeyIDFieldName = "keyId"
)

// format is the per-component gossip encode/decode strategy. Each component
// is bound to one format when the clock is built and the binding never
// changes for the lifetime of the process.
type format interface {
	fieldName() string

	// out appends the component's time to the outbound message. Returns
	// whether the time was output.
	out(
		ctx context.Context,
		sess auth.Session,
		permitRefresh bool,
		out *bson.D,
		t LogicalTime,
	) (bool, error)

	// in reads the component's time from the inbound message. An absent
	// field yields the zero time.
	in(
		ctx context.Context,
		sess auth.Session,
		in bson.Raw,
		couldBeUnauthenticated bool,
	) (LogicalTime, error)
}

// plainFormat gossips the raw timestamp under the component's field name.
type plainFormat struct {
	field string
}

func (f *plainFormat) fieldName() string {
	return f.field
}

func (f *plainFormat) out(
	_ context.Context,
	_ auth.Session,
	_ bool,
	out *bson.D,
	t LogicalTime,
) (bool, error) {
	*out = append(*out, bson.E{Key: f.field, Value: t.Timestamp()})
	return true, nil
}

func (f *plainFormat) in(
	_ context.Context,
	_ auth.Session,
	in bson.Raw,
	_ bool,
) (LogicalTime, error) {
	val, err := in.LookupErr(f.field)
	if err != nil {
		// Nothing to gossip in.
		return LogicalTime{}, nil
	}
	secs, inc, ok := val.TimestampOK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s is not a timestamp", ErrBadValue, f.field,
		)
	}
	return LogicalTime{Secs: secs, Inc: inc}, nil
}

// signedFormat gossips the timestamp inside a sub-document carrying a
// signature, so external clients only receive times this node can vouch for
// and only merge times they can verify.
type signedFormat struct {
	field string

	clock *VectorClock
}

func (f *signedFormat) fieldName() string {
	return f.field
}

func (f *signedFormat) out(
	ctx context.Context,
	sess auth.Session,
	permitRefresh bool,
	out *bson.D,
	t LogicalTime,
) (bool, error) {
	var signedTime SignedLogicalTime

	if sess != nil && sess.CanAdvanceClusterTime() {
		// Privileged clients always receive a placeholder-signed time.
		signedTime = SignedLogicalTime{Time: t}
	} else {
		// Nodes without a validator (e.g. not yet added to a cluster) do not
		// return times to unprivileged clients.
		validator := f.clock.validator
		if validator == nil {
			return false, nil
		}

		// There are some contexts where refreshing is not permitted.
		if permitRefresh && sess != nil {
			var err error
			signedTime, err = validator.SignLogicalTime(ctx, t)
			if err != nil {
				return false, err
			}
		} else {
			signedTime = validator.TrySignLogicalTime(t)
		}

		// If there were no keys, do not return the time to unprivileged
		// clients.
		if signedTime.KeyID == 0 {
			return false, nil
		}
	}

	*out = append(*out, bson.E{Key: f.field, Value: bson.D{
		{Key: signedTimeFieldName, Value: signedTime.Time.Timestamp()},
		{Key: signatureFieldName, Value: bson.D{
			{Key: signatureHashFieldName, Value: primitive.Binary{
				Subtype: 0x00,
				Data:    signedTime.Proof[:],
			}},
			{Key: signatureKeyIDFieldName, Value: signedTime.KeyID},
		}},
	}})
	return true, nil
}

func (f *signedFormat) in(
	ctx context.Context,
	sess auth.Session,
	in bson.Raw,
	couldBeUnauthenticated bool,
) (LogicalTime, error) {
	val, err := in.LookupErr(f.field)
	if err != nil {
		// Nothing to gossip in.
		return LogicalTime{}, nil
	}
	obj, ok := val.DocumentOK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s is not an object", ErrBadValue, f.field,
		)
	}

	secs, inc, ok := obj.Lookup(signedTimeFieldName).TimestampOK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s.%s is not a timestamp",
			ErrBadValue, f.field, signedTimeFieldName,
		)
	}

	signatureObj, ok := obj.Lookup(signatureFieldName).DocumentOK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s.%s is not an object",
			ErrBadValue, f.field, signatureFieldName,
		)
	}

	_, hash, ok := signatureObj.Lookup(signatureHashFieldName).BinaryOK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s.%s.%s is not binary data",
			ErrBadValue, f.field, signatureFieldName, signatureHashFieldName,
		)
	}
	if len(hash) != sha1.Size {
		return LogicalTime{}, fmt.Errorf(
			"%w: signature hash must be %d bytes, got %d",
			ErrBadValue, sha1.Size, len(hash),
		)
	}

	keyID, ok := signatureObj.Lookup(signatureKeyIDFieldName).AsInt64OK()
	if !ok {
		return LogicalTime{}, fmt.Errorf(
			"%w: %s.%s.%s is not an integer",
			ErrBadValue, f.field, signatureFieldName, signatureKeyIDFieldName,
		)
	}

	signedTime := SignedLogicalTime{
		Time:  LogicalTime{Secs: secs, Inc: inc},
		KeyID: keyID,
	}
	copy(signedTime.Proof[:], hash)

	if sess == nil {
		// Without a session this must be coming from a reply, which must be
		// internal, and so doesn't require validation.
		return signedTime.Time, nil
	}

	if couldBeUnauthenticated && f.clock.auth.AuthEnabled() &&
		signedTime.Proof.IsPlaceholder() {
		// The client is not authenticated and is not using the localhost
		// bypass. Do not gossip.
		if !sess.IsAuthenticated() && !sess.IsLocalhostBypass() {
			return LogicalTime{}, nil
		}
	}

	if !sess.CanAdvanceClusterTime() {
		if f.clock.validator == nil {
			return LogicalTime{}, fmt.Errorf(
				"%w: cannot accept %s; may not be a part of a cluster",
				ErrCannotVerify, signedTime.Time,
			)
		}
		if err := f.clock.validator.Validate(ctx, signedTime); err != nil {
			return LogicalTime{}, err
		}
	}

	return signedTime.Time, nil
}

// gatedFormat wraps another format, suppressing out until the cluster's
// feature version is fully upgraded so mixed-version clusters never gossip a
// field unknown to older members. in always delegates since fields already
// on the wire are safe to accept.
type gatedFormat struct {
	format

	gate FeatureVersion
}

func (f *gatedFormat) out(
	ctx context.Context,
	sess auth.Session,
	permitRefresh bool,
	out *bson.D,
	t LogicalTime,
) (bool, error) {
	if !f.gate.IsFullyUpgraded() {
		return false, nil
	}
	return f.format.out(ctx, sess, permitRefresh, out, t)
}
