package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/latticedb/lattice/pkg/auth"
	"github.com/latticedb/lattice/pkg/clock"
	"github.com/latticedb/lattice/pkg/clock/signing"
	"github.com/latticedb/lattice/pkg/fcv"
	"github.com/latticedb/lattice/pkg/log"
	"github.com/latticedb/lattice/pkg/wallclock"
)

func testVectorClock(validator clock.Validator, authEnabled bool) *clock.VectorClock {
	return clock.New(
		clock.Config{
			MaxAcceptableDriftSecs: clock.DefaultMaxAcceptableDriftSecs,
			PermitGossipOutRefresh: true,
		},
		wallclock.NewSystemSource(),
		validator,
		auth.NewManager(authEnabled),
		fcv.New(fcv.Latest).Gate(fcv.Latest),
		log.NewNopLogger(),
	)
}

func serveTest(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		if err := s.Serve(ln); err != nil {
			panic("serve: " + err.Error())
		}
	}()
	t.Cleanup(func() {
		_ = s.Shutdown(context.TODO())
	})

	return ln.Addr().String()
}

func postGossip(t *testing.T, url string, doc bson.D, token string) *http.Response {
	t.Helper()

	var body []byte
	if doc != nil {
		var err error
		body, err = bson.Marshal(doc)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(
		http.MethodPost, url, bytes.NewReader(body),
	)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServer_Gossip(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		now := uint32(time.Now().Unix())
		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: primitive.Timestamp{T: now, I: 2}},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: make([]byte, 20)}},
						{Key: "keyId", Value: int64(0)},
					}},
				}},
			},
			"",
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(
			t,
			clock.LogicalTime{Secs: now, Inc: 2},
			vectorClock.Time().ClusterTime(),
		)
	})

	t.Run("empty body gossips nothing in", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		resp := postGossip(
			t, fmt.Sprintf("http://%s/v1/gossip", addr), nil, "",
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, vectorClock.Time().ClusterTime().IsZero())
	})

	t.Run("responds with the current time", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		require.NoError(t, vectorClock.AdvanceClusterTimeForTest(
			clock.LogicalTime{Secs: 100, Inc: 2},
		))

		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		resp := postGossip(
			t, fmt.Sprintf("http://%s/v1/gossip", addr), nil, "",
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		raw := bson.Raw(body)
		require.NoError(t, raw.Validate())

		// With auth disabled the session may advance the cluster time, so it
		// receives a placeholder-signed time.
		secs, inc, ok := raw.Lookup("$clusterTime", "clusterTime").TimestampOK()
		require.True(t, ok)
		assert.Equal(t, uint32(100), secs)
		assert.Equal(t, uint32(2), inc)
	})

	t.Run("invalid bson", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		req, err := http.NewRequest(
			http.MethodPost,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bytes.NewReader([]byte("not bson")),
		)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed time", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: "not an object"},
			},
			"",
		)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rate limited time", func(t *testing.T) {
		vectorClock := testVectorClock(nil, false)
		s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
		addr := serveTest(t, s)

		farAhead := uint32(time.Now().Unix()) +
			clock.DefaultMaxAcceptableDriftSecs + 1000
		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: primitive.Timestamp{T: farAhead, I: 1}},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: make([]byte, 20)}},
						{Key: "keyId", Value: int64(0)},
					}},
				}},
			},
			"",
		)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.True(t, vectorClock.Time().ClusterTime().IsZero())
	})
}

func TestServer_GossipAuthenticated(t *testing.T) {
	secretKey := []byte("server-test-secret")

	newAuthServer := func(validator clock.Validator) (*clock.VectorClock, *Server) {
		authConf := &auth.LoadedConfig{HMACSecretKey: secretKey}
		verifier := auth.NewJWTVerifier(authConf)
		vectorClock := testVectorClock(validator, true)
		s := NewServer(
			vectorClock, verifier, authConf, nil, log.NewNopLogger(),
		)
		return vectorClock, s
	}

	signToken := func(t *testing.T, claims auth.LatticeClaims) string {
		jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Lattice: claims,
		})
		tokenString, err := jwtToken.SignedString(secretKey)
		require.NoError(t, err)
		return tokenString
	}

	t.Run("internal token advances the clock", func(t *testing.T) {
		vectorClock, s := newAuthServer(nil)
		addr := serveTest(t, s)

		now := uint32(time.Now().Unix())
		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: primitive.Timestamp{T: now, I: 2}},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: make([]byte, 20)}},
						{Key: "keyId", Value: int64(0)},
					}},
				}},
				{Key: "$configTime", Value: primitive.Timestamp{T: now, I: 1}},
			},
			signToken(t, auth.LatticeClaims{Internal: true}),
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(
			t,
			clock.LogicalTime{Secs: now, Inc: 2},
			vectorClock.Time().ClusterTime(),
		)
		assert.Equal(
			t,
			clock.LogicalTime{Secs: now, Inc: 1},
			vectorClock.Time().ConfigTime(),
		)
	})

	t.Run("unauthenticated placeholder is dropped", func(t *testing.T) {
		vectorClock, s := newAuthServer(nil)
		addr := serveTest(t, s)

		now := uint32(time.Now().Unix())
		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: primitive.Timestamp{T: now, I: 2}},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: make([]byte, 20)}},
						{Key: "keyId", Value: int64(0)},
					}},
				}},
			},
			"",
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, vectorClock.Time().ClusterTime().IsZero())
	})

	t.Run("external token requires a valid signature", func(t *testing.T) {
		validator := signing.NewValidator(
			signing.NewMemoryKeyStore(time.Hour, log.NewNopLogger()),
			log.NewNopLogger(),
		)
		vectorClock, s := newAuthServer(validator)
		addr := serveTest(t, s)

		now := uint32(time.Now().Unix())
		signedTime, err := validator.SignLogicalTime(
			context.Background(), clock.LogicalTime{Secs: now, Inc: 2},
		)
		require.NoError(t, err)

		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: signedTime.Time.Timestamp()},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: signedTime.Proof[:]}},
						{Key: "keyId", Value: signedTime.KeyID},
					}},
				}},
			},
			signToken(t, auth.LatticeClaims{}),
		)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(
			t,
			clock.LogicalTime{Secs: now, Inc: 2},
			vectorClock.Time().ClusterTime(),
		)
	})

	t.Run("external token rejects a forged signature", func(t *testing.T) {
		validator := signing.NewValidator(
			signing.NewMemoryKeyStore(time.Hour, log.NewNopLogger()),
			log.NewNopLogger(),
		)
		vectorClock, s := newAuthServer(validator)
		addr := serveTest(t, s)

		now := uint32(time.Now().Unix())
		resp := postGossip(
			t,
			fmt.Sprintf("http://%s/v1/gossip", addr),
			bson.D{
				{Key: "$clusterTime", Value: bson.D{
					{Key: "clusterTime", Value: primitive.Timestamp{T: now, I: 2}},
					{Key: "signature", Value: bson.D{
						{Key: "hash", Value: primitive.Binary{Data: make([]byte, 20)}},
						{Key: "keyId", Value: int64(12345)},
					}},
				}},
			},
			signToken(t, auth.LatticeClaims{}),
		)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.True(t, vectorClock.Time().ClusterTime().IsZero())
	})

	t.Run("invalid token", func(t *testing.T) {
		_, s := newAuthServer(nil)
		addr := serveTest(t, s)

		resp := postGossip(
			t, fmt.Sprintf("http://%s/v1/gossip", addr), nil, "not-a-token",
		)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_Time(t *testing.T) {
	vectorClock := testVectorClock(nil, false)
	require.NoError(t, vectorClock.AdvanceClusterTimeForTest(
		clock.LogicalTime{Secs: 100, Inc: 2},
	))

	s := NewServer(vectorClock, nil, nil, nil, log.NewNopLogger())
	addr := serveTest(t, s)

	resp, err := http.Get(fmt.Sprintf("http://%s/v1/time", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"secs":100`)
}

func TestServer_Health(t *testing.T) {
	s := NewServer(
		testVectorClock(nil, false), nil, nil, nil, log.NewNopLogger(),
	)
	addr := serveTest(t, s)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	vectorClock := testVectorClock(nil, false)
	registry := prometheus.NewRegistry()
	vectorClock.Metrics().Register(registry)

	s := NewServer(vectorClock, nil, nil, registry, log.NewNopLogger())
	addr := serveTest(t, s)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
