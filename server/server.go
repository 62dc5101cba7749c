// Package server is the HTTP surface of the clock node. Cluster members and
// external clients gossip the vector time in request and response bodies of
// the gossip endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/pkg/auth"
	"github.com/latticedb/lattice/pkg/clock"
	"github.com/latticedb/lattice/pkg/log"
	"github.com/latticedb/lattice/server/middleware"
)

// Server exposes the gossip endpoint plus health, metrics and time
// inspection routes.
type Server struct {
	clock *clock.VectorClock

	router *gin.Engine

	httpServer *http.Server

	registry *prometheus.Registry

	logger log.Logger
}

func NewServer(
	vectorClock *clock.VectorClock,
	verifier auth.Verifier,
	authConf *auth.LoadedConfig,
	registry *prometheus.Registry,
	logger log.Logger,
) *Server {
	logger = logger.WithSubsystem("server")

	router := gin.New()
	server := &Server{
		clock:  vectorClock,
		router: router,
		httpServer: &http.Server{
			Handler: router,
		},
		registry: registry,
		logger:   logger,
	}

	// Recover from panics.
	router.Use(gin.CustomRecovery(server.panicRoute))
	router.Use(middleware.NewLogger(logger))
	router.Use(middleware.NewSession(verifier, authConf))

	server.registerRoutes()

	return server
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting http server", zap.String("addr", ln.Addr().String()))

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown attempts to gracefully shutdown the server by waiting for pending
// requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.POST("/v1/gossip", s.gossipRoute)
	s.router.GET("/v1/time", s.timeRoute)
	s.router.GET("/healthz", s.healthRoute)

	if s.registry != nil {
		s.router.GET("/metrics", s.metricsHandler())
	}
}

// gossipRoute merges the times gossiped in the request body into the clock,
// then writes the node's current time into the response body.
//
// The body is a BSON document; an empty body gossips nothing in.
func (s *Server) gossipRoute(c *gin.Context) {
	sess := middleware.Session(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}

	if len(body) > 0 {
		in := bson.Raw(body)
		if err := in.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bson"})
			return
		}

		err := s.clock.GossipIn(
			c.Request.Context(), sess, in, true, auth.Tags(0),
		)
		if err != nil {
			c.JSON(gossipInStatus(err), gin.H{"error": err.Error()})
			return
		}
	}

	var out bson.D
	if _, err := s.clock.GossipOut(
		c.Request.Context(), sess, &out, auth.Tags(0),
	); err != nil {
		s.logger.Error("gossip out", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gossip out"})
		return
	}

	resp, err := bson.Marshal(out)
	if err != nil {
		s.logger.Error("marshal gossip response", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode response"})
		return
	}
	c.Data(http.StatusOK, "application/bson", resp)
}

func (s *Server) timeRoute(c *gin.Context) {
	now := s.clock.Time()
	c.JSON(http.StatusOK, gin.H{
		"cluster_time": gin.H{
			"secs": now.ClusterTime().Secs,
			"inc":  now.ClusterTime().Inc,
		},
		"config_time": gin.H{
			"secs": now.ConfigTime().Secs,
			"inc":  now.ConfigTime().Inc,
		},
		"enabled": s.clock.IsEnabled(),
	})
}

func (s *Server) healthRoute(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"handler panic",
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

func (s *Server) metricsHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(
		s.registry,
		promhttp.HandlerOpts{Registry: s.registry},
	)
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func init() {
	// Disable Gin debug logs.
	gin.SetMode(gin.ReleaseMode)
}

// gossipInStatus maps a gossip-in failure to a response status: trust
// failures are unauthorized, everything else (rate limiting, malformed
// values) is a bad request.
func gossipInStatus(err error) int {
	if errors.Is(err, clock.ErrCannotVerify) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, clock.ErrRateLimited) ||
		errors.Is(err, clock.ErrBeyondMax) ||
		errors.Is(err, clock.ErrBadValue) {
		return http.StatusBadRequest
	}
	// Validator rejections (unknown key, proof mismatch).
	return http.StatusUnauthorized
}
