package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/pkg/auth"
	"github.com/latticedb/lattice/pkg/clock"
	"github.com/latticedb/lattice/pkg/clock/signing"
	latticeconfig "github.com/latticedb/lattice/pkg/config"
	"github.com/latticedb/lattice/pkg/fcv"
	"github.com/latticedb/lattice/pkg/log"
	"github.com/latticedb/lattice/pkg/wallclock"
	"github.com/latticedb/lattice/server"
	"github.com/latticedb/lattice/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start a clock node",
		Long: `Start a clock node.

The node tracks the cluster's causal time as a vector of logical timestamps
and exchanges it with cluster members and clients over the gossip endpoint.

Examples:
  # Start a node.
  lattice server

  # Start a node listening on :7100.
  lattice server --http.bind-addr :7100

  # Start a node requiring client JWTs.
  lattice server --auth.hmac-secret-key secret
`,
	}

	conf := config.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := latticeconfig.Load(configPath, conf, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if conf.Cluster.NodeID == "" {
			conf.Cluster.NodeID = conf.Cluster.NodeIDPrefix + uuid.NewString()
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run server", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	logger.Info(
		"starting clock node",
		zap.String("node-id", conf.Cluster.NodeID),
		zap.String("bind-addr", conf.HTTP.BindAddr),
	)

	var wallClock wallclock.Source = wallclock.NewSystemSource()
	if conf.WallClock.NTPServer != "" {
		wallClock = wallclock.NewNTPSource(
			conf.WallClock.NTPServer,
			conf.WallClock.NTPSyncInterval,
			logger,
		)
	}

	// Set at most once, here at the composition root. The clock is threaded
	// through every call site that needs it.
	var validator clock.Validator
	if conf.Signing.Enabled {
		keyStore := signing.NewMemoryKeyStore(
			conf.Signing.KeyRotationInterval, logger,
		)
		validator = signing.NewValidator(keyStore, logger)
	}

	authManager := auth.NewManager(conf.Auth.Enabled())

	var verifier auth.Verifier
	var authConf *auth.LoadedConfig
	if conf.Auth.Enabled() {
		var err error
		authConf, err = conf.Auth.Load()
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		verifier = auth.NewJWTVerifier(authConf)
	}

	clusterFCV := fcv.New(fcv.Version(conf.Cluster.FeatureVersion))

	vectorClock := clock.New(
		conf.Clock,
		wallClock,
		validator,
		authManager,
		clusterFCV.Gate(fcv.Latest),
		logger,
	)

	registry := prometheus.NewRegistry()
	vectorClock.Metrics().Register(registry)

	httpServer := server.NewServer(
		vectorClock,
		verifier,
		authConf,
		registry,
		logger,
	)

	httpLn, err := net.Listen("tcp", conf.HTTP.BindAddr)
	if err != nil {
		return fmt.Errorf("http listen: %s: %w", conf.HTTP.BindAddr, err)
	}

	var group rungroup.Group

	group.Add(func() error {
		if err := httpServer.Serve(httpLn); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(
			context.Background(), conf.GracePeriod,
		)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("failed to shutdown http server", zap.Error(err))
		}
	})

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	group.Add(func() error {
		<-ctx.Done()

		logger.Info("received shutdown signal")

		// Stop the clock advancing before the server drains.
		vectorClock.Disable()

		return nil
	}, func(error) {
		cancel()
	})

	return group.Run()
}
