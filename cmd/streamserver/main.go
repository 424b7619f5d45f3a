package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gamestream/internal/auth"
	"gamestream/internal/handlers"
	"gamestream/internal/hls"
	"gamestream/internal/ingest"
	"gamestream/internal/registry"
	"gamestream/internal/signaling"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/monitoring"
	"gamestream/pkg/server"
	"gamestream/pkg/version"
)

var (
	cfgFile    string
	verbose    bool
	ingestPort int
	httpPort   int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "streamserver",
		Short:         "Ingest and distribute live streams",
		Long:          "streamserver accepts publisher connections, fans packets out to viewers, packages HLS segments, and negotiates WebRTC playback sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "server.toml", "path to the server config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().IntVar(&ingestPort, "rtmp-port", 0, "ingest port override")
	rootCmd.Flags().IntVar(&httpPort, "http-port", 0, "HTTP port override")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetInfo()
			cmd.Printf("streamserver %s (%s, built %s)\n", info.Version, version.GetShortCommit(), info.BuildDate)
		},
	}
}

func runServer() error {
	logger := logging.NewLoggerWithService("streamserver")
	if verbose {
		logging.SetVerbose(logger)
	}

	config.LoadEnv(logger)

	cfg, found, err := config.LoadServerConfig(cfgFile)
	if err != nil {
		return err
	}
	if !found {
		logger.WithField("path", cfgFile).Info("Config file not found, using defaults")
	}

	overrides := config.ServerOverrides{
		IngestPort: ingestPort,
		HTTPPort:   httpPort,
	}
	overrides.Apply(&cfg)

	logger.WithFields(logging.Fields{
		"version":     version.Version,
		"ingest_port": cfg.Ingest.Port,
		"http_port":   cfg.HTTP.Port,
		"auth":        cfg.Auth.Enabled,
	}).Info("Starting stream server")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("streamserver", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("streamserver", version.Version, version.GitCommit)

	streamMetrics := metricsCollector.CreateStreamMetrics()

	reg := registry.New(logger)
	gate := auth.New(cfg.Auth)
	engine := signaling.NewPionEngine(cfg.WebRTC.ICEServers)
	signals := signaling.NewManager(reg, engine, logger, streamMetrics)
	packager := hls.New(reg, cfg.Storage, logger)
	ingestServer := ingest.NewServer(cfg.Ingest, gate, reg, logger, metricsCollector, streamMetrics)

	ingestAddr := fmt.Sprintf("%s:%d", cfg.Ingest.BindAddr, cfg.Ingest.Port)
	healthChecker.AddCheck("ingest", monitoring.ListenerHealthCheck("ingest", ingestAddr))
	healthChecker.AddCheck("streams", monitoring.StreamCountHealthCheck(reg.Count, cfg.Ingest.MaxConnections))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"ingest_port":     strconv.Itoa(cfg.Ingest.Port),
		"hls_segment_dir": cfg.Storage.SegmentDir,
	}))

	router := server.SetupRouterWithCORS(logger, cfg.HTTP.CORSEnabled)
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())

	api := handlers.New(reg, gate, signals, packager, cfg.HTTP.StaticDir, logger)
	api.Register(router)

	httpConfig := server.DefaultConfig("streamserver", uint16(cfg.HTTP.Port))
	httpConfig.Host = cfg.HTTP.BindAddr

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingestServer.Run(ctx)
	})
	g.Go(func() error {
		return server.Start(ctx, httpConfig, router, logger)
	})
	g.Go(func() error {
		return packager.Run(ctx, hls.DefaultPollInterval)
	})
	g.Go(func() error {
		return signals.RunReaper(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Stream server stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := logging.NewLoggerWithService("streamserver")
		logger.WithError(err).Error("Stream server failed")
		os.Exit(1)
	}
}
