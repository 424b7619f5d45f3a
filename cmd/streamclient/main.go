package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gamestream/internal/client"
	"gamestream/pkg/config"
	"gamestream/pkg/logging"
	"gamestream/pkg/version"
)

var (
	cfgFile   string
	verbose   bool
	streamKey string
	host      string
	port      int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "streamclient",
		Short:         "Capture and publish a live stream",
		Long:          "streamclient captures video and audio from the configured source, encodes it, and publishes it to a stream server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "client.toml", "path to the client config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().StringVar(&streamKey, "stream-key", "", "stream key override")
	rootCmd.Flags().StringVar(&host, "host", "", "server host override")
	rootCmd.Flags().IntVar(&port, "port", 0, "server port override")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetInfo()
			cmd.Printf("streamclient %s (%s, built %s)\n", info.Version, version.GetShortCommit(), info.BuildDate)
		},
	}
}

func runClient() error {
	logger := logging.NewLoggerWithService("streamclient")
	if verbose {
		logging.SetVerbose(logger)
	}

	config.LoadEnv(logger)

	cfg, found, err := config.LoadClientConfig(cfgFile)
	if err != nil {
		return err
	}
	if !found {
		logger.WithField("path", cfgFile).Info("Config file not found, using defaults")
	}

	overrides := config.ClientOverrides{
		StreamKey: streamKey,
		Host:      host,
		Port:      port,
	}
	overrides.Apply(&cfg)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"server":  cfg.Server.Host,
		"port":    cfg.Server.Port,
		"app":     cfg.Server.AppName,
	}).Info("Starting stream client")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := client.New(cfg, logger)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Stream client stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := logging.NewLoggerWithService("streamclient")
		logger.WithError(err).Error("Stream client failed")
		os.Exit(1)
	}
}
