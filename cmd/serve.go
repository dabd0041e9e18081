package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chimera/internal/app"
	"chimera/internal/config"
	"chimera/pkg/logging"
)

var (
	serveTransport   string
	serveHost        string
	servePort        int
	serveLogLevel    string
	serveLogsDir     string
	serveMetadataURL string
	serveDataURL     string
	serveConfigPath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and serve MCP",
	Long: `Starts the chimera engine: opens the metadata database (fatal if
unreachable), creates missing tables, connects the optional data database
(failure means offline mode), seeds an empty registry with the sample
catalog, and serves MCP over stdio or SSE.

Flags override values from config.yaml. The default config directory is
~/.config/chimera; use --config-path to point somewhere else.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logFile, err := logging.InitWithFile(logging.ParseLevel(cfg.LogLevel), cfg.LogsDir)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Close()
	if cfg.Transport != config.TransportStdio {
		fmt.Fprintf(cmd.OutOrStdout(), "logging to %s\n", logFile)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	return application.Run(ctx)
}

// loadConfig merges the config file with serve's flag overrides and
// validates the result. Only flags the user actually set override.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = serveTransport
	}
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}
	if flags.Changed("logs-dir") {
		cfg.LogsDir = serveLogsDir
	}
	if flags.Changed("metadata-url") {
		cfg.MetadataURL = serveMetadataURL
	}
	if flags.Changed("data-url") {
		cfg.DataURL = serveDataURL
	}

	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTransport, "transport", config.TransportStdio, "MCP transport: stdio or sse")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind the SSE transport to")
	serveCmd.Flags().IntVar(&servePort, "port", 8090, "Port for the SSE transport")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogsDir, "logs-dir", "logs", "Directory for timestamped log files")
	serveCmd.Flags().StringVar(&serveMetadataURL, "metadata-url", "", "Metadata database URL (sqlite:// or postgres://)")
	serveCmd.Flags().StringVar(&serveDataURL, "data-url", "", "Data database URL for SQL tools")
	serveCmd.PersistentFlags().StringVar(&serveConfigPath, "config-path", config.DefaultConfigPath(), "Configuration directory")
}
