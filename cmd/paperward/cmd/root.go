package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paperward/paperward/internal/artifact"
	"github.com/paperward/paperward/internal/config"
	"github.com/paperward/paperward/internal/download"
	"github.com/paperward/paperward/internal/logger"
	"github.com/paperward/paperward/internal/metrics"
	"github.com/paperward/paperward/internal/registry"
	"github.com/paperward/paperward/internal/supervisor"
	"github.com/paperward/paperward/internal/version"
)

// errUnknownLogLevel is returned when --log-level names no known level.
var errUnknownLogLevel = errors.New("unknown log level")

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to the log.
	logLevel string
	// serverDirectory overrides the configured server directory.
	serverDirectory string
	// metricsAddress overrides the configured diagnostics listen address.
	metricsAddress string

	// rootCmd represents the base command running the update-and-supervise loop.
	rootCmd = &cobra.Command{
		Use:   "paperward",
		Short: "Keep a PaperMC server up to date and running.",
		Long: `Supervisor for a PaperMC game server.

Each cycle asks the build registry for the newest build of the configured
project, downloads and installs it atomically when the installed one is
older, and launches the server with Aikar's G1GC tuning flags. Update
failures are never fatal: the loop falls back to the build already on disk.
After the server exits, the operator is asked whether to restart or stop;
silence restarts.

Settings are read from ` + config.DefaultConfigFilename + ` when present, otherwise built-in
defaults apply. Run "paperward init" to write the defaults out for editing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return run(ctx, cmd)
		},
	}
)

// Execute runs the paperward CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", logger.Level().String(),
		"minimum log level (debug, info, warn, error, fatal)")
	rootCmd.Flags().StringVarP(&serverDirectory, "directory", "d", "",
		"server directory holding the jar (overrides configuration)")
	rootCmd.Flags().StringVar(&metricsAddress, "metrics-address", "",
		"listen address of the diagnostics endpoint (overrides configuration)")
}

// run wires the supervisor's collaborators from the effective settings and
// drives the loop until an operator stop or a shutdown signal.
func run(ctx context.Context, cmd *cobra.Command) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%q: %w", logLevel, errUnknownLogLevel)
	}

	logger.SetLevel(level)

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line flags win over the settings file.
	if serverDirectory != "" {
		cfg.ServerDirectory = serverDirectory
	}

	if cmd.Flags().Changed("metrics-address") {
		cfg.MetricsAddress = metricsAddress
	}

	if err = config.Validate(cfg); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	registryClient, err := registry.NewClient(cfg.Endpoint, cfg.Project, cfg.GameVersion,
		registry.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("set up registry client: %w", err)
	}

	options := &supervisor.Options{
		Registry:      registryClient,
		Store:         artifact.NewStore(cfg.ServerDirectory),
		Fetcher:       download.NewDownloader(download.WithProgress(consoleProgress(os.Stderr))),
		Runner:        supervisor.NewJavaRunner(cfg.JavaPath, cfg.ServerMemory),
		Prompter:      supervisor.NewConsolePrompter(os.Stdin, os.Stdout),
		Guard:         supervisor.NewGuard(cfg.ServerDirectory),
		PromptTimeout: cfg.PromptTimeout,
	}

	if cfg.MetricsAddress != "" {
		diagnostics := metrics.New()
		options.Metrics = diagnostics

		// The diagnostics endpoint lives and dies with the loop.
		go func() {
			if serveErr := diagnostics.Serve(ctx, cfg.MetricsAddress); serveErr != nil {
				logger.ErrorKV(ctx, "Diagnostics endpoint failed", "error", serveErr)
			}
		}()
	}

	return supervisor.Run(ctx, options)
}

// loadConfig reads the settings file. A missing file is only acceptable
// when the operator did not name one explicitly; defaults apply then.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		logger.InfoKV(ctx, "No settings file found, using defaults", "path", configPath)

		return config.Default(), nil
	}

	return nil, err
}

// consoleProgress renders download progress as one self-overwriting line.
func consoleProgress(out io.Writer) download.ProgressFunc {
	const megabyte = 1 << 20

	return func(done, total int64) {
		if total > 0 {
			fmt.Fprintf(out, "\rDownloaded: %.1f of %.1f MB (%.0f%%)",
				float64(done)/megabyte,
				float64(total)/megabyte,
				float64(done)/float64(total)*100)
		} else {
			fmt.Fprintf(out, "\rDownloaded: %.1f MB", float64(done)/megabyte)
		}

		// Finish the line once the whole body arrived.
		if done == total {
			fmt.Fprintln(out)
		}
	}
}
