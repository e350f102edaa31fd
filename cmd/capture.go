package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/app"
	"github.com/JakeFAU/webshot/internal/config"
	"github.com/JakeFAU/webshot/internal/logging"
	"github.com/JakeFAU/webshot/internal/target"
)

const closeTimeout = 30 * time.Second

// newCaptureCmd creates and configures the 'capture' subcommand.
func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Screenshot every target in a file",
		Long: `Reads one target per line (URL, domain, IP or IP:port), captures each
in a headless mobile browser and stores the PNG, writing screenshot_log.csv
and screenshot_log.txt next to the screenshots.`,
		Args: cobra.NoArgs,
		RunE: runCaptureCommand,
	}

	f := cmd.Flags()
	f.StringP("file", "f", "", "file with one target per line")
	f.IntP("timeout", "t", 5, "seconds each page may settle before its screenshot")
	f.Bool("headless", true, "run the browser without a window")
	f.StringP("output", "o", "screen_shots", "directory for screenshots and logs")
	f.IntP("concurrency", "c", 4, "maximum captures in flight")
	f.String("backend", config.BackendChromedp, "capture backend: chromedp, rod or placeholder")
	f.Float64("delay", 0, "minimum seconds between capture starts")
	f.String("storage", config.ProviderLocal, "screenshot storage: local, memory or gcs")
	f.Bool("bar", true, "show a progress bar")
	f.String("metrics", "", "serve /metrics and /progress on this address during the run")
	return cmd
}

func runCaptureCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath(cmd), cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	defer zap.ReplaceGlobals(logger)()

	targets, err := target.ParseFile(cfg.Targets.File)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := printTargetStats(out, targets); err != nil {
		return err
	}
	if len(targets) == 0 {
		logger.Warn("no targets found", zap.String("file", cfg.Targets.File))
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger, app.WithProgressOutput(out))
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}

	summary, runErr := a.Run(ctx, targets)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("failed to close application services", zap.Error(err))
	}

	if ctx.Err() != nil {
		logger.Warn("capture interrupted", zap.Error(ctx.Err()))
	}
	fmt.Fprintf(out, "\nCompleted! succeeded: %d, failed: %d\n", summary.Succeeded, summary.Failed)
	if cfg.Storage.Provider == config.ProviderLocal {
		fmt.Fprintf(out, "Screenshots saved to: %s\n", cfg.Storage.Local.BaseDir)
	}
	fmt.Fprintf(out, "Log file: %s\n", cfg.LogPath())
	return runErr
}

func printTargetStats(w io.Writer, targets []target.Target) error {
	table, err := renderTargetStats(targets)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Found %d targets\n%s\n", len(targets), table)
	if err != nil {
		return fmt.Errorf("write target stats: %w", err)
	}
	return nil
}
