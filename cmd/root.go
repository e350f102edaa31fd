// Package cmd defines and implements the CLI commands for the webshot executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webshot",
		Short: "Capture mobile screenshots of a list of web targets.",
		Long: `webshot opens every URL, domain or IP address listed in a target file
in a headless mobile browser and saves a screenshot of it, running captures
concurrently and logging each outcome.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command; captures that have not started yet are recorded as failures.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil {
		return f.Value.String()
	}
	return ""
}
