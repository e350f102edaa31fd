package cmd

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/webshot/internal/target"
)

// newInspectCmd creates the 'inspect' subcommand, which parses a target file
// and prints how many targets of each kind it holds without capturing.
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Count the targets in a file by kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("read file flag: %w", err)
			}
			targets, err := target.ParseFile(path)
			if err != nil {
				return err
			}
			return printTargetStats(cmd.OutOrStdout(), targets)
		},
	}
	cmd.Flags().StringP("file", "f", "", "file with one target per line")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func renderTargetStats(targets []target.Target) (string, error) {
	counts := target.CountByKind(targets)
	data := pterm.TableData{{"Type", "Count"}}
	for _, kind := range []target.Kind{target.KindURL, target.KindDomain, target.KindIP, target.KindIPPort} {
		data = append(data, []string{string(kind), strconv.Itoa(counts[kind])})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render target stats: %w", err)
	}
	return table, nil
}
