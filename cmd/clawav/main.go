package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var version = "dev"

// errBlocked makes `scan` exit non-zero when the firewall would block the text.
var errBlocked = errors.New("blocked by prompt firewall")

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clawav",
		Short: "Host security monitor with a prompt firewall",
		Long: `clawav tails kernel firewall logs for outbound connections, runs Sigma
detectors over normalized events, keeps a bounded alert history and scans
outbound LLM prompts against a tiered firewall policy.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clawav %s\n", version)
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
