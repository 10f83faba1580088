package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"clawav/internal/firewall"
)

type scanOptions struct {
	tier       int
	overrides  map[string]string
	configPath string
	asJSON     bool
}

func newScanCommand() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [text]",
		Short: "Scan prompt text against the firewall policy",
		Long: `Scan classifies prompt text (from the argument or stdin) the way the firewall
classifies outbound LLM requests. Exits 2 when the text would be blocked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.tier, "tier", 0, "Policy tier 1-3 (default: firewall.tier from config, else 2)")
	cmd.Flags().StringToStringVar(&opts.overrides, "override", nil, "Per-category action override, e.g. jailbreak=block")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file to read tier and overrides from")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func runScan(cmd *cobra.Command, args []string, opts *scanOptions) error {
	text := ""
	if len(args) > 0 {
		text = args[0]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "read stdin")
		}
		text = string(b)
	}

	tier := 2
	overrides := map[string]string{}
	if opts.configPath != "" {
		cfg, _, err := loadConfig(opts.configPath)
		if err != nil {
			return err
		}
		tier = cfg.Clawav.Firewall.Tier
		for k, v := range cfg.Clawav.Firewall.Overrides {
			overrides[k] = v
		}
	}
	if opts.tier != 0 {
		tier = opts.tier
	}
	for k, v := range opts.overrides {
		overrides[k] = v
	}

	fw, err := firewall.New(tier, overrides)
	if err != nil {
		return err
	}
	res := fw.Scan(text)

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(out, res)
	}

	if res.Blocked() {
		return errBlocked
	}
	return nil
}

func printResult(w io.Writer, res firewall.Result) {
	fmt.Fprintf(w, "verdict: %s\n", strings.ToUpper(res.Verdict.String()))
	for _, m := range res.Matches {
		fmt.Fprintf(w, "  %-5s %-20s %-26s %s\n", m.Action, m.Category.Key(), m.PatternName, m.Description)
	}
}
