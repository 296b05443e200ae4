// Package cmd wires the CLI (github.com/spf13/cobra) to internal/proxy.
// Argument parsing, config loading, and key-binding textual parsing
// live here, deliberately kept out of internal/proxy's core loop.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"claudechill/internal/config"
	"claudechill/internal/debuglog"
	"claudechill/internal/keyparser"
	"claudechill/internal/proxy"
	"claudechill/internal/termstyle"
	"claudechill/internal/version"
)

// NewRootCmd creates the root cobra command: "claudechill COMMAND
// [ARGS...]", with "--" available to pass flags through to the child
// untouched.
func NewRootCmd() *cobra.Command {
	var historyLines int
	var lookbackKeyText string
	var autoLookbackTimeoutMs int
	var printVersion bool

	rootCmd := &cobra.Command{
		Use:   "claudechill COMMAND [ARGS...]",
		Short: "Coalescing PTY proxy for chatty interactive agents",
		Long: `claudechill sits between your terminal and a long-running, chatty child
process, absorbing its raw output and emitting a coalesced, flicker-free
redraw at a bounded rate. Press the lookback key to scroll through full
history in your terminal's own scrollback; alt-screen applications
(editors, pagers) pass through untouched.

  claudechill claude
  claudechill -H 50000 -- some-agent --verbose`,
		// Deliberately no subcommands: COMMAND is a positional argument,
		// so a subcommand named e.g. "version" would shadow a child
		// process of the same name. --version is a root flag instead.
		Args:                  cobra.ArbitraryArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}
			if len(args) == 0 {
				return cmd.Usage()
			}
			return runProxy(args, historyLines, lookbackKeyText, autoLookbackTimeoutMs, cmd.Flags().Changed("history"), cmd.Flags().Changed("lookback-key"), cmd.Flags().Changed("auto-lookback-timeout"))
		},
	}
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.Flags().IntVarP(&historyLines, "history", "H", 0, "override max_history_lines")
	rootCmd.Flags().StringVarP(&lookbackKeyText, "lookback-key", "k", "", "override the lookback trigger key, e.g. ctrl+6")
	rootCmd.Flags().IntVar(&autoLookbackTimeoutMs, "auto-lookback-timeout", -1, "override the quiet-screen auto-dump interval in ms (0 disables)")
	rootCmd.Flags().BoolVar(&printVersion, "version", false, "print the claudechill version and exit")

	return rootCmd
}

// runProxy resolves config-file defaults, CLI overrides, and the key
// binding, then hands off to proxy.Run. CLI flags win over the config
// file; the config file wins over built-in defaults.
func runProxy(args []string, historyLines int, lookbackKeyText string, autoLookbackTimeoutMs int, historyChanged, keyChanged, timeoutChanged bool) error {
	fileCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudechill: %s: %v\n", termstyle.Yellow("config error, using defaults"), err)
		fileCfg = &config.Config{}
	}

	cfg := proxy.Config{
		Command: args[0],
		Args:    args[1:],
	}

	cfg.HistoryLines = fileCfg.HistoryLines
	if historyChanged {
		cfg.HistoryLines = historyLines
	}

	cfg.AutoLookbackTimeoutMs = fileCfg.AutoLookbackTimeoutMs
	if timeoutChanged {
		cfg.AutoLookbackTimeoutMs = autoLookbackTimeoutMs
	}

	keyText := fileCfg.LookbackKey
	if keyChanged {
		keyText = lookbackKeyText
	}
	cfg.LookbackKey, cfg.LookbackKeyText = resolveKey(keyText)

	cfg.Log = debuglog.New(os.Getenv("CLAUDE_CHILL_LOG_FILE"))

	exitCode, err := proxy.Run(cfg)
	cfg.Log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", termstyle.Red("Proxy error"), err)
		os.Exit(1)
	}
	os.Exit(exitCode)
	return nil
}

// resolveKey parses the textual key binding, non-fatally falling back to
// the built-in default on parse failure per the external-interface
// contract.
func resolveKey(text string) ([]byte, string) {
	if text == "" {
		return keyparser.Default, keyparser.DefaultText
	}
	key, display, err := keyparser.Parse(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudechill: %s %q, using default: %v\n", termstyle.Yellow("invalid --lookback-key"), text, err)
		return keyparser.Default, keyparser.DefaultText
	}
	return key, display
}
