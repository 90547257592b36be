package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot(newCommand(os.Stdout))
	if err := root.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands
func buildRoot(c *command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createScanCommand(c, globalFlags),
		createServeCommand(c, globalFlags),
		createMatchersCommand(c, globalFlags),
		createVersionCommand(c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentwatch",
		Short: "Detect running coding agents and classify their activity",
		Long: `Agentwatch enumerates local processes, recognizes AI coding agents,
and reports whether each one is working, waiting or stalled, together with
its working directory and repository.

Examples:
  agentwatch scan                   # One-shot table of agents
  agentwatch scan --json            # Same, as JSON
  agentwatch serve --config=agentwatch.toml
  agentwatch matchers               # Show effective matchers`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (TOML, YAML or JSON; optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return root
}

func createScanCommand(c *command, globalFlags *GlobalFlags) *cobra.Command {
	scanFlags := &ScanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one detection pass and print the agents found",
		Long: `Run the detection pipeline once and print every agent process.

Examples:
  agentwatch scan
  agentwatch scan --json
  agentwatch scan --no-cwd          # Skip lsof lookups`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Scan(cmd.Context(), *globalFlags, *scanFlags)
		},
	}
	cmd.Flags().BoolVar(&scanFlags.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&scanFlags.NoCwd, "no-cwd", false, "disable working directory resolution")
	return cmd
}

func createServeCommand(c *command, globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch agents continuously",
		Long: `Run the scanner on its refresh interval until interrupted. Agent
appearances, exits and stalls are logged; /healthz and /metrics are served on
the configured ops listener.

Signals:
  SIGUSR1  pause scanning
  SIGUSR2  resume scanning

Examples:
  agentwatch serve --config=agentwatch.toml
  agentwatch serve --config=agentwatch.toml --watch-config
  agentwatch serve --daemonize --pidfile=/tmp/agentwatch.pid --logfile=/tmp/agentwatch.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(cmd.Context(), *globalFlags, *serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "write logs to this file (rotated)")
	cmd.Flags().BoolVar(&serveFlags.WatchConfig, "watch-config", false, "reload matchers and thresholds when the config file changes")
	return cmd
}

func createMatchersCommand(c *command, globalFlags *GlobalFlags) *cobra.Command {
	matchersFlags := &MatchersFlags{}
	cmd := &cobra.Command{
		Use:   "matchers",
		Short: "List the matchers in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Matchers(*globalFlags, *matchersFlags)
		},
	}
	cmd.Flags().BoolVar(&matchersFlags.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createVersionCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(c.out, "agentwatch %s\n", version)
		},
	}
}
