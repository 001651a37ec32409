// vizflow guides a data-visualization session against a remote analysis
// service: generate goals, pick one, request titles, render, then refine
// the chart with natural-language edits.
//
// Usage:
//
//	vizflow shell                  interactive session
//	vizflow serve [--fake]         MCP server over stdio
//	vizflow status                 show the resumable visualization
//	vizflow cache show|clear       inspect or clear the render cache
//	vizflow fake-server            run the local stand-in service
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vizflow/internal/config"
	"vizflow/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
	baseURL    string
	logLevel   string
	logFormat  string
	noCache    bool
}

// appConfig is the resolved configuration, set before any subcommand runs.
var appConfig config.Config

var rootCmd = &cobra.Command{
	Use:   "vizflow",
	Short: "Guided data visualization against a remote analysis service",
	Long: "vizflow walks through goal generation, title selection, rendering and\n" +
		"natural-language editing of a chart, keeping the current visualization\n" +
		"in a local cache so a session can be resumed.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file (YAML or JSON)")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file with VIZFLOW_* overrides (ignored when missing)")
	pf.StringVar(&rootFlags.baseURL, "base-url", "", "Analysis service base URL (overrides config)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&rootFlags.noCache, "no-cache", false, "Keep the visualization in memory only")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(fakeServerCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, strings.ToLower(cfg.Log.Format), cmd.ErrOrStderr())
	appConfig = cfg
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
