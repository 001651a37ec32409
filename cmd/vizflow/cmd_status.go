package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vizflow/internal/display"
	"vizflow/internal/format"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configuration and the visualization a session would resume with",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	out := cmd.OutOrStdout()

	baseURL := cfg.Service.BaseURL
	if baseURL == "" {
		baseURL = "(not set)"
	}
	fmt.Fprintf(out, "Service:    %s\n", baseURL)
	fmt.Fprintf(out, "Renderer:   %s\n", display.Renderer(string(cfg.Renderer())))
	fmt.Fprintf(out, "Goals:      %d per request\n", cfg.Workflow.GoalCount)
	fmt.Fprintf(out, "Titles:     %d per request\n", cfg.Workflow.VisualizationCount)
	fmt.Fprintf(out, "Timeout:    %s\n", cfg.RequestTimeout())

	if cfg.Cache.Disabled {
		fmt.Fprintf(out, "Cache:      disabled\n")
		return nil
	}
	fmt.Fprintf(out, "Cache:      %s (session %q)\n", cfg.Cache.Path, cfg.Cache.SessionKey)

	c, err := openSQLCache()
	if err != nil {
		return err
	}
	defer c.Close()
	e, ok, err := c.Entry()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "\nNo cached visualization. Run 'vizflow shell' to start a session.\n")
		return nil
	}
	a := e.Artifact
	fmt.Fprintf(out, "\nResumable visualization:\n")
	fmt.Fprintf(out, "  Title:    %s\n", a.SourceTitle)
	fmt.Fprintf(out, "  Goal:     %s\n", a.SourceGoal)
	fmt.Fprintf(out, "  Image:    %s %s (%s base64)\n", a.MimeType, a.Digest(), format.FmtBytes(len(a.Payload)))
	if !e.SavedAt.IsZero() {
		fmt.Fprintf(out, "  Saved:    %s\n", e.SavedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
