package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"vizflow/internal/workflow"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run an interactive visualization session",
	Long: `Reads one command per line: goals, add, list, select, count, titles,
render, back, edit, undo, explain, evaluate, clear, state, notices,
dismiss, save. Type 'help' for details and 'quit' to leave.

Commands run one at a time, so the only way to abort a slow request is
Ctrl-C: it cancels the request in flight instead of leaving the shell.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, _ []string) error {
	sess, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer sess.Close()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()
	go func() {
		for range interrupts {
			if !sess.Cancel() {
				fmt.Fprintln(cmd.ErrOrStderr(), "\n(nothing in flight; type 'quit' to leave)")
			}
		}
	}()

	out := cmd.OutOrStdout()
	if sess.Stage() == workflow.StageArtifactReady {
		sum := workflow.Summarize(sess.Snapshot())
		fmt.Fprintf(out, "Resumed visualization %q. 'titles' starts over for this goal; 'goals' starts fresh.\n", sum.Chosen)
	}
	sh := newShell(sess, appConfig, out, cmd.ErrOrStderr())
	sh.flushNotices()
	return sh.run(cmd.Context(), cmd.InOrStdin())
}
