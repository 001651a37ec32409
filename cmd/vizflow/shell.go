package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"vizflow/internal/config"
	"vizflow/internal/display"
	"vizflow/internal/format"
	"vizflow/internal/viz"
	"vizflow/internal/workflow"
)

const shellPrompt = "vizflow> "

// shell reads one command per line and runs it against a workflow
// session. Each line is parsed by a fresh cobra tree so flags never carry
// over between lines.
type shell struct {
	sess     *workflow.Session
	cfg      config.Config
	out      io.Writer
	errOut   io.Writer
	renderer viz.Renderer

	lastExplanation string
	lastNotice      int
}

func newShell(sess *workflow.Session, cfg config.Config, out, errOut io.Writer) *shell {
	return &shell{
		sess:     sess,
		cfg:      cfg,
		out:      out,
		errOut:   errOut,
		renderer: cfg.Renderer(),
	}
}

// run processes lines from in until EOF, "quit" or "exit".
func (sh *shell) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	fmt.Fprint(sh.out, shellPrompt)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case "quit", "exit":
			return nil
		default:
			sh.exec(ctx, strings.Fields(line))
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(sh.out, shellPrompt)
	}
	return sc.Err()
}

// exec runs one command line and reports its outcome. Workflow failures
// surface as notice banners; anything else is printed as a plain error.
func (sh *shell) exec(ctx context.Context, args []string) {
	root := sh.commands()
	root.SetArgs(args)
	root.SetOut(sh.out)
	root.SetErr(sh.errOut)
	err := root.ExecuteContext(ctx)
	if sh.flushNotices() == 0 && err != nil {
		fmt.Fprintf(sh.errOut, "error: %v\n", err)
	}
}

// flushNotices prints notices posted since the last flush.
func (sh *shell) flushNotices() int {
	n := 0
	for _, notice := range sh.sess.Notices().List() {
		if notice.ID <= sh.lastNotice {
			continue
		}
		fmt.Fprintln(sh.errOut, format.NoticeBanner(notice))
		sh.lastNotice = notice.ID
		n++
	}
	return n
}

func (sh *shell) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(
		sh.goalsCmd(), sh.addCmd(), sh.listCmd(), sh.selectCmd(),
		sh.countCmd(), sh.titlesCmd(), sh.renderCmd(), sh.backCmd(),
		sh.editCmd(), sh.undoCmd(), sh.explainCmd(), sh.evaluateCmd(),
		sh.clearCmd(), sh.stateCmd(), sh.noticesCmd(), sh.dismissCmd(),
		sh.saveCmd(),
	)
	return root
}

func (sh *shell) goalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goals [count]",
		Short: "Generate a fresh goal list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := sh.cfg.Workflow.GoalCount
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("goal count %q is not a number", args[0])
				}
				n = v
			}
			goals, err := sh.sess.Goals.Generate(cmd.Context(), n)
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, format.GoalsTable(format.ASCII, goals, ""))
			return nil
		},
	}
}

func (sh *shell) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <question...>",
		Short: "Add your own goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := sh.sess.Goals.Add(cmd.Context(), strings.Join(args, " "), sh.cfg.Workflow.GoalCount)
			if err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "Added goal %s\n", g)
			return nil
		},
	}
}

func (sh *shell) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the goal catalog",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			goals := sh.sess.Goals.List()
			if len(goals) == 0 {
				fmt.Fprintln(sh.out, "No goals yet. Run 'goals' first.")
				return nil
			}
			selected := viz.GoalID("")
			if g, ok := sh.sess.Goals.Selected(); ok {
				selected = g.ID
			}
			fmt.Fprintln(sh.out, format.GoalsTable(format.ASCII, goals, selected))
			return nil
		},
	}
}

func (sh *shell) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <goal-id>",
		Short: "Select the goal to visualize",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			g, err := sh.sess.Goals.Select(viz.GoalID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "Selected goal %s\n", g)
			return nil
		},
	}
}

func (sh *shell) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <n>",
		Short: "Set the visualization count for the next title request",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("visualization count %q is not a number", args[0])
			}
			if err := sh.sess.Visualizer.SetCount(n); err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "Visualization count set to %d\n", n)
			return nil
		},
	}
}

func (sh *shell) titlesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "titles [count]",
		Short: "Request candidate titles for the selected goal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := sh.sess.Count()
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("visualization count %q is not a number", args[0])
				}
				n = v
			}
			ts, err := sh.sess.Visualizer.RequestTitles(cmd.Context(), n)
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, format.TitlesTable(format.ASCII, ts, ""))
			return nil
		},
	}
}

func (sh *shell) renderCmd() *cobra.Command {
	var rendererName string
	cmd := &cobra.Command{
		Use:   "render <title...|number>",
		Short: "Render a candidate title (by text or by its number in the title list)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := sh.renderer
			if rendererName != "" {
				var err error
				if r, err = viz.ParseRenderer(rendererName); err != nil {
					return err
				}
			}
			title := sh.resolveTitle(args)
			a, err := sh.sess.Visualizer.RequestRender(cmd.Context(), title, r, sh.sess.Count())
			if err != nil {
				return err
			}
			sh.printArtifact("Rendered", a)
			fmt.Fprintf(sh.out, "Renderer: %s\n", display.Renderer(string(r)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&rendererName, "renderer", "r", "", "primary or secondary (default from config)")
	return cmd
}

func (sh *shell) backCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "back",
		Short: "Return to the title list",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			chosen := workflow.Summarize(sh.sess.Snapshot()).Chosen
			ts, err := sh.sess.Visualizer.BackToTitles()
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, format.TitlesTable(format.ASCII, ts, chosen))
			return nil
		},
	}
}

func (sh *shell) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <instruction...>",
		Short: "Edit the visualization with a natural-language instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := sh.sess.Editor.EditByInstruction(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			sh.printArtifact("Edited", a)
			return nil
		},
	}
}

func (sh *shell) undoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Revert the last edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := sh.sess.Editor.UndoLast(cmd.Context())
			if err != nil {
				return err
			}
			if res.Exhausted {
				fmt.Fprintln(sh.out, "Nothing to undo; the visualization is unchanged.")
				return nil
			}
			sh.printArtifact("Restored", res.Artifact)
			return nil
		},
	}
}

func (sh *shell) explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain",
		Short: "Explain the current visualization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := sh.sess.Editor.Explain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, text)
			if sh.lastExplanation != "" && sh.lastExplanation != text {
				fmt.Fprintf(sh.out, "\nChanges since the last explanation:\n%s\n", format.ExplanationDiff(sh.lastExplanation, text))
			}
			sh.lastExplanation = text
			return nil
		},
	}
}

func (sh *shell) evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score the current visualization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			evals, err := sh.sess.Editor.EvaluateAndRepair(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, format.EvaluationTable(format.ASCII, evals))
			return nil
		},
	}
}

func (sh *shell) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the remote history and the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sh.sess.Editor.Clear(cmd.Context()); err != nil {
				return err
			}
			sh.lastExplanation = ""
			fmt.Fprintln(sh.out, "Session cleared.")
			return nil
		},
	}
}

var dumpOptions = litter.Options{
	HidePrivateFields: true,
	StripPackageNames: true,
	FieldExclusions:   regexp.MustCompile(`^Payload$`),
}

func (sh *shell) stateCmd() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show where the session is",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			st := sh.sess.Snapshot()
			if dump {
				fmt.Fprintln(sh.out, dumpOptions.Sdump(st))
				return nil
			}
			fmt.Fprint(sh.out, format.StateSummary(workflow.Summarize(st)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "Print the raw state value (payload omitted)")
	return cmd
}

func (sh *shell) noticesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notices",
		Short: "List undismissed notices",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			list := sh.sess.Notices().List()
			if len(list) == 0 {
				fmt.Fprintln(sh.out, "No notices.")
				return nil
			}
			fmt.Fprintln(sh.out, format.NoticesTable(format.ASCII, list))
			return nil
		},
	}
}

func (sh *shell) dismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id|all>",
		Short: "Dismiss a notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			board := sh.sess.Notices()
			if args[0] == "all" {
				board.DismissAll()
				fmt.Fprintln(sh.out, "All notices dismissed.")
				return nil
			}
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("notice id %q is not a number", args[0])
			}
			if !board.Dismiss(id) {
				return fmt.Errorf("no notice with id %d", id)
			}
			fmt.Fprintf(sh.out, "Notice %d dismissed.\n", id)
			return nil
		},
	}
}

func (sh *shell) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Write the current visualization to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, ok := sh.sess.Editor.Current()
			if !ok {
				return fmt.Errorf("no visualization to save")
			}
			path := imageFileName(a)
			if len(args) == 1 {
				path = args[0]
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, imageFileName(a))
				}
			}
			raw, err := a.Decode()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(sh.out, "Saved %s (%s)\n", path, format.FmtBytes(len(raw)))
			return nil
		},
	}
}

// resolveTitle maps a single number to the title at that position in the
// current title list. Anything else is taken as the title text.
func (sh *shell) resolveTitle(args []string) string {
	text := strings.Join(args, " ")
	if len(args) != 1 {
		return text
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return text
	}
	ts, ok := sh.sess.Visualizer.Titles()
	if !ok || n < 1 || n > len(ts.Titles) || ts.Contains(text) {
		return text
	}
	return ts.Titles[n-1]
}

func (sh *shell) printArtifact(verb string, a viz.Artifact) {
	fmt.Fprintf(sh.out, "%s %q for goal %s\n", verb, a.SourceTitle, a.SourceGoal.ID)
	fmt.Fprintf(sh.out, "Image: %s %s (%s base64). Use 'save' to write it to disk.\n",
		a.MimeType, a.Digest(), format.FmtBytes(len(a.Payload)))
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

// imageFileName derives a file name from the artifact's title.
func imageFileName(a viz.Artifact) string {
	base := unsafeFileChars.ReplaceAllString(strings.ToLower(a.SourceTitle), "-")
	base = strings.Trim(format.Truncate(base, 60), "-.")
	if base == "" {
		base = "visualization"
	}
	return base + a.Extension()
}
