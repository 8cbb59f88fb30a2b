package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/output"
)

var (
	sessionListLimit  int
	sessionNoWait     bool
	sessionShowDiffs  bool
	refineFeedback    string
	sessionPollPeriod = 2 * time.Second
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Create and inspect fix sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <owner/repo#number>",
	Short: "Start a fix session for a GitHub issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCreateRun(cmd.Context(), args[0])
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's progress, overview, and plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStatusRun(cmd.Context(), args[0])
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun(cmd.Context())
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionDeleteRun(cmd.Context(), args[0])
	},
}

var sessionFixesCmd = &cobra.Command{
	Use:   "fixes <session-id>",
	Short: "Generate code fixes and a PR draft for a planned session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionFixesRun(cmd.Context(), args[0])
	},
}

var sessionRefineCmd = &cobra.Command{
	Use:   "refine <session-id>",
	Short: "Revise a session's fix plan from feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRefineRun(cmd.Context(), args[0])
	},
}

func init() {
	sessionCreateCmd.Flags().BoolVar(&sessionNoWait, "no-wait", false, "Return immediately instead of following progress")
	sessionListCmd.Flags().IntVar(&sessionListLimit, "limit", 20, "Maximum sessions to show")
	sessionStatusCmd.Flags().BoolVar(&sessionShowDiffs, "diffs", false, "Include full diffs for generated fixes")
	sessionRefineCmd.Flags().StringVarP(&refineFeedback, "feedback", "f", "", "Feedback on the current plan (required)")
	_ = sessionRefineCmd.MarkFlagRequired("feedback")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionFixesCmd)
	sessionCmd.AddCommand(sessionRefineCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionCreateRun(ctx context.Context, issueRef string) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	orch, err := getOrchestrator(st)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would start a fix session for %s", issueRef)
		return nil
	}

	sess, err := orch.CreateSession(ctx, issueRef)
	if err != nil {
		return err
	}
	ui.Success("Session %s started for %s", sess.ID, sess.IssueRef)

	if sessionNoWait {
		// The workflow runs inside this process; without the server it
		// would die with us. Block until it exits, quietly.
		orch.Wait()
		return nil
	}

	sess, err = followSession(ctx, orch.GetSession, sess.ID)
	if err != nil {
		return err
	}
	printSession(sess)
	if sess.Status == models.SessionStatusError {
		return fmt.Errorf("session failed: %s", sess.Error)
	}
	return nil
}

// followSession polls until the session's workflow exits, echoing step
// transitions as they happen.
func followSession(ctx context.Context, get func(context.Context, string) (*models.Session, error), id string) (*models.Session, error) {
	lastStep := ""
	for {
		sess, err := get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess.CurrentStep != "" && sess.CurrentStep != lastStep {
			ui.Info("[%3.0f%%] %s", sess.Progress*100, sess.CurrentStep)
			lastStep = sess.CurrentStep
		}
		if sess.Status.Terminal() {
			return sess, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sessionPollPeriod):
		}
	}
}

func sessionStatusRun(ctx context.Context, id string) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	sess, err := st.GetSession(ctx, id)
	if err != nil {
		return err
	}
	printSession(sess)
	return nil
}

func sessionListRun(ctx context.Context) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	sessions, err := st.ListSessions(ctx, sessionListLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No sessions yet. Start one with: remedy session create owner/repo#42")
		return nil
	}

	table := ui.Table([]string{"ID", "ISSUE", "STATUS", "PROGRESS", "PLAN", "CREATED"})
	for _, s := range sessions {
		planCol := "-"
		if s.Plan != nil {
			planCol = fmt.Sprintf("v%d (%d steps)", s.Plan.Version, len(s.Plan.Steps))
		}
		_ = table.Append([]string{
			s.ID,
			s.IssueRef,
			output.StatusColor(string(s.Status)),
			fmt.Sprintf("%3.0f%%", s.Progress*100),
			planCol,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func sessionDeleteRun(ctx context.Context, id string) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete session %s", id)
		return nil
	}
	if err := st.DeleteSession(ctx, id); err != nil {
		return err
	}
	ui.Success("Session %s deleted", id)
	return nil
}

func sessionFixesRun(ctx context.Context, id string) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	orch, err := getOrchestrator(st)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would generate fixes for session %s", id)
		return nil
	}

	if err := orch.GenerateFixes(ctx, id); err != nil {
		return err
	}
	ui.Info("Generating fixes for session %s...", id)

	sess, err := followSession(ctx, orch.GetSession, id)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionStatusError {
		return fmt.Errorf("fix generation failed: %s", sess.Error)
	}
	sessionShowDiffs = true
	printFixes(sess)
	return nil
}

func sessionRefineRun(ctx context.Context, id string) error {
	st, err := getStore()
	if err != nil {
		return err
	}
	orch, err := getOrchestrator(st)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would refine the plan for session %s", id)
		return nil
	}

	sess, err := orch.RefinePlan(ctx, id, refineFeedback)
	if err != nil {
		return err
	}
	ui.Success("Plan revised to v%d", sess.Plan.Version)
	printPlan(sess.Plan)
	return nil
}

// --- rendering ---

func printSession(s *models.Session) {
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s  %s  %s\n", output.Cyan(s.ID), s.IssueRef, output.StatusColor(string(s.Status)))
	if s.CurrentStep != "" {
		ui.Info("[%3.0f%%] %s", s.Progress*100, s.CurrentStep)
	}
	if s.GatewayUp != nil && !*s.GatewayUp {
		ui.Warning("tool gateway was unreachable during this run")
	}
	if s.Error != "" {
		ui.Error("%s", s.Error)
	}

	if s.Overview != nil {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "%s\n", output.Cyan("Overview"))
		fmt.Fprintln(ui.Out, wrapIndent(s.Overview.Summary, "  "))
		if s.Overview.Architecture.Kind != "" {
			fmt.Fprintf(ui.Out, "  Architecture: %s\n", s.Overview.Architecture.Kind)
		}
		for _, f := range s.Overview.KeyFiles {
			fmt.Fprintf(ui.Out, "  - %s: %s\n", f.Path, f.Purpose)
		}
		if s.Overview.TestResults.Output != "" {
			if s.Overview.TestResults.Success {
				ui.Success("tests passing (%dms)", s.Overview.TestResults.DurationMS)
			} else {
				ui.Warning("tests failing: %s", strings.Join(s.Overview.TestResults.FailedTests, ", "))
			}
		}
	}

	if s.Plan != nil {
		printPlan(s.Plan)
	}
	printFixes(s)
}

func printPlan(p *models.FixPlan) {
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s (v%d)\n", output.Cyan("Plan"), p.Version)
	for i, step := range p.Steps {
		fmt.Fprintf(ui.Out, "  %d. %s\n", i+1, step.Description)
		if step.EstimatedImpact != "" {
			fmt.Fprintf(ui.Out, "     impact: %s\n", step.EstimatedImpact)
		}
		if len(step.Files) > 0 {
			fmt.Fprintf(ui.Out, "     files: %s\n", strings.Join(step.Files, ", "))
		}
	}
	if len(p.Questions) > 0 {
		fmt.Fprintf(ui.Out, "\n%s\n", output.Cyan("Open questions"))
		for _, q := range p.Questions {
			fmt.Fprintf(ui.Out, "  ? %s\n", q.Text)
		}
	}
	if len(p.Resources) > 0 {
		fmt.Fprintf(ui.Out, "\n%s\n", output.Cyan("Resources"))
		for _, r := range p.Resources {
			fmt.Fprintf(ui.Out, "  - %s (%s)\n", r.Title, r.URL)
		}
	}
	if len(p.Suggestions) > 0 {
		fmt.Fprintf(ui.Out, "\n%s\n", output.Cyan("Suggestions"))
		for _, sg := range p.Suggestions {
			fmt.Fprintf(ui.Out, "  - [%s] %s\n", output.PriorityColor(string(sg.Priority)), sg.Text)
		}
	}
}

func printFixes(s *models.Session) {
	if len(s.Fixes) == 0 {
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s\n", output.Cyan("Proposed fixes"))
	for _, fix := range s.Fixes {
		fmt.Fprintf(ui.Out, "  %s: %s\n", output.Green(fix.Path), fix.Description)
		if sessionShowDiffs && fix.Diff != "" {
			fmt.Fprintln(ui.Out, indent(fix.Diff, "    "))
		}
	}
	if s.PRDraft != nil {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "%s\n", output.Cyan("PR draft"))
		fmt.Fprintf(ui.Out, "  title:  %s\n", s.PRDraft.Title)
		fmt.Fprintf(ui.Out, "  branch: %s\n", s.PRDraft.Branch)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapIndent indents a paragraph; long model summaries stay readable.
func wrapIndent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+prefix)
}
