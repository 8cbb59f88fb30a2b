package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/remedyhq/remedy/internal/github"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
)

type fixesPayload struct {
	Fixes []models.Fix `json:"fixes"`
}

// runFixWorkflow is the detached task for the fix-generation extension.
// It re-uses no sandbox: the plan and overview captured during analysis
// are the inputs, and output is unified diffs plus a PR draft.
func (o *Orchestrator) runFixWorkflow(sess *models.Session) {
	defer o.wg.Done()
	defer o.release(sess.ID)

	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			o.failSession(ctx, sess, fmt.Errorf("fix workflow panic: %v", r))
		}
	}()

	ref, err := github.ParseIssueRef(sess.IssueRef)
	if err != nil {
		o.failSession(ctx, sess, err)
		return
	}
	issue, err := o.github.FetchIssue(ctx, ref)
	if err != nil {
		o.failSession(ctx, sess, err)
		return
	}

	fixes, err := o.generateFixes(ctx, sess, ref, issue)
	if err != nil {
		o.failSession(ctx, sess, err)
		return
	}

	sess.Fixes = fixes
	sess.PRDraft = buildPRDraft(ref, issue, sess.Plan, fixes)
	o.completeSession(ctx, sess)
}

func (o *Orchestrator) generateFixes(ctx context.Context, sess *models.Session, ref github.IssueRef, issue *github.Issue) ([]models.Fix, error) {
	system := `You write code fixes as unified diffs. Return a JSON object:
{"fixes": [{"path": "...", "description": "...", "diff": "..."}]}

Rules:
- One entry per file changed
- "diff" is a unified diff against the file at "path"
- Implement exactly the planned steps, nothing speculative
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue %s: %s\n\n%s\n", ref, issue.Title, issue.Body)
	if sess.Overview != nil {
		sb.WriteString("\nSystem summary:\n" + sess.Overview.Summary + "\n")
		if len(sess.Overview.KeyFiles) > 0 {
			sb.WriteString("\nKey files:\n")
			for _, f := range sess.Overview.KeyFiles {
				fmt.Fprintf(&sb, "- %s: %s\n", f.Path, f.Purpose)
			}
		}
	}
	sb.WriteString("\nPlanned steps:\n")
	for i, step := range sess.Plan.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step.Description)
	}

	payload, err := llm.Structured[fixesPayload](ctx, o.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}, `{"fixes": [{"path": string, "description": string, "diff": string}]}`, &llm.Options{MaxTokens: 8192})
	if err != nil {
		return nil, fmt.Errorf("generate fixes: %w", err)
	}
	if len(payload.Fixes) == 0 {
		return nil, fmt.Errorf("generate fixes: model returned no fixes")
	}
	return payload.Fixes, nil
}

// buildPRDraft assembles the proposal a human would open as a PR.
func buildPRDraft(ref github.IssueRef, issue *github.Issue, fixPlan *models.FixPlan, fixes []models.Fix) *models.PRDraft {
	var body strings.Builder
	fmt.Fprintf(&body, "Fixes %s.\n\n## Plan\n", ref)
	for i, step := range fixPlan.Steps {
		fmt.Fprintf(&body, "%d. %s\n", i+1, step.Description)
	}
	body.WriteString("\n## Changes\n")
	for _, fix := range fixes {
		fmt.Fprintf(&body, "- `%s`: %s\n", fix.Path, fix.Description)
	}

	return &models.PRDraft{
		Title:  fmt.Sprintf("Fix %s: %s", ref, issue.Title),
		Branch: issueToBranch(issue.Title),
		Body:   body.String(),
	}
}

// issueToBranch converts an issue title to a branch name.
func issueToBranch(title string) string {
	s := strings.ToLower(title)
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		if r == ' ' {
			return '-'
		}
		return -1
	}, s)
	parts := strings.Split(s, "-")
	var clean []string
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	result := strings.Join(clean, "-")
	if len(result) > 50 {
		result = result[:50]
	}
	return "fix/" + result
}
