package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/remedyhq/remedy/internal/analyze"
	"github.com/remedyhq/remedy/internal/gateway"
	"github.com/remedyhq/remedy/internal/github"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/plan"
	"github.com/remedyhq/remedy/internal/sandbox"
)

func (o *Orchestrator) newPipeline(gen llm.Generator) *plan.Pipeline {
	return plan.NewPipeline(gen, o.logger)
}

// runWorkflow is the detached background task owning one session record.
// The sandbox is torn down on every exit path: success, step failure,
// or panic.
func (o *Orchestrator) runWorkflow(id string, ref github.IssueRef) {
	defer o.wg.Done()
	defer o.release(id)

	// Detached from the creating request on purpose: the workflow
	// outlives the HTTP request that started it.
	ctx := context.Background()

	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		o.logger.Error("workflow could not load its session", "session", id, "error", err)
		return
	}

	sb := o.sandboxes.New(o.cfg.Sandbox)
	defer func() {
		if r := recover(); r != nil {
			o.failSession(ctx, sess, fmt.Errorf("workflow panic: %v", r))
		}
		// Teardown failures are logged, never escalated: the caller has
		// no remediation path and the original error must win.
		if err := sb.Teardown(ctx); err != nil {
			o.logger.Warn("sandbox teardown failed", "session", sess.ID, "error", err)
		}
	}()

	if err := o.runPhases(ctx, sess, sb, ref); err != nil {
		o.failSession(ctx, sess, err)
	}
}

func (o *Orchestrator) runPhases(ctx context.Context, sess *models.Session, sb sandbox.Sandbox, ref github.IssueRef) error {
	o.advance(ctx, sess, 0, "provisioning sandbox")
	if err := sb.Create(ctx); err != nil {
		return err
	}
	o.logger.Info("sandbox ready", "session", sess.ID, "sandbox", sb.ID())
	o.advance(ctx, sess, 0.10, "preparing environment")

	for _, cmd := range o.cfg.SetupCmds {
		res, err := sb.RunCommand(ctx, cmd, "")
		if err != nil {
			return fmt.Errorf("setup command %q: %w", cmd, err)
		}
		if res.ExitCode != 0 {
			o.logger.Warn("setup command failed", "session", sess.ID, "cmd", cmd, "exit", res.ExitCode)
		}
	}

	// When tool integrations are attached, derive gateway credentials and
	// route generation through the gateway. The health probe is advisory:
	// its result is recorded for observers but never gates the calls.
	gen := o.gen
	if len(o.cfg.Sandbox.Tools) > 0 {
		url, err := sb.GatewayURL()
		if err != nil {
			return err
		}
		token, err := sb.GatewayToken()
		if err != nil {
			return err
		}
		creds := gateway.Credentials{URL: url, Token: token}
		if o.prober != nil {
			up := o.prober.CheckHealth(ctx, creds)
			sess.GatewayUp = &up
			if !up {
				o.logger.Warn("tool gateway probe reported down, continuing", "session", sess.ID)
			}
		}
		gen = llm.WithGateway(gen, creds)
	}
	o.advance(ctx, sess, 0.15, "cloning repository")

	analyzer := analyze.NewAnalyzer(gen, o.logger)
	if err := analyzer.CloneRepo(ctx, sb, ref.RepoURL()); err != nil {
		return err
	}
	o.advance(ctx, sess, 0.20, "fetching issue")

	issue, err := o.github.FetchIssue(ctx, ref)
	if err != nil {
		return err
	}
	o.advance(ctx, sess, 0.30, "analyzing codebase")

	overview, err := analyzer.BuildOverview(ctx, sb, issue.Title, issue.Body)
	if err != nil {
		return err
	}
	sess.Overview = overview
	sess.Status = models.SessionStatusPlanning
	o.advance(ctx, sess, 0.60, "generating plan")

	manifest := analyzer.ReadManifest(ctx, sb)
	fixPlan, err := o.newPipeline(gen).CreatePlan(ctx, flattenIssue(ref, issue), overview, manifest)
	if err != nil {
		return err
	}
	sess.Plan = fixPlan
	o.advance(ctx, sess, 0.90, "finalizing")

	o.completeSession(ctx, sess)
	return nil
}

// advance writes the owned session record, never letting progress move
// backwards within the run.
func (o *Orchestrator) advance(ctx context.Context, sess *models.Session, progress float64, step string) {
	if progress > sess.Progress {
		sess.Progress = progress
	}
	sess.CurrentStep = step
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		o.logger.Warn("session update failed", "session", sess.ID, "error", err)
	}
}

func (o *Orchestrator) completeSession(ctx context.Context, sess *models.Session) {
	sess.Status = models.SessionStatusComplete
	now := time.Now().UTC()
	sess.CompletedAt = &now
	o.advance(ctx, sess, 1.0, "")
	o.logger.Info("session complete", "session", sess.ID, "issue", sess.IssueRef)
}

func (o *Orchestrator) failSession(ctx context.Context, sess *models.Session, err error) {
	o.logger.Error("session failed", "session", sess.ID, "issue", sess.IssueRef, "error", err)
	sess.Status = models.SessionStatusError
	sess.Error = err.Error()
	sess.CurrentStep = ""
	now := time.Now().UTC()
	sess.CompletedAt = &now
	if uerr := o.store.UpdateSession(ctx, sess); uerr != nil {
		o.logger.Error("failed to record session error", "session", sess.ID, "error", uerr)
	}
}
