// Package orchestrator drives fix sessions through their phases:
// sandbox provisioning, issue analysis, planning, optional fix
// generation, and guaranteed cleanup. Each session's workflow runs as a
// detached goroutine that is the sole writer of its session record;
// callers observe progress by polling snapshots from the store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/remedyhq/remedy/internal/gateway"
	"github.com/remedyhq/remedy/internal/github"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/sandbox"
	"github.com/remedyhq/remedy/internal/store"
)

var (
	// ErrNoPlan means fix generation or refinement was requested before
	// the session produced a plan.
	ErrNoPlan = errors.New("session has no plan yet")

	// ErrBusy means the session's workflow is still running and the
	// requested operation would violate the single-writer rule.
	ErrBusy = errors.New("session workflow is running")
)

// HealthProber is the advisory gateway liveness check.
type HealthProber interface {
	CheckHealth(ctx context.Context, creds gateway.Credentials) bool
}

// Config holds per-orchestrator settings.
type Config struct {
	Sandbox   sandbox.Config
	SetupCmds []string
}

// Orchestrator owns session lifecycles.
type Orchestrator struct {
	store     store.Store
	sandboxes sandbox.Factory
	gen       llm.Generator
	prober    HealthProber
	github    github.Client
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// New creates an orchestrator. A nil prober disables the advisory
// gateway probe; a nil logger uses slog's default.
func New(st store.Store, sandboxes sandbox.Factory, gen llm.Generator, prober HealthProber, gh github.Client, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     st,
		sandboxes: sandboxes,
		gen:       gen,
		prober:    prober,
		github:    gh,
		cfg:       cfg,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// CreateSession allocates a session record and launches its workflow as
// a detached background task, returning immediately with a snapshot.
func (o *Orchestrator) CreateSession(ctx context.Context, issueRef string) (*models.Session, error) {
	ref, err := github.ParseIssueRef(issueRef)
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		IssueRef: ref.String(),
		Status:   models.SessionStatusAnalyzing,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	o.claim(sess.ID)
	o.wg.Add(1)
	go o.runWorkflow(sess.ID, ref)

	return sess.Clone(), nil
}

// GetSession returns a snapshot of the session record.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return o.store.GetSession(ctx, id)
}

// ListSessions returns snapshots of the newest sessions.
func (o *Orchestrator) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	return o.store.ListSessions(ctx, limit)
}

// DeleteSession removes a session record. Refused while its workflow is
// still running.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	if o.isInFlight(id) {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	return o.store.DeleteSession(ctx, id)
}

// GenerateFixes launches the fix-generation extension on a complete
// session. The session re-enters executing and returns to complete when
// fixes and a PR draft have been assembled.
func (o *Orchestrator) GenerateFixes(ctx context.Context, id string) error {
	// Claim before reading: a snapshot taken outside the claim could be
	// written back over a concurrent writer's update.
	if !o.tryClaim(id) {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		o.release(id)
		return err
	}
	if sess.Plan == nil || sess.Status != models.SessionStatusComplete {
		o.release(id)
		return fmt.Errorf("%w: %s", ErrNoPlan, id)
	}

	sess.Status = models.SessionStatusExecuting
	sess.CurrentStep = "generating fixes"
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		o.release(id)
		return fmt.Errorf("update session: %w", err)
	}

	o.wg.Add(1)
	go o.runFixWorkflow(sess)
	return nil
}

// RefinePlan regenerates the session's plan steps from free-text
// feedback and returns the updated snapshot. Runs synchronously; the
// caller's context bounds the generation calls.
func (o *Orchestrator) RefinePlan(ctx context.Context, id, feedback string) (*models.Session, error) {
	if !o.tryClaim(id) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	defer o.release(id)

	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Plan == nil || sess.Status != models.SessionStatusComplete {
		return nil, fmt.Errorf("%w: %s", ErrNoPlan, id)
	}

	issueDescription, err := o.describeIssue(ctx, sess.IssueRef)
	if err != nil {
		return nil, err
	}

	pipeline := o.newPipeline(o.gen)
	refined, err := pipeline.RefinePlan(ctx, sess.Plan, feedback, issueDescription, sess.Overview)
	if err != nil {
		return nil, err
	}

	sess.Plan = refined
	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess.Clone(), nil
}

// Wait blocks until all in-flight workflows have exited. Used by serve
// for graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// describeIssue fetches the referenced issue and flattens it into one
// prompt-ready description.
func (o *Orchestrator) describeIssue(ctx context.Context, issueRef string) (string, error) {
	ref, err := github.ParseIssueRef(issueRef)
	if err != nil {
		return "", err
	}
	issue, err := o.github.FetchIssue(ctx, ref)
	if err != nil {
		return "", err
	}
	return flattenIssue(ref, issue), nil
}

func flattenIssue(ref github.IssueRef, issue *github.Issue) string {
	out := fmt.Sprintf("%s: %s\n\n%s", ref, issue.Title, issue.Body)
	if len(issue.Labels) > 0 {
		out += "\n\nLabels: "
		for i, l := range issue.Labels {
			if i > 0 {
				out += ", "
			}
			out += l
		}
	}
	return out
}

func (o *Orchestrator) claim(id string) {
	o.mu.Lock()
	o.inFlight[id] = struct{}{}
	o.mu.Unlock()
}

func (o *Orchestrator) tryClaim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) isInFlight(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[id]
	return busy
}
