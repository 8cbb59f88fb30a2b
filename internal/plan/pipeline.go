// Package plan turns an issue description plus a system overview into a
// versioned FixPlan.
//
// Step generation is structurally required and aborts the plan on
// failure. Questions, resources, and suggestions are best-effort: a
// provider error or unparseable output degrades to an empty list.
package plan

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
)

type stepsPayload struct {
	Steps []models.PlanStep `json:"steps"`
}

type questionsPayload struct {
	Questions []models.Question `json:"questions"`
}

type resourcesPayload struct {
	Resources []models.Resource `json:"resources"`
}

type suggestionsPayload struct {
	Suggestions []models.Suggestion `json:"suggestions"`
}

// Pipeline generates and refines fix plans.
type Pipeline struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewPipeline creates a plan pipeline on the given generator.
func NewPipeline(gen llm.Generator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gen: gen, logger: logger}
}

// CreatePlan assembles a version-1 FixPlan. Questions and resources are
// generated concurrently with the steps; suggestions wait for the steps
// because their prompt embeds the step descriptions.
func (p *Pipeline) CreatePlan(ctx context.Context, issueDescription string, overview *models.SystemOverview, packageManifest string) (*models.FixPlan, error) {
	var (
		questions []models.Question
		resources []models.Resource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		questions = p.generateQuestions(gctx, issueDescription, overview)
		return nil
	})
	g.Go(func() error {
		resources = p.generateResources(gctx, issueDescription, overview)
		return nil
	})

	steps, err := p.generateSteps(ctx, issueDescription, overview, packageManifest)
	if err != nil {
		// Best-effort goroutines never return errors; the join is only
		// so they finish before we drop their result slices.
		_ = g.Wait()
		return nil, err
	}

	suggestions := p.generateSuggestions(ctx, issueDescription, steps)
	_ = g.Wait()

	return &models.FixPlan{
		Version:     1,
		Steps:       steps,
		Questions:   questions,
		Resources:   resources,
		Suggestions: suggestions,
	}, nil
}

// RefinePlan regenerates steps from the current plan plus free-text
// feedback, regenerates suggestions from the new steps, preserves
// questions and resources, and bumps the version.
func (p *Pipeline) RefinePlan(ctx context.Context, current *models.FixPlan, feedback, issueDescription string, overview *models.SystemOverview) (*models.FixPlan, error) {
	system, user := buildRefinePrompt(issueDescription, current.Steps, feedback, overview)
	payload, err := llm.Structured[stepsPayload](ctx, p.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, stepsShape, nil)
	if err != nil {
		return nil, fmt.Errorf("refine steps: %w", err)
	}
	if len(payload.Steps) == 0 {
		return nil, fmt.Errorf("refine steps: model returned no steps")
	}

	suggestions := p.generateSuggestions(ctx, issueDescription, payload.Steps)

	next := current.Clone()
	next.Version = current.Version + 1
	next.Steps = payload.Steps
	next.Suggestions = suggestions
	return next, nil
}

const stepsShape = `{"steps": [{"description": string, "reasoning": string, "files": [string], "estimatedImpact": string}]}`

func (p *Pipeline) generateSteps(ctx context.Context, issueDescription string, overview *models.SystemOverview, packageManifest string) ([]models.PlanStep, error) {
	system, user := buildStepsPrompt(issueDescription, overview, packageManifest)
	payload, err := llm.Structured[stepsPayload](ctx, p.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, stepsShape, nil)
	if err != nil {
		return nil, fmt.Errorf("generate steps: %w", err)
	}
	if len(payload.Steps) == 0 {
		return nil, fmt.Errorf("generate steps: model returned no steps")
	}
	return payload.Steps, nil
}

func (p *Pipeline) generateQuestions(ctx context.Context, issueDescription string, overview *models.SystemOverview) []models.Question {
	system, user := buildQuestionsPrompt(issueDescription, overview)
	payload, err := llm.Structured[questionsPayload](ctx, p.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, `{"questions": [{"id": string, "text": string, "type": string, "options": [string]}]}`, nil)
	if err != nil {
		p.logger.Warn("question generation degraded to empty list", "error", err)
		return []models.Question{}
	}
	if payload.Questions == nil {
		return []models.Question{}
	}
	return payload.Questions
}

func (p *Pipeline) generateResources(ctx context.Context, issueDescription string, overview *models.SystemOverview) []models.Resource {
	system, user := buildResourcesPrompt(issueDescription, overview)
	payload, err := llm.Structured[resourcesPayload](ctx, p.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, `{"resources": [{"title": string, "url": string, "type": string, "relevance": number, "snippet": string}]}`, nil)
	if err != nil {
		p.logger.Warn("resource generation degraded to empty list", "error", err)
		return []models.Resource{}
	}
	if payload.Resources == nil {
		return []models.Resource{}
	}
	return payload.Resources
}

func (p *Pipeline) generateSuggestions(ctx context.Context, issueDescription string, steps []models.PlanStep) []models.Suggestion {
	system, user := buildSuggestionsPrompt(issueDescription, steps)
	payload, err := llm.Structured[suggestionsPayload](ctx, p.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, `{"suggestions": [{"text": string, "category": string, "priority": string}]}`, nil)
	if err != nil {
		p.logger.Warn("suggestion generation degraded to empty list", "error", err)
		return []models.Suggestion{}
	}
	if payload.Suggestions == nil {
		return []models.Suggestion{}
	}
	return payload.Suggestions
}
