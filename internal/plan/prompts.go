package plan

import (
	"fmt"
	"strings"

	"github.com/remedyhq/remedy/internal/models"
)

// overviewContext renders the parts of a system overview worth embedding
// in a planning prompt.
func overviewContext(overview *models.SystemOverview) string {
	if overview == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("System summary:\n")
	sb.WriteString(overview.Summary)
	sb.WriteString("\n")
	if overview.Architecture.Kind != "" {
		fmt.Fprintf(&sb, "\nArchitecture: %s\n", overview.Architecture.Kind)
	}
	if len(overview.KeyFiles) > 0 {
		sb.WriteString("\nKey files:\n")
		for _, f := range overview.KeyFiles {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Path, f.Purpose)
		}
	}
	if !overview.TestResults.Success && overview.TestResults.Output != "" {
		sb.WriteString("\nFailing test output:\n")
		sb.WriteString(overview.TestResults.Output)
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildStepsPrompt constructs the prompts for remediation step generation.
func buildStepsPrompt(issueDescription string, overview *models.SystemOverview, packageManifest string) (system, user string) {
	system = `You plan code fixes. Given an issue and a system overview, return a JSON object:
{"steps": [{"description": "...", "reasoning": "...", "files": ["..."], "estimatedImpact": "low|medium|high"}]}

Rules:
- Steps are ordered: each step assumes the previous ones are done
- "description" is one concrete, actionable change
- "reasoning" explains why the step is needed for this issue
- "files" lists paths likely touched, using paths from the overview when possible
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Issue:\n")
	sb.WriteString(issueDescription)
	sb.WriteString("\n\n")
	sb.WriteString(overviewContext(overview))
	if packageManifest != "" {
		sb.WriteString("\nPackage manifest:\n")
		sb.WriteString(packageManifest)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// buildQuestionsPrompt constructs the prompts for clarifying questions.
func buildQuestionsPrompt(issueDescription string, overview *models.SystemOverview) (system, user string) {
	system = `You surface ambiguities in bug reports. Return a JSON object:
{"questions": [{"id": "q1", "text": "...", "type": "freeform|choice|yes_no", "options": ["..."]}]}

Rules:
- Only ask questions whose answer would change the fix
- "options" is present only for type "choice"
- At most five questions; zero is a valid answer
- Return valid JSON only, no markdown fencing or explanation`

	user = "Issue:\n" + issueDescription + "\n\n" + overviewContext(overview)
	return
}

// buildResourcesPrompt constructs the prompts for ranked external resources.
func buildResourcesPrompt(issueDescription string, overview *models.SystemOverview) (system, user string) {
	system = `You recommend external references for fixing a code issue. Return a JSON object:
{"resources": [{"title": "...", "url": "...", "type": "documentation|issue|discussion|article", "relevance": 0.0, "snippet": "..."}]}

Rules:
- Order by relevance, highest first; relevance is in [0,1]
- Prefer official documentation over blog posts
- Return valid JSON only, no markdown fencing or explanation`

	user = "Issue:\n" + issueDescription + "\n\n" + overviewContext(overview)
	return
}

// buildSuggestionsPrompt constructs the prompts for improvement
// suggestions, conditioned on the proposed step descriptions.
func buildSuggestionsPrompt(issueDescription string, steps []models.PlanStep) (system, user string) {
	system = `You suggest follow-up improvements beyond an immediate fix. Return a JSON object:
{"suggestions": [{"text": "...", "category": "testing|refactoring|performance|docs", "priority": "low|medium|high"}]}

Rules:
- Suggestions must not duplicate the planned steps
- Each suggestion is one sentence, concrete enough to file as an issue
- Return valid JSON only, no markdown fencing or explanation`

	descriptions := make([]string, 0, len(steps))
	for _, s := range steps {
		descriptions = append(descriptions, s.Description)
	}

	var sb strings.Builder
	sb.WriteString("Issue:\n")
	sb.WriteString(issueDescription)
	sb.WriteString("\n\nPlanned steps:\n")
	sb.WriteString(strings.Join(descriptions, "\n"))
	sb.WriteString("\n")
	user = sb.String()
	return
}

// buildRefinePrompt constructs the prompts for regenerating steps from
// reviewer feedback.
func buildRefinePrompt(issueDescription string, current []models.PlanStep, feedback string, overview *models.SystemOverview) (system, user string) {
	system = `You revise a fix plan based on reviewer feedback. Return a JSON object:
{"steps": [{"description": "...", "reasoning": "...", "files": ["..."], "estimatedImpact": "low|medium|high"}]}

Rules:
- Keep steps the feedback does not dispute; rework the ones it does
- The revised list replaces the old one wholesale, so it must stand alone
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Issue:\n")
	sb.WriteString(issueDescription)
	sb.WriteString("\n\nCurrent steps:\n")
	for i, s := range current {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Description)
	}
	sb.WriteString("\nFeedback:\n")
	sb.WriteString(feedback)
	sb.WriteString("\n\n")
	sb.WriteString(overviewContext(overview))
	user = sb.String()
	return
}
