package models

// QuestionType classifies how a clarifying question expects to be answered.
type QuestionType string

const (
	QuestionTypeFreeform QuestionType = "freeform"
	QuestionTypeChoice   QuestionType = "choice"
	QuestionTypeYesNo    QuestionType = "yes_no"
)

// SuggestionPriority ranks an improvement suggestion.
type SuggestionPriority string

const (
	SuggestionPriorityLow    SuggestionPriority = "low"
	SuggestionPriorityMedium SuggestionPriority = "medium"
	SuggestionPriorityHigh   SuggestionPriority = "high"
)

// FixPlan is the structured output of the planning phase. Refining a plan
// replaces Steps and Suggestions wholesale, preserves Questions and
// Resources, and bumps Version.
type FixPlan struct {
	Version     int          `json:"version"`
	Steps       []PlanStep   `json:"steps"`
	Questions   []Question   `json:"questions"`
	Resources   []Resource   `json:"resources"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Clone returns a deep copy of the plan.
func (p *FixPlan) Clone() *FixPlan {
	out := *p
	out.Steps = append([]PlanStep(nil), p.Steps...)
	out.Questions = append([]Question(nil), p.Questions...)
	out.Resources = append([]Resource(nil), p.Resources...)
	out.Suggestions = append([]Suggestion(nil), p.Suggestions...)
	return &out
}

// PlanStep is one ordered remediation step.
type PlanStep struct {
	Description     string   `json:"description"`
	Reasoning       string   `json:"reasoning"`
	Files           []string `json:"files,omitempty"`
	EstimatedImpact string   `json:"estimatedImpact"`
}

// Question is a clarifying question for the issue reporter.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// Resource is a ranked external reference relevant to the fix.
type Resource struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Type      string  `json:"type"` // documentation, issue, discussion, article
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet,omitempty"`
}

// Suggestion is an improvement idea beyond the immediate fix.
type Suggestion struct {
	Text     string             `json:"text"`
	Category string             `json:"category"` // testing, refactoring, performance, docs
	Priority SuggestionPriority `json:"priority"`
}
