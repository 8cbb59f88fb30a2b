package models

import "time"

// SessionStatus represents the lifecycle state of a fix session.
type SessionStatus string

const (
	SessionStatusAnalyzing SessionStatus = "analyzing"
	SessionStatusPlanning  SessionStatus = "planning"
	SessionStatusExecuting SessionStatus = "executing"
	SessionStatusComplete  SessionStatus = "complete"
	SessionStatusError     SessionStatus = "error"
)

// Terminal reports whether a workflow in this status has stopped running.
// A complete session may still re-enter executing when fix generation is
// requested, so "terminal" here means "the background workflow has exited",
// not "the record can never change again".
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusComplete || s == SessionStatusError
}

// Session is one end-to-end run of the analyze -> plan -> (fix) workflow.
// Exactly one background workflow owns mutation rights; everything handed
// to readers is a snapshot copy.
type Session struct {
	ID          string          `json:"id"`
	IssueRef    string          `json:"issueRef"`
	Status      SessionStatus   `json:"status"`
	Progress    float64         `json:"progress"`
	CurrentStep string          `json:"currentStep,omitempty"`
	GatewayUp   *bool           `json:"gatewayUp,omitempty"` // advisory probe result, nil until probed
	Overview    *SystemOverview `json:"overview,omitempty"`
	Plan        *FixPlan        `json:"plan,omitempty"`
	Fixes       []Fix           `json:"fixes,omitempty"`
	PRDraft     *PRDraft        `json:"prDraft,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Session) Clone() *Session {
	out := *s
	if s.GatewayUp != nil {
		v := *s.GatewayUp
		out.GatewayUp = &v
	}
	if s.Overview != nil {
		ov := *s.Overview
		ov.KeyFiles = append([]KeyFile(nil), s.Overview.KeyFiles...)
		ov.CallGraph.Nodes = append([]CallGraphNode(nil), s.Overview.CallGraph.Nodes...)
		ov.TestResults.FailedTests = append([]string(nil), s.Overview.TestResults.FailedTests...)
		out.Overview = &ov
	}
	if s.Plan != nil {
		out.Plan = s.Plan.Clone()
	}
	out.Fixes = append([]Fix(nil), s.Fixes...)
	if s.PRDraft != nil {
		pr := *s.PRDraft
		out.PRDraft = &pr
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Fix is one concrete proposed code change.
type Fix struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Diff        string `json:"diff"`
}

// PRDraft is the assembled pull-request proposal for a session's fixes.
type PRDraft struct {
	Title  string `json:"title"`
	Branch string `json:"branch"`
	Body   string `json:"body"`
}
