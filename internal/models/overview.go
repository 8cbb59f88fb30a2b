package models

// SystemOverview is the read-only output of the analysis phase.
type SystemOverview struct {
	Summary      string       `json:"summary"`
	Architecture Architecture `json:"architecture"`
	KeyFiles     []KeyFile    `json:"keyFiles"`
	CallGraph    CallGraph    `json:"callGraph"`
	TestResults  TestResults  `json:"testResults"`
}

// Architecture describes the target codebase's structure as a rendered
// text diagram plus its kind (e.g. "layered", "monolith", "plugin").
type Architecture struct {
	Kind    string `json:"kind"`
	Diagram string `json:"diagram"`
}

// KeyFile is one file the analysis phase judged load-bearing.
type KeyFile struct {
	Path         string   `json:"path"`
	Purpose      string   `json:"purpose"`
	Dependencies []string `json:"dependencies,omitempty"`
	Exports      []string `json:"exports,omitempty"`
}

// CallGraph holds caller/callee relationships discovered during analysis.
type CallGraph struct {
	Nodes []CallGraphNode `json:"nodes"`
}

// CallGraphNode names one function and who it calls.
type CallGraphNode struct {
	Name    string   `json:"name"`
	Callers []string `json:"callers,omitempty"`
	Callees []string `json:"callees,omitempty"`
}

// TestResults captures one run of the target project's test suite
// inside the sandbox.
type TestResults struct {
	Success     bool     `json:"success"`
	Output      string   `json:"output"`
	DurationMS  int64    `json:"durationMs"`
	FailedTests []string `json:"failedTests,omitempty"`
}
