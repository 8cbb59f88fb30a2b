// Package analyze builds a SystemOverview for a target repository by
// combining sandbox inspection (file inventory, test run) with
// structured generation (summary, architecture, call graph).
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/sandbox"
)

// RepoDir is where a session's repository is cloned inside its sandbox.
const RepoDir = "/workspace/repo"

// manifestCandidates are checked in order when looking for a package
// manifest; the first hit wins.
var manifestCandidates = []string{"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "requirements.txt"}

// Analyzer runs the analysis phase of a session.
type Analyzer struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer on the given generator.
func NewAnalyzer(gen llm.Generator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, logger: logger}
}

// CloneRepo shallow-clones the repository into the sandbox.
func (a *Analyzer) CloneRepo(ctx context.Context, sb sandbox.Sandbox, repoURL string) error {
	res, err := sb.RunCommand(ctx, fmt.Sprintf("git clone --depth 1 %s %s", repoURL, RepoDir), "")
	if err != nil {
		return fmt.Errorf("clone repository: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("clone repository: git exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ReadManifest returns the repository's package manifest content, or ""
// when none of the known manifests exist.
func (a *Analyzer) ReadManifest(ctx context.Context, sb sandbox.Sandbox) string {
	for _, name := range manifestCandidates {
		content, err := sb.ReadFile(ctx, RepoDir+"/"+name)
		if err == nil && content != "" {
			return fmt.Sprintf("%s:\n%s", name, truncate(content, 4000))
		}
	}
	return ""
}

// overviewPayload is the structurally required part of the overview.
type overviewPayload struct {
	Summary      string              `json:"summary"`
	Architecture models.Architecture `json:"architecture"`
	KeyFiles     []models.KeyFile    `json:"keyFiles"`
}

type callGraphPayload struct {
	Nodes []models.CallGraphNode `json:"nodes"`
}

// BuildOverview inspects the cloned repository and produces the
// session's SystemOverview. The summary/architecture/key-files call is
// fatal on malformed output; the call graph degrades to empty.
func (a *Analyzer) BuildOverview(ctx context.Context, sb sandbox.Sandbox, issueTitle, issueBody string) (*models.SystemOverview, error) {
	inventory := a.fileInventory(ctx, sb)
	manifest := a.ReadManifest(ctx, sb)
	readme := a.readmeHead(ctx, sb)

	system := `You analyze codebases for debugging. Return a JSON object:
{"summary": "...", "architecture": {"kind": "...", "diagram": "..."}, "keyFiles": [{"path": "...", "purpose": "...", "dependencies": ["..."], "exports": ["..."]}]}

Rules:
- "summary" is 3-6 sentences on what the system does and how it is put together
- "architecture.kind" is one word or phrase (e.g. "layered", "cli", "client-server")
- "architecture.diagram" is an ASCII diagram of the main components
- "keyFiles" lists the files most relevant to the reported issue, most relevant first
- Return valid JSON only, no markdown fencing or explanation`

	var sb2 strings.Builder
	fmt.Fprintf(&sb2, "Issue: %s\n\n%s\n\n", issueTitle, issueBody)
	if manifest != "" {
		sb2.WriteString("Package manifest:\n" + manifest + "\n\n")
	}
	if readme != "" {
		sb2.WriteString("README (head):\n" + readme + "\n\n")
	}
	sb2.WriteString("Repository files:\n" + inventory + "\n")

	payload, err := llm.Structured[overviewPayload](ctx, a.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb2.String()},
	}, `{"summary": string, "architecture": {"kind": string, "diagram": string}, "keyFiles": [{"path": string, "purpose": string, "dependencies": [string], "exports": [string]}]}`, nil)
	if err != nil {
		return nil, fmt.Errorf("build overview: %w", err)
	}

	overview := &models.SystemOverview{
		Summary:      payload.Summary,
		Architecture: payload.Architecture,
		KeyFiles:     payload.KeyFiles,
	}
	overview.CallGraph = a.buildCallGraph(ctx, sb, payload.KeyFiles)
	overview.TestResults = a.runTests(ctx, sb)
	return overview, nil
}

// buildCallGraph asks the model for caller/callee pairs across the key
// files. Best-effort: failures yield an empty graph.
func (a *Analyzer) buildCallGraph(ctx context.Context, sb sandbox.Sandbox, keyFiles []models.KeyFile) models.CallGraph {
	if len(keyFiles) == 0 {
		return models.CallGraph{}
	}

	var sources strings.Builder
	for i, f := range keyFiles {
		if i >= 5 {
			break
		}
		content, err := sb.ReadFile(ctx, RepoDir+"/"+f.Path)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sources, "=== %s ===\n%s\n", f.Path, truncate(content, 6000))
	}
	if sources.Len() == 0 {
		return models.CallGraph{}
	}

	system := `You extract call graphs from source code. Return a JSON object:
{"nodes": [{"name": "...", "callers": ["..."], "callees": ["..."]}]}

Rules:
- One node per significant function; skip trivial getters
- Names are qualified as file:function when ambiguous
- Return valid JSON only, no markdown fencing or explanation`

	payload, err := llm.Structured[callGraphPayload](ctx, a.gen, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sources.String()},
	}, `{"nodes": [{"name": string, "callers": [string], "callees": [string]}]}`, nil)
	if err != nil {
		a.logger.Warn("call graph generation degraded to empty graph", "error", err)
		return models.CallGraph{}
	}
	return models.CallGraph{Nodes: payload.Nodes}
}

// runTests executes the project's test suite when a runner is known for
// its manifest. A missing runner or failing suite is data for the plan,
// not an analysis error.
func (a *Analyzer) runTests(ctx context.Context, sb sandbox.Sandbox) models.TestResults {
	cmd := a.testCommand(ctx, sb)
	if cmd == "" {
		return models.TestResults{Success: true, Output: "no test runner detected"}
	}

	res, err := sb.RunCommand(ctx, cmd, RepoDir)
	if err != nil {
		a.logger.Warn("test run failed to execute", "error", err)
		return models.TestResults{Success: false, Output: err.Error()}
	}

	output := res.Stdout
	if res.Stderr != "" {
		output += "\n" + res.Stderr
	}
	results := models.TestResults{
		Success:    res.ExitCode == 0,
		Output:     truncate(output, 8000),
		DurationMS: res.Duration.Milliseconds(),
	}
	if !results.Success {
		results.FailedTests = extractFailedTests(output)
	}
	return results
}

func (a *Analyzer) testCommand(ctx context.Context, sb sandbox.Sandbox) string {
	if _, err := sb.ReadFile(ctx, RepoDir+"/go.mod"); err == nil {
		return "go test ./..."
	}
	if _, err := sb.ReadFile(ctx, RepoDir+"/package.json"); err == nil {
		return "npm test --silent"
	}
	if _, err := sb.ReadFile(ctx, RepoDir+"/Cargo.toml"); err == nil {
		return "cargo test"
	}
	if _, err := sb.ReadFile(ctx, RepoDir+"/pyproject.toml"); err == nil {
		return "python -m pytest"
	}
	return ""
}

// extractFailedTests pulls failing test names from go test / pytest /
// jest style output lines.
func extractFailedTests(output string) []string {
	var failed []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "--- FAIL: "):
			name := strings.TrimPrefix(line, "--- FAIL: ")
			if idx := strings.IndexByte(name, ' '); idx > 0 {
				name = name[:idx]
			}
			failed = append(failed, name)
		case strings.HasPrefix(line, "FAILED "):
			name := strings.TrimPrefix(line, "FAILED ")
			if idx := strings.IndexByte(name, ' '); idx > 0 {
				name = name[:idx]
			}
			failed = append(failed, name)
		}
	}
	return failed
}

// fileInventory lists tracked files, capped to keep prompts bounded.
func (a *Analyzer) fileInventory(ctx context.Context, sb sandbox.Sandbox) string {
	res, err := sb.RunCommand(ctx, "git ls-files | head -200", RepoDir)
	if err != nil || res.ExitCode != 0 {
		// Fall back to a plain listing for non-git trees.
		entries, lerr := sb.ListFiles(ctx, RepoDir)
		if lerr != nil {
			return "(file listing unavailable)"
		}
		return strings.Join(entries, "\n")
	}
	return strings.TrimSpace(res.Stdout)
}

func (a *Analyzer) readmeHead(ctx context.Context, sb sandbox.Sandbox) string {
	res, err := sb.RunCommand(ctx, "head -c 2000 README.md 2>/dev/null || head -c 2000 README 2>/dev/null || true", RepoDir)
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...(truncated)"
}
