package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/gateway"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/sandbox"
)

// fakeSandbox is a scripted in-memory stand-in for a remote sandbox.
type fakeSandbox struct {
	files     map[string]string // path -> content for ReadFile
	cmds      []string
	exitCodes map[string]int // command prefix -> exit code
	outputs   map[string]string
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		files:     make(map[string]string),
		exitCodes: make(map[string]int),
		outputs:   make(map[string]string),
	}
}

func (f *fakeSandbox) Create(context.Context) error { return nil }

func (f *fakeSandbox) RunCommand(_ context.Context, cmd, _ string) (*sandbox.CommandResult, error) {
	f.cmds = append(f.cmds, cmd)

	for prefix, code := range f.exitCodes {
		if strings.HasPrefix(cmd, prefix) {
			return &sandbox.CommandResult{ExitCode: code, Stderr: f.outputs[prefix]}, nil
		}
	}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(cmd, prefix) {
			return &sandbox.CommandResult{Stdout: out}, nil
		}
	}
	return &sandbox.CommandResult{}, nil
}

func (f *fakeSandbox) ReadFile(_ context.Context, path string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", &sandbox.FileError{Path: path, ExitCode: 1}
	}
	return content, nil
}

func (f *fakeSandbox) WriteFile(_ context.Context, path, content string) error {
	f.files[path] = content
	return nil
}

func (f *fakeSandbox) ListFiles(context.Context, string) ([]string, error) {
	return []string{"main.go", "go.mod"}, nil
}

func (f *fakeSandbox) GatewayURL() (string, error) { return "", errors.New("no gateway") }

func (f *fakeSandbox) GatewayToken() (string, error) { return "", errors.New("no gateway") }

func (f *fakeSandbox) SetTimeout(context.Context, int) error { return nil }

func (f *fakeSandbox) Teardown(context.Context) error { return nil }

func (f *fakeSandbox) ID() string { return "sbx_fake" }

// overviewGen answers the overview and call-graph prompts.
type overviewGen struct{}

func (overviewGen) Generate(_ context.Context, msgs []llm.Message, _ *llm.Options) (*llm.Result, error) {
	if strings.Contains(msgs[0].Content, "extract call graphs") {
		return &llm.Result{Content: `{"nodes": [{"name": "main.go:run", "callers": [], "callees": ["parse"]}]}`}, nil
	}
	return &llm.Result{Content: `{"summary": "a parsing CLI", "architecture": {"kind": "cli", "diagram": "main -> parse"}, "keyFiles": [{"path": "parse.go", "purpose": "parsing", "dependencies": [], "exports": []}]}`}, nil
}

func (overviewGen) GenerateWithTools(ctx context.Context, msgs []llm.Message, _ gateway.Credentials, opts *llm.Options) (*llm.Result, error) {
	return overviewGen{}.Generate(ctx, msgs, opts)
}

func (overviewGen) Provider() string { return "fake" }

func TestCloneRepo(t *testing.T) {
	sb := newFakeSandbox()
	a := NewAnalyzer(overviewGen{}, nil)

	err := a.CloneRepo(context.Background(), sb, "https://github.com/acme/widgets.git")
	require.NoError(t, err)
	require.NotEmpty(t, sb.cmds)
	assert.Equal(t, "git clone --depth 1 https://github.com/acme/widgets.git "+RepoDir, sb.cmds[0])
}

func TestCloneRepo_NonZeroExitIsFatal(t *testing.T) {
	sb := newFakeSandbox()
	sb.exitCodes["git clone"] = 128
	sb.outputs["git clone"] = "fatal: repository not found"
	a := NewAnalyzer(overviewGen{}, nil)

	err := a.CloneRepo(context.Background(), sb, "https://github.com/acme/gone.git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 128")
	assert.Contains(t, err.Error(), "repository not found")
}

func TestReadManifest_FirstCandidateWins(t *testing.T) {
	sb := newFakeSandbox()
	sb.files[RepoDir+"/go.mod"] = "module acme/widgets"
	sb.files[RepoDir+"/package.json"] = `{"name": "widgets"}`
	a := NewAnalyzer(overviewGen{}, nil)

	manifest := a.ReadManifest(context.Background(), sb)
	assert.Contains(t, manifest, "go.mod:")
	assert.Contains(t, manifest, "module acme/widgets")
	assert.NotContains(t, manifest, "package.json")
}

func TestReadManifest_NoneFound(t *testing.T) {
	sb := newFakeSandbox()
	a := NewAnalyzer(overviewGen{}, nil)
	assert.Empty(t, a.ReadManifest(context.Background(), sb))
}

func TestBuildOverview(t *testing.T) {
	sb := newFakeSandbox()
	sb.files[RepoDir+"/go.mod"] = "module acme/widgets"
	sb.files[RepoDir+"/parse.go"] = "package main\nfunc parse() {}"
	sb.outputs["git ls-files"] = "main.go\nparse.go\ngo.mod"
	sb.outputs["go test"] = "ok"
	a := NewAnalyzer(overviewGen{}, nil)

	overview, err := a.BuildOverview(context.Background(), sb, "panic on empty input", "steps to reproduce...")
	require.NoError(t, err)

	assert.Equal(t, "a parsing CLI", overview.Summary)
	assert.Equal(t, "cli", overview.Architecture.Kind)
	require.Len(t, overview.KeyFiles, 1)
	require.Len(t, overview.CallGraph.Nodes, 1)
	assert.Equal(t, "main.go:run", overview.CallGraph.Nodes[0].Name)
	assert.True(t, overview.TestResults.Success)
}

func TestExtractFailedTests(t *testing.T) {
	output := strings.Join([]string{
		"=== RUN   TestParse",
		"--- FAIL: TestParse (0.00s)",
		"--- FAIL: TestParse/empty (0.00s)",
		"FAIL",
		"FAILED tests/test_parse.py::test_empty - AssertionError",
		"ok   acme/widgets 0.1s",
	}, "\n")

	failed := extractFailedTests(output)
	assert.Equal(t, []string{"TestParse", "TestParse/empty", "tests/test_parse.py::test_empty"}, failed)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	long := strings.Repeat("x", 50)
	got := truncate(long, 10)
	assert.True(t, strings.HasPrefix(got, "xxxxxxxxxx"))
	assert.Contains(t, got, "truncated")
}
