// Package sandbox manages disposable remote execution environments.
//
// A Sandbox maps to one environment on the provider service: created for
// a single session, used to run commands and host file state, and torn
// down exactly once when the session's workflow exits.
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Tool names a tool integration the provider can attach at creation time.
type Tool string

const (
	ToolDocsSearch Tool = "docs_search"
	ToolRepoAccess Tool = "repo_access"
	ToolFileAccess Tool = "file_access"
)

// Config holds provider connection settings plus per-sandbox options.
type Config struct {
	APIURL         string
	APIKey         string
	Template       string
	TimeoutSeconds int
	Tools          []Tool
}

// CommandResult is the outcome of one command run. A non-zero exit code
// is data, not an error.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Sandbox is the lifecycle contract the orchestrator depends on.
type Sandbox interface {
	Create(ctx context.Context) error
	RunCommand(ctx context.Context, cmd, cwd string) (*CommandResult, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	ListFiles(ctx context.Context, dir string) ([]string, error)
	GatewayURL() (string, error)
	GatewayToken() (string, error)
	SetTimeout(ctx context.Context, seconds int) error
	Teardown(ctx context.Context) error
	ID() string
}

// Factory creates one Sandbox per session workflow.
type Factory interface {
	New(cfg Config) Sandbox
}

// HTTPFactory builds RemoteSandbox clients sharing one http.Client.
type HTTPFactory struct {
	client *http.Client
}

// NewHTTPFactory creates a factory with a default request timeout.
func NewHTTPFactory() *HTTPFactory {
	return &HTTPFactory{client: &http.Client{Timeout: 60 * time.Second}}
}

// New returns an unprovisioned sandbox client; call Create before use.
func (f *HTTPFactory) New(cfg Config) Sandbox {
	return &RemoteSandbox{cfg: cfg, client: f.client}
}

// RemoteSandbox talks to the sandbox provider's REST API.
type RemoteSandbox struct {
	cfg    Config
	client *http.Client

	mu           sync.Mutex
	id           string
	gatewayURL   string
	gatewayToken string
	created      bool
	torndown     bool
}

// ID returns the provider-assigned sandbox id, empty before Create.
func (s *RemoteSandbox) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

type createRequest struct {
	Template       string   `json:"template"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Tools          []string `json:"tools,omitempty"`
}

type createResponse struct {
	ID           string `json:"id"`
	GatewayURL   string `json:"gateway_url,omitempty"`
	GatewayToken string `json:"gateway_token,omitempty"`
}

// Create provisions the remote environment. Tool integrations listed in
// the config are attached by the provider and surface as gateway
// credentials in the response.
func (s *RemoteSandbox) Create(ctx context.Context) error {
	tools := make([]string, 0, len(s.cfg.Tools))
	for _, t := range s.cfg.Tools {
		tools = append(tools, string(t))
	}
	body := createRequest{
		Template:       s.cfg.Template,
		TimeoutSeconds: s.cfg.TimeoutSeconds,
		Tools:          tools,
	}

	var resp createResponse
	status, err := s.doJSON(ctx, http.MethodPost, "/v2/sandboxes", body, &resp)
	if err != nil {
		return &ProvisioningError{Message: err.Error()}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &ProvisioningError{StatusCode: status, Message: "create rejected by provider"}
	}
	if resp.ID == "" {
		return &ProvisioningError{Message: "provider returned empty sandbox id"}
	}

	s.mu.Lock()
	s.id = resp.ID
	s.gatewayURL = resp.GatewayURL
	s.gatewayToken = resp.GatewayToken
	s.created = true
	s.mu.Unlock()
	return nil
}

type execRequest struct {
	Cmd string `json:"cmd"`
	Cwd string `json:"cwd,omitempty"`
}

type execResponse struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
}

// RunCommand executes a shell command in the sandbox. The exit code is
// returned as data; only transport/sequencing problems are errors.
func (s *RemoteSandbox) RunCommand(ctx context.Context, cmd, cwd string) (*CommandResult, error) {
	id, err := s.liveID("RunCommand")
	if err != nil {
		return nil, err
	}

	var resp execResponse
	status, err := s.doJSON(ctx, http.MethodPost, "/v2/sandboxes/"+id+"/exec", execRequest{Cmd: cmd, Cwd: cwd}, &resp)
	if err != nil {
		return nil, fmt.Errorf("run command: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("run command: provider returned HTTP %d", status)
	}
	return &CommandResult{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		Duration: time.Duration(resp.DurationMS) * time.Millisecond,
	}, nil
}

// ReadFile returns a file's contents via cat.
func (s *RemoteSandbox) ReadFile(ctx context.Context, path string) (string, error) {
	res, err := s.RunCommand(ctx, "cat -- "+shellQuote(path), "")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &FileError{Path: path, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return res.Stdout, nil
}

// WriteFile writes content to a file, creating parent directories.
// Content travels base64-encoded so arbitrary bytes survive the shell.
func (s *RemoteSandbox) WriteFile(ctx context.Context, path, content string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	q := shellQuote(path)
	cmd := fmt.Sprintf("mkdir -p -- \"$(dirname -- %s)\" && printf '%%s' %s | base64 -d > %s", q, encoded, q)
	res, err := s.RunCommand(ctx, cmd, "")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &FileError{Path: path, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	return nil
}

// ListFiles lists directory entries, one per line.
func (s *RemoteSandbox) ListFiles(ctx context.Context, dir string) ([]string, error) {
	res, err := s.RunCommand(ctx, "ls -1A -- "+shellQuote(dir), "")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &FileError{Path: dir, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// GatewayURL returns the tool gateway address for this sandbox.
func (s *RemoteSandbox) GatewayURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gatewayURL == "" {
		return "", &GatewayUnavailableError{}
	}
	return s.gatewayURL, nil
}

// GatewayToken returns the bearer token for the tool gateway.
func (s *RemoteSandbox) GatewayToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gatewayToken == "" {
		return "", &GatewayUnavailableError{}
	}
	return s.gatewayToken, nil
}

// SetTimeout adjusts the sandbox's idle/absolute timeout after creation.
func (s *RemoteSandbox) SetTimeout(ctx context.Context, seconds int) error {
	id, err := s.liveID("SetTimeout")
	if err != nil {
		return err
	}
	status, err := s.doJSON(ctx, http.MethodPost, "/v2/sandboxes/"+id+"/timeout",
		map[string]int{"timeout_seconds": seconds}, nil)
	if err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("set timeout: provider returned HTTP %d", status)
	}
	return nil
}

// Teardown releases the remote environment. Safe to call when Create
// partially failed and safe to call more than once; only the first call
// after a successful Create reaches the provider.
func (s *RemoteSandbox) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.torndown || !s.created {
		s.torndown = true
		s.mu.Unlock()
		return nil
	}
	s.torndown = true
	id := s.id
	s.mu.Unlock()

	status, err := s.doJSON(ctx, http.MethodDelete, "/v2/sandboxes/"+id, nil, nil)
	if err != nil {
		return fmt.Errorf("teardown sandbox %s: %w", id, err)
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("teardown sandbox %s: provider returned HTTP %d", id, status)
	}
	return nil
}

// liveID returns the sandbox id if the sandbox is usable.
func (s *RemoteSandbox) liveID(op string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created || s.torndown {
		return "", &NotInitializedError{Op: op}
	}
	return s.id, nil
}

// doJSON performs an authenticated JSON round-trip against the provider.
func (s *RemoteSandbox) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.cfg.APIURL, "/")+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// shellQuote single-quotes a string for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
