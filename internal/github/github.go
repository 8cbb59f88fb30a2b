// Package github resolves issue references against the GitHub API.
package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v57/github"
)

// IssueRef locates one issue, parsed from the "owner/repo#42" form.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// String renders the canonical owner/repo#N form.
func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// RepoURL returns the HTTPS clone URL for the referenced repository.
func (r IssueRef) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Repo)
}

// ParseIssueRef parses "owner/repo#42".
func ParseIssueRef(s string) (IssueRef, error) {
	repoPart, numPart, ok := strings.Cut(s, "#")
	if !ok {
		return IssueRef{}, fmt.Errorf("invalid issue reference %q: missing #number", s)
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" {
		return IssueRef{}, fmt.Errorf("invalid issue reference %q: expected owner/repo#number", s)
	}
	num, err := strconv.Atoi(numPart)
	if err != nil || num <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue reference %q: bad issue number", s)
	}
	return IssueRef{Owner: owner, Repo: repo, Number: num}, nil
}

// Issue is the fetched content the workflow analyzes.
type Issue struct {
	Title  string
	Body   string
	Labels []string
	URL    string
}

// Client fetches issues. The API-backed implementation is replaced with
// a fake in tests.
type Client interface {
	FetchIssue(ctx context.Context, ref IssueRef) (*Issue, error)
}

// APIClient implements Client over the GitHub REST API.
type APIClient struct {
	gh *gh.Client
}

// NewClient creates an APIClient. An empty token gives unauthenticated
// access, which is enough for public repositories.
func NewClient(token string) *APIClient {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &APIClient{gh: client}
}

// FetchIssue retrieves an issue's title, body, and labels.
func (c *APIClient) FetchIssue(ctx context.Context, ref IssueRef) (*Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("fetch issue %s: %w", ref, err)
	}

	out := &Issue{
		Title: issue.GetTitle(),
		Body:  issue.GetBody(),
		URL:   issue.GetHTMLURL(),
	}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out, nil
}
