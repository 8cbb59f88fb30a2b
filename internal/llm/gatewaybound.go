package llm

import (
	"context"

	"github.com/remedyhq/remedy/internal/gateway"
)

// WithGateway returns a Generator whose plain completions are routed
// through the given tool gateway. Used during a session's planning phase
// so the model can consult gateway tools (documentation search, repo
// access) without every call site threading credentials.
func WithGateway(g Generator, creds gateway.Credentials) Generator {
	return &gatewayBound{inner: g, creds: creds}
}

type gatewayBound struct {
	inner Generator
	creds gateway.Credentials
}

func (b *gatewayBound) Generate(ctx context.Context, msgs []Message, opts *Options) (*Result, error) {
	return b.inner.GenerateWithTools(ctx, msgs, b.creds, opts)
}

func (b *gatewayBound) GenerateWithTools(ctx context.Context, msgs []Message, creds gateway.Credentials, opts *Options) (*Result, error) {
	return b.inner.GenerateWithTools(ctx, msgs, creds, opts)
}

func (b *gatewayBound) Provider() string { return b.inner.Provider() }
