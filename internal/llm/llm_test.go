package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/gateway"
)

// fakeGenerator returns scripted content and records the messages it saw.
type fakeGenerator struct {
	content   string
	err       error
	lastMsgs  []Message
	toolCalls int
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []Message, _ *Options) (*Result, error) {
	f.lastMsgs = msgs
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Content: f.content}, nil
}

func (f *fakeGenerator) GenerateWithTools(ctx context.Context, msgs []Message, _ gateway.Credentials, opts *Options) (*Result, error) {
	f.toolCalls++
	return f.Generate(ctx, msgs, opts)
}

func (f *fakeGenerator) Provider() string { return "fake" }

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
		{"fence without newline close", "```json\n{\"a\": 1}```", `{"a": 1}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}

type samplePayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStructured_DecodesJSON(t *testing.T) {
	gen := &fakeGenerator{content: `{"name": "widget", "count": 3}`}

	out, err := Structured[samplePayload](context.Background(), gen, []Message{
		{Role: RoleUser, Content: "describe the widget"},
	}, `{"name": string, "count": number}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "widget", out.Name)
	assert.Equal(t, 3, out.Count)

	// The shape instruction is appended as a trailing user message.
	require.NotEmpty(t, gen.lastMsgs)
	last := gen.lastMsgs[len(gen.lastMsgs)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, `{"name": string, "count": number}`)
}

func TestStructured_StripsFencedOutput(t *testing.T) {
	gen := &fakeGenerator{content: "```json\n{\"name\": \"widget\", \"count\": 1}\n```"}

	out, err := Structured[samplePayload](context.Background(), gen, nil, "{}", nil)
	require.NoError(t, err)
	assert.Equal(t, "widget", out.Name)
}

func TestStructured_UnknownFieldIsMalformed(t *testing.T) {
	gen := &fakeGenerator{content: `{"name": "widget", "count": 1, "extra": true}`}

	_, err := Structured[samplePayload](context.Background(), gen, nil, "{}", nil)
	require.Error(t, err)

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Raw, "extra")
}

func TestStructured_NonJSONIsMalformed(t *testing.T) {
	gen := &fakeGenerator{content: "I cannot answer that."}

	_, err := Structured[samplePayload](context.Background(), gen, nil, "{}", nil)
	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "I cannot answer that.", malformed.Raw)
}

func TestStructured_GeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("provider down")
	gen := &fakeGenerator{err: boom}

	_, err := Structured[samplePayload](context.Background(), gen, nil, "{}", nil)
	require.ErrorIs(t, err, boom)

	var malformed *MalformedOutputError
	assert.False(t, errors.As(err, &malformed))
}

func TestNew_SelectsProvider(t *testing.T) {
	g, err := New(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", g.Provider())

	g, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", g.Provider(), "empty provider defaults to anthropic")

	g, err = New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Provider())

	_, err = New(Config{Provider: "llama-at-home"})
	assert.Error(t, err)
}

func TestWithGateway_RoutesThroughTools(t *testing.T) {
	gen := &fakeGenerator{content: "ok"}
	bound := WithGateway(gen, gateway.Credentials{URL: "http://gw", Token: "t"})

	res, err := bound.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 1, gen.toolCalls, "plain Generate must route through GenerateWithTools")
}
