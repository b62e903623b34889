package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMessages struct {
	response *anthropic.Message
	err      error
	calls    []anthropic.MessageNewParams
}

func (m *mockMessages) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func textMessage(content string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: content},
		},
		Usage: anthropic.Usage{InputTokens: 12, OutputTokens: 340},
	}
}

func TestAnthropicEngine_GenerateSite(t *testing.T) {
	mock := &mockMessages{response: textMessage(
		"Here is your site:\n```json\n{\"files\":{\"index.html\":\"<h1>hi</h1>\"},\"summary\":\"a greeting page\"}\n```",
	)}
	eng := NewAnthropicEngineWithClient(mock, "claude-sonnet-4-5-20250929", 8192, 60)

	out, err := eng.GenerateSite(context.Background(), Request{
		Mode:   ModeGenerate,
		Prompt: "a greeting page",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"index.html": "<h1>hi</h1>"}, out.Files)
	assert.Equal(t, "a greeting page", out.Summary)
	assert.Equal(t, int64(12), out.Usage.InputTokens)
	assert.Equal(t, int64(340), out.Usage.OutputTokens)

	require.Len(t, mock.calls, 1)
	params := mock.calls[0]
	assert.Equal(t, anthropic.Model("claude-sonnet-4-5-20250929"), params.Model)
	assert.Equal(t, int64(8192), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, systemGenerate, params.System[0].Text)
}

func TestAnthropicEngine_EditParams(t *testing.T) {
	mock := &mockMessages{response: textMessage(
		`{"files":{"index.html":"<h1>v2</h1>"},"summary":"tweaked"}`,
	)}
	eng := NewAnthropicEngineWithClient(mock, "claude-sonnet-4-5-20250929", 8192, 60)

	_, err := eng.GenerateSite(context.Background(), Request{
		Mode:        ModeEdit,
		Prompt:      "make the headline bolder",
		ProjectName: "portfolio",
		BaseVersion: 3,
		BaseFiles:   map[string]string{"index.html": "<h1>v1</h1>"},
		History: []HistoryTurn{
			{Role: "user", Content: "build me a portfolio"},
			{Role: "assistant", Content: "Created your portfolio site."},
		},
	})
	require.NoError(t, err)

	require.Len(t, mock.calls, 1)
	params := mock.calls[0]
	assert.Equal(t, systemEdit, params.System[0].Text)

	require.Len(t, params.Messages, 3, "two history turns plus the instruction")
	assert.Equal(t, "user", string(params.Messages[0].Role))
	assert.Equal(t, "assistant", string(params.Messages[1].Role))
	assert.Equal(t, "user", string(params.Messages[2].Role))

	final := params.Messages[2].Content[0].OfText.Text
	assert.Contains(t, final, "portfolio")
	assert.Contains(t, final, "version 3")
	assert.Contains(t, final, "<h1>v1</h1>")
	assert.Contains(t, final, "make the headline bolder")
}

func TestAnthropicEngine_Errors(t *testing.T) {
	t.Run("api error is wrapped", func(t *testing.T) {
		mock := &mockMessages{err: errors.New("overloaded")}
		eng := NewAnthropicEngineWithClient(mock, "m", 0, 0)

		_, err := eng.GenerateSite(context.Background(), Request{Mode: ModeGenerate, Prompt: "p"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overloaded")
	})

	t.Run("canceled context stops before the call", func(t *testing.T) {
		mock := &mockMessages{response: textMessage("{}")}
		eng := NewAnthropicEngineWithClient(mock, "m", 0, 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := eng.GenerateSite(ctx, Request{Mode: ModeGenerate, Prompt: "p"})
		require.Error(t, err)
		assert.Empty(t, mock.calls)
	})
}

func TestParseSiteOutput(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		out, err := parseSiteOutput(`{"files":{"a.html":"x"},"summary":"s"}`)
		require.NoError(t, err)
		assert.Equal(t, "x", out.Files["a.html"])
		assert.Equal(t, "s", out.Summary)
	})

	t.Run("JSON wrapped in prose and fences", func(t *testing.T) {
		out, err := parseSiteOutput("Sure!\n```json\n{\"files\":{\"a.html\":\"x\"},\"summary\":\"s\"}\n```\nDone.")
		require.NoError(t, err)
		assert.Equal(t, "x", out.Files["a.html"])
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := parseSiteOutput("I could not generate the site, sorry.")
		assert.Error(t, err)
	})

	t.Run("JSON without files", func(t *testing.T) {
		_, err := parseSiteOutput(`{"summary":"empty handed"}`)
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := parseSiteOutput(`{"files":{"a.html":`)
		assert.Error(t, err)
	})
}
