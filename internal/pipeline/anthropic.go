package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/siteforge-labs/siteforge-backend/config"
)

const systemGenerate = `You are a website generator. Given a description, produce a complete
static website: valid HTML, CSS, and JavaScript in separate files, relative paths,
with an index.html entry point.
Respond with exactly one JSON object and nothing else:
{"files": {"index.html": "<contents>", "styles.css": "<contents>"}, "summary": "<one sentence>"}`

const systemEdit = `You are a website editor. You receive the current site files and an
instruction. Apply the instruction with minimal churn.
Respond with exactly one JSON object and nothing else:
{"files": {"<path>": "<new contents>"}, "summary": "<one sentence>"}
Include only files you add or change. Return a file with empty contents to delete it.
Omit every file you leave untouched.`

// MessagesClient is the slice of the Anthropic SDK the engine calls.
// Tests substitute a recorder.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type realMessages struct {
	messages *anthropic.MessageService
}

func (r *realMessages) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return r.messages.New(ctx, params)
}

// AnthropicEngine generates sites with the Anthropic Messages API. A
// shared limiter paces requests across all concurrent builds.
type AnthropicEngine struct {
	client    MessagesClient
	model     anthropic.Model
	maxTokens int64
	limiter   *rate.Limiter
}

func NewAnthropicEngine(cfg config.PipelineConfig) *AnthropicEngine {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	return NewAnthropicEngineWithClient(&realMessages{messages: &client.Messages}, cfg.Model, cfg.MaxTokens, cfg.RequestsPerMin)
}

func NewAnthropicEngineWithClient(client MessagesClient, model string, maxTokens, requestsPerMin int) *AnthropicEngine {
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	return &AnthropicEngine{
		client:    client,
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		limiter:   rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), requestsPerMin),
	}
}

func (e *AnthropicEngine) GenerateSite(ctx context.Context, req Request) (*SiteOutput, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	msg, err := e.client.New(ctx, e.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out, err := parseSiteOutput(text.String())
	if err != nil {
		return nil, err
	}
	out.Usage = Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	return out, nil
}

func (e *AnthropicEngine) buildParams(req Request) anthropic.MessageNewParams {
	system := systemGenerate
	if req.Mode == ModeEdit {
		system = systemEdit
	}

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userTurn(req))))

	return anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  messages,
	}
}

func userTurn(req Request) string {
	var b strings.Builder
	if req.ProjectName != "" {
		fmt.Fprintf(&b, "Project: %s\n\n", req.ProjectName)
	}
	if req.Mode == ModeEdit {
		current, _ := json.Marshal(req.BaseFiles)
		fmt.Fprintf(&b, "Current site files (version %d):\n%s\n\n", req.BaseVersion, current)
	}
	b.WriteString(req.Prompt)
	return b.String()
}

// parseSiteOutput decodes the model's JSON answer. Models wrap JSON in
// prose or code fences often enough that we cut from the first brace to
// the last instead of demanding a clean document.
func parseSiteOutput(text string) (*SiteOutput, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("model output contains no JSON object")
	}

	var payload struct {
		Files   map[string]string `json:"files"`
		Summary string            `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode site output: %w", err)
	}
	if len(payload.Files) == 0 {
		return nil, fmt.Errorf("site output has no files")
	}

	return &SiteOutput{Files: payload.Files, Summary: payload.Summary}, nil
}
