package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hearthside-ai/hearthside/internal/httpkit"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider adapts OpenAI and OpenAI-compatible chat completion
// endpoints. Tool calls stream natively as argument deltas.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIProvider creates an adapter for OpenAI or any compatible
// gateway (set baseURL for the latter; empty means api.openai.com).
func NewOpenAIProvider(apiKey, baseURL string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "openai"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// SupportsNativeToolCalls implements Provider.
func (p *OpenAIProvider) SupportsNativeToolCalls() bool { return true }

// OpenAI wire types

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openaiToolCall struct {
	Index    int            `json:"index,omitempty"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded string on this wire
}

type openaiRequest struct {
	Model     string           `json:"model"`
	Messages  []openaiMessage  `json:"messages"`
	Tools     []map[string]any `json:"tools,omitempty"`
	Stream    bool             `json:"stream"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type openaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string           `json:"role,omitempty"`
			Content   string           `json:"content,omitempty"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// StreamCompletion implements Provider.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	msgs := convertToOpenAI(req)

	wireReq := openaiRequest{
		Model:     req.Model,
		Messages:  msgs,
		Tools:     req.Tools,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	}

	p.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(msgs),
		"tools", len(req.Tools),
	)

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		p.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, classifyHTTPError("openai", resp.StatusCode, resp.Header, errBody)
	}

	return p.handleStream(ctx, resp.Body, cb)
}

// Ping verifies credentials against the models endpoint.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func (p *OpenAIProvider) handleStream(ctx context.Context, body io.Reader, cb StreamCallback) (*Result, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		contentBuilder strings.Builder
		model          string
		finishReason   string
		inputTokens    int
		outputTokens   int
	)

	// Tool call fragments accumulate by stream index: the id and name
	// arrive on the first fragment, argument JSON drips in afterwards.
	type partialCall struct {
		id      string
		name    string
		argsBuf strings.Builder
	}
	var partials []*partialCall

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			break
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			inputTokens = chunk.Usage.PromptTokens
			outputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			contentBuilder.WriteString(choice.Delta.Content)
			if cb != nil {
				cb(StreamEvent{Kind: KindText, Text: choice.Delta.Content})
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			for tc.Index >= len(partials) {
				partials = append(partials, &partialCall{})
			}
			pc := partials[tc.Index]
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				if pc.name == "" && cb != nil {
					cb(StreamEvent{Kind: KindToolCall, ToolName: tc.Function.Name})
				}
				pc.name = tc.Function.Name
			}
			pc.argsBuf.WriteString(tc.Function.Arguments)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	var toolCalls []ToolCall
	for _, pc := range partials {
		if pc.name == "" {
			continue
		}
		var args map[string]any
		if raw := pc.argsBuf.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{"_raw": raw}
			}
		}
		toolCalls = append(toolCalls, ToolCall{ID: pc.id, Name: pc.name, Arguments: args})
	}

	result := &Result{
		Model:        model,
		Content:      contentBuilder.String(),
		ToolCalls:    toolCalls,
		StopReason:   finishReason,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}

	p.logger.Debug("stream complete",
		"model", result.Model,
		"content_len", len(result.Content),
		"tool_calls", len(result.ToolCalls),
		"finish_reason", finishReason,
	)
	p.logger.Log(ctx, LevelTrace, "stream final content", "content", result.Content)

	return result, nil
}

// convertToOpenAI converts neutral messages to the OpenAI wire shape.
// The system prompt leads the message list; a trailing assistant turn
// gets a minimal continuation user turn so the request stays valid.
func convertToOpenAI(req Request) []openaiMessage {
	var result []openaiMessage

	if req.System != "" {
		result = append(result, openaiMessage{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			out := openaiMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				argJSON, err := json.Marshal(args)
				if err != nil {
					argJSON = []byte("{}")
				}
				out.ToolCalls = append(out.ToolCalls, openaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaiFunction{
						Name:      tc.Name,
						Arguments: string(argJSON),
					},
				})
			}
			result = append(result, out)

		case "tool":
			result = append(result, openaiMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			})

		case "user":
			result = append(result, openaiMessage{Role: "user", Content: msg.Content})
		}
	}

	if len(result) > 0 && result[len(result)-1].Role == "assistant" {
		result = append(result, openaiMessage{Role: "user", Content: "Continue."})
	}

	return result
}
