package llm

import (
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

// OllamaProvider adapts a local Ollama instance. Responses stream as
// newline-delimited JSON. Some local models emit tool calls as JSON in
// the content text instead of the native tool_calls field; those are
// recovered by parseTextToolCalls.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaProvider creates a new Ollama adapter.
func NewOllamaProvider(baseURL string, logger *slog.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			// Large local models with tools need time.
			httpkit.WithTimeout(5 * time.Minute),
		),
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// SupportsNativeToolCalls implements Provider. Native support depends
// on the model, so the registry decides per configuration whether to
// wrap this provider in the simulated protocol.
func (p *OllamaProvider) SupportsNativeToolCalls() bool { return true }

// Ollama wire types

type ollamaMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"` // Ollama returns object, not string
	} `json:"function"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type ollamaChunk struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// StreamCompletion implements Provider.
func (p *OllamaProvider) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	wireReq := ollamaRequest{
		Model:    req.Model,
		Messages: convertToOllama(req),
		Stream:   true,
		Tools:    req.Tools,
	}

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, classifyHTTPError("ollama", resp.StatusCode, resp.Header, errBody)
	}

	// Streaming: read newline-delimited JSON
	var (
		contentBuilder strings.Builder
		toolCalls      []ollamaToolCall
		model          string
		inputTokens    int
		outputTokens   int
	)
	decoder := json.NewDecoder(resp.Body)

	for {
		var chunk ollamaChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		if chunk.Model != "" {
			model = chunk.Model
		}

		if chunk.Message.Content != "" {
			contentBuilder.WriteString(chunk.Message.Content)
			if cb != nil {
				cb(StreamEvent{Kind: KindText, Text: chunk.Message.Content})
			}
		}

		// Tool calls come in the final message
		if len(chunk.Message.ToolCalls) > 0 {
			toolCalls = chunk.Message.ToolCalls
		}

		if chunk.Done {
			inputTokens = chunk.PromptEvalCount
			outputTokens = chunk.EvalCount
			break
		}
	}

	content := contentBuilder.String()

	// Try to parse text-based tool calls if no native tool_calls
	if len(toolCalls) == 0 && content != "" {
		if parsed := parseTextToolCalls(content); len(parsed) > 0 {
			toolCalls = parsed
			content = "" // content was a tool call, not prose
		}
	}

	result := &Result{
		Model:        model,
		Content:      content,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	for i, tc := range toolCalls {
		if cb != nil {
			cb(StreamEvent{Kind: KindToolCall, ToolName: tc.Function.Name})
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("ollama_%s_%d", tc.Function.Name, i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	p.logger.Debug("stream complete",
		"model", result.Model,
		"content_len", len(result.Content),
		"tool_calls", len(result.ToolCalls),
	)

	return result, nil
}

// Ping checks if Ollama is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}

	return nil
}

// ListModels returns available model names.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

func convertToOllama(req Request) []ollamaMessage {
	var result []ollamaMessage
	if req.System != "" {
		result = append(result, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out := ollamaMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			var wire ollamaToolCall
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			out.ToolCalls = append(out.ToolCalls, wire)
		}
		result = append(result, out)
	}
	return result
}

// parseTextToolCalls attempts to extract tool calls from content text.
// Handles the common formats local models emit:
//   - Raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array: [{"name": "...", "arguments": {...}}]
//   - Tagged: <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ollamaToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	// Try to extract from <tool_call> tags
	if strings.Contains(content, "<tool_call>") {
		start := strings.Index(content, "<tool_call>")
		end := strings.Index(content, "</tool_call>")
		if start != -1 && end > start {
			content = strings.TrimSpace(content[start+len("<tool_call>") : end])
		} else if start != -1 {
			// No closing tag, take rest of content
			content = strings.TrimSpace(content[start+len("<tool_call>"):])
		}
	}

	// Try parsing as array of tool calls
	var calls []struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		result := make([]ollamaToolCall, len(calls))
		for i, c := range calls {
			result[i].Function.Name = c.Name
			result[i].Function.Arguments = c.Arguments
		}
		return result
	}

	// Try parsing as single tool call object
	var single struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		var tc ollamaToolCall
		tc.Function.Name = single.Name
		tc.Function.Arguments = single.Arguments
		return []ollamaToolCall{tc}
	}

	return nil
}
