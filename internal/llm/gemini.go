package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside-ai/hearthside/internal/httpkit"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider adapts the Google Gemini generateContent API. The
// backend is turn-based and non-streaming: the full response arrives
// at once and is delivered to the callback as a single text event.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiProvider creates a new Gemini adapter.
func NewGeminiProvider(apiKey string, logger *slog.Logger) *GeminiProvider {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		logger:  logger.With("provider", "google"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Name implements Provider. The registry name matches the config
// section ("google"), not the model family.
func (p *GeminiProvider) Name() string { return "google" }

// SupportsNativeToolCalls implements Provider.
func (p *GeminiProvider) SupportsNativeToolCalls() bool { return true }

// Gemini wire types

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent     `json:"system_instruction,omitempty"`
	Contents          []geminiContent    `json:"contents"`
	Tools             []geminiToolBundle `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig   `json:"generationConfig,omitempty"`
}

type geminiToolBundle struct {
	FunctionDeclarations []geminiFunctionDecl `json:"function_declarations"`
}

type geminiFunctionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// StreamCompletion implements Provider.
func (p *GeminiProvider) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	wireReq := geminiRequest{
		Contents: convertToGemini(req.Messages),
		Tools:    convertToolsToGemini(req.Tools),
	}
	if req.System != "" {
		wireReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		wireReq.GenerationConfig = &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
	}

	p.logger.Debug("preparing request",
		"model", req.Model,
		"contents", len(wireReq.Contents),
		"tools", len(req.Tools),
	)

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, req.Model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
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
		p.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, classifyHTTPError("google", resp.StatusCode, resp.Header, errBody)
	}

	var wireResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(wireResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	candidate := wireResp.Candidates[0]
	result := &Result{
		Model:        wireResp.ModelVersion,
		StopReason:   candidate.FinishReason,
		InputTokens:  wireResp.UsageMetadata.PromptTokenCount,
		OutputTokens: wireResp.UsageMetadata.CandidatesTokenCount,
	}
	if result.Model == "" {
		result.Model = req.Model
	}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			result.Content += part.Text
		}
		if part.FunctionCall != nil {
			if cb != nil {
				cb(StreamEvent{Kind: KindToolCall, ToolName: part.FunctionCall.Name})
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	// Deliver the whole text in one event so callers see a uniform
	// stream shape across providers.
	if result.Content != "" && cb != nil {
		cb(StreamEvent{Kind: KindText, Text: result.Content})
	}

	p.logger.Debug("response received",
		"model", result.Model,
		"content_len", len(result.Content),
		"tool_calls", len(result.ToolCalls),
	)

	return result, nil
}

// Ping verifies the key against the model list endpoint.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// convertToGemini converts neutral messages to Gemini contents.
// Tool results become functionResponse parts on user turns; the
// backend correlates by function name, not id.
func convertToGemini(messages []Message) []geminiContent {
	var result []geminiContent

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			parts := []geminiPart{}
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				parts = append(parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				result = append(result, geminiContent{Role: "model", Parts: parts})
			}

		case "tool":
			result = append(result, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     msg.ToolName,
						Response: map[string]any{"content": msg.Content},
					},
				}},
			})

		case "user":
			result = append(result, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	return result
}

// convertToolsToGemini converts OpenAI-format tool definitions to
// Gemini function declarations.
func convertToolsToGemini(tools []map[string]any) []geminiToolBundle {
	if len(tools) == 0 {
		return nil
	}

	var decls []geminiFunctionDecl
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		decls = append(decls, geminiFunctionDecl{
			Name:        name,
			Description: desc,
			Parameters:  fn["parameters"],
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []geminiToolBundle{{FunctionDeclarations: decls}}
}
