package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const simulatedProtocolPrompt = `You have access to the following tools. To call a tool, respond with a block in exactly this format:

<tool_call>
{"name": "tool_name", "arguments": {"arg": "value"}}
</tool_call>

Rules:
- Emit at most one tool call per response.
- The block must contain a single JSON object with "name" and "arguments".
- Do not describe the call in prose; emit the block and nothing else when calling a tool.
- When you have everything you need, answer the user directly without a tool call.

Available tools:
`

// Simulated wraps a backend without native tool support. It injects a
// textual protocol into the system prompt, withholds <tool_call> blocks
// from the streamed text, and converts them into synthetic ToolCalls so
// callers see the same shape as a native adapter.
type Simulated struct {
	inner  Provider
	logger *slog.Logger
}

// NewSimulated wraps the given provider with the text tool protocol.
func NewSimulated(inner Provider, logger *slog.Logger) *Simulated {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{
		inner:  inner,
		logger: logger.With("wrapper", "simulated", "provider", inner.Name()),
	}
}

// Name implements Provider.
func (s *Simulated) Name() string { return s.inner.Name() }

// SupportsNativeToolCalls implements Provider. The wrapper exists to
// fake support, so from the caller's perspective tools always work.
func (s *Simulated) SupportsNativeToolCalls() bool { return true }

// Ping implements Provider.
func (s *Simulated) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// StreamCompletion implements Provider.
func (s *Simulated) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) (*Result, error) {
	inner := req
	inner.Tools = nil
	if len(req.Tools) > 0 {
		inner.System = joinSystem(req.System, simulatedProtocolPrompt+renderCompactSchemas(req.Tools))
	}
	inner.Messages = escapeTemplateBraces(req.Messages)

	filter := newToolTagFilter(cb)
	result, err := s.inner.StreamCompletion(ctx, inner, filter.callback())
	if err != nil {
		// Some backends template message text and choke on brace-heavy
		// JSON payloads. One retry with the plain request gives the
		// user an answer instead of an opaque failure.
		var fatal *FatalError
		if errors.As(err, &fatal) && fatal.Status == 400 && len(req.Tools) > 0 {
			s.logger.Warn("backend rejected protocol request, retrying without tools", "error", err)
			plain := req
			plain.Tools = nil
			return s.inner.StreamCompletion(ctx, plain, cb)
		}
		return nil, err
	}
	filter.flush()

	if calls := parseTextToolCalls(result.Content); len(calls) > 0 {
		for i, tc := range calls {
			if cb != nil {
				cb(StreamEvent{Kind: KindToolCall, ToolName: tc.Function.Name})
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("sim_%s_%d", tc.Function.Name, i),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		result.Content = stripToolCallBlocks(result.Content)
		s.logger.Debug("extracted simulated tool calls", "count", len(calls))
	}

	return result, nil
}

func joinSystem(system, extra string) string {
	if system == "" {
		return extra
	}
	return system + "\n\n" + extra
}

// renderCompactSchemas renders tool definitions as one line per tool:
// name(param: type, required_param*: type) - description. Compact text
// keeps the prompt small for local models with short contexts.
func renderCompactSchemas(tools []map[string]any) string {
	var b strings.Builder
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)

		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("(")

		if params, ok := fn["parameters"].(map[string]any); ok {
			required := map[string]bool{}
			if reqList, ok := params["required"].([]string); ok {
				for _, r := range reqList {
					required[r] = true
				}
			} else if reqList, ok := params["required"].([]any); ok {
				for _, r := range reqList {
					if rs, ok := r.(string); ok {
						required[rs] = true
					}
				}
			}
			if props, ok := params["properties"].(map[string]any); ok {
				names := make([]string, 0, len(props))
				for pn := range props {
					names = append(names, pn)
				}
				sort.Strings(names)
				for i, pn := range names {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(pn)
					if required[pn] {
						b.WriteString("*")
					}
					if prop, ok := props[pn].(map[string]any); ok {
						if t, ok := prop["type"].(string); ok {
							b.WriteString(": ")
							b.WriteString(t)
						}
					}
				}
			}
		}

		b.WriteString(")")
		if desc != "" {
			b.WriteString(" - ")
			b.WriteString(desc)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// escapeTemplateBraces neutralizes {{ and }} in message content for
// backends that run message text through a template engine. Tool
// results full of JSON trip those up otherwise.
func escapeTemplateBraces(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if strings.Contains(msg.Content, "{{") || strings.Contains(msg.Content, "}}") {
			c := strings.ReplaceAll(msg.Content, "{{", "{ {")
			c = strings.ReplaceAll(c, "}}", "} }")
			out[i].Content = c
		}
	}
	return out
}

// stripToolCallBlocks removes <tool_call>...</tool_call> blocks (and a
// dangling unclosed block) from content, leaving surrounding prose.
func stripToolCallBlocks(content string) string {
	for {
		start := strings.Index(content, "<tool_call>")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "</tool_call>")
		if end == -1 {
			content = content[:start]
			break
		}
		content = content[:start] + content[start+end+len("</tool_call>"):]
	}
	return strings.TrimSpace(content)
}

// toolTagFilter passes text events through to the downstream callback
// while withholding anything that is, or might become, a <tool_call>
// block. Partial tag prefixes at the end of the buffer are held back
// until the next event resolves them.
type toolTagFilter struct {
	downstream StreamCallback
	buf        strings.Builder
	inBlock    bool
}

func newToolTagFilter(downstream StreamCallback) *toolTagFilter {
	return &toolTagFilter{downstream: downstream}
}

func (f *toolTagFilter) callback() StreamCallback {
	return func(ev StreamEvent) {
		if f.downstream == nil {
			return
		}
		if ev.Kind != KindText {
			f.downstream(ev)
			return
		}
		f.buf.WriteString(ev.Text)
		f.emit(false)
	}
}

// flush releases any held-back text once the stream ends. Text inside
// an unclosed block stays suppressed.
func (f *toolTagFilter) flush() {
	if f.downstream == nil {
		return
	}
	f.emit(true)
}

func (f *toolTagFilter) emit(final bool) {
	const openTag, closeTag = "<tool_call>", "</tool_call>"

	for {
		s := f.buf.String()
		if s == "" {
			return
		}

		if f.inBlock {
			end := strings.Index(s, closeTag)
			if end == -1 {
				if !final {
					return
				}
				f.buf.Reset()
				return
			}
			f.buf.Reset()
			f.buf.WriteString(s[end+len(closeTag):])
			f.inBlock = false
			continue
		}

		start := strings.Index(s, openTag)
		if start >= 0 {
			if start > 0 {
				f.downstream(StreamEvent{Kind: KindText, Text: s[:start]})
			}
			f.buf.Reset()
			f.buf.WriteString(s[start+len(openTag):])
			f.inBlock = true
			continue
		}

		// Hold back a trailing partial "<tool_call>" prefix.
		hold := 0
		if !final {
			for n := len(openTag) - 1; n > 0; n-- {
				if strings.HasSuffix(s, openTag[:n]) {
					hold = n
					break
				}
			}
		}
		if hold < len(s) {
			f.downstream(StreamEvent{Kind: KindText, Text: s[:len(s)-hold]})
		}
		f.buf.Reset()
		f.buf.WriteString(s[len(s)-hold:])
		return
	}
}
