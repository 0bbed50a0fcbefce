// Package orchestrator drives the model/tool round loop for one chat
// request: it streams model output, executes requested tools, feeds
// results back, and decides when the exchange is done.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hearthside-ai/hearthside/internal/executor"
	"github.com/hearthside-ai/hearthside/internal/intent"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/registry"
)

const (
	// maxRateLimitRetries bounds same-round retries after a 429.
	maxRateLimitRetries = 2

	defaultMaxRounds = 10
	defaultTimeout   = 90 * time.Second
	defaultMaxTokens = 4096
)

// respondNowNudge is injected when a whole round produced only
// duplicate tool calls: the model is looping instead of answering.
const respondNowNudge = "You already have all the information you requested. Answer the user now, without calling any more tools."

// Stop reasons reported in Outcome.Stopped.
const (
	StopComplete  = "complete"
	StopMaxRounds = "max_rounds"
	StopCancelled = "cancelled"
)

var errCancelled = errors.New("request cancelled")

// Config tunes the loop.
type Config struct {
	MaxRounds      int
	RequestTimeout time.Duration
	MaxTokens      int
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// Orchestrator runs chat requests against a provider and the executor.
type Orchestrator struct {
	registry *registry.Registry
	executor *executor.Executor
	cfg      Config
	msgs     statusText
	logger   *slog.Logger

	// pace returns the delay before round (1-based index of the round
	// about to start). Overridden in tests.
	pace func(round int) time.Duration
	// backoff returns the wait after a 429, given the retry attempt
	// and the backend's Retry-After hint.
	backoff func(attempt int, hint time.Duration) time.Duration
}

func New(reg *registry.Registry, exec *executor.Executor, cfg Config, lang string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: reg,
		executor: exec,
		cfg:      cfg.withDefaults(),
		msgs:     statusFor(lang),
		logger:   logger.With("component", "orchestrator"),
		pace:     defaultPace,
		backoff:  defaultBackoff,
	}
}

// defaultPace spaces rounds out so bursty tool loops do not hammer the
// provider: 3s after the first round, growing to a 6s ceiling.
func defaultPace(round int) time.Duration {
	secs := 2 + round
	if secs > 6 {
		secs = 6
	}
	return time.Duration(secs) * time.Second
}

func defaultBackoff(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	if attempt == 0 {
		return 5 * time.Second
	}
	return 15 * time.Second
}

// Session is the per-request state handed to Run.
type Session struct {
	ID string
	// Messages is the conversation history including the new user turn.
	Messages []llm.Message
	// Exec carries executor state (read-only flag, confirmation,
	// entity cache, drafts).
	Exec *executor.SessionContext
	// Abort is the per-session cancellation flag, owned by the API
	// layer. Checked between rounds and during sleeps.
	Abort *atomic.Bool
}

func (s *Session) aborted() bool {
	return s.Abort != nil && s.Abort.Load()
}

// Outcome is the result of one completed Run.
type Outcome struct {
	// Content is the final assistant text.
	Content string
	// Messages are the turns appended during this run (assistant and
	// tool messages, plus any injected nudges), for persistence.
	Messages []llm.Message
	Rounds   int
	Stopped  string
}

// Run executes the round loop for one request. Cancellation is not an
// error: it yields an Outcome with Stopped == StopCancelled. Provider
// failures come back as errors; use HumanizeError for user display.
func (o *Orchestrator) Run(ctx context.Context, provider llm.Provider, model string, sess *Session, dec intent.Decision, sink Sink) (*Outcome, error) {
	log := o.logger.With("session", sess.ID, "provider", provider.Name(), "intent", dec.Intent)

	msgs := append([]llm.Message(nil), sess.Messages...)
	start := len(msgs)

	tools := o.toolsFor(dec)
	maxRounds := o.cfg.MaxRounds
	if dec.MaxRounds > 0 && dec.MaxRounds < maxRounds {
		maxRounds = dec.MaxRounds
	}

	seen := map[string]string{}
	narrate := false
	content := ""
	stopped := StopMaxRounds
	rounds := 0

	for round := 0; round < maxRounds; round++ {
		if sess.aborted() {
			sink.emit(Event{Kind: EventStatus, Text: o.msgs.Cancelled})
			return &Outcome{Content: content, Messages: msgs[start:], Rounds: rounds, Stopped: StopCancelled}, nil
		}
		if round > 0 {
			if !o.sleepWithAbort(ctx, sess, o.pace(round)) {
				sink.emit(Event{Kind: EventStatus, Text: o.msgs.Cancelled})
				return &Outcome{Content: content, Messages: msgs[start:], Rounds: rounds, Stopped: StopCancelled}, nil
			}
		}

		if err := verifyPairing(msgs); err != nil {
			return nil, fmt.Errorf("refusing to send unbalanced conversation: %w", err)
		}

		req := llm.Request{
			Model:     model,
			System:    dec.Prompt,
			Messages:  msgs,
			Tools:     tools,
			MaxTokens: o.cfg.MaxTokens,
		}
		if narrate {
			req.Tools = nil
		}

		result, err := o.callWithBackoff(ctx, provider, req, sess, sink)
		if errors.Is(err, errCancelled) {
			sink.emit(Event{Kind: EventStatus, Text: o.msgs.Cancelled})
			return &Outcome{Content: content, Messages: msgs[start:], Rounds: rounds, Stopped: StopCancelled}, nil
		}
		if err != nil {
			return nil, err
		}
		rounds++

		calls := result.ToolCalls
		if narrate && len(calls) > 0 {
			// Tools were withheld this round; drop any stray calls the
			// model emitted anyway, or the persisted history would carry
			// tool calls with no paired results and wedge the session.
			log.Debug("dropping tool calls from narration round", "calls", len(calls))
			calls = nil
		}
		msgs = append(msgs, llm.Message{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: calls,
		})
		if result.Content != "" {
			content = result.Content
		}

		if len(calls) == 0 {
			stopped = StopComplete
			break
		}

		log.Debug("executing tool round", "round", round, "calls", len(calls))

		allRedundant := true
		writeSucceeded := false
		for _, call := range calls {
			def := o.registry.Get(call.Name)
			cacheable := def != nil && !def.Write
			key := canonicalKey(call)

			if cacheable {
				if cached, ok := seen[key]; ok {
					log.Debug("skipping duplicate tool call", "tool", call.Name)
					msgs = append(msgs, toolMessage(call, "Skipped: already called with the same arguments. Previous result:\n"+cached))
					continue
				}
			}
			allRedundant = false

			sink.emit(Event{Kind: EventTool, Tool: call.Name})
			sink.emit(Event{Kind: EventStatus, Text: fmt.Sprintf(o.msgs.ExecutingTool, call.Name)})

			res := o.executor.Execute(ctx, call, sess.Exec)
			msgs = append(msgs, toolMessage(call, res.Text))
			if cacheable {
				seen[key] = res.Text
			}

			if def != nil && def.AutoStop && res.Success && !continuesLoop(res) {
				writeSucceeded = true
			}
		}

		if writeSucceeded {
			// One narration round without tools, then stop.
			narrate = true
		}
		if allRedundant {
			msgs = append(msgs, llm.Message{Role: "user", Content: respondNowNudge})
		}
	}

	if stopped == StopMaxRounds {
		log.Warn("round cap reached", "rounds", rounds)
		sink.emit(Event{Kind: EventStatus, Text: o.msgs.MaxRounds})
	}
	return &Outcome{Content: content, Messages: msgs[start:], Rounds: rounds, Stopped: stopped}, nil
}

// continuesLoop reports whether a successful write result must not
// trigger auto-stop: chunked drafts are mid-flight, and a dashboard
// saved with zero views needs another attempt.
func continuesLoop(res executor.Result) bool {
	if res.Status == "draft_started" || res.Status == "draft_appended" {
		return true
	}
	return res.ViewsCount == 0
}

// toolsFor resolves the decision's tool subset: nil means the full
// catalog, an empty set means plain chat with no tools.
func (o *Orchestrator) toolsFor(dec intent.Decision) []map[string]any {
	if dec.Tools == nil {
		return registry.Schemas(o.registry.List())
	}
	if len(dec.Tools) == 0 {
		return nil
	}
	return registry.Schemas(o.registry.Subset(dec.Tools))
}

// callWithBackoff invokes the provider, retrying the same round after
// rate limits with bounded waits. Each 429 emits exactly one status
// event; partial text already streamed is cleared before the retry.
func (o *Orchestrator) callWithBackoff(ctx context.Context, provider llm.Provider, req llm.Request, sess *Session, sink Sink) (*llm.Result, error) {
	var streamed bool
	cb := func(ev llm.StreamEvent) {
		if sess.aborted() {
			return // stop forwarding deltas, let the call finish
		}
		switch ev.Kind {
		case llm.KindText:
			streamed = true
			sink.emit(Event{Kind: EventText, Text: ev.Text})
		case llm.KindStatus:
			sink.emit(Event{Kind: EventStatus, Text: ev.Text})
		}
	}

	for attempt := 0; ; attempt++ {
		streamed = false
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		result, err := provider.StreamCompletion(callCtx, req, cb)
		cancel()
		if err == nil {
			return result, nil
		}

		var rle *llm.RateLimitError
		if !errors.As(err, &rle) || attempt >= maxRateLimitRetries {
			return nil, err
		}

		if streamed {
			sink.emit(Event{Kind: EventClear})
		}
		wait := o.backoff(attempt, rle.RetryAfter)
		o.logger.Warn("rate limited, backing off", "provider", provider.Name(), "attempt", attempt+1, "wait", wait)
		sink.emit(Event{Kind: EventStatus, Text: fmt.Sprintf(o.msgs.RateLimited, int(wait.Seconds()))})
		if !o.sleepWithAbort(ctx, sess, wait) {
			return nil, errCancelled
		}
	}
}

// sleepWithAbort waits for d, returning false if the context or the
// session's abort flag fired first.
func (o *Orchestrator) sleepWithAbort(ctx context.Context, sess *Session, d time.Duration) bool {
	if d <= 0 {
		return !sess.aborted()
	}
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sess.aborted() {
			return false
		}
		if !time.Now().Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// verifyPairing checks that every assistant tool call has a matching
// tool-result message before the conversation is sent to a provider.
// An unbalanced conversation is a programmer error in the loop, and
// most backends reject it with an opaque 400.
func verifyPairing(msgs []llm.Message) error {
	for i, m := range msgs {
		if m.Role != "assistant" || len(m.ToolCalls) == 0 {
			continue
		}
		results := map[string]bool{}
		count := 0
		for j := i + 1; j < len(msgs) && msgs[j].Role == "tool"; j++ {
			results[msgs[j].ToolCallID] = true
			count++
		}
		if count < len(m.ToolCalls) {
			return fmt.Errorf("assistant message %d has %d tool calls but %d results", i, len(m.ToolCalls), count)
		}
		for _, call := range m.ToolCalls {
			if call.ID != "" && !results[call.ID] {
				return fmt.Errorf("tool call %s (%s) has no result message", call.ID, call.Name)
			}
		}
	}
	return nil
}

func toolMessage(call llm.ToolCall, text string) llm.Message {
	return llm.Message{
		Role:       "tool",
		Content:    text,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// canonicalKey identifies a tool call by name and arguments.
// encoding/json sorts map keys, so equal argument sets canonicalize to
// the same string regardless of construction order.
func canonicalKey(call llm.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return call.Name
	}
	return call.Name + ":" + string(args)
}

// HumanizeError maps a provider failure to the localized message shown
// to the user. The raw error still goes to the log.
func (o *Orchestrator) HumanizeError(err error) string {
	var fatal *llm.FatalError
	if errors.As(err, &fatal) {
		switch {
		case fatal.Status == http.StatusUnauthorized || fatal.Status == http.StatusForbidden:
			return o.msgs.AuthFailed
		case fatal.Status == http.StatusBadRequest && mentionsBilling(fatal.Message):
			return o.msgs.BillingFailed
		}
		return o.msgs.RequestFailed
	}
	var transient *llm.TransientError
	var rle *llm.RateLimitError
	if errors.As(err, &transient) || errors.As(err, &rle) {
		return o.msgs.ProviderDown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return o.msgs.ProviderDown
	}
	return o.msgs.RequestFailed
}

func mentionsBilling(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"credit", "billing", "quota", "insufficient"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
