package toolparse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// Extractor adapts Parser and the provider dialect envelopes to
// agent.ToolCallExtractor: one LLM turn's raw text in, the text with every
// tool call stripped out and a slice of agent.ToolInvocation out.
type Extractor struct {
	parser *Parser
}

// NewExtractor builds an Extractor over the given text-markup formats,
// defaulting to Parser's own default order when none are given. Dialect
// envelopes are always attempted regardless of formats, since they arrive
// as a single JSON object rather than inline markup.
func NewExtractor(formats ...Format) *Extractor {
	return &Extractor{parser: NewParser(formats...)}
}

// Extract implements agent.ToolCallExtractor. It first tries the
// structured provider-dialect envelopes against every top-level JSON
// object found in text, then falls back to the markup-based Parser for
// whatever remains. When nothing in the text resolves to a tool call, it
// returns the original text unchanged and a nil slice: a turn with no
// tool calls is the common case, not an error.
func (e *Extractor) Extract(turnID, text string) (string, []*agent.ToolInvocation, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	var raw []ToolCall
	remaining := text

	for _, span := range findJSONObjects(text) {
		calls := parseDialect(span)
		if len(calls) == 0 {
			continue
		}
		raw = append(raw, calls...)
		remaining = strings.Replace(remaining, span, "", 1)
	}

	markupCalls, afterMarkup := e.parser.Parse(remaining)
	raw = append(raw, markupCalls...)
	remaining = afterMarkup

	if len(raw) == 0 {
		return text, nil, nil
	}

	invocations := make([]*agent.ToolInvocation, 0, len(raw))
	for _, call := range raw {
		args, err := paramsToMap(call.Params)
		if err != nil {
			return "", nil, fmt.Errorf("toolparse: tool %q: %w", call.Name, err)
		}
		invocations = append(invocations, &agent.ToolInvocation{
			ID:          call.ID,
			TurnID:      turnID,
			ToolName:    call.Name,
			ToolArgs:    args,
			RawArgs:     call.Params,
			RequestedAt: time.Now(),
		})
	}

	return strings.TrimSpace(remaining), invocations, nil
}

func paramsToMap(params json.RawMessage) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(params, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
