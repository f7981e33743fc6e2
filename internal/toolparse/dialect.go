package toolparse

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Dialect names a provider's structured tool-call envelope, the shape an
// LLMClient implementation serializes its native response into before it
// ever reaches this package's text-oriented Parser.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectGemini    Dialect = "gemini"
	DialectAnthropic Dialect = "anthropic"
)

// openAIEnvelope mirrors tool_calls[].function from a Chat Completions
// response: arguments arrives as a JSON-encoded string, not a nested object.
type openAIEnvelope struct {
	ToolCalls []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// geminiEnvelope mirrors a candidate's function_call part(s): args arrives
// already decoded, since Gemini's wire format is native JSON throughout.
type geminiEnvelope struct {
	FunctionCalls []struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"function_calls"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"function_call"`
}

// anthropicEnvelope mirrors a message's content blocks: tool_use blocks
// are interleaved with plain text blocks in the same array.
type anthropicEnvelope struct {
	Content []struct {
		Type  string         `json:"type"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content"`
}

// parseDialect decodes one already-isolated JSON object as each known
// provider envelope in turn, returning the first that yields calls.
func parseDialect(raw string) []ToolCall {
	if calls := parseOpenAIEnvelope(raw); len(calls) > 0 {
		return calls
	}
	if calls := parseGeminiEnvelope(raw); len(calls) > 0 {
		return calls
	}
	if calls := parseAnthropicEnvelope(raw); len(calls) > 0 {
		return calls
	}
	return nil
}

func parseOpenAIEnvelope(raw string) []ToolCall {
	var env openAIEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || len(env.ToolCalls) == 0 {
		return nil
	}

	calls := make([]ToolCall, 0, len(env.ToolCalls))
	for _, tc := range env.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		params := json.RawMessage("{}")
		if tc.Function.Arguments != "" && json.Valid([]byte(tc.Function.Arguments)) {
			params = json.RawMessage(tc.Function.Arguments)
		}
		calls = append(calls, ToolCall{ID: id, Name: tc.Function.Name, Params: params, Raw: raw})
	}
	return calls
}

func parseGeminiEnvelope(raw string) []ToolCall {
	var env geminiEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}

	var calls []ToolCall
	if env.FunctionCall != nil && env.FunctionCall.Name != "" {
		calls = append(calls, geminiToolCall(env.FunctionCall.Name, env.FunctionCall.Args, raw))
	}
	for _, fc := range env.FunctionCalls {
		if fc.Name == "" {
			continue
		}
		calls = append(calls, geminiToolCall(fc.Name, fc.Args, raw))
	}
	return calls
}

func geminiToolCall(name string, args map[string]any, raw string) ToolCall {
	params, err := json.Marshal(args)
	if err != nil || params == nil {
		params = json.RawMessage("{}")
	}
	return ToolCall{ID: uuid.NewString(), Name: name, Params: params, Raw: raw}
}

func parseAnthropicEnvelope(raw string) []ToolCall {
	var env anthropicEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || len(env.Content) == 0 {
		return nil
	}

	var calls []ToolCall
	for _, block := range env.Content {
		if block.Type != "tool_use" || block.Name == "" {
			continue
		}
		params, err := json.Marshal(block.Input)
		if err != nil || params == nil {
			params = json.RawMessage("{}")
		}
		id := block.ID
		if id == "" {
			id = uuid.NewString()
		}
		calls = append(calls, ToolCall{ID: id, Name: block.Name, Params: params, Raw: raw})
	}
	return calls
}

// findJSONObjects scans text for top-level balanced {...} spans, tolerant
// of surrounding prose (a model explaining itself before or after dumping
// a structured tool-call envelope). Spans are returned outermost-first.
func findJSONObjects(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}

	return spans
}
