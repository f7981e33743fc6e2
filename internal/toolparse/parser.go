// Package toolparse extracts tool invocations from LLM turn output, in
// whatever shape the configured provider happens to emit them: inline XML
// tags, a bare JSON object, Anthropic's nested function_calls/invoke/
// parameter blocks, or a structured tool_calls/function_call/tool_use
// envelope serialized to text by the LLM client.
package toolparse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Format names one tag/markup strategy Parser knows how to scan for.
type Format string

const (
	// FormatXML parses <tool_call><name>...</name><params>{...}</params></tool_call>.
	FormatXML Format = "xml"

	// FormatJSON parses a bare {"tool": "...", "params": {...}} object.
	FormatJSON Format = "json"

	// FormatAnthropicXML parses <function_calls><invoke name="...">
	// <parameter name="...">...</parameter></invoke></function_calls>.
	FormatAnthropicXML Format = "anthropic_xml"
)

// ErrNoToolCalls indicates a format found nothing to extract; callers
// iterating formats treat this as "try the next one", not a hard failure.
var ErrNoToolCalls = errors.New("toolparse: no tool calls found")

// ToolCall is one parsed invocation, still in wire shape: Params hasn't
// been decoded into a map yet and ID may be synthesized rather than
// supplied by the model.
type ToolCall struct {
	ID     string
	Name   string
	Params json.RawMessage
	Raw    string
}

// Parser scans text for tool calls, trying each configured Format in turn
// and accumulating every match across all of them.
type Parser struct {
	formats []Format
}

// NewParser builds a Parser over the given formats, defaulting to all
// three text-markup strategies in the order most specific first.
func NewParser(formats ...Format) *Parser {
	if len(formats) == 0 {
		formats = []Format{FormatAnthropicXML, FormatXML, FormatJSON}
	}
	return &Parser{formats: formats}
}

// Parse extracts every tool call it can find across the parser's
// configured formats and returns the text with those calls stripped out.
func (p *Parser) Parse(text string) ([]ToolCall, string) {
	if text == "" {
		return nil, ""
	}

	var all []ToolCall
	remaining := text

	for _, format := range p.formats {
		var calls []ToolCall
		var next string
		var err error

		switch format {
		case FormatXML:
			calls, next, err = parseXML(remaining)
		case FormatJSON:
			calls, next, err = parseJSON(remaining)
		case FormatAnthropicXML:
			calls, next, err = parseAnthropicXML(remaining)
		}

		if err == nil && len(calls) > 0 {
			all = append(all, calls...)
			remaining = next
		}
	}

	return all, strings.TrimSpace(remaining)
}

var xmlToolCallRegex = regexp.MustCompile(`(?s)<tool_call>\s*<name>\s*([^<]+)\s*</name>\s*<params>\s*(.*?)\s*</params>\s*</tool_call>`)

func parseXML(text string) ([]ToolCall, string, error) {
	matches := xmlToolCallRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text, ErrNoToolCalls
	}

	var calls []ToolCall
	remaining := text

	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		fullStart, fullEnd := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		paramsStart, paramsEnd := m[4], m[5]

		name := strings.TrimSpace(text[nameStart:nameEnd])
		paramsStr := strings.TrimSpace(text[paramsStart:paramsEnd])

		params := json.RawMessage("{}")
		if paramsStr != "" {
			if json.Valid([]byte(paramsStr)) {
				params = json.RawMessage(paramsStr)
			} else {
				continue
			}
		}

		calls = append([]ToolCall{{
			ID:     uuid.NewString(),
			Name:   name,
			Params: params,
			Raw:    text[fullStart:fullEnd],
		}}, calls...)

		remaining = remaining[:fullStart] + remaining[fullEnd:]
	}

	return calls, remaining, nil
}

// jsonToolCallRegex handles a single level of nesting in params; a model
// emitting deeper nesting should use the XML or Anthropic format instead.
var jsonToolCallRegex = regexp.MustCompile(`\{[^{}]*"tool"\s*:\s*"([^"]+)"[^{}]*"params"\s*:\s*(\{[^{}]*\})[^{}]*\}`)

func parseJSON(text string) ([]ToolCall, string, error) {
	matches := jsonToolCallRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, text, ErrNoToolCalls
	}

	var calls []ToolCall
	remaining := text

	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		fullStart, fullEnd := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		paramsStart, paramsEnd := m[4], m[5]

		name := text[nameStart:nameEnd]
		paramsStr := text[paramsStart:paramsEnd]

		params := json.RawMessage("{}")
		if json.Valid([]byte(paramsStr)) {
			params = json.RawMessage(paramsStr)
		}

		calls = append([]ToolCall{{
			ID:     uuid.NewString(),
			Name:   name,
			Params: params,
			Raw:    text[fullStart:fullEnd],
		}}, calls...)

		remaining = remaining[:fullStart] + remaining[fullEnd:]
	}

	return calls, remaining, nil
}

var (
	anthropicFunctionCallsRegex = regexp.MustCompile(`(?s)<(?:antml:)?function_calls>\s*(.*?)\s*</(?:antml:)?function_calls>`)
	anthropicInvokeRegex        = regexp.MustCompile(`(?s)<(?:antml:)?invoke\s+name="([^"]+)">\s*(.*?)\s*</(?:antml:)?invoke>`)
	anthropicParamRegex         = regexp.MustCompile(`(?s)<(?:antml:)?parameter\s+name="([^"]+)">\s*(.*?)\s*</(?:antml:)?parameter>`)
)

func parseAnthropicXML(text string) ([]ToolCall, string, error) {
	blocks := anthropicFunctionCallsRegex.FindAllStringSubmatchIndex(text, -1)
	if len(blocks) == 0 {
		return nil, text, ErrNoToolCalls
	}

	var calls []ToolCall
	remaining := text

	for i := len(blocks) - 1; i >= 0; i-- {
		block := blocks[i]
		blockStart, blockEnd := block[0], block[1]
		innerStart, innerEnd := block[2], block[3]
		inner := text[innerStart:innerEnd]

		for _, invoke := range anthropicInvokeRegex.FindAllStringSubmatch(inner, -1) {
			name := invoke[1]
			body := invoke[2]

			params := make(map[string]any)
			for _, param := range anthropicParamRegex.FindAllStringSubmatch(body, -1) {
				paramName := param[1]
				paramValue := strings.TrimSpace(param[2])

				var value any
				if err := json.Unmarshal([]byte(paramValue), &value); err != nil {
					value = paramValue
				}
				params[paramName] = value
			}

			paramsJSON, _ := json.Marshal(params)
			calls = append(calls, ToolCall{
				ID:     uuid.NewString(),
				Name:   name,
				Params: paramsJSON,
				Raw:    text[blockStart:blockEnd],
			})
		}

		remaining = remaining[:blockStart] + remaining[blockEnd:]
	}

	return calls, remaining, nil
}
