package toolparse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_XML(t *testing.T) {
	p := NewParser(FormatXML)
	text := `Let me check that file.
<tool_call><name>read_file</name><params>{"path":"main.go"}</params></tool_call>
Done.`

	calls, remaining := p.Parse(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.JSONEq(t, `{"path":"main.go"}`, string(calls[0].Params))
	assert.NotEmpty(t, calls[0].ID)
	assert.Equal(t, "Let me check that file.\n\nDone.", remaining)
}

func TestParser_JSON(t *testing.T) {
	p := NewParser(FormatJSON)
	text := `{"tool": "search", "params": {"query": "golang"}}`

	calls, remaining := p.Parse(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.JSONEq(t, `{"query":"golang"}`, string(calls[0].Params))
	assert.Empty(t, remaining)
}

func TestParser_AnthropicXML(t *testing.T) {
	p := NewParser(FormatAnthropicXML)
	text := `<function_calls>
<invoke name="read_file">
<parameter name="path">main.go</parameter>
<parameter name="limit">10</parameter>
</invoke>
</function_calls>`

	calls, remaining := p.Parse(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)

	var params map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Params, &params))
	assert.Equal(t, "main.go", params["path"])
	assert.Equal(t, float64(10), params["limit"])
	assert.Empty(t, remaining)
}

func TestParser_MultipleInvokesInOneBlock(t *testing.T) {
	p := NewParser(FormatAnthropicXML)
	text := `<function_calls>
<invoke name="read_file"><parameter name="path">a.go</parameter></invoke>
<invoke name="read_file"><parameter name="path">b.go</parameter></invoke>
</function_calls>`

	calls, _ := p.Parse(text)
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestParser_NoToolCalls(t *testing.T) {
	p := NewParser()
	calls, remaining := p.Parse("just a plain answer, nothing to extract")
	assert.Empty(t, calls)
	assert.Equal(t, "just a plain answer, nothing to extract", remaining)
}

func TestParser_EmptyText(t *testing.T) {
	p := NewParser()
	calls, remaining := p.Parse("")
	assert.Nil(t, calls)
	assert.Empty(t, remaining)
}
