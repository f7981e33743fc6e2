// Package llm provides the one built-in agent.LLMClient this runtime ships
// with: an interactive terminal backend. Every real provider SDK the
// teacher wires (Anthropic, OpenAI) is deliberately left unwired here —
// see DESIGN.md — so this package exists to let `agentctl run` drive a
// bootstrapped agent end to end without depending on one.
package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// StdIOClient implements agent.LLMClient by printing the conversation
// history to Out and reading the "assistant" turn back from In, line by
// line until a blank line. It has no notion of streaming; the dispatcher
// only ever sees the complete text once In yields it.
type StdIOClient struct {
	In  *bufio.Reader
	Out io.Writer
}

// NewStdIOClient wires a client reading from in and writing prompts to
// out.
func NewStdIOClient(in io.Reader, out io.Writer) *StdIOClient {
	return &StdIOClient{In: bufio.NewReader(in), Out: out}
}

// Complete renders history and blocks for operator input, matching
// agent.LLMClient's narrow Complete(ctx, turnID, history) surface.
func (c *StdIOClient) Complete(ctx context.Context, turnID string, history []agent.ConversationMessage) (string, error) {
	fmt.Fprintf(c.Out, "\n--- turn %s ---\n", turnID)
	for _, msg := range history {
		fmt.Fprintf(c.Out, "[%s] %s\n", msg.Role, msg.Content)
	}
	fmt.Fprint(c.Out, "assistant (end with a blank line)> ")

	var lines []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		line, err := c.In.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("read operator input: %w", err)
		}
		if trimmed == "" && len(lines) > 0 {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Factory builds an agent.LLMFactory that always returns the same
// StdIOClient, ignoring cfg/finalLLMConfig — every node in a team shares
// one operator terminal.
func Factory(client *StdIOClient) agent.LLMFactory {
	return func(ctx context.Context, cfg *agent.AgentConfig, finalLLMConfig map[string]any) (agent.LLMClient, error) {
		return client, nil
	}
}
