package team

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentrt/internal/agent"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, turnID string, history []agent.ConversationMessage) (string, error) {
	return "ok", nil
}

func stubLLMFactory(ctx context.Context, cfg *agent.AgentConfig, finalCfg map[string]any) (agent.LLMClient, error) {
	return stubLLM{}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(turnID, text string) (string, []*agent.ToolInvocation, error) {
	return text, nil, nil
}

func testTeamConfig() *TeamConfig {
	return &TeamConfig{
		ID:   "team-1",
		Name: "test team",
		Nodes: []TeamNodeConfig{
			{Agent: &agent.AgentConfig{ID: "coordinator", Name: "Coordinator", Model: "test-model", Description: "routes work"}},
			{Agent: &agent.AgentConfig{ID: "worker-a", Name: "Worker A", Model: "test-model", Description: "does work", SystemPrompt: "Team: {{team}}"}},
		},
		CoordinatorNodeID:    "coordinator",
		TaskNotificationMode: AgentManualNotification,
	}
}

func TestBootstrapper_Run(t *testing.T) {
	cfg := testTeamConfig()
	boot := NewBootstrapper(cfg, nil, stubLLMFactory, func() agent.ToolCallExtractor { return stubExtractor{} }, nil)

	require.NoError(t, boot.Run(context.Background()))
	require.Len(t, boot.Nodes, 2)
	require.Contains(t, boot.Nodes, "coordinator")
	require.Contains(t, boot.Nodes, "worker-a")
	require.Equal(t, StatusIdle, boot.Status.Status())

	worker, ok := cfg.NodeByID("worker-a")
	require.True(t, ok)
	require.Contains(t, worker.Agent.SystemPrompt, "coordinator: routes work")
}

func TestRuntime_ProcessUserMessageRoutesToCoordinator(t *testing.T) {
	cfg := testTeamConfig()
	boot := NewBootstrapper(cfg, nil, stubLLMFactory, func() agent.ToolCallExtractor { return stubExtractor{} }, nil)
	rt := NewRuntime(boot, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rt.Run(ctx)

	require.Eventually(t, func() bool {
		return len(boot.Nodes) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, rt.Enqueue(ctx, ProcessUserMessage{TeamID: cfg.ID, Content: "hello"}))
	require.True(t, rt.Stop(2*time.Second))
}
