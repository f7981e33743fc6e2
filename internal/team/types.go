// Package team implements spec.md §4.10: the team runtime that mirrors the
// single-agent runtime one level of aggregation up, wiring a set of
// internal/agent.AgentComponents together under a shared manifest and task
// board.
package team

import (
	"time"

	"github.com/haasonsaas/agentrt/internal/agent"
)

// TaskNotificationMode selects how the team's task board informs agent
// nodes that work has been assigned to them.
type TaskNotificationMode string

const (
	// SystemEventDriven runs a TaskNotifier that polls the task board on a
	// cadence and posts assignment notifications as inter-agent messages.
	SystemEventDriven TaskNotificationMode = "SYSTEM_EVENT_DRIVEN"

	// AgentManualNotification means no TaskNotifier runs; the coordinator
	// node is expected to assign work itself via an explicit tool.
	AgentManualNotification TaskNotificationMode = "AGENT_MANUAL_NOTIFICATION"
)

// TeamNodeConfig is one agent's membership in a team: its own AgentConfig
// plus the dependency edges spec.md §4.10 supplements from
// internal/multiagent's AgentDefinition.DependsOn/CanTrigger.
type TeamNodeConfig struct {
	Agent *agent.AgentConfig `yaml:"agent" json:"agent"`

	// Dependencies lists node IDs that must reach IDLE before this node's
	// coordinator-assigned tasks may start (swarm-style ordering).
	Dependencies []string `yaml:"dependencies" json:"dependencies"`

	// CanTrigger lists node IDs this node may hand a task to directly,
	// independent of the coordinator.
	CanTrigger []string `yaml:"can_trigger" json:"can_trigger"`
}

// TeamConfig is a team manifest: a set of nodes, one designated as
// coordinator, and the notification strategy binding them together.
type TeamConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	Nodes []TeamNodeConfig `yaml:"nodes" json:"nodes"`

	// CoordinatorNodeID must name one of Nodes; it is bootstrapped first
	// and is the default recipient of ProcessUserMessage.
	CoordinatorNodeID string `yaml:"coordinator_node_id" json:"coordinator_node_id"`

	TaskNotificationMode TaskNotificationMode `yaml:"task_notification_mode" json:"task_notification_mode"`

	// TaskPollInterval is the TaskNotifier's cron cadence in
	// SYSTEM_EVENT_DRIVEN mode. Defaults to DefaultTaskPollInterval.
	TaskPollInterval time.Duration `yaml:"task_poll_interval" json:"task_poll_interval"`

	// SharedTeamContext is injected into every node's InitialCustomData
	// under the "team_context" key during bootstrap.
	SharedTeamContext map[string]any `yaml:"shared_team_context" json:"shared_team_context"`
}

// NodeByID returns the node config with the given ID, if present.
func (c *TeamConfig) NodeByID(id string) (*TeamNodeConfig, bool) {
	for i := range c.Nodes {
		if c.Nodes[i].Agent != nil && c.Nodes[i].Agent.ID == id {
			return &c.Nodes[i], true
		}
	}
	return nil, false
}

// DefaultTaskPollInterval is the TaskNotifier's default cron cadence when
// TeamConfig.TaskPollInterval is left at zero.
const DefaultTaskPollInterval = 10 * time.Second
