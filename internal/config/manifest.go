package config

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/team"
)

// LoadAgentConfig reads a single-agent manifest, resolving $include
// directives and JSON5 comments the same way Load does for the
// process-wide Config.
func LoadAgentConfig(path string) (*agent.AgentConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return decodeRawAgentConfig(raw)
}

// LoadTeamConfig reads a team manifest the same way.
func LoadTeamConfig(path string) (*team.TeamConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawTeamConfig(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := cfg.NodeByID(cfg.CoordinatorNodeID); !ok {
		return nil, fmt.Errorf("coordinator_node_id %q not found among team nodes", cfg.CoordinatorNodeID)
	}
	return cfg, nil
}

func decodeRawAgentConfig(raw map[string]any) (*agent.AgentConfig, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize agent config: %w", err)
	}
	var cfg agent.AgentConfig
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse agent config: expected single document")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("agent config missing required field: id")
	}
	return &cfg, nil
}

func decodeRawTeamConfig(raw map[string]any) (*team.TeamConfig, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize team config: %w", err)
	}
	var cfg team.TeamConfig
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse team config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse team config: expected single document")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("team config missing required field: id")
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("team config has no nodes")
	}
	return &cfg, nil
}
