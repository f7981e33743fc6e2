package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/agentrt/internal/agent"
	"github.com/haasonsaas/agentrt/internal/team"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error

	agentSchemaOnce sync.Once
	agentSchemaJSON []byte
	agentSchemaErr  error

	teamSchemaOnce sync.Once
	teamSchemaJSON []byte
	teamSchemaErr  error
)

// JSONSchema returns the JSON Schema for the Config struct.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag: "yaml",
		}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

// AgentConfigJSONSchema returns the JSON Schema for agent.AgentConfig,
// used by `agentctl validate` to check a manifest before bootstrap.
func AgentConfigJSONSchema() ([]byte, error) {
	agentSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schema := r.Reflect(&agent.AgentConfig{})
		agentSchemaJSON, agentSchemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return agentSchemaJSON, agentSchemaErr
}

// TeamConfigJSONSchema returns the JSON Schema for team.TeamConfig.
func TeamConfigJSONSchema() ([]byte, error) {
	teamSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schema := r.Reflect(&team.TeamConfig{})
		teamSchemaJSON, teamSchemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return teamSchemaJSON, teamSchemaErr
}
