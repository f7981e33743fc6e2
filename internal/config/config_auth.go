package config

import "time"

// AuthConfig controls signing of approval-request tokens handed to external
// approvers by the tool-invocation approval sub-protocol.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}
