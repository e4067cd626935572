// Package secrets supplies signing key material from external sources.
// The key is opaque to the rest of the system and never persisted in
// the chain.
package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves secrets from process environment variables.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}
