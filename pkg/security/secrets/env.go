package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. The prefix is prepended to
// every variable name.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Kind returns "env".
func (p *EnvProvider) Kind() string { return "env" }

// Lookup reads the variable derived from name. Empty variables count as
// missing.
func (p *EnvProvider) Lookup(_ context.Context, name string) (string, error) {
	key := p.VarName(name)
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, key)
}

// VarName returns the variable consulted for name: the prefix followed by
// the upper-cased name with '-' and '.' replaced by '_'.
func (p *EnvProvider) VarName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
