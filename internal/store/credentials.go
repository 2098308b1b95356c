package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Credentials is whatever a poll transport needs to authenticate to a
// device: community string, username/password, SSH key, etc. Shape is
// deliberately loose since different methods need different fields.
type Credentials map[string]string

// CredentialResolver is the vault collaborator named in the scope
// boundary: the core never touches encryption, rotation, or certificate
// parsing, it only calls Resolve(ip, type).
type CredentialResolver interface {
	Resolve(ctx context.Context, ip, credType string) (Credentials, error)
}

// EnvCredentialResolver is the default resolver for local runs and
// tests: it reads ALERTD_CRED_<TYPE>_<FIELD> environment variables, and
// additionally allows registering per-IP overrides in memory (used by
// target.config credential overrides).
type EnvCredentialResolver struct {
	mu        sync.RWMutex
	overrides map[string]Credentials // key: ip+":"+credType
}

// NewEnvCredentialResolver constructs an empty resolver.
func NewEnvCredentialResolver() *EnvCredentialResolver {
	return &EnvCredentialResolver{overrides: map[string]Credentials{}}
}

// SetOverride registers per-target credentials, taking precedence over
// environment defaults.
func (e *EnvCredentialResolver) SetOverride(ip, credType string, creds Credentials) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[ip+":"+credType] = creds
}

// Resolve returns credentials for (ip, credType): an override if
// registered, else environment-variable defaults for that type.
func (e *EnvCredentialResolver) Resolve(ctx context.Context, ip, credType string) (Credentials, error) {
	e.mu.RLock()
	if c, ok := e.overrides[ip+":"+credType]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	prefix := "ALERTD_CRED_" + strings.ToUpper(credType) + "_"
	creds := Credentials{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		creds[field] = parts[1]
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("credentials: no %s credentials configured for %s", credType, ip)
	}
	return creds, nil
}
