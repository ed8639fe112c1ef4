// Package secrets wraps a HashiCorp Vault client for resolving the
// event-store and cache credentials at startup, carried over verbatim in
// spirit from go-core/config/vault.go (the teacher's SecretManager).
package secrets

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Manager wraps the Vault API client for reading secrets.
type Manager struct {
	client *api.Client
}

// NewManager creates a Vault client pointed at address, authenticated with
// token. Both are themselves ordinary config values (spec.md §6 does not
// place secret *resolution* out of scope, only the logging/metrics/config
// plumbing around it).
func NewManager(address, token string) (*Manager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: vault client init: %w", err)
	}
	client.SetToken(token)

	return &Manager{client: client}, nil
}

// GetSecret reads the raw data map at path.
func (m *Manager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := m.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets: no data at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 reads from a KV v2 backend and unwraps the inner "data" envelope.
func (m *Manager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := m.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("secrets: unexpected data format at %s", path)
	}
	return data, nil
}

// ResolveString reads field from the KV2 secret at path and returns it as a
// string, used by config.Load to substitute ${vault:path#field} references.
func (m *Manager) ResolveString(path, field string) (string, error) {
	data, err := m.GetKV2(path)
	if err != nil {
		return "", err
	}
	v, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("secrets: field %q at %s is not a string", field, path)
	}
	return v, nil
}
