package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownTool is returned when a tool id is not in the contract table.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnknownProvider is returned for diagnostics on unregistered providers.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Registry resolves tool ids to provider contracts. The environment is
// injected as an explicit map at construction, never read from process state
// at call time: a tool whose app credentials are absent is simply not
// available, which is a deployment flag rather than an error.
type Registry struct {
	env        map[string]string
	byProvider map[string]Contract
	byTool     map[string]string // tool id -> provider id
}

// NewRegistry validates the contract table and builds the tool index.
// Construction fails when a contract has no tools or when two providers
// claim the same tool id.
func NewRegistry(env map[string]string, contracts []Contract) (*Registry, error) {
	r := &Registry{
		env:        env,
		byProvider: make(map[string]Contract, len(contracts)),
		byTool:     make(map[string]string),
	}
	if r.env == nil {
		r.env = map[string]string{}
	}

	for _, c := range contracts {
		if c.ProviderID == "" {
			return nil, fmt.Errorf("contract with empty provider id")
		}
		if _, dup := r.byProvider[c.ProviderID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", c.ProviderID)
		}
		if len(c.ToolIDs) == 0 {
			return nil, fmt.Errorf("provider %q serves no tools", c.ProviderID)
		}
		if c.AuthorizeURL == "" || c.TokenURL == "" {
			return nil, fmt.Errorf("provider %q missing endpoint URLs", c.ProviderID)
		}
		if c.ClientIDEnvKey == "" || c.ClientSecretEnvKey == "" {
			return nil, fmt.Errorf("provider %q missing env key names", c.ProviderID)
		}
		for _, tool := range c.ToolIDs {
			if owner, taken := r.byTool[tool]; taken {
				return nil, fmt.Errorf("tool %q served by both %q and %q", tool, owner, c.ProviderID)
			}
			r.byTool[tool] = c.ProviderID
		}
		r.byProvider[c.ProviderID] = c
	}
	return r, nil
}

// Resolve returns the contract serving toolID.
func (r *Registry) Resolve(toolID string) (Contract, error) {
	pid, ok := r.byTool[strings.ToLower(strings.TrimSpace(toolID))]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %q", ErrUnknownTool, toolID)
	}
	return r.byProvider[pid], nil
}

// Credentials resolves a provider's app credentials from the env snapshot.
// The second return is false when the deployment has not configured them.
func (r *Registry) Credentials(providerID string) (Credentials, bool) {
	c, ok := r.byProvider[providerID]
	if !ok {
		return Credentials{}, false
	}
	creds := Credentials{
		ClientID:     strings.TrimSpace(r.env[c.ClientIDEnvKey]),
		ClientSecret: strings.TrimSpace(r.env[c.ClientSecretEnvKey]),
	}
	return creds, creds.Configured()
}

// Available reports whether toolID resolves and its provider is configured.
func (r *Registry) Available(toolID string) bool {
	c, err := r.Resolve(toolID)
	if err != nil {
		return false
	}
	_, ok := r.Credentials(c.ProviderID)
	return ok
}

// ListAvailable returns the sorted tool ids whose provider credentials are
// present and non-empty in the environment snapshot.
func (r *Registry) ListAvailable() []string {
	var out []string
	for tool, pid := range r.byTool {
		if _, ok := r.Credentials(pid); ok {
			out = append(out, tool)
		}
	}
	sort.Strings(out)
	return out
}

// Tools returns every registered tool id, configured or not, sorted.
func (r *Registry) Tools() []string {
	out := make([]string, 0, len(r.byTool))
	for tool := range r.byTool {
		out = append(out, tool)
	}
	sort.Strings(out)
	return out
}

// RequiredEnvKeys lists the env keys a provider needs, for validation tooling.
func (r *Registry) RequiredEnvKeys(providerID string) ([]string, error) {
	c, ok := r.byProvider[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	return []string{c.ClientIDEnvKey, c.ClientSecretEnvKey}, nil
}
