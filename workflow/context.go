package workflow

import "github.com/weftflow/weft/types"

// ProviderConn is the per-provider connection configuration a run supplies.
type ProviderConn struct {
	// BaseURL overrides the adapter's default endpoint when set.
	BaseURL string `yaml:"base_url" json:"baseUrl,omitempty"`
	// APIKey is the bearer credential passed to the adapter.
	APIKey string `yaml:"-" json:"-"`
}

// RunContext carries the per-run environment. It is read-only during a run.
type RunContext struct {
	// Inputs are the top-level template variables.
	Inputs map[string]string
	// Providers maps provider ids to connection configuration. Providers
	// absent from the map use the adapter's defaults.
	Providers map[string]ProviderConn
	// Secrets holds resolved values for the names the definition declares.
	// Secrets feed provider credentials and are never template-visible.
	Secrets map[string]string
}

// validateSecrets checks that every declared secret has a value.
func (rc *RunContext) validateSecrets(declared []string) error {
	for _, name := range declared {
		if rc == nil || rc.Secrets[name] == "" {
			return types.Errorf(types.ErrMissingSecret, "secret %q declared but not supplied", name)
		}
	}
	return nil
}

// conn returns the connection configuration for a provider, falling back to
// the zero value.
func (rc *RunContext) conn(provider string) ProviderConn {
	if rc == nil {
		return ProviderConn{}
	}
	return rc.Providers[provider]
}

// inputs returns the input map, never nil.
func (rc *RunContext) inputs() map[string]string {
	if rc == nil || rc.Inputs == nil {
		return map[string]string{}
	}
	return rc.Inputs
}
