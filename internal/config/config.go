// Package config loads and validates the daemon's configuration surface
// from spec section 6: baseDir, historyDir, ashigaruCount, provider,
// per-role model overrides, provider-specific settings, per-ashigaru
// profiles, and the HTTP server port.
package config

import "fmt"

// ModelsConfig is the per-role model override table, spec section 6
// `models: {default, shogun?, karou?, ashigaru?}`.
type ModelsConfig struct {
	Default  string `yaml:"default"`
	Shogun   string `yaml:"shogun,omitempty"`
	Karou    string `yaml:"karou,omitempty"`
	Ashigaru string `yaml:"ashigaru,omitempty"`
}

// ForRole resolves the model for a given agent role, falling back to
// Default when no role-specific override is set.
func (m ModelsConfig) ForRole(role string) string {
	switch role {
	case "shogun":
		if m.Shogun != "" {
			return m.Shogun
		}
	case "karou":
		if m.Karou != "" {
			return m.Karou
		}
	case "ashigaru":
		if m.Ashigaru != "" {
			return m.Ashigaru
		}
	}
	return m.Default
}

// ProviderSpecificConfig is opaque provider configuration passed through
// to the Provider implementation, spec section 6
// `providerSpecific: {config, env, reasoningEffort, additionalDirectories}`.
type ProviderSpecificConfig struct {
	Config                 map[string]any    `yaml:"config,omitempty"`
	Env                    map[string]string `yaml:"env,omitempty"`
	ReasoningEffort        string            `yaml:"reasoningEffort,omitempty"`
	AdditionalDirectories  []string          `yaml:"additionalDirectories,omitempty"`
}

// AgentProfile is one entry of `ashigaruProfiles`, spec section 6.
type AgentProfile struct {
	AgentID     string `yaml:"agentId"`
	DisplayName string `yaml:"displayName,omitempty"`
	Focus       string `yaml:"focus,omitempty"`
}

// ServerConfig groups the HTTP/WS surface's own settings, spec section 6
// `server: {port}`.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config is the fully loaded, validated, ready-to-use configuration.
// Construct it with Load, never directly.
type Config struct {
	configDir string

	BaseDir          string                 `yaml:"baseDir"`
	HistoryDir       string                 `yaml:"historyDir"`
	AshigaruCount    int                    `yaml:"ashigaruCount"`
	Provider         string                 `yaml:"provider"`
	Models           ModelsConfig           `yaml:"models"`
	ProviderSpecific ProviderSpecificConfig `yaml:"providerSpecific"`
	AshigaruProfiles []AgentProfile         `yaml:"ashigaruProfiles,omitempty"`
	Server           ServerConfig           `yaml:"server"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats is a small summary used for startup logging, modeled on the
// teacher's Config.Stats() convenience method.
type Stats struct {
	AshigaruCount int
	Provider      string
	ServerPort    int
	Profiles      int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{
		AshigaruCount: c.AshigaruCount,
		Provider:      c.Provider,
		ServerPort:    c.Server.Port,
		Profiles:      len(c.AshigaruProfiles),
	}
}

// AshigaruIDs returns the synthetic agent ids ashigaru1..ashigaruN for the
// configured count.
func (c *Config) AshigaruIDs() []string {
	ids := make([]string, c.AshigaruCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("ashigaru%d", i+1)
	}
	return ids
}
