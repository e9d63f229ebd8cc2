package config

import "fmt"

// Validator validates a loaded Config comprehensively, failing fast on the
// first problem with a clear, field-scoped error message.
type Validator struct {
	cfg *Config
}

// NewValidator constructs a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check in order: identity/paths, fleet sizing,
// provider, profiles, server.
func (v *Validator) ValidateAll() error {
	if err := v.validatePaths(); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if err := v.validateFleet(); err != nil {
		return fmt.Errorf("fleet validation failed: %w", err)
	}
	if err := v.validateProvider(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}
	if err := v.validateProfiles(); err != nil {
		return fmt.Errorf("ashigaru profile validation failed: %w", err)
	}
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validatePaths() error {
	if v.cfg.BaseDir == "" {
		return NewValidationError("baseDir", fmt.Errorf("must not be empty"))
	}
	if v.cfg.HistoryDir == "" {
		return NewValidationError("historyDir", fmt.Errorf("must not be empty"))
	}
	return nil
}

func (v *Validator) validateFleet() error {
	if v.cfg.AshigaruCount < 1 || v.cfg.AshigaruCount > 50 {
		return NewValidationError("ashigaruCount", fmt.Errorf("must be between 1 and 50, got %d", v.cfg.AshigaruCount))
	}
	return nil
}

func (v *Validator) validateProvider() error {
	if v.cfg.Provider == "" {
		return NewValidationError("provider", fmt.Errorf("must not be empty"))
	}
	if v.cfg.Models.Default == "" {
		return NewValidationError("models.default", fmt.Errorf("must not be empty"))
	}
	return nil
}

func (v *Validator) validateProfiles() error {
	seen := make(map[string]bool, len(v.cfg.AshigaruProfiles))
	ashigaruIDs := make(map[string]bool, v.cfg.AshigaruCount)
	for _, id := range v.cfg.AshigaruIDs() {
		ashigaruIDs[id] = true
	}
	for _, p := range v.cfg.AshigaruProfiles {
		if p.AgentID == "" {
			return NewValidationError("ashigaruProfiles[].agentId", fmt.Errorf("must not be empty"))
		}
		if seen[p.AgentID] {
			return NewValidationError("ashigaruProfiles[].agentId", fmt.Errorf("duplicate entry %q", p.AgentID))
		}
		seen[p.AgentID] = true
		if !ashigaruIDs[p.AgentID] {
			return NewValidationError("ashigaruProfiles[].agentId", fmt.Errorf("%q is not one of the %d configured ashigaru", p.AgentID, v.cfg.AshigaruCount))
		}
	}
	return nil
}

func (v *Validator) validateServer() error {
	if v.cfg.Server.Port < 1 || v.cfg.Server.Port > 65535 {
		return NewValidationError("server.port", fmt.Errorf("must be a valid TCP port, got %d", v.cfg.Server.Port))
	}
	return nil
}
