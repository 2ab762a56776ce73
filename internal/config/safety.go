package config

import "fmt"

// SafetyConfig is the policy surface of the safety gate: which paths a
// proposal may never touch, and how much change volume it may generate.
type SafetyConfig struct {
	// ForbiddenPrefixes are path prefixes that are always denied.
	ForbiddenPrefixes []string `yaml:"forbidden_prefixes"`

	// PrincipalOnlyPaths are exact paths reserved for the privileged
	// principal; holly's own proposals may never touch them.
	PrincipalOnlyPaths []string `yaml:"principal_only_paths"`

	// Rate limits
	MaxProposalsPerHour int `yaml:"max_proposals_per_hour"`
	MaxFilesPerProposal int `yaml:"max_files_per_proposal"`
	MaxBytesPerProposal int `yaml:"max_bytes_per_proposal"`

	// CooldownSeconds is the per-path re-proposal cooldown.
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// DefaultSafetyConfig returns the stock policy.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		ForbiddenPrefixes: []string{
			"src/security/",
			"src/core/safety",
			".github/workflows/deploy",
			"deploy/secrets",
			".env",
		},
		PrincipalOnlyPaths: []string{
			"src/core/identity.py",
			"src/core/principles.py",
			"config/permissions.yaml",
		},
		MaxProposalsPerHour: 5,
		MaxFilesPerProposal: 20,
		MaxBytesPerProposal: 50 * 1024,
		CooldownSeconds:     600,
	}
}

// Validate checks the safety limits are sane.
func (s SafetyConfig) Validate() error {
	if s.MaxProposalsPerHour < 1 {
		return fmt.Errorf("max_proposals_per_hour must be >= 1")
	}
	if s.MaxFilesPerProposal < 1 {
		return fmt.Errorf("max_files_per_proposal must be >= 1")
	}
	if s.MaxBytesPerProposal < 1024 {
		return fmt.Errorf("max_bytes_per_proposal must be >= 1024")
	}
	if s.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must be >= 0")
	}
	return nil
}
