// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docket-foundation/docket/lib/schema"
)

// Config is the vault configuration, loaded from vault.yaml at the
// vault root.
type Config struct {
	// VaultID is the stable identifier stamped into every audit
	// envelope and bundle document.
	VaultID string `yaml:"vault_id"`

	// PolicyMode selects the enforcement posture.
	PolicyMode schema.PolicyMode `yaml:"policy_mode"`

	// NetworkMode defaults to OFFLINE. Transitioning to
	// ONLINE_ALLOWLISTED requires an explicit user acknowledgement
	// through the egress gate.
	NetworkMode schema.NetworkMode `yaml:"network_mode"`

	// ProofLevel defaults to OFFLINE_STRICT.
	ProofLevel schema.ProofLevel `yaml:"proof_level"`

	// Encryption configures at-rest protection.
	Encryption EncryptionConfig `yaml:"encryption"`

	// Determinism enables byte-stable exports and fingerprint-derived
	// run ids.
	Determinism DeterminismConfig `yaml:"determinism"`
}

// EncryptionConfig is the at-rest section of vault.yaml.
type EncryptionConfig struct {
	AtRest    bool                       `yaml:"at_rest"`
	Algorithm schema.EncryptionAlgorithm `yaml:"algorithm"`
}

// DeterminismConfig is the determinism section of vault.yaml.
type DeterminismConfig struct {
	Enabled               bool `yaml:"enabled"`
	PDFDeterminismEnabled bool `yaml:"pdf_determinism_enabled"`
}

// DefaultConfig returns the posture a new vault starts with:
// offline, strict proof, Strict policy, encryption on.
func DefaultConfig(vaultID string) Config {
	return Config{
		VaultID:     vaultID,
		PolicyMode:  schema.PolicyStrict,
		NetworkMode: schema.NetworkOffline,
		ProofLevel:  schema.ProofOfflineStrict,
		Encryption: EncryptionConfig{
			AtRest:    true,
			Algorithm: schema.AlgXChaCha20Poly1305,
		},
		Determinism: DeterminismConfig{Enabled: true},
	}
}

// LoadConfig reads and validates a vault.yaml.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("vault: reading config %s: %w", path, err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("vault: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("vault: config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enum fields against their closed sets.
func (c *Config) Validate() error {
	if c.VaultID == "" {
		return fmt.Errorf("vault_id is required")
	}
	if !c.PolicyMode.Valid() {
		return fmt.Errorf("unknown policy_mode %q", c.PolicyMode)
	}
	if !c.NetworkMode.Valid() {
		return fmt.Errorf("unknown network_mode %q", c.NetworkMode)
	}
	if !c.ProofLevel.Valid() {
		return fmt.Errorf("unknown proof_level %q", c.ProofLevel)
	}
	if c.Encryption.AtRest && c.Encryption.Algorithm != schema.AlgXChaCha20Poly1305 {
		return fmt.Errorf("unsupported encryption algorithm %q", c.Encryption.Algorithm)
	}
	return nil
}

func (c *Config) save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("vault: encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vault: writing config %s: %w", path, err)
	}
	return nil
}
