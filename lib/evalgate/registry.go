// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package evalgate executes the gate registry against a validated
// bundle and produces the stable-ordered eval report.
//
// Gates are declarative: the embedded registry pins each gate's id,
// severity, and the policies it applies to. The runner maps validator
// checklist results onto gate results — gates never re-implement the
// checks, they interpret them. Export is blocked when any applicable
// BLOCKER gate fails.
package evalgate

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/docket-foundation/docket/lib/schema"
)

//go:embed registry_v3.json
var registryJSON []byte

// GateDef is one registry entry.
type GateDef struct {
	GateID            string              `json:"gate_id"`
	Category          string              `json:"category"`
	Severity          schema.GateSeverity `json:"severity"`
	AppliesToPolicies []string            `json:"applies_to_policies"`
	PassCriteria      map[string]string   `json:"pass_criteria"`
	EvidenceRequired  []string            `json:"evidence_required"`
}

// AppliesTo reports whether the gate is active under the given
// policy mode.
func (g *GateDef) AppliesTo(mode schema.PolicyMode) bool {
	for _, policy := range g.AppliesToPolicies {
		if policy == string(mode) {
			return true
		}
	}
	return false
}

// Registry is the parsed gate registry.
type Registry struct {
	RegistryVersion string    `json:"registry_version"`
	Gates           []GateDef `json:"gates"`
}

// LoadRegistry parses the embedded registry and checks its version.
func LoadRegistry() (*Registry, error) {
	var registry Registry
	if err := json.Unmarshal(registryJSON, &registry); err != nil {
		return nil, fmt.Errorf("evalgate: parsing embedded registry: %w", err)
	}
	if registry.RegistryVersion != schema.GateRegistryVersion {
		return nil, fmt.Errorf("evalgate: embedded registry is %q, want %s",
			registry.RegistryVersion, schema.GateRegistryVersion)
	}
	return &registry, nil
}

// KnownGateIDs returns the set of gate ids in the registry.
func (r *Registry) KnownGateIDs() map[string]bool {
	known := make(map[string]bool, len(r.Gates))
	for _, gate := range r.Gates {
		known[gate.GateID] = true
	}
	return known
}
