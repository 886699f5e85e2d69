// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package run orchestrates a single run: the lifecycle state machine
// and the 16-step export pipeline, the only path from inputs to a
// published Evidence Bundle.
//
// The Manager exclusively owns the mutable run record for the run's
// lifetime. Every state change and every pipeline step is recorded in
// the vault's audit log before the caller observes it; failure paths
// are explicit outcomes carrying a closed block reason or error kind,
// never panics across step boundaries.
package run

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/docket-foundation/docket/lib/codec"
	"github.com/docket-foundation/docket/lib/schema"
)

// Run is the mutable run record. Owned by the Manager.
type Run struct {
	ID                 string
	VaultID            string
	PolicyMode         schema.PolicyMode
	NetworkMode        schema.NetworkMode
	ProofLevel         schema.ProofLevel
	DeterminismEnabled bool
	State              schema.RunState

	// GeneratedAt is the run-wide timestamp every generated artifact
	// of this run uses, so sibling artifacts cannot drift apart.
	GeneratedAt time.Time
}

// ManifestInputsFingerprint derives the deterministic fingerprint of
// a run's inputs: SHA-256 over the canonical encoding of the sorted
// "artifact_id:sha256" pairs.
func ManifestInputsFingerprint(inputs []schema.ManifestArtifactRef) (string, error) {
	pairs := make([]string, 0, len(inputs))
	for _, ref := range inputs {
		pairs = append(pairs, ref.ArtifactID+":"+ref.SHA256)
	}
	sort.Strings(pairs)
	canonical, err := codec.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("run: fingerprinting inputs: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DeterministicRunID derives "r_" + the first 32 hex characters of
// the manifest inputs fingerprint. Two runs over identical inputs get
// identical ids.
func DeterministicRunID(fingerprintHex string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(fingerprintHex))
	if len(trimmed) < 32 {
		return "", fmt.Errorf("run: fingerprint must be at least 32 hex chars, got %d", len(trimmed))
	}
	prefix := trimmed[:32]
	if _, err := hex.DecodeString(prefix); err != nil {
		return "", fmt.Errorf("run: fingerprint is not hex: %w", err)
	}
	return "r_" + prefix, nil
}

// RandomRunID returns "r_" + a fresh ULID, for runs without
// determinism.
func RandomRunID(now time.Time) string {
	return "r_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// validTransitions is the closed edge set of the run state machine.
var validTransitions = map[schema.RunState][]schema.RunState{
	schema.RunCreated:    {schema.RunIngesting, schema.RunReady},
	schema.RunIngesting:  {schema.RunReady},
	schema.RunReady:      {schema.RunExecuting, schema.RunEvaluating},
	schema.RunExecuting:  {schema.RunEvaluating},
	schema.RunEvaluating: {schema.RunExporting, schema.RunFailed},
	schema.RunExporting:  {schema.RunCompleted, schema.RunFailed},
}

// ValidTransition reports whether from → to is a legal edge. Any
// non-terminal state may transition to CANCELLED.
func ValidTransition(from, to schema.RunState) bool {
	if to == schema.RunCancelled {
		return !from.Terminal()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
