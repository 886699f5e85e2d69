// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"

	"github.com/docket-foundation/docket/lib/schema"
)

func passingInputs(mode schema.PolicyMode) ExportGateInputs {
	return ExportGateInputs{
		PolicyMode:        mode,
		PinningLevel:      schema.PinVersion,
		CitationsPassed:   true,
		RedactionsPassed:  true,
		DeterminismPassed: true,
		NetworkMode:       schema.NetworkOffline,
		ProofLevel:        schema.ProofOfflineStrict,
	}
}

func TestExportGatePasses(t *testing.T) {
	for _, mode := range []schema.PolicyMode{schema.PolicyStrict, schema.PolicyBalanced, schema.PolicyDraftOnly} {
		if reason := EvaluateExportGate(passingInputs(mode)); reason != nil {
			t.Errorf("%s: unexpected block %s", mode, *reason)
		}
	}
}

func TestExportGateBlockOrder(t *testing.T) {
	in := passingInputs(schema.PolicyStrict)
	in.BlockerGateFailures = []string{"AUDIT_HASH_CHAIN.VERIFY_V1"}
	in.DeterminismPassed = false
	in.CitationsPassed = false
	// Gate failures outrank everything else.
	if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockEvalFailed {
		t.Errorf("reason = %v, want EVAL_FAILED", reason)
	}

	in.BlockerGateFailures = nil
	if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockDeterminismFailed {
		t.Errorf("reason = %v, want DETERMINISM_FAILED", reason)
	}

	in.DeterminismPassed = true
	if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockMissingCitations {
		t.Errorf("reason = %v, want MISSING_CITATIONS", reason)
	}
}

func TestExportGatePinning(t *testing.T) {
	in := passingInputs(schema.PolicyStrict)
	in.PinningLevel = schema.PinName
	if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockInsufficientPinning {
		t.Errorf("reason = %v, want INSUFFICIENT_PINNING", reason)
	}

	draft := passingInputs(schema.PolicyDraftOnly)
	draft.PinningLevel = schema.PinName
	if reason := EvaluateExportGate(draft); reason != nil {
		t.Errorf("DraftOnly should accept NAME_ONLY, got %s", *reason)
	}
}

func TestExportGateRedactions(t *testing.T) {
	for _, mode := range []schema.PolicyMode{schema.PolicyStrict, schema.PolicyBalanced} {
		in := passingInputs(mode)
		in.RedactionsPassed = false
		if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockMissingRedactions {
			t.Errorf("%s: reason = %v, want MISSING_REDACTIONS", mode, reason)
		}
	}

	draft := passingInputs(schema.PolicyDraftOnly)
	draft.RedactionsPassed = false
	if reason := EvaluateExportGate(draft); reason != nil {
		t.Errorf("DraftOnly should not require redactions, got %s", *reason)
	}
}

func TestExportGateOfflineProof(t *testing.T) {
	in := passingInputs(schema.PolicyStrict)
	in.NetworkMode = schema.NetworkOnlineAllowlisted
	in.ProofLevel = schema.ProofOnlineAllowlistCoreOnly
	if reason := EvaluateExportGate(in); reason == nil || *reason != schema.BlockOfflineProofInsufficient {
		t.Errorf("reason = %v, want OFFLINE_PROOF_INSUFFICIENT", reason)
	}

	balanced := passingInputs(schema.PolicyBalanced)
	balanced.NetworkMode = schema.NetworkOnlineAllowlisted
	balanced.ProofLevel = schema.ProofOnlineAllowlistCoreOnly
	if reason := EvaluateExportGate(balanced); reason != nil {
		t.Errorf("Balanced online export should pass, got %s", *reason)
	}
}

func TestPredicates(t *testing.T) {
	if !CitationsRequired(schema.PolicyStrict) || CitationsRequired(schema.PolicyBalanced) {
		t.Error("citations required exactly under Strict")
	}
	if !RedactionsRequired(schema.PolicyBalanced) || RedactionsRequired(schema.PolicyDraftOnly) {
		t.Error("redactions required under Strict and Balanced only")
	}
	if !DraftLabelRequired(schema.PolicyDraftOnly) {
		t.Error("DraftOnly outputs must be labeled draft")
	}
}
