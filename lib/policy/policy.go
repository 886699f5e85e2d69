// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy maps the vault's policy mode onto mechanical
// predicates and evaluates the export gate. Nothing here is advisory:
// a failed predicate becomes an EXPORT_BLOCKED with a closed block
// reason, never a warning.
package policy

import (
	"github.com/docket-foundation/docket/lib/schema"
)

// CitationsRequired reports whether the mode demands citation
// coverage for every claim marker. Strict requires; Balanced
// recommends (not enforced); DraftOnly does not apply.
func CitationsRequired(mode schema.PolicyMode) bool {
	return mode == schema.PolicyStrict
}

// RedactionsRequired reports whether the mode demands redaction
// coverage for cited sensitive artifacts.
func RedactionsRequired(mode schema.PolicyMode) bool {
	return mode == schema.PolicyStrict || mode == schema.PolicyBalanced
}

// PinningSufficient reports whether a pinning level satisfies the
// mode. Strict and Balanced demand at least VERSION_PINNED; DraftOnly
// accepts anything.
func PinningSufficient(mode schema.PolicyMode, level schema.PinningLevel) bool {
	switch mode {
	case schema.PolicyStrict, schema.PolicyBalanced:
		return level == schema.PinCrypto || level == schema.PinVersion
	case schema.PolicyDraftOnly:
		return level.Valid()
	}
	return false
}

// DraftLabel is the marker stamped at the top of every Markdown
// deliverable produced under DraftOnly policy. The bundle builder
// writes it and the bundle validator requires it, so a draft export
// can never pass for a reviewed one.
const DraftLabel = "<!-- DRAFT: NOT FOR RELEASE -->"

// DraftLabelRequired reports whether deliverables must carry the
// draft label.
func DraftLabelRequired(mode schema.PolicyMode) bool {
	return mode == schema.PolicyDraftOnly
}

// ExportGateInputs collects every predicate outcome the export gate
// decides over.
type ExportGateInputs struct {
	PolicyMode           schema.PolicyMode
	PinningLevel         schema.PinningLevel
	CitationsPassed      bool
	RedactionsPassed     bool
	BlockerGateFailures  []string
	DeterminismPassed    bool
	NetworkMode          schema.NetworkMode
	ProofLevel           schema.ProofLevel
}

// EvaluateExportGate returns nil when export may proceed, or the
// first applicable block reason. The decision order is fixed: gate
// failures, determinism, pinning, citations, redactions, offline
// proof. Strict exports additionally require the vault to be OFFLINE
// with OFFLINE_STRICT proof at export time.
func EvaluateExportGate(in ExportGateInputs) *schema.ExportBlockReason {
	if len(in.BlockerGateFailures) > 0 {
		return blockReason(schema.BlockEvalFailed)
	}
	if !in.DeterminismPassed {
		return blockReason(schema.BlockDeterminismFailed)
	}
	if !PinningSufficient(in.PolicyMode, in.PinningLevel) {
		return blockReason(schema.BlockInsufficientPinning)
	}
	if CitationsRequired(in.PolicyMode) && !in.CitationsPassed {
		return blockReason(schema.BlockMissingCitations)
	}
	if RedactionsRequired(in.PolicyMode) && !in.RedactionsPassed {
		return blockReason(schema.BlockMissingRedactions)
	}
	if in.PolicyMode == schema.PolicyStrict &&
		(in.NetworkMode != schema.NetworkOffline || in.ProofLevel != schema.ProofOfflineStrict) {
		return blockReason(schema.BlockOfflineProofInsufficient)
	}
	return nil
}

func blockReason(reason schema.ExportBlockReason) *schema.ExportBlockReason {
	return &reason
}
