// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package evalgate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/docket-foundation/docket/lib/bundle"
	"github.com/docket-foundation/docket/lib/schema"
)

// RunInputs is everything a gate pass interprets.
type RunInputs struct {
	// Summary is the bundle validator's checklist output.
	Summary *bundle.ValidationSummary

	// Policy is the active policy mode; gates outside it are
	// skipped entirely.
	Policy schema.PolicyMode

	// AuditNDJSON is the run's audit stream, for egress-hygiene
	// evaluation.
	AuditNDJSON []byte

	// HasPDFDeliverables controls whether the PDF determinism gate
	// applies.
	HasPDFDeliverables bool
}

// Runner executes the registry.
type Runner struct {
	registry *Registry
}

// NewRunner loads the embedded registry.
func NewRunner() (*Runner, error) {
	registry, err := LoadRegistry()
	if err != nil {
		return nil, err
	}
	return &Runner{registry: registry}, nil
}

// Registry exposes the loaded registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Run maps the validator summary onto gate results. Results are
// sorted by gate id and messages are deterministic — identical inputs
// produce an identical report.
func (r *Runner) Run(in RunInputs) ([]schema.EvalGateResult, error) {
	if in.Summary == nil {
		return nil, fmt.Errorf("evalgate: validation summary is required")
	}

	var results []schema.EvalGateResult
	for _, gate := range r.registry.Gates {
		if !gate.AppliesTo(in.Policy) {
			continue
		}
		status, message := r.evaluate(gate, in)
		results = append(results, schema.EvalGateResult{
			GateID:           gate.GateID,
			Category:         gate.Category,
			Status:           status,
			Severity:         gate.Severity,
			Message:          message,
			EvidencePointers: gate.EvidenceRequired,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].GateID < results[j].GateID
	})
	return results, nil
}

func (r *Runner) evaluate(gate GateDef, in RunInputs) (schema.GateStatus, string) {
	switch gate.GateID {
	case "BUNDLE_FORMAT.REQUIRED_FILES_V1":
		// Folds the required-files check with the exports-layout
		// checks (attachments layout, draft labeling): a pack export
		// violating either is a format defect.
		if status, message := in.Summary.ResultForPrefix("CHK.BUNDLE."); status == schema.StatusFail {
			return status, message
		}
		return in.Summary.ResultForPrefix("CHK.EXPORTS.")
	case "AUDIT_HASH_CHAIN.VERIFY_V1":
		return in.Summary.ResultFor("CHK.AUDIT.REQUIRED_KEYS_AND_CHAIN")
	case "OFFLINE_ENFORCEMENT.MODE_PROOF_V1":
		return in.Summary.ResultFor("CHK.NETWORK.SNAPSHOT_PRESENT")
	case "OFFLINE_ENFORCEMENT.ALLOWLIST_MATCH_V1":
		return evaluateEgressHygiene(in.AuditNDJSON)
	case "CITATIONS.STRICT_ENFORCED_V1":
		return in.Summary.ResultFor("CHK.CITATIONS.STRICT")
	case "REDACTION.REQUIRED_APPLIED_V1":
		return in.Summary.ResultFor("CHK.REDACTION.POLICY_GATE")
	case "MODEL_PINNING.MIN_LEVEL_V1":
		return in.Summary.ResultFor("CHK.MODEL.PINNING_LEVEL")
	case "VAULT_CRYPTO.ENCRYPTION_AT_REST_V1":
		return in.Summary.ResultFor("CHK.VAULT_CRYPTO.POLICY_SNAPSHOT")
	case "DETERMINISM.ZIP_PACKAGING_V1":
		return in.Summary.ResultFor("CHK.DETERMINISM.ZIP_RULES")
	case "DETERMINISM.PDF_CAPABLE_V1":
		if !in.HasPDFDeliverables {
			return schema.StatusNotApplicable, "no PDF deliverables in bundle"
		}
		return in.Summary.ResultFor("CHK.DETERMINISM.ZIP_RULES")
	default:
		return schema.StatusNotApplicable, "gate not implemented by this runner"
	}
}

// evaluateEgressHygiene scans the audit stream: every blocked egress
// decision must carry a closed block reason, and every allowed
// decision must name its allowlist rule. A run with no egress
// activity has nothing to evaluate.
func evaluateEgressHygiene(auditNDJSON []byte) (schema.GateStatus, string) {
	validReasons := map[string]bool{
		string(schema.EgressBlockOffline):        true,
		string(schema.EgressBlockNotAllowlisted): true,
		string(schema.EgressBlockUIDirect):       true,
	}

	sawEgress := false
	var invalidReasons []string
	allowedMissingRule := 0
	for _, line := range bytes.Split(auditNDJSON, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var event schema.AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return schema.StatusFail, fmt.Sprintf("invalid audit line: %v", err)
		}
		switch event.EventType {
		case schema.EventEgressRequestBlocked:
			sawEgress = true
			reason, _ := event.Details["block_reason"].(string)
			if !validReasons[reason] {
				invalidReasons = append(invalidReasons, reason)
			}
		case schema.EventEgressRequestAllowed:
			sawEgress = true
			if ruleID, _ := event.Details["allowlist_rule_id"].(string); ruleID == "" {
				allowedMissingRule++
			}
		}
	}

	if !sawEgress {
		return schema.StatusNotApplicable, "no egress activity recorded"
	}
	if len(invalidReasons) > 0 {
		sort.Strings(invalidReasons)
		return schema.StatusFail, "invalid block reasons: " + strings.Join(invalidReasons, ", ")
	}
	if allowedMissingRule > 0 {
		return schema.StatusFail, fmt.Sprintf("%d allowed decisions missing allowlist_rule_id", allowedMissingRule)
	}
	return schema.StatusPass, "ok"
}

// BlockerFailures lists the gate ids of applicable BLOCKER gates
// that failed.
func BlockerFailures(results []schema.EvalGateResult) []string {
	var failed []string
	for _, result := range results {
		if result.Severity == schema.SeverityBlocker && result.Status == schema.StatusFail {
			failed = append(failed, result.GateID)
		}
	}
	return failed
}

// OverallStatus folds gate results into the report's overall status.
func OverallStatus(results []schema.EvalGateResult) schema.GateStatus {
	for _, result := range results {
		if result.Severity == schema.SeverityBlocker && result.Status == schema.StatusFail {
			return schema.StatusFail
		}
	}
	return schema.StatusPass
}

// Report assembles the eval_report.json document.
func Report(results []schema.EvalGateResult) schema.EvalReport {
	if results == nil {
		results = []schema.EvalGateResult{}
	}
	return schema.EvalReport{
		OverallStatus:   OverallStatus(results),
		Gates:           results,
		RegistryVersion: schema.GateRegistryVersion,
	}
}
