// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package evalgate

import (
	"sort"
	"testing"

	"github.com/docket-foundation/docket/lib/bundle"
	"github.com/docket-foundation/docket/lib/schema"
)

func passingSummary() *bundle.ValidationSummary {
	checkIDs := []string{
		"CHK.BUNDLE.REQUIRED_FILES",
		"CHK.EXPORTS.ATTACHMENTS_LAYOUT",
		"CHK.EXPORTS.DRAFT_LABEL",
		"CHK.NETWORK.SNAPSHOT_PRESENT",
		"CHK.AUDIT.REQUIRED_KEYS_AND_CHAIN",
		"CHK.ARTIFACT_HASHES.VERIFY",
		"CHK.MODEL.PINNING_LEVEL",
		"CHK.CITATIONS.STRICT",
		"CHK.REDACTION.POLICY_GATE",
		"CHK.EVAL.REPORT_AND_GATES",
		"CHK.DETERMINISM.ZIP_RULES",
		"CHK.VAULT_CRYPTO.POLICY_SNAPSHOT",
	}
	summary := &bundle.ValidationSummary{
		ChecklistVersion: schema.BundleValidatorVersion,
		Policy:           schema.PolicyStrict,
		Overall:          schema.StatusPass,
	}
	for _, checkID := range checkIDs {
		summary.Checks = append(summary.Checks, bundle.CheckResult{
			CheckID: checkID, Severity: schema.SeverityBlocker,
			Result: schema.StatusPass, Message: "ok",
		})
	}
	return summary
}

func TestLoadRegistry(t *testing.T) {
	registry, err := LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if registry.RegistryVersion != schema.GateRegistryVersion {
		t.Errorf("version = %s", registry.RegistryVersion)
	}
	known := registry.KnownGateIDs()
	for _, gateID := range []string{
		"AUDIT_HASH_CHAIN.VERIFY_V1",
		"CITATIONS.STRICT_ENFORCED_V1",
		"MODEL_PINNING.MIN_LEVEL_V1",
		"DETERMINISM.ZIP_PACKAGING_V1",
	} {
		if !known[gateID] {
			t.Errorf("registry missing gate %s", gateID)
		}
	}
}

func TestRunProducesStableOrder(t *testing.T) {
	runner, err := NewRunner()
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := runner.Run(RunInputs{Summary: passingSummary(), Policy: schema.PolicyStrict})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no gate results")
	}
	if !sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].GateID < results[j].GateID
	}) {
		t.Error("results not sorted by gate_id")
	}
	if failures := BlockerFailures(results); len(failures) != 0 {
		t.Errorf("unexpected blocker failures: %v", failures)
	}
	if OverallStatus(results) != schema.StatusPass {
		t.Error("overall should be PASS")
	}
}

func TestRunSkipsInapplicableGates(t *testing.T) {
	runner, err := NewRunner()
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := runner.Run(RunInputs{Summary: passingSummary(), Policy: schema.PolicyDraftOnly})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, result := range results {
		if result.GateID == "CITATIONS.STRICT_ENFORCED_V1" {
			t.Error("Strict-only gate executed under DRAFT_ONLY")
		}
		if result.GateID == "REDACTION.REQUIRED_APPLIED_V1" {
			t.Error("redaction gate executed under DRAFT_ONLY")
		}
	}
}

func TestRunMapsFailedCheckToBlocker(t *testing.T) {
	summary := passingSummary()
	for i := range summary.Checks {
		if summary.Checks[i].CheckID == "CHK.CITATIONS.STRICT" {
			summary.Checks[i].Result = schema.StatusFail
			summary.Checks[i].Message = "claims missing citations: C0002"
		}
	}
	runner, err := NewRunner()
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := runner.Run(RunInputs{Summary: summary, Policy: schema.PolicyStrict})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	failures := BlockerFailures(results)
	if len(failures) != 1 || failures[0] != "CITATIONS.STRICT_ENFORCED_V1" {
		t.Errorf("failures = %v", failures)
	}
	if OverallStatus(results) != schema.StatusFail {
		t.Error("overall should be FAIL")
	}
}

func TestEgressHygieneGate(t *testing.T) {
	goodLine := `{"ts_utc":"2026-01-01T00:00:00Z","event_type":"EGRESS_REQUEST_BLOCKED","run_id":"r_1","vault_id":"v_1","actor":"system","details":{"destination":{},"block_reason":"OFFLINE_MODE","request_hash_sha256":"ab"},"prev_event_hash":"x","event_hash":"y"}`
	status, _ := evaluateEgressHygiene([]byte(goodLine + "\n"))
	if status != schema.StatusPass {
		t.Errorf("valid blocked event = %s, want PASS", status)
	}

	badLine := `{"ts_utc":"2026-01-01T00:00:00Z","event_type":"EGRESS_REQUEST_BLOCKED","run_id":"r_1","vault_id":"v_1","actor":"system","details":{"destination":{},"block_reason":"BECAUSE","request_hash_sha256":"ab"},"prev_event_hash":"x","event_hash":"y"}`
	status, message := evaluateEgressHygiene([]byte(badLine + "\n"))
	if status != schema.StatusFail {
		t.Errorf("invalid reason = %s (%s), want FAIL", status, message)
	}

	status, _ = evaluateEgressHygiene(nil)
	if status != schema.StatusNotApplicable {
		t.Errorf("no egress = %s, want NOT_APPLICABLE", status)
	}
}

func TestReportConsistency(t *testing.T) {
	runner, err := NewRunner()
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := runner.Run(RunInputs{Summary: passingSummary(), Policy: schema.PolicyBalanced})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	report := Report(results)
	if report.RegistryVersion != schema.GateRegistryVersion {
		t.Errorf("registry version = %s", report.RegistryVersion)
	}
	if report.OverallStatus != OverallStatus(results) {
		t.Error("report overall must match computed status")
	}
}
