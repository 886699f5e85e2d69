// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docket-foundation/docket/lib/bundle"
	"github.com/docket-foundation/docket/lib/evalgate"
	"github.com/docket-foundation/docket/lib/policy"
	"github.com/docket-foundation/docket/lib/schema"
)

// ExportArgs parameterizes one export attempt.
type ExportArgs struct {
	// RequestedBy is the actor behind EXPORT_REQUESTED.
	RequestedBy schema.Actor

	// Inputs is the pack material and snapshots. The manager
	// injects the audit stream and the eval report; everything else
	// is the caller's.
	Inputs *bundle.Inputs

	// StagingDir hosts the preflight and final staging trees.
	StagingDir string

	// OutPath is the final bundle ZIP location.
	OutPath string
}

// Outcome is the structured result of an export attempt.
type Outcome struct {
	// Status is COMPLETED, BLOCKED, FAILED, or CANCELLED.
	Status string

	BundlePath   string
	BundleSHA256 string

	// BlockReason is set when Status is BLOCKED or FAILED.
	BlockReason *schema.ExportBlockReason

	// FailedGateIDs names the failed blocker gates of a BLOCKED
	// outcome, or the failed validator check ids of a FAILED one.
	FailedGateIDs []string
}

// Export drives the 16-step pipeline. No step is skippable and the
// ordering is normative; a failed step terminates the run without
// producing a bundle, and cancellation is honored cooperatively at
// every pre-validation step boundary.
func (m *Manager) Export(ctx context.Context, args ExportArgs) (Outcome, error) {
	if args.Inputs == nil {
		return Outcome{}, fmt.Errorf("run: export inputs are required")
	}
	preflightRoot := filepath.Join(args.StagingDir, m.run.ID+"_preflight")
	preflightZip := preflightRoot + ".zip"
	finalRoot := filepath.Join(args.StagingDir, m.run.ID)
	discardStaging := func() {
		os.RemoveAll(preflightRoot)
		os.Remove(preflightZip)
		os.RemoveAll(finalRoot)
	}

	// Step 1: EXPORT_REQUESTED.
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 1"); done {
		return outcome, err
	}
	// Targets are recorded by file name, not absolute path: the
	// event lands inside the portable bundle's audit snapshot, which
	// must neither leak local filesystem layout nor vary across
	// machines for byte-identical deterministic exports.
	if _, err := m.auditLog.Append(schema.EventExportRequested, m.run.ID, args.RequestedBy, map[string]any{
		"requested_by":   string(args.RequestedBy),
		"export_targets": []string{filepath.Base(args.OutPath)},
		"policy_mode":    string(m.run.PolicyMode),
	}); err != nil {
		return Outcome{}, err
	}

	// Step 2: state := EVALUATING.
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 2"); done {
		return outcome, err
	}
	if err := m.transition(schema.RunEvaluating, "export requested"); err != nil {
		return Outcome{}, err
	}

	// Step 3: run the gate suite against a preflight staging tree.
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 3"); done {
		return outcome, err
	}
	if _, err := m.auditLog.Append(schema.EventEvalStarted, m.run.ID, schema.ActorSystem, map[string]any{
		"registry_version": schema.GateRegistryVersion,
	}); err != nil {
		return Outcome{}, err
	}

	gateResults, err := m.runGates(preflightRoot, preflightZip, args.Inputs)
	if err != nil {
		return Outcome{}, err
	}
	blockerFailures := evalgate.BlockerFailures(gateResults)
	totalFailures := 0
	for _, result := range gateResults {
		if result.Status == schema.StatusFail {
			totalFailures++
		}
	}
	for _, result := range gateResults {
		if _, err := m.auditLog.Append(schema.EventEvalGateResult, m.run.ID, schema.ActorSystem, map[string]any{
			"gate_id":           result.GateID,
			"result":            string(result.Status),
			"severity":          string(result.Severity),
			"evidence_pointers": result.EvidencePointers,
			"message":           result.Message,
		}); err != nil {
			return Outcome{}, err
		}
	}
	if _, err := m.auditLog.Append(schema.EventEvalCompleted, m.run.ID, schema.ActorSystem, map[string]any{
		"gates_executed":       len(gateResults),
		"gates_failed_blocker": len(blockerFailures),
		"gates_failed_total":   totalFailures,
	}); err != nil {
		return Outcome{}, err
	}

	// Steps 4-5: policy and determinism checks over the gate
	// results.
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 4"); done {
		return outcome, err
	}
	gateStatus := func(gateID string) schema.GateStatus {
		for _, result := range gateResults {
			if result.GateID == gateID {
				return result.Status
			}
		}
		return schema.StatusNotApplicable
	}
	acceptable := func(status schema.GateStatus) bool {
		return status == schema.StatusPass || status == schema.StatusNotApplicable
	}
	determinismOK := true
	if m.run.DeterminismEnabled {
		determinismOK = acceptable(gateStatus("DETERMINISM.ZIP_PACKAGING_V1"))
	}

	// Gates with a dedicated block reason are excluded from the
	// generic EVAL_FAILED list so a blocked export names its actual
	// cause; they still appear in failed_gate_ids.
	dedicated := map[string]bool{
		"CITATIONS.STRICT_ENFORCED_V1":  true,
		"REDACTION.REQUIRED_APPLIED_V1": true,
		"MODEL_PINNING.MIN_LEVEL_V1":    true,
		"DETERMINISM.ZIP_PACKAGING_V1":  true,
		"DETERMINISM.PDF_CAPABLE_V1":    true,
	}
	var genericFailures []string
	for _, gateID := range blockerFailures {
		if !dedicated[gateID] {
			genericFailures = append(genericFailures, gateID)
		}
	}

	blockReason := policy.EvaluateExportGate(policy.ExportGateInputs{
		PolicyMode:          m.run.PolicyMode,
		PinningLevel:        args.Inputs.ModelSnapshot.PinningLevel,
		CitationsPassed:     acceptable(gateStatus("CITATIONS.STRICT_ENFORCED_V1")),
		RedactionsPassed:    acceptable(gateStatus("REDACTION.REQUIRED_APPLIED_V1")),
		BlockerGateFailures: genericFailures,
		DeterminismPassed:   determinismOK,
		NetworkMode:         m.run.NetworkMode,
		ProofLevel:          m.run.ProofLevel,
	})

	// Step 6: blocked exports stop here. No partial bundle.
	if blockReason != nil {
		failedGates := blockerFailures
		if failedGates == nil {
			failedGates = []string{}
		}
		if _, err := m.auditLog.Append(schema.EventExportBlocked, m.run.ID, schema.ActorSystem, map[string]any{
			"block_reason":    string(*blockReason),
			"failed_gate_ids": failedGates,
		}); err != nil {
			return Outcome{}, err
		}
		if err := m.transition(schema.RunFailed, "export blocked"); err != nil {
			return Outcome{}, err
		}
		discardStaging()
		m.logger.Info("export blocked", "run_id", m.run.ID, "block_reason", string(*blockReason))
		return Outcome{Status: "BLOCKED", BlockReason: blockReason, FailedGateIDs: failedGates}, nil
	}
	os.RemoveAll(preflightRoot)

	// Step 7: state := EXPORTING.
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 7"); done {
		return outcome, err
	}
	if err := m.transition(schema.RunExporting, "gates passed"); err != nil {
		return Outcome{}, err
	}

	// Steps 8-10: build the final staging tree.
	if _, err := m.auditLog.Append(schema.EventBundleGenerationStarted, m.run.ID, schema.ActorSystem, map[string]any{}); err != nil {
		return Outcome{}, err
	}
	finalInputs := *args.Inputs
	finalInputs.EvalReport = evalgate.Report(gateResults)
	finalInputs.RunManifest.Eval.GateStatus = finalInputs.EvalReport.OverallStatus
	auditStream, err := os.ReadFile(m.auditLog.Path())
	if err != nil {
		return Outcome{}, fmt.Errorf("run: reading audit stream: %w", err)
	}
	finalInputs.AuditLogNDJSON = auditStream
	if err := bundle.BuildDir(finalRoot, &finalInputs); err != nil {
		return Outcome{}, err
	}
	if _, err := m.auditLog.Append(schema.EventBundleGenerationCompleted, m.run.ID, schema.ActorSystem, map[string]any{}); err != nil {
		return Outcome{}, err
	}
	if outcome, done, err := m.checkCancel(ctx, discardStaging, "step 10"); done {
		return outcome, err
	}

	// Steps 11-13: independent validation of the staging tree.
	if _, err := m.auditLog.Append(schema.EventBundleValidationStarted, m.run.ID, schema.ActorSystem, map[string]any{}); err != nil {
		return Outcome{}, err
	}
	finalSummary, err := bundle.ValidateDir(finalRoot, m.run.PolicyMode)
	if err != nil {
		return Outcome{}, err
	}
	failedChecks := finalSummary.FailedCheckIDs()
	if failedChecks == nil {
		failedChecks = []string{}
	}
	if _, err := m.auditLog.Append(schema.EventBundleValidationResult, m.run.ID, schema.ActorSystem, map[string]any{
		"result":            string(finalSummary.Overall),
		"failed_checks":     failedChecks,
		"validator_version": schema.BundleValidatorVersion,
	}); err != nil {
		return Outcome{}, err
	}

	// Step 14: validation failure terminates without a bundle.
	if finalSummary.Overall != schema.StatusPass {
		if _, err := m.auditLog.Append(schema.EventExportFailed, m.run.ID, schema.ActorSystem, map[string]any{
			"reason": string(schema.BlockBundleValidationFailed),
		}); err != nil {
			return Outcome{}, err
		}
		if err := m.transition(schema.RunFailed, "bundle validation failed"); err != nil {
			return Outcome{}, err
		}
		discardStaging()
		reason := schema.BlockBundleValidationFailed
		return Outcome{Status: "FAILED", BlockReason: &reason, FailedGateIDs: failedChecks}, nil
	}

	// Step 15: deterministic packaging, then an independent pass of
	// the validator over the produced archive. The staging tree was
	// checked at step 12; only the packaged bytes can prove the
	// zip-shape rules (entry order, timestamps, modes, compression).
	bundleSHA, err := bundle.PackageZip(finalRoot, args.OutPath)
	if err != nil {
		return Outcome{}, err
	}
	archiveSummary, err := bundle.ValidateZip(args.OutPath, m.run.PolicyMode)
	if err != nil {
		return Outcome{}, err
	}
	zipStatus, zipMessage := archiveSummary.ResultFor("CHK.DETERMINISM.ZIP_RULES")
	if m.run.DeterminismEnabled {
		if _, err := m.auditLog.Append(schema.EventDeterminismValidation, m.run.ID, schema.ActorSystem, map[string]any{
			"result":  string(zipStatus),
			"message": zipMessage,
		}); err != nil {
			return Outcome{}, err
		}
	}
	if archiveSummary.Overall != schema.StatusPass || zipStatus == schema.StatusFail {
		reason := schema.BlockBundleValidationFailed
		if zipStatus == schema.StatusFail {
			reason = schema.BlockDeterminismFailed
		}
		if _, err := m.auditLog.Append(schema.EventExportFailed, m.run.ID, schema.ActorSystem, map[string]any{
			"reason": string(reason),
		}); err != nil {
			return Outcome{}, err
		}
		if err := m.transition(schema.RunFailed, "packaged archive failed validation"); err != nil {
			return Outcome{}, err
		}
		os.Remove(args.OutPath)
		discardStaging()
		return Outcome{Status: "FAILED", BlockReason: &reason, FailedGateIDs: archiveSummary.FailedCheckIDs()}, nil
	}
	if _, err := m.auditLog.Append(schema.EventExportCompleted, m.run.ID, schema.ActorSystem, map[string]any{
		"bundle_path":      args.OutPath,
		"bundle_sha256":    bundleSHA,
		"bundle_version":   schema.BundleVersionName,
		"validator_result": string(archiveSummary.Overall),
	}); err != nil {
		return Outcome{}, err
	}

	// Step 16: state := COMPLETED.
	if err := m.transition(schema.RunCompleted, "export completed"); err != nil {
		return Outcome{}, err
	}
	os.RemoveAll(finalRoot)
	m.logger.Info("export completed", "run_id", m.run.ID, "bundle_sha256", bundleSHA)
	return Outcome{Status: "COMPLETED", BundlePath: args.OutPath, BundleSHA256: bundleSHA}, nil
}

// runGates stages a preflight bundle, packages it, and executes the
// gate registry against the packaged archive's validation summary.
// Packaging here is what lets the zip-shape determinism rules run
// with real archive bytes before the export decision, instead of
// reporting not-applicable against a bare staging tree.
func (m *Manager) runGates(preflightRoot, preflightZip string, in *bundle.Inputs) ([]schema.EvalGateResult, error) {
	preflight := *in
	preflight.EvalReport = evalgate.Report(nil)
	preflight.RunManifest.Eval.GateStatus = schema.StatusPass

	auditStream, err := os.ReadFile(m.auditLog.Path())
	if err != nil {
		return nil, fmt.Errorf("run: reading audit stream: %w", err)
	}
	preflight.AuditLogNDJSON = auditStream

	if err := bundle.BuildDir(preflightRoot, &preflight); err != nil {
		return nil, err
	}
	if _, err := bundle.PackageZip(preflightRoot, preflightZip); err != nil {
		return nil, err
	}
	summary, err := bundle.ValidateZip(preflightZip, m.run.PolicyMode)
	os.Remove(preflightZip)
	if err != nil {
		return nil, err
	}

	runner, err := evalgate.NewRunner()
	if err != nil {
		return nil, err
	}
	hasPDF := false
	for _, deliverable := range in.Deliverables {
		if strings.HasSuffix(deliverable.Name, ".pdf") {
			hasPDF = true
		}
	}
	return runner.Run(evalgate.RunInputs{
		Summary:            summary,
		Policy:             m.run.PolicyMode,
		AuditNDJSON:        auditStream,
		HasPDFDeliverables: hasPDF,
	})
}

// checkCancel implements cooperative cancellation at a step boundary.
// Mid-step cancellation never happens; a cancelled run discards its
// partially staged trees.
func (m *Manager) checkCancel(ctx context.Context, discard func(), step string) (Outcome, bool, error) {
	select {
	case <-ctx.Done():
	default:
		return Outcome{}, false, nil
	}
	discard()
	reason := fmt.Sprintf("export cancelled at %s", step)
	if err := m.Cancel(reason); err != nil {
		return Outcome{}, true, err
	}
	m.logger.Info("export cancelled", "run_id", m.run.ID, "step", step)
	return Outcome{Status: "CANCELLED"}, true, nil
}
