// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// docket-gates runs the configured gate suite against a
// deterministic self-audit Evidence Bundle.
//
// The command creates a throwaway vault, ingests a fixture artifact,
// drives a full run through the 16-step export pipeline twice (to
// prove byte stability), validates the produced bundle, and executes
// the gate registry. Stdout lines begin with the gate id and status:
//
//	GATE AUDIT_HASH_CHAIN.VERIFY_V1 PASS ok
//
// Exit codes: 0 on success; 1 when the validator fails, a BLOCKER
// gate fails, or determinism is violated; 2 on usage or runtime
// error.
package main

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/docket-foundation/docket/lib/artifact"
	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/bundle"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/egress"
	"github.com/docket-foundation/docket/lib/evalgate"
	"github.com/docket-foundation/docket/lib/modelpin"
	"github.com/docket-foundation/docket/lib/run"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/lib/vault"
)

const version = "0.3.0"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	flags := pflag.NewFlagSet("docket-gates", pflag.ContinueOnError)
	policyName := flags.String("policy", "STRICT", "policy mode to evaluate under (STRICT, BALANCED, DRAFT_ONLY)")
	keepBundle := flags.String("keep-bundle", "", "copy the self-audit bundle to this path on success")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if *showVersion {
		fmt.Printf("docket-gates %s\n", version)
		return 0
	}

	policy, err := schema.ParsePolicyMode(*policyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	workDir, err := os.MkdirTemp("", "docket-gates-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: creating work directory: %v\n", err)
		return 2
	}
	defer os.RemoveAll(workDir)

	// Two back-to-back self-audit exports must produce identical
	// bundle bytes.
	firstSHA, firstPath, code := selfAudit(filepath.Join(workDir, "one"), policy)
	if code != 0 {
		return code
	}
	secondSHA, _, code := selfAudit(filepath.Join(workDir, "two"), policy)
	if code != 0 {
		return code
	}
	if firstSHA != secondSHA {
		fmt.Printf("DETERMINISM.EXPORT_BYTE_STABILITY FAIL sha256 %s != %s\n", firstSHA, secondSHA)
		return 1
	}
	fmt.Printf("DETERMINISM.EXPORT_BYTE_STABILITY PASS sha256=%s\n", firstSHA)

	// Independent validation plus the gate registry over the
	// produced archive.
	summary, err := bundle.ValidateZip(firstPath, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: validating bundle: %v\n", err)
		return 2
	}
	fmt.Printf("BUNDLE_VALIDATOR overall=%s\n", summary.Overall)
	for _, check := range summary.Checks {
		fmt.Printf("CHECK %s %s %s\n", check.CheckID, check.Result, check.Message)
	}

	runner, err := evalgate.NewRunner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	auditStream := extractAuditStream(firstPath)
	results, err := runner.Run(evalgate.RunInputs{
		Summary:     summary,
		Policy:      policy,
		AuditNDJSON: auditStream,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: running gates: %v\n", err)
		return 2
	}
	for _, result := range results {
		fmt.Printf("GATE %s %s %s\n", result.GateID, result.Status, result.Message)
	}

	if *keepBundle != "" {
		if err := copyFile(firstPath, *keepBundle); err != nil {
			fmt.Fprintf(os.Stderr, "error: keeping bundle: %v\n", err)
			return 2
		}
	}

	if summary.Overall != schema.StatusPass || len(evalgate.BlockerFailures(results)) > 0 {
		return 1
	}
	return 0
}

// selfAudit drives one complete run — vault, store, ingest, egress
// probe, export — and returns the bundle hash and path.
func selfAudit(workDir string, policy schema.PolicyMode) (sha string, bundlePath string, exitCode int) {
	fail := func(err error) (string, string, int) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return "", "", 2
	}

	cfg := vault.DefaultConfig("v_selfaudit")
	cfg.PolicyMode = policy
	v, err := vault.Create(filepath.Join(workDir, "vault"), cfg, vault.Options{})
	if err != nil {
		return fail(err)
	}

	store, err := artifact.Open(artifact.Config{
		BlobsDir:  v.BlobsPath(),
		IndexPath: v.IndexPath(),
		Cipher:    v.Cipher(),
	})
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	// A pinned clock keeps the audit stream — and therefore the
	// bundle bytes — identical across the two self-audit runs.
	fixed := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log, err := audit.Open(audit.Config{
		Path:    v.AuditLogPath(),
		VaultID: v.ID(),
		Clock:   fixed,
	})
	if err != nil {
		return fail(err)
	}
	defer log.Close()

	ctx := context.Background()
	inputBytes := []byte("self-audit fixture: docket proves its own pipeline\n")
	meta, err := store.Put(ctx, inputBytes, artifact.PutRequest{
		ContentType:       "text/plain",
		Classification:    schema.ClassInternal,
		LogicalRole:       schema.RoleInput,
		RetentionPolicyID: "default",
	})
	if err != nil {
		return fail(err)
	}

	manifestInputs := []schema.ManifestArtifactRef{{
		ArtifactID:  meta.ArtifactID,
		SHA256:      meta.SHA256,
		Bytes:       meta.Bytes,
		ContentType: meta.ContentType,
		LogicalRole: meta.LogicalRole,
	}}
	fingerprint, err := run.ManifestInputsFingerprint(manifestInputs)
	if err != nil {
		return fail(err)
	}
	runID, err := run.DeterministicRunID(fingerprint)
	if err != nil {
		return fail(err)
	}

	manager, err := run.NewManager(run.ManagerConfig{Audit: log, Clock: fixed})
	if err != nil {
		return fail(err)
	}
	if err := manager.Begin(run.Run{
		ID:                 runID,
		VaultID:            v.ID(),
		PolicyMode:         policy,
		NetworkMode:        schema.NetworkOffline,
		ProofLevel:         schema.ProofOfflineStrict,
		DeterminismEnabled: true,
	}, run.BeginOptions{
		PackID: "self_audit", PackVersion: version,
		PolicyPackID: "pp_selfaudit", PolicyPackVersion: "1",
	}); err != nil {
		return fail(err)
	}
	if err := manager.RecordVaultEncryptionStatus(v.EncryptionStatusDetails()); err != nil {
		return fail(err)
	}
	if err := manager.RecordPolicyApplied(
		[]string{"citations_required", "redactions_required", "pinning_min_version"},
		map[string]any{"inputs": string(schema.ExportIncludeInputBytes)},
	); err != nil {
		return fail(err)
	}
	if err := manager.BeginIngest("fixture", "builtin:self_audit"); err != nil {
		return fail(err)
	}
	if err := manager.RecordIngested(meta, "builtin:self_audit"); err != nil {
		return fail(err)
	}
	if err := manager.CompleteIngest(1); err != nil {
		return fail(err)
	}

	// Probe the egress gate: the vault is offline, so this must be
	// blocked and recorded.
	gate, err := egress.New(egress.Config{Audit: log, RunID: runID})
	if err != nil {
		return fail(err)
	}
	if err := gate.RecordAllowlist(schema.ActorSystem); err != nil {
		return fail(err)
	}
	decision, err := gate.Request("https://example.com:443/", "self-audit probe", egress.OriginCore, []byte("probe"))
	if err != nil {
		return fail(err)
	}
	if decision.Allowed {
		return fail(fmt.Errorf("offline egress probe was allowed"))
	}

	deliverable := "# Self-Audit\n\n<!-- CLAIM:C0001 -->\nThe self-audit input artifact was ingested and hashed.\n"
	inputs := &bundle.Inputs{
		BundleInfo: schema.BundleInfo{
			BundleVersion: schema.BundleVersion,
			SchemaVersions: schema.SchemaVersions{
				RunManifest:   schema.RunManifestVersion,
				EvalReport:    schema.EvalReportVersion,
				CitationsMap:  schema.LocatorSchemaVersion,
				RedactionsMap: schema.RedactionSchemaVersion,
			},
			Canonicalization: schema.CanonicalizationID,
			PackID:           "self_audit",
			PackVersion:      version,
			CoreBuild:        version,
			RunID:            runID,
		},
		RunManifest: schema.RunManifest{
			RunID:   runID,
			VaultID: v.ID(),
			Determinism: schema.DeterminismManifest{
				Enabled:                   true,
				ManifestInputsFingerprint: fingerprint,
			},
			Inputs:     manifestInputs,
			Outputs:    []schema.ManifestOutputRef{},
			ModelCalls: []schema.ModelCallSummary{},
		},
		ArtifactList: schema.ArtifactList{Artifacts: []schema.ArtifactListEntry{meta.ListEntry()}},
		PolicySnapshot: schema.PolicySnapshot{
			PolicyMode:          policy,
			Determinism:         schema.DeterminismPolicy{Enabled: true},
			ExportProfile:       schema.ExportProfile{Inputs: schema.ExportIncludeInputBytes},
			EncryptionAtRest:    true,
			EncryptionAlgorithm: schema.AlgXChaCha20Poly1305,
		},
		NetworkSnapshot: gate.Snapshot(nil),
		ModelSnapshot:   modelpin.Snapshot("none", "0", "http://127.0.0.1:0", "no-ai", hex.EncodeToString(make([]byte, 32))),
		PackID:          "self_audit",
		PackVersion:     version,
		Deliverables: []bundle.Deliverable{{
			Name: "self_audit.md", Bytes: []byte(deliverable), ContentType: "text/markdown",
		}},
		Attachments: schema.PackAttachments{
			TemplatesUsed: map[string]any{"self_audit.md": "tpl_self_audit_v1"},
			CitationsMap: &schema.CitationsMap{
				SchemaVersion: schema.LocatorSchemaVersion,
				Claims: []schema.Claim{{
					ClaimID:            "C0001",
					OutputPath:         "exports/self_audit/deliverables/self_audit.md",
					OutputClaimLocator: "L1",
					Citations: []schema.Citation{{
						CitationIndex: 0,
						ArtifactID:    meta.ArtifactID,
						LocatorType:   schema.LocatorTextLineRange,
						Locator:       schema.Locator{StartLine: 1, EndLine: 1},
					}},
				}},
			},
			RedactionsMap: &schema.RedactionsMap{
				SchemaVersion: schema.RedactionSchemaVersion,
				Artifacts:     []schema.ArtifactRedactions{},
			},
		},
		InputBytes: map[string][]byte{meta.ArtifactID: inputBytes},
	}

	outPath := filepath.Join(workDir, bundle.BundleFileName(runID))
	outcome, err := manager.Export(ctx, run.ExportArgs{
		RequestedBy: schema.ActorUser,
		Inputs:      inputs,
		StagingDir:  v.StagingPath(),
		OutPath:     outPath,
	})
	if err != nil {
		return fail(err)
	}
	if outcome.Status != "COMPLETED" {
		reason := ""
		if outcome.BlockReason != nil {
			reason = string(*outcome.BlockReason)
		}
		fmt.Fprintf(os.Stderr, "error: self-audit export %s (%s)\n", outcome.Status, reason)
		return "", "", 1
	}
	return outcome.BundleSHA256, outcome.BundlePath, 0
}

// extractAuditStream pulls audit_log.ndjson out of a bundle for the
// egress-hygiene gate. Best effort: a missing stream yields nil, and
// the chain check will have caught it already.
func extractAuditStream(bundleZip string) []byte {
	reader, err := zip.OpenReader(bundleZip)
	if err != nil {
		return nil
	}
	defer reader.Close()
	for _, file := range reader.File {
		if file.Name != "audit_log.ndjson" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
