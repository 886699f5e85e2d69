// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/docket-foundation/docket/lib/artifact"
	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/runtime"
	"github.com/docket-foundation/docket/lib/schema"
)

// ManagerConfig holds the parameters for constructing a Manager.
type ManagerConfig struct {
	// Audit is the vault's audit log. Required.
	Audit *audit.Log

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// BeginOptions carries the RUN_CREATED payload.
type BeginOptions struct {
	PackID            string
	PackVersion       string
	PolicyPackID      string
	PolicyPackVersion string
}

// Manager owns one run record and drives it through the lifecycle.
type Manager struct {
	auditLog *audit.Log
	clock    clock.Clock
	logger   *slog.Logger
	run      Run
	active   bool
}

// NewManager constructs a Manager with no active run.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Audit == nil {
		return nil, fmt.Errorf("run: audit log is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{auditLog: cfg.Audit, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Run returns a copy of the current run record.
func (m *Manager) Run() Run { return m.run }

// Begin creates the run record in state CREATED and records
// RUN_CREATED. The run-wide timestamp is captured here.
func (m *Manager) Begin(record Run, opts BeginOptions) error {
	if m.active && !m.run.State.Terminal() {
		return fmt.Errorf("run: manager already owns active run %s", m.run.ID)
	}
	if record.ID == "" || record.VaultID == "" {
		return fmt.Errorf("run: run id and vault id are required")
	}
	record.State = schema.RunCreated
	if record.GeneratedAt.IsZero() {
		record.GeneratedAt = m.clock.Now()
	}
	m.run = record
	m.active = true

	_, err := m.auditLog.Append(schema.EventRunCreated, record.ID, schema.ActorSystem, map[string]any{
		"pack_id":             opts.PackID,
		"pack_version":        opts.PackVersion,
		"policy_pack_id":      opts.PolicyPackID,
		"policy_pack_version": opts.PolicyPackVersion,
		"determinism_enabled": record.DeterminismEnabled,
	})
	if err != nil {
		return err
	}
	m.logger.Info("run created", "run_id", record.ID, "policy_mode", string(record.PolicyMode))
	return nil
}

// BeginIngest transitions to INGESTING and records the source.
func (m *Manager) BeginIngest(sourceType, sourceRef string) error {
	if err := m.transition(schema.RunIngesting, "ingest started"); err != nil {
		return err
	}
	_, err := m.auditLog.Append(schema.EventArtifactIngestStarted, m.run.ID, schema.ActorSystem, map[string]any{
		"source_type": sourceType,
		"source_ref":  sourceRef,
	})
	return err
}

// RecordIngested records one stored artifact.
func (m *Manager) RecordIngested(meta artifact.Metadata, originPath string) error {
	_, err := m.auditLog.Append(schema.EventArtifactIngested, m.run.ID, schema.ActorSystem, map[string]any{
		"artifact_id":            meta.ArtifactID,
		"artifact_sha256":        meta.SHA256,
		"content_type":           meta.ContentType,
		"size_bytes":             meta.Bytes,
		"origin_path":            originPath,
		"ingest_transformations": []string{},
	})
	return err
}

// CompleteIngest transitions to READY.
func (m *Manager) CompleteIngest(artifactCount int) error {
	if _, err := m.auditLog.Append(schema.EventArtifactIngestCompleted, m.run.ID, schema.ActorSystem, map[string]any{
		"artifact_count": artifactCount,
	}); err != nil {
		return err
	}
	return m.transition(schema.RunReady, "ingest completed")
}

// MarkReady transitions CREATED → READY directly, for runs whose
// inputs were ingested by an earlier run.
func (m *Manager) MarkReady() error {
	return m.transition(schema.RunReady, "inputs already present")
}

// BeginExecution transitions to EXECUTING. Pack processing happens
// outside the manager while the run sits in this state.
func (m *Manager) BeginExecution() error {
	return m.transition(schema.RunExecuting, "pack execution started")
}

// RecordPolicyApplied records the POLICY_APPLIED event.
func (m *Manager) RecordPolicyApplied(rulesEnabled []string, exportRequirements map[string]any) error {
	if exportRequirements == nil {
		exportRequirements = map[string]any{}
	}
	if rulesEnabled == nil {
		rulesEnabled = []string{}
	}
	_, err := m.auditLog.Append(schema.EventPolicyApplied, m.run.ID, schema.ActorSystem, map[string]any{
		"policy_mode":         string(m.run.PolicyMode),
		"rules_enabled":       rulesEnabled,
		"export_requirements": exportRequirements,
	})
	return err
}

// RecordVaultEncryptionStatus records the vault's encryption posture
// for this run. details comes from vault.EncryptionStatusDetails.
func (m *Manager) RecordVaultEncryptionStatus(details map[string]any) error {
	_, err := m.auditLog.Append(schema.EventVaultEncryptionStatus, m.run.ID, schema.ActorSystem, details)
	return err
}

// RecordDeletion records an explicit artifact deletion.
func (m *Manager) RecordDeletion(artifactIDs []string, requestedBy schema.Actor, method schema.DeletionMethod) error {
	if _, err := m.auditLog.Append(schema.EventDeletionRequested, m.run.ID, requestedBy, map[string]any{
		"artifact_ids": artifactIDs,
		"requested_by": string(requestedBy),
	}); err != nil {
		return err
	}
	_, err := m.auditLog.Append(schema.EventDeletionCompleted, m.run.ID, schema.ActorSystem, map[string]any{
		"artifact_ids_deleted":        artifactIDs,
		"blob_delete_method":          string(method),
		"sqlite_compaction_attempted": false,
		"result":                      "OK",
	})
	return err
}

// Cancel transitions the run to CANCELLED with a recorded reason.
// No-op error if the run is already terminal.
func (m *Manager) Cancel(reason string) error {
	if m.run.State.Terminal() {
		return runtime.New(runtime.KindWorkflowTransition, "run %s already terminal in state %s", m.run.ID, m.run.State)
	}
	if err := m.transition(schema.RunCancelled, reason); err != nil {
		return err
	}
	_, err := m.auditLog.Append(schema.EventRunCancelled, m.run.ID, schema.ActorSystem, map[string]any{
		"reason": reason,
	})
	return err
}

// transition validates and performs a state change, recording
// RUN_STATE_CHANGED. Invalid edges are WorkflowTransitionErrors.
func (m *Manager) transition(to schema.RunState, reason string) error {
	from := m.run.State
	if !ValidTransition(from, to) {
		return runtime.New(runtime.KindWorkflowTransition, "invalid run state transition %s -> %s", from, to)
	}
	if _, err := m.auditLog.Append(schema.EventRunStateChanged, m.run.ID, schema.ActorSystem, map[string]any{
		"from_state": string(from),
		"to_state":   string(to),
		"reason":     reason,
	}); err != nil {
		return err
	}
	m.run.State = to
	m.logger.Debug("run state changed", "run_id", m.run.ID, "from", string(from), "to", string(to))
	return nil
}
