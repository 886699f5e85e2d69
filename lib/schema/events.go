// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
)

// ZeroHash is the prev_event_hash of the first event in a chain.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEvent is the closed audit envelope. The top-level key set is
// exactly these eight fields; writer-supplied extras live only under
// details["meta"].
type AuditEvent struct {
	TsUTC         string         `json:"ts_utc"`
	EventType     EventType      `json:"event_type"`
	RunID         string         `json:"run_id"`
	VaultID       string         `json:"vault_id"`
	Actor         Actor          `json:"actor"`
	Details       map[string]any `json:"details"`
	PrevEventHash string         `json:"prev_event_hash"`
	EventHash     string         `json:"event_hash"`
}

// EnvelopeKeys is the closed top-level key set of an audit event line.
var EnvelopeKeys = []string{
	"ts_utc", "event_type", "run_id", "vault_id",
	"actor", "details", "prev_event_hash", "event_hash",
}

// EventType is a member of the closed audit event taxonomy.
type EventType string

// The taxonomy, grouped by family. Family order matters: it is the
// tie-break priority for events sharing a timestamp.
const (
	// Run lifecycle.
	EventRunCreated      EventType = "RUN_CREATED"
	EventRunStateChanged EventType = "RUN_STATE_CHANGED"
	EventRunCompleted    EventType = "RUN_COMPLETED"
	EventRunFailed       EventType = "RUN_FAILED"
	EventRunCancelled    EventType = "RUN_CANCELLED"

	// Policy and network.
	EventPolicyApplied         EventType = "POLICY_APPLIED"
	EventNetworkModeSet        EventType = "NETWORK_MODE_SET"
	EventAllowlistUpdated      EventType = "ALLOWLIST_UPDATED"
	EventEgressRequestAllowed  EventType = "EGRESS_REQUEST_ALLOWED"
	EventEgressRequestBlocked  EventType = "EGRESS_REQUEST_BLOCKED"
	EventDeterminismProfileSet EventType = "DETERMINISM_PROFILE_SET"
	EventDeterminismDowngraded EventType = "DETERMINISM_DOWNGRADED"

	// Ingest.
	EventArtifactIngestStarted   EventType = "ARTIFACT_INGEST_STARTED"
	EventArtifactIngested        EventType = "ARTIFACT_INGESTED"
	EventArtifactIngestCompleted EventType = "ARTIFACT_INGEST_COMPLETED"

	// Model.
	EventModelSelectionResolved EventType = "MODEL_SELECTION_RESOLVED"
	EventModelCallStarted       EventType = "MODEL_CALL_STARTED"
	EventModelCallCompleted     EventType = "MODEL_CALL_COMPLETED"
	EventModelCallFailed        EventType = "MODEL_CALL_FAILED"
	EventNoAIModeUsed           EventType = "NO_AI_MODE_USED"

	// Evaluation.
	EventEvalStarted               EventType = "EVAL_STARTED"
	EventEvalGateResult            EventType = "EVAL_GATE_RESULT"
	EventEvalCompleted             EventType = "EVAL_COMPLETED"
	EventRedactionApplied          EventType = "REDACTION_APPLIED"
	EventRedactionValidationResult EventType = "REDACTION_VALIDATION_RESULT"
	EventCitationValidationResult  EventType = "CITATION_VALIDATION_RESULT"
	EventDeterminismValidation     EventType = "DETERMINISM_VALIDATION_RESULT"

	// Export.
	EventExportRequested EventType = "EXPORT_REQUESTED"
	EventExportBlocked   EventType = "EXPORT_BLOCKED"
	EventExportCompleted EventType = "EXPORT_COMPLETED"
	EventExportFailed    EventType = "EXPORT_FAILED"

	// Bundle.
	EventBundleGenerationStarted   EventType = "BUNDLE_GENERATION_STARTED"
	EventBundleGenerationCompleted EventType = "BUNDLE_GENERATION_COMPLETED"
	EventBundleValidationStarted   EventType = "BUNDLE_VALIDATION_STARTED"
	EventBundleValidationResult    EventType = "BUNDLE_VALIDATION_RESULT"

	// Vault crypto and deletion.
	EventVaultEncryptionStatus EventType = "VAULT_ENCRYPTION_STATUS"
	EventVaultKeyRotated       EventType = "VAULT_KEY_ROTATED"
	EventDeletionRequested     EventType = "DELETION_REQUESTED"
	EventDeletionCompleted     EventType = "DELETION_COMPLETED"
)

// requiredDetailKeys maps each event type to the detail keys the
// taxonomy requires. Types absent from the map require none.
var requiredDetailKeys = map[EventType][]string{
	EventRunCreated:      {"pack_id", "pack_version", "policy_pack_id", "policy_pack_version", "determinism_enabled"},
	EventRunStateChanged: {"from_state", "to_state", "reason"},
	EventPolicyApplied:   {"policy_mode", "rules_enabled", "export_requirements"},
	EventNetworkModeSet:  {"network_mode", "proof_level", "ui_remote_fetch_disabled"},
	EventAllowlistUpdated: {"allowlist_hash_sha256", "allowlist_count"},

	EventArtifactIngestStarted:   {"source_type", "source_ref"},
	EventArtifactIngested:        {"artifact_id", "artifact_sha256", "content_type", "size_bytes", "origin_path", "ingest_transformations"},
	EventArtifactIngestCompleted: {"artifact_count"},

	EventModelSelectionResolved: {"task_type", "selected_model_id", "pinning_level", "adapter_id", "adapter_endpoint"},
	EventModelCallStarted:       {"call_id", "task_type", "input_artifact_refs", "request_hash_sha256", "timeout_ms"},
	EventModelCallCompleted:     {"call_id", "response_hash_sha256", "duration_ms"},
	EventModelCallFailed:        {"call_id", "error_category", "error_code", "error_message_redacted"},
	EventNoAIModeUsed:           {"reason", "affected_tasks"},

	EventEgressRequestAllowed: {"destination", "allowlist_rule_id", "request_hash_sha256"},
	EventEgressRequestBlocked: {"destination", "block_reason", "request_hash_sha256"},

	EventRedactionApplied:          {"artifact_id", "redaction_type", "region", "reason", "policy_rule_id"},
	EventRedactionValidationResult: {"result", "missing_required_redactions"},
	EventCitationValidationResult:  {"result", "claims_total", "claims_missing_citations", "locator_schema_version"},

	EventEvalStarted:    {"registry_version"},
	EventEvalGateResult: {"gate_id", "result", "severity", "evidence_pointers", "message"},
	EventEvalCompleted:  {"gates_executed", "gates_failed_blocker", "gates_failed_total"},

	EventExportRequested: {"requested_by", "export_targets", "policy_mode"},
	EventExportBlocked:   {"block_reason", "failed_gate_ids"},
	EventExportCompleted: {"bundle_path", "bundle_sha256", "bundle_version", "validator_result"},

	EventBundleValidationResult: {"result", "failed_checks", "validator_version"},

	EventVaultEncryptionStatus: {"encryption_at_rest", "algorithm", "key_storage"},
	EventVaultKeyRotated:       {"old_key_id", "new_key_id"},
	EventDeletionRequested:     {"artifact_ids", "requested_by"},
	EventDeletionCompleted:     {"artifact_ids_deleted", "blob_delete_method", "sqlite_compaction_attempted", "result"},
}

// familyPriority orders event families for same-timestamp tie-breaks:
// run/state > policy/network > ingest > model > eval > export >
// bundle > vault/deletion.
var familyPriority = map[EventType]int{}

func init() {
	families := [][]EventType{
		{EventRunCreated, EventRunStateChanged, EventRunCompleted, EventRunFailed, EventRunCancelled},
		{EventPolicyApplied, EventNetworkModeSet, EventAllowlistUpdated,
			EventEgressRequestAllowed, EventEgressRequestBlocked,
			EventDeterminismProfileSet, EventDeterminismDowngraded},
		{EventArtifactIngestStarted, EventArtifactIngested, EventArtifactIngestCompleted},
		{EventModelSelectionResolved, EventModelCallStarted, EventModelCallCompleted,
			EventModelCallFailed, EventNoAIModeUsed},
		{EventEvalStarted, EventEvalGateResult, EventEvalCompleted,
			EventRedactionApplied, EventRedactionValidationResult,
			EventCitationValidationResult, EventDeterminismValidation},
		{EventExportRequested, EventExportBlocked, EventExportCompleted, EventExportFailed},
		{EventBundleGenerationStarted, EventBundleGenerationCompleted,
			EventBundleValidationStarted, EventBundleValidationResult},
		{EventVaultEncryptionStatus, EventVaultKeyRotated,
			EventDeletionRequested, EventDeletionCompleted},
	}
	for priority, family := range families {
		for _, eventType := range family {
			familyPriority[eventType] = priority
		}
	}
}

// Valid reports whether t is a member of the closed taxonomy.
func (t EventType) Valid() bool {
	_, ok := familyPriority[t]
	return ok
}

// FamilyPriority returns the tie-break priority of t's family (lower
// sorts first). Unknown types sort last.
func (t EventType) FamilyPriority() int {
	if priority, ok := familyPriority[t]; ok {
		return priority
	}
	return len(familyPriority)
}

// ValidateEventDetails checks that details carries every key the
// taxonomy requires for eventType.
func ValidateEventDetails(eventType EventType, details map[string]any) error {
	if !eventType.Valid() {
		return fmt.Errorf("unknown event_type %q", eventType)
	}
	for _, key := range requiredDetailKeys[eventType] {
		if _, ok := details[key]; !ok {
			return fmt.Errorf("event %s missing details.%s", eventType, key)
		}
	}
	return nil
}

// SortEvents orders events for writing: by ts_utc, then family
// priority, then details.meta.event_id when present, then stable
// insertion order.
func SortEvents(events []AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.TsUTC != b.TsUTC {
			return a.TsUTC < b.TsUTC
		}
		if pa, pb := a.EventType.FamilyPriority(), b.EventType.FamilyPriority(); pa != pb {
			return pa < pb
		}
		ida, idb := metaEventID(a.Details), metaEventID(b.Details)
		if ida != "" && idb != "" && ida != idb {
			return ida < idb
		}
		return false
	})
}

func metaEventID(details map[string]any) string {
	meta, ok := details["meta"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := meta["event_id"].(string)
	return id
}
