// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Versions of the documents inside an Evidence Bundle. These are wire
// constants: the bundle validator rejects anything else.
const (
	BundleVersion          = "1.0.0"
	BundleVersionName      = "EVIDENCE_BUNDLE_V1"
	RunManifestVersion     = "RUN_MANIFEST_V1"
	EvalReportVersion      = "EVAL_REPORT_V1"
	CanonicalizationID     = "DOCKET_CANONICAL_JSON_V1"
	GateRegistryVersion    = "gates_registry_v3"
	BundleValidatorVersion = "bundle_validator_v3"
)

// BundleInfo is BUNDLE_INFO.json.
type BundleInfo struct {
	BundleVersion    string         `json:"bundle_version"`
	SchemaVersions   SchemaVersions `json:"schema_versions"`
	Canonicalization string         `json:"canonicalization"`
	PackID           string         `json:"pack_id"`
	PackVersion      string         `json:"pack_version"`
	CoreBuild        string         `json:"core_build"`
	RunID            string         `json:"run_id"`
}

// SchemaVersions pins the schema of every versioned document in the
// bundle.
type SchemaVersions struct {
	RunManifest   string `json:"run_manifest"`
	EvalReport    string `json:"eval_report"`
	CitationsMap  string `json:"citations_map"`
	RedactionsMap string `json:"redactions_map"`
}

// RunManifest is run_manifest.json.
type RunManifest struct {
	RunID       string               `json:"run_id"`
	VaultID     string               `json:"vault_id"`
	Determinism DeterminismManifest  `json:"determinism"`
	Inputs      []ManifestArtifactRef `json:"inputs"`
	Outputs     []ManifestOutputRef  `json:"outputs"`
	ModelCalls  []ModelCallSummary   `json:"model_calls"`
	Eval        EvalSummary          `json:"eval"`
}

// DeterminismManifest records whether the run claimed determinism and
// the fingerprint its run_id derives from.
type DeterminismManifest struct {
	Enabled                   bool   `json:"enabled"`
	ManifestInputsFingerprint string `json:"manifest_inputs_fingerprint"`
}

// ManifestArtifactRef is one input artifact reference in the manifest.
type ManifestArtifactRef struct {
	ArtifactID  string      `json:"artifact_id"`
	SHA256      string      `json:"sha256"`
	Bytes       int64       `json:"bytes"`
	ContentType string      `json:"content_type"`
	LogicalRole LogicalRole `json:"logical_role"`
}

// ManifestOutputRef is one produced output in the manifest.
type ManifestOutputRef struct {
	Path        string      `json:"path"`
	SHA256      string      `json:"sha256"`
	Bytes       int64       `json:"bytes"`
	ContentType string      `json:"content_type"`
	LogicalRole LogicalRole `json:"logical_role"`
}

// ModelCallSummary is one model invocation as recorded in the
// manifest.
type ModelCallSummary struct {
	CallID         string `json:"call_id"`
	ModelID        string `json:"model_id"`
	AdapterVersion string `json:"adapter_version"`
	Status         string `json:"status"`
	InputHash      string `json:"input_hash"`
	OutputHash     string `json:"output_hash"`
}

// EvalSummary is the manifest's one-line gate outcome.
type EvalSummary struct {
	GateStatus GateStatus `json:"gate_status"`
}

// PolicySnapshot is inputs_snapshot/policy_snapshot.json.
type PolicySnapshot struct {
	PolicyMode          PolicyMode          `json:"policy_mode"`
	Determinism         DeterminismPolicy   `json:"determinism"`
	ExportProfile       ExportProfile       `json:"export_profile"`
	EncryptionAtRest    bool                `json:"encryption_at_rest"`
	EncryptionAlgorithm EncryptionAlgorithm `json:"encryption_algorithm"`
}

// DeterminismPolicy is the determinism section of the policy
// snapshot.
type DeterminismPolicy struct {
	Enabled                 bool `json:"enabled"`
	PDFDeterminismEnabled   bool `json:"pdf_determinism_enabled"`
}

// ExportProfile selects the input export mode.
type ExportProfile struct {
	Inputs InputExportProfile `json:"inputs"`
}

// ArtifactListEntry is one artifact in
// inputs_snapshot/artifact_list.json.
type ArtifactListEntry struct {
	ArtifactID        string         `json:"artifact_id"`
	SHA256            string         `json:"sha256"`
	Bytes             int64          `json:"bytes"`
	ContentType       string         `json:"content_type"`
	LogicalRole       LogicalRole    `json:"logical_role"`
	Classification    Classification `json:"classification"`
	Tags              []Tag          `json:"tags"`
	RetentionPolicyID string         `json:"retention_policy_id"`
}

// Sensitive reports whether the entry requires redaction coverage
// when cited under Strict policy.
func (e *ArtifactListEntry) Sensitive() bool {
	if e.Classification == ClassRestricted {
		return true
	}
	for _, tag := range e.Tags {
		if tag.Sensitive() {
			return true
		}
	}
	return false
}

// ArtifactList is inputs_snapshot/artifact_list.json.
type ArtifactList struct {
	Artifacts []ArtifactListEntry `json:"artifacts"`
}

// EvalReport is eval_report.json.
type EvalReport struct {
	OverallStatus   GateStatus       `json:"overall_status"`
	Gates           []EvalGateResult `json:"gates"`
	RegistryVersion string           `json:"registry_version"`
}

// EvalGateResult is one gate outcome in the eval report.
type EvalGateResult struct {
	GateID           string       `json:"gate_id"`
	Category         string       `json:"category"`
	Status           GateStatus   `json:"status"`
	Severity         GateSeverity `json:"severity"`
	Message          string       `json:"message"`
	EvidencePointers []string     `json:"evidence_pointers"`
}

// NetworkSnapshot is inputs_snapshot/network_snapshot.json.
type NetworkSnapshot struct {
	NetworkMode           NetworkMode               `json:"network_mode"`
	ProofLevel            ProofLevel                `json:"proof_level"`
	Allowlist             []AllowlistEntry          `json:"allowlist"`
	UIRemoteFetchDisabled bool                      `json:"ui_remote_fetch_disabled"`
	AdapterEndpoints      []AdapterEndpointSnapshot `json:"adapter_endpoints"`
}

// AllowlistEntry is one canonicalized egress allowlist rule.
type AllowlistEntry struct {
	Scheme            string `json:"scheme"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	PathPrefix        string `json:"path_prefix,omitempty"`
	Purpose           string `json:"purpose"`
	PolicyPackID      string `json:"policy_pack_id"`
	PolicyPackVersion string `json:"policy_pack_version"`
}

// AdapterEndpointSnapshot records one adapter endpoint and whether it
// passed loopback validation.
type AdapterEndpointSnapshot struct {
	Endpoint        string `json:"endpoint"`
	IsLoopback      bool   `json:"is_loopback"`
	ValidationError string `json:"validation_error,omitempty"`
}

// ModelSnapshot is inputs_snapshot/model_snapshot.json.
type ModelSnapshot struct {
	AdapterID       string       `json:"adapter_id"`
	AdapterVersion  string       `json:"adapter_version"`
	AdapterEndpoint string       `json:"adapter_endpoint"`
	ModelID         string       `json:"model_id"`
	ModelSHA256     string       `json:"model_sha256,omitempty"`
	PinningLevel    PinningLevel `json:"pinning_level"`
}

// PackAttachments carries the attachment documents a pack hands to
// the bundle builder. Citations and redactions are optional; the
// policy decides whether their absence blocks export.
type PackAttachments struct {
	TemplatesUsed map[string]any
	CitationsMap  *CitationsMap
	RedactionsMap *RedactionsMap
}
