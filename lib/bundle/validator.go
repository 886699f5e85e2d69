// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/citation"
	policypkg "github.com/docket-foundation/docket/lib/policy"
	"github.com/docket-foundation/docket/lib/redaction"
	"github.com/docket-foundation/docket/lib/schema"
)

// CheckResult is one checklist entry.
type CheckResult struct {
	CheckID  string              `json:"check_id"`
	Severity schema.GateSeverity `json:"severity"`
	Result   schema.GateStatus   `json:"result"`
	Message  string              `json:"message"`
}

// ValidationSummary is the validator's structured output. Validators
// never write to the audit log; callers record the summary.
type ValidationSummary struct {
	ChecklistVersion string            `json:"checklist_version"`
	Policy           schema.PolicyMode `json:"policy"`
	Overall          schema.GateStatus `json:"overall"`
	Checks           []CheckResult     `json:"checks"`
}

// ResultFor returns the result and message of one check. A missing
// check reads as FAIL — the checklist is closed, so absence is a
// validator defect, not a pass.
func (s *ValidationSummary) ResultFor(checkID string) (schema.GateStatus, string) {
	for _, check := range s.Checks {
		if check.CheckID == checkID {
			return check.Result, check.Message
		}
	}
	return schema.StatusFail, fmt.Sprintf("missing check result for %s", checkID)
}

// ResultForPrefix folds every check sharing a prefix: FAIL if any
// failed.
func (s *ValidationSummary) ResultForPrefix(prefix string) (schema.GateStatus, string) {
	for _, check := range s.Checks {
		if strings.HasPrefix(check.CheckID, prefix) && check.Result == schema.StatusFail {
			return schema.StatusFail, fmt.Sprintf("one or more %s checks failed", prefix)
		}
	}
	return schema.StatusPass, "ok"
}

// FailedCheckIDs lists the check ids that did not pass.
func (s *ValidationSummary) FailedCheckIDs() []string {
	var failed []string
	for _, check := range s.Checks {
		if check.Result == schema.StatusFail {
			failed = append(failed, check.CheckID)
		}
	}
	return failed
}

// source is the validator's view of a bundle: file contents plus the
// archive metadata when validating a ZIP.
type source struct {
	files    map[string][]byte
	zipFiles []*zip.File
	comment  string
}

// ValidateZip runs the full checklist against a produced bundle ZIP.
func ValidateZip(zipPath string, policy schema.PolicyMode) (*ValidationSummary, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("bundle: opening %s: %w", zipPath, err)
	}
	defer reader.Close()

	src := &source{files: map[string][]byte{}, comment: reader.Comment}
	for _, file := range reader.File {
		src.zipFiles = append(src.zipFiles, file)
		if strings.HasSuffix(file.Name, "/") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("bundle: opening entry %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("bundle: reading entry %s: %w", file.Name, err)
		}
		src.files[file.Name] = content
	}
	return validate(src, policy), nil
}

// ValidateDir runs the checklist against a staging tree, before
// packaging. Archive-shape rules (entry order, timestamps, modes)
// have nothing to inspect yet and report PASS with the message
// "not applicable".
func ValidateDir(rootDir string, policy schema.PolicyMode) (*ValidationSummary, error) {
	src := &source{files: map[string][]byte{}}
	err := filepath.WalkDir(rootDir, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(rootDir, absPath)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			return err
		}
		src.files[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: reading staging tree: %w", err)
	}
	return validate(src, policy), nil
}

func validate(src *source, policy schema.PolicyMode) *ValidationSummary {
	checks := []CheckResult{
		checkRequiredFiles(src),
		checkExportsLayout(src),
		checkDraftLabel(src, policy),
		checkNetworkSnapshot(src),
		checkAuditChain(src),
		checkArtifactHashes(src),
		checkModelPinning(src, policy),
		checkCitations(src, policy),
		checkRedactions(src, policy),
		checkEvalReport(src),
		checkZipDeterminism(src),
		checkVaultCrypto(src),
	}

	overall := schema.StatusPass
	for _, check := range checks {
		if check.Severity == schema.SeverityBlocker && check.Result == schema.StatusFail {
			overall = schema.StatusFail
			break
		}
	}
	return &ValidationSummary{
		ChecklistVersion: schema.BundleValidatorVersion,
		Policy:           policy,
		Overall:          overall,
		Checks:           checks,
	}
}

func pass(checkID string) CheckResult {
	return CheckResult{CheckID: checkID, Severity: schema.SeverityBlocker, Result: schema.StatusPass, Message: "ok"}
}

func fail(checkID, message string) CheckResult {
	return CheckResult{CheckID: checkID, Severity: schema.SeverityBlocker, Result: schema.StatusFail, Message: message}
}

func checkRequiredFiles(src *source) CheckResult {
	required := []string{
		"BUNDLE_INFO.json",
		"run_manifest.json",
		"audit_log.ndjson",
		"eval_report.json",
		"artifact_hashes.csv",
		"inputs_snapshot/artifact_list.json",
		"inputs_snapshot/policy_snapshot.json",
		"inputs_snapshot/network_snapshot.json",
		"inputs_snapshot/model_snapshot.json",
	}
	var missing []string
	for _, name := range required {
		if _, ok := src.files[name]; !ok {
			missing = append(missing, name)
		}
	}
	hasExports := false
	for name := range src.files {
		if strings.HasPrefix(name, "exports/") {
			hasExports = true
			break
		}
	}
	if !hasExports {
		missing = append(missing, "exports/")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fail("CHK.BUNDLE.REQUIRED_FILES", "missing: "+strings.Join(missing, ", "))
	}
	return pass("CHK.BUNDLE.REQUIRED_FILES")
}

func checkExportsLayout(src *source) CheckResult {
	for name := range src.files {
		if strings.HasPrefix(name, "exports/") && strings.HasSuffix(name, "attachments/templates_used.json") {
			return pass("CHK.EXPORTS.ATTACHMENTS_LAYOUT")
		}
	}
	return fail("CHK.EXPORTS.ATTACHMENTS_LAYOUT", "missing templates_used.json under exports/*/attachments/")
}

// checkDraftLabel enforces the DraftOnly output labeling: every
// Markdown deliverable must open with the draft marker so a draft
// bundle cannot be mistaken for a reviewed export.
func checkDraftLabel(src *source, mode schema.PolicyMode) CheckResult {
	const checkID = "CHK.EXPORTS.DRAFT_LABEL"
	if !policypkg.DraftLabelRequired(mode) {
		return CheckResult{CheckID: checkID, Severity: schema.SeverityBlocker, Result: schema.StatusPass, Message: "not applicable"}
	}
	var unlabeled []string
	for name, content := range src.files {
		if !strings.HasPrefix(name, "exports/") || !strings.Contains(name, "/deliverables/") ||
			!strings.HasSuffix(name, ".md") {
			continue
		}
		if !bytes.Contains(content, []byte(policypkg.DraftLabel)) {
			unlabeled = append(unlabeled, name)
		}
	}
	if len(unlabeled) > 0 {
		sort.Strings(unlabeled)
		return fail(checkID, "deliverables missing draft label: "+strings.Join(unlabeled, ", "))
	}
	return pass(checkID)
}

func checkNetworkSnapshot(src *source) CheckResult {
	const checkID = "CHK.NETWORK.SNAPSHOT_PRESENT"
	raw, ok := src.files["inputs_snapshot/network_snapshot.json"]
	if !ok {
		return fail(checkID, "missing inputs_snapshot/network_snapshot.json")
	}
	var document map[string]json.RawMessage
	if err := json.Unmarshal(raw, &document); err != nil {
		return fail(checkID, fmt.Sprintf("invalid JSON: %v", err))
	}
	var missing []string
	for _, field := range []string{"network_mode", "proof_level", "allowlist", "ui_remote_fetch_disabled", "adapter_endpoints"} {
		if _, ok := document[field]; !ok {
			missing = append(missing, field)
		}
	}
	var snapshot schema.NetworkSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fail(checkID, fmt.Sprintf("invalid snapshot: %v", err))
	}
	if !snapshot.UIRemoteFetchDisabled {
		missing = append(missing, "ui_remote_fetch_disabled=true")
	}
	for index, endpoint := range snapshot.AdapterEndpoints {
		if !endpoint.IsLoopback {
			missing = append(missing, fmt.Sprintf("adapter_endpoints[%d].is_loopback=true", index))
		}
	}
	if len(missing) > 0 {
		return fail(checkID, "missing fields: "+strings.Join(missing, ", "))
	}
	return pass(checkID)
}

func checkAuditChain(src *source) CheckResult {
	const checkID = "CHK.AUDIT.REQUIRED_KEYS_AND_CHAIN"
	raw, ok := src.files["audit_log.ndjson"]
	if !ok {
		return fail(checkID, "missing audit_log.ndjson")
	}
	count, err := audit.Verify(bytes.NewReader(raw))
	if err != nil {
		return fail(checkID, err.Error())
	}
	if count == 0 {
		// A zero-length chain is legal only for a run that never
		// entered EVALUATING; an eval report with gate entries
		// proves it did.
		var report schema.EvalReport
		if reportRaw, ok := src.files["eval_report.json"]; ok {
			if err := json.Unmarshal(reportRaw, &report); err == nil && len(report.Gates) > 0 {
				return fail(checkID, "empty audit log for a run that executed gates")
			}
		}
	}
	return pass(checkID)
}

func checkArtifactHashes(src *source) CheckResult {
	const checkID = "CHK.ARTIFACT_HASHES.VERIFY"
	raw, ok := src.files["artifact_hashes.csv"]
	if !ok {
		return fail(checkID, "missing artifact_hashes.csv")
	}
	rows, err := ParseHashCSV(raw)
	if err != nil {
		return fail(checkID, err.Error())
	}

	var policySnapshot schema.PolicySnapshot
	if policyRaw, ok := src.files["inputs_snapshot/policy_snapshot.json"]; ok {
		if err := json.Unmarshal(policyRaw, &policySnapshot); err != nil {
			return fail(checkID, fmt.Sprintf("invalid policy_snapshot: %v", err))
		}
	}
	includeInputs := policySnapshot.ExportProfile.Inputs == schema.ExportIncludeInputBytes

	recorded := map[string]bool{}
	for _, row := range rows {
		recorded[row.BundleRelPath] = true
		content, ok := src.files[row.BundleRelPath]
		if !ok {
			return fail(checkID, fmt.Sprintf("missing path listed in csv: %s", row.BundleRelPath))
		}
		if int64(len(content)) != row.Bytes {
			return fail(checkID, fmt.Sprintf("bytes mismatch for %s (recorded %d, found %d)",
				row.BundleRelPath, row.Bytes, len(content)))
		}
		digest := sha256.Sum256(content)
		if hex.EncodeToString(digest[:]) != row.SHA256 {
			return fail(checkID, fmt.Sprintf("sha256 mismatch for %s", row.BundleRelPath))
		}
		if includeInputs && !strings.HasPrefix(row.ArtifactID, "o:") {
			inputPath := path.Join("inputs_snapshot", "artifacts", row.ArtifactID, "bytes")
			if _, ok := src.files[inputPath]; !ok {
				return fail(checkID, fmt.Sprintf("missing input bytes at %s", inputPath))
			}
		}
	}

	// Row count must equal the union of exported files and, when
	// bytes are included, the inputs. With HASH_ONLY, recomputation
	// of input bytes MUST NOT be required — absence is correct.
	for name := range src.files {
		isExport := strings.HasPrefix(name, "exports/")
		isInputBytes := includeInputs && strings.HasPrefix(name, "inputs_snapshot/artifacts/")
		if (isExport || isInputBytes) && !recorded[name] {
			return fail(checkID, fmt.Sprintf("file %s not recorded in artifact_hashes.csv", name))
		}
	}
	return pass(checkID)
}

func checkModelPinning(src *source, policy schema.PolicyMode) CheckResult {
	const checkID = "CHK.MODEL.PINNING_LEVEL"
	raw, ok := src.files["inputs_snapshot/model_snapshot.json"]
	if !ok {
		return fail(checkID, "missing inputs_snapshot/model_snapshot.json")
	}
	var snapshot schema.ModelSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fail(checkID, fmt.Sprintf("invalid model_snapshot: %v", err))
	}
	sufficient := false
	switch policy {
	case schema.PolicyStrict, schema.PolicyBalanced:
		sufficient = snapshot.PinningLevel == schema.PinCrypto || snapshot.PinningLevel == schema.PinVersion
	case schema.PolicyDraftOnly:
		sufficient = snapshot.PinningLevel.Valid()
	}
	if !sufficient {
		return fail(checkID, fmt.Sprintf("pinning_level %s insufficient for policy %s", snapshot.PinningLevel, policy))
	}
	return pass(checkID)
}

func checkCitations(src *source, policy schema.PolicyMode) CheckResult {
	const checkID = "CHK.CITATIONS.STRICT"
	if policy != schema.PolicyStrict {
		return CheckResult{CheckID: checkID, Severity: schema.SeverityBlocker, Result: schema.StatusPass, Message: "not applicable"}
	}
	citationsMap, checkResult := readCitationsMap(src, checkID)
	if citationsMap == nil {
		return checkResult
	}
	deliverables := map[string][]byte{}
	for name, content := range src.files {
		if strings.HasPrefix(name, "exports/") && strings.Contains(name, "/deliverables/") {
			deliverables[name] = content
		}
	}
	result := citation.Validate(deliverables, citationsMap)
	if result.SchemaError != "" {
		return fail(checkID, result.SchemaError)
	}
	if !result.Passed {
		return fail(checkID, "claims missing citations: "+strings.Join(result.MissingClaimIDs, ", "))
	}
	return pass(checkID)
}

func readCitationsMap(src *source, checkID string) (*schema.CitationsMap, CheckResult) {
	for name, content := range src.files {
		if !strings.HasSuffix(name, "attachments/citations_map.json") {
			continue
		}
		var citationsMap schema.CitationsMap
		if err := json.Unmarshal(content, &citationsMap); err != nil {
			return nil, fail(checkID, fmt.Sprintf("invalid citations_map: %v", err))
		}
		return &citationsMap, CheckResult{}
	}
	return nil, fail(checkID, "missing citations_map.json")
}

func checkRedactions(src *source, policy schema.PolicyMode) CheckResult {
	const checkID = "CHK.REDACTION.POLICY_GATE"
	if policy == schema.PolicyDraftOnly {
		return CheckResult{CheckID: checkID, Severity: schema.SeverityBlocker, Result: schema.StatusPass, Message: "not applicable"}
	}

	var redactionsMap *schema.RedactionsMap
	for name, content := range src.files {
		if strings.HasSuffix(name, "attachments/redactions_map.json") {
			var parsed schema.RedactionsMap
			if err := json.Unmarshal(content, &parsed); err != nil {
				return fail(checkID, fmt.Sprintf("invalid redactions_map: %v", err))
			}
			redactionsMap = &parsed
			break
		}
	}
	if redactionsMap == nil {
		return fail(checkID, "missing redactions_map.json")
	}

	citationsMap, checkResult := readCitationsMap(src, checkID)
	if citationsMap == nil {
		return checkResult
	}
	var artifactList schema.ArtifactList
	if raw, ok := src.files["inputs_snapshot/artifact_list.json"]; ok {
		if err := json.Unmarshal(raw, &artifactList); err != nil {
			return fail(checkID, fmt.Sprintf("invalid artifact_list: %v", err))
		}
	}

	result := redaction.Validate(citationsMap, redactionsMap, &artifactList)
	if result.SchemaError != "" {
		return fail(checkID, result.SchemaError)
	}
	if !result.Passed {
		return fail(checkID, "missing required redaction coverage for "+strings.Join(result.Missing, ", "))
	}
	return pass(checkID)
}

func checkEvalReport(src *source) CheckResult {
	const checkID = "CHK.EVAL.REPORT_AND_GATES"
	raw, ok := src.files["eval_report.json"]
	if !ok {
		return fail(checkID, "missing eval_report.json")
	}
	var report schema.EvalReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fail(checkID, fmt.Sprintf("invalid eval_report: %v", err))
	}
	if report.OverallStatus == "" {
		return fail(checkID, "missing overall_status")
	}
	if report.RegistryVersion != schema.GateRegistryVersion {
		return fail(checkID, fmt.Sprintf("unsupported registry_version %q", report.RegistryVersion))
	}

	// overall_status must be consistent with the gate entries.
	computed := schema.StatusPass
	for _, gate := range report.Gates {
		if gate.Severity == schema.SeverityBlocker && gate.Status == schema.StatusFail {
			computed = schema.StatusFail
			break
		}
	}
	if report.OverallStatus != computed {
		return fail(checkID, fmt.Sprintf("overall_status %s inconsistent with gates (computed %s)",
			report.OverallStatus, computed))
	}
	if !sort.SliceIsSorted(report.Gates, func(i, j int) bool {
		return report.Gates[i].GateID < report.Gates[j].GateID
	}) {
		return fail(checkID, "gates not sorted by gate_id")
	}
	return pass(checkID)
}

func checkZipDeterminism(src *source) CheckResult {
	const checkID = "CHK.DETERMINISM.ZIP_RULES"
	notApplicable := CheckResult{CheckID: checkID, Severity: schema.SeverityMajor, Result: schema.StatusPass, Message: "not applicable"}

	var policySnapshot schema.PolicySnapshot
	if raw, ok := src.files["inputs_snapshot/policy_snapshot.json"]; ok {
		if err := json.Unmarshal(raw, &policySnapshot); err != nil {
			return CheckResult{CheckID: checkID, Severity: schema.SeverityMajor, Result: schema.StatusFail,
				Message: fmt.Sprintf("invalid policy_snapshot: %v", err)}
		}
	}
	if !policySnapshot.Determinism.Enabled {
		return notApplicable
	}
	if src.zipFiles == nil {
		// Validating a staging tree: there is no archive shape to
		// inspect yet.
		return notApplicable
	}

	majorFail := func(message string) CheckResult {
		return CheckResult{CheckID: checkID, Severity: schema.SeverityMajor, Result: schema.StatusFail, Message: message}
	}
	if src.comment != "" {
		return majorFail("zip comment must be empty")
	}
	var names []string
	for _, file := range src.zipFiles {
		names = append(names, file.Name)
		isDir := strings.HasSuffix(file.Name, "/")
		if !isDir && file.Method != zip.Deflate {
			return majorFail(fmt.Sprintf("entry %s is not DEFLATE-compressed", file.Name))
		}
		if !file.Modified.UTC().Equal(dosEpoch) {
			return majorFail(fmt.Sprintf("entry %s has non-fixed timestamp %s", file.Name, file.Modified.UTC()))
		}
		if len(file.Extra) != 0 {
			return majorFail(fmt.Sprintf("entry %s carries extra fields", file.Name))
		}
		wantMode := fs.FileMode(0o644)
		if isDir {
			wantMode = 0o755
		}
		if file.Mode().Perm() != wantMode {
			return majorFail(fmt.Sprintf("entry %s has mode %o, want %o", file.Name, file.Mode().Perm(), wantMode))
		}
	}
	if !sort.StringsAreSorted(names) {
		return majorFail("zip entries not sorted by path")
	}
	return CheckResult{CheckID: checkID, Severity: schema.SeverityMajor, Result: schema.StatusPass, Message: "ok"}
}

func checkVaultCrypto(src *source) CheckResult {
	const checkID = "CHK.VAULT_CRYPTO.POLICY_SNAPSHOT"
	raw, ok := src.files["inputs_snapshot/policy_snapshot.json"]
	if !ok {
		return fail(checkID, "missing inputs_snapshot/policy_snapshot.json")
	}
	var snapshot schema.PolicySnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fail(checkID, fmt.Sprintf("invalid policy_snapshot: %v", err))
	}
	allowedAlgorithm := snapshot.EncryptionAlgorithm == schema.AlgXChaCha20Poly1305 ||
		snapshot.EncryptionAlgorithm == schema.AlgAES256GCM
	if !snapshot.EncryptionAtRest || !allowedAlgorithm {
		return fail(checkID, "encryption_at_rest or algorithm invalid")
	}

	// The audit trail must carry a VAULT_ENCRYPTION_STATUS event
	// with an accepted key storage.
	auditRaw := src.files["audit_log.ndjson"]
	for _, line := range bytes.Split(auditRaw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var event schema.AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if event.EventType != schema.EventVaultEncryptionStatus {
			continue
		}
		storage, _ := event.Details["key_storage"].(string)
		switch schema.KeyStorage(storage) {
		case schema.KeyStorageMacKeychain, schema.KeyStorageWindowsDPAPI, schema.KeyStorageFileFallback:
			return pass(checkID)
		}
	}
	return fail(checkID, "missing VAULT_ENCRYPTION_STATUS with accepted key_storage")
}
