// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docket-foundation/docket/lib/codec"
	"github.com/docket-foundation/docket/lib/policy"
	"github.com/docket-foundation/docket/lib/schema"
)

// Deliverable is one pack output destined for
// exports/<pack>/deliverables/.
type Deliverable struct {
	// Name is the file name under the pack's deliverables
	// directory.
	Name        string
	Bytes       []byte
	ContentType string
}

// Inputs is everything the builder needs to stage a bundle.
type Inputs struct {
	BundleInfo      schema.BundleInfo
	RunManifest     schema.RunManifest
	AuditLogNDJSON  []byte
	EvalReport      schema.EvalReport
	ArtifactList    schema.ArtifactList
	PolicySnapshot  schema.PolicySnapshot
	NetworkSnapshot schema.NetworkSnapshot
	ModelSnapshot   schema.ModelSnapshot

	PackID      string
	PackVersion string
	Deliverables []Deliverable
	Attachments  schema.PackAttachments

	// InputBytes maps artifact id to original bytes; consulted only
	// when the export profile is INCLUDE_INPUT_BYTES.
	InputBytes map[string][]byte
}

// BuildDir writes the Annex-A layout into root, including the
// computed artifact_hashes.csv. The staging tree is complete and
// self-consistent after BuildDir returns; packaging is a separate
// step so the validator can run against the tree first.
func BuildDir(root string, in *Inputs) error {
	if in.PackID == "" {
		return fmt.Errorf("bundle: pack id is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("bundle: creating staging root: %w", err)
	}

	files := map[string][]byte{}
	addJSON := func(relPath string, value any) error {
		data, err := codec.Marshal(value)
		if err != nil {
			return fmt.Errorf("bundle: encoding %s: %w", relPath, err)
		}
		files[relPath] = data
		return nil
	}

	if err := addJSON("BUNDLE_INFO.json", in.BundleInfo); err != nil {
		return err
	}
	if err := addJSON("run_manifest.json", in.RunManifest); err != nil {
		return err
	}
	files["audit_log.ndjson"] = normalizeNewlines(in.AuditLogNDJSON)
	if err := addJSON("eval_report.json", in.EvalReport); err != nil {
		return err
	}
	if err := addJSON("inputs_snapshot/artifact_list.json", in.ArtifactList); err != nil {
		return err
	}
	if err := addJSON("inputs_snapshot/policy_snapshot.json", in.PolicySnapshot); err != nil {
		return err
	}
	if err := addJSON("inputs_snapshot/network_snapshot.json", in.NetworkSnapshot); err != nil {
		return err
	}
	if err := addJSON("inputs_snapshot/model_snapshot.json", in.ModelSnapshot); err != nil {
		return err
	}

	deliverablesDir := path.Join("exports", in.PackID, "deliverables")
	attachmentsDir := path.Join("exports", in.PackID, "attachments")
	stampDraft := policy.DraftLabelRequired(in.PolicySnapshot.PolicyMode)
	for _, deliverable := range in.Deliverables {
		content := deliverable.Bytes
		if stampDraft && strings.HasSuffix(deliverable.Name, ".md") {
			content = stampDraftLabel(content)
		}
		files[path.Join(deliverablesDir, deliverable.Name)] = content
	}

	templates := in.Attachments.TemplatesUsed
	if templates == nil {
		templates = map[string]any{}
	}
	if err := addJSON(path.Join(attachmentsDir, "templates_used.json"), templates); err != nil {
		return err
	}
	if in.Attachments.CitationsMap != nil {
		if err := addJSON(path.Join(attachmentsDir, "citations_map.json"), in.Attachments.CitationsMap); err != nil {
			return err
		}
	}
	if in.Attachments.RedactionsMap != nil {
		if err := addJSON(path.Join(attachmentsDir, "redactions_map.json"), in.Attachments.RedactionsMap); err != nil {
			return err
		}
	}

	includeInputs := in.PolicySnapshot.ExportProfile.Inputs == schema.ExportIncludeInputBytes
	if includeInputs {
		for _, entry := range in.ArtifactList.Artifacts {
			content, ok := in.InputBytes[entry.ArtifactID]
			if !ok {
				return fmt.Errorf("bundle: export profile includes input bytes but artifact %s has none", entry.ArtifactID)
			}
			files[path.Join("inputs_snapshot", "artifacts", entry.ArtifactID, "bytes")] = content
		}
	}

	rows, err := ledgerRows(files, in, includeInputs)
	if err != nil {
		return err
	}
	csvBytes, err := RenderHashCSV(rows)
	if err != nil {
		return err
	}
	files["artifact_hashes.csv"] = csvBytes

	for relPath, content := range files {
		target := filepath.Join(root, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("bundle: creating %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("bundle: writing %s: %w", relPath, err)
		}
	}
	return nil
}

// ledgerRows computes the artifact_hashes.csv rows: every exported
// deliverable and attachment (as o: outputs), plus the inputs when
// their bytes are included in the bundle.
func ledgerRows(files map[string][]byte, in *Inputs, includeInputs bool) ([]HashRow, error) {
	var rows []HashRow
	for relPath, content := range files {
		if !strings.HasPrefix(relPath, "exports/") {
			continue
		}
		digest := sha256.Sum256(content)
		role := schema.RoleDeliverable
		if strings.Contains(relPath, "/attachments/") {
			role = schema.RoleAttachment
		}
		rows = append(rows, HashRow{
			ArtifactID:    OutputArtifactID(relPath),
			BundleRelPath: relPath,
			SHA256:        hex.EncodeToString(digest[:]),
			Bytes:         int64(len(content)),
			ContentType:   contentTypeFor(relPath, in),
			LogicalRole:   role,
		})
	}
	if includeInputs {
		for _, entry := range in.ArtifactList.Artifacts {
			relPath := path.Join("inputs_snapshot", "artifacts", entry.ArtifactID, "bytes")
			content := files[relPath]
			digest := sha256.Sum256(content)
			computed := hex.EncodeToString(digest[:])
			if computed != entry.SHA256 {
				return nil, fmt.Errorf("bundle: input %s bytes hash %s, manifest records %s",
					entry.ArtifactID, computed, entry.SHA256)
			}
			rows = append(rows, HashRow{
				ArtifactID:    entry.ArtifactID,
				BundleRelPath: relPath,
				SHA256:        entry.SHA256,
				Bytes:         entry.Bytes,
				ContentType:   entry.ContentType,
				LogicalRole:   schema.RoleInput,
			})
		}
	}
	return rows, nil
}

func contentTypeFor(relPath string, in *Inputs) string {
	base := path.Base(relPath)
	for _, deliverable := range in.Deliverables {
		if deliverable.Name == base && deliverable.ContentType != "" {
			return deliverable.ContentType
		}
	}
	if strings.HasSuffix(relPath, ".json") {
		return "application/json"
	}
	if strings.HasSuffix(relPath, ".md") {
		return "text/markdown"
	}
	if strings.HasSuffix(relPath, ".csv") {
		return "text/csv"
	}
	return "application/octet-stream"
}

// stampDraftLabel prepends the DraftOnly marker to a Markdown
// deliverable. Idempotent: content already carrying the label is
// returned unchanged. Stamping happens before the hash ledger is
// computed, so artifact_hashes.csv records the labeled bytes.
func stampDraftLabel(content []byte) []byte {
	if bytes.Contains(content, []byte(policy.DraftLabel)) {
		return content
	}
	stamped := make([]byte, 0, len(policy.DraftLabel)+2+len(content))
	stamped = append(stamped, policy.DraftLabel...)
	stamped = append(stamped, '\n', '\n')
	return append(stamped, content...)
}

// normalizeNewlines converts CRLF and lone CR to '\n'. Text entries
// in a bundle always use Unix line endings.
func normalizeNewlines(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}
