// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
)

// RedactionSchemaVersion is the only accepted schema_version for a
// redactions map.
const RedactionSchemaVersion = "REDACTION_SCHEMA_V1"

// RedactionType identifies the shape of a redacted region.
type RedactionType string

const (
	RedactTextSpan  RedactionType = "TEXT_SPAN"
	RedactImageBBox RedactionType = "IMAGE_BBOX"
)

// Valid reports whether t is a member of the closed redaction set.
func (t RedactionType) Valid() bool {
	return t == RedactTextSpan || t == RedactImageBBox
}

// RedactionRegion is the covered region. For TEXT_SPAN the char range
// is meaningful; for IMAGE_BBOX the bbox is.
type RedactionRegion struct {
	PageIndex int   `json:"page_index,omitempty"`
	StartChar int   `json:"start_char,omitempty"`
	EndChar   int   `json:"end_char,omitempty"`
	BBox      *BBox `json:"bbox,omitempty"`
}

// Redaction is one applied redaction on an artifact.
type Redaction struct {
	RedactionID   string          `json:"redaction_id"`
	RedactionType RedactionType   `json:"redaction_type"`
	Region        RedactionRegion `json:"region"`
	Method        string          `json:"method"`
	Reason        string          `json:"reason"`
	PolicyRuleID  string          `json:"policy_rule_id"`
}

// ArtifactRedactions groups the redactions applied to one artifact.
type ArtifactRedactions struct {
	ArtifactID string      `json:"artifact_id"`
	Redactions []Redaction `json:"redactions"`
}

// RedactionsMap is the redactions_map.json attachment document.
type RedactionsMap struct {
	SchemaVersion string               `json:"schema_version"`
	Artifacts     []ArtifactRedactions `json:"artifacts"`
}

// Validate checks schema version and ordering: artifacts by
// artifact_id, redactions by redaction_id.
func (m *RedactionsMap) Validate() error {
	if m.SchemaVersion != RedactionSchemaVersion {
		return fmt.Errorf("redactions map schema_version %q, want %s", m.SchemaVersion, RedactionSchemaVersion)
	}
	if !sort.SliceIsSorted(m.Artifacts, func(i, j int) bool {
		return m.Artifacts[i].ArtifactID < m.Artifacts[j].ArtifactID
	}) {
		return fmt.Errorf("redaction artifacts not sorted by artifact_id")
	}
	for _, artifact := range m.Artifacts {
		if artifact.ArtifactID == "" {
			return fmt.Errorf("redaction entry with empty artifact_id")
		}
		if !sort.SliceIsSorted(artifact.Redactions, func(i, j int) bool {
			return artifact.Redactions[i].RedactionID < artifact.Redactions[j].RedactionID
		}) {
			return fmt.Errorf("redactions for %s not sorted by redaction_id", artifact.ArtifactID)
		}
		for _, redaction := range artifact.Redactions {
			if !redaction.RedactionType.Valid() {
				return fmt.Errorf("artifact %s: unknown redaction_type %q", artifact.ArtifactID, redaction.RedactionType)
			}
		}
	}
	return nil
}
