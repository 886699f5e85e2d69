// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"regexp"
	"sort"
)

// LocatorSchemaVersion is the only accepted schema_version for a
// citations map.
const LocatorSchemaVersion = "LOCATOR_SCHEMA_V1"

// LocatorType identifies how a citation points into its artifact.
type LocatorType string

const (
	LocatorPDFTextSpan   LocatorType = "PDF_TEXT_SPAN_V1"
	LocatorPDFBBox       LocatorType = "PDF_BBOX_V1"
	LocatorTextLineRange LocatorType = "TEXT_LINE_RANGE_V1"
	LocatorAudioTimeRange LocatorType = "AUDIO_TIME_RANGE_V1"
	LocatorImageBBox     LocatorType = "IMAGE_BBOX_V1"
)

// Valid reports whether t is a member of the closed locator set.
func (t LocatorType) Valid() bool {
	switch t {
	case LocatorPDFTextSpan, LocatorPDFBBox, LocatorTextLineRange,
		LocatorAudioTimeRange, LocatorImageBBox:
		return true
	}
	return false
}

// BBox is a rectangle in relative page/image coordinates. Coords is
// always "REL_0_1". Fractional coordinates are representable in a
// bundle only when they happen to be whole numbers, since the
// canonical encoding admits integers exclusively; validators still
// perform containment math over the decoded values.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Coords string  `json:"coords"`
}

// Locator is the typed region a citation points at. Exactly the
// fields for its type are meaningful; the rest are zero.
type Locator struct {
	PageIndex        int    `json:"page_index,omitempty"`
	StartChar        int    `json:"start_char,omitempty"`
	EndChar          int    `json:"end_char,omitempty"`
	TextSHA256       string `json:"text_sha256,omitempty"`
	StartLine        int    `json:"start_line,omitempty"`
	EndLine          int    `json:"end_line,omitempty"`
	StartMS          int    `json:"start_ms,omitempty"`
	EndMS            int    `json:"end_ms,omitempty"`
	TranscriptSHA256 string `json:"transcript_sha256,omitempty"`
	BBox             *BBox  `json:"bbox,omitempty"`
}

// Citation links a claim to a region of an artifact.
type Citation struct {
	CitationIndex int         `json:"citation_index"`
	ArtifactID    string      `json:"artifact_id"`
	LocatorType   LocatorType `json:"locator_type"`
	Locator       Locator     `json:"locator"`
}

// Claim is a single claim with its supporting citations.
type Claim struct {
	ClaimID            string     `json:"claim_id"`
	OutputPath         string     `json:"output_path"`
	OutputClaimLocator string     `json:"output_claim_locator"`
	Citations          []Citation `json:"citations"`
}

// CitationsMap is the citations_map.json attachment document.
type CitationsMap struct {
	SchemaVersion string  `json:"schema_version"`
	Claims        []Claim `json:"claims"`
}

var claimIDPattern = regexp.MustCompile(`^C[0-9]{4}$`)

// ValidClaimID reports whether id has the locked C#### form.
func ValidClaimID(id string) bool { return claimIDPattern.MatchString(id) }

// Validate checks schema version, claim id format, ordering (claims
// lexicographic by claim_id, citations ascending by citation_index),
// locator types, and non-emptiness of each claim's citation list.
func (m *CitationsMap) Validate() error {
	if m.SchemaVersion != LocatorSchemaVersion {
		return fmt.Errorf("citations map schema_version %q, want %s", m.SchemaVersion, LocatorSchemaVersion)
	}
	if !sort.SliceIsSorted(m.Claims, func(i, j int) bool {
		return m.Claims[i].ClaimID < m.Claims[j].ClaimID
	}) {
		return fmt.Errorf("claims not sorted by claim_id")
	}
	for _, claim := range m.Claims {
		if !ValidClaimID(claim.ClaimID) {
			return fmt.Errorf("invalid claim_id %q", claim.ClaimID)
		}
		if len(claim.Citations) == 0 {
			return fmt.Errorf("claim %s has no citations", claim.ClaimID)
		}
		if !sort.SliceIsSorted(claim.Citations, func(i, j int) bool {
			return claim.Citations[i].CitationIndex < claim.Citations[j].CitationIndex
		}) {
			return fmt.Errorf("claim %s citations not sorted by citation_index", claim.ClaimID)
		}
		for _, citation := range claim.Citations {
			if citation.ArtifactID == "" {
				return fmt.Errorf("claim %s has a citation with empty artifact_id", claim.ClaimID)
			}
			if !citation.LocatorType.Valid() {
				return fmt.Errorf("claim %s has unknown locator_type %q", claim.ClaimID, citation.LocatorType)
			}
			if err := citation.Locator.validateFor(citation.LocatorType); err != nil {
				return fmt.Errorf("claim %s: %w", claim.ClaimID, err)
			}
		}
	}
	return nil
}

func (l *Locator) validateFor(t LocatorType) error {
	switch t {
	case LocatorPDFTextSpan:
		if l.PageIndex < 0 || l.StartChar < 0 || l.EndChar < l.StartChar {
			return fmt.Errorf("invalid PDF text span locator")
		}
		if len(l.TextSHA256) != 64 {
			return fmt.Errorf("PDF text span locator missing text_sha256")
		}
	case LocatorPDFBBox, LocatorImageBBox:
		if l.BBox == nil {
			return fmt.Errorf("bbox locator missing bbox")
		}
		if l.BBox.Coords != "REL_0_1" {
			return fmt.Errorf("bbox coords %q, want REL_0_1", l.BBox.Coords)
		}
		if l.BBox.X < 0 || l.BBox.Y < 0 || l.BBox.W < 0 || l.BBox.H < 0 {
			return fmt.Errorf("bbox has negative component")
		}
	case LocatorTextLineRange:
		if l.StartLine < 1 || l.EndLine < l.StartLine {
			return fmt.Errorf("invalid text line range locator")
		}
	case LocatorAudioTimeRange:
		if l.StartMS < 0 || l.EndMS < l.StartMS {
			return fmt.Errorf("invalid audio time range locator")
		}
		if len(l.TranscriptSHA256) != 64 {
			return fmt.Errorf("audio locator missing transcript_sha256")
		}
	default:
		return fmt.Errorf("unknown locator type %q", t)
	}
	return nil
}
