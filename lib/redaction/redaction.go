// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package redaction validates that every citation into a sensitive
// artifact is covered by an applied redaction.
//
// An artifact is sensitive when it is classified Restricted or
// carries any of the PII, PHI, PCI, or SECRET tags. For each claim
// citation referencing a sensitive artifact, a redaction record must
// exist whose region fully contains the cited locator region. Partial
// overlap does not count — an uncovered sliver of a restricted
// document is still a leak.
package redaction

import (
	"fmt"
	"sort"

	"github.com/docket-foundation/docket/lib/schema"
)

// Result is the outcome of a redaction validation pass.
type Result struct {
	// Passed is true iff MissingRequired == 0 and the schema
	// validated.
	Passed bool

	// MissingRequired counts citations into sensitive artifacts
	// with no covering redaction.
	MissingRequired int

	// Missing lists "claimID:artifactID" pairs, sorted.
	Missing []string

	// SchemaError carries the schema violation when parsing failed.
	SchemaError string
}

// Validate checks redaction coverage. artifacts supplies the
// classification and tags for each cited artifact id.
func Validate(citations *schema.CitationsMap, redactions *schema.RedactionsMap, artifacts *schema.ArtifactList) Result {
	if citations == nil {
		// Nothing cited, nothing to cover.
		return Result{Passed: true}
	}
	if redactions == nil {
		redactions = &schema.RedactionsMap{SchemaVersion: schema.RedactionSchemaVersion}
	}
	if err := redactions.Validate(); err != nil {
		return Result{SchemaError: err.Error()}
	}

	sensitive := map[string]bool{}
	if artifacts != nil {
		for _, entry := range artifacts.Artifacts {
			if entry.Sensitive() {
				sensitive[entry.ArtifactID] = true
			}
		}
	}

	byArtifact := map[string][]schema.Redaction{}
	for _, artifact := range redactions.Artifacts {
		byArtifact[artifact.ArtifactID] = append(byArtifact[artifact.ArtifactID], artifact.Redactions...)
	}

	var missing []string
	for _, claim := range citations.Claims {
		for _, citation := range claim.Citations {
			if !sensitive[citation.ArtifactID] {
				continue
			}
			covered := false
			for _, candidate := range byArtifact[citation.ArtifactID] {
				if Covers(candidate, citation.LocatorType, citation.Locator) {
					covered = true
					break
				}
			}
			if !covered {
				missing = append(missing, fmt.Sprintf("%s:%s", claim.ClaimID, citation.ArtifactID))
			}
		}
	}
	sort.Strings(missing)

	return Result{
		Passed:          len(missing) == 0,
		MissingRequired: len(missing),
		Missing:         missing,
	}
}

// Covers reports whether a redaction's region fully contains the
// cited locator region. Region types must be compatible: a text-span
// redaction can cover text locators, a bbox redaction can cover bbox
// locators.
func Covers(redaction schema.Redaction, locatorType schema.LocatorType, locator schema.Locator) bool {
	switch redaction.RedactionType {
	case schema.RedactTextSpan:
		switch locatorType {
		case schema.LocatorPDFTextSpan:
			return redaction.Region.PageIndex == locator.PageIndex &&
				spanContains(redaction.Region.StartChar, redaction.Region.EndChar,
					locator.StartChar, locator.EndChar)
		case schema.LocatorTextLineRange:
			// Line-range citations are covered by text spans
			// expressed in lines through the same fields.
			return spanContains(redaction.Region.StartChar, redaction.Region.EndChar,
				locator.StartLine, locator.EndLine)
		}
	case schema.RedactImageBBox:
		switch locatorType {
		case schema.LocatorImageBBox, schema.LocatorPDFBBox:
			if redaction.Region.BBox == nil || locator.BBox == nil {
				return false
			}
			return bboxContains(*redaction.Region.BBox, *locator.BBox)
		}
	}
	return false
}

func spanContains(outerStart, outerEnd, innerStart, innerEnd int) bool {
	if outerStart < 0 || outerEnd < 0 || innerStart < 0 || innerEnd < 0 {
		return false
	}
	return outerStart <= innerStart && outerEnd >= innerEnd
}

func bboxContains(outer, inner schema.BBox) bool {
	if outer.X < 0 || outer.Y < 0 || outer.W < 0 || outer.H < 0 ||
		inner.X < 0 || inner.Y < 0 || inner.W < 0 || inner.H < 0 {
		return false
	}
	return outer.X <= inner.X && outer.Y <= inner.Y &&
		outer.X+outer.W >= inner.X+inner.W &&
		outer.Y+outer.H >= inner.Y+inner.H
}

// AuditDetails renders the REDACTION_VALIDATION_RESULT payload.
func (r Result) AuditDetails() map[string]any {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return map[string]any{
		"result":                      status,
		"missing_required_redactions": r.MissingRequired,
	}
}
