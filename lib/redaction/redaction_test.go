// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package redaction

import (
	"testing"

	"github.com/docket-foundation/docket/lib/schema"
)

func piiArtifactList() *schema.ArtifactList {
	return &schema.ArtifactList{Artifacts: []schema.ArtifactListEntry{
		{ArtifactID: "a_0001", Classification: schema.ClassInternal, Tags: []schema.Tag{schema.TagPII}},
		{ArtifactID: "a_0002", Classification: schema.ClassPublic, Tags: []schema.Tag{schema.TagCustom}},
	}}
}

func citationsInto(artifactID string, locator schema.Locator, locatorType schema.LocatorType) *schema.CitationsMap {
	return &schema.CitationsMap{
		SchemaVersion: schema.LocatorSchemaVersion,
		Claims: []schema.Claim{{
			ClaimID:            "C0001",
			OutputPath:         "exports/review/deliverables/summary.md",
			OutputClaimLocator: "L1",
			Citations: []schema.Citation{{
				CitationIndex: 0,
				ArtifactID:    artifactID,
				LocatorType:   locatorType,
				Locator:       locator,
			}},
		}},
	}
}

func TestSensitiveCitationNeedsRedaction(t *testing.T) {
	citations := citationsInto("a_0001", schema.Locator{StartLine: 3, EndLine: 5}, schema.LocatorTextLineRange)

	result := Validate(citations, nil, piiArtifactList())
	if result.Passed {
		t.Fatal("uncovered sensitive citation should fail")
	}
	if result.MissingRequired != 1 {
		t.Errorf("missing = %d, want 1", result.MissingRequired)
	}
	if result.Missing[0] != "C0001:a_0001" {
		t.Errorf("missing entry = %q", result.Missing[0])
	}

	details := result.AuditDetails()
	if details["missing_required_redactions"] != 1 || details["result"] != "FAIL" {
		t.Errorf("audit details = %v", details)
	}
}

func TestCoveringRedactionPasses(t *testing.T) {
	citations := citationsInto("a_0001", schema.Locator{StartLine: 3, EndLine: 5}, schema.LocatorTextLineRange)
	redactions := &schema.RedactionsMap{
		SchemaVersion: schema.RedactionSchemaVersion,
		Artifacts: []schema.ArtifactRedactions{{
			ArtifactID: "a_0001",
			Redactions: []schema.Redaction{{
				RedactionID:   "r_0001",
				RedactionType: schema.RedactTextSpan,
				Region:        schema.RedactionRegion{StartChar: 1, EndChar: 10},
				Method:        "MASK",
				Reason:        "PII",
				PolicyRuleID:  "PR-PII-1",
			}},
		}},
	}
	result := Validate(citations, redactions, piiArtifactList())
	if !result.Passed {
		t.Fatalf("covered citation should pass: %+v", result)
	}
}

func TestPartialCoverageFails(t *testing.T) {
	citations := citationsInto("a_0001", schema.Locator{StartLine: 3, EndLine: 12}, schema.LocatorTextLineRange)
	redactions := &schema.RedactionsMap{
		SchemaVersion: schema.RedactionSchemaVersion,
		Artifacts: []schema.ArtifactRedactions{{
			ArtifactID: "a_0001",
			Redactions: []schema.Redaction{{
				RedactionID:   "r_0001",
				RedactionType: schema.RedactTextSpan,
				Region:        schema.RedactionRegion{StartChar: 3, EndChar: 10},
				Method:        "MASK",
				Reason:        "PII",
				PolicyRuleID:  "PR-PII-1",
			}},
		}},
	}
	if result := Validate(citations, redactions, piiArtifactList()); result.Passed {
		t.Fatal("partial coverage must not pass")
	}
}

func TestNonSensitiveCitationNeedsNothing(t *testing.T) {
	citations := citationsInto("a_0002", schema.Locator{StartLine: 1, EndLine: 2}, schema.LocatorTextLineRange)
	if result := Validate(citations, nil, piiArtifactList()); !result.Passed {
		t.Fatalf("CUSTOM-tagged public artifact needs no redaction: %+v", result)
	}
}

func TestBBoxContainment(t *testing.T) {
	outer := schema.Redaction{
		RedactionID:   "r_0001",
		RedactionType: schema.RedactImageBBox,
		Region:        schema.RedactionRegion{BBox: &schema.BBox{X: 0, Y: 0, W: 1, H: 1, Coords: "REL_0_1"}},
	}
	inner := schema.Locator{BBox: &schema.BBox{X: 0, Y: 0, W: 1, H: 1, Coords: "REL_0_1"}}
	if !Covers(outer, schema.LocatorImageBBox, inner) {
		t.Error("full-page redaction should cover any bbox")
	}

	shifted := schema.Redaction{
		RedactionID:   "r_0002",
		RedactionType: schema.RedactImageBBox,
		Region:        schema.RedactionRegion{BBox: &schema.BBox{X: 1, Y: 1, W: 1, H: 1, Coords: "REL_0_1"}},
	}
	if Covers(shifted, schema.LocatorImageBBox, inner) {
		t.Error("disjoint bbox must not cover")
	}
}

func TestTypeMismatchNeverCovers(t *testing.T) {
	textRedaction := schema.Redaction{
		RedactionID:   "r_0001",
		RedactionType: schema.RedactTextSpan,
		Region:        schema.RedactionRegion{StartChar: 0, EndChar: 100},
	}
	bboxLocator := schema.Locator{BBox: &schema.BBox{X: 0, Y: 0, W: 1, H: 1, Coords: "REL_0_1"}}
	if Covers(textRedaction, schema.LocatorImageBBox, bboxLocator) {
		t.Error("text-span redaction cannot cover a bbox citation")
	}
}

func TestRestrictedClassificationIsSensitive(t *testing.T) {
	artifacts := &schema.ArtifactList{Artifacts: []schema.ArtifactListEntry{
		{ArtifactID: "a_0001", Classification: schema.ClassRestricted},
	}}
	citations := citationsInto("a_0001", schema.Locator{StartLine: 1, EndLine: 1}, schema.LocatorTextLineRange)
	if result := Validate(citations, nil, artifacts); result.Passed {
		t.Fatal("Restricted artifact requires redaction even without tags")
	}
}
