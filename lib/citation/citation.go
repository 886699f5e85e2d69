// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package citation validates claim-marker coverage: every
// <!-- CLAIM:Cnnnn --> marker embedded in a Markdown deliverable must
// be backed by at least one valid citation in the export's
// citations_map.json.
//
// Markers are extracted from the goldmark AST rather than by string
// scanning, so markers inside fenced code blocks — example snippets,
// quoted templates — do not count as claims.
package citation

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/docket-foundation/docket/lib/schema"
)

var markerPattern = regexp.MustCompile(`<!--\s*CLAIM:(C[0-9]{4})\s*-->`)

// ExtractMarkers returns the claim ids of every marker in a Markdown
// document, in document order. A marker id appearing twice in one
// document is an error — ids are unique within a file.
func ExtractMarkers(source []byte) ([]string, error) {
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	var markers []string
	seen := map[string]bool{}
	var walkErr error
	ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var raw []byte
		switch typed := node.(type) {
		case *ast.HTMLBlock:
			for i := 0; i < typed.Lines().Len(); i++ {
				segment := typed.Lines().At(i)
				raw = append(raw, segment.Value(source)...)
			}
		case *ast.RawHTML:
			for i := 0; i < typed.Segments.Len(); i++ {
				segment := typed.Segments.At(i)
				raw = append(raw, segment.Value(source)...)
			}
		default:
			return ast.WalkContinue, nil
		}
		for _, match := range markerPattern.FindAllSubmatch(raw, -1) {
			id := string(match[1])
			if seen[id] {
				walkErr = fmt.Errorf("citation: duplicate claim marker %s", id)
				return ast.WalkStop, nil
			}
			seen[id] = true
			markers = append(markers, id)
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return markers, nil
}

// Result is the outcome of a citation validation pass.
type Result struct {
	// Passed is true when the schema validated and no marker lacks
	// a citation.
	Passed bool

	// ClaimsTotal sums the markers found in each deliverable; an id
	// that appears in several deliverables is counted once per file.
	ClaimsTotal int

	// MissingClaimIDs lists markers with no citation entry, sorted.
	MissingClaimIDs []string

	// SchemaError carries the schema violation when parsing or
	// ordering failed; empty otherwise.
	SchemaError string
}

// Validate checks every Markdown deliverable's markers against the
// citations map. Deliverables is a map of bundle-relative path to
// file bytes; only .md files are scanned.
func Validate(deliverables map[string][]byte, citations *schema.CitationsMap) Result {
	if citations == nil {
		return Result{SchemaError: "citations map absent"}
	}
	if err := citations.Validate(); err != nil {
		return Result{SchemaError: err.Error()}
	}

	cited := map[string]bool{}
	for _, claim := range citations.Claims {
		if len(claim.Citations) > 0 {
			cited[claim.ClaimID] = true
		}
	}

	paths := make([]string, 0, len(deliverables))
	for path := range deliverables {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	markerTotal := 0
	var missing []string
	for _, path := range paths {
		if !isMarkdown(path) {
			continue
		}
		markers, err := ExtractMarkers(deliverables[path])
		if err != nil {
			return Result{SchemaError: fmt.Sprintf("%s: %v", path, err)}
		}
		markerTotal += len(markers)
		for _, id := range markers {
			if !cited[id] {
				missing = append(missing, id)
			}
		}
	}
	sort.Strings(missing)

	return Result{
		Passed:          len(missing) == 0,
		ClaimsTotal:     markerTotal,
		MissingClaimIDs: missing,
	}
}

func isMarkdown(path string) bool {
	return len(path) > 3 && path[len(path)-3:] == ".md"
}

// AuditDetails renders the CITATION_VALIDATION_RESULT payload.
func (r Result) AuditDetails() map[string]any {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return map[string]any{
		"result":                   status,
		"claims_total":             r.ClaimsTotal,
		"claims_missing_citations": len(r.MissingClaimIDs),
		"locator_schema_version":   schema.LocatorSchemaVersion,
	}
}
