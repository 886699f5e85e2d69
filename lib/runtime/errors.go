// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime defines Docket's error taxonomy. Every failure that
// crosses a component boundary is classified into one of these kinds
// so that audit events and callers see a closed vocabulary rather
// than free-form error text.
package runtime

import (
	"errors"
	"fmt"
)

// Kind classifies an error for audit reporting.
type Kind string

const (
	// KindInputSchema: schema version mismatch or envelope violation.
	KindInputSchema Kind = "InputSchemaError"

	// KindArtifactMissing: referenced artifact not found, or its
	// bytes no longer re-hash to the recorded sha256.
	KindArtifactMissing Kind = "ArtifactMissingError"

	// KindPolicyViolation: a policy predicate failed.
	KindPolicyViolation Kind = "PolicyViolationError"

	// KindDeterminismViolation: determinism claimed but an artifact
	// is not byte-stable.
	KindDeterminismViolation Kind = "DeterminismViolationError"

	// KindCitationViolation: claim without a matching citation, or
	// an invalid locator.
	KindCitationViolation Kind = "CitationViolationError"

	// KindRedactionViolation: required redaction missing or not
	// covering a cited region.
	KindRedactionViolation Kind = "RedactionViolationError"

	// KindConsentMissing: mandatory consent absent.
	KindConsentMissing Kind = "ConsentMissingError"

	// KindWorkflowTransition: invalid state-machine transition.
	KindWorkflowTransition Kind = "WorkflowTransitionError"
)

// Error is a classified error. It wraps an underlying cause when one
// exists.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with no underlying cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a classified
// error, and "" otherwise.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
