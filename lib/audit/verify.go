// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docket-foundation/docket/lib/schema"
)

// VerifyError names the first line of an audit stream that fails
// verification.
type VerifyError struct {
	// Line is the 1-based NDJSON line number.
	Line int

	// EventIndex is the 0-based index among non-empty event lines.
	EventIndex int

	// Reason describes the failure.
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("audit: event %d (line %d): %s", e.EventIndex, e.Line, e.Reason)
}

// Verify checks an audit stream end to end: every line must be a
// well-formed envelope with exactly the closed key set, every
// prev_event_hash must equal the previous event's event_hash (the
// zero hash for the first event), and every event_hash must recompute
// from the canonical envelope. Returns the number of events verified.
//
// An empty stream verifies successfully with zero events; whether an
// empty log is acceptable is the caller's policy decision.
func Verify(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	prev := schema.ZeroHash
	lineNumber := 0
	eventIndex := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if err := checkEnvelopeKeys(line); err != nil {
			return eventIndex, &VerifyError{Line: lineNumber, EventIndex: eventIndex, Reason: err.Error()}
		}

		var event schema.AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return eventIndex, &VerifyError{Line: lineNumber, EventIndex: eventIndex, Reason: fmt.Sprintf("invalid envelope: %v", err)}
		}
		if !event.Actor.Valid() {
			return eventIndex, &VerifyError{Line: lineNumber, EventIndex: eventIndex, Reason: fmt.Sprintf("invalid actor %q", event.Actor)}
		}
		if !event.EventType.Valid() {
			return eventIndex, &VerifyError{Line: lineNumber, EventIndex: eventIndex, Reason: fmt.Sprintf("unknown event_type %q", event.EventType)}
		}
		if event.PrevEventHash != prev {
			return eventIndex, &VerifyError{
				Line: lineNumber, EventIndex: eventIndex,
				Reason: fmt.Sprintf("prev_event_hash %s does not match chain tip %s", event.PrevEventHash, prev),
			}
		}

		computed, err := ComputeEventHash(event)
		if err != nil {
			return eventIndex, &VerifyError{Line: lineNumber, EventIndex: eventIndex, Reason: err.Error()}
		}
		if computed != event.EventHash {
			return eventIndex, &VerifyError{
				Line: lineNumber, EventIndex: eventIndex,
				Reason: fmt.Sprintf("event_hash mismatch (recomputed %s)", computed),
			}
		}

		prev = event.EventHash
		eventIndex++
	}
	if err := scanner.Err(); err != nil {
		return eventIndex, fmt.Errorf("audit: reading stream: %w", err)
	}
	return eventIndex, nil
}

// checkEnvelopeKeys enforces the closed top-level key set. Extra
// writer-supplied fields belong under details.meta, never at the top
// level.
func checkEnvelopeKeys(line []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %v", err)
	}
	for _, key := range schema.EnvelopeKeys {
		if _, ok := raw[key]; !ok {
			return fmt.Errorf("missing envelope key %q", key)
		}
	}
	if len(raw) != len(schema.EnvelopeKeys) {
		for key := range raw {
			known := false
			for _, allowed := range schema.EnvelopeKeys {
				if key == allowed {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("unexpected top-level key %q", key)
			}
		}
	}
	return nil
}
