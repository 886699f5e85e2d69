// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestEventTypeValid(t *testing.T) {
	if !EventExportBlocked.Valid() {
		t.Error("EXPORT_BLOCKED should be a valid event type")
	}
	if EventType("EXPORT_PUBLISHED").Valid() {
		t.Error("unknown event type should not validate")
	}
}

func TestValidateEventDetails(t *testing.T) {
	details := map[string]any{
		"block_reason":    "MISSING_CITATIONS",
		"failed_gate_ids": []string{},
	}
	if err := ValidateEventDetails(EventExportBlocked, details); err != nil {
		t.Errorf("ValidateEventDetails: %v", err)
	}

	delete(details, "failed_gate_ids")
	if err := ValidateEventDetails(EventExportBlocked, details); err == nil {
		t.Error("missing required detail key should fail validation")
	}
}

func TestValidateEventDetailsUnknownType(t *testing.T) {
	if err := ValidateEventDetails("NOT_A_TYPE", nil); err == nil {
		t.Error("unknown event type should fail validation")
	}
}

func TestSortEventsFamilyTieBreak(t *testing.T) {
	ts := "2026-01-01T00:00:00Z"
	events := []AuditEvent{
		{TsUTC: ts, EventType: EventBundleGenerationStarted},
		{TsUTC: ts, EventType: EventRunStateChanged},
		{TsUTC: ts, EventType: EventEgressRequestBlocked},
	}
	SortEvents(events)
	want := []EventType{EventRunStateChanged, EventEgressRequestBlocked, EventBundleGenerationStarted}
	for i, eventType := range want {
		if events[i].EventType != eventType {
			t.Fatalf("position %d = %s, want %s", i, events[i].EventType, eventType)
		}
	}
}

func TestSortEventsStableWithinFamily(t *testing.T) {
	ts := "2026-01-01T00:00:00Z"
	events := []AuditEvent{
		{TsUTC: ts, EventType: EventEvalGateResult, Details: map[string]any{"gate_id": "first"}},
		{TsUTC: ts, EventType: EventEvalGateResult, Details: map[string]any{"gate_id": "second"}},
	}
	SortEvents(events)
	if events[0].Details["gate_id"] != "first" {
		t.Error("sort should preserve insertion order within a family")
	}
}

func TestSortEventsMetaEventID(t *testing.T) {
	ts := "2026-01-01T00:00:00Z"
	events := []AuditEvent{
		{TsUTC: ts, EventType: EventEvalGateResult, Details: map[string]any{"meta": map[string]any{"event_id": "02"}}},
		{TsUTC: ts, EventType: EventEvalGateResult, Details: map[string]any{"meta": map[string]any{"event_id": "01"}}},
	}
	SortEvents(events)
	if metaEventID(events[0].Details) != "01" {
		t.Error("events sharing ts and family should order by details.meta.event_id")
	}
}
