// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"strings"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/schema"
)

func TestManifestInputsFingerprintIsOrderInsensitive(t *testing.T) {
	a := schema.ManifestArtifactRef{ArtifactID: "a_0001", SHA256: strings.Repeat("a", 64)}
	b := schema.ManifestArtifactRef{ArtifactID: "a_0002", SHA256: strings.Repeat("b", 64)}

	first, err := ManifestInputsFingerprint([]schema.ManifestArtifactRef{a, b})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	second, err := ManifestInputsFingerprint([]schema.ManifestArtifactRef{b, a})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if first != second {
		t.Error("fingerprint must not depend on input order")
	}
	if len(first) != 64 {
		t.Errorf("fingerprint length = %d", len(first))
	}
}

func TestDeterministicRunID(t *testing.T) {
	fingerprint := "ABCDEF0123456789abcdef0123456789ffffffffffffffffffffffffffffffff"
	runID, err := DeterministicRunID(fingerprint)
	if err != nil {
		t.Fatalf("DeterministicRunID: %v", err)
	}
	if runID != "r_abcdef0123456789abcdef0123456789" {
		t.Errorf("run id = %s", runID)
	}

	if _, err := DeterministicRunID("abc"); err == nil {
		t.Error("short fingerprint should be rejected")
	}
	if _, err := DeterministicRunID(strings.Repeat("z", 32)); err == nil {
		t.Error("non-hex fingerprint should be rejected")
	}
}

func TestRandomRunIDFormat(t *testing.T) {
	runID := RandomRunID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(runID, "r_") || len(runID) != 2+26 {
		t.Errorf("run id = %s", runID)
	}
}

func TestValidTransition(t *testing.T) {
	allowed := [][2]schema.RunState{
		{schema.RunCreated, schema.RunIngesting},
		{schema.RunCreated, schema.RunReady},
		{schema.RunIngesting, schema.RunReady},
		{schema.RunReady, schema.RunExecuting},
		{schema.RunReady, schema.RunEvaluating},
		{schema.RunExecuting, schema.RunEvaluating},
		{schema.RunEvaluating, schema.RunExporting},
		{schema.RunEvaluating, schema.RunFailed},
		{schema.RunExporting, schema.RunCompleted},
		{schema.RunExporting, schema.RunFailed},
		{schema.RunEvaluating, schema.RunCancelled},
	}
	for _, edge := range allowed {
		if !ValidTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be valid", edge[0], edge[1])
		}
	}

	forbidden := [][2]schema.RunState{
		{schema.RunCreated, schema.RunExporting},
		{schema.RunCompleted, schema.RunEvaluating},
		{schema.RunCompleted, schema.RunCancelled},
		{schema.RunFailed, schema.RunCancelled},
		{schema.RunExporting, schema.RunEvaluating},
	}
	for _, edge := range forbidden {
		if ValidTransition(edge[0], edge[1]) {
			t.Errorf("%s -> %s should be invalid", edge[0], edge[1])
		}
	}
}
