// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindCitationViolation, "claim %s has no citation", "C0001")
	if KindOf(err) != KindCitationViolation {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(KindWorkflowTransition, "EVALUATING -> CREATED")
	outer := fmt.Errorf("export step 2: %w", inner)
	if !Is(outer, KindWorkflowTransition) {
		t.Error("kind should survive fmt.Errorf wrapping")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(KindArtifactMissing, os.ErrNotExist, "artifact %s", "a_1")
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("underlying cause should be reachable via errors.Is")
	}
}
