// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/artifact"
	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/schema"
)

func lifecycleManager(t *testing.T, dir string) *Manager {
	t.Helper()
	log, err := audit.Open(audit.Config{
		Path:    filepath.Join(dir, "audit_log.ndjson"),
		VaultID: "v_0001",
		Clock:   clock.Fake(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	manager, err := NewManager(ManagerConfig{Audit: log})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Begin(Run{
		ID: "r_lifecycle", VaultID: "v_0001",
		PolicyMode:  schema.PolicyBalanced,
		NetworkMode: schema.NetworkOffline,
		ProofLevel:  schema.ProofOfflineStrict,
	}, BeginOptions{PackID: "review", PackVersion: "1", PolicyPackID: "pp", PolicyPackVersion: "1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return manager
}

func TestIngestLifecycle(t *testing.T) {
	dir := t.TempDir()
	manager := lifecycleManager(t, dir)

	if err := manager.BeginIngest("file", "/tmp/in.txt"); err != nil {
		t.Fatalf("BeginIngest: %v", err)
	}
	if manager.Run().State != schema.RunIngesting {
		t.Errorf("state = %s", manager.Run().State)
	}
	if err := manager.RecordIngested(artifact.Metadata{
		ArtifactID:  "a_0001",
		SHA256:      strings.Repeat("a", 64),
		Bytes:       12,
		ContentType: "text/plain",
		LogicalRole: schema.RoleInput,
	}, "/tmp/in.txt"); err != nil {
		t.Fatalf("RecordIngested: %v", err)
	}
	if err := manager.CompleteIngest(1); err != nil {
		t.Fatalf("CompleteIngest: %v", err)
	}
	if manager.Run().State != schema.RunReady {
		t.Errorf("state = %s", manager.Run().State)
	}

	data, err := os.ReadFile(filepath.Join(dir, "audit_log.ndjson"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, eventType := range []string{
		"RUN_CREATED", "ARTIFACT_INGEST_STARTED", "ARTIFACT_INGESTED", "ARTIFACT_INGEST_COMPLETED",
	} {
		if !strings.Contains(string(data), `"`+eventType+`"`) {
			t.Errorf("audit stream missing %s", eventType)
		}
	}
}

func TestRecordDeletion(t *testing.T) {
	dir := t.TempDir()
	manager := lifecycleManager(t, dir)

	if err := manager.RecordDeletion([]string{"a_0001"}, schema.ActorUser, schema.DeleteOverwriteThenUnlink); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "audit_log.ndjson"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	stream := string(data)
	if !strings.Contains(stream, `"DELETION_REQUESTED"`) || !strings.Contains(stream, `"DELETION_COMPLETED"`) {
		t.Error("deletion events missing from audit stream")
	}
	if !strings.Contains(stream, `"overwrite_then_unlink"`) {
		t.Error("deletion method missing from audit stream")
	}
}

func TestCancelFromIngesting(t *testing.T) {
	dir := t.TempDir()
	manager := lifecycleManager(t, dir)
	if err := manager.BeginIngest("file", "/tmp/in.txt"); err != nil {
		t.Fatalf("BeginIngest: %v", err)
	}
	if err := manager.Cancel("user aborted"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if manager.Run().State != schema.RunCancelled {
		t.Errorf("state = %s", manager.Run().State)
	}
	// A terminal run cannot be cancelled again.
	if err := manager.Cancel("again"); err == nil {
		t.Error("double cancel should fail")
	}
}
