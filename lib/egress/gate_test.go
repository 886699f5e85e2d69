// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/schema"
)

func testAudit(t *testing.T) *audit.Log {
	t.Helper()
	log, err := audit.Open(audit.Config{
		Path:    filepath.Join(t.TempDir(), "audit_log.ndjson"),
		VaultID: "v_test",
		Clock:   clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestOfflineBlocksEverything(t *testing.T) {
	log := testAudit(t)
	gate, err := New(Config{Audit: log, RunID: "r_1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	decision, err := gate.Request("https://example.com:443/api", "model fetch", OriginCore, []byte("req"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if decision.Allowed {
		t.Fatal("offline gate should block")
	}
	if decision.Reason != schema.EgressBlockOffline {
		t.Errorf("reason = %s, want OFFLINE_MODE", decision.Reason)
	}

	// The decision must be on the audit trail.
	data, err := os.ReadFile(log.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"EGRESS_REQUEST_BLOCKED"`) {
		t.Error("blocked decision missing from audit log")
	}
	if !strings.Contains(string(data), `"OFFLINE_MODE"`) {
		t.Error("block reason missing from audit log")
	}
}

func onlineGate(t *testing.T, log *audit.Log, entries []schema.AllowlistEntry) *Gate {
	t.Helper()
	allowlist, err := NewAllowlist(entries)
	if err != nil {
		t.Fatalf("NewAllowlist: %v", err)
	}
	gate, err := New(Config{Audit: log, RunID: "r_1", Allowlist: allowlist})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gate.SetNetworkMode(schema.NetworkOnlineAllowlisted, schema.ProofOnlineAllowlistCoreOnly, schema.ActorUser, true); err != nil {
		t.Fatalf("SetNetworkMode: %v", err)
	}
	return gate
}

func TestAllowlistMatch(t *testing.T) {
	gate := onlineGate(t, testAudit(t), []schema.AllowlistEntry{
		{Scheme: "https", Host: "models.example.com", Purpose: "model download", PolicyPackID: "pp_1", PolicyPackVersion: "1"},
		{Scheme: "https", Host: "api.example.com", PathPrefix: "/v1", Purpose: "api", PolicyPackID: "pp_1", PolicyPackVersion: "1"},
	})

	decision, err := gate.Request("https://models.example.com/weights.bin", "fetch", OriginCore, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, got %s", decision.Reason)
	}
	if !strings.HasPrefix(decision.RuleID, "ALW") {
		t.Errorf("rule id = %q", decision.RuleID)
	}

	decision, err = gate.Request("https://api.example.com/v2/other", "api", OriginCore, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if decision.Allowed {
		t.Error("path outside prefix should be blocked")
	}
	if decision.Reason != schema.EgressBlockNotAllowlisted {
		t.Errorf("reason = %s", decision.Reason)
	}
}

func TestAllowlistRequiresExactPort(t *testing.T) {
	gate := onlineGate(t, testAudit(t), []schema.AllowlistEntry{
		{Scheme: "https", Host: "api.example.com", Port: 8443, Purpose: "api", PolicyPackID: "pp_1", PolicyPackVersion: "1"},
	})
	decision, err := gate.Request("https://api.example.com/", "api", OriginCore, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if decision.Allowed {
		t.Error("default port 443 should not match rule pinned to 8443")
	}
}

func TestUIDirectEgressBlocked(t *testing.T) {
	gate := onlineGate(t, testAudit(t), []schema.AllowlistEntry{
		{Scheme: "https", Host: "api.example.com", Purpose: "api", PolicyPackID: "pp_1", PolicyPackVersion: "1"},
	})
	decision, err := gate.Request("https://api.example.com/", "ui fetch", OriginUI, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if decision.Allowed || decision.Reason != schema.EgressBlockUIDirect {
		t.Errorf("decision = %+v, want UI_DIRECT_EGRESS_BLOCKED", decision)
	}
}

func TestOnlineTransitionRequiresUserAck(t *testing.T) {
	gate, err := New(Config{Audit: testAudit(t), RunID: "r_1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gate.SetNetworkMode(schema.NetworkOnlineAllowlisted, schema.ProofOnlineAllowlistCoreOnly, schema.ActorSystem, true); err == nil {
		t.Error("system actor should not take a vault online")
	}
	if err := gate.SetNetworkMode(schema.NetworkOnlineAllowlisted, schema.ProofOnlineAllowlistCoreOnly, schema.ActorUser, false); err == nil {
		t.Error("missing acknowledgement should be rejected")
	}
	if gate.NetworkMode() != schema.NetworkOffline {
		t.Error("failed transitions must leave the gate offline")
	}
}

func TestProofLevelNeverOverclaims(t *testing.T) {
	log := testAudit(t)
	allowlist, _ := NewAllowlist(nil)
	gate, err := New(Config{Audit: log, RunID: "r_1", Allowlist: allowlist})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gate.SetNetworkMode(schema.NetworkOnlineAllowlisted, schema.ProofOnlineAllowlistFirewalled, schema.ActorUser, true); err != nil {
		t.Fatalf("SetNetworkMode: %v", err)
	}
	if gate.ProofLevel() != schema.ProofOnlineAllowlistCoreOnly {
		t.Errorf("gate claimed %s without a firewall assertion", gate.ProofLevel())
	}
	gate.AssertFirewallProfile()
	if gate.ProofLevel() != schema.ProofOnlineAllowlistFirewalled {
		t.Error("asserted firewall profile should unlock the stronger level")
	}
}

func TestParseDestinationCanonicalization(t *testing.T) {
	cases := []struct {
		raw  string
		want Destination
	}{
		{"https://Example.COM/path", Destination{Scheme: "https", Host: "example.com", Port: 443, Path: "/path"}},
		{"http://example.com", Destination{Scheme: "http", Host: "example.com", Port: 80, Path: "/"}},
		{"https://bücher.example:8443/x", Destination{Scheme: "https", Host: "xn--bcher-kva.example", Port: 8443, Path: "/x"}},
		{"https://127.0.0.1:9000/", Destination{Scheme: "https", Host: "127.0.0.1", Port: 9000, Path: "/"}},
	}
	for _, tc := range cases {
		got, err := ParseDestination(tc.raw)
		if err != nil {
			t.Errorf("ParseDestination(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDestination(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDestinationRejectsSchemes(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/", "file:///etc/passwd", "ws://example.com/"} {
		if _, err := ParseDestination(raw); err == nil {
			t.Errorf("ParseDestination(%q) should fail", raw)
		}
	}
}

func TestAllowlistRejectsTraversalPrefix(t *testing.T) {
	_, err := NewAllowlist([]schema.AllowlistEntry{
		{Scheme: "https", Host: "example.com", PathPrefix: "/a/../b", Purpose: "x", PolicyPackID: "pp", PolicyPackVersion: "1"},
	})
	if err == nil {
		t.Fatal("path_prefix with .. should be rejected")
	}
}

func TestLoadAllowlistJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.jsonc")
	content := `{
	// model registry, reviewed 2026-01
	"allowlist": [
		{"scheme": "HTTPS", "host": "Registry.Example.com", "port": 0,
		 "purpose": "model registry", "policy_pack_id": "pp_base", "policy_pack_version": "2.0"}
	]
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	allowlist, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	if allowlist.Len() != 1 {
		t.Fatalf("Len = %d", allowlist.Len())
	}
	entry := allowlist.Entries()[0]
	if entry.Scheme != "https" || entry.Host != "registry.example.com" || entry.Port != 443 {
		t.Errorf("entry not canonicalized: %+v", entry)
	}
	if _, err := allowlist.Hash(); err != nil {
		t.Errorf("Hash: %v", err)
	}
}
