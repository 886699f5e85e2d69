// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package egress implements the single chokepoint for outbound
// network activity initiated by the core.
//
// The gate holds the vault's network posture (mode, proof level,
// allowlist) and decides every request mechanically: OFFLINE blocks
// everything; ONLINE_ALLOWLISTED requires an exact (scheme, host,
// port) allowlist match plus a path-prefix match when the rule has
// one. Requests originating from the UI are blocked unconditionally —
// the desktop shell must route fetches through the core. Every
// decision is recorded as an EGRESS_REQUEST_ALLOWED or
// EGRESS_REQUEST_BLOCKED audit event before the caller learns it.
//
// Vaults default to OFFLINE with OFFLINE_STRICT proof. Going online
// is a user decision: SetNetworkMode demands actor user with an
// explicit acknowledgement, and never claims a stronger proof level
// than the gate can enforce (the OS-firewall level additionally
// requires an external profile assertion).
package egress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/docket-foundation/docket/lib/audit"
	"github.com/docket-foundation/docket/lib/schema"
)

// Origin distinguishes who is asking for egress.
type Origin string

const (
	// OriginCore is a request from the core itself.
	OriginCore Origin = "core"

	// OriginUI is a request relayed from the desktop shell. Always
	// blocked; the shell has no direct egress privilege.
	OriginUI Origin = "ui"
)

// Decision is the outcome of one egress request.
type Decision struct {
	Allowed bool
	// RuleID is the matching allowlist rule when Allowed.
	RuleID string
	// Reason is the block reason when !Allowed.
	Reason schema.EgressBlockReason
}

// Config holds the parameters for constructing a Gate.
type Config struct {
	// Audit records every decision. Required.
	Audit *audit.Log

	// RunID stamps decision events.
	RunID string

	// Allowlist may be nil for a vault that never goes online.
	Allowlist *Allowlist

	// NetworkMode defaults to OFFLINE.
	NetworkMode schema.NetworkMode

	// ProofLevel defaults to OFFLINE_STRICT.
	ProofLevel schema.ProofLevel

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Gate is the egress decision point for one run.
type Gate struct {
	auditLog  *audit.Log
	runID     string
	allowlist *Allowlist
	mode      schema.NetworkMode
	proof     schema.ProofLevel
	logger    *slog.Logger

	// firewallAsserted is set by AssertFirewallProfile; without it
	// the gate caps the claimed proof level at CORE_ONLY.
	firewallAsserted bool
}

// New constructs a Gate. The zero posture is offline/strict.
func New(cfg Config) (*Gate, error) {
	if cfg.Audit == nil {
		return nil, fmt.Errorf("egress: audit log is required")
	}
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = schema.NetworkOffline
	}
	if cfg.ProofLevel == "" {
		cfg.ProofLevel = schema.ProofOfflineStrict
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Allowlist == nil {
		cfg.Allowlist = &Allowlist{}
	}
	return &Gate{
		auditLog:  cfg.Audit,
		runID:     cfg.RunID,
		allowlist: cfg.Allowlist,
		mode:      cfg.NetworkMode,
		proof:     cfg.ProofLevel,
		logger:    cfg.Logger,
	}, nil
}

// NetworkMode returns the current mode.
func (g *Gate) NetworkMode() schema.NetworkMode { return g.mode }

// ProofLevel returns the proof level the gate is willing to claim.
// ONLINE_ALLOWLIST_WITH_OS_FIREWALL_PROFILE is only claimed after
// AssertFirewallProfile.
func (g *Gate) ProofLevel() schema.ProofLevel {
	if g.proof == schema.ProofOnlineAllowlistFirewalled && !g.firewallAsserted {
		return schema.ProofOnlineAllowlistCoreOnly
	}
	return g.proof
}

// AssertFirewallProfile records that an external OS firewall profile
// assertion was supplied, unlocking the strongest online proof level.
func (g *Gate) AssertFirewallProfile() { g.firewallAsserted = true }

// SetNetworkMode transitions the posture. Entering
// ONLINE_ALLOWLISTED is an actor=user event and demands an explicit
// acknowledgement; the system cannot take a vault online by itself.
func (g *Gate) SetNetworkMode(mode schema.NetworkMode, proof schema.ProofLevel, actor schema.Actor, acknowledged bool) error {
	if !mode.Valid() || !proof.Valid() {
		return fmt.Errorf("egress: invalid network mode or proof level")
	}
	if mode == schema.NetworkOnlineAllowlisted {
		if actor != schema.ActorUser {
			return fmt.Errorf("egress: transition to ONLINE_ALLOWLISTED requires actor user")
		}
		if !acknowledged {
			return fmt.Errorf("egress: transition to ONLINE_ALLOWLISTED requires explicit acknowledgement")
		}
	}
	if mode == schema.NetworkOffline && proof != schema.ProofOfflineStrict {
		return fmt.Errorf("egress: offline mode pairs only with OFFLINE_STRICT")
	}

	if _, err := g.auditLog.Append(schema.EventNetworkModeSet, g.runID, actor, map[string]any{
		"network_mode":             string(mode),
		"proof_level":              string(proof),
		"ui_remote_fetch_disabled": true,
	}); err != nil {
		return err
	}
	g.mode = mode
	g.proof = proof
	g.logger.Info("network mode set", "mode", string(mode), "proof_level", string(proof))
	return nil
}

// RecordAllowlist emits the ALLOWLIST_UPDATED event for the gate's
// current allowlist. Called once per run before any decision.
func (g *Gate) RecordAllowlist(actor schema.Actor) error {
	hash, err := g.allowlist.Hash()
	if err != nil {
		return err
	}
	_, err = g.auditLog.Append(schema.EventAllowlistUpdated, g.runID, actor, map[string]any{
		"allowlist_hash_sha256": hash,
		"allowlist_count":       g.allowlist.Len(),
	})
	return err
}

// Request decides one egress attempt and records the decision. The
// request bytes are hashed (never stored) for the audit trail. No
// socket is opened here — callers that receive a blocked decision
// have nowhere to go, and callers that receive an allowed decision
// perform their own I/O under the recorded rule.
func (g *Gate) Request(rawURL string, purpose string, origin Origin, requestBytes []byte) (Decision, error) {
	destination, err := ParseDestination(rawURL)
	if err != nil {
		return Decision{}, err
	}
	requestHash := sha256.Sum256(requestBytes)
	requestHashHex := hex.EncodeToString(requestHash[:])

	decision := g.decide(destination, origin)

	var event schema.EventType
	details := map[string]any{
		"destination":         destination.auditValue(),
		"request_hash_sha256": requestHashHex,
	}
	if decision.Allowed {
		event = schema.EventEgressRequestAllowed
		details["allowlist_rule_id"] = decision.RuleID
	} else {
		event = schema.EventEgressRequestBlocked
		details["block_reason"] = string(decision.Reason)
	}
	if purpose != "" {
		details["meta"] = map[string]any{"purpose": purpose}
	}
	if _, err := g.auditLog.Append(event, g.runID, schema.ActorSystem, details); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (g *Gate) decide(destination Destination, origin Origin) Decision {
	if origin == OriginUI {
		return Decision{Reason: schema.EgressBlockUIDirect}
	}
	if g.mode == schema.NetworkOffline {
		return Decision{Reason: schema.EgressBlockOffline}
	}
	if ruleID, ok := g.allowlist.Match(destination); ok {
		return Decision{Allowed: true, RuleID: ruleID}
	}
	return Decision{Reason: schema.EgressBlockNotAllowlisted}
}

// Snapshot renders the gate's posture for
// inputs_snapshot/network_snapshot.json.
func (g *Gate) Snapshot(adapterEndpoints []schema.AdapterEndpointSnapshot) schema.NetworkSnapshot {
	if adapterEndpoints == nil {
		adapterEndpoints = []schema.AdapterEndpointSnapshot{}
	}
	entries := g.allowlist.Entries()
	if entries == nil {
		entries = []schema.AllowlistEntry{}
	}
	return schema.NetworkSnapshot{
		NetworkMode:           g.mode,
		ProofLevel:            g.ProofLevel(),
		Allowlist:             entries,
		UIRemoteFetchDisabled: true,
		AdapterEndpoints:      adapterEndpoints,
	}
}
