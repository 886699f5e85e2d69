// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the per-vault append-only audit log: an
// NDJSON stream of hash-chained event envelopes.
//
// Each line is a closed envelope (see lib/schema). The event hash is
// SHA-256 over the canonical encoding of the envelope with event_hash
// forced to the 64-zero string, and every event's prev_event_hash
// must equal the previous event's event_hash. The chain tip is owned
// by the Log and advanced atomically with the file append; the log is
// single-writer per vault.
//
// Verification is independent of the writer: Verify re-derives every
// hash from the stream alone and reports the first line that
// disagrees.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/codec"
	"github.com/docket-foundation/docket/lib/schema"
)

// Config holds the parameters for opening an audit log.
type Config struct {
	// Path is the NDJSON file. Created (with its parent directory)
	// if it does not exist; otherwise scanned to recover the chain
	// tip.
	Path string

	// VaultID stamps every envelope.
	VaultID string

	// Clock supplies ts_utc. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Log is the append-only audit stream for one vault. It owns the
// chain tip; all appends serialize on an internal mutex.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	vaultID string
	tip     string
	clock   clock.Clock
	logger  *slog.Logger
}

// Open opens or creates the audit log at cfg.Path and recovers the
// chain tip from the last line.
func Open(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit: path is required")
	}
	if cfg.VaultID == "" {
		return nil, fmt.Errorf("audit: vault id is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: creating log directory: %w", err)
	}

	tip := schema.ZeroHash
	if existing, err := os.Open(cfg.Path); err == nil {
		recovered, err := scanTip(existing)
		existing.Close()
		if err != nil {
			return nil, fmt.Errorf("audit: recovering chain tip from %s: %w", cfg.Path, err)
		}
		tip = recovered
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("audit: opening %s: %w", cfg.Path, err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s for append: %w", cfg.Path, err)
	}

	return &Log{
		file:    file,
		path:    cfg.Path,
		vaultID: cfg.VaultID,
		tip:     tip,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Close releases the underlying file. The Log must not be used after
// Close.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the NDJSON file path.
func (l *Log) Path() string { return l.path }

// Tip returns the current chain tip (the event_hash of the last
// appended event, or the zero hash for an empty log).
func (l *Log) Tip() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip
}

// Append validates, finalizes, and writes one event. The envelope
// fields ts_utc, vault_id, prev_event_hash, and event_hash are filled
// here; callers supply only the event type, run id, actor, and
// details. The chain tip advances only after the line is durably
// written.
func (l *Log) Append(eventType schema.EventType, runID string, actor schema.Actor, details map[string]any) (schema.AuditEvent, error) {
	if details == nil {
		details = map[string]any{}
	}
	if !actor.Valid() {
		return schema.AuditEvent{}, fmt.Errorf("audit: invalid actor %q", actor)
	}
	if err := schema.ValidateEventDetails(eventType, details); err != nil {
		return schema.AuditEvent{}, fmt.Errorf("audit: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event := schema.AuditEvent{
		TsUTC:         clock.UTCStamp(l.clock.Now()),
		EventType:     eventType,
		RunID:         runID,
		VaultID:       l.vaultID,
		Actor:         actor,
		Details:       details,
		PrevEventHash: l.tip,
	}
	hash, err := ComputeEventHash(event)
	if err != nil {
		return schema.AuditEvent{}, err
	}
	event.EventHash = hash

	line, err := codec.MarshalLine(event)
	if err != nil {
		return schema.AuditEvent{}, fmt.Errorf("audit: encoding event: %w", err)
	}
	if _, err := l.file.Write(line); err != nil {
		return schema.AuditEvent{}, fmt.Errorf("audit: appending event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return schema.AuditEvent{}, fmt.Errorf("audit: syncing log: %w", err)
	}

	l.tip = event.EventHash
	l.logger.Debug("audit event appended",
		"event_type", string(eventType), "run_id", runID, "event_hash", hash)
	return event, nil
}

// ComputeEventHash returns the SHA-256 hex of the canonical envelope
// with event_hash forced to the zero hash. Forcing (rather than
// omitting) keeps the hashed key set identical to the written one.
func ComputeEventHash(event schema.AuditEvent) (string, error) {
	if !validHex64(event.PrevEventHash) {
		return "", fmt.Errorf("audit: prev_event_hash must be 64 hex chars")
	}
	event.EventHash = schema.ZeroHash
	canonical, err := codec.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalizing envelope: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func validHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// scanTip reads an existing stream and returns the last event_hash,
// or the zero hash for an empty stream. Lines are not re-verified
// here; Verify is the integrity check.
func scanTip(r io.Reader) (string, error) {
	tip := schema.ZeroHash
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var partial struct {
			EventHash string `json:"event_hash"`
		}
		if err := json.Unmarshal(line, &partial); err != nil {
			return "", fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if !validHex64(partial.EventHash) {
			return "", fmt.Errorf("line %d: missing or malformed event_hash", lineNumber)
		}
		tip = partial.EventHash
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return tip, nil
}
