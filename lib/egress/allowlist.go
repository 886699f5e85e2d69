// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/docket-foundation/docket/lib/codec"
	"github.com/docket-foundation/docket/lib/schema"
)

// Allowlist is a canonicalized, sorted set of egress rules. Rule ids
// are positional (ALW0000, ALW0001, …), so a stable sort order is
// part of the contract.
type Allowlist struct {
	entries []schema.AllowlistEntry
}

// LoadAllowlist reads a policy-pack allowlist file. The format is
// JSONC — policy packs are human-edited, comments allowed — holding a
// top-level "allowlist" array of entries.
func LoadAllowlist(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("egress: reading allowlist %s: %w", path, err)
	}
	var document struct {
		Allowlist []schema.AllowlistEntry `json:"allowlist"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("egress: parsing allowlist %s: %w", path, err)
	}
	return NewAllowlist(document.Allowlist)
}

// NewAllowlist canonicalizes and sorts entries.
func NewAllowlist(entries []schema.AllowlistEntry) (*Allowlist, error) {
	canonical := make([]schema.AllowlistEntry, 0, len(entries))
	for _, entry := range entries {
		normalized, err := canonicalizeEntry(entry)
		if err != nil {
			return nil, err
		}
		canonical = append(canonical, normalized)
	}
	sort.Slice(canonical, func(i, j int) bool {
		a, b := canonical[i], canonical[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		if a.Scheme != b.Scheme {
			return a.Scheme < b.Scheme
		}
		return a.PathPrefix < b.PathPrefix
	})
	return &Allowlist{entries: canonical}, nil
}

// canonicalizeEntry normalizes one rule: lowercase scheme, punycode
// host, explicit port, and a path prefix with no traversal.
func canonicalizeEntry(entry schema.AllowlistEntry) (schema.AllowlistEntry, error) {
	scheme := strings.ToLower(entry.Scheme)
	if scheme != "http" && scheme != "https" {
		return entry, fmt.Errorf("egress: allowlist scheme must be http or https, got %q", entry.Scheme)
	}
	entry.Scheme = scheme

	host, err := canonicalHost(entry.Host)
	if err != nil {
		return entry, err
	}
	entry.Host = host

	if entry.Port == 0 {
		entry.Port = defaultPort(scheme)
	}

	if entry.PathPrefix != "" {
		prefix := strings.ReplaceAll(entry.PathPrefix, `\`, "/")
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		if strings.Contains(prefix, "..") {
			return entry, fmt.Errorf("egress: allowlist path_prefix must not contain ..")
		}
		entry.PathPrefix = prefix
	}
	return entry, nil
}

// Entries returns the canonical, sorted rules.
func (l *Allowlist) Entries() []schema.AllowlistEntry { return l.entries }

// Len returns the rule count.
func (l *Allowlist) Len() int { return len(l.entries) }

// Hash returns the SHA-256 hex of the canonical encoding of the
// sorted rules, recorded in ALLOWLIST_UPDATED events.
func (l *Allowlist) Hash() (string, error) {
	canonical, err := codec.Marshal(l.entries)
	if err != nil {
		return "", fmt.Errorf("egress: hashing allowlist: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Match returns the positional rule id of the first entry matching
// the destination. A match requires identical (scheme, host, port)
// and, when the rule carries a path prefix, a prefix match on the
// destination path.
func (l *Allowlist) Match(destination Destination) (string, bool) {
	for index, entry := range l.entries {
		if entry.Scheme != destination.Scheme ||
			entry.Host != destination.Host ||
			entry.Port != destination.Port {
			continue
		}
		if entry.PathPrefix != "" && !strings.HasPrefix(destination.Path, entry.PathPrefix) {
			continue
		}
		return fmt.Sprintf("ALW%04d", index), true
	}
	return "", false
}
