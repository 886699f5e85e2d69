// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault manages a Docket vault: a local workspace rooted at
// one directory, holding the artifact blobs, the metadata index, the
// audit chain, and the vault's policy assignment.
//
// Layout under the vault root:
//
//	vault.yaml        configuration (single file, no discovery)
//	meta/             key state and the KEK identity file
//	blobs/            content-addressed artifact containers
//	index/            SQLite metadata index
//	audit/            audit_log.ndjson
//	staging/          bundle staging trees (discarded on cancel)
//	exports/          produced Evidence Bundles
//
// Encryption at rest follows the DEK/KEK contract: a random 32-byte
// data-encryption key encrypts blob payloads with XChaCha20-Poly1305;
// the DEK is wrapped by a per-vault age identity (the key-encryption
// key). This port implements the FILE_FALLBACK key storage — the age
// identity lives in meta/, mode 0600. OS keychain storages are
// contract values recorded in audit details, not implemented here.
//
// Configuration loading deliberately has no fallbacks or automatic
// discovery: one file, one location, auditable.
package vault
