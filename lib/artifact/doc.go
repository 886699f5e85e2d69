// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements the content-addressed artifact store of
// a vault.
//
// Identity is SHA-256 over the original bytes: Put computes the hash,
// assigns a vault-stable artifact id, and persists a blob container
// plus a metadata row in the SQLite index. Get re-hashes retrieved
// bytes against the recorded digest — a mismatch is a chain-of-custody
// failure, not a soft error.
//
// On disk a blob is a single file: a deterministic CBOR header
// followed by the payload. The payload is the original bytes,
// optionally compressed (zstd for text-like content, LZ4 for binary),
// then sealed through the vault's encrypted-bytes interface. The
// header carries a BLAKE3 tag over the stored payload so corruption
// is caught before decryption or decompression is attempted.
//
// Artifacts are immutable after ingest. Deletion is explicit and
// irreversible; the store records which removal method the filesystem
// supported (overwrite-then-unlink, unlink-only, or unsupported) so
// the audit trail reflects what actually happened to the bytes.
//
// Concurrency: reads may run concurrently; writes serialize per
// content hash (two Puts of identical bytes converge on one blob).
package artifact
