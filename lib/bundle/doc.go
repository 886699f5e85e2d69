// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle produces and validates Evidence Bundles.
//
// Three pieces, deliberately separated:
//
//   - The builder writes the fixed Annex-A layout into a staging
//     tree: bundle documents in canonical JSON, the audit stream, the
//     artifact hash ledger, pack deliverables and attachments, and
//     the inputs snapshot.
//   - The packager turns a staging tree into a byte-stable ZIP:
//     entries sorted by path, fixed timestamps and modes, DEFLATE
//     level 9 everywhere, empty comment. Two builds over identical
//     trees produce identical bytes.
//   - The validator re-checks a produced bundle from scratch. It
//     shares no state with the builder — it opens the ZIP, re-hashes
//     every ledger row, re-verifies the audit chain, and re-runs the
//     citation and redaction checks the way an external auditor
//     would.
//
// ZIP timestamps: the format's earliest representable instant is the
// DOS epoch (1980-01-01), which is what "mtime zero" pins to. Headers
// are written without extra fields so the byte stream has no
// platform-dependent residue.
package bundle
