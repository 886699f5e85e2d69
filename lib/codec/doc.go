// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Docket's canonical JSON encoding.
//
// Every byte sequence that participates in a hash — audit event
// envelopes, bundle documents, the manifest inputs fingerprint — is
// produced by this package. Same logical data always produces
// identical bytes. The canonical form is:
//
//   - UTF-8 JSON with no byte-order mark
//   - object keys sorted lexicographically by their UTF-8 bytes
//   - no insignificant whitespace
//   - strings escaped per RFC 8259, without HTML-safe escaping
//   - integer numbers only: no floats, no exponents, no leading zeros
//
// Values containing non-integer numbers (floats, NaN, Inf) or cycles
// are unrepresentable and return an error. This is deliberate: a float
// admits multiple textual renderings, so permitting one would make the
// canonical form platform-dependent.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// MarshalLine appends the '\n' terminator used by NDJSON streams such
// as the audit log. Canonicalize re-canonicalizes raw JSON text, which
// makes the encoding idempotent: canonicalizing the output of Marshal
// returns the same bytes.
package codec
