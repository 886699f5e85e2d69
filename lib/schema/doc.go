// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines Docket's closed data model: the enums shared
// across components, the audit event taxonomy with its per-family
// required detail keys, the citation locator and redaction map
// schemas, and the Evidence Bundle document types.
//
// Everything here is a closed set. Validators reject values outside
// the enumerations rather than passing them through — an Evidence
// Bundle is only portable if two independent implementations agree on
// exactly which values are legal.
//
// The package is intentionally free of behavior beyond validation:
// components own their logic, schema owns the shapes they exchange.
package schema
