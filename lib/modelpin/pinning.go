// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package modelpin classifies how strongly a model's identity was
// recorded and talks to local model adapters.
//
// Adapters are external collaborators reachable only over loopback
// HTTP. The core records what the adapter reports — adapter id,
// version, model id, and optionally the model weights hash — and
// derives the pinning level mechanically from what was recorded.
// Policy decides whether that level suffices; this package never
// does.
package modelpin

import (
	"github.com/docket-foundation/docket/lib/schema"
)

// Classify derives the pinning level from what was recorded for a
// model usage:
//
//   - CRYPTO_PINNED: adapter id, adapter version, model id, and the
//     adapter-reported model_sha256 are all present.
//   - VERSION_PINNED: adapter id, adapter version, and model id are
//     present, but no weights hash.
//   - NAME_ONLY: anything less.
func Classify(modelSHA256, adapterID, adapterVersion, modelID string) schema.PinningLevel {
	if adapterID == "" || adapterVersion == "" || modelID == "" {
		return schema.PinName
	}
	if modelSHA256 != "" {
		return schema.PinCrypto
	}
	return schema.PinVersion
}

// Snapshot builds the model_snapshot.json document for a recorded
// usage.
func Snapshot(adapterID, adapterVersion, endpoint, modelID, modelSHA256 string) schema.ModelSnapshot {
	return schema.ModelSnapshot{
		AdapterID:       adapterID,
		AdapterVersion:  adapterVersion,
		AdapterEndpoint: endpoint,
		ModelID:         modelID,
		ModelSHA256:     modelSHA256,
		PinningLevel:    Classify(modelSHA256, adapterID, adapterVersion, modelID),
	}
}
