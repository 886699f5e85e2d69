// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/fxamacker/cbor/v2"

	"github.com/docket-foundation/docket/lib/schema"
)

// keyState is the persisted record of the wrapped DEK. Stored as
// deterministic CBOR at meta/key_state.cbor.
type keyState struct {
	KeyID      string            `cbor:"key_id"`
	KeyStorage schema.KeyStorage `cbor:"key_storage"`
	WrappedDEK []byte            `cbor:"wrapped_dek"`
}

const (
	kekIdentityFile = "kek_identity.txt"
	keyStateFile    = "key_state.cbor"
)

// loadOrCreateKEK returns the vault's age identity, generating and
// persisting one (mode 0600) on first use. This is the FILE_FALLBACK
// key storage.
func loadOrCreateKEK(metaDir string) (*age.X25519Identity, error) {
	path := filepath.Join(metaDir, kekIdentityFile)
	if data, err := os.ReadFile(path); err == nil {
		identity, err := age.ParseX25519Identity(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, fmt.Errorf("vault: parsing KEK identity: %w", err)
		}
		return identity, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("vault: reading KEK identity: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("vault: generating KEK identity: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("vault: persisting KEK identity: %w", err)
	}
	return identity, nil
}

// generateDEK returns a fresh random 32-byte data-encryption key.
func generateDEK() ([32]byte, error) {
	var dek [32]byte
	if _, err := rand.Read(dek[:]); err != nil {
		return dek, fmt.Errorf("vault: generating DEK: %w", err)
	}
	return dek, nil
}

// wrapDEK seals the DEK to the KEK's recipient.
func wrapDEK(dek [32]byte, identity *age.X25519Identity) ([]byte, error) {
	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("vault: wrapping DEK: %w", err)
	}
	if _, err := w.Write(dek[:]); err != nil {
		return nil, fmt.Errorf("vault: wrapping DEK: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("vault: wrapping DEK: %w", err)
	}
	return sealed.Bytes(), nil
}

// unwrapDEK opens a wrapped DEK with the KEK identity.
func unwrapDEK(wrapped []byte, identity *age.X25519Identity) ([32]byte, error) {
	var dek [32]byte
	r, err := age.Decrypt(bytes.NewReader(wrapped), identity)
	if err != nil {
		return dek, fmt.Errorf("vault: unwrapping DEK: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return dek, fmt.Errorf("vault: unwrapping DEK: %w", err)
	}
	if len(plaintext) != 32 {
		return dek, fmt.Errorf("vault: wrapped DEK unwrapped to %d bytes, want 32", len(plaintext))
	}
	copy(dek[:], plaintext)
	return dek, nil
}

func saveKeyState(metaDir string, state keyState) error {
	encOptions := cbor.CoreDetEncOptions()
	mode, err := encOptions.EncMode()
	if err != nil {
		return fmt.Errorf("vault: cbor encoder: %w", err)
	}
	data, err := mode.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: encoding key state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, keyStateFile), data, 0o600); err != nil {
		return fmt.Errorf("vault: writing key state: %w", err)
	}
	return nil
}

func loadKeyState(metaDir string) (keyState, error) {
	data, err := os.ReadFile(filepath.Join(metaDir, keyStateFile))
	if err != nil {
		return keyState{}, fmt.Errorf("vault: reading key state: %w", err)
	}
	var state keyState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return keyState{}, fmt.Errorf("vault: decoding key state: %w", err)
	}
	return state, nil
}
