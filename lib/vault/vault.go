// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docket-foundation/docket/lib/schema"
)

// Directory names within the vault root.
const (
	metaDir    = "meta"
	blobsDir   = "blobs"
	indexDir   = "index"
	auditDir   = "audit"
	stagingDir = "staging"
	exportsDir = "exports"
)

// configFile is the single configuration file at the vault root.
const configFile = "vault.yaml"

// Vault is an open vault. It owns the key state and hands out the
// Cipher the artifact store delegates encryption through.
type Vault struct {
	root     string
	cfg      Config
	cipher   Cipher
	keyState keyState
	logger   *slog.Logger
}

// Options adjusts vault open/create behavior.
type Options struct {
	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Create initializes a new vault at root with the given
// configuration: directory skeleton, config file, KEK identity, and a
// freshly wrapped DEK.
func Create(root string, cfg Config, opts Options) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	for _, dir := range []string{root,
		filepath.Join(root, metaDir),
		filepath.Join(root, blobsDir),
		filepath.Join(root, indexDir),
		filepath.Join(root, auditDir),
		filepath.Join(root, stagingDir),
		filepath.Join(root, exportsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("vault: creating directory %s: %w", dir, err)
		}
	}
	if err := cfg.save(filepath.Join(root, configFile)); err != nil {
		return nil, err
	}

	identity, err := loadOrCreateKEK(filepath.Join(root, metaDir))
	if err != nil {
		return nil, err
	}
	dek, err := generateDEK()
	if err != nil {
		return nil, err
	}
	wrapped, err := wrapDEK(dek, identity)
	if err != nil {
		return nil, err
	}
	state := keyState{KeyID: "kek_v1", KeyStorage: schema.KeyStorageFileFallback, WrappedDEK: wrapped}
	if err := saveKeyState(filepath.Join(root, metaDir), state); err != nil {
		return nil, err
	}

	return assemble(root, cfg, state, dek, opts)
}

// Open loads an existing vault: config, key state, and the unwrapped
// DEK.
func Open(root string, opts Options) (*Vault, error) {
	cfg, err := LoadConfig(filepath.Join(root, configFile))
	if err != nil {
		return nil, err
	}
	identity, err := loadOrCreateKEK(filepath.Join(root, metaDir))
	if err != nil {
		return nil, err
	}
	state, err := loadKeyState(filepath.Join(root, metaDir))
	if err != nil {
		return nil, err
	}
	dek, err := unwrapDEK(state.WrappedDEK, identity)
	if err != nil {
		return nil, err
	}
	return assemble(root, cfg, state, dek, opts)
}

func assemble(root string, cfg Config, state keyState, dek [32]byte, opts Options) (*Vault, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var cipher Cipher = Passthrough{}
	if cfg.Encryption.AtRest {
		cipher = newXChaChaCipher(dek)
	}
	return &Vault{root: root, cfg: cfg, cipher: cipher, keyState: state, logger: logger}, nil
}

// ID returns the vault id.
func (v *Vault) ID() string { return v.cfg.VaultID }

// Config returns the vault configuration.
func (v *Vault) Config() Config { return v.cfg }

// Cipher returns the encrypted-bytes interface for the artifact
// store.
func (v *Vault) Cipher() Cipher { return v.cipher }

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// BlobsPath, IndexPath, AuditLogPath, StagingPath, and ExportsPath
// name the owned locations inside the vault.
func (v *Vault) BlobsPath() string    { return filepath.Join(v.root, blobsDir) }
func (v *Vault) IndexPath() string    { return filepath.Join(v.root, indexDir, "artifacts.db") }
func (v *Vault) AuditLogPath() string { return filepath.Join(v.root, auditDir, "audit_log.ndjson") }
func (v *Vault) StagingPath() string  { return filepath.Join(v.root, stagingDir) }
func (v *Vault) ExportsPath() string  { return filepath.Join(v.root, exportsDir) }

// EncryptionStatusDetails returns the VAULT_ENCRYPTION_STATUS audit
// payload.
func (v *Vault) EncryptionStatusDetails() map[string]any {
	algorithm := string(v.cfg.Encryption.Algorithm)
	if !v.cfg.Encryption.AtRest {
		algorithm = "NONE"
	}
	return map[string]any{
		"encryption_at_rest": v.cfg.Encryption.AtRest,
		"algorithm":          algorithm,
		"key_storage":        string(v.keyState.KeyStorage),
	}
}

// RotateKey generates a fresh DEK under a new key id, calls reencrypt
// with the old and new ciphers so the caller can rewrite stored
// payloads, then persists the new wrapped DEK. On reencrypt failure
// the old key state remains in force.
//
// Returns the VAULT_KEY_ROTATED audit payload.
func (v *Vault) RotateKey(newKeyID string, reencrypt func(oldCipher, newCipher Cipher) error) (map[string]any, error) {
	if !v.cfg.Encryption.AtRest {
		return nil, fmt.Errorf("vault: key rotation requires encryption at rest")
	}
	identity, err := loadOrCreateKEK(filepath.Join(v.root, metaDir))
	if err != nil {
		return nil, err
	}
	newDEK, err := generateDEK()
	if err != nil {
		return nil, err
	}
	newCipher := newXChaChaCipher(newDEK)
	if reencrypt != nil {
		if err := reencrypt(v.cipher, newCipher); err != nil {
			return nil, fmt.Errorf("vault: re-encrypting blobs: %w", err)
		}
	}
	wrapped, err := wrapDEK(newDEK, identity)
	if err != nil {
		return nil, err
	}
	oldKeyID := v.keyState.KeyID
	state := keyState{KeyID: newKeyID, KeyStorage: v.keyState.KeyStorage, WrappedDEK: wrapped}
	if err := saveKeyState(filepath.Join(v.root, metaDir), state); err != nil {
		return nil, err
	}
	v.keyState = state
	v.cipher = newCipher
	v.logger.Info("vault key rotated", "vault_id", v.cfg.VaultID, "old_key_id", oldKeyID, "new_key_id", newKeyID)

	return map[string]any{
		"old_key_id": oldKeyID,
		"new_key_id": newKeyID,
	}, nil
}
