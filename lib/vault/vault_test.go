// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/docket-foundation/docket/lib/schema"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	created, err := Create(root, DefaultConfig("v_test"), Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sealed, err := created.Cipher().Seal([]byte("secret bytes"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret bytes")) {
		t.Error("sealed output should not contain plaintext")
	}

	opened, err := Open(root, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	plaintext, err := opened.Cipher().Open(sealed)
	if err != nil {
		t.Fatalf("Open cipher: %v", err)
	}
	if string(plaintext) != "secret bytes" {
		t.Errorf("round trip = %q", plaintext)
	}
}

func TestKEKIdentityFileMode(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	if _, err := Create(root, DefaultConfig("v_test"), Options{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "meta", "kek_identity.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("identity mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestEncryptionStatusDetails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := Create(root, DefaultConfig("v_test"), Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	details := v.EncryptionStatusDetails()
	if details["encryption_at_rest"] != true {
		t.Error("encryption_at_rest should be true")
	}
	if details["algorithm"] != string(schema.AlgXChaCha20Poly1305) {
		t.Errorf("algorithm = %v", details["algorithm"])
	}
	if details["key_storage"] != string(schema.KeyStorageFileFallback) {
		t.Errorf("key_storage = %v", details["key_storage"])
	}
}

func TestRotateKeyReencrypts(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := Create(root, DefaultConfig("v_test"), Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sealed, err := v.Cipher().Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	var resealed []byte
	details, err := v.RotateKey("kek_v2", func(oldCipher, newCipher Cipher) error {
		plaintext, err := oldCipher.Open(sealed)
		if err != nil {
			return err
		}
		resealed, err = newCipher.Seal(plaintext)
		return err
	})
	if err != nil {
		t.Fatalf("RotateKey: %v", err)
	}
	if details["old_key_id"] != "kek_v1" || details["new_key_id"] != "kek_v2" {
		t.Errorf("rotation details = %v", details)
	}

	// Old ciphertext must no longer open under the rotated cipher;
	// the re-encrypted copy must.
	if _, err := v.Cipher().Open(sealed); err == nil {
		t.Error("old ciphertext should not open under new DEK")
	}
	plaintext, err := v.Cipher().Open(resealed)
	if err != nil {
		t.Fatalf("Open resealed: %v", err)
	}
	if string(plaintext) != "payload" {
		t.Errorf("resealed round trip = %q", plaintext)
	}

	// A reopened vault uses the rotated key state.
	reopened, err := Open(root, Options{})
	if err != nil {
		t.Fatalf("Open vault: %v", err)
	}
	if _, err := reopened.Cipher().Open(resealed); err != nil {
		t.Errorf("reopened vault should decrypt resealed payload: %v", err)
	}
}

func TestPassthroughWhenEncryptionDisabled(t *testing.T) {
	cfg := DefaultConfig("v_plain")
	cfg.Encryption = EncryptionConfig{AtRest: false}
	v, err := Create(filepath.Join(t.TempDir(), "vault"), cfg, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sealed, err := v.Cipher().Seal([]byte("visible"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if string(sealed) != "visible" {
		t.Error("passthrough should not transform bytes")
	}
	if v.EncryptionStatusDetails()["algorithm"] != "NONE" {
		t.Error("disabled encryption should report algorithm NONE")
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	content := "vault_id: v_1\npolicy_mode: STRICT\nnetwork_mode: OFFLINE\nproof_level: OFFLINE_STRICT\nmystery: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown config field should be rejected")
	}
}
