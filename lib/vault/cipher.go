// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/docket-foundation/docket/lib/schema"
)

// Cipher is the encrypted-bytes interface the artifact store
// delegates through. The store never sees key material — it hands
// plaintext in and gets sealed bytes out.
type Cipher interface {
	// Seal encrypts plaintext. The nonce is generated internally and
	// prepended to the returned ciphertext.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts ciphertext produced by Seal.
	Open(ciphertext []byte) ([]byte, error)

	// Algorithm names the cipher for audit details and snapshots.
	Algorithm() schema.EncryptionAlgorithm
}

// Passthrough is the Cipher used when encryption at rest is disabled.
// Seal and Open return their input unchanged.
type Passthrough struct{}

func (Passthrough) Seal(plaintext []byte) ([]byte, error)  { return plaintext, nil }
func (Passthrough) Open(ciphertext []byte) ([]byte, error) { return ciphertext, nil }
func (Passthrough) Algorithm() schema.EncryptionAlgorithm  { return "" }

// xchachaCipher seals with XChaCha20-Poly1305 under a 32-byte DEK.
type xchachaCipher struct {
	dek [32]byte
}

func newXChaChaCipher(dek [32]byte) *xchachaCipher {
	return &xchachaCipher{dek: dek}
}

func (c *xchachaCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.dek[:])
	if err != nil {
		return nil, fmt.Errorf("vault: initializing cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *xchachaCipher) Open(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.dek[:])
	if err != nil {
		return nil, fmt.Errorf("vault: initializing cipher: %w", err)
	}
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("vault: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:chacha20poly1305.NonceSizeX], ciphertext[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypting blob: %w", err)
	}
	return plaintext, nil
}

func (c *xchachaCipher) Algorithm() schema.EncryptionAlgorithm {
	return schema.AlgXChaCha20Poly1305
}
