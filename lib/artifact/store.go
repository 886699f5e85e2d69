// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/docket-foundation/docket/lib/runtime"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/lib/sqlitepool"
	"github.com/docket-foundation/docket/lib/vault"
)

// Metadata is the recorded description of one stored artifact.
type Metadata struct {
	ArtifactID        string
	SHA256            string
	Bytes             int64
	ContentType       string
	Classification    schema.Classification
	Tags              []schema.Tag
	LogicalRole       schema.LogicalRole
	RetentionPolicyID string
}

// ListEntry converts the metadata to its artifact_list.json form.
func (m *Metadata) ListEntry() schema.ArtifactListEntry {
	tags := m.Tags
	if tags == nil {
		tags = []schema.Tag{}
	}
	return schema.ArtifactListEntry{
		ArtifactID:        m.ArtifactID,
		SHA256:            m.SHA256,
		Bytes:             m.Bytes,
		ContentType:       m.ContentType,
		LogicalRole:       m.LogicalRole,
		Classification:    m.Classification,
		Tags:              tags,
		RetentionPolicyID: m.RetentionPolicyID,
	}
}

// PutRequest describes the artifact being ingested.
type PutRequest struct {
	ContentType       string
	Classification    schema.Classification
	Tags              []schema.Tag
	LogicalRole       schema.LogicalRole
	RetentionPolicyID string
}

// Config holds the parameters for opening a Store.
type Config struct {
	// BlobsDir is the directory for blob containers.
	BlobsDir string

	// IndexPath is the SQLite metadata index file.
	IndexPath string

	// Cipher is the vault's encrypted-bytes interface. Required;
	// use vault.Passthrough{} when encryption at rest is off.
	Cipher vault.Cipher

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Store is a vault's artifact store. Safe for concurrent readers;
// writes serialize internally.
type Store struct {
	blobsDir string
	cipher   vault.Cipher
	pool     *sqlitepool.Pool
	logger   *slog.Logger

	// writeMu serializes Put and Delete. Content addressing makes
	// concurrent identical writes converge, but id assignment reads
	// the highest assigned id and must not race another insert.
	writeMu sync.Mutex
}

// Open opens the store, creating the blob directory and index schema
// as needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Cipher == nil {
		return nil, fmt.Errorf("artifact: cipher is required")
	}
	if err := os.MkdirAll(cfg.BlobsDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating blobs directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pool, err := openIndex(cfg.IndexPath, logger)
	if err != nil {
		return nil, err
	}
	return &Store{
		blobsDir: cfg.BlobsDir,
		cipher:   cfg.Cipher,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Close releases the metadata index.
func (s *Store) Close() error { return s.pool.Close() }

// Put ingests content. Identical bytes ingested twice return the
// existing artifact unchanged — identity is the content hash.
func (s *Store) Put(ctx context.Context, content []byte, req PutRequest) (Metadata, error) {
	if !req.Classification.Valid() {
		return Metadata{}, fmt.Errorf("artifact: invalid classification %q", req.Classification)
	}
	digest := sha256.Sum256(content)
	sha := hex.EncodeToString(digest[:])

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if existing, err := s.metaBySHA(ctx, sha); err == nil {
		return existing, nil
	}

	highest, err := s.nextSequence(ctx)
	if err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		ArtifactID:        fmt.Sprintf("a_%04d", highest+1),
		SHA256:            sha,
		Bytes:             int64(len(content)),
		ContentType:       req.ContentType,
		Classification:    req.Classification,
		Tags:              req.Tags,
		LogicalRole:       req.LogicalRole,
		RetentionPolicyID: req.RetentionPolicyID,
	}

	tag := selectCompression(req.ContentType)
	compressed, tag, err := compressPayload(content, tag)
	if err != nil {
		return Metadata{}, err
	}
	sealed, err := s.cipher.Seal(compressed)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: sealing payload: %w", err)
	}

	header := containerHeader{
		Version:     containerVersion,
		SHA256:      sha,
		Size:        meta.Bytes,
		ContentType: req.ContentType,
		Compression: uint8(tag),
		Encrypted:   s.cipher.Algorithm() != "",
	}
	if err := writeContainer(s.blobPath(sha), header, sealed); err != nil {
		return Metadata{}, err
	}
	if err := s.insert(ctx, meta); err != nil {
		// The orphaned blob is harmless (content-addressed) but
		// remove it to keep the tree tidy.
		os.Remove(s.blobPath(sha))
		return Metadata{}, err
	}

	s.logger.Debug("artifact stored",
		"artifact_id", meta.ArtifactID, "sha256", sha,
		"bytes", meta.Bytes, "compression", tag.String())
	return meta, nil
}

// Get retrieves the original bytes of an artifact and re-verifies the
// recorded SHA-256 — the chain-of-custody invariant.
func (s *Store) Get(ctx context.Context, artifactID string) ([]byte, error) {
	meta, err := s.Meta(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	header, payload, err := readContainer(s.blobPath(meta.SHA256))
	if err != nil {
		return nil, runtime.Wrap(runtime.KindArtifactMissing, err, "artifact %s", artifactID)
	}
	opened, err := s.cipher.Open(payload)
	if err != nil {
		return nil, fmt.Errorf("artifact: opening payload of %s: %w", artifactID, err)
	}
	content, err := decompressPayload(opened, CompressionTag(header.Compression))
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(content)
	if hex.EncodeToString(digest[:]) != meta.SHA256 {
		return nil, runtime.New(runtime.KindArtifactMissing,
			"artifact %s bytes do not re-hash to recorded sha256", artifactID)
	}
	return content, nil
}

// Meta returns the recorded metadata of an artifact.
func (s *Store) Meta(ctx context.Context, artifactID string) (Metadata, error) {
	meta, err := s.metaByID(ctx, artifactID)
	if err != nil {
		return Metadata{}, runtime.Wrap(runtime.KindArtifactMissing, err, "artifact %s", artifactID)
	}
	return meta, nil
}

// Delete removes an artifact's bytes and metadata. It attempts an
// overwrite-then-unlink scrub first, degrades to unlink-only, and
// reports fs_unsupported when the bytes could not be removed at all.
// The returned method is recorded in the DELETION_COMPLETED event.
func (s *Store) Delete(ctx context.Context, artifactID string) (schema.DeletionMethod, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	meta, err := s.metaByID(ctx, artifactID)
	if err != nil {
		return schema.DeleteFSUnsupported, runtime.Wrap(runtime.KindArtifactMissing, err, "artifact %s", artifactID)
	}

	path := s.blobPath(meta.SHA256)
	method := schema.DeleteOverwriteThenUnlink
	if err := overwriteFile(path); err != nil {
		method = schema.DeleteUnlinkOnly
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return schema.DeleteFSUnsupported, fmt.Errorf("artifact: unlinking %s: %w", path, err)
	}
	if err := s.remove(ctx, artifactID); err != nil {
		return method, err
	}
	s.logger.Info("artifact deleted",
		"artifact_id", artifactID, "method", string(method))
	return method, nil
}

// ReencryptAll rewrites every blob payload from oldCipher to
// newCipher. Used by vault key rotation.
func (s *Store) ReencryptAll(ctx context.Context, oldCipher, newCipher vault.Cipher) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	metas, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		path := s.blobPath(meta.SHA256)
		header, payload, err := readContainer(path)
		if err != nil {
			return err
		}
		plaintext, err := oldCipher.Open(payload)
		if err != nil {
			return fmt.Errorf("artifact: opening %s for re-encryption: %w", meta.ArtifactID, err)
		}
		resealed, err := newCipher.Seal(plaintext)
		if err != nil {
			return fmt.Errorf("artifact: resealing %s: %w", meta.ArtifactID, err)
		}
		header.Encrypted = newCipher.Algorithm() != ""
		if err := writeContainer(path, header, resealed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) blobPath(sha string) string {
	return filepath.Join(s.blobsDir, sha[:2], sha+".blob")
}
