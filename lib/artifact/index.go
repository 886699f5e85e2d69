// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/lib/sqlitepool"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id         TEXT PRIMARY KEY,
	sha256              TEXT NOT NULL UNIQUE,
	bytes               INTEGER NOT NULL,
	content_type        TEXT NOT NULL,
	classification      TEXT NOT NULL,
	tags                TEXT NOT NULL,
	logical_role        TEXT NOT NULL,
	retention_policy_id TEXT NOT NULL
);
`

func openIndex(path string, logger *slog.Logger) (*sqlitepool.Pool, error) {
	return sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, indexSchema, nil)
		},
	})
}

func (s *Store) insert(ctx context.Context, meta Metadata) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO artifacts
		(artifact_id, sha256, bytes, content_type, classification, tags, logical_role, retention_policy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			meta.ArtifactID, meta.SHA256, meta.Bytes, meta.ContentType,
			string(meta.Classification), joinTags(meta.Tags),
			string(meta.LogicalRole), meta.RetentionPolicyID,
		},
	})
	if err != nil {
		return fmt.Errorf("artifact: indexing %s: %w", meta.ArtifactID, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, artifactID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM artifacts WHERE artifact_id = ?`, &sqlitex.ExecOptions{
		Args: []any{artifactID},
	})
	if err != nil {
		return fmt.Errorf("artifact: removing index row %s: %w", artifactID, err)
	}
	return nil
}

// nextSequence returns the highest assigned artifact number. Ids are
// never reused: deletion leaves a permanent gap, so a new artifact
// can never collide with (or impersonate) a deleted one.
func (s *Store) nextSequence(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var highest int64
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(CAST(substr(artifact_id, 3) AS INTEGER)), 0) FROM artifacts`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				highest = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("artifact: reading id sequence: %w", err)
	}
	return highest, nil
}

func (s *Store) metaByID(ctx context.Context, artifactID string) (Metadata, error) {
	return s.metaWhere(ctx, "artifact_id = ?", artifactID)
}

func (s *Store) metaBySHA(ctx context.Context, sha string) (Metadata, error) {
	return s.metaWhere(ctx, "sha256 = ?", sha)
}

func (s *Store) metaWhere(ctx context.Context, where string, arg string) (Metadata, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Metadata{}, err
	}
	defer s.pool.Put(conn)

	var meta Metadata
	found := false
	err = sqlitex.Execute(conn, `SELECT artifact_id, sha256, bytes, content_type,
		classification, tags, logical_role, retention_policy_id
		FROM artifacts WHERE `+where, &sqlitex.ExecOptions{
		Args: []any{arg},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			meta = rowToMetadata(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: querying index: %w", err)
	}
	if !found {
		return Metadata{}, fmt.Errorf("artifact: not found")
	}
	return meta, nil
}

// List returns all artifacts ordered by artifact_id.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var metas []Metadata
	err = sqlitex.Execute(conn, `SELECT artifact_id, sha256, bytes, content_type,
		classification, tags, logical_role, retention_policy_id
		FROM artifacts ORDER BY artifact_id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			metas = append(metas, rowToMetadata(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: listing index: %w", err)
	}
	return metas, nil
}

func rowToMetadata(stmt *sqlite.Stmt) Metadata {
	return Metadata{
		ArtifactID:        stmt.ColumnText(0),
		SHA256:            stmt.ColumnText(1),
		Bytes:             stmt.ColumnInt64(2),
		ContentType:       stmt.ColumnText(3),
		Classification:    schema.Classification(stmt.ColumnText(4)),
		Tags:              splitTags(stmt.ColumnText(5)),
		LogicalRole:       schema.LogicalRole(stmt.ColumnText(6)),
		RetentionPolicyID: stmt.ColumnText(7),
	}
}

func joinTags(tags []schema.Tag) string {
	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = string(tag)
	}
	return strings.Join(parts, ",")
}

func splitTags(joined string) []schema.Tag {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	tags := make([]schema.Tag, len(parts))
	for i, part := range parts {
		tags[i] = schema.Tag(part)
	}
	return tags
}
