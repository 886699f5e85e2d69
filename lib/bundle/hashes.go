// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/docket-foundation/docket/lib/schema"
)

// HashRow is one line of artifact_hashes.csv.
type HashRow struct {
	ArtifactID    string
	BundleRelPath string
	SHA256        string
	Bytes         int64
	ContentType   string
	LogicalRole   schema.LogicalRole
}

// hashCSVHeader is the fixed column order.
var hashCSVHeader = []string{"artifact_id", "bundle_rel_path", "sha256", "bytes", "content_type", "logical_role"}

// OutputArtifactID derives the ledger id of an exported file from its
// bundle-relative path.
func OutputArtifactID(bundleRelPath string) string {
	return "o:" + bundleRelPath
}

// RenderHashCSV sorts rows by (artifact_id, bundle_rel_path) and
// renders the ledger with '\n' line endings.
func RenderHashCSV(rows []HashRow) ([]byte, error) {
	sorted := make([]HashRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ArtifactID != sorted[j].ArtifactID {
			return sorted[i].ArtifactID < sorted[j].ArtifactID
		}
		return sorted[i].BundleRelPath < sorted[j].BundleRelPath
	})

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(hashCSVHeader); err != nil {
		return nil, fmt.Errorf("bundle: writing csv header: %w", err)
	}
	for _, row := range sorted {
		record := []string{
			row.ArtifactID, row.BundleRelPath, row.SHA256,
			strconv.FormatInt(row.Bytes, 10), row.ContentType, string(row.LogicalRole),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("bundle: writing csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("bundle: flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHashCSV reads the ledger back, checking the header and the
// sort order.
func ParseHashCSV(data []byte) ([]HashRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("bundle: reading csv header: %w", err)
	}
	if len(header) != len(hashCSVHeader) {
		return nil, fmt.Errorf("bundle: csv header has %d columns, want %d", len(header), len(hashCSVHeader))
	}
	for i, name := range hashCSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("bundle: csv column %d is %q, want %q", i, header[i], name)
		}
	}

	var rows []HashRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: reading csv row: %w", err)
		}
		size, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bundle: csv bytes column: %w", err)
		}
		rows = append(rows, HashRow{
			ArtifactID:    record[0],
			BundleRelPath: record[1],
			SHA256:        record[2],
			Bytes:         size,
			ContentType:   record[4],
			LogicalRole:   schema.LogicalRole(record[5]),
		})
	}

	if !sort.SliceIsSorted(rows, func(i, j int) bool {
		if rows[i].ArtifactID != rows[j].ArtifactID {
			return rows[i].ArtifactID < rows[j].ArtifactID
		}
		return rows[i].BundleRelPath < rows[j].BundleRelPath
	}) {
		return nil, fmt.Errorf("bundle: csv rows not sorted by artifact_id then bundle_rel_path")
	}
	return rows, nil
}
