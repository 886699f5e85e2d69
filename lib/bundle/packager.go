// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// dosEpoch is the earliest instant the ZIP format can represent; the
// fixed per-entry timestamp of every deterministic bundle.
var dosEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// BundleFileName returns the export file name for a run.
func BundleFileName(runID string) string {
	return fmt.Sprintf("evidence_bundle_%s_v1.zip", runID)
}

// PackageZip packages a staging tree into a deterministic ZIP at
// outPath and returns the SHA-256 hex of the produced file.
//
// Determinism rules: entries sorted bytewise by bundle-relative path
// with '/' separators; directory entries included with mode 0755 and
// trailing '/'; files mode 0644, DEFLATE level 9; all timestamps
// pinned to the DOS epoch with no extra fields; empty archive
// comment.
func PackageZip(rootDir, outPath string) (string, error) {
	entries, err := collectEntries(rootDir)
	if err != nil {
		return "", err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("bundle: creating %s: %w", outPath, err)
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	writer.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, 9)
	})

	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.relPath}
		// Leaving Modified zero and setting the DOS fields directly
		// keeps the writer from emitting a timestamp extra field.
		header.ModifiedDate, header.ModifiedTime = dosDateTime(dosEpoch)

		if entry.isDir {
			header.Name += "/"
			header.SetMode(fs.ModeDir | 0o755)
			header.Method = zip.Store
			if _, err := writer.CreateHeader(header); err != nil {
				writer.Close()
				return "", fmt.Errorf("bundle: adding directory %s: %w", entry.relPath, err)
			}
			continue
		}

		header.SetMode(0o644)
		header.Method = zip.Deflate
		entryWriter, err := writer.CreateHeader(header)
		if err != nil {
			writer.Close()
			return "", fmt.Errorf("bundle: adding %s: %w", entry.relPath, err)
		}
		content, err := os.ReadFile(entry.absPath)
		if err != nil {
			writer.Close()
			return "", fmt.Errorf("bundle: reading %s: %w", entry.absPath, err)
		}
		if _, err := entryWriter.Write(content); err != nil {
			writer.Close()
			return "", fmt.Errorf("bundle: compressing %s: %w", entry.relPath, err)
		}
	}

	if err := writer.SetComment(""); err != nil {
		writer.Close()
		return "", fmt.Errorf("bundle: setting comment: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("bundle: finalizing zip: %w", err)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("bundle: syncing zip: %w", err)
	}

	return hashFile(outPath)
}

type zipEntry struct {
	relPath string
	absPath string
	isDir   bool
}

// collectEntries walks the staging tree and returns entries sorted
// bytewise by their '/'-separated relative path.
func collectEntries(rootDir string) ([]zipEntry, error) {
	var entries []zipEntry
	err := filepath.WalkDir(rootDir, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if absPath == rootDir {
			return nil
		}
		rel, err := filepath.Rel(rootDir, absPath)
		if err != nil {
			return err
		}
		entries = append(entries, zipEntry{
			relPath: filepath.ToSlash(rel),
			absPath: absPath,
			isDir:   d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: walking staging tree: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].relPath, entries[j].relPath) < 0
	})
	return entries, nil
}

// dosDateTime encodes t into the raw MS-DOS date and time fields.
func dosDateTime(t time.Time) (date uint16, timeOfDay uint16) {
	date = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	timeOfDay = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, timeOfDay
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("bundle: opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("bundle: hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
