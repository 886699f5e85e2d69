// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	// Repetitive content so both algorithms actually compress.
	content := bytes.Repeat([]byte("docket docket docket docket\n"), 200)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		compressed, used, err := compressPayload(content, tag)
		if err != nil {
			t.Fatalf("%s: compress: %v", tag, err)
		}
		if tag != CompressionNone && used == CompressionNone {
			t.Errorf("%s: repetitive content should compress", tag)
		}
		restored, err := decompressPayload(compressed, used)
		if err != nil {
			t.Fatalf("%s: decompress: %v", tag, err)
		}
		if !bytes.Equal(restored, content) {
			t.Errorf("%s: round trip mismatch", tag)
		}
	}
}

func TestCompressFallsBackOnIncompressible(t *testing.T) {
	// High-entropy-ish input: compressed form should not be smaller.
	content := make([]byte, 512)
	for i := range content {
		content[i] = byte(i*197 + i*i*31)
	}
	_, used, err := compressPayload(content, CompressionLZ4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if used != CompressionNone {
		t.Skipf("input compressed unexpectedly; fallback not exercised")
	}
}

func TestSelectCompression(t *testing.T) {
	cases := map[string]CompressionTag{
		"text/plain":                 CompressionZstd,
		"text/markdown; charset=utf-8": CompressionZstd,
		"application/json":           CompressionZstd,
		"application/x-ndjson":       CompressionZstd,
		"image/png":                  CompressionNone,
		"application/pdf":            CompressionNone,
		"application/octet-stream":   CompressionLZ4,
		"":                           CompressionLZ4,
	}
	for contentType, want := range cases {
		if got := selectCompression(contentType); got != want {
			t.Errorf("selectCompression(%q) = %s, want %s", contentType, got, want)
		}
	}
}
