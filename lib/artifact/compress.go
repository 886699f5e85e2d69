// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm of a blob
// payload. Tags are stored in container headers; changing a value
// breaks blob format compatibility.
type CompressionTag uint8

const (
	// CompressionNone stores the payload uncompressed. Chosen when
	// compression does not reduce the size (already-compressed
	// media, ciphertext-like input).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is the fast default for binary content.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is used for text-like content, where the
	// better ratio pays for the extra CPU.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// selectCompression picks a tag from the declared content type.
func selectCompression(contentType string) CompressionTag {
	base := contentType
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(base)
	switch {
	case strings.HasPrefix(base, "text/"),
		strings.HasSuffix(base, "+json"), base == "application/json",
		strings.HasSuffix(base, "+xml"), base == "application/xml",
		base == "application/x-ndjson":
		return CompressionZstd
	case strings.HasPrefix(base, "image/"), strings.HasPrefix(base, "video/"),
		strings.HasPrefix(base, "audio/"), base == "application/zip",
		base == "application/gzip", base == "application/pdf":
		return CompressionNone
	default:
		return CompressionLZ4
	}
}

// compressPayload compresses data with the given tag. Falls back to
// CompressionNone when the compressed form is not smaller, returning
// the tag actually used.
func compressPayload(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		compressed := make([]byte, 8+lz4.CompressBlockBound(len(data)))
		binary.BigEndian.PutUint64(compressed[:8], uint64(len(data)))
		n, err := lz4.CompressBlock(data, compressed[8:], nil)
		if err != nil {
			return nil, 0, fmt.Errorf("artifact: lz4 compression: %w", err)
		}
		if n == 0 || 8+n >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed[:8+n], CompressionLZ4, nil

	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, 0, fmt.Errorf("artifact: zstd encoder: %w", err)
		}
		compressed := encoder.EncodeAll(data, nil)
		encoder.Close()
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("artifact: unknown compression tag %d", tag)
	}
}

// decompressPayload reverses compressPayload.
func decompressPayload(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		if len(data) < 8 {
			return nil, fmt.Errorf("artifact: lz4 payload shorter than length prefix")
		}
		size := binary.BigEndian.Uint64(data[:8])
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[8:], out)
		if err != nil {
			return nil, fmt.Errorf("artifact: lz4 decompression: %w", err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("artifact: lz4 decompressed %d bytes, want %d", n, size)
		}
		return out, nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd decoder: %w", err)
		}
		defer decoder.Close()
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd decompression: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("artifact: unknown compression tag %d", tag)
	}
}
