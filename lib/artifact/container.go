// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// containerVersion is the blob container format version.
const containerVersion = 1

// containerHeader precedes the payload in every blob file. Encoded as
// deterministic CBOR, length-prefixed with a 4-byte big-endian size.
type containerHeader struct {
	Version     int    `cbor:"version"`
	SHA256      string `cbor:"sha256"`
	Size        int64  `cbor:"size"`
	ContentType string `cbor:"content_type"`
	Compression uint8  `cbor:"compression"`
	Encrypted   bool   `cbor:"encrypted"`

	// PayloadBLAKE3 is a 32-byte tag over the stored payload bytes
	// (after compression and sealing). Detects on-disk corruption
	// without touching key material.
	PayloadBLAKE3 []byte `cbor:"payload_blake3"`
}

var containerEncMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("artifact: CBOR encoder initialization failed: " + err.Error())
	}
	containerEncMode = mode
}

// writeContainer writes a blob file: 4-byte header length, CBOR
// header, payload. The file is written to a temp path and renamed so
// readers never observe a partial container.
func writeContainer(path string, header containerHeader, payload []byte) error {
	sum := blake3.Sum256(payload)
	header.PayloadBLAKE3 = sum[:]

	headerBytes, err := containerEncMode.Marshal(header)
	if err != nil {
		return fmt.Errorf("artifact: encoding container header: %w", err)
	}

	var buf bytes.Buffer
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(headerBytes)))
	buf.Write(lengthPrefix[:])
	buf.Write(headerBytes)
	buf.Write(payload)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: creating container directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("artifact: writing container: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("artifact: publishing container: %w", err)
	}
	return nil
}

// readContainer reads and checks a blob file, returning the header
// and the stored payload.
func readContainer(path string) (containerHeader, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return containerHeader{}, nil, fmt.Errorf("artifact: reading container: %w", err)
	}
	if len(data) < 4 {
		return containerHeader{}, nil, fmt.Errorf("artifact: container %s truncated", path)
	}
	headerLength := binary.BigEndian.Uint32(data[:4])
	if uint64(len(data)) < 4+uint64(headerLength) {
		return containerHeader{}, nil, fmt.Errorf("artifact: container %s header truncated", path)
	}

	var header containerHeader
	if err := cbor.Unmarshal(data[4:4+headerLength], &header); err != nil {
		return containerHeader{}, nil, fmt.Errorf("artifact: decoding container header: %w", err)
	}
	if header.Version != containerVersion {
		return containerHeader{}, nil, fmt.Errorf("artifact: unsupported container version %d", header.Version)
	}

	payload := data[4+headerLength:]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], header.PayloadBLAKE3) {
		return containerHeader{}, nil, fmt.Errorf("artifact: container %s payload integrity tag mismatch", path)
	}
	return header, payload, nil
}

// overwriteFile writes zeros over the full length of the file at
// path. Best-effort scrub before unlink; not a guarantee against
// copy-on-write or journaling filesystems.
func overwriteFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer file.Close()

	zeros := make([]byte, 64*1024)
	remaining := info.Size()
	for remaining > 0 {
		chunk := int64(len(zeros))
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := file.Write(zeros[:chunk]); err != nil {
			return err
		}
		remaining -= chunk
	}
	if err := file.Sync(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
