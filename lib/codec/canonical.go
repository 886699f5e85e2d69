// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrNonInteger is returned when a value contains a number that is not
// a base-10 integer. The canonical form admits no floats.
var ErrNonInteger = errors.New("codec: canonical JSON forbids non-integer numbers")

// Marshal encodes v to canonical JSON bytes.
//
// v is first rendered through encoding/json (so struct tags apply),
// then re-emitted in canonical form. Unrepresentable values — floats,
// NaN, channels, cycles — return an error.
func Marshal(v any) ([]byte, error) {
	intermediate, err := marshalNoHTMLEscape(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding value: %w", err)
	}
	return Canonicalize(intermediate)
}

// MarshalLine encodes v to canonical JSON followed by a single '\n'.
// This is the NDJSON line form used by the audit log.
func MarshalLine(v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes JSON data into v. Decoding is permissive: it
// accepts any well-formed JSON, canonical or not, so that validators
// can inspect malformed documents before rejecting them.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Canonicalize parses raw JSON text and re-emits it in canonical form.
// Canonicalize(Marshal(v)) == Marshal(v) for every representable v.
func Canonicalize(raw []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("codec: invalid JSON: %w", err)
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// marshalNoHTMLEscape renders v as ordinary JSON without the
// HTML-safe < escaping that json.Marshal applies by default.
// encoding/json already sorts map keys; the canonical pass re-sorts
// anyway so that hand-built json.RawMessage input is also covered.
func marshalNoHTMLEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder terminates with '\n'; strip it.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func ensureEOF(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("codec: invalid JSON: %w", err)
	}
	return errors.New("codec: invalid JSON: trailing data")
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, v)
	case json.Number:
		return writeNumber(buf, v.String())
	case []any:
		buf.WriteByte('[')
		for i, element := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, element); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("codec: unrepresentable value of type %T", value)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("codec: encoding string: %w", err)
	}
	// Drop the encoder's trailing newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// writeNumber validates that text is a canonical base-10 integer:
// optional leading '-', no leading zeros, no fraction, no exponent.
func writeNumber(buf *bytes.Buffer, text string) error {
	digits := text
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 {
		return fmt.Errorf("%w: %q", ErrNonInteger, text)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q", ErrNonInteger, text)
		}
	}
	if len(digits) > 1 && digits[0] == '0' {
		return fmt.Errorf("%w: leading zeros in %q", ErrNonInteger, text)
	}
	buf.WriteString(text)
	return nil
}
