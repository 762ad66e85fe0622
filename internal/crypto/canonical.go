package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON serializes v deterministically: object keys are sorted
// recursively and HTML escaping is disabled, so byte-identical input
// structures always produce byte-identical output regardless of field
// insertion order. The result is the exact preimage for hashing and
// signing structured payloads.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through encoding/json to normalize structs, typed maps and
	// numbers into the generic representation before canonical encoding.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto.CanonicalJSON: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("crypto.CanonicalJSON: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, fmt.Errorf("crypto.CanonicalJSON: %w", err)
	}

	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(val.String())
		return nil

	default:
		return writeScalar(buf, val)
	}
}

// writeScalar encodes strings, bools and null without HTML escaping.
func writeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline; strip it to keep the stream compact.
	buf.Truncate(buf.Len() - 1)
	return nil
}
