package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical produces the canonical JSON encoding of v for identity
// computation: object keys sorted bytewise, no HTML escaping, numbers kept
// as their literal JSON representation. Values that cannot be represented
// as JSON (channels, functions, cycles) return a *KeyComputationError.
//
// This is the only serialization that may feed digest computation; two
// values with equal canonical bytes are identical for caching purposes.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &KeyComputationError{Reason: "value is not serializable", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, &KeyComputationError{Reason: "reparse serialized value", Err: err}
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		names := make([]string, 0, len(val))
		for k := range val {
			names = append(names, k)
		}
		sort.Strings(names)
		buf.WriteByte('{')
		for i, k := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &KeyComputationError{Reason: fmt.Sprintf("unsupported type %T in canonical JSON", v)}
	}
	return nil
}

// writeCanonicalString encodes s as a JSON string without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return &KeyComputationError{Reason: "encode string", Err: err}
	}
	// Encode appends a newline.
	buf.Write(bytes.TrimRight(sb.Bytes(), "\n"))
	return nil
}
