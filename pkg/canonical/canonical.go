// Package canonical produces the deterministic JSON form of a value that is
// signed and verified by the proof engine.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON encoding of v: object keys sorted
// lexicographically at every level, no insignificant whitespace, no HTML
// escaping, and numbers reproduced exactly as they were written.
//
// Structs are first normalised through their json tags so that a struct and
// the map decoded from its JSON canonicalise to the same bytes. A []byte or
// json.RawMessage argument is taken to be JSON text.
func Marshal(v any) ([]byte, error) {
	normalised, err := normalise(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys, which gives the required key order.
	if err := enc.Encode(normalised); err != nil {
		return nil, fmt.Errorf("failed to create canonical json: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// String is Marshal returning a string.
func String(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalise(v any) (any, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to marshal value: %w", err)
		}
		raw = buf.Bytes()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode value: trailing data")
	}
	return out, nil
}
