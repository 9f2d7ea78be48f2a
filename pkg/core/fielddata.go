package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldData holds an item's schema-defined attributes in the order the
// upstream API returned them. The order matters: search text is built by
// walking the fields in sequence, so it must survive decoding, storage and
// re-encoding. The zero value is an empty, usable FieldData.
type FieldData struct {
	keys   []string
	values map[string]any
}

// Field is a single key/value pair, used to build FieldData literals.
type Field struct {
	Key   string
	Value any
}

// NewFieldData builds a FieldData from pairs, keeping their order.
func NewFieldData(fields ...Field) FieldData {
	var fd FieldData
	for _, f := range fields {
		fd.Set(f.Key, f.Value)
	}
	return fd
}

// Set stores v under key. A new key is appended; an existing key keeps its
// position and takes the new value.
func (fd *FieldData) Set(key string, v any) {
	if fd.values == nil {
		fd.values = make(map[string]any)
	}
	if _, exists := fd.values[key]; !exists {
		fd.keys = append(fd.keys, key)
	}
	fd.values[key] = v
}

// Get returns the raw value stored under key.
func (fd FieldData) Get(key string) (any, bool) {
	v, ok := fd.values[key]
	return v, ok
}

// String returns the value under key when it is a plain string, "" otherwise.
func (fd FieldData) String(key string) string {
	if s, ok := fd.values[key].(string); ok {
		return s
	}
	return ""
}

// Keys returns the field names in order.
func (fd FieldData) Keys() []string {
	out := make([]string, len(fd.keys))
	copy(out, fd.keys)
	return out
}

func (fd FieldData) Len() int {
	return len(fd.keys)
}

// Range calls fn for every field in order until fn returns false.
func (fd FieldData) Range(fn func(key string, value any) bool) {
	for _, k := range fd.keys {
		if !fn(k, fd.values[k]) {
			return
		}
	}
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (fd FieldData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range fd.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(fd.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order. Numbers are kept
// as json.Number so large integers survive a round trip; null decodes to an
// empty FieldData.
func (fd *FieldData) UnmarshalJSON(data []byte) error {
	*fd = FieldData{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading field data: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("field data must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading field name: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected field name token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding field %q: %w", key, err)
		}
		fd.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("closing field data: %w", err)
	}
	return nil
}
