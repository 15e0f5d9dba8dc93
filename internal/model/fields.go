package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is an ordered bag of JSON values keyed by name. Values are kept as raw
// JSON so they survive storage and forwarding byte-for-byte.
type Fields struct {
	keys   []string
	values map[string]json.RawMessage
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns field names in insertion order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the raw JSON value for key.
func (f *Fields) Get(key string) (json.RawMessage, bool) {
	if f == nil || f.values == nil {
		return nil, false
	}
	v, ok := f.values[key]
	return v, ok
}

// Set stores a raw JSON value. Existing keys keep their position.
func (f *Fields) Set(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("field %q: invalid json value", key)
	}
	if f.values == nil {
		f.values = make(map[string]json.RawMessage)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

// SetValue marshals value and stores it under key.
func (f *Fields) SetValue(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal field %q: %w", key, err)
	}
	return f.Set(key, raw)
}

// Decode unmarshals the value stored under key into dst.
func (f *Fields) Decode(key string, dst interface{}) error {
	raw, ok := f.Get(key)
	if !ok {
		return fmt.Errorf("field %q not found", key)
	}
	return json.Unmarshal(raw, dst)
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	f.writeMembers(&buf, false)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return decodeObject(data, func(key string, value json.RawMessage) error {
		return f.Set(key, value)
	})
}

// writeMembers appends "key":value pairs. When leadingComma is set a comma is
// written before the first member.
func (f *Fields) writeMembers(buf *bytes.Buffer, leadingComma bool) {
	for i, key := range f.keys {
		if i > 0 || leadingComma {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(key)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(f.values[key])
	}
}

// decodeObject walks the members of a JSON object in document order.
func decodeObject(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected json object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
