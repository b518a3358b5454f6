package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Attribute is one label/value pair read from a listing's detail table.
type Attribute struct {
	Label string
	Value string
}

// Attributes keeps detail-page pairs in the order they were first seen.
// Labels keep their original casing; lookups are case-insensitive.
type Attributes []Attribute

// Set replaces the value of an existing label in place or appends a new pair.
func (a *Attributes) Set(label, value string) {
	for i := range *a {
		if strings.EqualFold((*a)[i].Label, label) {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Label: label, Value: value})
}

// Get returns the value for label, ignoring case.
func (a Attributes) Get(label string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Label, label) {
			return attr.Value, true
		}
	}
	return "", false
}

// MarshalJSON writes the pairs as a JSON object, preserving order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(attr.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object back into ordered pairs.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}

	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attributes: value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
