package types

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Null represents a value of any type T that may be null. The zero value is
// null. Unlike a pointer it survives copying, and unlike a bare T it keeps
// the distinction between "never set" and "set to the zero value", which the
// bento manifest format encodes as explicit YAML nulls.
type Null[T any] struct {
	value T
	valid bool
}

// NullWithValue creates a new, valid Null[T].
func NullWithValue[T any](value T) Null[T] {
	return Null[T]{value: value, valid: true}
}

// Valid reports whether the value is set.
func (n Null[T]) Valid() bool {
	return n.valid
}

// Value returns the value of the Null[T] if set, otherwise it returns the
// provided default value or the zero value of T.
func (n Null[T]) Value(defaultValue ...T) T {
	if n.valid {
		return n.value
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	var zero T
	return zero
}

// SetValue sets the value of the Null[T].
func (n *Null[T]) SetValue(t T) {
	n.value = t
	n.valid = true
}

// MarshalJSON implements [json.Marshaler].
func (n Null[T]) MarshalJSON() ([]byte, error) {
	if n.valid {
		return json.Marshal(n.value)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (n *Null[T]) UnmarshalJSON(data []byte) error {
	if string(data) != "null" {
		if err := json.Unmarshal(data, &n.value); err != nil {
			return err
		}
		n.valid = true
	}
	return nil
}

// MarshalYAML implements [yaml.Marshaler]. Unset values are encoded as an
// explicit null.
func (n Null[T]) MarshalYAML() (any, error) {
	if n.valid {
		return n.value, nil
	}
	return nil, nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (n *Null[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		var zero T
		n.value, n.valid = zero, false
		return nil
	}
	if err := node.Decode(&n.value); err != nil {
		return err
	}
	n.valid = true
	return nil
}

// IsZero reports whether the value is null. It makes `omitempty` treat unset
// values as empty when a Null[T] appears in build configuration structs.
func (n Null[T]) IsZero() bool {
	return !n.valid
}
