// Package product defines the crawled product record, its optional fields,
// and the derived size chart.
package product

import (
	"bytes"
	"encoding/json"
)

// Field holds a value that an extractor either found or did not.
// The zero value is absent.
type Field[T any] struct {
	value T
	ok    bool
}

// Some returns a present field.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, ok: true}
}

// None returns an absent field.
func None[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.ok
}

// Present reports whether the field holds a value.
func (f Field[T]) Present() bool {
	return f.ok
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (f Field[T]) Ptr() *T {
	if !f.ok {
		return nil
	}
	v := f.value
	return &v
}

// MarshalJSON encodes an absent field as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.ok {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON treats null as absent.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}
