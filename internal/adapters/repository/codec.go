package repository

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals a stored value. A nil value decodes to the zero T with
// ok == false. A corrupt value is reported as ErrStoreUnavailable.
func Decode[T any](raw []byte) (v T, ok bool, err error) {
	if raw == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, Unavailable("decode record", err)
	}
	return v, true, nil
}

// Encode marshals a value for storage.
func Encode[T any](v T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

// DecodeAll unmarshals listed records in order.
func DecodeAll[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		v, _, err := Decode[T](r.Value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", r.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
