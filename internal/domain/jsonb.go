package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var errUnsupportedJSONSource = errors.New("unsupported source type for JSON column")

// JSONBMap maps a JSONB object column to map[string]any.
type JSONBMap map[string]any

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if data == nil {
		*j = nil
		return nil
	}
	if len(data) == 0 {
		*j = JSONBMap{}
		return nil
	}
	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer. Nil and empty maps are stored as {}.
func (j JSONBMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(j))
}

// JSONValue maps a nullable JSONB column holding any JSON value.
type JSONValue struct {
	V any
}

// Scan implements sql.Scanner.
func (j *JSONValue) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		j.V = nil
		return nil
	}
	return json.Unmarshal(data, &j.V)
}

// Value implements driver.Valuer. A nil V is stored as SQL NULL.
func (j JSONValue) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	return json.Marshal(j.V)
}

// MarshalJSON renders the wrapped value.
func (j JSONValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

// UnmarshalJSON fills the wrapped value.
func (j *JSONValue) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &j.V)
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedJSONSource, value)
	}
}
