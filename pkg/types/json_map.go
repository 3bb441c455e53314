package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores free-form enrichment metadata as a jsonb column.
type JSONMap map[string]any

// Value serializes the map for Postgres.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("jsonmap: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan deserializes a jsonb column into the map.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}

	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}
