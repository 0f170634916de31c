package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap stores loosely structured gateway payloads as a JSON column.
type JSONMap map[string]interface{}

// Value implements driver.Valuer for GORM.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for GORM.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported type for JSONMap")
	}
}
