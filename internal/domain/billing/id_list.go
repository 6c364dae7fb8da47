package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IDList is an insertion-ordered set of ids stored as a JSON array
type IDList []uuid.UUID

// Contains reports whether id is in the list
func (l IDList) Contains(id uuid.UUID) bool {
	return lo.Contains(l, id)
}

// with returns a copy of the list with id appended if absent
func (l IDList) with(id uuid.UUID) IDList {
	if l.Contains(id) {
		return l
	}
	out := make(IDList, len(l), len(l)+1)
	copy(out, l)
	return append(out, id)
}

// Value implements driver.Valuer interface for GORM to store as JSON
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]uuid.UUID(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSON
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = IDList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan IDList: unsupported type")
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(bytes, &ids); err != nil {
		return fmt.Errorf("failed to unmarshal IDList: %w", err)
	}
	*l = ids
	return nil
}
