package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a JSON encoded list column (ids, account types)
type StringList []string

// Scan implements the sql.Scanner interface for StringList
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSON list value: %v", value)
	}

	result := make(StringList, 0)
	if len(bytes) == 0 {
		*l = result
		return nil
	}
	err := json.Unmarshal(bytes, &result)
	*l = result
	return err
}

// Value implements the driver.Valuer interface for StringList
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether v is in the list
func (l StringList) Contains(v string) bool {
	for _, item := range l {
		if item == v {
			return true
		}
	}
	return false
}
