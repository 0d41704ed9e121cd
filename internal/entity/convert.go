package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// jsonValue serializes a Go value into a JSON column on write.
type jsonValue struct {
	v any
}

func (j jsonValue) Value() (driver.Value, error) {
	if j.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.v)
}

// jsonScan decodes a JSON column into the wrapped destination on read.
type jsonScan struct {
	dst any
}

func (j jsonScan) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(s) == 0 {
			return nil
		}
		return json.Unmarshal(s, j.dst)
	case string:
		if s == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), j.dst)
	default:
		return fmt.Errorf("entity: cannot scan %T into json column", src)
	}
}

func setString(dst *string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("entity: expected string, got %T", v)
	}
	*dst = s
	return nil
}

func setStringPtr(dst **string, v any) error {
	switch s := v.(type) {
	case nil:
		*dst = nil
	case string:
		*dst = &s
	case *string:
		*dst = s
	default:
		return fmt.Errorf("entity: expected string or nil, got %T", v)
	}
	return nil
}

func setBool(dst *bool, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("entity: expected bool, got %T", v)
	}
	*dst = b
	return nil
}

func setInt(dst *int, v any) error {
	switch n := v.(type) {
	case int:
		*dst = n
	case int32:
		*dst = int(n)
	case int64:
		*dst = int(n)
	case float64:
		*dst = int(n)
	default:
		return fmt.Errorf("entity: expected integer, got %T", v)
	}
	return nil
}

func setTime(dst *time.Time, v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return fmt.Errorf("entity: expected time.Time, got %T", v)
	}
	*dst = t.UTC()
	return nil
}

func setTimePtr(dst **time.Time, v any) error {
	switch t := v.(type) {
	case nil:
		*dst = nil
	case time.Time:
		utc := t.UTC()
		*dst = &utc
	case *time.Time:
		if t == nil {
			*dst = nil
			break
		}
		utc := t.UTC()
		*dst = &utc
	default:
		return fmt.Errorf("entity: expected time.Time or nil, got %T", v)
	}
	return nil
}

func setAnyMap(dst *map[string]any, v any) error {
	switch m := v.(type) {
	case nil:
		*dst = map[string]any{}
	case map[string]any:
		*dst = m
	default:
		return fmt.Errorf("entity: expected map, got %T", v)
	}
	return nil
}

func setTrail(dst *[]AuditEntry, v any) error {
	switch t := v.(type) {
	case nil:
		*dst = []AuditEntry{}
	case []AuditEntry:
		*dst = t
	default:
		return fmt.Errorf("entity: expected audit trail, got %T", v)
	}
	return nil
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
