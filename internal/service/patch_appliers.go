package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

// Patch payloads arrive as sparse field maps. A key that is absent leaves the
// entity untouched; a key that is present is applied, including explicit
// nulls where the field is nullable. The readers below report presence
// separately from the decoded value.

func requireKnownFields(fields map[string]json.RawMessage, known ...string) error {
	allowed := make(map[string]struct{}, len(known))
	for _, name := range known {
		allowed[name] = struct{}{}
	}
	for name := range fields {
		if _, ok := allowed[name]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown field %q", name))
		}
	}
	return nil
}

func readString(fields map[string]json.RawMessage, key string) (*string, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, false, nil
	}
	if isNull(raw) {
		return nil, true, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, true, err
	}
	return &value, true, nil
}

func readInt(fields map[string]json.RawMessage, key string) (int, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	// null is a no-op for Unmarshal into an int; reject it explicitly.
	if isNull(raw) {
		return 0, true, fmt.Errorf("field %q cannot be null", key)
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, true, err
	}
	return value, true, nil
}

func readFloat(fields map[string]json.RawMessage, key string) (float64, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	if isNull(raw) {
		return 0, true, fmt.Errorf("field %q cannot be null", key)
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, true, err
	}
	return value, true, nil
}

// readID decodes a reference field. Clients tend to send small ints for ids,
// so the value is widened through json.Number to the 64-bit key type.
func readID(fields map[string]json.RawMessage, key string) (*int64, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, false, nil
	}
	if isNull(raw) {
		return nil, true, nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return nil, true, err
	}
	id, err := number.Int64()
	if err != nil {
		float, ferr := number.Float64()
		if ferr != nil {
			return nil, true, err
		}
		id = int64(float)
	}
	return &id, true, nil
}

func readDate(fields map[string]json.RawMessage, key string) (time.Time, bool, error) {
	str, ok, err := readString(fields, key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	if str == nil {
		return time.Time{}, true, fmt.Errorf("field %q cannot be null", key)
	}
	date, err := time.Parse("2006-01-02", *str)
	if err != nil {
		return time.Time{}, true, err
	}
	return date, true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
