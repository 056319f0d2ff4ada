package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidValue is returned for values a snapshot cannot hold exactly.
var ErrInvalidValue = errors.New("value cannot be stored")

// Record is one entity instance. Values are always normalised, see Normalize.
type Record map[string]any

// Reserved field names assigned by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Normalize converts v into one of the value types a Record may hold. NaN,
// infinities, invalid UTF-8 and malformed blobs are rejected with
// ErrInvalidValue, so a stored record always encodes.
func Normalize(v any) (any, error) {
	value, err := normalize(v)
	if err != nil {
		return nil, err
	}

	switch value := value.(type) {
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("%w: float %v", ErrInvalidValue, value)
		}
	case string:
		if !utf8.ValidString(value) {
			return nil, fmt.Errorf("%w: string %q is not valid UTF-8", ErrInvalidValue, value)
		}
	case json.RawMessage:
		if !json.Valid(value) {
			return nil, fmt.Errorf("%w: blob is not valid JSON", ErrInvalidValue)
		}
	}
	return value, nil
}

func normalize(v any) (any, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case int64, float64, string, bool:
		return value, nil
	case int:
		return int64(value), nil
	case json.RawMessage:
		if value == nil {
			return nil, nil
		}
		return append(json.RawMessage(nil), value...), nil
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i, nil
		}
		f, err := value.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", value, err)
		}
		return f, nil
	case time.Time:
		return FormatTime(value), nil
	case *time.Time:
		if value == nil {
			return nil, nil
		}
		return FormatTime(*value), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, rv.Uint())
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}

	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T as blob: %w", v, err)
	}
	return json.RawMessage(blob), nil
}

// MustNormalize is Normalize for values known to be representable.
func MustNormalize(v any) any {
	value, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return value
}

// Equal reports strict equality of two normalised values. Integers and floats
// compare by numeric value; every other pair must share a type.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case json.RawMessage:
		y, ok := b.(json.RawMessage)
		return ok && bytes.Equal(x, y)
	case nil:
		return b == nil
	case int64:
		if y, ok := b.(float64); ok {
			return float64(x) == y
		}
		return a == b
	case float64:
		if y, ok := b.(int64); ok {
			return x == float64(y)
		}
		return a == b
	default:
		if _, ok := b.(json.RawMessage); ok {
			return false
		}
		return a == b
	}
}

// CoerceID turns an identifier parameter into an integer. Text is parsed.
func CoerceID(v any) (int64, bool) {
	switch value := v.(type) {
	case int64:
		return value, true
	case float64:
		if value == float64(int64(value)) {
			return int64(value), true
		}
		return 0, false
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	normalized, err := Normalize(v)
	if err != nil || normalized == nil {
		return 0, false
	}
	if _, ok := normalized.(json.RawMessage); ok {
		return 0, false
	}
	return CoerceID(normalized)
}

func (record Record) ID() int64 {
	id, _ := record.Int(FieldID)
	return id
}

func (record Record) Int(field string) (int64, bool) {
	switch value := record[field].(type) {
	case int64:
		return value, true
	case float64:
		if value == float64(int64(value)) {
			return int64(value), true
		}
	}
	return 0, false
}

func (record Record) String(field string) string {
	if s, ok := record[field].(string); ok {
		return s
	}
	return ""
}

func (record Record) Bool(field string) bool {
	b, _ := record[field].(bool)
	return b
}

// Time parses a timestamp field. Zero time and false when unset or malformed.
func (record Record) Time(field string) (time.Time, bool) {
	s, ok := record[field].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (record Record) IsNull(field string) bool {
	return record[field] == nil
}

// Clone returns a copy that shares no mutable state with record.
func (record Record) Clone() Record {
	if record == nil {
		return nil
	}
	clone := make(Record, len(record))
	for key, value := range record {
		if blob, ok := value.(json.RawMessage); ok {
			value = append(json.RawMessage(nil), blob...)
		}
		clone[key] = value
	}
	return clone
}
