package op

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/nickyhof/AdOrchDB/core"
)

// NextIDKey holds the per-collection auto-increment counters in a snapshot.
const NextIDKey = "_nextId"

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// EncodeSnapshot renders the store as one JSON object: every collection as an
// array of records, followed by the counters under NextIDKey. Integral floats
// keep a decimal point so they decode as floats again.
func (op *DatabaseOp) EncodeSnapshot() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	for i, name := range op.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, name)
		buf.WriteString(":[")
		for j, record := range op.tables[name].records {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeRecord(&buf, record); err != nil {
				return nil, fmt.Errorf("collection %s: %w", name, err)
			}
		}
		buf.WriteByte(']')
	}

	if len(op.order) > 0 {
		buf.WriteByte(',')
	}
	writeString(&buf, NextIDKey)
	buf.WriteString(":{")
	for i, name := range op.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, name)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatInt(op.tables[name].nextID, 10))
	}
	buf.WriteString("}}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent snapshot: %w", err)
	}
	out.WriteByte('\n')

	return out.Bytes(), nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot or by the
// original file layout. Missing counters are derived from the highest id.
func DecodeSnapshot(data []byte) (*DatabaseOp, error) {
	op := &DatabaseOp{tables: make(map[string]*TableOp)}

	if len(bytes.TrimSpace(data)) == 0 {
		return NewDatabase(), nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidSnapshot)
	}

	collections := make(map[string][]core.Record)
	var names []string
	var counters map[string]json.Number

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		key := token.(string)

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, key, err)
		}

		if key == NextIDKey {
			if err := json.Unmarshal(raw, &counters); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, key, err)
			}
			continue
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			// Only arrays are collections.
			continue
		}

		records, err := decodeRecords(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, key, err)
		}
		if _, seen := collections[key]; !seen {
			names = append(names, key)
		}
		collections[key] = records
	}

	for _, name := range names {
		var nextID int64
		if counter, ok := counters[name]; ok {
			nextID, err = counter.Int64()
			if err != nil {
				return nil, fmt.Errorf("%w: counter for %s: %v", ErrInvalidSnapshot, name, err)
			}
		}
		if err := op.CreateTable(name).load(collections[name], nextID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}

	for _, name := range core.BuiltinCollections {
		op.CreateTable(name)
	}

	return op, nil
}

func decodeRecords(data []byte) ([]core.Record, error) {
	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	records := make([]core.Record, 0, len(raws))
	for _, raw := range raws {
		record := make(core.Record, len(raw))
		for column, value := range raw {
			decoded, err := decodeValue(value)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", column, err)
			}
			record[column] = decoded
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, err
		}
		return json.RawMessage(compact.Bytes()), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, err
		}
		return b, nil
	case 'n':
		return nil, nil
	}

	text := string(trimmed)
	if !bytes.ContainsAny(trimmed, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func writeRecord(buf *bytes.Buffer, record core.Record) error {
	columns := make([]string, 0, len(record))
	for column := range record {
		if column != core.FieldID {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)
	if _, ok := record[core.FieldID]; ok {
		columns = slices.Insert(columns, 0, core.FieldID)
	}

	buf.WriteByte('{')
	for i, column := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, column)
		buf.WriteByte(':')
		if err := writeValue(buf, record[column]); err != nil {
			return fmt.Errorf("column %s: %w", column, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("unsupported float %v", v)
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		if !bytes.ContainsAny(encoded, ".eE") {
			buf.WriteString(".0")
		}
	case json.RawMessage:
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return err
		}
		buf.Write(compact.Bytes())
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}
