package op

import (
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/nickyhof/AdOrchDB/core"
)

// TableOp is one collection: records in insertion order plus the
// auto-increment counter for their ids.
type TableOp struct {
	Name    string
	records []core.Record
	// positions maps record id to its index in records.
	positions map[int64]int
	nextID    int64
}

func newTable(name string) *TableOp {
	return &TableOp{
		Name:      name,
		positions: make(map[int64]int),
		nextID:    1,
	}
}

// NextID is the id the next insert will receive.
func (op *TableOp) NextID() int64 {
	return op.nextID
}

// Insert stores a copy of fields under a fresh id. id, created_at and
// updated_at are always assigned here, whatever fields carries.
func (op *TableOp) Insert(fields core.Record, now time.Time) (core.Record, error) {
	record := make(core.Record, len(fields)+3)
	for column, value := range fields {
		normalized, err := normalizeField(column, value)
		if err != nil {
			return nil, err
		}
		record[column] = normalized
	}

	stamp := core.FormatTime(now)
	id := op.nextID
	op.nextID++

	record[core.FieldID] = id
	record[core.FieldCreatedAt] = stamp
	record[core.FieldUpdatedAt] = stamp

	op.positions[id] = len(op.records)
	op.records = append(op.records, record)

	return record.Clone(), nil
}

func (op *TableOp) Get(id int64) (core.Record, bool) {
	i, exists := op.positions[id]
	if !exists {
		return nil, false
	}
	return op.records[i].Clone(), true
}

// Update writes fields onto the record with the given id and refreshes
// updated_at. The id and created_at fields cannot be overwritten.
func (op *TableOp) Update(id int64, fields core.Record, now time.Time) (bool, error) {
	i, exists := op.positions[id]
	if !exists {
		return false, nil
	}

	changes := make(core.Record, len(fields))
	for column, value := range fields {
		if column == core.FieldID || column == core.FieldCreatedAt {
			continue
		}
		normalized, err := normalizeField(column, value)
		if err != nil {
			return false, err
		}
		changes[column] = normalized
	}

	record := op.records[i]
	for column, value := range changes {
		record[column] = value
	}
	record[core.FieldUpdatedAt] = core.FormatTime(now)

	return true, nil
}

func (op *TableOp) Delete(id int64) bool {
	i, exists := op.positions[id]
	if !exists {
		return false
	}

	op.records = append(op.records[:i], op.records[i+1:]...)
	delete(op.positions, id)
	for j := i; j < len(op.records); j++ {
		op.positions[op.records[j].ID()] = j
	}

	return true
}

func (op *TableOp) Count() int {
	return len(op.records)
}

func (op *TableOp) Keys() []int64 {
	keys := make([]int64, 0, len(op.records))
	for _, record := range op.records {
		keys = append(keys, record.ID())
	}
	return keys
}

// First returns the earliest stored record matching filterExpr, or the first
// record when filterExpr is nil.
func (op *TableOp) First(filterExpr func(record core.Record) bool) (core.Record, bool) {
	for _, record := range op.ScanWithFilter(filterExpr) {
		return record, true
	}
	return nil, false
}

// Scan yields copies of every record in insertion order.
func (op *TableOp) Scan() iter.Seq2[int64, core.Record] {
	return op.ScanWithFilter(nil)
}

func (op *TableOp) ScanWithFilter(filterExpr func(record core.Record) bool) iter.Seq2[int64, core.Record] {
	return func(yield func(int64, core.Record) bool) {
		for _, record := range op.records {
			if filterExpr != nil && !filterExpr(record) {
				continue
			}
			if !yield(record.ID(), record.Clone()) {
				return
			}
		}
	}
}

// CountWithFilter counts matching records without copying them.
func (op *TableOp) CountWithFilter(filterExpr func(record core.Record) bool) int {
	if filterExpr == nil {
		return len(op.records)
	}
	count := 0
	for _, record := range op.records {
		if filterExpr(record) {
			count++
		}
	}
	return count
}

// load replaces the contents of the collection. nextID is raised above the
// highest stored id when it would otherwise reuse one.
func (op *TableOp) load(records []core.Record, nextID int64) error {
	op.records = make([]core.Record, 0, len(records))
	op.positions = make(map[int64]int, len(records))

	var maxID int64
	for _, record := range records {
		id, ok := record.Int(core.FieldID)
		if !ok || id <= 0 {
			return fmt.Errorf("collection %s: record without a positive id", op.Name)
		}
		if _, duplicate := op.positions[id]; duplicate {
			return fmt.Errorf("collection %s: duplicate id %d", op.Name, id)
		}
		record[core.FieldID] = id
		op.positions[id] = len(op.records)
		op.records = append(op.records, record)
		maxID = max(maxID, id)
	}

	op.nextID = max(nextID, maxID+1, 1)
	return nil
}

func normalizeField(column string, value any) (any, error) {
	if !utf8.ValidString(column) {
		return nil, fmt.Errorf("%w: column name %q is not valid UTF-8", core.ErrInvalidValue, column)
	}
	normalized, err := core.Normalize(value)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", column, err)
	}
	return normalized, nil
}
