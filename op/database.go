package op

import (
	"errors"
	"slices"

	"github.com/nickyhof/AdOrchDB/core"
)

var ErrUnknownCollection = errors.New("unknown collection")

// DatabaseOp owns every collection of the store.
type DatabaseOp struct {
	tables map[string]*TableOp
	// order is the snapshot order: built-in collections first, then by creation.
	order []string
}

// NewDatabase returns a store holding the built-in collections and any extra
// names given.
func NewDatabase(names ...string) *DatabaseOp {
	op := &DatabaseOp{tables: make(map[string]*TableOp)}
	for _, name := range core.BuiltinCollections {
		op.CreateTable(name)
	}
	for _, name := range names {
		op.CreateTable(name)
	}
	return op
}

// CreateTable returns the named collection, creating it empty when missing.
func (op *DatabaseOp) CreateTable(name string) *TableOp {
	if table, exists := op.tables[name]; exists {
		return table
	}
	table := newTable(name)
	op.tables[name] = table
	op.order = append(op.order, name)
	return table
}

func (op *DatabaseOp) GetTable(name string) (*TableOp, error) {
	table, exists := op.tables[name]
	if !exists {
		return nil, ErrUnknownCollection
	}
	return table, nil
}

func (op *DatabaseOp) TableNames() []string {
	return slices.Clone(op.order)
}

// Reset drops every collection and recreates the built-in ones empty.
func (op *DatabaseOp) Reset() {
	*op = *NewDatabase()
}
