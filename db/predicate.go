package db

import (
	"fmt"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/op"
	"github.com/nickyhof/AdOrchDB/sql"
	"go.uber.org/zap"
)

const (
	statusField   = "status"
	deadlineField = "sla_deadline"
)

func (tx *Tx) table(name string) (*op.TableOp, error) {
	if name == "" {
		return nil, ErrUnresolvedTarget
	}
	return tx.engine.store.GetTable(name)
}

// degrade reports a WHERE clause the interpreter does not evaluate. In strict
// mode it is an error; otherwise the clause is dropped.
func (tx *Tx) degrade(kind sql.StatementType, table, clause string) error {
	if tx.engine.strict {
		return fmt.Errorf("%w: %s on %s: %s", ErrUnsupportedPredicate, kind, table, clause)
	}

	metrics.RecordDegradedPredicate(kind.String(), table)
	tx.logger.Debug("predicate not evaluated",
		zap.Stringer("kind", kind),
		zap.String("table", table),
		zap.String("clause", clause))
	return nil
}

// filter compiles a predicate into a record filter. A nil filter matches
// every record.
func (tx *Tx) filter(kind sql.StatementType, table string, where sql.Predicate, params []any) (func(core.Record) bool, error) {
	switch p := where.(type) {
	case nil, sql.None:
		return nil, nil

	case sql.Equals:
		value, ok := p.Value.Resolve(params)
		if !ok {
			return nil, tx.degrade(kind, table, p.String()+" (unbound)")
		}
		return equalsFilter(p.Column, value)

	case sql.DeadlineBefore:
		before, ok := p.Before.Resolve(params)
		if !ok {
			return nil, tx.degrade(kind, table, p.String()+" (unbound)")
		}
		limit, err := core.Normalize(before)
		if err != nil {
			return nil, err
		}

		var status any
		if p.Status != nil {
			if value, ok := p.Status.Resolve(params); ok {
				if status, err = core.Normalize(value); err != nil {
					return nil, err
				}
			}
		}

		return func(record core.Record) bool {
			if status != nil && !core.Equal(record[statusField], status) {
				return false
			}
			return deadlineBefore(record[deadlineField], limit)
		}, nil

	case sql.Unsupported:
		return nil, tx.degrade(kind, table, p.Text)

	default:
		return nil, tx.degrade(kind, table, where.String())
	}
}

func equalsFilter(column string, value any) (func(core.Record) bool, error) {
	if column == core.FieldID {
		id, ok := core.CoerceID(value)
		return func(record core.Record) bool {
			return ok && record.ID() == id
		}, nil
	}

	normalized, err := core.Normalize(value)
	if err != nil {
		return nil, err
	}
	return func(record core.Record) bool {
		return core.Equal(record[column], normalized)
	}, nil
}

// deadlineBefore compares timestamps as instants when both parse, and as
// text otherwise. An unset deadline never matches.
func deadlineBefore(deadline, limit any) bool {
	d, ok := deadline.(string)
	if !ok || d == "" {
		return false
	}
	l, ok := limit.(string)
	if !ok {
		return false
	}

	dt, err := time.Parse(time.RFC3339Nano, d)
	if err != nil {
		return d < l
	}
	lt, err := time.Parse(time.RFC3339Nano, l)
	if err != nil {
		return d < l
	}
	return dt.Before(lt)
}
