package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/nickyhof/AdOrchDB/sql"
	"go.uber.org/zap"
)

// Tx runs statements against the store inside RunTransaction. Mutations are
// applied immediately; the store is saved once when the transaction
// function returns without error. A failed transaction leaves its applied
// mutations in memory and skips the save.
type Tx struct {
	engine    *Engine
	id        string
	label     string
	logger    *zap.Logger
	dirty     bool
	done      bool
	mutations int
}

func (engine *Engine) begin() *Tx {
	id := uuid.NewString()
	return &Tx{
		engine: engine,
		id:     id,
		logger: engine.logger.With(zap.String("txn_id", id)),
	}
}

func (tx *Tx) finish() {
	tx.done = true
}

// ID is the correlation id of the transaction, used in logs.
func (tx *Tx) ID() string {
	return tx.id
}

// Now is the engine clock's current time.
func (tx *Tx) Now() time.Time {
	return tx.engine.clock.Now()
}

// SetMessage sets the message recorded with the save of this transaction.
func (tx *Tx) SetMessage(message string) {
	tx.label = message
}

func (tx *Tx) message() string {
	if tx.label != "" {
		return tx.label
	}
	return fmt.Sprintf("%d mutation(s), txn %s", tx.mutations, tx.id)
}

func (tx *Tx) markDirty() {
	tx.dirty = true
	tx.mutations++
}

// RunTransaction runs fn with exclusive access to the store and saves the
// store once if fn succeeds and changed anything. When fn fails its error is
// returned, nothing is saved and in-memory changes already made remain.
func (engine *Engine) RunTransaction(ctx context.Context, fn func(tx *Tx) error) (ps.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ps.Transaction{}, err
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	tx := engine.begin()
	defer tx.finish()

	tx.logger.Debug("transaction started")

	if err := fn(tx); err != nil {
		metrics.RecordTransaction(err)
		tx.logger.Debug("transaction failed, snapshot not written",
			zap.Int("mutations", tx.mutations),
			zap.Error(err))
		return ps.Transaction{}, err
	}

	if !tx.dirty {
		metrics.RecordTransaction(nil)
		tx.logger.Debug("transaction finished without changes")
		return ps.Transaction{}, nil
	}

	txn, err := engine.save(tx.message())
	metrics.RecordTransaction(err)
	if err != nil {
		return ps.Transaction{}, err
	}

	tx.logger.Debug("transaction committed",
		zap.Int("mutations", tx.mutations),
		zap.String("commit", txn.Id))
	return txn, nil
}

// InTransaction is RunTransaction for functions that produce a value.
func InTransaction[T any](ctx context.Context, engine *Engine, fn func(tx *Tx) (T, error)) (T, error) {
	var value T
	_, err := engine.RunTransaction(ctx, func(tx *Tx) (err error) {
		value, err = fn(tx)
		return err
	})
	return value, err
}

func (tx *Tx) check() error {
	if tx.done {
		return ErrTransactionDone
	}
	return nil
}

func (tx *Tx) observe(kind, table string, startTime time.Time, err error) {
	metrics.RecordStatement(kind, table, time.Since(startTime), err)
}

// LookupOne runs a textual row fetch or count inside the transaction. A count
// yields a record holding "count".
func (tx *Tx) LookupOne(statement string, params ...any) (core.Record, error) {
	parsed, err := tx.parse(statement)
	if err != nil {
		return nil, err
	}

	switch s := parsed.(type) {
	case sql.Count:
		return tx.countRecord(s, params)
	case sql.Find:
		return tx.First(s, params...)
	default:
		return nil, fmt.Errorf("%w: %s is not a lookup", ErrUnsupportedStatement, parsed.Type())
	}
}

// LookupAll runs a textual row fetch or count inside the transaction.
func (tx *Tx) LookupAll(statement string, params ...any) ([]core.Record, error) {
	parsed, err := tx.parse(statement)
	if err != nil {
		return nil, err
	}

	switch s := parsed.(type) {
	case sql.Count:
		record, err := tx.countRecord(s, params)
		if err != nil || record == nil {
			return nil, err
		}
		return []core.Record{record}, nil
	case sql.Find:
		return tx.Find(s, params...)
	default:
		return nil, fmt.Errorf("%w: %s is not a lookup", ErrUnsupportedStatement, parsed.Type())
	}
}

// Mutate runs a textual insert, update or delete inside the transaction.
func (tx *Tx) Mutate(statement string, params ...any) (MutationResult, error) {
	parsed, err := tx.parse(statement)
	if err != nil {
		return MutationResult{}, err
	}
	if !sql.IsMutation(parsed) {
		return MutationResult{}, fmt.Errorf("%w: %s is not a mutation", ErrUnsupportedStatement, parsed.Type())
	}
	return tx.Exec(parsed, params...)
}

func (tx *Tx) parse(statement string) (sql.Statement, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	parsed, err := sql.Parse(statement)
	if err != nil {
		tx.logger.Debug("statement rejected", zap.String("sql", statement), zap.Error(err))
		return nil, err
	}
	return parsed, nil
}

func (tx *Tx) countRecord(statement sql.Count, params []any) (core.Record, error) {
	count, err := tx.count(statement, params)
	if errors.Is(err, ErrUnknownCollection) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return core.Record{"count": int64(count)}, nil
}

// Exec runs a structural insert, update or delete. Updates and deletes of
// missing ids, and mutations of unknown collections, affect nothing.
func (tx *Tx) Exec(statement sql.Statement, params ...any) (result MutationResult, err error) {
	if err := tx.check(); err != nil {
		return MutationResult{}, err
	}
	if statement == nil {
		return MutationResult{}, ErrUnsupportedStatement
	}

	startTime := time.Now()
	defer func() {
		tx.observe(statement.Type().String(), statement.Target(), startTime, err)
	}()

	switch s := statement.(type) {
	case sql.Insert:
		result, err = tx.insert(s, params)
	case sql.Update:
		result, err = tx.update(s, params)
	case sql.Delete:
		result, err = tx.delete(s, params)
	default:
		return MutationResult{}, fmt.Errorf("%w: %s is not a mutation", ErrUnsupportedStatement, statement.Type())
	}

	if errors.Is(err, ErrUnknownCollection) {
		tx.logger.Debug("mutation of unknown collection", zap.String("table", statement.Target()))
		return MutationResult{}, nil
	}
	return result, err
}

// Find returns every record matching the statement's predicate. Unknown
// collections yield nothing.
func (tx *Tx) Find(statement sql.Find, params ...any) (records []core.Record, err error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		tx.observe(sql.FindStatementType.String(), statement.Table, startTime, err)
	}()

	records, err = tx.find(statement, params, false)
	if errors.Is(err, ErrUnknownCollection) {
		return nil, nil
	}
	return records, err
}

// First returns the earliest record matching the statement's predicate, or
// nil when there is none.
func (tx *Tx) First(statement sql.Find, params ...any) (record core.Record, err error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		tx.observe(sql.FindStatementType.String(), statement.Table, startTime, err)
	}()

	records, err := tx.find(statement, params, true)
	if errors.Is(err, ErrUnknownCollection) {
		return nil, nil
	}
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Count returns the number of records matching the statement's predicate.
// Unknown collections count as empty.
func (tx *Tx) Count(statement sql.Count, params ...any) (count int, err error) {
	if err := tx.check(); err != nil {
		return 0, err
	}

	count, err = tx.count(statement, params)
	if errors.Is(err, ErrUnknownCollection) {
		return 0, nil
	}
	return count, err
}

func (tx *Tx) count(statement sql.Count, params []any) (count int, err error) {
	startTime := time.Now()
	defer func() {
		tx.observe(sql.CountStatementType.String(), statement.Table, startTime, err)
	}()

	table, err := tx.table(statement.Table)
	if err != nil {
		return 0, err
	}

	filterExpr, err := tx.filter(sql.CountStatementType, statement.Table, statement.Where, params)
	if err != nil {
		return 0, err
	}

	return table.CountWithFilter(filterExpr), nil
}

func (tx *Tx) find(statement sql.Find, params []any, first bool) ([]core.Record, error) {
	table, err := tx.table(statement.Table)
	if err != nil {
		return nil, err
	}

	if len(statement.Ignored) > 0 {
		if err := tx.degrade(sql.FindStatementType, statement.Table, strings.Join(statement.Ignored, " AND ")); err != nil {
			return nil, err
		}
	}

	filterExpr, err := tx.filter(sql.FindStatementType, statement.Table, statement.Where, params)
	if err != nil {
		return nil, err
	}

	if first {
		record, found := table.First(filterExpr)
		if !found {
			return nil, nil
		}
		return []core.Record{record}, nil
	}

	var records []core.Record
	for _, record := range table.ScanWithFilter(filterExpr) {
		records = append(records, record)
	}
	return records, nil
}

func (tx *Tx) insert(statement sql.Insert, params []any) (MutationResult, error) {
	table, err := tx.table(statement.Table)
	if err != nil {
		return MutationResult{}, err
	}

	fields := make(core.Record, len(statement.Columns))
	for i, column := range statement.Columns {
		operand := sql.Param(i)
		if statement.Values != nil {
			if i >= len(statement.Values) {
				fields[column] = nil
				continue
			}
			operand = statement.Values[i]
		}

		value, ok := operand.Resolve(params)
		if !ok {
			value = nil
		}
		fields[column] = value
	}

	record, err := table.Insert(fields, tx.Now())
	if err != nil {
		return MutationResult{}, err
	}
	tx.markDirty()

	id := record.ID()
	return MutationResult{AffectedCount: 1, InsertedID: &id}, nil
}

func (tx *Tx) update(statement sql.Update, params []any) (MutationResult, error) {
	table, err := tx.table(statement.Table)
	if err != nil {
		return MutationResult{}, err
	}

	target := sql.Param(len(params) - 1)
	if statement.ID != nil {
		target = *statement.ID
	}
	id, ok := resolveID(target, params)
	if !ok {
		return MutationResult{}, nil
	}

	fields := make(core.Record, len(statement.Assignments))
	for _, assignment := range statement.Assignments {
		value, ok := assignment.Value.Resolve(params)
		if !ok {
			continue
		}
		fields[assignment.Column] = value
	}

	updated, err := table.Update(id, fields, tx.Now())
	if err != nil {
		return MutationResult{}, err
	}
	if !updated {
		tx.logger.Debug("update of missing record", zap.String("table", statement.Table), zap.Int64("id", id))
		return MutationResult{}, nil
	}
	tx.markDirty()

	return MutationResult{AffectedCount: 1}, nil
}

func (tx *Tx) delete(statement sql.Delete, params []any) (MutationResult, error) {
	table, err := tx.table(statement.Table)
	if err != nil {
		return MutationResult{}, err
	}

	target := sql.Param(0)
	if statement.ID != nil {
		target = *statement.ID
	}
	id, ok := resolveID(target, params)
	if !ok {
		return MutationResult{}, nil
	}

	// A delete that removes nothing leaves the snapshot as it is, so no
	// save is triggered. Updates of missing ids behave the same way.
	if !table.Delete(id) {
		return MutationResult{}, nil
	}
	tx.markDirty()

	return MutationResult{AffectedCount: 1}, nil
}

func resolveID(operand sql.Operand, params []any) (int64, bool) {
	value, ok := operand.Resolve(params)
	if !ok {
		return 0, false
	}
	return core.CoerceID(value)
}
