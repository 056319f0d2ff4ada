package db

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/op"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/nickyhof/AdOrchDB/sql"
	"go.uber.org/zap"
)

var (
	ErrUnresolvedTarget     = sql.ErrUnresolvedTarget
	ErrUnknownCollection    = op.ErrUnknownCollection
	ErrUnsupportedPredicate = errors.New("unsupported predicate")
	ErrUnsupportedStatement = errors.New("unsupported statement")
	ErrPersistence          = errors.New("persistence failed")
	ErrTransactionDone      = errors.New("transaction already finished")
)

// Engine owns the record store. Every statement and every transaction runs
// under one mutex; mutations outside a transaction are saved before the call
// returns.
type Engine struct {
	mu          sync.Mutex
	store       *op.DatabaseOp
	persistence *ps.Persistence
	identity    core.Identity
	clock       core.Clock
	logger      *zap.Logger
	strict      bool
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(engine *Engine) {
		if logger != nil {
			engine.logger = logger
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(engine *Engine) {
		if clock != nil {
			engine.clock = clock
		}
	}
}

// WithStrict makes WHERE clauses outside the evaluated set fail with
// ErrUnsupportedPredicate instead of being ignored.
func WithStrict(strict bool) Option {
	return func(engine *Engine) {
		engine.strict = strict
	}
}

// NewEngine returns an engine over an empty store. Call Load to read the
// persisted snapshot. A nil persistence keeps the store in memory only.
func NewEngine(persistence *ps.Persistence, identity core.Identity, opts ...Option) *Engine {
	engine := &Engine{
		store:       op.NewDatabase(),
		persistence: persistence,
		identity:    identity,
		clock:       core.SystemClock{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (engine *Engine) Identity() core.Identity {
	return engine.identity
}

func (engine *Engine) Clock() core.Clock {
	return engine.clock
}

func (engine *Engine) Strict() bool {
	return engine.strict
}

func (engine *Engine) Persistence() *ps.Persistence {
	return engine.persistence
}

// CollectionInfo describes one collection of the store.
type CollectionInfo struct {
	Name    string
	Records int
	NextID  int64
}

func (engine *Engine) Collections() []CollectionInfo {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	var collections []CollectionInfo
	for _, name := range engine.store.TableNames() {
		table, err := engine.store.GetTable(name)
		if err != nil {
			continue
		}
		collections = append(collections, CollectionInfo{
			Name:    name,
			Records: table.Count(),
			NextID:  table.NextID(),
		})
	}
	return collections
}

// Load replaces the in-memory store with the persisted snapshot. A missing
// snapshot yields a fresh store.
func (engine *Engine) Load() error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.reload()
}

func (engine *Engine) reload() error {
	if !engine.persistence.IsInitialized() {
		engine.store = op.NewDatabase()
		return nil
	}

	data, err := engine.persistence.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	store, err := op.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	engine.store = store
	engine.logger.Info("snapshot loaded",
		zap.String("path", engine.persistence.SnapshotPath()),
		zap.Int("bytes", len(data)))
	return nil
}

// Save writes the current store whether or not anything changed.
func (engine *Engine) Save(message string) (ps.Transaction, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.save(message)
}

// Export encodes the current store as a snapshot.
func (engine *Engine) Export() ([]byte, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.store.EncodeSnapshot()
}

// Import replaces the store with a decoded snapshot and saves it.
func (engine *Engine) Import(data []byte, message string) (ps.Transaction, error) {
	store, err := op.DecodeSnapshot(data)
	if err != nil {
		return ps.Transaction{}, err
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	engine.store = store
	return engine.save(message)
}

// Restore writes the snapshot of an earlier save back as a new save and
// reloads the store from it.
func (engine *Engine) Restore(asof ps.Transaction) (ps.Transaction, error) {
	return engine.rewind(func() (ps.Transaction, error) {
		return engine.persistence.Restore(asof, engine.identity)
	})
}

// Recover restores the save tagged by a snapshot name.
func (engine *Engine) Recover(name string) (ps.Transaction, error) {
	return engine.rewind(func() (ps.Transaction, error) {
		return engine.persistence.Recover(name, engine.identity)
	})
}

func (engine *Engine) rewind(restore func() (ps.Transaction, error)) (ps.Transaction, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	txn, err := restore()
	if err != nil {
		return ps.Transaction{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := engine.reload(); err != nil {
		return txn, err
	}

	engine.logger.Info("store restored", zap.String("commit", txn.Id))
	return txn, nil
}

func (engine *Engine) save(message string) (ps.Transaction, error) {
	if !engine.persistence.IsInitialized() {
		return ps.Transaction{}, nil
	}

	data, err := engine.store.EncodeSnapshot()
	if err != nil {
		metrics.RecordSnapshotWrite(0, err)
		return ps.Transaction{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	txn, err := engine.persistence.Save(data, engine.identity, message)
	metrics.RecordSnapshotWrite(len(data), err)
	if err != nil {
		engine.logger.Error("snapshot write failed", zap.String("message", message), zap.Error(err))
		return ps.Transaction{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return txn, nil
}

// standalone runs fn as a single statement outside any caller transaction.
func (engine *Engine) standalone(fn func(tx *Tx) error) (ps.Transaction, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	tx := engine.begin()
	defer tx.finish()

	if err := fn(tx); err != nil {
		return ps.Transaction{}, err
	}
	if !tx.dirty {
		return ps.Transaction{}, nil
	}
	return engine.save(tx.message())
}

// LookupOne runs a textual row fetch or count and returns the first match,
// or nil when nothing matches.
func (engine *Engine) LookupOne(statement string, params ...any) (core.Record, error) {
	var record core.Record
	_, err := engine.standalone(func(tx *Tx) (err error) {
		record, err = tx.LookupOne(statement, params...)
		return err
	})
	return record, err
}

// LookupAll runs a textual row fetch or count and returns every match.
func (engine *Engine) LookupAll(statement string, params ...any) ([]core.Record, error) {
	var records []core.Record
	_, err := engine.standalone(func(tx *Tx) (err error) {
		records, err = tx.LookupAll(statement, params...)
		return err
	})
	return records, err
}

// Mutate runs a textual insert, update or delete and saves the store.
func (engine *Engine) Mutate(statement string, params ...any) (MutationResult, error) {
	var result MutationResult
	txn, err := engine.standalone(func(tx *Tx) (err error) {
		result, err = tx.Mutate(statement, params...)
		return err
	})
	result.Transaction = txn
	return result, err
}

// Exec runs a structural insert, update or delete and saves the store.
func (engine *Engine) Exec(statement sql.Statement, params ...any) (MutationResult, error) {
	var result MutationResult
	txn, err := engine.standalone(func(tx *Tx) (err error) {
		result, err = tx.Exec(statement, params...)
		return err
	})
	result.Transaction = txn
	return result, err
}

func (engine *Engine) Find(statement sql.Find, params ...any) ([]core.Record, error) {
	var records []core.Record
	_, err := engine.standalone(func(tx *Tx) (err error) {
		records, err = tx.Find(statement, params...)
		return err
	})
	return records, err
}

func (engine *Engine) First(statement sql.Find, params ...any) (core.Record, error) {
	var record core.Record
	_, err := engine.standalone(func(tx *Tx) (err error) {
		record, err = tx.First(statement, params...)
		return err
	})
	return record, err
}

func (engine *Engine) Count(statement sql.Count, params ...any) (int, error) {
	var count int
	_, err := engine.standalone(func(tx *Tx) (err error) {
		count, err = tx.Count(statement, params...)
		return err
	})
	return count, err
}

// Execute runs any textual statement and wraps the outcome for display.
func (engine *Engine) Execute(statement string, params ...any) (Result, error) {
	startTime := time.Now()

	parsed, err := sql.Parse(statement)
	if err != nil {
		return nil, err
	}

	if sql.IsMutation(parsed) {
		result, err := engine.Mutate(statement, params...)
		if err != nil {
			return nil, err
		}
		result.ExecutionTimeSec = time.Since(startTime).Seconds()
		return result, nil
	}

	records, err := engine.LookupAll(statement, params...)
	if err != nil {
		return nil, err
	}
	result := NewQueryResult(records)
	result.Transaction = engine.persistence.LatestTransaction()
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	return result, nil
}
