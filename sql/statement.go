package sql

import (
	"fmt"
	"sort"
	"strings"
)

type StatementType int

const (
	FindStatementType StatementType = iota
	CountStatementType
	InsertStatementType
	UpdateStatementType
	DeleteStatementType
)

func (t StatementType) String() string {
	switch t {
	case FindStatementType:
		return "find"
	case CountStatementType:
		return "count"
	case InsertStatementType:
		return "insert"
	case UpdateStatementType:
		return "update"
	case DeleteStatementType:
		return "delete"
	default:
		return "unknown"
	}
}

// Statement is one of Find, Count, Insert, Update or Delete.
type Statement interface {
	Type() StatementType
	Target() string
}

// IsMutation reports whether executing s changes the store.
func IsMutation(s Statement) bool {
	switch s.Type() {
	case InsertStatementType, UpdateStatementType, DeleteStatementType:
		return true
	default:
		return false
	}
}

type Find struct {
	Table string
	Where Predicate
	// Ignored holds the text of WHERE conditions that are not evaluated.
	Ignored []string
}

type Count struct {
	Table string
	Where Predicate
}

// Insert binds Values to Columns. Without Values, parameters bind to the
// columns in order.
type Insert struct {
	Table   string
	Columns []string
	Values  []Operand
}

// Update targets the record whose id is ID, or the final parameter when ID is nil.
type Update struct {
	Table       string
	Assignments []Assignment
	ID          *Operand
}

// Delete targets the record whose id is ID, or the first parameter when ID is nil.
type Delete struct {
	Table string
	ID    *Operand
}

type Assignment struct {
	Column string
	Value  Operand
}

func (s Find) Type() StatementType   { return FindStatementType }
func (s Count) Type() StatementType  { return CountStatementType }
func (s Insert) Type() StatementType { return InsertStatementType }
func (s Update) Type() StatementType { return UpdateStatementType }
func (s Delete) Type() StatementType { return DeleteStatementType }

func (s Find) Target() string   { return s.Table }
func (s Count) Target() string  { return s.Table }
func (s Insert) Target() string { return s.Table }
func (s Update) Target() string { return s.Table }
func (s Delete) Target() string { return s.Table }

type OperandKind int

const (
	// ParamOperand refers to a positional parameter.
	ParamOperand OperandKind = iota
	// ValueOperand carries a value resolved before execution.
	ValueOperand
	// RawOperand is an expression the interpreter does not evaluate.
	RawOperand
)

type Operand struct {
	Kind  OperandKind
	Index int
	Value any
	Raw   string
}

func Param(index int) Operand {
	return Operand{Kind: ParamOperand, Index: index}
}

func Value(v any) Operand {
	return Operand{Kind: ValueOperand, Value: v}
}

func Raw(text string) Operand {
	return Operand{Kind: RawOperand, Raw: text}
}

// Resolve returns the operand's value against params. The second result is
// false for raw operands and for parameters that were not supplied.
func (o Operand) Resolve(params []any) (any, bool) {
	switch o.Kind {
	case ParamOperand:
		if o.Index < 0 || o.Index >= len(params) {
			return nil, false
		}
		return params[o.Index], true
	case ValueOperand:
		return o.Value, true
	default:
		return nil, false
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case ParamOperand:
		return fmt.Sprintf("$%d", o.Index+1)
	case ValueOperand:
		return fmt.Sprintf("%v", o.Value)
	default:
		return o.Raw
	}
}

// Predicate is the closed set of filters the interpreter evaluates:
// None, Equals, DeadlineBefore and Unsupported.
type Predicate interface {
	predicate()
	String() string
}

type None struct{}

// Equals matches records whose Column equals Value.
type Equals struct {
	Column string
	Value  Operand
}

// DeadlineBefore matches records with a set sla_deadline earlier than Before.
// When Status is set, only records with that status match.
type DeadlineBefore struct {
	Before Operand
	Status *Operand
}

// Unsupported is a WHERE clause outside the closed set. It only comes from text.
type Unsupported struct {
	Text string
}

func (None) predicate()           {}
func (Equals) predicate()         {}
func (DeadlineBefore) predicate() {}
func (Unsupported) predicate()    {}

func (None) String() string { return "none" }

func (p Equals) String() string {
	return p.Column + " = " + p.Value.String()
}

func (p DeadlineBefore) String() string {
	if p.Status != nil {
		return "sla_deadline < " + p.Before.String() + " AND status = " + p.Status.String()
	}
	return "sla_deadline < " + p.Before.String()
}

func (p Unsupported) String() string {
	return "unsupported(" + p.Text + ")"
}

// Fields is a set of column values for the builders below.
type Fields map[string]any

func (fields Fields) columns() []string {
	columns := make([]string, 0, len(fields))
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func InsertInto(table string, fields Fields) Insert {
	statement := Insert{Table: table}
	for _, column := range fields.columns() {
		statement.Columns = append(statement.Columns, column)
		statement.Values = append(statement.Values, Value(fields[column]))
	}
	return statement
}

func UpdateByID(table string, id int64, fields Fields) Update {
	target := Value(id)
	statement := Update{Table: table, ID: &target}
	for _, column := range fields.columns() {
		statement.Assignments = append(statement.Assignments, Assignment{Column: column, Value: Value(fields[column])})
	}
	return statement
}

func DeleteByID(table string, id int64) Delete {
	target := Value(id)
	return Delete{Table: table, ID: &target}
}

func FindAll(table string) Find {
	return Find{Table: table, Where: None{}}
}

func FindWhere(table, column string, value any) Find {
	return Find{Table: table, Where: Eq(column, value)}
}

func CountAll(table string) Count {
	return Count{Table: table, Where: None{}}
}

func CountWhere(table string, where Predicate) Count {
	return Count{Table: table, Where: where}
}

func Eq(column string, value any) Equals {
	return Equals{Column: column, Value: Value(value)}
}

// PendingDeadlineBefore matches pending records whose deadline is earlier than before.
func PendingDeadlineBefore(before any) DeadlineBefore {
	status := Value("pending")
	return DeadlineBefore{Before: Value(before), Status: &status}
}

// stripQualifier drops a table alias from a column reference ("s.approval_id").
func stripQualifier(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
