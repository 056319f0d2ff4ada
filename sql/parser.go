package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnresolvedTarget   = errors.New("no target collection in statement")
	ErrMalformedStatement = errors.New("malformed statement")
)

const (
	deadlineColumn = "sla_deadline"
	statusColumn   = "status"
	typeColumn     = "type"
)

// Parser classifies a statement by locating keywords and a closed set of
// predicate shapes. It does not validate the rest of the grammar.
type Parser struct {
	tokens []Token
	// ordinals maps the index of each placeholder token to its parameter position.
	ordinals map[int]int
}

type span struct {
	start int
	end   int
}

func NewParser(sql string) *Parser {
	tokens := tokenize(sql)
	ordinals := make(map[int]int)
	for i, token := range tokens {
		if token.Type == Placeholder {
			ordinals[i] = len(ordinals)
		}
	}
	return &Parser{tokens: tokens, ordinals: ordinals}
}

func Parse(sql string) (Statement, error) {
	return NewParser(sql).Parse()
}

func (parser *Parser) Parse() (Statement, error) {
	table, err := parser.target()
	if err != nil {
		return nil, err
	}

	switch parser.tokens[0].Type {
	case InsertKeyword:
		return parser.parseInsert(table)
	case UpdateKeyword:
		return parser.parseUpdate(table)
	case DeleteKeyword:
		return Delete{Table: table}, nil
	}

	if parser.hasCountAll() {
		return Count{Table: table, Where: parser.countPredicate()}, nil
	}

	where, ignored := parser.findPredicate()
	return Find{Table: table, Where: where, Ignored: ignored}, nil
}

// target returns the identifier following the first FROM, INTO, UPDATE or TABLE.
func (parser *Parser) target() (string, error) {
	for i := 0; i+1 < len(parser.tokens); i++ {
		switch parser.tokens[i].Type {
		case From, Into, UpdateKeyword, TableIdentifier:
			next := parser.tokens[i+1]
			if next.Type == Identifier && next.Value != "" {
				return stripQualifier(next.Value), nil
			}
		}
	}
	return "", ErrUnresolvedTarget
}

func (parser *Parser) hasCountAll() bool {
	for i := 0; i+3 < len(parser.tokens); i++ {
		if parser.tokens[i].Type == CountKeyword &&
			parser.tokens[i+1].Type == ParenOpen &&
			parser.tokens[i+2].Type == Wildcard &&
			parser.tokens[i+3].Type == ParenClose {
			return true
		}
	}
	return false
}

func (parser *Parser) parseInsert(table string) (Statement, error) {
	statement := Insert{Table: table}

	open := parser.indexOf(ParenOpen, 0)
	if open < 0 || parser.tokens[open-1].Type == Values {
		return statement, nil
	}

	for _, item := range parser.splitList(open) {
		if item.end-item.start != 1 || parser.tokens[item.start].Type != Identifier {
			return nil, fmt.Errorf("%w: expected column name in INSERT column list", ErrMalformedStatement)
		}
		statement.Columns = append(statement.Columns, stripQualifier(parser.tokens[item.start].Value))
	}

	values := parser.indexOf(Values, open)
	if values < 0 || values+1 >= len(parser.tokens) || parser.tokens[values+1].Type != ParenOpen {
		return statement, nil
	}

	items := parser.splitList(values + 1)
	if len(items) != len(statement.Columns) {
		return statement, nil
	}

	for _, item := range items {
		statement.Values = append(statement.Values, parser.operand(item))
	}

	return statement, nil
}

func (parser *Parser) parseUpdate(table string) (Statement, error) {
	statement := Update{Table: table}

	set := parser.indexOf(Set, 0)
	if set < 0 {
		return nil, fmt.Errorf("%w: expected SET in UPDATE", ErrMalformedStatement)
	}

	end := len(parser.tokens) - 1
	if where := parser.topLevel(Where, set); where >= 0 {
		end = where
	}

	next := 0
	for _, item := range parser.split(span{set + 1, end}, Comma) {
		if item.end-item.start < 3 || parser.tokens[item.start].Type != Identifier || parser.tokens[item.start+1].Type != EqualsSign {
			continue
		}

		column := stripQualifier(parser.tokens[item.start].Value)
		rhs := span{item.start + 2, item.end}

		// A right-hand side holding a placeholder consumes exactly one parameter.
		if parser.hasPlaceholder(rhs) {
			statement.Assignments = append(statement.Assignments, Assignment{Column: column, Value: Param(next)})
			next++
			continue
		}
		statement.Assignments = append(statement.Assignments, Assignment{Column: column, Value: Raw(parser.render(rhs))})
	}

	return statement, nil
}

func (parser *Parser) countPredicate() Predicate {
	clause, conditions, ok := parser.whereConditions()
	if !ok {
		return None{}
	}
	if or := parser.topLevel(Or, clause.start); or >= 0 && or < clause.end {
		return Unsupported{Text: parser.render(clause)}
	}

	for i, condition := range conditions {
		before, ok := parser.comparison(condition, deadlineColumn, LessThan)
		if !ok {
			continue
		}

		predicate := DeadlineBefore{Before: before}
		for j, other := range conditions {
			if j == i || parser.isNotNull(other, deadlineColumn) {
				continue
			}
			status, ok := parser.comparison(other, statusColumn, EqualsSign)
			if !ok || predicate.Status != nil {
				return Unsupported{Text: parser.render(clause)}
			}
			predicate.Status = &status
		}
		return predicate
	}

	if len(conditions) == 1 {
		for _, column := range []string{statusColumn, typeColumn} {
			if value, ok := parser.comparison(conditions[0], column, EqualsSign); ok {
				return Equals{Column: column, Value: value}
			}
		}
	}

	return Unsupported{Text: parser.render(clause)}
}

func (parser *Parser) findPredicate() (Predicate, []string) {
	clause, conditions, ok := parser.whereConditions()
	if !ok {
		return None{}, nil
	}

	column, value, ok := parser.equality(conditions[0])
	if !ok {
		return Unsupported{Text: parser.render(clause)}, nil
	}

	var ignored []string
	for _, condition := range conditions[1:] {
		ignored = append(ignored, parser.render(condition))
	}
	if or := parser.topLevel(Or, clause.start); or >= 0 && or < clause.end {
		ignored = append(ignored, "OR")
	}

	return Equals{Column: column, Value: value}, ignored
}

// whereConditions returns the top-level WHERE clause split on AND and OR.
func (parser *Parser) whereConditions() (span, []span, bool) {
	where := parser.topLevel(Where, 0)
	if where < 0 {
		return span{}, nil, false
	}

	end := where + 1
	depth := 0
	for ; end < len(parser.tokens); end++ {
		token := parser.tokens[end]
		if token.Type == ParenOpen {
			depth++
		} else if token.Type == ParenClose {
			depth--
		}
		if depth == 0 && (token.Type == Order || token.Type == Group || token.Type == Limit || token.Type == Offset || token.Type == EOF) {
			break
		}
		if depth < 0 {
			break
		}
	}

	clause := span{where + 1, end}
	if clause.start >= clause.end {
		return span{}, nil, false
	}

	var conditions []span
	for _, condition := range parser.split(clause, And, Or) {
		if condition.start < condition.end {
			conditions = append(conditions, condition)
		}
	}
	if len(conditions) == 0 {
		return span{}, nil, false
	}
	return clause, conditions, true
}

// equality matches "column = ?" or "column = literal".
func (parser *Parser) equality(condition span) (string, Operand, bool) {
	if condition.end-condition.start != 3 {
		return "", Operand{}, false
	}
	left := parser.tokens[condition.start]
	if left.Type != Identifier || parser.tokens[condition.start+1].Type != EqualsSign {
		return "", Operand{}, false
	}
	right := span{condition.start + 2, condition.end}
	if !parser.isValue(right.start) {
		return "", Operand{}, false
	}
	return stripQualifier(left.Value), parser.operand(right), true
}

// comparison matches "column <op> value" for a specific column.
func (parser *Parser) comparison(condition span, column string, op TokenType) (Operand, bool) {
	if condition.end-condition.start != 3 {
		return Operand{}, false
	}
	left := parser.tokens[condition.start]
	if left.Type != Identifier || !strings.EqualFold(stripQualifier(left.Value), column) {
		return Operand{}, false
	}
	if parser.tokens[condition.start+1].Type != op || !parser.isValue(condition.start+2) {
		return Operand{}, false
	}
	return parser.operand(span{condition.start + 2, condition.end}), true
}

func (parser *Parser) isNotNull(condition span, column string) bool {
	if condition.end-condition.start != 4 {
		return false
	}
	left := parser.tokens[condition.start]
	return left.Type == Identifier &&
		strings.EqualFold(stripQualifier(left.Value), column) &&
		parser.tokens[condition.start+1].Type == Is &&
		parser.tokens[condition.start+2].Type == Not &&
		parser.tokens[condition.start+3].Type == Null
}

func (parser *Parser) isValue(i int) bool {
	switch parser.tokens[i].Type {
	case Placeholder, String, Int, Float, True, False, Null:
		return true
	default:
		return false
	}
}

// operand converts a span into a parameter reference, a literal value or raw text.
func (parser *Parser) operand(item span) Operand {
	if item.end-item.start != 1 {
		return Raw(parser.render(item))
	}

	token := parser.tokens[item.start]
	switch token.Type {
	case Placeholder:
		return Param(parser.ordinals[item.start])
	case String:
		return Value(token.Value)
	case Int:
		if i, err := strconv.ParseInt(token.Value, 10, 64); err == nil {
			return Value(i)
		}
		return Raw(token.Value)
	case Float:
		if f, err := strconv.ParseFloat(token.Value, 64); err == nil {
			return Value(f)
		}
		return Raw(token.Value)
	case True:
		return Value(true)
	case False:
		return Value(false)
	case Null:
		return Value(nil)
	default:
		return Raw(token.Value)
	}
}

func (parser *Parser) hasPlaceholder(item span) bool {
	for i := item.start; i < item.end; i++ {
		if parser.tokens[i].Type == Placeholder {
			return true
		}
	}
	return false
}

func (parser *Parser) indexOf(tokenType TokenType, from int) int {
	for i := from; i < len(parser.tokens); i++ {
		if parser.tokens[i].Type == tokenType {
			return i
		}
	}
	return -1
}

// topLevel finds the first token of the given type outside any parentheses.
func (parser *Parser) topLevel(tokenType TokenType, from int) int {
	depth := 0
	for i := from; i < len(parser.tokens); i++ {
		switch parser.tokens[i].Type {
		case ParenOpen:
			depth++
		case ParenClose:
			depth--
		}
		if depth == 0 && parser.tokens[i].Type == tokenType {
			return i
		}
	}
	return -1
}

// splitList splits the parenthesised list opened at index open on its commas.
func (parser *Parser) splitList(open int) []span {
	depth := 0
	for i := open; i < len(parser.tokens); i++ {
		switch parser.tokens[i].Type {
		case ParenOpen:
			depth++
		case ParenClose:
			depth--
			if depth == 0 {
				return parser.split(span{open + 1, i}, Comma)
			}
		}
	}
	return parser.split(span{open + 1, len(parser.tokens) - 1}, Comma)
}

// split cuts a span at top-level separators.
func (parser *Parser) split(s span, separators ...TokenType) []span {
	var parts []span
	depth := 0
	start := s.start
	for i := s.start; i < s.end; i++ {
		switch parser.tokens[i].Type {
		case ParenOpen:
			depth++
			continue
		case ParenClose:
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		for _, separator := range separators {
			if parser.tokens[i].Type == separator {
				parts = append(parts, span{start, i})
				start = i + 1
				break
			}
		}
	}
	if start < s.end {
		parts = append(parts, span{start, s.end})
	}
	return parts
}

func (parser *Parser) render(s span) string {
	var parts []string
	for i := s.start; i < s.end; i++ {
		token := parser.tokens[i]
		if token.Type == String {
			parts = append(parts, "'"+strings.ReplaceAll(token.Value, "'", "''")+"'")
			continue
		}
		parts = append(parts, token.Value)
	}
	return strings.Join(parts, " ")
}
