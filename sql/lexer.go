package sql

import "strings"

// Token is one lexical unit of a statement.
type Token struct {
	Type  TokenType
	Value string
}

type TokenType int

const (
	Unknown TokenType = iota
	EOF
	Identifier
	Placeholder
	Wildcard
	String
	Int
	Float
	Comma
	ParenOpen
	ParenClose
	EqualsSign
	LessThan
	Comparison // !=, <>, >, <= and >=; never part of a recognized predicate

	// Keywords
	Select
	From
	Where
	And
	Or
	Not
	Is
	Null
	True
	False
	CountKeyword
	InsertKeyword
	Into
	Values
	UpdateKeyword
	Set
	DeleteKeyword
	TableIdentifier
	Order
	Group
	Limit
	Offset
)

var keywords = map[string]TokenType{
	"SELECT": Select,
	"FROM":   From,
	"WHERE":  Where,
	"AND":    And,
	"OR":     Or,
	"NOT":    Not,
	"IS":     Is,
	"NULL":   Null,
	"TRUE":   True,
	"FALSE":  False,
	"COUNT":  CountKeyword,
	"INSERT": InsertKeyword,
	"INTO":   Into,
	"VALUES": Values,
	"UPDATE": UpdateKeyword,
	"SET":    Set,
	"DELETE": DeleteKeyword,
	"TABLE":  TableIdentifier,
	"ORDER":  Order,
	"GROUP":  Group,
	"LIMIT":  Limit,
	"OFFSET": Offset,
}

var punctuation = map[byte]TokenType{
	',': Comma,
	'(': ParenOpen,
	')': ParenClose,
	'?': Placeholder,
	'*': Wildcard,
}

// Lexer splits a statement into tokens. Keywords match case-insensitively;
// anything else word-shaped, including alias-qualified names like s.status,
// is an Identifier.
type Lexer struct {
	input string
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (lexer *Lexer) NextToken() Token {
	lexer.skipSpace()
	if lexer.pos >= len(lexer.input) {
		return Token{Type: EOF}
	}

	ch := lexer.input[lexer.pos]
	switch {
	case ch == '\'':
		return Token{Type: String, Value: lexer.scanString()}
	case ch == '"' || ch == '`':
		return Token{Type: Identifier, Value: lexer.scanQuoted(ch)}
	case isDigit(ch) || (ch == '-' && isDigit(lexer.peek(1))):
		return lexer.scanNumber()
	case isWordChar(ch):
		word := lexer.scanWhile(isWordChar)
		if kind, ok := keywords[strings.ToUpper(word)]; ok {
			return Token{Type: kind, Value: word}
		}
		return Token{Type: Identifier, Value: word}
	case isOperator(ch):
		return operatorToken(lexer.scanWhile(isOperator))
	}

	lexer.pos++
	if kind, ok := punctuation[ch]; ok {
		return Token{Type: kind, Value: string(ch)}
	}
	return Token{Type: Unknown, Value: string(ch)}
}

func operatorToken(operator string) Token {
	switch operator {
	case "=":
		return Token{Type: EqualsSign, Value: operator}
	case "<":
		return Token{Type: LessThan, Value: operator}
	case "!=", "<>", ">", "<=", ">=":
		return Token{Type: Comparison, Value: operator}
	default:
		return Token{Type: Unknown, Value: operator}
	}
}

func (lexer *Lexer) peek(offset int) byte {
	if i := lexer.pos + offset; i < len(lexer.input) {
		return lexer.input[i]
	}
	return 0
}

func (lexer *Lexer) skipSpace() {
	for lexer.pos < len(lexer.input) {
		switch lexer.input[lexer.pos] {
		case ' ', '\t', '\n', '\r':
			lexer.pos++
		default:
			return
		}
	}
}

func (lexer *Lexer) scanWhile(accept func(byte) bool) string {
	start := lexer.pos
	for lexer.pos < len(lexer.input) && accept(lexer.input[lexer.pos]) {
		lexer.pos++
	}
	return lexer.input[start:lexer.pos]
}

func (lexer *Lexer) scanNumber() Token {
	start := lexer.pos
	if lexer.input[lexer.pos] == '-' {
		lexer.pos++
	}
	lexer.scanWhile(isDigit)

	if lexer.peek(0) == '.' && isDigit(lexer.peek(1)) {
		lexer.pos++
		lexer.scanWhile(isDigit)
		return Token{Type: Float, Value: lexer.input[start:lexer.pos]}
	}
	return Token{Type: Int, Value: lexer.input[start:lexer.pos]}
}

// scanString reads a single-quoted literal. A doubled quote is an escaped
// quote; an unterminated literal runs to the end of the input.
func (lexer *Lexer) scanString() string {
	var value strings.Builder
	lexer.pos++

	for lexer.pos < len(lexer.input) {
		ch := lexer.input[lexer.pos]
		lexer.pos++
		if ch == '\'' {
			if lexer.peek(0) != '\'' {
				break
			}
			lexer.pos++
		}
		value.WriteByte(ch)
	}
	return value.String()
}

func (lexer *Lexer) scanQuoted(quote byte) string {
	lexer.pos++
	value := lexer.scanWhile(func(ch byte) bool { return ch != quote })
	if lexer.pos < len(lexer.input) {
		lexer.pos++
	}
	return value
}

func isWordChar(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_' || ch == '.' || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isOperator(ch byte) bool {
	return ch == '=' || ch == '!' || ch == '<' || ch == '>'
}

func tokenize(sql string) []Token {
	lexer := NewLexer(sql)

	var tokens []Token
	for {
		token := lexer.NextToken()
		tokens = append(tokens, token)
		if token.Type == EOF {
			return tokens
		}
	}
}
