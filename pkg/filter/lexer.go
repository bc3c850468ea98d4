// Package filter implements EdgeVec's metadata filter expression
// language: tokenizer, recursive-descent parser, AST, evaluator, and a
// strategy selector that decides how a predicate integrates with k-NN
// search.
package filter

import (
	"fmt"
	"strings"
)

// TokenKind identifies a lexical token class.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokString
	TokInt
	TokFloat
	TokAnd
	TokOr
	TokNot
	TokIn
	TokAny
	TokBetween
	TokIs
	TokNull
	TokTrue
	TokFalse
	TokLParen
	TokRParen
	TokComma
	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokIdent:
		return "identifier"
	case TokString:
		return "string"
	case TokInt:
		return "integer"
	case TokFloat:
		return "float"
	case TokAnd:
		return "AND"
	case TokOr:
		return "OR"
	case TokNot:
		return "NOT"
	case TokIn:
		return "IN"
	case TokAny:
		return "ANY"
	case TokBetween:
		return "BETWEEN"
	case TokIs:
		return "IS"
	case TokNull:
		return "NULL"
	case TokTrue:
		return "true"
	case TokFalse:
		return "false"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokComma:
		return ","
	case TokEq:
		return "="
	case TokNeq:
		return "!="
	case TokLt:
		return "<"
	case TokLte:
		return "<="
	case TokGt:
		return ">"
	case TokGte:
		return ">="
	default:
		return "unknown"
	}
}

// Token is one lexical unit, with the byte offset it started at so
// syntax errors can report a position.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

var keywords = map[string]TokenKind{
	"AND":     TokAnd,
	"OR":      TokOr,
	"NOT":     TokNot,
	"IN":      TokIn,
	"ANY":     TokAny,
	"BETWEEN": TokBetween,
	"IS":      TokIs,
	"NULL":    TokNull,
	"TRUE":    TokTrue,
	"FALSE":   TokFalse,
}

// Tokenize splits a filter expression into tokens. Unterminated strings
// and unrecognized characters are reported as a *SyntaxError carrying
// the byte position they occurred at.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, Token{TokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, Token{TokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, Token{TokComma, ",", i})
			i++
		case c == '"':
			start := i
			i++
			var b strings.Builder
			closed := false
			for i < n {
				if src[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(src[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: start, Message: "unterminated string literal", Hint: `close the string with a matching "`}
			}
			tokens = append(tokens, Token{TokString, b.String(), start})
		case c == '=':
			tokens = append(tokens, Token{TokEq, "=", i})
			i++
		case c == '!':
			if i+1 < n && src[i+1] == '=' {
				tokens = append(tokens, Token{TokNeq, "!=", i})
				i += 2
			} else {
				return nil, &SyntaxError{Pos: i, Message: "unexpected '!'", Hint: "did you mean '!='?"}
			}
		case c == '<':
			if i+1 < n && src[i+1] == '=' {
				tokens = append(tokens, Token{TokLte, "<=", i})
				i += 2
			} else {
				tokens = append(tokens, Token{TokLt, "<", i})
				i++
			}
		case c == '>':
			if i+1 < n && src[i+1] == '=' {
				tokens = append(tokens, Token{TokGte, ">=", i})
				i += 2
			} else {
				tokens = append(tokens, Token{TokGt, ">", i})
				i++
			}
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			if c == '-' {
				i++
			}
			isFloat := false
			for i < n && (src[i] >= '0' && src[i] <= '9') {
				i++
			}
			if i < n && src[i] == '.' {
				isFloat = true
				i++
				for i < n && (src[i] >= '0' && src[i] <= '9') {
					i++
				}
			}
			text := src[start:i]
			if text == "-" || text == "" {
				return nil, &SyntaxError{Pos: start, Message: "invalid numeric literal", Hint: "expected digits after '-'"}
			}
			if isFloat {
				tokens = append(tokens, Token{TokFloat, text, start})
			} else {
				tokens = append(tokens, Token{TokInt, text, start})
			}
		case isIdentStart(c):
			start := i
			for i < n && isIdentChar(src[i]) {
				i++
			}
			text := src[start:i]
			if kw, ok := keywords[strings.ToUpper(text)]; ok {
				tokens = append(tokens, Token{kw, text, start})
			} else {
				tokens = append(tokens, Token{TokIdent, text, start})
			}
		default:
			return nil, &SyntaxError{Pos: i, Message: fmt.Sprintf("unexpected character %q", c), Hint: "remove or quote this character"}
		}
	}

	tokens = append(tokens, Token{TokEOF, "", n})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
