package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rejection reasons reported by the lexer and parser. They are stable and
// used as diagnostic prefixes by callers.
const (
	ReasonStatement    = "statement separator"
	ReasonComment      = "comment"
	ReasonTemplate     = "template string"
	ReasonArrow        = "arrow function"
	ReasonAssignment   = "assignment"
	ReasonOperator     = "unsupported operator"
	ReasonCharacter    = "unexpected character"
	ReasonUnterminated = "unterminated string"
	ReasonSyntax       = "syntax error"
	ReasonTooLong      = "expression too long"
	ReasonTooDeep      = "expression too deep"
)

// SyntaxError reports why a fragment was rejected before it reached the AST.
type SyntaxError struct {
	Pos    int
	Reason string
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s at offset %d", e.Reason, e.Pos)
	}
	return fmt.Sprintf("%s at offset %d: %s", e.Reason, e.Pos, e.Detail)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// punctuators are matched longest first.
var punctuators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||", "??",
	"(", ")", "[", "]", "{", "}", ",", ".", "?", ":",
	"+", "-", "*", "/", "%", "!", "<", ">",
}

var assignmentOps = []string{
	"**=", "&&=", "||=", "??=", "<<=", ">>=",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "++", "--",
}

var unsupportedOps = []string{"...", "?.", "**", "<<", ">>", "&", "|", "^", "~"}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) fail(pos int, reason, detail string) error {
	return &SyntaxError{Pos: pos, Reason: reason, Detail: detail}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	rest := l.src[l.pos:]
	c := rest[0]

	switch {
	case c == ';':
		return token{}, l.fail(start, ReasonStatement, "")
	case strings.HasPrefix(rest, "//"), strings.HasPrefix(rest, "/*"), strings.HasPrefix(rest, "<!--"):
		return token{}, l.fail(start, ReasonComment, "")
	case c == '`':
		return token{}, l.fail(start, ReasonTemplate, "")
	case strings.HasPrefix(rest, "=>"):
		return token{}, l.fail(start, ReasonArrow, "")
	case isDigit(c) || (c == '.' && len(rest) > 1 && isDigit(rest[1])):
		return l.number()
	case c == '"' || c == '\'':
		return l.str(c)
	}

	r, _ := utf8.DecodeRuneInString(rest)
	if isIdentStart(r) {
		return l.ident(), nil
	}

	for _, op := range assignmentOps {
		if strings.HasPrefix(rest, op) {
			return token{}, l.fail(start, ReasonAssignment, op)
		}
	}
	if c == '=' && !strings.HasPrefix(rest, "==") {
		return token{}, l.fail(start, ReasonAssignment, "=")
	}
	for _, op := range unsupportedOps {
		if !strings.HasPrefix(rest, op) || strings.HasPrefix(rest, "&&") || strings.HasPrefix(rest, "||") {
			continue
		}
		// "a?.5:1" is a conditional with a fractional literal.
		if op == "?." && len(rest) > 2 && isDigit(rest[2]) {
			continue
		}
		return token{}, l.fail(start, ReasonOperator, op)
	}
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			l.pos += len(p)
			return token{kind: tokPunct, text: p, pos: start}, nil
		}
	}
	return token{}, l.fail(start, ReasonCharacter, string(r))
}

func (l *lexer) number() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	text := l.src[start:l.pos]
	if l.pos < len(l.src) {
		if r, _ := utf8.DecodeRuneInString(l.src[l.pos:]); isIdentStart(r) {
			return token{}, l.fail(l.pos, ReasonSyntax, "identifier directly after number")
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.fail(start, ReasonSyntax, "bad number "+text)
	}
	return token{kind: tokNumber, text: text, num: v, pos: start}, nil
}

func (l *lexer) str(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case c == '\n' || c == '\r':
			return token{}, l.fail(start, ReasonUnterminated, "")
		case c == '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, l.fail(start, ReasonUnterminated, "")
			}
			esc := l.src[l.pos+1]
			l.pos += 2
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case 'u':
				if l.pos+4 > len(l.src) {
					return token{}, l.fail(l.pos, ReasonSyntax, "bad unicode escape")
				}
				code, err := strconv.ParseUint(l.src[l.pos:l.pos+4], 16, 32)
				if err != nil {
					return token{}, l.fail(l.pos, ReasonSyntax, "bad unicode escape")
				}
				b.WriteRune(rune(code))
				l.pos += 4
			default:
				return token{}, l.fail(l.pos-2, ReasonSyntax, "unsupported escape \\"+string(esc))
			}
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			b.WriteRune(r)
			l.pos += size
		}
	}
	return token{}, l.fail(start, ReasonUnterminated, "")
}

func (l *lexer) ident() token {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// IsASCIIIdent reports whether s is a plain ASCII identifier.
func IsASCIIIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
