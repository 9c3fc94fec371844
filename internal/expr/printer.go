package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	precCond = iota + 1
	precCoalesce
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
	precPrimary
)

var binaryPrec = map[string]int{
	"??": precCoalesce,
	"||": precOr,
	"&&": precAnd,
	"==": precEquality, "!=": precEquality, "===": precEquality, "!==": precEquality,
	"<": precRelational, "<=": precRelational, ">": precRelational, ">=": precRelational,
	"+": precAdditive, "-": precAdditive,
	"*": precMultiplicative, "/": precMultiplicative, "%": precMultiplicative,
}

// Print renders n as canonical source. Printing is deterministic: the same
// tree always produces the same text.
func Print(n Node) string {
	var b strings.Builder
	printNode(&b, n, 0)
	return b.String()
}

func precOf(n Node) int {
	switch v := n.(type) {
	case *Cond:
		return precCond
	case *Binary:
		return binaryPrec[v.Op]
	case *Unary:
		return precUnary
	case *NumberLit:
		if v.Value < 0 || (v.Value == 0 && math.Signbit(v.Value)) {
			return precUnary
		}
		return precPrimary
	case *Member, *Index, *Call:
		return precPostfix
	default:
		return precPrimary
	}
}

func printNode(b *strings.Builder, n Node, minPrec int) {
	if precOf(n) < minPrec {
		b.WriteByte('(')
		printNode(b, n, 0)
		b.WriteByte(')')
		return
	}
	switch v := n.(type) {
	case *NumberLit:
		b.WriteString(formatNumber(v.Value))
	case *StringLit:
		b.WriteString(Quote(v.Value))
	case *BoolLit:
		b.WriteString(strconv.FormatBool(v.Value))
	case *NullLit:
		if v.Undefined {
			b.WriteString("undefined")
		} else {
			b.WriteString("null")
		}
	case *Ident:
		b.WriteString(v.Name)
	case *Member:
		printNode(b, v.X, precPostfix)
		b.WriteByte('.')
		b.WriteString(v.Name)
	case *Index:
		printNode(b, v.X, precPostfix)
		b.WriteByte('[')
		printNode(b, v.Index, 0)
		b.WriteByte(']')
	case *Call:
		printNode(b, v.Fn, precPostfix)
		b.WriteByte('(')
		for i, a := range v.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printNode(b, a, precCond)
		}
		b.WriteByte(')')
	case *Unary:
		b.WriteString(v.Op)
		if _, nested := v.X.(*Unary); nested {
			b.WriteByte('(')
			printNode(b, v.X, 0)
			b.WriteByte(')')
			return
		}
		if num, ok := v.X.(*NumberLit); ok && num.Value < 0 {
			b.WriteByte('(')
			printNode(b, v.X, 0)
			b.WriteByte(')')
			return
		}
		printNode(b, v.X, precUnary)
	case *Binary:
		prec := binaryPrec[v.Op]
		printNode(b, v.X, prec)
		b.WriteByte(' ')
		b.WriteString(v.Op)
		b.WriteByte(' ')
		printNode(b, v.Y, prec+1)
	case *Cond:
		printNode(b, v.Test, precCoalesce)
		b.WriteString(" ? ")
		printNode(b, v.Then, precCond)
		b.WriteString(" : ")
		printNode(b, v.Else, precCond)
	case *ObjectLit:
		if len(v.Fields) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{ ")
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PropertyKey(f.Key))
			b.WriteString(": ")
			printNode(b, f.Value, precCond)
		}
		b.WriteString(" }")
	case *Array:
		b.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			printNode(b, e, precCond)
		}
		b.WriteByte(']')
	default:
		panic(fmt.Sprintf("expr: cannot print %T", n))
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Quote renders s as a double-quoted string literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x2028 || r == 0x2029 || r == utf8.RuneError {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// PropertyKey renders an object key, quoting it unless it is a plain ASCII
// identifier.
func PropertyKey(k string) string {
	if IsASCIIIdent(k) {
		return k
	}
	return Quote(k)
}
