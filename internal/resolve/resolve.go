// Package resolve checks talent table references inside expressions against
// the tables a character actually has.
package resolve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
)

var (
	ErrUnsupportedTalentKey = errors.New("unsupported talent key")
	ErrUnknownTable         = errors.New("unknown table")
	ErrDynamicTableRef      = errors.New("dynamic table reference")
)

// RefError reports the first reference outside the known set.
type RefError struct {
	Kind  error
	Block string
	Table string
	Pos   int
}

func (e *RefError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrDynamicTableRef):
		return fmt.Sprintf("%v at offset %d", e.Kind, e.Pos)
	case e.Table == "":
		return fmt.Sprintf("%v: talent.%s", e.Kind, e.Block)
	default:
		return fmt.Sprintf("%v: talent.%s[%q]", e.Kind, e.Block, e.Table)
	}
}

func (e *RefError) Unwrap() error { return e.Kind }

// Known maps a talent block to its ordered table names.
type Known map[string][]string

// HasBlock reports whether block exists.
func (k Known) HasBlock(block string) bool {
	_, ok := k[block]
	return ok
}

// Has reports whether block contains table, by exact name.
func (k Known) Has(block, table string) bool {
	for _, t := range k[block] {
		if t == table {
			return true
		}
	}
	return false
}

// Resolve finds table in block, exactly first and then after whitespace and
// full-width punctuation normalization. It returns the stored name.
func (k Known) Resolve(block, table string) (string, bool) {
	if k.Has(block, table) {
		return table, true
	}
	want := NormalizeName(table)
	if want == "" {
		return "", false
	}
	for _, t := range k[block] {
		if NormalizeName(t) == want {
			return t, true
		}
	}
	return "", false
}

// Find locates a table by name in any block, preferring the given one.
func (k Known) Find(prefer, table string) (block, name string, ok bool) {
	if name, ok := k.Resolve(prefer, table); ok {
		return prefer, name, true
	}
	for _, b := range k.Blocks() {
		if name, ok := k.Resolve(b, table); ok {
			return b, name, true
		}
	}
	return "", "", false
}

// Blocks returns the block keys in a stable order.
func (k Known) Blocks() []string {
	blocks := make([]string, 0, len(k))
	for b := range k {
		blocks = append(blocks, b)
	}
	sortBlocks(blocks)
	return blocks
}

// Ref is one static talent.<block>["<table>"] reference.
type Ref struct {
	Block string
	Table string
	Pos   int
}

// Refs lists the static table references in n in source order. Dynamic
// references are skipped; Validate reports them.
func Refs(n expr.Node) []Ref {
	var refs []Ref
	expr.Walk(n, func(n expr.Node) bool {
		idx, ok := n.(*expr.Index)
		if !ok {
			return true
		}
		block, ok := talentBlock(idx.X)
		if !ok {
			return true
		}
		if s, ok := idx.Index.(*expr.StringLit); ok {
			refs = append(refs, Ref{Block: block, Table: s.Value, Pos: idx.At})
			return false
		}
		return true
	})
	return refs
}

// Validate fails on the first reference to an unknown block or table, and on
// any computed block or table name.
func Validate(n expr.Node, known Known) error {
	var err error
	expr.Walk(n, func(n expr.Node) bool {
		if err != nil {
			return false
		}
		switch v := n.(type) {
		case *expr.Index:
			if id, ok := v.X.(*expr.Ident); ok && id.Name == "talent" {
				err = &RefError{Kind: ErrDynamicTableRef, Pos: v.At}
				return false
			}
			block, ok := talentBlock(v.X)
			if !ok {
				return true
			}
			if !known.HasBlock(block) {
				err = &RefError{Kind: ErrUnsupportedTalentKey, Block: block, Pos: v.At}
				return false
			}
			s, ok := v.Index.(*expr.StringLit)
			if !ok {
				err = &RefError{Kind: ErrDynamicTableRef, Block: block, Pos: v.At}
				return false
			}
			if !known.Has(block, s.Value) {
				err = &RefError{Kind: ErrUnknownTable, Block: block, Table: s.Value, Pos: v.At}
			}
			return false
		case *expr.Member:
			if block, ok := talentBlock(v); ok && !known.HasBlock(block) {
				err = &RefError{Kind: ErrUnsupportedTalentKey, Block: block, Pos: v.At}
				return false
			}
		}
		return true
	})
	return err
}

func talentBlock(n expr.Node) (string, bool) {
	m, ok := n.(*expr.Member)
	if !ok {
		return "", false
	}
	id, ok := m.X.(*expr.Ident)
	if !ok || id.Name != "talent" {
		return "", false
	}
	return m.Name, true
}

var blockOrder = map[string]int{"a": 0, "e": 1, "q": 2, "t": 3, "me": 4, "mt": 5}

func sortBlocks(blocks []string) {
	rank := func(b string) int {
		if r, ok := blockOrder[b]; ok {
			return r
		}
		return len(blockOrder)
	}
	sort.Slice(blocks, func(i, j int) bool {
		ri, rj := rank(blocks[i]), rank(blocks[j])
		if ri != rj {
			return ri < rj
		}
		return blocks[i] < blocks[j]
	})
}
