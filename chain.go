package fstreedb

import (
	"slices"
	"strings"
)

// Chain is a validated, root-anchored sequence of path elements. The only
// ways to obtain a non-zero Chain are NewChain, Chain.Child and
// Schema.Resolve, all of which check every parent-of relation.
type Chain struct {
	elems []Element
}

// NewChain validates elems and returns them as a chain.
func NewChain(elems ...Element) (Chain, error) {
	if len(elems) == 0 {
		return Chain{}, chainErrf(elems, 0, "empty chain")
	}
	first := elems[0]
	if first.typ == nil || !first.typ.IsRoot() {
		return Chain{}, chainErrf(elems, 0, "chain must start at root, got %v", first)
	}
	for i := 1; i < len(elems); i++ {
		if err := validateStep(elems, i); err != nil {
			return Chain{}, err
		}
	}
	return Chain{slices.Clone(elems)}, nil
}

func MustChain(elems ...Element) Chain {
	return must(NewChain(elems...))
}

func validateStep(elems []Element, i int) error {
	parent, el := elems[i-1], elems[i]
	if el.typ == nil {
		return chainErrf(elems, i, "nil path type")
	}
	if el.typ.schema != parent.typ.schema {
		return chainErrf(elems, i, "%s belongs to another schema", el.typ.name)
	}
	if el.typ.IsRoot() {
		return chainErrf(elems, i, "root can only appear first")
	}
	if !parent.typ.IsParentOf(el.typ) {
		return chainErrf(elems, i, "%s is not declared as a parent of %s", parent.typ.name, el.typ.name)
	}
	if err := el.seg.Validate(); err != nil {
		return chainErrf(elems, i, "%v", err)
	}
	if !el.typ.keyed && el.seg != el.typ.tag {
		return chainErrf(elems, i, "segment %q does not match tag %q of %s", string(el.seg), string(el.typ.tag), el.typ.name)
	}
	if el.typ.keyed {
		if static := parent.typ.staticChild(el.seg); static != nil {
			return chainErrf(elems, i, "segment %q of %s is the tag of %s", string(el.seg), el.typ.name, static.name)
		}
	}
	return nil
}

// RootChain returns the chain consisting of the root alone.
func (scm *Schema) RootChain() Chain {
	return Chain{[]Element{{scm.root, ""}}}
}

// Child returns a new chain extended by el.
func (c Chain) Child(el Element) (Chain, error) {
	if c.IsZero() {
		return Chain{}, chainErrf([]Element{el}, 0, "chain must start at root, got %v", el)
	}
	elems := make([]Element, len(c.elems), len(c.elems)+1)
	copy(elems, c.elems)
	elems = append(elems, el)
	if err := validateStep(elems, len(elems)-1); err != nil {
		return Chain{}, err
	}
	return Chain{elems}, nil
}

func (c Chain) MustChild(el Element) Chain {
	return must(c.Child(el))
}

func (c Chain) IsZero() bool {
	return len(c.elems) == 0
}

func (c Chain) Len() int {
	return len(c.elems)
}

func (c Chain) Elems() []Element {
	return slices.Clone(c.elems)
}

func (c Chain) Last() Element {
	return c.elems[len(c.elems)-1]
}

func (c Chain) Schema() *Schema {
	return c.elems[0].typ.schema
}

// Parent returns the chain without its last element.
func (c Chain) Parent() (Chain, bool) {
	if len(c.elems) <= 1 {
		return Chain{}, false
	}
	return Chain{c.elems[:len(c.elems)-1]}, true
}

// Key collects the chain into a flat key: every segment followed by a zero
// byte, starting with the empty root segment.
func (c Chain) Key() []byte {
	return c.AppendKey(make([]byte, 0, c.keyLen()))
}

func (c Chain) AppendKey(buf []byte) []byte {
	for _, el := range c.elems {
		buf = append(buf, el.seg...)
		buf = append(buf, pathSep)
	}
	return buf
}

func (c Chain) keyLen() int {
	n := len(c.elems)
	for _, el := range c.elems {
		n += len(el.seg)
	}
	return n
}

func (c Chain) Equal(another Chain) bool {
	return slices.Equal(c.elems, another.elems)
}

func (c Chain) String() string {
	if c.IsZero() {
		return "<invalid>"
	}
	var buf strings.Builder
	buf.WriteByte('/')
	for _, el := range c.elems[1:] {
		buf.WriteString(el.String())
		buf.WriteByte('/')
	}
	return buf.String()
}

// Resolve turns a collected key back into a validated chain.
func (scm *Schema) Resolve(key []byte) (Chain, error) {
	segs, err := SplitKey(key)
	if err != nil {
		return Chain{}, err
	}
	elems := make([]Element, 1, len(segs))
	elems[0] = Element{scm.root, ""}
	for _, seg := range segs[1:] {
		cur := elems[len(elems)-1].typ
		child, err := cur.matchChild(seg)
		if err != nil {
			return Chain{}, chainErrf(elems, len(elems), "%v", err)
		}
		elems = append(elems, Element{child, seg})
	}
	return Chain{elems}, nil
}
