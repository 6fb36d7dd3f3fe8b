package fstreedb

import (
	"fmt"
	"strings"
)

// Schema holds the declared path types and the version chains stored under
// them. A schema is built once at startup and is read-only afterwards.
type Schema struct {
	root              *PathType
	paths             []*PathType
	pathsByLowerName  map[string]*PathType
	chains            []*VersionChain
	chainsByLowerName map[string]*VersionChain
}

func NewSchema() *Schema {
	scm := &Schema{
		pathsByLowerName:  make(map[string]*PathType),
		chainsByLowerName: make(map[string]*VersionChain),
	}
	scm.root = &PathType{
		schema:  scm,
		name:    "root",
		parents: make(map[*PathType]bool),
	}
	return scm
}

// Root returns the distinguished path type every chain starts with.
func (scm *Schema) Root() *PathType {
	return scm.root
}

func (scm *Schema) Paths() []*PathType {
	return append([]*PathType(nil), scm.paths...)
}

func (scm *Schema) PathNamed(name string) *PathType {
	if strings.EqualFold(name, scm.root.name) {
		return scm.root
	}
	return scm.pathsByLowerName[strings.ToLower(name)]
}

func (scm *Schema) VersionChains() []*VersionChain {
	return append([]*VersionChain(nil), scm.chains...)
}

// ReservoirSize limits how many children segments are remembered per path.
// The zero value means “use the database default”.
type ReservoirSize int

// AllChildren remembers every child ever inserted.
const AllChildren ReservoirSize = -1

func MaxChildren(n int) ReservoirSize {
	if n <= 0 {
		panic(fmt.Errorf("MaxChildren(%d): limit must be positive", n))
	}
	return ReservoirSize(n)
}

func (rs ReservoirSize) IsLimited() bool {
	return rs > 0
}

func (rs ReservoirSize) String() string {
	switch {
	case rs == 0:
		return "default"
	case rs < 0:
		return "all"
	default:
		return fmt.Sprintf("max(%d)", int(rs))
	}
}

type PathOpts struct {
	// Tag is the fixed segment of a static path type. Defaults to the name.
	Tag string

	// Keyed path types have no fixed tag; any valid segment addresses one of
	// their instances (say, a user ID).
	Keyed bool

	Parents []*PathType

	// Data is the version chain whose values may be stored under this path.
	// Paths without one can only hold children.
	Data *VersionChain

	ChildrenLimit ReservoirSize
}

// PathType is one declared level of the tree.
type PathType struct {
	schema        *Schema
	name          string
	tag           Segment
	keyed         bool
	parents       map[*PathType]bool
	children      []*PathType
	data          *VersionChain
	childrenLimit ReservoirSize
}

func (scm *Schema) DefinePath(name string, opt PathOpts) *PathType {
	lower := strings.ToLower(name)
	if name == "" || lower == scm.root.name || scm.pathsByLowerName[lower] != nil {
		panic(fmt.Errorf("DefinePath(%q): invalid or duplicate path name", name))
	}
	pt := &PathType{
		schema:        scm,
		name:          name,
		keyed:         opt.Keyed,
		parents:       make(map[*PathType]bool),
		data:          opt.Data,
		childrenLimit: opt.ChildrenLimit,
	}
	if !opt.Keyed {
		tag := opt.Tag
		if tag == "" {
			tag = name
		}
		pt.tag = MustSegment(tag)
	} else if opt.Tag != "" {
		panic(fmt.Errorf("DefinePath(%q): keyed path types cannot have a tag", name))
	}
	if opt.Data != nil && opt.Data.schema != scm {
		panic(fmt.Errorf("DefinePath(%q): version chain %s belongs to another schema", name, opt.Data.name))
	}
	for _, parent := range opt.Parents {
		ensure(checkLink(parent, pt))
	}
	scm.paths = append(scm.paths, pt)
	scm.pathsByLowerName[lower] = pt
	for _, parent := range opt.Parents {
		Link(parent, pt)
	}
	return pt
}

// Link declares parent as an allowed parent of child.
func Link(parent, child *PathType) {
	ensure(checkLink(parent, child))
	if child.parents[parent] {
		return
	}
	child.parents[parent] = true
	parent.children = append(parent.children, child)
}

func checkLink(parent, child *PathType) error {
	if parent.schema != child.schema {
		return fmt.Errorf("Link(%s, %s): path types belong to different schemas", parent.name, child.name)
	}
	if child == child.schema.root {
		return fmt.Errorf("Link(%s, %s): root cannot have a parent", parent.name, child.name)
	}
	if child.parents[parent] {
		return nil
	}
	for _, sibling := range parent.children {
		if child.keyed && sibling.keyed {
			return fmt.Errorf("Link(%s, %s): %s already has a keyed child %s", parent.name, child.name, parent.name, sibling.name)
		}
		if !child.keyed && !sibling.keyed && sibling.tag == child.tag {
			return fmt.Errorf("Link(%s, %s): %s already has a child tagged %q", parent.name, child.name, parent.name, string(child.tag))
		}
	}
	return nil
}

// staticChild returns the static child of pt tagged seg, if any.
func (pt *PathType) staticChild(seg Segment) *PathType {
	for _, child := range pt.children {
		if !child.keyed && child.tag == seg {
			return child
		}
	}
	return nil
}

func (pt *PathType) Name() string {
	return pt.name
}

func (pt *PathType) Schema() *Schema {
	return pt.schema
}

func (pt *PathType) IsRoot() bool {
	return pt == pt.schema.root
}

func (pt *PathType) IsKeyed() bool {
	return pt.keyed
}

func (pt *PathType) Tag() Segment {
	return pt.tag
}

func (pt *PathType) Data() *VersionChain {
	return pt.data
}

func (pt *PathType) ChildrenLimit() ReservoirSize {
	return pt.childrenLimit
}

func (pt *PathType) IsParentOf(child *PathType) bool {
	return child.parents[pt]
}

func (pt *PathType) Children() []*PathType {
	return append([]*PathType(nil), pt.children...)
}

func (pt *PathType) String() string {
	return pt.name
}

// Elem returns the element of a static path type.
func (pt *PathType) Elem() Element {
	if pt.keyed {
		panic(fmt.Errorf("%s is keyed, use At", pt.name))
	}
	return Element{pt, pt.tag}
}

// At returns an instance of a keyed path type. The segment is validated when
// the element becomes part of a chain.
func (pt *PathType) At(seg Segment) Element {
	if !pt.keyed {
		panic(fmt.Errorf("%s is not keyed, use Elem", pt.name))
	}
	return Element{pt, seg}
}

// Element is a path type paired with the segment addressing it.
type Element struct {
	typ *PathType
	seg Segment
}

func (el Element) Type() *PathType {
	return el.typ
}

func (el Element) Segment() Segment {
	return el.seg
}

func (el Element) String() string {
	if el.typ == nil {
		return "<nil>"
	}
	if el.typ.keyed {
		return el.typ.name + "[" + string(el.seg) + "]"
	}
	return el.typ.name
}

// matchChild finds the child type of pt addressed by seg. Static tags win
// over the keyed child, of which there is at most one.
func (pt *PathType) matchChild(seg Segment) (*PathType, error) {
	if child := pt.staticChild(seg); child != nil {
		return child, nil
	}
	for _, child := range pt.children {
		if child.keyed {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%s has no child matching %q", pt.name, string(seg))
}
