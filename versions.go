package fstreedb

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// VersionChain is the ordered list of schema versions of one logical value.
// Version 0 is the first version; ordinals are contiguous. Neighbouring
// versions may be connected by upgrade and/or downgrade functions; a step
// without one cannot be crossed in that direction.
type VersionChain struct {
	schema   *Schema
	name     string
	versions []*versionEntry
	byType   map[reflect.Type]*versionEntry
}

type versionEntry struct {
	chain    *VersionChain
	ordinal  uint64
	typ      reflect.Type
	typeName string
	enc      encodingMethod

	// upgrade converts the previous version into this one.
	upgrade func(prev any) (any, error)
	// downgrade converts this version into the previous one.
	downgrade func(cur any) (any, error)
}

// Version is a typed handle of one registered version.
type Version[T any] struct {
	e *versionEntry
}

type VersionOpts struct {
	// Encoding overrides the payload codec. Types implementing
	// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler always use them.
	Encoding encodingMethod
}

func (scm *Schema) DefineVersions(name string) *VersionChain {
	lower := strings.ToLower(name)
	if name == "" || scm.chainsByLowerName[lower] != nil {
		panic(fmt.Errorf("DefineVersions(%q): invalid or duplicate name", name))
	}
	vc := &VersionChain{
		schema: scm,
		name:   name,
		byType: make(map[reflect.Type]*versionEntry),
	}
	scm.chains = append(scm.chains, vc)
	scm.chainsByLowerName[lower] = vc
	return vc
}

// AddVersion appends T as the next version of the chain.
func AddVersion[T any](vc *VersionChain, opt VersionOpts) Version[T] {
	typ := reflect.TypeFor[T]()
	if vc.byType[typ] != nil {
		panic(fmt.Errorf("AddVersion(%s): %v is already version %d", vc.name, typ, vc.byType[typ].ordinal))
	}
	e := &versionEntry{
		chain:    vc,
		ordinal:  uint64(len(vc.versions)),
		typ:      typ,
		typeName: typ.String(),
		enc:      encodingFor(typ, opt.Encoding),
	}
	vc.versions = append(vc.versions, e)
	vc.byType[typ] = e
	return Version[T]{e}
}

// AddUpgrade declares how to turn the previous version into v.
func AddUpgrade[Prev, T any](v Version[T], f func(prev Prev) (T, error)) {
	v.e.prevMustBe(reflect.TypeFor[Prev](), "AddUpgrade")
	v.e.upgrade = func(prev any) (any, error) {
		return f(prev.(Prev))
	}
}

// AddDowngrade declares how to turn v into the previous version.
func AddDowngrade[T, Prev any](v Version[T], f func(cur T) (Prev, error)) {
	v.e.prevMustBe(reflect.TypeFor[Prev](), "AddDowngrade")
	v.e.downgrade = func(cur any) (any, error) {
		return f(cur.(T))
	}
}

func (e *versionEntry) prevMustBe(typ reflect.Type, op string) {
	if e.ordinal == 0 {
		panic(fmt.Errorf("%s(%v): first version of %s has no predecessor", op, e.typ, e.chain.name))
	}
	prev := e.chain.versions[e.ordinal-1]
	if prev.typ != typ {
		panic(fmt.Errorf("%s(%v): predecessor is %v, not %v", op, e.typ, prev.typ, typ))
	}
}

// VersionOf looks up the registered version for T.
func VersionOf[T any](vc *VersionChain) (Version[T], bool) {
	e := vc.byType[reflect.TypeFor[T]()]
	return Version[T]{e}, e != nil
}

func (vc *VersionChain) Name() string {
	return vc.name
}

func (vc *VersionChain) Len() int {
	return len(vc.versions)
}

func (vc *VersionChain) last() *versionEntry {
	if len(vc.versions) == 0 {
		panic(fmt.Errorf("version chain %s has no versions", vc.name))
	}
	return vc.versions[len(vc.versions)-1]
}

// LastVersion returns the ordinal of the newest version.
func (vc *VersionChain) LastVersion() uint64 {
	return vc.last().ordinal
}

func (vc *VersionChain) entryFor(typ reflect.Type) *versionEntry {
	e := vc.byType[typ]
	if e == nil {
		panic(fmt.Errorf("%v is not a version of %s", typ, vc.name))
	}
	return e
}

func (v Version[T]) Ordinal() uint64 {
	return v.e.ordinal
}

func (v Version[T]) TypeName() string {
	return v.e.typeName
}

func (v Version[T]) Chain() *VersionChain {
	return v.e.chain
}

func (v Version[T]) IsFirst() bool {
	return v.e.ordinal == 0
}

func (v Version[T]) IsLast() bool {
	return v.e == v.e.chain.last()
}

// Save serializes val with this version's codec.
func (v Version[T]) Save(val T) ([]byte, error) {
	return v.e.encode(nil, reflect.ValueOf(&val).Elem())
}

// Load brings data stored as version into T.
func (v Version[T]) Load(version uint64, data []byte) (T, error) {
	var zero T
	res, err := v.e.chain.load(v.e, version, data)
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// Load brings data stored as version into T, which must be a version of vc.
func Load[T any](vc *VersionChain, version uint64, data []byte) (T, error) {
	return Version[T]{vc.entryFor(reflect.TypeFor[T]())}.Load(version, data)
}

func (e *versionEntry) encode(buf []byte, val reflect.Value) ([]byte, error) {
	raw, err := e.enc.EncodeValue(buf, val)
	if err != nil {
		return nil, &SerializationError{e.typeName, err}
	}
	return raw, nil
}

func (e *versionEntry) decode(data []byte) (any, error) {
	ptr := reflect.New(e.typ)
	if err := e.enc.DecodeValue(data, ptr); err != nil {
		return nil, &DeserializationError{e.typeName, err}
	}
	return ptr.Elem().Interface(), nil
}

// errNoRoute is reported by resolve when a step lacks a migration; load
// replaces it with a NoMigrationError naming the requested target.
var errNoRoute = errors.New("no migration route")

func (vc *VersionChain) load(target *versionEntry, version uint64, data []byte) (any, error) {
	if last := vc.last(); version > last.ordinal {
		return nil, &VersionTooBigError{version, last.ordinal}
	}
	v, err := vc.resolve(target.ordinal, version, data)
	if err == errNoRoute {
		return nil, &NoMigrationError{
			From:   version,
			To:     target.ordinal,
			ToName: target.typeName,
		}
	}
	return v, err
}

func (vc *VersionChain) resolve(ord, version uint64, data []byte) (any, error) {
	e := vc.versions[ord]
	switch {
	case version == ord:
		return e.decode(data)
	case version < ord:
		if e.upgrade == nil {
			return nil, errNoRoute
		}
		prev, err := vc.resolve(ord-1, version, data)
		if err != nil {
			return nil, err
		}
		v, err := e.upgrade(prev)
		if err != nil {
			return nil, &MigrationError{ord - 1, ord, err}
		}
		return v, nil
	default:
		next := vc.versions[ord+1]
		if next.downgrade == nil {
			return nil, errNoRoute
		}
		nv, err := vc.resolve(ord+1, version, data)
		if err != nil {
			return nil, err
		}
		v, err := next.downgrade(nv)
		if err != nil {
			return nil, &MigrationError{ord + 1, ord, err}
		}
		return v, nil
	}
}
