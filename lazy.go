package fstreedb

import (
	"fmt"
	"reflect"
)

type OpKind int

const (
	OpGet OpKind = iota
	OpSet
	OpRemove
	OpExists
	OpChildren
)

func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "GET"
	case OpSet:
		return "SET"
	case OpRemove:
		return "REMOVE"
	case OpExists:
		return "EXISTS"
	case OpChildren:
		return "CHILDREN"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Result is the outcome of one attached operation.
type Result struct {
	Op    OpKind
	Chain Chain
	// Value is the loaded value for OpGet, the children InsertionKind for
	// OpSet, a bool for OpExists, a ChildrenInfo for OpChildren and nil for
	// OpRemove.
	Value any
	Err   error
}

type lazyOp struct {
	kind   OpKind
	chain  Chain
	run    func(tx *txn, c Chain) (any, error)
	detail string
}

// Pending is a typed handle to the result of an attached operation. It can be
// read once the Access has been executed.
type Pending[V any] struct {
	b   *batch
	idx int
}

func (p *Pending[V]) result() *Result {
	if !p.b.executed {
		panic("pending result read before Execute")
	}
	return &p.b.results[p.idx]
}

// Result returns the operation's value and error.
func (p *Pending[V]) Result() (V, error) {
	r := p.result()
	var zero V
	if r.Err != nil || r.Value == nil {
		return zero, r.Err
	}
	return r.Value.(V), nil
}

func (p *Pending[V]) Value() V {
	v, _ := p.Result()
	return v
}

func (p *Pending[V]) Err() error {
	return p.result().Err
}

func attach[V any](b *batch, need Capability, op *lazyOp) *Pending[V] {
	return &Pending[V]{b, b.attach(op, need)}
}

// Get loads the value at the current path as V, migrating it from whatever
// version it was stored as.
func Get[V any](a Accessor) *Pending[V] {
	b := a.batch()
	e := b.dataVersion(reflect.TypeFor[V]())
	op := &lazyOp{kind: OpGet}
	op.run = func(tx *txn, c Chain) (any, error) {
		raw, err := tx.Get(Data, c.Key())
		if err != nil {
			return nil, err
		}
		var val value
		if err := val.decode(raw); err != nil {
			return nil, err
		}
		op.detail = fmt.Sprintf("v%d (%d bytes)", val.Version, len(val.Payload))
		return e.chain.load(e, val.Version, val.Payload)
	}
	return attach[V](b, ReadOnly, op)
}

// Set stores v at the current path. If the path held no value, it is also
// recorded among its parent's children. Unreadable children make Set fail
// before anything is written.
func Set[V any](a *Access, v V) *Pending[InsertionKind] {
	b := a.batch()
	e := b.dataVersion(reflect.TypeFor[V]())
	op := &lazyOp{kind: OpSet}
	op.run = func(tx *txn, c Chain) (any, error) {
		payload, err := e.encode(nil, reflect.ValueOf(&v).Elem())
		if err != nil {
			return nil, err
		}
		raw, err := appendValue(nil, e.ordinal, payload, tx.db.valueOpts)
		if err != nil {
			return nil, &SerializationError{e.typeName, err}
		}
		key := c.Key()
		existed, err := tx.Exists(Data, key)
		if err != nil {
			return nil, err
		}
		kind := Overwritten
		var updates []childUpdate
		if !existed {
			kind, updates, err = tx.db.planChildren(tx, c)
			if err != nil {
				return nil, err
			}
		}
		if err := tx.Set(Data, key, raw); err != nil {
			return nil, err
		}
		if err := tx.db.applyChildren(tx, updates); err != nil {
			return nil, err
		}
		op.detail = fmt.Sprintf("v%d (%d bytes)", e.ordinal, len(payload))
		return kind, nil
	}
	return attach[InsertionKind](b, ReadWrite, op)
}

// Remove deletes the value at the current path. The path stays listed among
// its parent's children.
func Remove(a *Access) *Pending[struct{}] {
	op := &lazyOp{kind: OpRemove}
	op.run = func(tx *txn, c Chain) (any, error) {
		return nil, tx.Remove(Data, c.Key())
	}
	return attach[struct{}](a.batch(), ReadWrite, op)
}

// Exists reports whether a value is stored at the current path.
func Exists(a Accessor) *Pending[bool] {
	op := &lazyOp{kind: OpExists}
	op.run = func(tx *txn, c Chain) (any, error) {
		ok, err := tx.Exists(Data, c.Key())
		return ok, err
	}
	return attach[bool](a.batch(), ReadOnly, op)
}

// ListChildren returns the children recorded under the current path.
func ListChildren(a Accessor) *Pending[ChildrenInfo] {
	op := &lazyOp{kind: OpChildren}
	op.run = func(tx *txn, c Chain) (any, error) {
		info, err := tx.db.readChildren(tx, c)
		if err != nil {
			return nil, err
		}
		return info, nil
	}
	return attach[ChildrenInfo](a.batch(), ReadOnly, op)
}
