package fstreedb

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Capability is the kind of transaction a batch of operations needs.
type Capability int

const (
	NoTxn Capability = iota
	ReadOnly
	ReadWrite
)

func (c Capability) String() string {
	switch c {
	case NoTxn:
		return "none"
	case ReadOnly:
		return "read"
	case ReadWrite:
		return "write"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Accessor is implemented by *Access and *ReadAccess. Read operations accept
// either; write operations only accept *Access.
type Accessor interface {
	batch() *batch
}

type batch struct {
	db       *DB
	chain    Chain
	cap      Capability
	ops      []*lazyOp
	executed bool
	rollback bool
	results  []Result
}

// Access collects read and write operations and runs them in a single
// transaction.
type Access struct {
	b *batch
}

// ReadAccess collects read operations only; its transaction is never
// writable.
type ReadAccess struct {
	b *batch
}

var (
	_ Accessor = (*Access)(nil)
	_ Accessor = (*ReadAccess)(nil)
)

// Access starts a batch whose operations target c until changed with At.
func (db *DB) Access(c Chain) *Access {
	return &Access{db.newBatch(c)}
}

func (db *DB) ReadAccess(c Chain) *ReadAccess {
	return &ReadAccess{db.newBatch(c)}
}

func (db *DB) newBatch(c Chain) *batch {
	b := &batch{db: db}
	b.setChain(c)
	return b
}

func (a *Access) batch() *batch     { return a.b }
func (a *ReadAccess) batch() *batch { return a.b }

// At retargets subsequently attached operations.
func (a *Access) At(c Chain) *Access {
	a.b.setChain(c)
	return a
}

func (a *ReadAccess) At(c Chain) *ReadAccess {
	a.b.setChain(c)
	return a
}

func (a *Access) Chain() Chain     { return a.b.chain }
func (a *ReadAccess) Chain() Chain { return a.b.chain }

// Capability reports the transaction Execute would open right now.
func (a *Access) Capability() Capability     { return a.b.cap }
func (a *ReadAccess) Capability() Capability { return a.b.cap }

// RollbackOnError makes Execute discard all writes if any operation fails.
// By default, the transaction commits whatever succeeded.
func (a *Access) RollbackOnError() *Access {
	a.b.ensureNotExecuted()
	a.b.rollback = true
	return a
}

// Execute opens one transaction of the required capability, runs every
// attached operation in order and returns their results in the same order.
// Per-operation failures are reported in the results; the returned error is
// about the transaction itself.
func (a *Access) Execute() ([]Result, error) {
	return a.b.execute()
}

func (a *ReadAccess) Execute() ([]Result, error) {
	return a.b.execute()
}

func (b *batch) setChain(c Chain) {
	b.ensureNotExecuted()
	if c.IsZero() {
		panic("access to a zero chain")
	}
	if c.Schema() != b.db.schema {
		panic(fmt.Errorf("chain %v belongs to another schema", c))
	}
	b.chain = c
}

func (b *batch) ensureNotExecuted() {
	if b.executed {
		panic(ErrAlreadyExecuted)
	}
}

func (b *batch) attach(op *lazyOp, need Capability) int {
	b.ensureNotExecuted()
	op.chain = b.chain
	b.ops = append(b.ops, op)
	b.cap = max(b.cap, need)
	return len(b.ops) - 1
}

// dataVersion finds the version entry of typ in the data chain of the
// current target path.
func (b *batch) dataVersion(typ reflect.Type) *versionEntry {
	pt := b.chain.Last().Type()
	if pt.data == nil {
		panic(fmt.Errorf("%s (%v) stores no data", b.chain, pt))
	}
	e := pt.data.byType[typ]
	if e == nil {
		panic(fmt.Errorf("%v is not a version of %s stored at %s", typ, pt.data.name, b.chain))
	}
	return e
}

func (b *batch) execute() ([]Result, error) {
	if b.executed {
		return nil, ErrAlreadyExecuted
	}
	b.executed = true

	b.results = make([]Result, len(b.ops))
	for i, op := range b.ops {
		b.results[i] = Result{Op: op.kind, Chain: op.chain}
	}
	if b.cap == NoTxn {
		return b.results, nil
	}

	db := b.db
	tx, err := db.begin(b.cap == ReadWrite)
	if err != nil {
		b.failAll(err)
		return b.results, err
	}
	defer tx.Close()

	var firstErr error
	for i, op := range b.ops {
		r := &b.results[i]
		start := time.Now()
		r.Err = safelyCall(func(tx *txn) error {
			var err error
			r.Value, err = op.run(tx, op.chain)
			return err
		}, tx)
		if db.verbose {
			db.logf("db: %s %s => %s (%d ms)", op.kind, op.chain, describeResult(op, r), time.Since(start).Milliseconds())
		}
		if r.Err != nil && firstErr == nil {
			firstErr = r.Err
		}
	}

	if !tx.writable {
		return b.results, nil
	}
	if b.rollback && firstErr != nil {
		if err := tx.Close(); err != nil {
			return b.results, err
		}
		return b.results, fmt.Errorf("%w: %w", ErrRolledBack, firstErr)
	}
	if err := tx.Commit(); err != nil {
		db.logger.Error("fstreedb: commit failed", "tx", tx.id, "ops", len(b.ops), "err", err)
		return b.results, err
	}
	return b.results, nil
}

func (b *batch) failAll(err error) {
	for i := range b.results {
		b.results[i].Err = err
	}
}

func describeResult(op *lazyOp, r *Result) string {
	if r.Err != nil {
		var p panicked
		if errors.As(r.Err, &p) {
			return fmt.Sprintf("PANIC: %v", p.reason)
		}
		return "ERR: " + r.Err.Error()
	}
	if op.detail != "" {
		return op.detail
	}
	switch v := r.Value.(type) {
	case nil:
		return "ok"
	case bool:
		return fmt.Sprint(v)
	case ChildrenInfo:
		return fmt.Sprintf("%d children of %d", len(v.Segments), v.Count)
	default:
		return fmt.Sprintf("%T", v)
	}
}
