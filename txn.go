package fstreedb

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Namespace selects one of the two logical key spaces.
type Namespace uint8

const (
	// Data holds one versioned value per path.
	Data Namespace = iota
	// Children holds one reservoir of child segments per path.
	Children
)

var namespaces = []Namespace{Data, Children}

func (ns Namespace) String() string {
	switch ns {
	case Data:
		return "data"
	case Children:
		return "children"
	default:
		return fmt.Sprintf("namespace(%d)", int(ns))
	}
}

func (ns Namespace) bucketName() string {
	return ns.String()
}

// CanRead is the read capability of a transaction.
type CanRead interface {
	Exists(ns Namespace, key []byte) (bool, error)
	// Get returns ErrKeyNotFound for absent keys.
	Get(ns Namespace, key []byte) ([]byte, error)
}

// CanWrite is the write capability of a transaction.
type CanWrite interface {
	CanRead
	// Set may return ErrNoParentExists.
	Set(ns Namespace, key, data []byte) error
	// Remove returns ErrKeyNotFound for absent keys.
	Remove(ns Namespace, key []byte) error
}

type ReadTxn interface {
	CanRead
	// Close releases the transaction; for write transactions it rolls back
	// anything not committed.
	Close() error
}

type WriteTxn interface {
	ReadTxn
	CanWrite
	Commit() error
}

// Database opens transactions against some backend.
type Database interface {
	BeginRead() (ReadTxn, error)
	BeginWrite() (WriteTxn, error)
}

var _ Database = (*DB)(nil)

type txn struct {
	db        *DB
	stx       storageTx
	id        uuid.UUID
	writable  bool
	done      bool
	startTime time.Time
	stack     string
}

var (
	_ ReadTxn  = (*txn)(nil)
	_ WriteTxn = (*txn)(nil)
)

func (db *DB) BeginRead() (ReadTxn, error) {
	tx, err := db.begin(false)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (db *DB) BeginWrite() (WriteTxn, error) {
	tx, err := db.begin(true)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (db *DB) begin(writable bool) (*txn, error) {
	if writable {
		db.PendingWriterCount.Add(1)
		defer db.PendingWriterCount.Add(-1)
	}
	stx, err := db.st.BeginTx(writable)
	if err != nil {
		return nil, storageErr("begin", Data, nil, err)
	}
	tx := &txn{
		db:        db,
		stx:       stx,
		id:        uuid.New(),
		writable:  writable,
		startTime: time.Now(),
	}
	if trackTxns {
		tx.stack = string(debug.Stack())
		db.addTx(tx)
	}
	if writable {
		db.WriterCount.Add(1)
	} else {
		db.ReaderCount.Add(1)
	}
	if db.verbose {
		db.logf("db: BEGIN %s tx=%s", tx.mode(), tx.id)
	}
	return tx, nil
}

func (tx *txn) mode() string {
	if tx.writable {
		return "rw"
	}
	return "ro"
}

// ID identifies the transaction in logs and in DescribeOpenTxns.
func (tx *txn) ID() uuid.UUID {
	return tx.id
}

func (tx *txn) bucket(ns Namespace) storageBucket {
	b := tx.stx.Bucket(ns.bucketName())
	if b == nil {
		panic(fmt.Errorf("missing %s bucket", ns))
	}
	return b
}

// scan calls f for every entry of ns whose key starts with prefix, in key
// order, until f returns false. Slices passed to f are only valid during the
// call.
func (tx *txn) scan(ns Namespace, prefix []byte, f func(k, v []byte) bool) {
	tx.ensureOpen()
	c := tx.bucket(ns).Cursor()
	var k, v []byte
	if len(prefix) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if !f(k, v) {
			return
		}
	}
}

func (tx *txn) Exists(ns Namespace, key []byte) (bool, error) {
	tx.ensureOpen()
	tx.db.ReadCount.Add(1)
	return tx.bucket(ns).Get(key) != nil, nil
}

func (tx *txn) Get(ns Namespace, key []byte) ([]byte, error) {
	tx.ensureOpen()
	tx.db.ReadCount.Add(1)
	raw := tx.bucket(ns).Get(key)
	if raw == nil {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(raw), nil
}

func (tx *txn) Set(ns Namespace, key, data []byte) error {
	tx.ensureWritable()
	if ns == Data && tx.db.enforceParents && !tx.parentExists(key) {
		return ErrNoParentExists
	}
	tx.db.WriteCount.Add(1)
	if data == nil {
		data = []byte{}
	}
	return storageErr("put", ns, slices.Clone(key), tx.bucket(ns).Put(key, data))
}

// parentExists reports whether the parent of key holds data. The root and
// path types that cannot store data always exist.
func (tx *txn) parentExists(key []byte) bool {
	pk := parentKey(key)
	if len(pk) <= 1 {
		return true
	}
	if c, err := tx.db.schema.Resolve(pk); err == nil && c.Last().Type().Data() == nil {
		return true
	}
	return tx.bucket(Data).Get(pk) != nil
}

func (tx *txn) Remove(ns Namespace, key []byte) error {
	tx.ensureWritable()
	b := tx.bucket(ns)
	if b.Get(key) == nil {
		return ErrKeyNotFound
	}
	tx.db.WriteCount.Add(1)
	return storageErr("delete", ns, slices.Clone(key), b.Delete(key))
}

func (tx *txn) Commit() error {
	tx.ensureWritable()
	tx.done = true
	tx.recordSize()
	defer tx.release()
	err := tx.stx.Commit()
	if tx.db.verbose {
		tx.db.logf("db: COMMIT tx=%s after %d ms: err=%v", tx.id, time.Since(tx.startTime).Milliseconds(), err)
	}
	if err != nil {
		_ = tx.stx.Rollback()
		return storageErr("commit", Data, nil, err)
	}
	return nil
}

func (tx *txn) Close() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.recordSize()
	defer tx.release()
	if tx.db.verbose && tx.writable {
		tx.db.logf("db: ROLLBACK tx=%s", tx.id)
	}
	return storageErr("rollback", Data, nil, tx.stx.Rollback())
}

func (tx *txn) release() {
	if tx.writable {
		tx.db.WriterCount.Add(-1)
	} else {
		tx.db.ReaderCount.Add(-1)
	}
	if trackTxns {
		tx.db.removeTx(tx)
	}
}

// recordSize must run before the underlying transaction is closed.
func (tx *txn) recordSize() {
	if size := tx.stx.Size(); size > 0 {
		tx.db.lastSize.Store(size)
	}
}

func (tx *txn) ensureOpen() {
	if tx.done {
		panic(fmt.Errorf("tx %s is already closed", tx.id))
	}
}

func (tx *txn) ensureWritable() {
	tx.ensureOpen()
	if !tx.writable {
		panic(fmt.Errorf("tx %s is read-only", tx.id))
	}
}
