package fstreedb

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const trackTxns = true

type DB struct {
	st      storage
	bdb     *bbolt.DB
	schema  *Schema
	logf    func(format string, args ...any)
	logger  *slog.Logger
	verbose bool

	enforceParents bool
	childrenLimit  ReservoirSize
	valueOpts      valueOpts

	lastSize           atomic.Int64
	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64

	txns     []*txn
	txnsLock sync.Mutex
}

type Options struct {
	Logf    func(format string, args ...any)
	Verbose bool
	// Logger receives lifecycle events. Defaults to discarding them.
	Logger *slog.Logger

	IsTesting bool
	MmapSize  int
	Timeout   time.Duration

	// EnforceParents makes Set fail with ErrNoParentExists unless the parent
	// path (other than the root) holds data.
	EnforceParents bool

	// DefaultChildrenLimit applies to path types without their own limit.
	// Zero means AllChildren.
	DefaultChildrenLimit ReservoirSize

	Compression          CompressionType
	CompressionThreshold int
	Checksums            bool
}

// Open opens (creating if needed) a Bolt-backed database at path.
func Open(path string, schema *Schema, opt Options) (*DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("fstreedb: %w", err)
	}
	db, err := newDB(newBoltStorage(bdb), schema, opt)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	db.bdb = bdb
	db.logger.Info("fstreedb: opened", "backend", "bolt", "path", path)
	return db, nil
}

// OpenMemory opens a transient in-memory database.
func OpenMemory(schema *Schema, opt Options) (*DB, error) {
	db, err := newDB(newMemStorage(), schema, opt)
	if err != nil {
		return nil, err
	}
	db.logger.Info("fstreedb: opened", "backend", "memory")
	return db, nil
}

func newDB(st storage, schema *Schema, opt Options) (*DB, error) {
	db := &DB{
		st:             st,
		schema:         schema,
		logf:           opt.Logf,
		logger:         opt.Logger,
		verbose:        opt.Verbose,
		enforceParents: opt.EnforceParents,
		childrenLimit:  opt.DefaultChildrenLimit,
		valueOpts: valueOpts{
			compression: opt.Compression,
			threshold:   opt.CompressionThreshold,
			checksums:   opt.Checksums,
		},
	}
	if db.logf == nil {
		db.logf = func(format string, args ...any) {}
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if db.childrenLimit == 0 {
		db.childrenLimit = AllChildren
	}
	if db.valueOpts.threshold == 0 {
		db.valueOpts.threshold = defaultCompressionThreshold
	}

	err := db.prepare()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("fstreedb: preparing buckets: %w", err)
	}
	return db, nil
}

func (db *DB) prepare() error {
	stx, err := db.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	for _, ns := range namespaces {
		if _, err := stx.CreateBucket(ns.bucketName()); err != nil {
			return err
		}
	}
	return stx.Commit()
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) Bolt() *bbolt.DB {
	return db.bdb
}

func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

func (db *DB) Close() {
	err := db.st.Close()
	if err != nil {
		panic(fmt.Errorf("fstreedb: closing: %w", err))
	}
	db.logger.Info("fstreedb: closed", "reads", db.ReadCount.Load(), "writes", db.WriteCount.Load())
}

// childrenLimitFor resolves the reservoir size used for children of pt.
func (db *DB) childrenLimitFor(pt *PathType) ReservoirSize {
	size := pt.childrenLimit
	if size == 0 {
		size = db.childrenLimit
	}
	if size < 0 {
		return AllChildren
	}
	return size
}

// Read runs f inside a read-only transaction.
func (db *DB) Read(f func(tx ReadTxn) error) error {
	tx, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return safelyCall(f, ReadTxn(tx))
}

// Write runs f inside a writable transaction and commits unless f fails.
func (db *DB) Write(f func(tx WriteTxn) error) error {
	tx, err := db.BeginWrite()
	if err != nil {
		return err
	}
	defer tx.Close()
	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) addTx(tx *txn) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *txn) {
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := slices.Index(db.txns, tx)
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *txn) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%s %s open for %d ms\n", tx.mode(), tx.id, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%s %s open for %d ms:\n%s", tx.mode(), tx.id, ms, tx.stack)
		}
	}

	return buf.String()
}
