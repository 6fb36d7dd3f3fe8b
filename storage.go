package fstreedb

// storage is the raw key-value engine underneath the capability layer
// (Bolt, in-memory, etc.).
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns a root bucket, or nil if the bucket doesn't exist.
	Bucket(name string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	CreateBucket(name string) (storageBucket, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error

	// Size returns the database size in bytes (0 if unknown / not applicable).
	Size() int64
}

// storageBucket represents a bucket (sorted key-value collection).
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found. The returned
	// slice is only valid until the end of the transaction.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// Cursor returns a cursor for iteration.
	Cursor() storageCursor

	// Stats reports the bucket's size (best effort).
	Stats() bucketStats
}

type bucketStats struct {
	Keys  int
	Size  int
	Alloc int
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)
}
