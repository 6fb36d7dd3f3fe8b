package fstreedb

type NamespaceStats struct {
	Entries int
	Size    int
	Alloc   int
}

type Stats struct {
	Data     NamespaceStats
	Children NamespaceStats

	Readers        int64
	Writers        int64
	PendingWriters int64
	Reads          uint64
	Writes         uint64
}

func (s *Stats) TotalSize() int {
	return s.Data.Size + s.Children.Size
}

func (s *Stats) TotalAlloc() int {
	return s.Data.Alloc + s.Children.Alloc
}

// Stats returns the current storage statistics and operation counters.
func (db *DB) Stats() (Stats, error) {
	var result Stats
	err := db.Read(func(rtx ReadTxn) error {
		tx := rtx.(*txn)
		result.Data = namespaceStats(tx, Data)
		result.Children = namespaceStats(tx, Children)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	result.Readers = db.ReaderCount.Load()
	result.Writers = db.WriterCount.Load()
	result.PendingWriters = db.PendingWriterCount.Load()
	result.Reads = db.ReadCount.Load()
	result.Writes = db.WriteCount.Load()
	return result, nil
}

func namespaceStats(tx *txn, ns Namespace) NamespaceStats {
	bs := tx.bucket(ns).Stats()
	return NamespaceStats{
		Entries: bs.Keys,
		Size:    bs.Size,
		Alloc:   bs.Alloc,
	}
}
