package fstreedb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ChildrenInfo describes the children recorded under a path.
type ChildrenInfo struct {
	// Segments is the remembered sample, in an unspecified order.
	Segments []Segment
	// Count is how many times a new child was recorded. A child is recorded
	// when a value is stored at a path that held none; a child removed and
	// stored again after dropping out of the sample is counted twice. Count
	// equals len(Segments) unless the reservoir is limited.
	Count uint64
	Limit ReservoirSize
}

func (ci ChildrenInfo) IsComplete() bool {
	return uint64(len(ci.Segments)) == ci.Count
}

func (ci ChildrenInfo) Contains(seg Segment) bool {
	for _, s := range ci.Segments {
		if s == seg {
			return true
		}
	}
	return false
}

type reservoirBlob struct {
	Max    int      `msgpack:"m"` // zero when unlimited
	Count  uint64   `msgpack:"c"`
	Sample []string `msgpack:"s"`
}

const childrenBlobVersion = 0

func encodeReservoir(r *Reservoir[Segment], opt valueOpts) ([]byte, error) {
	blob := reservoirBlob{Count: r.count}
	if r.limited {
		blob.Max = r.max
	}
	blob.Sample = make([]string, len(r.items))
	for i, seg := range r.items {
		blob.Sample[i] = string(seg)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(&blob); err != nil {
		return nil, &SerializationError{"children", err}
	}
	return appendValue(nil, childrenBlobVersion, buf.Bytes(), opt)
}

// decodeReservoir restores a persisted reservoir. If the configured size has
// changed since it was written, the sample is carried over into a reservoir
// of the new size.
func decodeReservoir(data []byte, size ReservoirSize) (*Reservoir[Segment], error) {
	var val value
	if err := val.decode(data); err != nil {
		return nil, err
	}
	if val.Version != childrenBlobVersion {
		return nil, &VersionTooBigError{val.Version, childrenBlobVersion}
	}
	var blob reservoirBlob
	if err := msgpack.Unmarshal(val.Payload, &blob); err != nil {
		return nil, &DeserializationError{"children", err}
	}
	sample := make([]Segment, len(blob.Sample))
	for i, s := range blob.Sample {
		sample[i] = Segment(s)
	}

	var r *Reservoir[Segment]
	if blob.Max > 0 {
		var err error
		r, err = RestoreReservoir(blob.Max, blob.Count, sample)
		if err != nil {
			return nil, &DeserializationError{"children", err}
		}
	} else {
		r = NewReservoir(AllChildren, sample)
	}

	if r.Size() != size {
		count := r.count
		r = NewReservoir(size, sample)
		r.count = max(r.count, count)
	}
	return r, nil
}

func (db *DB) childrenOf(tx *txn, key []byte, size ReservoirSize) (*Reservoir[Segment], error) {
	raw, err := tx.Get(Children, key)
	if errors.Is(err, ErrKeyNotFound) {
		return NewReservoir[Segment](size, nil), nil
	} else if err != nil {
		return nil, err
	}
	r, err := decodeReservoir(raw, size)
	if err != nil {
		db.logger.Warn("fstreedb: unreadable children", hexAttr("key", key), "err", err)
		return nil, fmt.Errorf("children of %s: %w", keyString(key), err)
	}
	return r, nil
}

// childUpdate is a pending write of one parent's children reservoir.
type childUpdate struct {
	parent Chain
	seg    Segment
	kind   InsertionKind
	raw    []byte
}

// planChildren computes the reservoir updates that record the last segment
// of c under its parent, then each ancestor under its own parent until one is
// already listed. Nothing is written. The returned kind is the outcome for
// the immediate parent; the root has no parent.
func (db *DB) planChildren(tx *txn, c Chain) (InsertionKind, []childUpdate, error) {
	result := Overwritten
	var updates []childUpdate
	for level := 0; ; level++ {
		parent, ok := c.Parent()
		if !ok {
			return result, updates, nil
		}
		u, err := db.planChild(tx, parent, c.Last().Segment())
		if err != nil {
			return 0, nil, err
		}
		if level == 0 {
			result = u.kind
		}
		if u.kind == Overwritten {
			return result, updates, nil
		}
		updates = append(updates, u)
		c = parent
	}
}

func (db *DB) planChild(tx *txn, parent Chain, seg Segment) (childUpdate, error) {
	u := childUpdate{parent: parent, seg: seg}
	size := db.childrenLimitFor(parent.Last().Type())
	r, err := db.childrenOf(tx, parent.Key(), size)
	if err != nil {
		return u, err
	}
	u.kind = r.Insert(seg).Kind
	if u.kind == Overwritten {
		return u, nil
	}
	u.raw, err = encodeReservoir(r, db.valueOpts)
	if err != nil {
		return u, err
	}
	if db.verbose {
		db.logf("db: CHILDREN %s += %s (%v, %d/%d)", parent, seg, u.kind, r.Len(), r.Count())
	}
	return u, nil
}

func (db *DB) applyChildren(tx *txn, updates []childUpdate) error {
	for _, u := range updates {
		if err := tx.Set(Children, u.parent.Key(), u.raw); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) readChildren(tx *txn, c Chain) (ChildrenInfo, error) {
	size := db.childrenLimitFor(c.Last().Type())
	r, err := db.childrenOf(tx, c.Key(), size)
	if err != nil {
		return ChildrenInfo{}, err
	}
	return ChildrenInfo{
		Segments: r.Items(),
		Count:    r.Count(),
		Limit:    size,
	}, nil
}
