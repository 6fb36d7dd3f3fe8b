package fstreedb

import (
	"fmt"
	"math/rand/v2"
)

// Reservoir keeps a uniform random sample of at most max items out of every
// item ever inserted (Algorithm R). An unlimited reservoir is a plain set.
//
// Invariant for limited reservoirs: len(sample) == min(max, count).
type Reservoir[T comparable] struct {
	limited bool
	max     int
	count   uint64
	items   []T
	pos     map[T]int
	rng     *rand.Rand
}

type InsertionKind int

const (
	// Inserted means there was room for the item.
	Inserted InsertionKind = iota
	// Overwritten means the item was already present.
	Overwritten
	// Replaced means a random item was evicted to make room.
	Replaced
	// Dropped means the new item was not sampled.
	Dropped
)

func (k InsertionKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Overwritten:
		return "overwritten"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("invalid insertion kind %d", int(k))
	}
}

type InsertionResult[T comparable] struct {
	Kind InsertionKind
	// Removed is the evicted item when Kind == Replaced.
	Removed T
	// Val is the rejected item when Kind == Dropped.
	Val T
}

// NewReservoir builds a reservoir over items. A limited reservoir with more
// items than its maximum randomly discards the excess.
func NewReservoir[T comparable](size ReservoirSize, items []T) *Reservoir[T] {
	r := newEmptyReservoir[T](size)
	for _, item := range items {
		if _, found := r.pos[item]; !found {
			r.push(item)
		}
	}
	r.count = uint64(len(r.items))
	for r.limited && len(r.items) > r.max {
		r.swapRemove(r.rng.IntN(len(r.items)))
	}
	return r
}

// RestoreReservoir rebuilds a limited reservoir from its persisted state.
func RestoreReservoir[T comparable](max int, count uint64, sample []T) (*Reservoir[T], error) {
	if max <= 0 {
		return nil, fmt.Errorf("invalid reservoir maximum %d", max)
	}
	if len(sample) > max {
		return nil, ErrReservoirTooBig
	}
	if uint64(len(sample)) > count {
		return nil, fmt.Errorf("reservoir sample of %d items exceeds total count %d", len(sample), count)
	}
	r := newEmptyReservoir[T](MaxChildren(max))
	for _, item := range sample {
		if _, found := r.pos[item]; found {
			return nil, fmt.Errorf("duplicate item in reservoir sample: %v", item)
		}
		r.push(item)
	}
	r.count = count
	return r, nil
}

func newEmptyReservoir[T comparable](size ReservoirSize) *Reservoir[T] {
	r := &Reservoir[T]{
		pos: make(map[T]int),
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if size.IsLimited() {
		r.limited = true
		r.max = int(size)
	}
	return r
}

// Seed makes subsequent sampling decisions deterministic.
func (r *Reservoir[T]) Seed(seed1, seed2 uint64) {
	r.rng = rand.New(rand.NewPCG(seed1, seed2))
}

func (r *Reservoir[T]) Insert(val T) InsertionResult[T] {
	if _, found := r.pos[val]; found {
		return InsertionResult[T]{Kind: Overwritten}
	}
	if !r.limited {
		r.push(val)
		r.count++
		return InsertionResult[T]{Kind: Inserted}
	}

	r.count++
	if r.remainingCapacity() > 0 {
		r.push(val)
		return InsertionResult[T]{Kind: Inserted}
	}

	// count already includes val, so drawing from [0, count) keeps every item
	// in the sample with probability max/count; [0, count-1) would not.
	idx := r.rng.Uint64N(r.count)
	if idx < uint64(len(r.items)) {
		removed := r.swapRemove(int(idx))
		r.push(val)
		return InsertionResult[T]{Kind: Replaced, Removed: removed}
	}
	return InsertionResult[T]{Kind: Dropped, Val: val}
}

func (r *Reservoir[T]) push(val T) {
	r.pos[val] = len(r.items)
	r.items = append(r.items, val)
}

func (r *Reservoir[T]) swapRemove(i int) T {
	n := len(r.items)
	removed := r.items[i]
	delete(r.pos, removed)
	if i != n-1 {
		r.items[i] = r.items[n-1]
		r.pos[r.items[i]] = i
	}
	var zero T
	r.items[n-1] = zero
	r.items = r.items[:n-1]
	return removed
}

// Items returns the current sample. Order is unspecified.
func (r *Reservoir[T]) Items() []T {
	return append([]T(nil), r.items...)
}

func (r *Reservoir[T]) Contains(val T) bool {
	_, found := r.pos[val]
	return found
}

func (r *Reservoir[T]) Len() int {
	return len(r.items)
}

// Count returns the number of distinct inserts ever seen.
func (r *Reservoir[T]) Count() uint64 {
	return r.count
}

func (r *Reservoir[T]) IsLimited() bool {
	return r.limited
}

// MaxSize returns the sample cap, or -1 for unlimited reservoirs.
func (r *Reservoir[T]) MaxSize() int {
	if !r.limited {
		return -1
	}
	return r.max
}

// Size returns the ReservoirSize this reservoir was created with.
func (r *Reservoir[T]) Size() ReservoirSize {
	if !r.limited {
		return AllChildren
	}
	return ReservoirSize(r.max)
}

func (r *Reservoir[T]) remainingCapacity() int {
	if !r.limited {
		return -1
	}
	return r.max - len(r.items)
}
