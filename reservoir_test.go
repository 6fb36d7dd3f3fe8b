package fstreedb

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkReservoir[T comparable](t testing.TB, r *Reservoir[T]) {
	t.Helper()
	items := r.Items()
	if r.IsLimited() {
		want := min(uint64(r.MaxSize()), r.Count())
		require.Equal(t, want, uint64(len(items)), "len(sample) == min(max, count)")
	} else {
		require.Equal(t, r.Count(), uint64(len(items)))
	}
	seen := make(map[T]bool)
	for i, item := range items {
		require.False(t, seen[item], "duplicate %v", item)
		seen[item] = true
		require.Equal(t, i, r.pos[item])
	}
	require.Len(t, r.pos, len(items))
}

func TestReservoir_Unlimited(t *testing.T) {
	r := NewReservoir[string](AllChildren, nil)
	deepEqual(t, r.Insert("a").Kind, Inserted)
	deepEqual(t, r.Insert("b").Kind, Inserted)
	deepEqual(t, r.Insert("a").Kind, Overwritten)
	deepEqual(t, r.Count(), uint64(2))
	deepEqual(t, r.MaxSize(), -1)
	deepEqual(t, r.Size(), AllChildren)
	require.True(t, r.Contains("b"))
	checkReservoir(t, r)
}

func TestReservoir_Limited(t *testing.T) {
	r := NewReservoir[int](MaxChildren(5), nil)
	r.Seed(1, 2)
	for i := range 5 {
		deepEqual(t, r.Insert(i).Kind, Inserted)
	}
	checkReservoir(t, r)

	var replaced, dropped int
	for i := 5; i < 1000; i++ {
		res := r.Insert(i)
		switch res.Kind {
		case Replaced:
			replaced++
			require.False(t, r.Contains(res.Removed))
			require.True(t, r.Contains(i))
		case Dropped:
			dropped++
			deepEqual(t, res.Val, i)
			require.False(t, r.Contains(i))
		default:
			t.Fatalf("** Insert(%d) = %v, wanted replaced or dropped", i, res.Kind)
		}
		checkReservoir(t, r)
	}
	deepEqual(t, r.Count(), uint64(1000))
	deepEqual(t, r.Len(), 5)
	if replaced == 0 || dropped == 0 {
		t.Errorf("** replaced=%d dropped=%d, wanted both non-zero", replaced, dropped)
	}
}

func TestReservoir_LimitedDuplicate(t *testing.T) {
	r := NewReservoir[string](MaxChildren(2), nil)
	r.Insert("a")
	deepEqual(t, r.Insert("a").Kind, Overwritten)
	deepEqual(t, r.Count(), uint64(1))
}

func TestReservoir_Deterministic(t *testing.T) {
	run := func() []int {
		r := NewReservoir[int](MaxChildren(3), nil)
		r.Seed(42, 7)
		for i := range 100 {
			r.Insert(i)
		}
		items := r.Items()
		slices.Sort(items)
		return items
	}
	deepEqual(t, run(), run())
}

func TestReservoir_Uniform(t *testing.T) {
	const n, size, rounds = 10, 2, 20000
	hits := make([]int, n)
	r0 := NewReservoir[int](MaxChildren(size), nil)
	for round := range rounds {
		r := NewReservoir[int](MaxChildren(size), nil)
		r.Seed(uint64(round), r0.rng.Uint64())
		for i := range n {
			r.Insert(i)
		}
		for _, item := range r.Items() {
			hits[item]++
		}
	}
	// every item is kept with probability size/n
	expected := float64(rounds) * size / n
	for i, h := range hits {
		assert.InDelta(t, expected, float64(h), expected*0.1, "item %d", i)
	}
}

func TestNewReservoir_FromItems(t *testing.T) {
	r := NewReservoir(MaxChildren(3), []string{"a", "b", "a", "c", "d", "e"})
	deepEqual(t, r.Len(), 3)
	deepEqual(t, r.Count(), uint64(5))
	checkReservoir(t, r)

	u := NewReservoir(AllChildren, []string{"a", "b", "a"})
	deepEqual(t, u.Len(), 2)
	checkReservoir(t, u)
}

func TestRestoreReservoir(t *testing.T) {
	r, err := RestoreReservoir(3, 10, []string{"x", "y", "z"})
	require.NoError(t, err)
	deepEqual(t, r.Count(), uint64(10))
	deepEqual(t, r.MaxSize(), 3)
	res := r.Insert("w")
	require.Contains(t, []InsertionKind{Replaced, Dropped}, res.Kind)
	deepEqual(t, r.Count(), uint64(11))

	_, err = RestoreReservoir(2, 10, []string{"x", "y", "z"})
	require.ErrorIs(t, err, ErrReservoirTooBig)
	_, err = RestoreReservoir(3, 1, []string{"x", "y"})
	require.Error(t, err)
	_, err = RestoreReservoir(3, 5, []string{"x", "x"})
	require.Error(t, err)
	_, err = RestoreReservoir(0, 5, []string{})
	require.Error(t, err)
}

func TestInsertionKind_String(t *testing.T) {
	deepEqual(t, Inserted.String(), "inserted")
	deepEqual(t, Dropped.String(), "dropped")
	deepEqual(t, ReservoirSize(0).String(), "default")
	deepEqual(t, AllChildren.String(), "all")
	deepEqual(t, MaxChildren(4).String(), "max(4)")
}
