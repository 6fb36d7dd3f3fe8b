package fstreedb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type (
	Foo struct {
		A int `msgpack:"a"`
	}
	Bar struct {
		A string `msgpack:"a"`
	}
	Baz struct {
		A string `msgpack:"a"`
		B bool   `msgpack:"b"`
	}
)

func upgradesOnlyChain() (*VersionChain, Version[Foo], Version[Bar], Version[Baz]) {
	scm := NewSchema()
	vc := scm.DefineVersions("things")
	foo := AddVersion[Foo](vc, VersionOpts{})
	bar := AddVersion[Bar](vc, VersionOpts{})
	baz := AddVersion[Baz](vc, VersionOpts{})
	AddUpgrade(bar, func(prev Foo) (Bar, error) {
		return Bar{A: strconv.Itoa(prev.A)}, nil
	})
	AddUpgrade(baz, func(prev Bar) (Baz, error) {
		return Baz{A: prev.A, B: true}, nil
	})
	return vc, foo, bar, baz
}

func fullChain() (*VersionChain, Version[Foo], Version[Bar], Version[Baz]) {
	vc, foo, bar, baz := upgradesOnlyChain()
	AddDowngrade(bar, func(cur Bar) (Foo, error) {
		n, err := strconv.Atoi(cur.A)
		return Foo{A: n}, err
	})
	AddDowngrade(baz, func(cur Baz) (Bar, error) {
		return Bar{A: cur.A}, nil
	})
	return vc, foo, bar, baz
}

func TestVersions_Registry(t *testing.T) {
	vc, foo, bar, baz := upgradesOnlyChain()
	deepEqual(t, vc.Len(), 3)
	deepEqual(t, vc.LastVersion(), uint64(2))
	deepEqual(t, foo.Ordinal(), uint64(0))
	deepEqual(t, bar.Ordinal(), uint64(1))
	deepEqual(t, baz.TypeName(), "fstreedb.Baz")
	require.True(t, foo.IsFirst())
	require.False(t, foo.IsLast())
	require.True(t, baz.IsLast())
	require.Same(t, vc, bar.Chain())

	v, ok := VersionOf[Bar](vc)
	require.True(t, ok)
	deepEqual(t, v.Ordinal(), uint64(1))
	_, ok = VersionOf[int](vc)
	require.False(t, ok)
}

func TestVersions_DeclarationPanics(t *testing.T) {
	scm := NewSchema()
	vc := scm.DefineVersions("v")
	foo := AddVersion[Foo](vc, VersionOpts{})
	bar := AddVersion[Bar](vc, VersionOpts{})
	require.Panics(t, func() { AddVersion[Foo](vc, VersionOpts{}) }, "duplicate type")
	require.Panics(t, func() { scm.DefineVersions("V") }, "duplicate chain")
	require.Panics(t, func() {
		AddUpgrade(foo, func(prev Bar) (Foo, error) { return Foo{}, nil })
	}, "first version has no predecessor")
	require.Panics(t, func() {
		AddUpgrade(bar, func(prev Baz) (Bar, error) { return Bar{}, nil })
	}, "wrong predecessor")
	require.Panics(t, func() { _, _ = Load[Baz](vc, 0, nil) }, "type not in chain")
}

func TestVersions_UpgradesOnly(t *testing.T) {
	_, foo, bar, baz := upgradesOnlyChain()

	fooData := must(foo.Save(Foo{A: 7}))
	barData := must(bar.Save(Bar{A: "x"}))

	deepEqual(t, must(baz.Load(0, fooData)), Baz{A: "7", B: true})
	deepEqual(t, must(bar.Load(0, fooData)), Bar{A: "7"})
	deepEqual(t, must(baz.Load(1, barData)), Baz{A: "x", B: true})
	deepEqual(t, must(bar.Load(1, barData)), Bar{A: "x"})

	// v1 bytes cannot go down to Foo
	_, err := foo.Load(1, barData)
	var nm *NoMigrationError
	require.ErrorAs(t, err, &nm)
	deepEqual(t, *nm, NoMigrationError{From: 1, To: 0, ToName: "fstreedb.Foo"})

	// the failing step is 2->1 but the error names the requested target
	bazData := must(baz.Save(Baz{A: "z"}))
	_, err = foo.Load(2, bazData)
	require.ErrorAs(t, err, &nm)
	deepEqual(t, *nm, NoMigrationError{From: 2, To: 0, ToName: "fstreedb.Foo"})
}

func TestVersions_FullRoundTrips(t *testing.T) {
	vc, foo, bar, baz := fullChain()

	orig := Foo{A: 42}
	up := must(baz.Load(0, must(foo.Save(orig))))
	deepEqual(t, up, Baz{A: "42", B: true})
	down := must(foo.Load(2, must(baz.Save(up))))
	deepEqual(t, down, orig)

	deepEqual(t, must(Load[Bar](vc, 2, must(baz.Save(Baz{A: "9"})))), Bar{A: "9"})
	deepEqual(t, must(bar.Load(0, must(foo.Save(Foo{A: -1})))), Bar{A: "-1"})
}

func TestVersions_TooBig(t *testing.T) {
	vc, foo, bar, baz := fullChain()
	data := must(foo.Save(Foo{}))

	check := func(err error) {
		t.Helper()
		var tb *VersionTooBigError
		require.ErrorAs(t, err, &tb)
		deepEqual(t, *tb, VersionTooBigError{Version: 3, Max: 2})
	}
	_, err := foo.Load(3, data)
	check(err)
	_, err = bar.Load(3, data)
	check(err)
	_, err = baz.Load(3, data)
	check(err)
	_, err = Load[Baz](vc, 100, data)
	require.Error(t, err)
}

func TestVersions_MigrationFailure(t *testing.T) {
	_, foo, bar, _ := fullChain()
	_, err := foo.Load(1, must(bar.Save(Bar{A: "not a number"})))
	var me *MigrationError
	require.ErrorAs(t, err, &me)
	deepEqual(t, me.From, uint64(1))
	deepEqual(t, me.To, uint64(0))
	var ne *strconv.NumError
	require.ErrorAs(t, err, &ne)
}

func TestVersions_DeserializationFailure(t *testing.T) {
	_, foo, _, baz := fullChain()
	_, err := baz.Load(0, []byte{0xc1}) // never used in msgpack
	var de *DeserializationError
	require.ErrorAs(t, err, &de)
	deepEqual(t, de.TypeName, "fstreedb.Foo")

	_, err = foo.Load(0, x("81 a1 61 a3 61 62 63")) // {"a": "abc"}
	require.ErrorAs(t, err, &de)
}

type point struct {
	X, Y int32
}

func (p point) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, uint32(p.X))
	binary.BigEndian.PutUint32(buf[4:], uint32(p.Y))
	return buf, nil
}

func (p *point) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("point: got %d bytes, wanted 8", len(data))
	}
	p.X = int32(binary.BigEndian.Uint32(data))
	p.Y = int32(binary.BigEndian.Uint32(data[4:]))
	return nil
}

type brokenValue struct{}

func (brokenValue) MarshalBinary() ([]byte, error) {
	return nil, errors.New("cannot marshal")
}

func (*brokenValue) UnmarshalBinary(data []byte) error {
	return nil
}

func TestVersions_Encodings(t *testing.T) {
	scm := NewSchema()
	points := scm.DefineVersions("points")
	pv := AddVersion[point](points, VersionOpts{Encoding: JSON})
	deepEqual(t, pv.e.enc, Binary)
	data := must(pv.Save(point{1, -2}))
	deepEqual(t, data, x("00000001 fffffffe"))
	deepEqual(t, must(pv.Load(0, data)), point{1, -2})

	docs := scm.DefineVersions("docs")
	dv := AddVersion[Post](docs, VersionOpts{Encoding: JSON})
	data = must(dv.Save(Post{Title: "t"}))
	deepEqual(t, string(data), `{"Title":"t","Body":""}`)

	broken := scm.DefineVersions("broken")
	bv := AddVersion[brokenValue](broken, VersionOpts{})
	_, err := bv.Save(brokenValue{})
	var se *SerializationError
	require.ErrorAs(t, err, &se)
}
