package fstreedb

import (
	"bytes"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_Validate(t *testing.T) {
	tests := []struct {
		seg Segment
		ok  bool
	}{
		{"foo", true},
		{"a b", true},
		{"", false},
		{"a\x00b", false},
		{"\x00", false},
	}
	for _, tt := range tests {
		err := tt.seg.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("** Validate(%q) = %v, wanted ok=%v", string(tt.seg), err, tt.ok)
		}
	}

	_, err := MakeSegment([]byte{1, 0, 2})
	require.Error(t, err)
	assert.Panics(t, func() { MustSegment("") })
}

func TestUint64Segment(t *testing.T) {
	seg := Uint64Segment(1234567890)
	deepEqual(t, seg, Segment("1234567890"))
	deepEqual(t, must(seg.Uint64()), uint64(1234567890))
	require.NoError(t, seg.Validate())
}

func TestChain_Key(t *testing.T) {
	deepEqual(t, rootChain.Key(), x("00"))
	deepEqual(t, fooChain.Key(), []byte("\x00foo\x00"))
	deepEqual(t, barChain.Key(), []byte("\x00foo\x00bar\x00"))
	deepEqual(t, userChain("ab").Key(), []byte("\x00users\x00ab\x00"))

	// deterministic
	deepEqual(t, userChain("ab").Key(), userChain("ab").Key())

	for _, c := range []Chain{rootChain, fooChain, barChain, postChain("u", "p1")} {
		n := c.Len()
		for _, el := range c.Elems() {
			n += len(el.Segment())
		}
		deepEqual(t, len(c.Key()), n)
	}
}

func TestChain_KeyInjective(t *testing.T) {
	chains := []Chain{
		rootChain,
		fooChain,
		barChain,
		userChain("a"),
		userChain("ab"),
		userChain("a").MustChild(postsPath.Elem()),
		postChain("a", "b"),
		postChain("ab", "b"),
		sampleChain("1"),
	}
	seen := make(map[string]Chain)
	for _, c := range chains {
		k := string(c.Key())
		if prev, found := seen[k]; found {
			t.Fatalf("** %v and %v collide on key %q", prev, c, k)
		}
		seen[k] = c
	}
}

func TestChain_KeyInjective_KeyedAndStaticSiblings(t *testing.T) {
	scm := NewSchema()
	dir := scm.DefinePath("dir", PathOpts{Parents: []*PathType{scm.Root()}})
	item := scm.DefinePath("item", PathOpts{Keyed: true, Parents: []*PathType{dir}})
	meta := scm.DefinePath("meta", PathOpts{Tag: "_meta", Parents: []*PathType{dir}})
	d := scm.RootChain().MustChild(dir.Elem())

	_, err := d.Child(item.At("_meta"))
	require.ErrorIs(t, err, ErrInvalidChain)
	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	deepEqual(t, ce.Pos, 2)

	_, err = NewChain(scm.Root().Elem(), dir.Elem(), item.At("_meta"))
	require.ErrorIs(t, err, ErrInvalidChain)

	// a keyed segment only has to differ from the tags, not the names
	c := d.MustChild(item.At("meta"))
	require.NotEqual(t, c.Key(), d.MustChild(meta.Elem()).Key())
	require.Same(t, item, must(scm.Resolve(c.Key())).Last().Type())

	assert.Panics(t, func() {
		scm.DefinePath("other", PathOpts{Keyed: true, Parents: []*PathType{dir}})
	}, "second keyed child")
	require.Nil(t, scm.PathNamed("other"))
}

func TestChain_KeyOrderIsPreOrder(t *testing.T) {
	preorder := []Chain{
		rootChain,
		fooChain,
		barChain,
		rootChain.MustChild(samplesPath.Elem()),
		sampleChain("1"),
		sampleChain("2"),
		rootChain.MustChild(usersPath.Elem()),
		userChain("a"),
		userChain("a").MustChild(postsPath.Elem()),
		postChain("a", "x"),
		userChain("ab"),
	}
	keys := make([][]byte, len(preorder))
	for i, c := range preorder {
		keys[i] = c.Key()
	}
	sorted := append([][]byte(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	deepEqual(t, sorted, keys)
}

func TestChain_Invalid(t *testing.T) {
	root := basicSchema.Root().Elem()
	tests := []struct {
		name  string
		elems []Element
	}{
		{"empty", nil},
		{"not rooted", []Element{fooPath.Elem()}},
		{"skips level", []Element{root, barPath.Elem()}},
		{"wrong parent", []Element{root, userPath.At("x")}},
		{"root twice", []Element{root, root}},
		{"bad segment", []Element{root, usersPath.Elem(), userPath.At("a\x00b")}},
		{"empty segment", []Element{root, usersPath.Elem(), userPath.At("")}},
		{"wrong tag", []Element{root, {fooPath, "fooo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChain(tt.elems...)
			require.ErrorIs(t, err, ErrInvalidChain)
			var ce *ChainError
			require.ErrorAs(t, err, &ce)
			require.True(t, c.IsZero())
		})
	}

	_, err := fooChain.Child(userPath.At("x"))
	require.ErrorIs(t, err, ErrInvalidChain)
	_, err = Chain{}.Child(fooPath.Elem())
	require.ErrorIs(t, err, ErrInvalidChain)
	assert.Panics(t, func() { MustChain(fooPath.Elem()) })
}

func TestChain_OtherSchema(t *testing.T) {
	other := NewSchema()
	otherFoo := other.DefinePath("foo", PathOpts{Parents: []*PathType{other.Root()}})
	_, err := NewChain(basicSchema.Root().Elem(), otherFoo.Elem())
	require.ErrorIs(t, err, ErrInvalidChain)
}

func TestChain_ParentAndString(t *testing.T) {
	deepEqual(t, rootChain.String(), "/")
	deepEqual(t, barChain.String(), "/foo/bar/")
	deepEqual(t, postChain("u1", "p").String(), "/users/user[u1]/posts/post[p]/")
	deepEqual(t, Chain{}.String(), "<invalid>")

	p, ok := barChain.Parent()
	require.True(t, ok)
	require.True(t, p.Equal(fooChain))
	_, ok = rootChain.Parent()
	require.False(t, ok)

	// extending a parent must not clobber the original chain
	c1 := userChain("a").MustChild(postsPath.Elem())
	par, _ := c1.Parent()
	_ = par.MustChild(postsPath.Elem())
	require.True(t, c1.Equal(userChain("a").MustChild(postsPath.Elem())))
}

func TestSplitKeyAndResolve(t *testing.T) {
	for _, c := range []Chain{rootChain, fooChain, barChain, userChain("bob"), postChain("bob", "42"), sampleChain("s")} {
		segs, err := SplitKey(c.Key())
		require.NoError(t, err)
		require.Len(t, segs, c.Len())
		for i, el := range c.Elems() {
			deepEqual(t, segs[i], el.Segment())
		}

		r, err := basicSchema.Resolve(c.Key())
		require.NoError(t, err)
		if !r.Equal(c) {
			t.Errorf("** Resolve(%q) = %v, wanted %v", c.Key(), r, c)
		}
	}
}

func TestSplitKey_Invalid(t *testing.T) {
	for _, key := range [][]byte{nil, []byte("foo"), []byte("a\x00"), []byte("\x00\x00"), []byte("\x00a\x00\x00")} {
		_, err := SplitKey(key)
		var de *DataError
		if !errors.As(err, &de) {
			t.Errorf("** SplitKey(%q) = %v, wanted *DataError", key, err)
		}
	}
}

func TestResolve_Unknown(t *testing.T) {
	_, err := basicSchema.Resolve([]byte("\x00nope\x00"))
	require.ErrorIs(t, err, ErrInvalidChain)
	_, err = basicSchema.Resolve([]byte("\x00foo\x00bar\x00baz\x00"))
	require.ErrorIs(t, err, ErrInvalidChain)
}

func TestParentKey(t *testing.T) {
	deepEqual(t, parentKey(rootChain.Key()), []byte(nil))
	deepEqual(t, parentKey(fooChain.Key()), rootChain.Key())
	deepEqual(t, parentKey(barChain.Key()), fooChain.Key())
}

func TestSchema_Declarations(t *testing.T) {
	scm := NewSchema()
	a := scm.DefinePath("a", PathOpts{Parents: []*PathType{scm.Root()}})
	assert.Panics(t, func() { scm.DefinePath("A", PathOpts{}) }, "duplicate name")
	assert.Panics(t, func() { scm.DefinePath("b", PathOpts{Keyed: true, Tag: "x"}) }, "keyed with tag")
	assert.Panics(t, func() { scm.DefinePath("c", PathOpts{Tag: "a", Parents: []*PathType{scm.Root()}}) }, "sibling tag clash")
	assert.Panics(t, func() { Link(a, scm.Root()) }, "root as child")
	assert.Panics(t, func() { MaxChildren(0) })

	k := scm.DefinePath("k", PathOpts{Keyed: true, Parents: []*PathType{a}})
	assert.Panics(t, func() { k.Elem() })
	assert.Panics(t, func() { a.At("x") })

	require.True(t, a.IsParentOf(k))
	require.Same(t, a, scm.PathNamed("A"))
	require.Same(t, scm.Root(), scm.PathNamed("root"))
	deepEqual(t, a.Tag(), Segment("a"))
	deepEqual(t, len(scm.Paths()), 2)
}

func TestResolve_StaticWinsOverKeyed(t *testing.T) {
	scm := NewSchema()
	dir := scm.DefinePath("dir", PathOpts{Parents: []*PathType{scm.Root()}})
	item := scm.DefinePath("item", PathOpts{Keyed: true, Parents: []*PathType{dir}})
	meta := scm.DefinePath("meta", PathOpts{Tag: "_meta", Parents: []*PathType{dir}})

	c := must(scm.Resolve([]byte("\x00dir\x00_meta\x00")))
	require.Same(t, meta, c.Last().Type())
	c = must(scm.Resolve([]byte("\x00dir\x00x\x00")))
	require.Same(t, item, c.Last().Type())
}
