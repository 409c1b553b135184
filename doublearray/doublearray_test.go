package doublearray_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnml/datrie/doublearray"
)

func TestInsertBranchThenWalk(t *testing.T) {
	d := doublearray.New()
	root := d.Root()

	s1, err := d.InsertBranch(root, 'a')
	require.NoError(t, err)
	s2, err := d.InsertBranch(s1, 'b')
	require.NoError(t, err)

	got, ok := d.Walk(root, 'a')
	require.True(t, ok)
	assert.Equal(t, s1, got)

	got, ok = d.Walk(s1, 'b')
	require.True(t, ok)
	assert.Equal(t, s2, got)

	_, ok = d.Walk(root, 'z')
	assert.False(t, ok)
}

func TestInsertBranchIdempotent(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	s1, err := d.InsertBranch(root, 'a')
	require.NoError(t, err)
	s2, err := d.InsertBranch(root, 'a')
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestChildCharsAscendingOrder(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	for _, c := range []byte{'c', 'a', 'b'} {
		_, err := d.InsertBranch(root, c)
		require.NoError(t, err)
	}
	assert.Equal(t, []byte{'a', 'b', 'c'}, d.ChildChars(root))
}

func TestPruneUpToRemovesChildlessChain(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	s1, err := d.InsertBranch(root, 'a')
	require.NoError(t, err)
	s2, err := d.InsertBranch(s1, 'b')
	require.NoError(t, err)
	assert.True(t, d.HasChildren(s1))

	d.FreeCell(s2)
	d.PruneUpTo(root, s1)

	assert.False(t, d.HasChildren(root))
	_, ok := d.Walk(root, 'a')
	assert.False(t, ok, "s1 should have been pruned once childless")
}

func TestPruneNeverFreesRoot(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	d.PruneUpTo(root, root)
	// root should remain usable
	_, err := d.InsertBranch(root, 'x')
	assert.NoError(t, err)
}

func TestRelocationOnManySiblingsForcesCollision(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	// Insert enough distinct branches from many different parents that
	// collisions and relocation are exercised, then verify every
	// transition still resolves correctly afterward.
	type edge struct {
		parent int32
		c      byte
	}
	var edges []edge
	parents := []int32{root}
	for i := 0; i < 40; i++ {
		p := parents[rand.Intn(len(parents))]
		c := byte('a' + (i % 26))
		if _, ok := d.Walk(p, c); ok {
			continue
		}
		s, err := d.InsertBranch(p, c)
		require.NoError(t, err)
		edges = append(edges, edge{p, c})
		parents = append(parents, s)
	}
	for _, e := range edges {
		_, ok := d.Walk(e.parent, e.c)
		assert.True(t, ok, "edge %c from %d should still resolve after relocation", e.c, e.parent)
	}
}

// TestRelocationNeverStrandsRelocatedParent exercises the case where a
// collision's "owner" side is the triggering state's own parent: relocating
// the parent would migrate the triggering state's cell out from under it,
// so the fix must always relocate the state itself in that situation.
// Built directly rather than randomly: give root five children, give one of
// them (s) thirteen, so root is the fewer-children side, then add 'a' to s,
// whose cell base[s]+'a' is s's own cell, owned by root.
func TestRelocationNeverStrandsRelocatedParent(t *testing.T) {
	d := doublearray.New()
	root := d.Root()

	for _, c := range []byte{'a', 'b', 'c', 'd', 'e'} {
		_, err := d.InsertBranch(root, c)
		require.NoError(t, err)
	}

	s, ok := d.Walk(root, 'a')
	require.True(t, ok)
	for _, c := range []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 'a'} {
		_, err := d.InsertBranch(s, c)
		require.NoError(t, err)
	}

	// Every transition installed above, from both root and s, must still
	// resolve correctly: if a relocation ever stranded s on a stale,
	// freed id, one of these would now resolve to the wrong state (or
	// the call above would have corrupted the free list / panicked).
	for _, c := range []byte{'a', 'b', 'c', 'd', 'e'} {
		got, ok := d.Walk(root, c)
		assert.True(t, ok)
		if c == 'a' {
			assert.Equal(t, s, got)
		}
	}
	for _, c := range []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 'a'} {
		_, ok := d.Walk(s, c)
		assert.True(t, ok, "child %d of s should still resolve", c)
	}
}

func TestTailLinkRoundtrip(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	s, err := d.InsertBranch(root, 0)
	require.NoError(t, err)
	assert.False(t, d.IsTailLink(s))
	d.SetTailIndex(s, 7)
	assert.True(t, d.IsTailLink(s))
	assert.Equal(t, int32(7), d.TailIndex(s))
}

func TestSaveLoadRoundtrip(t *testing.T) {
	d := doublearray.New()
	root := d.Root()
	s1, err := d.InsertBranch(root, 'c')
	require.NoError(t, err)
	s2, err := d.InsertBranch(s1, 'a')
	require.NoError(t, err)
	_, err = d.InsertBranch(s2, 't')
	require.NoError(t, err)
	d.SetTailIndex(s2, 5)

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf))

	loaded := doublearray.New()
	require.NoError(t, loaded.Load(&buf))

	got, ok := loaded.Walk(root, 'c')
	require.True(t, ok)
	assert.Equal(t, s1, got)

	// Free list must still be usable after reconstruction.
	_, err = loaded.InsertBranch(root, 'z')
	assert.NoError(t, err)
}

func TestLoadBadMagic(t *testing.T) {
	d := doublearray.New()
	err := d.Load(bytes.NewReader(make([]byte, 8)))
	assert.ErrorIs(t, err, doublearray.ErrBadMagic)
}
