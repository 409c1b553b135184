package tail_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnml/datrie/tail"
)

func TestAddGetSuffixAndData(t *testing.T) {
	tl := tail.New()
	i := tl.AddSuffix([]byte("rt"))
	assert.GreaterOrEqual(t, i, int32(1))
	assert.Equal(t, []byte("rt"), tl.GetSuffix(i))
	assert.Equal(t, tail.DataError, tl.GetData(i))

	tl.SetData(i, 42)
	assert.Equal(t, int32(42), tl.GetData(i))
}

func TestFreeBlockReusedByAddSuffix(t *testing.T) {
	tl := tail.New()
	a := tl.AddSuffix([]byte("x"))
	b := tl.AddSuffix([]byte("y"))
	tl.FreeBlock(a)

	c := tl.AddSuffix([]byte("z"))
	assert.Equal(t, a, c, "freed block should be reused before growing")
	assert.NotEqual(t, b, c)
}

func TestWalkCharAndWalkStr(t *testing.T) {
	tl := tail.New()
	i := tl.AddSuffix([]byte("art"))

	pos, ok := tl.WalkChar(i, 0, 'a')
	require.True(t, ok)
	pos, ok = tl.WalkChar(i, pos, 'r')
	require.True(t, ok)
	_, ok = tl.WalkChar(i, pos, 'x')
	assert.False(t, ok)

	newPos, consumed := tl.WalkStr(i, 0, []byte("art"))
	assert.Equal(t, 3, newPos)
	assert.Equal(t, 3, consumed)

	newPos, consumed = tl.WalkStr(i, 0, []byte("arx"))
	assert.Equal(t, 2, newPos)
	assert.Equal(t, 2, consumed)
}

func TestWalkCharImplicitTerminator(t *testing.T) {
	tl := tail.New()
	i := tl.AddSuffix([]byte("ab"))
	_, ok := tl.WalkChar(i, 2, 0)
	assert.True(t, ok, "reading past stored suffix should match terminator")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	tl := tail.New()
	i1 := tl.AddSuffix([]byte("cart"))
	tl.SetData(i1, 3)
	i2 := tl.AddSuffix([]byte(""))
	tl.SetData(i2, 7)
	i3 := tl.AddSuffix([]byte("car"))
	tl.SetData(i3, 2)
	tl.FreeBlock(i2)

	var buf bytes.Buffer
	require.NoError(t, tl.Save(&buf))

	loaded := tail.New()
	require.NoError(t, loaded.Load(&buf))

	assert.Equal(t, tl.NumBlocks(), loaded.NumBlocks())
	assert.Equal(t, []byte("cart"), loaded.GetSuffix(i1))
	assert.Equal(t, int32(3), loaded.GetData(i1))
	assert.Equal(t, []byte("car"), loaded.GetSuffix(i3))
}

func TestLoadBadMagic(t *testing.T) {
	tl := tail.New()
	err := tl.Load(bytes.NewReader(make([]byte, 8)))
	assert.ErrorIs(t, err, tail.ErrBadMagic)
}
