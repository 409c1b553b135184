package alphamap_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnml/datrie/alphamap"
)

func TestAddRangeMergesOverlapsAndAdjacent(t *testing.T) {
	am := alphamap.New()
	require.NoError(t, am.AddRange('a', 'f'))
	require.NoError(t, am.AddRange('d', 'k')) // overlaps
	require.NoError(t, am.AddRange('l', 'n')) // adjacent to [a-k] after merge
	assert.Equal(t, int('n'-'a'+1), am.NumChars())

	for c := AlphaChar('a'); c <= 'n'; c++ {
		tc, ok := am.CharToTrie(c)
		require.True(t, ok, "char %q should be mapped", c)
		back, ok := am.TrieToChar(tc)
		require.True(t, ok)
		assert.Equal(t, c, back)
	}
}

type AlphaChar = alphamap.AlphaChar

func TestCharToTrieMissOutsideAlphabet(t *testing.T) {
	am := alphamap.New()
	require.NoError(t, am.AddRange(0x20, 0x7E))
	_, ok := am.CharToTrie(0x0E01) // Thai, well outside ASCII
	assert.False(t, ok)
}

func TestTerminatorAlwaysMapsToZero(t *testing.T) {
	am := alphamap.New()
	require.NoError(t, am.AddRange(0x20, 0x7E))
	tc, ok := am.CharToTrie(0)
	require.True(t, ok)
	assert.Equal(t, alphamap.Terminator, tc)

	c, ok := am.TrieToChar(alphamap.Terminator)
	require.True(t, ok)
	assert.Equal(t, AlphaChar(0), c)
}

func TestAddRangeTooLarge(t *testing.T) {
	am := alphamap.New()
	err := am.AddRange(0, alphamap.MaxAlphabetSize) // 255 distinct values, one too many
	assert.ErrorIs(t, err, alphamap.ErrTooLarge)
}

func TestCharToTrieStrPreservesTerminator(t *testing.T) {
	am := alphamap.New()
	require.NoError(t, am.AddRange(0x20, 0x7E))
	in := []AlphaChar{'c', 'a', 't', 0}
	out, ok := am.CharToTrieStr(in)
	require.True(t, ok)
	require.Len(t, out, 4)
	assert.Equal(t, alphamap.Terminator, out[3])

	back, ok := am.TrieToCharStr(out)
	require.True(t, ok)
	assert.Equal(t, in, back)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	am := alphamap.New()
	require.NoError(t, am.AddRange(0x20, 0x7E))
	require.NoError(t, am.AddRange(0x0E01, 0x0E5B))

	var buf bytes.Buffer
	require.NoError(t, am.Save(&buf))

	loaded := alphamap.New()
	require.NoError(t, loaded.Load(&buf))
	assert.Equal(t, am.NumChars(), loaded.NumChars())

	tc, ok := am.CharToTrie(0x0E30)
	require.True(t, ok)
	tc2, ok := loaded.CharToTrie(0x0E30)
	require.True(t, ok)
	assert.Equal(t, tc, tc2)
}

func TestLoadBadMagic(t *testing.T) {
	am := alphamap.New()
	err := am.Load(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, alphamap.ErrBadMagic)
}
