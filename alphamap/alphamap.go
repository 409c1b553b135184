// Package alphamap implements the bijection between external character
// codes ("AlphaChar", arbitrary signed 32-bit values) and the compact
// internal trie-char range [0, N) that the double array indexes by.
//
// Internal code 0 is reserved as the string terminator and is never
// assigned to an external character. Internal code 255 is reserved as
// the double array's unused-transition sentinel, which caps the usable
// alphabet at 254 distinct external characters.
package alphamap

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// AlphaChar is an external character code, as supplied by the caller.
type AlphaChar = int32

// TrieChar is the compact internal code the double array transitions on.
// 0 is the terminator; 255 is reserved and never assigned.
type TrieChar = uint8

const (
	// MaxAlphabetSize is the largest number of distinct external
	// characters a single AlphaMap may hold (codes 1..254).
	MaxAlphabetSize = 254

	// Terminator is the internal code meaning "end of key".
	Terminator TrieChar = 0

	// Unused is the internal code the double array reserves as its
	// never-assigned transition marker.
	Unused TrieChar = 255

	magic uint32 = 0xD9FCD9FC
)

// ErrTooLarge is returned by AddRange when the merged set of ranges
// would need more than MaxAlphabetSize internal codes to represent.
var ErrTooLarge = errors.New("alphamap: alphabet exceeds maximum size of 254 characters")

// ErrBadMagic is returned by Load when the section header doesn't match
// the AlphaMap magic number.
var ErrBadMagic = errors.New("alphamap: bad section magic")

// arange is an inclusive, half-open-free range [start, end].
type arange struct {
	start, end AlphaChar
}

// AlphaMap holds an ordered, disjoint set of external character ranges
// and the derived internal<->external lookup tables.
//
// The zero value is an empty, usable AlphaMap.
type AlphaMap struct {
	ranges []arange // sorted, disjoint, merged

	// offsets[i] is the internal-code offset of ranges[i].start, i.e.
	// the number of characters covered by ranges[:i]. Precomputed in
	// rebuild() so CharToTrie's binary search stays O(log R).
	offsets []int

	// toExternal[tc-1] is the external character mapped to internal
	// code tc, for tc in [1, len(toExternal)].
	toExternal []AlphaChar
}

// New returns an empty AlphaMap.
func New() *AlphaMap {
	return &AlphaMap{}
}

// DefaultASCIIRange returns an AlphaMap covering printable ASCII,
// [0x20, 0x7E], the alphabet spec.md's scenarios default to.
func DefaultASCIIRange() (*AlphaMap, error) {
	am := New()
	if err := am.AddRange(0x20, 0x7E); err != nil {
		return nil, err
	}
	return am, nil
}

// NumChars reports the number of distinct external characters currently
// mapped (i.e. the usable internal alphabet size, excluding terminator
// and the reserved sentinel).
func (m *AlphaMap) NumChars() int {
	return len(m.toExternal)
}

// AddRange inserts [start, end] into the map, merging with any
// overlapping or adjacent existing ranges, and rebuilds the
// internal<->external lookup tables. start must be <= end.
func (m *AlphaMap) AddRange(start, end AlphaChar) error {
	if start > end {
		start, end = end, start
	}

	merged := make([]arange, 0, len(m.ranges)+1)
	merged = append(merged, m.ranges...)
	merged = append(merged, arange{start, end})
	sort.Slice(merged, func(i, j int) bool { return merged[i].start < merged[j].start })
	merged = coalesce(merged)

	total := 0
	for _, r := range merged {
		total += int(r.end-r.start) + 1
	}
	if total > MaxAlphabetSize {
		return ErrTooLarge
	}

	m.ranges = merged
	m.rebuild()
	return nil
}

func overlapsOrAdjacent(a, b arange) bool {
	return a.start <= b.end+1 && b.start <= a.end+1
}

func union(a, b arange) arange {
	s := a.start
	if b.start < s {
		s = b.start
	}
	e := a.end
	if b.end > e {
		e = b.end
	}
	return arange{s, e}
}

// coalesce merges overlapping or adjacent neighbors of a start-sorted
// range list into single ranges.
func coalesce(rs []arange) []arange {
	if len(rs) == 0 {
		return rs
	}
	out := make([]arange, 0, len(rs))
	cur := rs[0]
	for _, r := range rs[1:] {
		if overlapsOrAdjacent(cur, r) {
			cur = union(cur, r)
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

func (m *AlphaMap) rebuild() {
	m.toExternal = m.toExternal[:0]
	m.offsets = make([]int, len(m.ranges))
	off := 0
	for i, r := range m.ranges {
		m.offsets[i] = off
		for c := r.start; c <= r.end; c++ {
			m.toExternal = append(m.toExternal, c)
		}
		off += int(r.end-r.start) + 1
	}
}

// CharToTrie returns the internal code for external character c, and
// true if c is within the configured alphabet. c == 0 always maps to
// the terminator.
func (m *AlphaMap) CharToTrie(c AlphaChar) (TrieChar, bool) {
	if c == 0 {
		return Terminator, true
	}
	// Binary search over ranges; offsets[mid] gives the cumulative
	// internal code offset of ranges[mid] directly, so lookup is
	// O(log R) with no re-summation.
	lo, hi := 0, len(m.ranges)
	for lo < hi {
		mid := (lo + hi) / 2
		r := m.ranges[mid]
		if c < r.start {
			hi = mid
			continue
		}
		if c > r.end {
			lo = mid + 1
			continue
		}
		return TrieChar(m.offsets[mid] + int(c-r.start) + 1), true
	}
	return 0, false
}

// TrieToChar is the inverse of CharToTrie. tc == 0 returns external 0.
func (m *AlphaMap) TrieToChar(tc TrieChar) (AlphaChar, bool) {
	if tc == Terminator {
		return 0, true
	}
	idx := int(tc) - 1
	if idx < 0 || idx >= len(m.toExternal) {
		return 0, false
	}
	return m.toExternal[idx], true
}

// CharToTrieStr converts a sequence of external characters to internal
// codes, preserving a trailing terminator if present. Returns false if
// any non-terminator character is outside the alphabet.
func (m *AlphaMap) CharToTrieStr(s []AlphaChar) ([]TrieChar, bool) {
	out := make([]TrieChar, 0, len(s))
	for _, c := range s {
		tc, ok := m.CharToTrie(c)
		if !ok {
			return nil, false
		}
		out = append(out, tc)
	}
	return out, true
}

// TrieToCharStr is the inverse of CharToTrieStr.
func (m *AlphaMap) TrieToCharStr(s []TrieChar) ([]AlphaChar, bool) {
	out := make([]AlphaChar, 0, len(s))
	for _, tc := range s {
		c, ok := m.TrieToChar(tc)
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}

// Save writes this AlphaMap's on-disk section: magic, range count, then
// (start, end) pairs, all big-endian.
func (m *AlphaMap) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, magic); err != nil {
		return errors.Wrap(err, "alphamap: write magic")
	}
	if err := binary.Write(w, binary.BigEndian, int32(len(m.ranges))); err != nil {
		return errors.Wrap(err, "alphamap: write range count")
	}
	for i, r := range m.ranges {
		if err := binary.Write(w, binary.BigEndian, [2]int32{r.start, r.end}); err != nil {
			return errors.Wrapf(err, "alphamap: write range %d", i)
		}
	}
	return nil
}

// Load reads an AlphaMap section written by Save, replacing the
// receiver's contents on success. On any error the receiver is left
// unmodified.
func (m *AlphaMap) Load(r io.Reader) error {
	var gotMagic uint32
	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return errors.Wrap(err, "alphamap: read magic")
	}
	if gotMagic != magic {
		return ErrBadMagic
	}
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return errors.Wrap(err, "alphamap: read range count")
	}
	if n < 0 {
		return errors.Errorf("alphamap: negative range count %d", n)
	}
	ranges := make([]arange, n)
	for i := range ranges {
		var pair [2]int32
		if err := binary.Read(r, binary.BigEndian, &pair); err != nil {
			return errors.Wrapf(err, "alphamap: read range %d", i)
		}
		ranges[i] = arange{pair[0], pair[1]}
	}
	m.ranges = ranges
	m.rebuild()
	return nil
}
