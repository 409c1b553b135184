// Package doublearray implements the trie's primary representation: a
// pair of parallel signed 32-bit arrays (base, check) encoding state
// transitions with O(1) lookup per character, a doubly linked free-cell
// list for reuse, and the relocation machinery that resolves transition
// collisions by moving a state's children to a fresh base offset.
//
// This is the algorithmic core the rest of the trie is built around;
// see spec.md §4.3 for the invariants this package maintains.
package doublearray

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	headCell   int32 = 0 // free-list head / ring anchor
	rootCell   int32 = 1 // root state, never freed
	anchorCell int32 = 2 // initial relocation-search hint

	// TrieIndexMax bounds the largest state id the array may grow to.
	TrieIndexMax int32 = 0x7FFFFFFF - 1

	defaultInitialCells int32 = 256

	magic uint32 = 0xDAFCDAFC
)

// ErrOverflow is returned when a state id would need to exceed
// TrieIndexMax to satisfy an insertion or relocation.
var ErrOverflow = errors.New("doublearray: state id overflow")

// ErrBadMagic is returned by Load when the section header doesn't
// match the DoubleArray magic number.
var ErrBadMagic = errors.New("doublearray: bad section magic")

// DoubleArray is the trie's state transition table.
type DoubleArray struct {
	base, check []int32
	logger      *zap.Logger
	searchHint  int32
}

type options struct {
	logger       *zap.Logger
	initialCells int32
}

// Option configures a new DoubleArray.
type Option func(*options)

// WithLogger attaches a structured logger for growth/relocation events.
// The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInitialCells sets the array's initial capacity.
func WithInitialCells(n int32) Option {
	return func(o *options) { o.initialCells = n }
}

// New returns a DoubleArray containing only the root state.
func New(opts ...Option) *DoubleArray {
	cfg := options{logger: zap.NewNop(), initialCells: defaultInitialCells}
	for _, o := range opts {
		o(&cfg)
	}
	n := cfg.initialCells
	if n < rootCell+2 {
		n = rootCell + 2
	}

	d := &DoubleArray{
		base:       make([]int32, n),
		check:      make([]int32, n),
		logger:     cfg.logger,
		searchHint: anchorCell,
	}
	d.check[rootCell] = rootCell // allocated, self-referential: no real parent

	ring := make([]int32, 0, n-1)
	ring = append(ring, headCell)
	for i := anchorCell; i < n; i++ {
		ring = append(ring, i)
	}
	d.linkRing(ring)
	return d
}

// Root returns the root state id.
func (d *DoubleArray) Root() int32 { return rootCell }

// NumCells reports the current array length.
func (d *DoubleArray) NumCells() int32 { return int32(len(d.base)) }

// linkRing arranges cells into a circular doubly linked free list in
// the given order, encoding next at -check[f] and prev at -base[f].
func (d *DoubleArray) linkRing(cells []int32) {
	n := len(cells)
	for i, c := range cells {
		next := cells[(i+1)%n]
		prev := cells[(i-1+n)%n]
		d.check[c] = -next
		d.base[c] = -prev
	}
}

func (d *DoubleArray) isFree(f int32) bool { return d.check[f] <= 0 }

// allocCell removes f from the free ring. Caller must set check[f] to
// the owning parent afterward.
func (d *DoubleArray) allocCell(f int32) {
	prev := -d.base[f]
	next := -d.check[f]
	d.check[prev] = -next
	d.base[next] = -prev
	d.base[f] = 0
	d.check[f] = 0
}

// freeCell inserts f into the free ring immediately after the head.
func (d *DoubleArray) freeCell(f int32) {
	next := -d.check[headCell]
	d.check[headCell] = -f
	d.base[f] = -headCell
	d.check[f] = -next
	d.base[next] = -f
}

// FreeCell releases state f back to the free list. It is exported for
// the trie façade's delete path, which frees a tail-link cell directly
// once its tail block has been released.
func (d *DoubleArray) FreeCell(f int32) { d.freeCell(f) }

func (d *DoubleArray) ringNext(f int32) int32 { return -d.check[f] }

// Parent returns the parent state of s (the value of check[s]).
func (d *DoubleArray) Parent(s int32) int32 { return d.check[s] }

// Base returns the raw base value of state s.
func (d *DoubleArray) Base(s int32) int32 { return d.base[s] }

// IsTailLink reports whether s redirects into the tail pool.
func (d *DoubleArray) IsTailLink(s int32) bool { return d.base[s] < 0 }

// TailIndex returns the tail block index s links to. Only valid when
// IsTailLink(s) is true.
func (d *DoubleArray) TailIndex(s int32) int32 { return -d.base[s] }

// SetTailIndex marks s as redirecting into tail block idx (idx >= 1).
func (d *DoubleArray) SetTailIndex(s int32, idx int32) { d.base[s] = -idx }

// ClearTailLink resets s's base to 0, converting a tail-linked state back
// into a fresh, childless branching state. Used by the separate/tail-split
// path when a stored suffix must be promoted back into double-array states.
func (d *DoubleArray) ClearTailLink(s int32) { d.base[s] = 0 }

// Walk returns the state reached from s on char c, and whether that
// transition currently exists.
func (d *DoubleArray) Walk(s int32, c byte) (int32, bool) {
	if d.base[s] <= 0 {
		return 0, false
	}
	t := d.base[s] + int32(c)
	if t < 0 || t >= int32(len(d.check)) {
		return 0, false
	}
	if d.check[t] != s {
		return 0, false
	}
	return t, true
}

// ChildChars returns, in ascending order, the chars s currently has
// outgoing transitions on.
func (d *DoubleArray) ChildChars(s int32) []byte {
	if d.base[s] <= 0 {
		return nil
	}
	var out []byte
	for c := 0; c <= 255; c++ {
		t := d.base[s] + int32(c)
		if t < 0 || t >= int32(len(d.check)) {
			continue
		}
		if d.check[t] == s {
			out = append(out, byte(c))
		}
	}
	return out
}

// HasChildren reports whether s has any outgoing transition.
func (d *DoubleArray) HasChildren(s int32) bool {
	if d.base[s] <= 0 {
		return false
	}
	for c := 0; c <= 255; c++ {
		t := d.base[s] + int32(c)
		if t < 0 || t >= int32(len(d.check)) {
			continue
		}
		if d.check[t] == s {
			return true
		}
	}
	return false
}

// InsertBranch ensures a transition from s on c exists, allocating (and
// relocating colliding states, if necessary) as needed, and returns the
// resulting state.
func (d *DoubleArray) InsertBranch(s int32, c byte) (int32, error) {
	if t, ok := d.Walk(s, c); ok {
		return t, nil
	}

	if d.base[s] == 0 {
		b, err := d.findFreeBase([]byte{c})
		if err != nil {
			return 0, err
		}
		d.base[s] = b
	}

	t := d.base[s] + int32(c)
	if err := d.ensureCapacity(t + 1); err != nil {
		return 0, err
	}
	if d.isFree(t) {
		d.allocCell(t)
		d.check[t] = s
		return t, nil
	}
	if d.check[t] == s {
		return t, nil
	}

	// Collision: t is occupied by some other state's child. Relocate
	// whichever of s or that owner has fewer children to move — unless
	// owner is s's own parent, in which case relocating owner would
	// migrate s's own cell (s is one of owner's children) and leave the
	// caller holding a stale, freed id. Relocating s itself always
	// resolves the collision without ever moving s's own cell, so that
	// side is forced whenever owner is s's parent.
	owner := d.check[t]
	sChildren := d.ChildChars(s)
	ownerChildren := d.ChildChars(owner)
	if owner == d.check[s] || len(sChildren) <= len(ownerChildren) {
		want := append(append([]byte(nil), sChildren...), c)
		if err := d.relocateBase(s, want); err != nil {
			return 0, err
		}
	} else {
		if err := d.relocateBase(owner, ownerChildren); err != nil {
			return 0, err
		}
	}
	return d.InsertBranch(s, c)
}

// relocateBase finds a new base for s that keeps every char in
// desiredChars free, migrates s's existing children there, and updates
// s.base. desiredChars must be a superset of s's actual current
// children (it may additionally include a char not yet inserted, to
// reserve room for it).
func (d *DoubleArray) relocateBase(s int32, desiredChars []byte) error {
	newBase, err := d.findFreeBase(desiredChars)
	if err != nil {
		return err
	}
	oldBase := d.base[s]
	existing := d.ChildChars(s)

	for _, ch := range existing {
		oldCell := oldBase + int32(ch)
		newCell := newBase + int32(ch)
		if err := d.ensureCapacity(newCell + 1); err != nil {
			return err
		}
		d.allocCell(newCell)
		d.check[newCell] = s
		d.base[newCell] = d.base[oldCell]
		if d.base[oldCell] > 0 {
			for _, gc := range d.ChildChars(oldCell) {
				d.check[d.base[oldCell]+int32(gc)] = newCell
			}
		}
		d.freeCell(oldCell)
	}
	d.base[s] = newBase

	d.logger.Debug("relocated base",
		zap.Int32("state", s),
		zap.Int32("old_base", oldBase),
		zap.Int32("new_base", newBase),
		zap.Int("children", len(existing)),
	)
	return nil
}

// findFreeBase returns a base b >= 2 such that b+ch is free (or lies
// past the current end) for every ch in chars, growing the array to
// cover it. Candidates are taken from the free list starting after the
// search hint, so b is the first fit found, not necessarily the
// smallest. b is never 1: check[root] holds root's own id, so a root
// base of 1 would make cell 1 read as root's child on the terminator.
func (d *DoubleArray) findFreeBase(chars []byte) (int32, error) {
	c0 := chars[0]
	for _, ch := range chars[1:] {
		if ch < c0 {
			c0 = ch
		}
	}
	cMax := chars[0]
	for _, ch := range chars[1:] {
		if ch > cMax {
			cMax = ch
		}
	}

	hint := d.searchHint
	if hint >= int32(len(d.check)) || !d.isFree(hint) {
		hint = headCell
	}

	f := d.ringNext(hint)
	maxTries := len(d.check) + 8
	for tries := 0; f != headCell && tries < maxTries; tries++ {
		b := f - int32(c0)
		if b > rootCell && d.allFreeOrGrowable(b, chars) {
			if err := d.ensureCapacity(b + int32(cMax) + 1); err != nil {
				return 0, err
			}
			d.searchHint = f
			return b, nil
		}
		f = d.ringNext(f)
	}

	// Nothing in the current free list works; place beyond current
	// length and grow to cover it.
	b := int32(len(d.base)) - int32(c0)
	if b <= rootCell {
		b = rootCell + 1
	}
	if err := d.ensureCapacity(b + int32(cMax) + 1); err != nil {
		return 0, err
	}
	return b, nil
}

func (d *DoubleArray) allFreeOrGrowable(b int32, chars []byte) bool {
	for _, ch := range chars {
		cell := b + int32(ch)
		if cell < int32(len(d.check)) && !d.isFree(cell) {
			return false
		}
	}
	return true
}

// ensureCapacity grows the array, by doubling, until it can index n-1.
func (d *DoubleArray) ensureCapacity(n int32) error {
	if n <= int32(len(d.base)) {
		return nil
	}
	if n > TrieIndexMax {
		return ErrOverflow
	}
	newLen := int32(len(d.base))
	for newLen < n {
		if newLen > TrieIndexMax/2 {
			newLen = TrieIndexMax
			break
		}
		newLen *= 2
	}
	if newLen > TrieIndexMax {
		newLen = TrieIndexMax
	}
	d.grow(newLen)
	return nil
}

func (d *DoubleArray) grow(newLen int32) {
	oldLen := int32(len(d.base))
	newBase := make([]int32, newLen)
	newCheck := make([]int32, newLen)
	copy(newBase, d.base)
	copy(newCheck, d.check)
	d.base, d.check = newBase, newCheck
	for i := oldLen; i < newLen; i++ {
		d.freeCell(i)
	}
	d.logger.Debug("grown", zap.Int32("old_len", oldLen), zap.Int32("new_len", newLen))
}

// PruneUpTo frees s, and then each ancestor of s up to but not
// including root, as long as each successively has no remaining
// children. Root is never freed.
func (d *DoubleArray) PruneUpTo(root, s int32) {
	for s != root {
		if d.HasChildren(s) {
			return
		}
		parent := d.check[s]
		d.freeCell(s)
		s = parent
	}
}

// Save writes this DoubleArray's on-disk section. Per the format, cell
// 0 (the free-list head) is not itself serialized: the header's
// num_cells field takes its place, and only cells [1, num_cells) are
// written.
func (d *DoubleArray) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, magic); err != nil {
		return errors.Wrap(err, "doublearray: write magic")
	}
	numCells := int32(len(d.base))
	if err := binary.Write(w, binary.BigEndian, numCells); err != nil {
		return errors.Wrap(err, "doublearray: write num_cells")
	}
	for i := int32(1); i < numCells; i++ {
		pair := [2]int32{d.base[i], d.check[i]}
		if err := binary.Write(w, binary.BigEndian, pair); err != nil {
			return errors.Wrapf(err, "doublearray: write cell %d", i)
		}
	}
	return nil
}

// Load reads a DoubleArray section written by Save, reconstructing
// cell 0's free-list links by scanning for whichever free cells point
// at it, and replaces the receiver's contents on success. On any error
// the receiver is left unmodified.
func (d *DoubleArray) Load(r io.Reader) error {
	var gotMagic uint32
	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return errors.Wrap(err, "doublearray: read magic")
	}
	if gotMagic != magic {
		return ErrBadMagic
	}
	var numCells int32
	if err := binary.Read(r, binary.BigEndian, &numCells); err != nil {
		return errors.Wrap(err, "doublearray: read num_cells")
	}
	if numCells < rootCell+1 {
		return errors.Errorf("doublearray: invalid num_cells %d", numCells)
	}

	base := make([]int32, numCells)
	check := make([]int32, numCells)
	for i := int32(1); i < numCells; i++ {
		var pair [2]int32
		if err := binary.Read(r, binary.BigEndian, &pair); err != nil {
			return errors.Wrapf(err, "doublearray: read cell %d", i)
		}
		base[i], check[i] = pair[0], pair[1]
	}

	d.base, d.check = base, check
	d.reconstructHead()
	d.searchHint = anchorCell
	return nil
}

// reconstructHead recovers cell 0's free-list links (not themselves
// serialized) by scanning for the free cells whose prev/next point at
// the head.
func (d *DoubleArray) reconstructHead() {
	d.base[headCell] = 0
	d.check[headCell] = 0
	for i := int32(1); i < int32(len(d.check)); i++ {
		if d.check[i] > 0 {
			continue // allocated
		}
		if d.base[i] == 0 {
			d.check[headCell] = -i // i's prev is head => head's next is i
		}
		if d.check[i] == 0 {
			d.base[headCell] = -i // i's next is head => head's prev is i
		}
	}
}
