// Package datrie implements a persistent double-array trie: an
// in-memory and on-disk data structure mapping variable-length keys
// over a user-defined alphabet to a fixed-size data value, supporting
// exact lookup, prefix enumeration, and incremental mutation.
//
// It composes three subsystems, each also usable on its own:
// alphamap (external<->internal character mapping), doublearray (the
// state transition table), and tail (the non-branching suffix pool).
package datrie

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mnml/datrie/alphamap"
	"github.com/mnml/datrie/doublearray"
	"github.com/mnml/datrie/tail"
)

// AlphaChar is an external character code, as supplied by the caller.
type AlphaChar = alphamap.AlphaChar

// DataError is the sentinel data value meaning "absent", reserved on
// disk and in the API rather than lifted into an optional type (see
// spec.md §9's discussion of this tradeoff).
const DataError = tail.DataError

var (
	// ErrNotFound is returned by Retrieve/Delete when the key is absent.
	ErrNotFound = errors.New("datrie: key not found")
	// ErrExists is returned by Store when overwrite is false and the
	// key is already present.
	ErrExists = errors.New("datrie: key already exists")
	// ErrNoChar is returned when a key contains a character outside
	// the trie's configured alphabet.
	ErrNoChar = errors.New("datrie: character not in alphabet")
)

// Trie composes an AlphaMap, a DoubleArray, and a Tail pool into a
// store/retrieve/delete/walk/enumerate key-value structure.
type Trie struct {
	alpha  *alphamap.AlphaMap
	da     *doublearray.DoubleArray
	tl     *tail.Tail
	logger *zap.Logger
	dirty  bool
}

type options struct {
	logger       *zap.Logger
	initialCells int32
}

// Option configures a new Trie.
type Option func(*options)

// WithLogger attaches a structured logger used for relocation, growth
// and tail-split diagnostics. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInitialCells sets the double array's initial capacity.
func WithInitialCells(n int32) Option {
	return func(o *options) { o.initialCells = n }
}

// New returns an empty Trie over the given alphabet. A nil alphabet
// starts out empty (every store/retrieve will miss with ErrNoChar
// until ranges are added via Alphabet().AddRange).
func New(alpha *alphamap.AlphaMap, opts ...Option) *Trie {
	cfg := options{logger: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}
	if alpha == nil {
		alpha = alphamap.New()
	}
	daOpts := []doublearray.Option{doublearray.WithLogger(cfg.logger)}
	if cfg.initialCells > 0 {
		daOpts = append(daOpts, doublearray.WithInitialCells(cfg.initialCells))
	}
	return &Trie{
		alpha:  alpha,
		da:     doublearray.New(daOpts...),
		tl:     tail.New(),
		logger: cfg.logger,
	}
}

// IsDirty reports whether the trie has been mutated since creation or
// the last successful Load.
func (t *Trie) IsDirty() bool { return t.dirty }

// Alphabet returns the trie's alphabet map, for inspection or further
// AddRange calls before any keys are stored.
func (t *Trie) Alphabet() *alphamap.AlphaMap { return t.alpha }

// Walk is a convenience one-shot walk of key from root, composing
// StateWalk over each character. It returns ok=false (without a partial
// state) as soon as any character is outside the alphabet or the trie
// has no matching transition.
func (t *Trie) Walk(key []AlphaChar) (TrieState, bool) {
	s := t.Root()
	for _, c := range key {
		next, ok := t.StateWalk(s, c)
		if !ok {
			return TrieState{}, false
		}
		s = next
	}
	return s, true
}

// Store inserts key with the given data. If the key already exists and
// overwrite is false, Store returns ErrExists and leaves the trie
// unchanged. A key containing a character outside the alphabet returns
// ErrNoChar without mutating the trie.
func (t *Trie) Store(key []AlphaChar, data int32, overwrite bool) error {
	internal, ok := t.alpha.CharToTrieStr(key)
	if !ok {
		return ErrNoChar
	}

	s := t.da.Root()
	for i := 0; i < len(internal); i++ {
		c := internal[i]
		next, ok := t.da.Walk(s, c)
		if !ok {
			return t.branchAndStore(s, internal[i+1:], c, data)
		}
		if t.da.IsTailLink(next) {
			return t.mergeIntoTail(next, internal[i+1:], data, overwrite)
		}
		s = next
	}

	next, ok := t.da.Walk(s, alphamap.Terminator)
	if !ok {
		return t.branchAndStore(s, nil, alphamap.Terminator, data)
	}
	if !t.da.IsTailLink(next) {
		return errors.Errorf("datrie: corrupt trie: terminator transition at state %d is not a tail link", next)
	}
	tailIdx := t.da.TailIndex(next)
	if len(t.tl.GetSuffix(tailIdx)) != 0 {
		return errors.Errorf("datrie: corrupt trie: terminal tail block %d has non-empty suffix", tailIdx)
	}
	if !overwrite {
		return ErrExists
	}
	t.tl.SetData(tailIdx, data)
	t.dirty = true
	return nil
}

// branchAndStore allocates one new double-array transition from s on
// branchChar, and stores the remainder of the key (rest) as a fresh
// tail block. This is the common "new, non-conflicting key" path: the
// new key's non-branching trailing portion always lives entirely in
// the tail, never as a fresh chain of DA states.
func (t *Trie) branchAndStore(s int32, rest []byte, branchChar byte, data int32) error {
	ns, err := t.da.InsertBranch(s, branchChar)
	if err != nil {
		return errors.Wrap(err, "datrie: store")
	}
	tailIdx := t.tl.AddSuffix(rest)
	t.tl.SetData(tailIdx, data)
	t.da.SetTailIndex(ns, tailIdx)
	t.dirty = true
	return nil
}

// mergeIntoTail handles storing a key that diverges from the trie
// somewhere inside an existing tail-linked key's suffix: an exact
// match (overwrite semantics), or a split that promotes the shared
// prefix back into the double array (spec.md §4.3.6).
func (t *Trie) mergeIntoTail(linkState int32, rest []byte, data int32, overwrite bool) error {
	tailIdx := t.da.TailIndex(linkState)
	oldSuf := t.tl.GetSuffix(tailIdx)

	l := 0
	for l < len(rest) && l < len(oldSuf) && rest[l] == oldSuf[l] {
		l++
	}

	if l == len(rest) && l == len(oldSuf) {
		if !overwrite {
			return ErrExists
		}
		t.tl.SetData(tailIdx, data)
		t.dirty = true
		return nil
	}

	return t.separate(linkState, tailIdx, oldSuf, rest, l, data)
}

// separate splits a tail block at the point two keys diverge, per
// spec.md §4.3.6: the common prefix oldSuf[:l] (== rest[:l]) is
// promoted into a chain of new double-array states grown out of
// linkState (whose tail link is cleared first so it can branch), and
// the two divergent continuations each get their own tail block — the
// old block is reused in place to avoid an extra allocation.
func (t *Trie) separate(linkState, oldTailIdx int32, oldSuf, rest []byte, l int, newData int32) error {
	oldData := t.tl.GetData(oldTailIdx)

	t.da.ClearTailLink(linkState)
	cur := linkState
	for k := 0; k < l; k++ {
		next, err := t.da.InsertBranch(cur, oldSuf[k])
		if err != nil {
			return errors.Wrap(err, "datrie: separate")
		}
		cur = next
	}

	oldC, oldRest := divergentStep(oldSuf, l)
	newC, newRest := divergentStep(rest, l)

	oldState, err := t.da.InsertBranch(cur, oldC)
	if err != nil {
		return errors.Wrap(err, "datrie: separate")
	}
	t.tl.SetSuffix(oldTailIdx, oldRest)
	t.tl.SetData(oldTailIdx, oldData)
	t.da.SetTailIndex(oldState, oldTailIdx)

	newState, err := t.da.InsertBranch(cur, newC)
	if err != nil {
		return errors.Wrap(err, "datrie: separate")
	}
	newTailIdx := t.tl.AddSuffix(newRest)
	t.tl.SetData(newTailIdx, newData)
	t.da.SetTailIndex(newState, newTailIdx)

	t.dirty = true
	t.logger.Debug("split tail block", zap.Int32("old_tail", oldTailIdx), zap.Int32("new_tail", newTailIdx), zap.Int("common_prefix", l))
	return nil
}

// divergentStep returns the char a suffix continues on past position l
// (the terminator if the suffix ends exactly at l), and whatever bytes
// remain after that char.
func divergentStep(suf []byte, l int) (c byte, rest []byte) {
	if l < len(suf) {
		return suf[l], suf[l+1:]
	}
	return alphamap.Terminator, nil
}

// findTerminal walks internal (already alphabet-translated) key chars
// from root and returns the double-array state whose tail link holds
// exactly this key, or ErrNotFound.
func (t *Trie) findTerminal(internal []byte) (int32, error) {
	s := t.da.Root()
	for i := 0; i < len(internal); i++ {
		c := internal[i]
		next, ok := t.da.Walk(s, c)
		if !ok {
			return 0, ErrNotFound
		}
		if t.da.IsTailLink(next) {
			rest := internal[i+1:]
			if !bytes.Equal(rest, t.tl.GetSuffix(t.da.TailIndex(next))) {
				return 0, ErrNotFound
			}
			return next, nil
		}
		s = next
	}
	next, ok := t.da.Walk(s, alphamap.Terminator)
	if !ok {
		return 0, ErrNotFound
	}
	if !t.da.IsTailLink(next) {
		return 0, errors.Errorf("datrie: corrupt trie: state %d", next)
	}
	if len(t.tl.GetSuffix(t.da.TailIndex(next))) != 0 {
		return 0, ErrNotFound
	}
	return next, nil
}

// Retrieve returns the data stored for key, or ErrNotFound if absent.
// A key containing a character outside the alphabet returns ErrNoChar.
func (t *Trie) Retrieve(key []AlphaChar) (int32, error) {
	internal, ok := t.alpha.CharToTrieStr(key)
	if !ok {
		return 0, ErrNoChar
	}
	cell, err := t.findTerminal(internal)
	if err != nil {
		return 0, err
	}
	return t.tl.GetData(t.da.TailIndex(cell)), nil
}

// Delete removes key. It is idempotent: deleting an absent key returns
// ErrNotFound with no side effects.
func (t *Trie) Delete(key []AlphaChar) error {
	internal, ok := t.alpha.CharToTrieStr(key)
	if !ok {
		return ErrNoChar
	}
	cell, err := t.findTerminal(internal)
	if err != nil {
		return err
	}
	tailIdx := t.da.TailIndex(cell)
	t.tl.FreeBlock(tailIdx)
	parent := t.da.Parent(cell)
	t.da.FreeCell(cell)
	t.da.PruneUpTo(t.da.Root(), parent)
	t.dirty = true
	return nil
}

// StoreString, RetrieveString and DeleteString adapt Store/Retrieve/
// Delete to plain Go strings, for the common case of a Unicode
// code-point alphabet rather than a caller-defined numeric one.
func (t *Trie) StoreString(key string, data int32, overwrite bool) error {
	return t.Store(stringToAlpha(key), data, overwrite)
}

func (t *Trie) RetrieveString(key string) (int32, error) {
	return t.Retrieve(stringToAlpha(key))
}

func (t *Trie) DeleteString(key string) error {
	return t.Delete(stringToAlpha(key))
}

func stringToAlpha(s string) []AlphaChar {
	rs := []rune(s)
	out := make([]AlphaChar, len(rs))
	for i, r := range rs {
		out[i] = AlphaChar(r)
	}
	return out
}

// Enumerate calls fn for every key stored at or below state s, in
// alphabet-lexicographic order, stopping early if fn returns an error.
// It is a non-lazy convenience wrapper over Iterator.
func (t *Trie) Enumerate(s TrieState, fn func(key []AlphaChar, data int32) error) error {
	it := t.Iterator(s)
	for {
		key, data, ok := it.Next()
		if !ok {
			return nil
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
}

// Save writes the trie's three on-disk sections (alphamap, double
// array, tail) in that order, per spec.md §6.1.
func (t *Trie) Save(w io.Writer) error {
	if err := t.alpha.Save(w); err != nil {
		return errors.Wrap(err, "datrie: save alphamap")
	}
	if err := t.da.Save(w); err != nil {
		return errors.Wrap(err, "datrie: save doublearray")
	}
	if err := t.tl.Save(w); err != nil {
		return errors.Wrap(err, "datrie: save tail")
	}
	return nil
}

// Load reads the three sections written by Save and replaces the
// receiver's contents. On any error the receiver is left exactly as it
// was before the call.
func (t *Trie) Load(r io.Reader) error {
	newAlpha := alphamap.New()
	if err := newAlpha.Load(r); err != nil {
		return errors.Wrap(err, "datrie: load alphamap")
	}
	newDA := doublearray.New()
	if err := newDA.Load(r); err != nil {
		return errors.Wrap(err, "datrie: load doublearray")
	}
	newTail := tail.New()
	if err := newTail.Load(r); err != nil {
		return errors.Wrap(err, "datrie: load tail")
	}
	t.alpha, t.da, t.tl = newAlpha, newDA, newTail
	t.dirty = false
	return nil
}
