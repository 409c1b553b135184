package datrie

import "github.com/mnml/datrie/alphamap"

// TrieState is a cursor into the trie: either a double-array state, or
// (once a terminator or tail-linked transition has been taken) a
// cursor position within a tail block's suffix. Per spec.md §4.4, a
// TrieState is a value carrying (index, suffix_cursor, is_suffix).
//
// Any mutation to the owning Trie invalidates every TrieState derived
// from it beforehand; continuing to use one is undefined behavior
// (spec.md §5). TrieState is a plain value and is safe to copy by
// assignment — Clone and Copy below exist for API parity with the
// spec's state_clone/state_copy naming and do nothing beyond that.
type TrieState struct {
	t        *Trie
	index    int32 // DA state id, or tail block index when isSuffix
	cursor   int   // suffix cursor, meaningful only when isSuffix
	isSuffix bool
}

// Root returns a TrieState positioned at the trie's root.
func (t *Trie) Root() TrieState {
	return TrieState{t: t, index: t.da.Root()}
}

// Clone returns an independent copy of s. TrieState holds no mutable
// shared state, so this is just s itself.
func (s TrieState) Clone() TrieState { return s }

// Copy is an alias for Clone, matching spec.md's state_copy naming.
func (s TrieState) Copy() TrieState { return s }

// IsSuffix reports whether s has transitioned into the tail pool.
func (s TrieState) IsSuffix() bool { return s.isSuffix }

// IsTerminal reports whether s is a suffix state whose cursor sits
// exactly at the end of its tail block's suffix. A double-array state
// is never terminal, even where a stored key ends; walking the
// terminator from it yields the terminal suffix state.
func (s TrieState) IsTerminal() bool {
	if !s.isSuffix {
		return false
	}
	return s.cursor == len(s.t.tl.GetSuffix(s.index))
}

// Data returns the data value associated with s, if s IsTerminal.
func (s TrieState) Data() (int32, bool) {
	if !s.IsTerminal() {
		return 0, false
	}
	return s.t.tl.GetData(s.index), true
}

// StateWalk attempts to transition s on external character c, applying
// the trie's alphabet mapping first. It returns the new state and
// whether the transition exists; s itself is never mutated.
func (t *Trie) StateWalk(s TrieState, c AlphaChar) (TrieState, bool) {
	tc, ok := t.alpha.CharToTrie(c)
	if !ok {
		return TrieState{}, false
	}
	return t.walkInternal(s, tc)
}

// walkInternal is StateWalk without the external-alphabet translation,
// used internally (e.g. by Iterator) once a char is already in its
// internal trie-char form.
func (t *Trie) walkInternal(s TrieState, tc byte) (TrieState, bool) {
	if s.isSuffix {
		newPos, ok := t.tl.WalkChar(s.index, s.cursor, tc)
		if !ok {
			return TrieState{}, false
		}
		return TrieState{t: t, index: s.index, cursor: newPos, isSuffix: true}, true
	}
	next, ok := t.da.Walk(s.index, tc)
	if !ok {
		return TrieState{}, false
	}
	if t.da.IsTailLink(next) {
		return TrieState{t: t, index: t.da.TailIndex(next), isSuffix: true}, true
	}
	return TrieState{t: t, index: next}, true
}

// IsWalkable reports whether s has an outgoing transition on c.
func (s TrieState) IsWalkable(c AlphaChar) bool {
	_, ok := s.t.StateWalk(s, c)
	return ok
}

// WalkableChars returns, in ascending alphabet-internal order, the
// external characters s currently has an outgoing transition on. A
// suffix state has at most one (the tail is non-branching by
// construction) and none once IsTerminal.
func (s TrieState) WalkableChars() []AlphaChar {
	if s.isSuffix {
		suf := s.t.tl.GetSuffix(s.index)
		if s.cursor >= len(suf) {
			// At or past the terminal: IsTerminal (cursor == len(suf)) has
			// only the terminator transition left, which yields no external
			// character; cursor > len(suf) is past it entirely. Either way
			// there is no further character to walk on.
			return nil
		}
		ec, ok := s.t.alpha.TrieToChar(suf[s.cursor])
		if !ok {
			return nil
		}
		return []AlphaChar{ec}
	}
	children := s.t.da.ChildChars(s.index)
	out := make([]AlphaChar, 0, len(children))
	for _, tc := range children {
		if tc == alphamap.Terminator {
			continue // the terminator transition yields no external char
		}
		if ec, ok := s.t.alpha.TrieToChar(tc); ok {
			out = append(out, ec)
		}
	}
	return out
}
