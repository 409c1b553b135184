package datrie

import "github.com/mnml/datrie/alphamap"

// Iterator performs a lazy, depth-first, alphabet-lexicographic
// enumeration of every key stored at or below a given TrieState. Keys
// are yielded relative to that state: the characters already walked to
// reach it are not included. Entering a tail-linked state yields the
// key (with the remaining suffix appended) and data directly, since a
// tail block is never itself branching.
//
// An Iterator does not observe mutations made to the owning Trie after
// it was created; continuing to use one after a mutation is undefined
// behavior (spec.md §5).
type Iterator struct {
	t     *Trie
	stack []frame
}

type frame struct {
	state    TrieState
	prefix   []AlphaChar
	children []byte // internal trie chars, ascending; nil for suffix states
	next     int    // index into children not yet explored
}

// Iterator returns a new Iterator enumerating keys at or below s.
func (t *Trie) Iterator(s TrieState) *Iterator {
	it := &Iterator{t: t}
	it.push(s, nil)
	return it
}

func (it *Iterator) push(s TrieState, prefix []AlphaChar) {
	f := frame{state: s, prefix: prefix}
	if !s.isSuffix {
		f.children = it.t.da.ChildChars(s.index)
	}
	it.stack = append(it.stack, f)
}

// Next returns the next (key, data) pair in order, or ok=false once
// enumeration is exhausted.
func (it *Iterator) Next() (key []AlphaChar, data int32, ok bool) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]

		if top.state.isSuffix {
			it.stack = it.stack[:len(it.stack)-1]
			suf := it.t.tl.GetSuffix(top.state.index)
			cursor := top.state.cursor
			if cursor > len(suf) {
				cursor = len(suf)
			}
			extSuf, sufOK := it.t.alpha.TrieToCharStr(suf[cursor:])
			if !sufOK {
				continue // corrupt/unmappable suffix; skip defensively
			}
			full := make([]AlphaChar, 0, len(top.prefix)+len(extSuf))
			full = append(full, top.prefix...)
			full = append(full, extSuf...)
			return full, it.t.tl.GetData(top.state.index), true
		}

		if top.next >= len(top.children) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		c := top.children[top.next]
		top.next++

		nextState, ok := it.t.walkInternal(top.state, c)
		if !ok {
			continue
		}
		nextPrefix := top.prefix
		if c != alphamap.Terminator {
			ec, ok := it.t.alpha.TrieToChar(c)
			if !ok {
				continue
			}
			grown := make([]AlphaChar, len(top.prefix)+1)
			copy(grown, top.prefix)
			grown[len(top.prefix)] = ec
			nextPrefix = grown
		}
		it.push(nextState, nextPrefix)
	}
	return nil, 0, false
}
