// Package tail implements the suffix pool: the unique, non-branching
// trailing portion of each stored key, plus its associated data value,
// indexed from the double array via negative base pointers.
package tail

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// DataError is the sentinel data value meaning "absent" — it collides
// with a legitimate -1 data value by design (see spec §9's discussion
// of the tradeoff); it is preserved here for on-disk compatibility with
// the reference format rather than lifting data into an optional type.
const DataError int32 = -1

const magic uint32 = 0xDFFCDFFC

// ErrBadMagic is returned by Load when the section header doesn't
// match the Tail magic number.
var ErrBadMagic = errors.New("tail: bad section magic")

// block is one suffix + data record. Free blocks chain through
// nextFree from firstFree; their data and suffix are meaningless.
type block struct {
	nextFree int32
	data     int32
	suffix   []byte
}

// Tail is the suffix pool. Create one with New, which installs block 0
// as the permanent head sentinel of the free list; the zero value has
// no block 0.
type Tail struct {
	blocks    []block
	firstFree int32 // 0 means "no free blocks"
}

// New returns an empty Tail pool.
func New() *Tail {
	return &Tail{blocks: []block{{}}} // block 0: head sentinel
}

// NumBlocks reports the total number of blocks, including block 0 and
// any free blocks still linked for reuse.
func (t *Tail) NumBlocks() int {
	return len(t.blocks)
}

// AddSuffix allocates a block (reusing a freed one if available),
// stores suffix, sets data to DataError, and returns the new block's
// index (always >= 1).
func (t *Tail) AddSuffix(suffix []byte) int32 {
	idx := t.allocBlock()
	t.blocks[idx].suffix = append([]byte(nil), suffix...)
	t.blocks[idx].data = DataError
	return idx
}

func (t *Tail) allocBlock() int32 {
	if t.firstFree != 0 {
		idx := t.firstFree
		t.firstFree = t.blocks[idx].nextFree
		t.blocks[idx].nextFree = 0
		return idx
	}
	t.blocks = append(t.blocks, block{})
	return int32(len(t.blocks) - 1)
}

// GetSuffix returns the suffix bytes stored at block i. i must be a
// live (non-free) block index returned by AddSuffix.
func (t *Tail) GetSuffix(i int32) []byte {
	return t.blocks[i].suffix
}

// SetSuffix replaces the suffix bytes stored at block i.
func (t *Tail) SetSuffix(i int32, suffix []byte) {
	t.blocks[i].suffix = append([]byte(nil), suffix...)
}

// GetData returns the data value stored at block i, or DataError if
// none was ever set.
func (t *Tail) GetData(i int32) int32 {
	return t.blocks[i].data
}

// SetData stores a data value at block i.
func (t *Tail) SetData(i int32, v int32) {
	t.blocks[i].data = v
}

// FreeBlock pushes block i onto the free list and clears its suffix.
// i must not already be free.
func (t *Tail) FreeBlock(i int32) {
	t.blocks[i].suffix = nil
	t.blocks[i].data = DataError
	t.blocks[i].nextFree = t.firstFree
	t.firstFree = i
}

// WalkChar advances a position cursor through the suffix stored at
// block i, consuming one internal char. It returns the new cursor
// position and whether c matched the suffix byte at pos (treating a
// read past the stored suffix as an implicit terminator, 0).
func (t *Tail) WalkChar(i int32, pos int, c byte) (int, bool) {
	suf := t.blocks[i].suffix
	var got byte
	if pos < len(suf) {
		got = suf[pos]
	}
	if got != c {
		return pos, false
	}
	return pos + 1, true
}

// WalkStr advances a position cursor through as much of str as matches
// the suffix stored at block i, stopping at the first mismatch (or an
// implicit terminator past the end of the stored suffix). It returns
// the new cursor position and the number of bytes of str consumed.
func (t *Tail) WalkStr(i int32, pos int, str []byte) (newPos int, consumed int) {
	newPos = pos
	for _, c := range str {
		next, ok := t.WalkChar(i, newPos, c)
		if !ok {
			break
		}
		newPos = next
		consumed++
	}
	return newPos, consumed
}

// Save writes this Tail's on-disk section: magic, free-list head,
// block count, then each block's (next_free, data, suffix_len, suffix).
func (t *Tail) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, magic); err != nil {
		return errors.Wrap(err, "tail: write magic")
	}
	if err := binary.Write(w, binary.BigEndian, t.firstFree); err != nil {
		return errors.Wrap(err, "tail: write first_free")
	}
	if err := binary.Write(w, binary.BigEndian, int32(len(t.blocks))); err != nil {
		return errors.Wrap(err, "tail: write num_blocks")
	}
	for i, b := range t.blocks {
		if err := binary.Write(w, binary.BigEndian, b.nextFree); err != nil {
			return errors.Wrapf(err, "tail: write block %d next_free", i)
		}
		if err := binary.Write(w, binary.BigEndian, b.data); err != nil {
			return errors.Wrapf(err, "tail: write block %d data", i)
		}
		if len(b.suffix) > math.MaxInt16 {
			return errors.Errorf("tail: block %d suffix too long (%d bytes)", i, len(b.suffix))
		}
		if err := binary.Write(w, binary.BigEndian, int16(len(b.suffix))); err != nil {
			return errors.Wrapf(err, "tail: write block %d suffix_len", i)
		}
		if len(b.suffix) > 0 {
			if _, err := w.Write(b.suffix); err != nil {
				return errors.Wrapf(err, "tail: write block %d suffix", i)
			}
		}
	}
	return nil
}

// Load reads a Tail section written by Save, replacing the receiver's
// contents on success. On any error the receiver is left unmodified.
func (t *Tail) Load(r io.Reader) error {
	var gotMagic uint32
	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return errors.Wrap(err, "tail: read magic")
	}
	if gotMagic != magic {
		return ErrBadMagic
	}
	var firstFree, numBlocks int32
	if err := binary.Read(r, binary.BigEndian, &firstFree); err != nil {
		return errors.Wrap(err, "tail: read first_free")
	}
	if err := binary.Read(r, binary.BigEndian, &numBlocks); err != nil {
		return errors.Wrap(err, "tail: read num_blocks")
	}
	if numBlocks < 1 {
		return errors.Errorf("tail: invalid num_blocks %d", numBlocks)
	}
	blocks := make([]block, numBlocks)
	for i := range blocks {
		var b block
		if err := binary.Read(r, binary.BigEndian, &b.nextFree); err != nil {
			return errors.Wrapf(err, "tail: read block %d next_free", i)
		}
		if err := binary.Read(r, binary.BigEndian, &b.data); err != nil {
			return errors.Wrapf(err, "tail: read block %d data", i)
		}
		var sufLen int16
		if err := binary.Read(r, binary.BigEndian, &sufLen); err != nil {
			return errors.Wrapf(err, "tail: read block %d suffix_len", i)
		}
		if sufLen < 0 {
			return errors.Errorf("tail: block %d negative suffix_len %d", i, sufLen)
		}
		if sufLen > 0 {
			b.suffix = make([]byte, sufLen)
			if _, err := io.ReadFull(r, b.suffix); err != nil {
				return errors.Wrapf(err, "tail: read block %d suffix", i)
			}
		}
		blocks[i] = b
	}
	t.blocks = blocks
	t.firstFree = firstFree
	return nil
}
