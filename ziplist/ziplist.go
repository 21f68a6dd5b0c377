// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ziplist implements a compact, heterogeneous sequence of
// string/integer entries packed into a single allocation, mirroring
// ziplist.c. Small integers and short strings are packed without the
// per-element overhead a slice of interfaces or a linked list would carry.
//
// A List is a handle exactly like a sds.S or an intset.Set: Insert and
// Delete may reallocate the backing storage and return a new handle.
package ziplist

import (
	"fmt"
	"strconv"

	"github.com/cznic/kvcore/alloc"
)

const headerSize = 10 // u32 zlbytes, u32 zltail, u16 zllen
const end = 0xFF       // ZIP_END

// lenNeedsScan is the zllen sentinel meaning "more than fits in 16 bits",
// mirroring ZIPLIST_LENGTH's 65535 escape hatch: Len falls back to a full
// walk whenever the stored count reads this value.
const lenNeedsScan = 0xFFFF

// String length encodings (top two bits of the header byte), mirroring
// ZIP_STR_06B/14B/32B.
const (
	str6B  = 0x00
	str14B = 0x40
	str32B = 0x80
	strMask = 0xC0
)

// Integer encodings (the whole header byte, top two bits always 11),
// mirroring ZIP_INT_16B and friends.
const (
	int16B  = 0xC0
	int32B  = 0xD0
	int64B  = 0xE0
	int24B  = 0xF0
	int8B   = 0xFE
	immMin  = 0xF1
	immMax  = 0xFD
)

// New returns an empty List, mirroring ziplistNew.
func New() List { return NewAlloc(alloc.Go{}) }

// List is the packed entry sequence: header(zlbytes, zltail, zllen),
// entries, then a single ZIP_END byte.
type List []byte

// NewAlloc is New using a caller-supplied Allocator.
func NewAlloc(a alloc.Allocator) List {
	buf, err := a.Alloc(headerSize + 1)
	if err != nil {
		return nil
	}
	alloc.PutUint32(buf[0:4], uint32(len(buf)))
	alloc.PutUint32(buf[4:8], headerSize)
	alloc.PutUint16(buf[8:10], 0)
	buf[headerSize] = end
	return List(buf)
}

// ByteSize returns the total size of the blob, mirroring ziplistBlobLen.
func (l List) ByteSize() int { return len(l) }

// Len returns the number of entries, mirroring ziplistLen. When the stored
// 16-bit counter has saturated it falls back to an O(N) walk, exactly as
// ziplistLen does for lists longer than 65534 entries.
func (l List) Len() int {
	n := alloc.Uint16(l[8:10])
	if n != lenNeedsScan {
		return int(n)
	}
	count := 0
	l.Walk(func(int, []byte, bool, int64) bool {
		count++
		return true
	})
	return count
}

// entry describes one decoded element in place, without copying its
// content.
type entry struct {
	offset     int
	prevlen    int
	prevlenSz  int
	encByte    byte
	headerLen  int
	contentLen int
	isInt      bool
}

func (e entry) total() int { return e.prevlenSz + e.headerLen + e.contentLen }

// encodePrevlen returns the ZIP_DECODE_PREVLEN wire form of a previous
// entry's total size: one byte below 254, else a 254 marker followed by a
// 4-byte little-endian length, mirroring ZIP_ENCODE_PREVLEN.
func encodePrevlen(prevlen uint32) []byte {
	if prevlen < 254 {
		return []byte{byte(prevlen)}
	}
	b := make([]byte, 5)
	b[0] = 254
	alloc.PutUint32(b[1:], prevlen)
	return b
}

func decodePrevlen(b []byte) (prevlen uint32, size int) {
	if b[0] < 254 {
		return uint32(b[0]), 1
	}
	return alloc.Uint32(b[1:5]), 5
}

// decodeHeader reads the encoding byte(s) right after a prevlen field,
// mirroring ZIP_DECODE_LENGTH/ZIP_ENTRY_ENCODING.
func decodeHeader(b []byte) (headerLen, contentLen int, isInt bool, encByte byte) {
	first := b[0]
	if first&0xC0 == 0xC0 {
		switch first {
		case int8B:
			return 1, 1, true, first
		case int16B:
			return 1, 2, true, first
		case int24B:
			return 1, 3, true, first
		case int32B:
			return 1, 4, true, first
		case int64B:
			return 1, 8, true, first
		default: // 4-bit immediate, value 0..12 packed in the low nibble
			return 1, 0, true, first
		}
	}
	switch first & strMask {
	case str6B:
		return 1, int(first & 0x3F), false, first
	case str14B:
		return 2, (int(first&0x3F) << 8) | int(b[1]), false, first
	default: // str32B
		return 5, int(alloc.Uint32(b[1:5])), false, first
	}
}

func decodeEntryAt(l List, p int) entry {
	prevlen, prevlenSz := decodePrevlen(l[p:])
	headerLen, contentLen, isInt, encByte := decodeHeader(l[p+prevlenSz:])
	return entry{
		offset:     p,
		prevlen:    int(prevlen),
		prevlenSz:  prevlenSz,
		encByte:    encByte,
		headerLen:  headerLen,
		contentLen: contentLen,
		isInt:      isInt,
	}
}

func (e entry) content(l List) []byte {
	start := e.offset + e.prevlenSz + e.headerLen
	return l[start : start+e.contentLen]
}

// decodeInt reconstructs the signed value of an integer entry, mirroring
// zipLoadInteger.
func decodeInt(encByte byte, content []byte) int64 {
	switch encByte {
	case int8B:
		return int64(int8(content[0]))
	case int16B:
		return int64(int16(alloc.Uint16(content)))
	case int24B:
		u := uint32(content[0]) | uint32(content[1])<<8 | uint32(content[2])<<16
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return int64(int32(u))
	case int32B:
		return int64(int32(alloc.Uint32(content)))
	case int64B:
		return int64(alloc.Uint64(content))
	default: // immediate
		return int64(encByte&0x0F) - 1
	}
}

// zipTryEncoding picks the narrowest integer encoding able to hold value,
// mirroring zipTryEncoding: a string is only ever stored as an integer
// when alloc.ParseStrictInt64 accepts it as a canonical integer literal, so
// "007" or "+1" round-trip as strings exactly as sdsvalidate requires.
func zipTryEncoding(value []byte) (isInt bool, iv int64, encByte byte, contentLen int) {
	v, ok := alloc.ParseStrictInt64(value)
	if !ok {
		return false, 0, 0, 0
	}
	switch {
	case v >= 0 && v <= 12:
		return true, v, byte(immMin + v), 0
	case v >= -128 && v <= 127:
		return true, v, int8B, 1
	case v >= -32768 && v <= 32767:
		return true, v, int16B, 2
	case v >= -8388608 && v <= 8388607:
		return true, v, int24B, 3
	case v >= -2147483648 && v <= 2147483647:
		return true, v, int32B, 4
	default:
		return true, v, int64B, 8
	}
}

// encodeFixed returns the header+content bytes for value, independent of
// any prevlen: the portion of an entry whose size is determined purely by
// the value being stored.
func encodeFixed(value []byte) []byte {
	isInt, iv, encByte, contentLen := zipTryEncoding(value)
	if !isInt {
		return append(encodeLength(len(value)), value...)
	}
	if contentLen == 0 {
		return []byte{encByte}
	}
	content := make([]byte, contentLen)
	switch contentLen {
	case 1:
		content[0] = byte(int8(iv))
	case 2:
		alloc.PutUint16(content, uint16(int16(iv)))
	case 3:
		content[0] = byte(iv)
		content[1] = byte(iv >> 8)
		content[2] = byte(iv >> 16)
	case 4:
		alloc.PutUint32(content, uint32(int32(iv)))
	case 8:
		alloc.PutUint64(content, uint64(iv))
	}
	return append([]byte{encByte}, content...)
}

func encodeLength(n int) []byte {
	switch {
	case n < 64:
		return []byte{byte(str6B | n)}
	case n < 16384:
		return []byte{byte(str14B | (n >> 8)), byte(n)}
	default:
		b := make([]byte, 5)
		b[0] = str32B
		alloc.PutUint32(b[1:], uint32(n))
		return b
	}
}

// fixedEntries walks l and returns, for every entry, the header+content
// bytes with the per-entry prevlen field stripped out, plus the byte width
// that field currently occupies on disk (1 or 5). minPrevlenSz needs that
// width to preserve an entry's already-forced-large prevlen field across a
// rebuild.
func fixedEntries(l List) (fixed [][]byte, prevlenSz []int) {
	p := headerSize
	for l[p] != end {
		e := decodeEntryAt(l, p)
		f := make([]byte, e.headerLen+e.contentLen)
		copy(f, l[p+e.prevlenSz:p+e.total()])
		fixed = append(fixed, f)
		prevlenSz = append(prevlenSz, e.prevlenSz)
		p += e.total()
	}
	return fixed, prevlenSz
}

// encodePrevlenMin is encodePrevlen except it never returns a shorter
// encoding than minSz bytes already occupied, mirroring
// __ziplistCascadeUpdate's refusal to shrink a prevlen field it once forced
// to the 5-byte form back down to 1 byte, even once the value it carries
// would fit in one: repeatedly growing an entry past 254 bytes and then
// shrinking it back would otherwise cascade a 1<->5 byte flip through every
// following entry on each change. minSz is 0 for a freshly inserted entry,
// which has no prior on-disk form to preserve.
//
// __ziplistCascadeUpdate itself only applies this rule a field at a time
// while walking forward from the edited point, and stops at the first field
// it finds already wide enough; the entry immediately adjacent to an edit is
// resized to the minimal width by a separate, unconditional computation
// (__ziplistDelete's zipPrevLenByteDiff) before the cascade ever starts.
// Applying the never-shrink rule to every surviving entry instead of only
// the ones a real forward walk would still touch is a deliberate
// broadening: it never drops below the original's minimum width picked for
// any entry, so it cannot under-size a field, but it can occasionally keep
// a field at 5 bytes where __ziplistCascadeUpdate would have shrunk the one
// entry directly next to the edit back to 1. Both forms decode to the same
// values; this rebuild trades that rare extra 4 bytes for not having to
// distinguish "the edit-adjacent entry" from "everything after it".
func encodePrevlenMin(prevlen uint32, minSz int) []byte {
	if minSz >= 5 {
		b := make([]byte, 5)
		b[0] = 254
		alloc.PutUint32(b[1:], prevlen)
		return b
	}
	return encodePrevlen(prevlen)
}

// rebuild lays out fixed entries back to back, recomputing every prevlen
// field from scratch in a single forward pass. This is the cascade update
// of spec §4.3 expressed directly: growing one entry's fixed size can only
// ever change the *next* entry's prevlen width, never an entry further
// back, so one left-to-right pass already reaches the same fixed point
// __ziplistCascadeUpdate reaches by iterative patching, modulo the
// edit-adjacent shrink __ziplistCascadeUpdate permits and encodePrevlenMin
// does not (see its doc comment).
func rebuild(a alloc.Allocator, fixed [][]byte, minPrevlenSz []int) (List, error) {
	var body []byte
	offsets := make([]int, len(fixed))
	prevTotal := 0
	for i, f := range fixed {
		pb := encodePrevlenMin(uint32(prevTotal), minPrevlenSz[i])
		offsets[i] = headerSize + len(body)
		body = append(body, pb...)
		body = append(body, f...)
		prevTotal = len(pb) + len(f)
	}

	total := headerSize + len(body) + 1
	buf, err := a.Alloc(total)
	if err != nil {
		return nil, err
	}
	alloc.PutUint32(buf[0:4], uint32(total))
	tail := uint32(headerSize)
	if len(fixed) > 0 {
		tail = uint32(offsets[len(fixed)-1])
	}
	alloc.PutUint32(buf[4:8], tail)
	if len(fixed) >= lenNeedsScan {
		alloc.PutUint16(buf[8:10], lenNeedsScan)
	} else {
		alloc.PutUint16(buf[8:10], uint16(len(fixed)))
	}
	copy(buf[headerSize:], body)
	buf[total-1] = end
	return List(buf), nil
}

// Insert places value at index, shifting entries at and after index one
// position to the right, mirroring __ziplistInsert. index == l.Len()
// appends. It is an error for index to fall outside [0, l.Len()].
func Insert(a alloc.Allocator, l List, index int, value []byte) (List, error) {
	fixed, sizes := fixedEntries(l)
	if index < 0 || index > len(fixed) {
		return l, fmt.Errorf("ziplist: Insert: index %d out of range [0,%d]", index, len(fixed))
	}
	out := make([][]byte, 0, len(fixed)+1)
	outSizes := make([]int, 0, len(sizes)+1)
	out = append(out, fixed[:index]...)
	outSizes = append(outSizes, sizes[:index]...)
	out = append(out, encodeFixed(value))
	outSizes = append(outSizes, 0)
	out = append(out, fixed[index:]...)
	outSizes = append(outSizes, sizes[index:]...)
	return rebuild(a, out, outSizes)
}

// Push appends value, mirroring ziplistPush(..., ZIPLIST_TAIL).
func Push(a alloc.Allocator, l List, value []byte) (List, error) {
	return Insert(a, l, l.Len(), value)
}

// Prepend inserts value at the head, mirroring ziplistPush(...,
// ZIPLIST_HEAD).
func Prepend(a alloc.Allocator, l List, value []byte) (List, error) {
	return Insert(a, l, 0, value)
}

// Delete removes the entry at index, mirroring __ziplistDelete for a
// single-entry range.
func Delete(a alloc.Allocator, l List, index int) (List, error) {
	return DeleteRange(a, l, index, 1)
}

// DeleteRange removes count entries starting at index, mirroring
// ziplistDeleteRange.
func DeleteRange(a alloc.Allocator, l List, index, count int) (List, error) {
	fixed, sizes := fixedEntries(l)
	if index < 0 || count < 0 || index+count > len(fixed) {
		return l, fmt.Errorf("ziplist: DeleteRange: [%d,%d) out of range for length %d", index, index+count, len(fixed))
	}
	out := make([][]byte, 0, len(fixed)-count)
	outSizes := make([]int, 0, len(sizes)-count)
	out = append(out, fixed[:index]...)
	outSizes = append(outSizes, sizes[:index]...)
	out = append(out, fixed[index+count:]...)
	outSizes = append(outSizes, sizes[index+count:]...)
	return rebuild(a, out, outSizes)
}

// resolveIndex turns a possibly-negative index (counting from the tail,
// -1 being the last entry) into an absolute one, mirroring
// ziplistIndex's handling of a negative index argument.
func resolveIndex(l List, index int) int {
	if index >= 0 {
		return index
	}
	return l.Len() + index
}

// Get returns the value at index, decoded to its string form. isInt and
// intVal report the entry's native representation, mirroring ziplistGet's
// dual string/integer out-parameters.
func Get(l List, index int) (value []byte, isInt bool, intVal int64, ok bool) {
	index = resolveIndex(l, index)
	if index < 0 {
		return nil, false, 0, false
	}
	p := headerSize
	i := 0
	for l[p] != end {
		e := decodeEntryAt(l, p)
		if i == index {
			content := e.content(l)
			if e.isInt {
				iv := decodeInt(e.encByte, content)
				return []byte(strconv.FormatInt(iv, 10)), true, iv, true
			}
			out := make([]byte, len(content))
			copy(out, content)
			return out, false, 0, true
		}
		p += e.total()
		i++
	}
	return nil, false, 0, false
}

// Walk calls fn for every entry in order, stopping early if fn returns
// false, mirroring a ziplistNext-driven traversal loop.
func (l List) Walk(fn func(index int, value []byte, isInt bool, intVal int64) bool) {
	p := headerSize
	i := 0
	for l[p] != end {
		e := decodeEntryAt(l, p)
		content := e.content(l)
		if e.isInt {
			iv := decodeInt(e.encByte, content)
			if !fn(i, []byte(strconv.FormatInt(iv, 10)), true, iv) {
				return
			}
		} else {
			if !fn(i, content, false, 0) {
				return
			}
		}
		p += e.total()
		i++
	}
}

// Find returns the index of the first entry equal to target, mirroring
// ziplistFind. An integer entry is compared numerically against target
// when target itself parses as a canonical integer literal, matching
// zipCompare's fast path; otherwise the comparison is a raw byte compare.
func Find(l List, target []byte) (index int, ok bool) {
	tv, tIsInt := alloc.ParseStrictInt64(target)
	found := -1
	l.Walk(func(i int, value []byte, isInt bool, intVal int64) bool {
		match := false
		switch {
		case isInt && tIsInt:
			match = intVal == tv
		case !isInt && !tIsInt:
			match = string(value) == string(target)
		}
		if match {
			found = i
			return false
		}
		return true
	})
	if found < 0 {
		return 0, false
	}
	return found, true
}

// Merge concatenates first and second into a single new List, mirroring
// ziplistMerge.
func Merge(a alloc.Allocator, first, second List) (List, error) {
	firstFixed, firstSizes := fixedEntries(first)
	secondFixed, secondSizes := fixedEntries(second)
	out := append(firstFixed, secondFixed...)
	outSizes := append(firstSizes, secondSizes...)
	return rebuild(a, out, outSizes)
}

// Free releases l back to a, mirroring ziplistFree's call into zfree; kept
// for symmetry with sds.Free/intset.Free so callers can treat every
// container handle uniformly.
func Free(a alloc.Allocator, l List) { a.Free([]byte(l)) }

// Blob returns l itself: the in-memory layout already is the on-disk
// layout described by spec §6.
func Blob(l List) []byte { return l }

// FromBlob validates buf as a ziplist blob and returns it as a List,
// mirroring the read side of rdbLoadObject's OBJ_ENCODING_ZIPLIST case.
func FromBlob(buf []byte) (List, error) {
	if len(buf) < headerSize+1 {
		return nil, fmt.Errorf("ziplist: blob too short: %d bytes", len(buf))
	}
	if buf[len(buf)-1] != end {
		return nil, fmt.Errorf("ziplist: blob missing end marker")
	}
	if int(alloc.Uint32(buf[0:4])) != len(buf) {
		return nil, fmt.Errorf("ziplist: zlbytes mismatch: header says %d, blob is %d bytes", alloc.Uint32(buf[0:4]), len(buf))
	}
	l := List(buf)
	p := headerSize
	for p < len(buf)-1 {
		if buf[p] == end {
			return nil, fmt.Errorf("ziplist: unexpected end marker at offset %d", p)
		}
		// The prevlen field and the encoding header must lie inside the blob
		// before decodeEntryAt reads them.
		hdr := 1
		if buf[p] == 254 {
			hdr = 5
		}
		if p+hdr < len(buf)-1 {
			switch buf[p+hdr] & strMask {
			case str14B:
				hdr++
			case str32B:
				hdr += 4
			}
		}
		if p+hdr >= len(buf)-1 {
			return nil, fmt.Errorf("ziplist: corrupt entry at offset %d", p)
		}
		e := decodeEntryAt(l, p)
		if e.total() <= 0 || p+e.total() > len(buf)-1 {
			return nil, fmt.Errorf("ziplist: corrupt entry at offset %d", p)
		}
		p += e.total()
	}
	if p != len(buf)-1 {
		return nil, fmt.Errorf("ziplist: trailing garbage before end marker")
	}
	return l, nil
}
