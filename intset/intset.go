// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package intset implements a sorted, deduplicated set of signed integers
// packed into a single allocation whose element width is promoted on
// demand from 16 to 32 to 64 bits, mirroring intset.c.
//
// A Set is a handle exactly like a sds.S or a ziplist.List: Add and Remove
// may reallocate the backing storage and return a new handle. Callers MUST
// discard any Set value superseded by the return of a mutating call.
package intset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cznic/kvcore/alloc"
)

// Encoding widths. Their numeric values double as the on-disk "encoding"
// header field (spec ch. 6: "u32 encoding ∈ {2,4,8}"), exactly as
// INTSET_ENC_INT16/32/64 do in the original source.
const (
	Enc16 = 2
	Enc32 = 4
	Enc64 = 8
)

const headerSize = 8 // u32 encoding + u32 length

// Set is the packed intset blob: header(encoding, length) followed by
// length little-endian signed integers of the selected width, always
// kept strictly ascending and unique.
type Set []byte

// New returns an empty Set encoded at the narrowest width (Enc16), mirroring
// intsetNew.
func New() Set { return NewAlloc(alloc.Go{}) }

// NewAlloc is New using a caller-supplied Allocator.
func NewAlloc(a alloc.Allocator) Set {
	b, err := a.Alloc(headerSize)
	if err != nil {
		return nil
	}
	s := Set(b)
	s.setEncoding(Enc16)
	s.setLength(0)
	return s
}

func (s Set) encoding() uint32    { return alloc.Uint32(s[0:4]) }
func (s Set) setEncoding(e uint32) { alloc.PutUint32(s[0:4], e) }
func (s Set) length() uint32      { return alloc.Uint32(s[4:8]) }
func (s Set) setLength(n uint32)  { alloc.PutUint32(s[4:8], n) }

// Len returns the number of elements, mirroring intsetLen. O(1).
func (s Set) Len() int { return int(s.length()) }

// ByteSize returns the total size of the blob, mirroring intsetBlobLen. O(1).
func (s Set) ByteSize() int { return len(s) }

// Encoding returns the element width in bytes (Enc16, Enc32 or Enc64).
func (s Set) Encoding() int { return int(s.encoding()) }

func (s Set) at(pos int, width int) int64 {
	off := headerSize + pos*width
	switch width {
	case Enc16:
		return int64(int16(alloc.Uint16(s[off:])))
	case Enc32:
		return int64(int32(alloc.Uint32(s[off:])))
	default:
		return int64(alloc.Uint64(s[off:]))
	}
}

func (s Set) put(pos int, width int, v int64) {
	off := headerSize + pos*width
	switch width {
	case Enc16:
		alloc.PutUint16(s[off:], uint16(int16(v)))
	case Enc32:
		alloc.PutUint32(s[off:], uint32(int32(v)))
	default:
		alloc.PutUint64(s[off:], uint64(v))
	}
}

// widthFor returns the narrowest encoding able to represent v, mirroring
// _intsetValueEncoding.
func widthFor(v int64) int {
	switch {
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return Enc16
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return Enc32
	default:
		return Enc64
	}
}

// search performs a binary search for v in the current encoding's view,
// mirroring intsetSearch. It returns the element's index and true if found,
// or the insertion point (preserving ascending order) and false otherwise.
func (s Set) search(v int64) (pos int, found bool) {
	width := s.Encoding()
	lo, hi := 0, s.Len()-1
	if s.Len() == 0 {
		return 0, false
	}
	if v > s.at(hi, width) {
		return s.Len(), false
	}
	if v < s.at(0, width) {
		return 0, false
	}

	for lo <= hi {
		mid := (lo + hi) / 2
		cur := s.at(mid, width)
		switch {
		case cur == v:
			return mid, true
		case cur < v:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return lo, false
}

// Contains reports whether v is a member, mirroring intsetFind. O(log N).
func (s Set) Contains(v int64) bool {
	_, found := s.search(v)
	return found
}

// GetByIndex returns the element at pos in ascending order, mirroring
// intsetGet. O(1).
func (s Set) GetByIndex(pos int) (int64, bool) {
	if pos < 0 || pos >= s.Len() {
		return 0, false
	}
	return s.at(pos, s.Encoding()), true
}

// Min and Max return the smallest and largest members in O(1), a direct
// consequence of the sorted invariant - see SPEC_FULL.md §3.2.
func (s Set) Min() (int64, bool) { return s.GetByIndex(0) }
func (s Set) Max() (int64, bool) { return s.GetByIndex(s.Len() - 1) }

// Random returns a uniformly random element using r, mirroring
// intsetRandom.
func (s Set) Random(r *rand.Rand) (int64, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	return s.GetByIndex(r.Intn(s.Len()))
}

// Add inserts v if not already present, growing or widening the blob as
// needed, mirroring intsetAdd. The returned Set supersedes s; inserted is
// false (and the returned Set usable unchanged) if v was already a member.
func Add(a alloc.Allocator, s Set, v int64) (Set, bool) {
	need := widthFor(v)
	if need > s.Encoding() {
		return upgradeAndAdd(a, s, need, v)
	}

	pos, found := s.search(v)
	if found {
		return s, false
	}

	width := s.Encoding()
	n := s.Len()
	grown, err := a.Realloc([]byte(s), headerSize+(n+1)*width)
	if err != nil {
		return s, false
	}
	s = Set(grown)

	if pos < n {
		copy(s[headerSize+(pos+1)*width:], s[headerSize+pos*width:headerSize+n*width])
	}
	s.put(pos, width, v)
	s.setLength(uint32(n + 1))
	return s, true
}

// upgradeAndAdd widens every element to newWidth and appends v, which is
// guaranteed by the caller to be the new minimum or maximum, mirroring
// intsetUpgradeAndAdd: widening expands from the high-index end first so
// the in-place shift never overlaps data not yet moved.
func upgradeAndAdd(a alloc.Allocator, s Set, newWidth int, v int64) (Set, bool) {
	oldWidth := s.Encoding()
	n := s.Len()
	prepend := 0
	if v < 0 {
		prepend = 1
	}

	grown, err := a.Realloc([]byte(s), headerSize+(n+1)*newWidth)
	if err != nil {
		return s, false
	}
	s = Set(grown)

	// Expand from the last element to the first so the growing regions
	// never clobber data still to be read.
	for i := n - 1; i >= 0; i-- {
		old := int64At(s, headerSize+i*oldWidth, oldWidth)
		writeAt(s, headerSize+(i+prepend)*newWidth, newWidth, old)
	}

	s.setEncoding(uint32(newWidth))
	s.setLength(uint32(n + 1))
	if prepend == 1 {
		writeAt(s, headerSize, newWidth, v)
	} else {
		writeAt(s, headerSize+n*newWidth, newWidth, v)
	}
	return s, true
}

// int64At/writeAt read and write a signed integer of an arbitrary
// (possibly already-stale for the blob's *current* header) width at a raw
// byte offset; they exist because upgradeAndAdd must read elements at
// oldWidth while the blob's Encoding() field already may or may not have
// been updated to newWidth, depending on call order.
func int64At(s Set, off, width int) int64 {
	switch width {
	case Enc16:
		return int64(int16(alloc.Uint16(s[off:])))
	case Enc32:
		return int64(int32(alloc.Uint32(s[off:])))
	default:
		return int64(alloc.Uint64(s[off:]))
	}
}

func writeAt(s Set, off, width int, v int64) {
	switch width {
	case Enc16:
		alloc.PutUint16(s[off:], uint16(int16(v)))
	case Enc32:
		alloc.PutUint32(s[off:], uint32(int32(v)))
	default:
		alloc.PutUint64(s[off:], uint64(v))
	}
}

// Remove deletes v if present, shrinking the blob, mirroring intsetRemove.
// Never demotes the encoding, matching the "never demote" invariant of
// spec §4.2.
func Remove(a alloc.Allocator, s Set, v int64) (Set, bool) {
	if widthFor(v) > s.Encoding() {
		return s, false // cannot possibly be a member at a narrower width
	}

	pos, found := s.search(v)
	if !found {
		return s, false
	}

	width := s.Encoding()
	n := s.Len()
	if pos < n-1 {
		copy(s[headerSize+pos*width:], s[headerSize+(pos+1)*width:headerSize+n*width])
	}
	s.setLength(uint32(n - 1))

	shrunk, err := a.Realloc([]byte(s), headerSize+(n-1)*width)
	if err != nil {
		return s, true // length already updated; shrink failure just wastes space
	}
	return Set(shrunk), true
}

// Free releases s back to a, mirroring intsetFree's call into zfree.
func Free(a alloc.Allocator, s Set) { a.Free([]byte(s)) }

// Blob returns s itself: the in-memory layout already is the on-disk
// layout described by spec ch. 6, there is nothing further to encode.
func Blob(s Set) []byte { return s }

// FromBlob validates buf as an intset blob and returns it as a Set,
// mirroring the read side of rdbLoadObject's OBJ_ENCODING_INTSET case.
func FromBlob(buf []byte) (Set, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("intset: blob too short: %d bytes", len(buf))
	}
	s := Set(buf)
	switch s.Encoding() {
	case Enc16, Enc32, Enc64:
	default:
		return nil, fmt.Errorf("intset: invalid encoding %d", s.Encoding())
	}
	want := headerSize + s.Len()*s.Encoding()
	if len(buf) != want {
		return nil, fmt.Errorf("intset: blob size mismatch: have %d, want %d", len(buf), want)
	}
	return s, nil
}
