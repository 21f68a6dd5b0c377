// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sds implements a binary-safe, heap-allocated dynamic string
// buffer with overallocation semantics.
//
// A S is a handle into a single allocation, exactly as a C sds is a pointer
// into the payload of a sdshdr: mutating operations may reallocate the
// backing storage and return a new handle. Callers MUST stop using any S
// value superseded by the return of a mutating call, the same rule
// lldb.Allocator documents for its handles.
package sds

import (
	"bytes"
	"fmt"

	"github.com/cznic/kvcore/alloc"
)

// maxPrealloc caps the doubling growth strategy of Reserve; above this many
// bytes requested capacity grows additively instead of geometrically, so a
// very large string does not waste an amount of memory proportional to its
// own size.
const maxPrealloc = 1024 * 1024

// S is a dynamic string handle. len(s) is the "len" field of spec §3.1;
// cap(s)-len(s) is the "free" field - Go's slice header already carries
// both, so no separate sdshdr needs to be modeled in memory. Blob/FromBlob
// produce and parse the on-disk header-plus-NUL layout spec §6 requires for
// binary compatibility.
type S []byte

// New copies init into a freshly allocated S with zero free capacity,
// mirroring sdsnewlen.
func New(init []byte) S { return NewAlloc(alloc.Go{}, init) }

// NewAlloc is New using a caller-supplied Allocator, letting a heavy user
// (e.g. a hash table whose values are all short sds) opt into alloc.Pooled.
func NewAlloc(a alloc.Allocator, init []byte) S {
	buf, err := a.Alloc(len(init))
	if err != nil {
		return nil
	}
	copy(buf, init)
	return S(buf)
}

// Empty returns a zero-length S, mirroring sdsempty.
func Empty() S { return New(nil) }

// Dup returns an independent copy of s, mirroring sdsdup.
func (s S) Dup() S { return New(s) }

// Free releases s back to a, mirroring sdsfree. The Go garbage collector
// makes this optional for correctness - callers using the default
// allocator need not call it - but it is required to return a buffer to an
// alloc.Pooled allocator for reuse.
func Free(a alloc.Allocator, s S) { a.Free([]byte(s)) }

// Len returns the used byte count, mirroring sdslen. O(1).
func (s S) Len() int { return len(s) }

// Avail returns the unused capacity before the implicit terminator,
// mirroring sdsavail. O(1).
func (s S) Avail() int { return cap(s) - len(s) }

// Reserve ensures at least addLen bytes of free capacity, growing s
// according to the policy of spec §4.1: double the requested new length
// below maxPrealloc, else grow additively by maxPrealloc. Reserve is a
// no-op if free capacity already suffices. A nil result signals allocation
// failure (spec §4.1 "Failure").
func Reserve(a alloc.Allocator, s S, addLen int) S {
	if s.Avail() >= addLen {
		return s
	}

	newLen := len(s) + addLen
	if newLen < maxPrealloc {
		newLen *= 2
	} else {
		newLen += maxPrealloc
	}

	grown, err := a.Realloc([]byte(s), newLen+1) // +1: the C layout's terminator byte; here it counts in Avail()
	if err != nil {
		return nil
	}
	return S(grown[:len(s)])
}

// GrowZero extends s with zero bytes up to length n, mirroring sdsgrowzero.
// It is a no-op if n <= len(s).
func GrowZero(a alloc.Allocator, s S, n int) S {
	if n <= len(s) {
		return s
	}
	cur := len(s)
	s = Reserve(a, s, n-cur)
	if s == nil {
		return nil
	}
	s = s[:n]
	for i := cur; i < n; i++ {
		s[i] = 0
	}
	return s
}

// CatBytes appends t to s, reallocating if needed, mirroring sdscatlen.
func CatBytes(a alloc.Allocator, s S, t []byte) S {
	s = Reserve(a, s, len(t))
	if s == nil {
		return nil
	}
	n := len(s)
	s = s[:n+len(t)]
	copy(s[n:], t)
	return s
}

// Cat appends other's content to s, mirroring sdscatsds.
func Cat(a alloc.Allocator, s S, other S) S { return CatBytes(a, s, other) }

// CatPrintf appends the result of fmt.Sprintf(format, args...) to s,
// mirroring sdscatprintf/sdscatvprintf.
func CatPrintf(a alloc.Allocator, s S, format string, args ...interface{}) S {
	return CatBytes(a, s, []byte(fmt.Sprintf(format, args...)))
}

// Clear empties s without releasing its storage, mirroring sdsclear's lazy
// free: len becomes 0 and the previous length becomes free capacity, so a
// caller can reuse the same scratch string across many operations.
func Clear(s S) S { return s[:0] }

// TrimCharSet removes every leading and trailing byte found in cutset,
// mirroring sdstrim. The trim happens in place via a single shift; no
// reallocation occurs and the freed tail becomes available capacity.
func TrimCharSet(s S, cutset string) S {
	start, end := 0, len(s)
	for start < end && bytes.IndexByte([]byte(cutset), s[start]) >= 0 {
		start++
	}
	for end > start && bytes.IndexByte([]byte(cutset), s[end-1]) >= 0 {
		end--
	}
	n := copy(s, s[start:end])
	return s[:n]
}

// SubRange keeps only the inclusive byte range [start, end], mirroring
// sdsrange. Negative indices count from the end of s, the same convention
// ziplist.Get uses.
func SubRange(s S, start, end int) S {
	l := len(s)
	if l == 0 {
		return s
	}

	if start < 0 {
		start = l + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = l + end
		if end < 0 {
			end = 0
		}
	}

	n := 0
	if start <= end && start < l {
		if end >= l {
			end = l - 1
		}
		n = end - start + 1
	} else {
		start, n = 0, 0
	}

	if start != 0 && n != 0 {
		copy(s, s[start:start+n])
	}
	return s[:n]
}

// IndexOf returns the position of the first occurrence of sep in s, or -1
// if sep does not occur.
func (s S) IndexOf(sep byte) int { return bytes.IndexByte(s, sep) }

// Compare performs a lexicographic byte comparison; a shorter string that
// is a prefix of a longer one sorts first, mirroring sdscmp (which itself
// defers to memcmp plus a length tiebreak).
func Compare(a, b S) int { return bytes.Compare(a, b) }

// SplitBySeparator splits s on every occurrence of sep, mirroring
// sdssplitlen. A nil or empty sep returns a single-element result
// containing all of s, matching the C implementation's degenerate case.
func SplitBySeparator(s, sep []byte) []S {
	if len(sep) == 0 {
		return []S{New(s)}
	}

	var out []S
	start := 0
	for i := 0; i+len(sep) <= len(s); i++ {
		if bytes.Equal(s[i:i+len(sep)], sep) {
			out = append(out, New(s[start:i]))
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	out = append(out, New(s[start:]))
	return out
}

// MapChars replaces, in place, every byte of s found in from with the byte
// at the same position of to, mirroring sdsmapchars. from and to must have
// equal length.
func MapChars(s S, from, to string) S {
	if len(from) != len(to) {
		panic(&alloc.UsageError{Op: "MapChars", Arg: fmt.Sprintf("len(from)=%d, len(to)=%d", len(from), len(to))})
	}
	for i, c := range s {
		if j := bytes.IndexByte([]byte(from), c); j >= 0 {
			s[i] = to[j]
		}
	}
	return s
}

// Join concatenates parts separated by sep, mirroring sdsjoin.
func Join(parts []S, sep []byte) S {
	out := Empty()
	for i, p := range parts {
		if i > 0 {
			out = CatBytes(alloc.Go{}, out, sep)
		}
		out = CatBytes(alloc.Go{}, out, p)
	}
	return out
}

// IncrLen notifies s that incr bytes were written directly into its free
// tail (e.g. by a caller that read(2)'d straight into Avail()'s space) and
// that its length should move accordingly. incr may be negative, mirroring
// sdsIncrLen's use for truncating a speculative write. It never
// reallocates.
func IncrLen(s S, incr int) S {
	n := len(s) + incr
	if n < 0 || n > cap(s) {
		panic(&alloc.UsageError{Op: "IncrLen", Arg: n})
	}
	return s[:n]
}

// ShrinkToFit releases all free capacity, mirroring sdsRemoveFreeSpace.
func ShrinkToFit(a alloc.Allocator, s S) S {
	if s.Avail() == 0 {
		return s
	}
	out, err := a.Alloc(len(s))
	if err != nil {
		return s
	}
	copy(out, s)
	a.Free([]byte(s))
	return S(out)
}

// AllocSize reports the total number of bytes backing s, including free
// capacity, mirroring sdsAllocSize.
func AllocSize(s S) int { return cap(s) }

const headerSize = 8 // u32 len + u32 free

// Blob serializes s into the wire format of spec §6: a u32 len, a u32 free,
// then len+free payload bytes followed by a single NUL terminator - the
// exact layout an on-disk sdshdr would occupy.
func Blob(s S) []byte {
	free := s.Avail()
	out := make([]byte, headerSize+len(s)+free+1)
	alloc.PutUint32(out[0:4], uint32(len(s)))
	alloc.PutUint32(out[4:8], uint32(free))
	copy(out[headerSize:], s)
	return out
}

// FromBlob parses the layout Blob produces. It returns an error rather than
// panicking on a malformed blob, per spec §7's "nothing partially mutates"
// rule - there is nothing to mutate here, but garbage input must not panic
// a caller decoding untrusted bytes.
func FromBlob(b []byte) (S, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("sds: blob too short: %d bytes", len(b))
	}
	l := alloc.Uint32(b[0:4])
	free := alloc.Uint32(b[4:8])
	want := headerSize + int(l) + int(free) + 1
	if len(b) != want {
		return nil, fmt.Errorf("sds: blob size mismatch: have %d, want %d", len(b), want)
	}
	if b[want-1] != 0 {
		return nil, fmt.Errorf("sds: blob missing NUL terminator")
	}

	payload := b[headerSize : headerSize+int(l)+int(free)]
	s := make(S, int(l), int(l)+int(free))
	copy(s, payload[:l])
	return s, nil
}
