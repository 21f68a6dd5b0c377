// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The allocator collaborator: raw byte-region management for the container
// packages. This plays the role lldb.Allocator/lldb.Filer play for the
// B-Tree/Array layer of dbm, but the "file" here is the process heap instead
// of an os.File, since spec ch. 1 excludes persistence to disk.

package alloc

import "math/bits"

// An Allocator provides the four primitives every container in this module
// needs and nothing else: allocate, resize, release and report the usable
// size of a region. No two live regions returned by the same Allocator may
// overlap.
//
// Passing a region not obtained from, or already released back to, the same
// Allocator to any other method results in undefined behavior - exactly the
// contract lldb.Allocator documents for its handles.
type Allocator interface {
	// Alloc returns a new region of exactly n bytes, zeroed.
	Alloc(n int) ([]byte, error)

	// Realloc resizes p to n bytes, preserving the content in [0,
	// min(len(p), n)) and zeroing any newly added tail. The returned
	// slice may or may not alias p; callers MUST stop using p once
	// Realloc returns, following the same rule as the ziplist/intset
	// "handle-returning mutation" design note.
	Realloc(p []byte, n int) ([]byte, error)

	// Free releases p. p must not be used afterwards.
	Free(p []byte)

	// Size reports the usable capacity of a region returned by Alloc or
	// Realloc, mirroring lldb's Allocator.alloc_size reporting hook.
	Size(p []byte) int
}

// Go is the zero-value, zero-configuration Allocator: the sds, intset and
// ziplist constructors default to it. It delegates directly to the Go runtime
// allocator via make/append, performing no pooling of its own - the
// runtime's size classes already do that job.
type Go struct{}

func (Go) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNoMemory
	}
	return make([]byte, n), nil
}

func (Go) Realloc(p []byte, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNoMemory
	}
	if cap(p) >= n {
		out := p[:n]
		for i := len(p); i < n; i++ {
			out[i] = 0
		}
		return out, nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

func (Go) Free([]byte) {}

func (Go) Size(p []byte) int { return cap(p) }

// classSize rounds n up to the next lldb-FLTPowersOf2-style size class: 1,
// 2, 4, 8, ... A region is never reused for a request larger than its own
// class, matching the "MUST reuse a big enough free block" rule of
// lldb.Allocator.alloc.
func classSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(bits.Len(uint(n-1)))
}

// Pooled is a free-list-table allocator in the style of lldb's
// NewFLTAllocator(FLTPowersOf2): freed regions are bucketed by size class
// into per-class free lists and are the first thing tried on the next
// Alloc of the same size class, before falling back to the
// underlying Allocator (growing the "file"). Unlike lldb.Allocator there is
// no on-disk free list header to persist and no block relocation - the Go
// slice header already gives every container a stable handle across a
// pool-satisfied Realloc, which is the problem lldb's relocated-block tag
// solves for file offsets.
type Pooled struct {
	under Allocator
	free  map[int][][]byte
}

// NewPooled returns a Pooled allocator delegating cache misses to under. A
// nil under defaults to Go{}.
func NewPooled(under Allocator) *Pooled {
	if under == nil {
		under = Go{}
	}
	return &Pooled{under: under, free: map[int][][]byte{}}
}

func (p *Pooled) take(class int) []byte {
	l := p.free[class]
	if len(l) == 0 {
		return nil
	}
	n := len(l) - 1
	b := l[n]
	p.free[class] = l[:n]
	return b
}

func (p *Pooled) Alloc(n int) ([]byte, error) {
	class := classSize(n)
	if b := p.take(class); b != nil {
		b = b[:n]
		for i := range b {
			b[i] = 0
		}
		return b, nil
	}

	b, err := p.under.Alloc(class)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

func (p *Pooled) Realloc(b []byte, n int) ([]byte, error) {
	if cap(b) >= n {
		out := b[:n]
		for i := len(b); i < n; i++ {
			out[i] = 0
		}
		return out, nil
	}

	out, err := p.Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(out, b)
	p.Free(b)
	return out, nil
}

func (p *Pooled) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	class := classSize(cap(b))
	p.free[class] = append(p.free[class], b[:0:class])
}

func (p *Pooled) Size(b []byte) int { return cap(b) }
