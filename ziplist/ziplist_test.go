// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ziplist

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/cznic/kvcore/alloc"
)

func TestNewEmpty(t *testing.T) {
	l := New()
	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", l.Len())
	}
	if _, err := FromBlob(Blob(l)); err != nil {
		t.Fatalf("FromBlob(New()): %v", err)
	}
}

func TestPushAndGet(t *testing.T) {
	l := New()
	var err error
	for _, v := range []string{"alpha", "beta", "gamma"} {
		l, err = Push(alloc.Go{}, l, []byte(v))
		if err != nil {
			t.Fatalf("Push(%q): %v", v, err)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		v, isInt, _, ok := Get(l, i)
		if !ok || isInt || string(v) != want {
			t.Fatalf("Get(%d) = %q,%v,%v; want %q,false,true", i, v, isInt, ok, want)
		}
	}
}

func TestPrependInsertDelete(t *testing.T) {
	l := New()
	l, _ = Push(alloc.Go{}, l, []byte("b"))
	l, _ = Prepend(alloc.Go{}, l, []byte("a"))
	l, err := Insert(alloc.Go{}, l, 2, []byte("c"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i, w := range want {
		v, _, _, ok := Get(l, i)
		if !ok || string(v) != w {
			t.Fatalf("Get(%d) = %q, want %q", i, v, w)
		}
	}

	l, err = Delete(alloc.Go{}, l, 1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("Len() after Delete = %d, want 2", l.Len())
	}
	v, _, _, _ := Get(l, 1)
	if string(v) != "c" {
		t.Fatalf("Get(1) after Delete = %q, want c", v)
	}
}

func TestNegativeIndex(t *testing.T) {
	l := New()
	l, _ = Push(alloc.Go{}, l, []byte("first"))
	l, _ = Push(alloc.Go{}, l, []byte("last"))
	v, _, _, ok := Get(l, -1)
	if !ok || string(v) != "last" {
		t.Fatalf("Get(-1) = %q,%v, want last,true", v, ok)
	}
}

// TestIntegerPacking walks the encoding-selection boundary values: 0 and 12
// pack as 4-bit immediates, 13 and 127 as int8, 128 and 32767 as int16, and
// 32768 as int24, mirroring the encoding ladder of zipTryEncoding.
func TestIntegerPacking(t *testing.T) {
	cases := []struct {
		value    int64
		wantEnc  byte
	}{
		{0, immMin},
		{12, immMin + 12},
		{13, int8B},
		{127, int8B},
		{128, int16B},
		{32767, int16B},
		{32768, int24B},
	}

	l := New()
	for _, c := range cases {
		var err error
		l, err = Push(alloc.Go{}, l, []byte(strconv.FormatInt(c.value, 10)))
		if err != nil {
			t.Fatalf("Push(%d): %v", c.value, err)
		}
	}

	for i, c := range cases {
		v, isInt, iv, ok := Get(l, i)
		if !ok || !isInt || iv != c.value {
			t.Fatalf("Get(%d) = %q,%v,%d; want int %d", i, v, isInt, iv, c.value)
		}
		fixed, _ := fixedEntries(l)
		fx := fixed[i]
		if fx[0] != c.wantEnc {
			t.Fatalf("value %d encoded with header byte 0x%02x, want 0x%02x", c.value, fx[0], c.wantEnc)
		}
	}
}

func TestNonCanonicalIntegerStringStaysAString(t *testing.T) {
	l := New()
	l, _ = Push(alloc.Go{}, l, []byte("007"))
	v, isInt, _, ok := Get(l, 0)
	if !ok || isInt || string(v) != "007" {
		t.Fatalf("Get(0) = %q,%v,%v; want \"007\",false,true", v, isInt, ok)
	}
}

// TestCascadeUpdate pushes four string entries with payloads of 253, 253,
// 253 and 254 bytes. Every entry's total size is at least 254 bytes from
// the very first one on, so each following entry must carry the 5-byte
// prevlen form while the first keeps the 1-byte form, and every payload
// must read back intact after the prevlen fields are laid out.
func TestCascadeUpdate(t *testing.T) {
	sizes := []int{253, 253, 253, 254}
	payloads := make([][]byte, len(sizes))
	for i, n := range sizes {
		p := make([]byte, n)
		for j := range p {
			p[j] = byte('A' + i)
		}
		payloads[i] = p
	}

	l := New()
	for _, p := range payloads {
		var err error
		l, err = Push(alloc.Go{}, l, p)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	entries, _ := fixedEntries(l)
	// entry 0 total size (prevlen=1 + header(2, since 253>=64) + 253) = 256,
	// which exceeds 254 and forces every subsequent entry's prevlen to the
	// 5-byte form.
	p := headerSize
	e0 := decodeEntryAt(l, p)
	if e0.prevlenSz != 1 {
		t.Fatalf("entry 0 prevlenSz = %d, want 1", e0.prevlenSz)
	}
	p += e0.total()
	for i := 1; i < len(sizes); i++ {
		e := decodeEntryAt(l, p)
		if e.prevlenSz != 5 {
			t.Fatalf("entry %d prevlenSz = %d, want 5 (cascade did not propagate)", i, e.prevlenSz)
		}
		p += e.total()
	}

	for i, want := range payloads {
		v, _, _, ok := Get(l, i)
		if !ok || !bytes.Equal(v, want) {
			t.Fatalf("entry %d corrupted by cascade update", i)
		}
	}
	_ = entries
}

// TestCascadeNeverShrinks repeats the TestCascadeUpdate setup (forcing
// entries 1-3's prevlen fields to the 5-byte form) and then replaces the
// large entry 0 with a tiny one. The entries that were already forced to
// the 5-byte form must stay that way; for entry 1 that holds even though
// its new prevlen value (6) would fit in 1 byte, matching
// __ziplistCascadeUpdate's refusal to shrink.
func TestCascadeNeverShrinks(t *testing.T) {
	sizes := []int{253, 253, 253, 254}
	payloads := make([][]byte, len(sizes))
	for i, n := range sizes {
		p := make([]byte, n)
		for j := range p {
			p[j] = byte('A' + i)
		}
		payloads[i] = p
	}

	l := New()
	for _, p := range payloads {
		var err error
		l, err = Push(alloc.Go{}, l, p)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	l, err := Delete(alloc.Go{}, l, 0)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	l, err = Insert(alloc.Go{}, l, 0, []byte("tiny"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	p := headerSize
	e0 := decodeEntryAt(l, p)
	if e0.prevlenSz != 1 {
		t.Fatalf("new entry 0 prevlenSz = %d, want 1", e0.prevlenSz)
	}
	p += e0.total()
	for i := 1; i < len(sizes); i++ {
		e := decodeEntryAt(l, p)
		if e.prevlenSz != 5 {
			t.Fatalf("entry %d prevlenSz = %d, want 5 (forced-large field shrank)", i, e.prevlenSz)
		}
		p += e.total()
	}

	v, _, _, ok := Get(l, 0)
	if !ok || string(v) != "tiny" {
		t.Fatalf("Get(0) = %q,%v, want tiny,true", v, ok)
	}
	for i, want := range payloads[1:] {
		v, _, _, ok := Get(l, i+1)
		if !ok || !bytes.Equal(v, want) {
			t.Fatalf("entry %d corrupted, got %q", i+1, v)
		}
	}
}

func TestFind(t *testing.T) {
	l := New()
	l, _ = Push(alloc.Go{}, l, []byte("x"))
	l, _ = Push(alloc.Go{}, l, []byte("42"))
	l, _ = Push(alloc.Go{}, l, []byte("y"))

	idx, ok := Find(l, []byte("42"))
	if !ok || idx != 1 {
		t.Fatalf("Find(42) = %d,%v, want 1,true", idx, ok)
	}
	if _, ok := Find(l, []byte("missing")); ok {
		t.Fatal("Find(missing) reported found")
	}
}

func TestWalkStopsEarly(t *testing.T) {
	l := New()
	for _, v := range []string{"a", "b", "c", "d"} {
		l, _ = Push(alloc.Go{}, l, []byte(v))
	}
	var seen []string
	l.Walk(func(i int, v []byte, isInt bool, iv int64) bool {
		seen = append(seen, string(v))
		return i < 1
	})
	if len(seen) != 2 {
		t.Fatalf("Walk visited %d entries, want 2 (stopped early)", len(seen))
	}
}

func TestMerge(t *testing.T) {
	a := New()
	a, _ = Push(alloc.Go{}, a, []byte("1"))
	a, _ = Push(alloc.Go{}, a, []byte("2"))
	b := New()
	b, _ = Push(alloc.Go{}, b, []byte("3"))

	m, err := Merge(alloc.Go{}, a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	for i, want := range []string{"1", "2", "3"} {
		v, _, _, _ := Get(m, i)
		if string(v) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, v, want)
		}
	}
}

func TestDeleteRangeOutOfBounds(t *testing.T) {
	l := New()
	l, _ = Push(alloc.Go{}, l, []byte("a"))
	if _, err := DeleteRange(alloc.Go{}, l, 0, 5); err == nil {
		t.Fatal("expected error deleting out-of-range count")
	}
}

func TestFromBlobRejectsGarbage(t *testing.T) {
	if _, err := FromBlob([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for too-short blob")
	}
	l := New()
	buf := append([]byte(nil), Blob(l)...)
	buf[len(buf)-1] = 0x00 // corrupt the end marker
	if _, err := FromBlob(buf); err == nil {
		t.Fatal("expected error for missing end marker")
	}
}
