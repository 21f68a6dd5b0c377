// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dict

import (
	"fmt"
	"math/rand"
	"testing"
)

func key(i int) []byte { return []byte(fmt.Sprintf("key-%06d", i)) }
func val(i int) []byte { return []byte(fmt.Sprintf("val-%06d", i)) }

func TestSetGetDelete(t *testing.T) {
	d := New(nil)
	if _, ok := d.Get([]byte("missing")); ok {
		t.Fatal("Get on empty dict reported ok")
	}

	if inserted := d.Set([]byte("k"), []byte("v1")); !inserted {
		t.Fatal("first Set reported an update, want insert")
	}
	if inserted := d.Set([]byte("k"), []byte("v2")); inserted {
		t.Fatal("second Set reported an insert, want update")
	}

	v, ok := d.Get([]byte("k"))
	if !ok || string(v) != "v2" {
		t.Fatalf("Get(k) = %q,%v, want v2,true", v, ok)
	}

	if !d.Delete([]byte("k")) {
		t.Fatal("Delete(k) reported not found")
	}
	if d.Delete([]byte("k")) {
		t.Fatal("second Delete(k) reported found")
	}
	if d.Len() != 0 {
		t.Fatalf("Len() = %d after delete, want 0", d.Len())
	}
}

// TestRehashUnderLoad drives 10,000 keys through a Dict and verifies every
// key is reachable and the total count stays correct throughout, including
// while rehashing is actively in progress (Set/Get/Delete all nudge
// rehashStep forward, so by the time all keys are in, any rehash triggered
// partway through the load must already have completed or be midway and
// still correct).
func TestRehashUnderLoad(t *testing.T) {
	const n = 10000
	d := New(nil)
	for i := 0; i < n; i++ {
		if !d.Set(key(i), val(i)) {
			t.Fatalf("Set(%d): reported update on first insert", i)
		}
	}
	if d.Len() != n {
		t.Fatalf("Len() = %d, want %d", d.Len(), n)
	}
	for i := 0; i < n; i++ {
		v, ok := d.Get(key(i))
		if !ok || string(v) != string(val(i)) {
			t.Fatalf("Get(%d) = %q,%v, want %q,true", i, v, ok, val(i))
		}
	}

	for i := 0; i < n; i += 2 {
		if !d.Delete(key(i)) {
			t.Fatalf("Delete(%d): not found", i)
		}
	}
	if d.Len() != n/2 {
		t.Fatalf("Len() after deleting half = %d, want %d", d.Len(), n/2)
	}
	for i := 1; i < n; i += 2 {
		if _, ok := d.Get(key(i)); !ok {
			t.Fatalf("key %d missing after deleting the even keys", i)
		}
	}
}

func TestSafeIteratorSuspendsRehash(t *testing.T) {
	d := New(nil)
	for i := 0; i < 200; i++ {
		d.Set(key(i), val(i))
	}
	// Force a rehash to be in progress.
	d.resize(uint64(len(d.ht[0].buckets)) * 4)
	if !d.isRehashing() {
		t.Skip("resize did not start a rehash, nothing to suspend")
	}

	it := NewSafeIterator(d)
	before := d.rehashidx
	d.Set(key(100000), val(100000)) // must not advance rehashidx while safe iterator is open
	if d.rehashidx != before {
		t.Fatalf("rehashidx advanced from %d to %d while a safe iterator was open", before, d.rehashidx)
	}
	it.Close()
}

func TestSafeIteratorVisitsEveryKey(t *testing.T) {
	d := New(nil)
	want := map[string]bool{}
	for i := 0; i < 500; i++ {
		d.Set(key(i), val(i))
		want[string(key(i))] = true
	}

	it := NewSafeIterator(d)
	got := map[string]bool{}
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		got[string(k)] = true
	}
	it.Close()

	if len(got) != len(want) {
		t.Fatalf("iterator visited %d keys, want %d", len(got), len(want))
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("iterator never visited key %q", k)
		}
	}
}

func TestUnsafeIteratorDetectsMutation(t *testing.T) {
	d := New(nil)
	for i := 0; i < 10; i++ {
		d.Set(key(i), val(i))
	}

	it := NewIterator(d)
	it.Next()
	d.Set(key(1000), val(1000))

	defer func() {
		if recover() == nil {
			t.Fatal("Close did not panic after a mutation during unsafe iteration")
		}
	}()
	it.Close()
}

func TestRandomEntryIsAMember(t *testing.T) {
	d := New(nil)
	for i := 0; i < 50; i++ {
		d.Set(key(i), val(i))
	}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		k, v, ok := d.RandomEntry(r)
		if !ok {
			t.Fatal("RandomEntry on non-empty dict reported not ok")
		}
		got, ok := d.Get(k)
		if !ok || string(got) != string(v) {
			t.Fatalf("RandomEntry returned a key/value pair not present in the dict: %q/%q", k, v)
		}
	}
}

func TestRandomKeysDistinctAndBounded(t *testing.T) {
	d := New(nil)
	for i := 0; i < 100; i++ {
		d.Set(key(i), val(i))
	}
	r := rand.New(rand.NewSource(2))
	keys := d.RandomKeys(r, 30)
	if len(keys) != 30 {
		t.Fatalf("RandomKeys(30) returned %d keys", len(keys))
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[string(k)] {
			t.Fatalf("RandomKeys returned duplicate key %q", k)
		}
		seen[string(k)] = true
		if _, ok := d.Get(k); !ok {
			t.Fatalf("RandomKeys returned a key not present in the dict: %q", k)
		}
	}
}

func TestRandomKeysCappedByLen(t *testing.T) {
	d := New(nil)
	for i := 0; i < 5; i++ {
		d.Set(key(i), val(i))
	}
	r := rand.New(rand.NewSource(3))
	keys := d.RandomKeys(r, 100)
	if len(keys) != 5 {
		t.Fatalf("RandomKeys(100) on a 5-key dict returned %d keys, want 5", len(keys))
	}
}

func TestSetResizeEnabledPreventsGrowth(t *testing.T) {
	d := New(nil)
	d.SetResizeEnabled(false)
	for i := 0; i < 1000; i++ {
		d.Set(key(i), val(i))
	}
	if d.isRehashing() {
		t.Fatal("rehash started despite SetResizeEnabled(false)")
	}
	d.SetResizeEnabled(true)
	d.expandIfNeeded()
	if !d.isRehashing() && len(d.ht[0].buckets) < d.Len() {
		t.Fatal("expected a resize to become possible once resizing was re-enabled")
	}
}
