// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dict implements a hash table that rehashes incrementally across
// two sub-tables, mirroring dict.c. Growing or shrinking never stalls on a
// single large rehash: each lookup or mutating call migrates one bucket
// from the old table into the new one, spreading the cost of a resize
// across the calls that follow it.
package dict

import (
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

// initialSize is the bucket count of a freshly created table, mirroring
// DICT_HT_INITIAL_SIZE.
const initialSize = 4

// rehashBatchBuckets is how many non-empty source buckets the incremental
// rehash step run by each lookup or mutating call migrates, mirroring the
// _dictRehashStep call of dictRehash(d, 1).
const rehashBatchBuckets = 1

// emptyVisitsPerStep caps how many empty buckets in total a single
// rehashStep call will skip over before giving up for this call, so a
// table with a long run of empty buckets (a large table rehashing toward
// a much smaller one) cannot turn one "step" into an unbounded scan.
const emptyVisitsPerStep = rehashBatchBuckets * 10

// loadFactor is the used/size ratio at which the next Set grows the table,
// mirroring the used >= size condition dictExpandIfNeeded checks. There is
// no separate forced-growth ratio: while resizing is disabled with
// SetResizeEnabled(false), the table does not grow however full it gets.
const loadFactor = 1.0

// Type bundles the callbacks a Dict needs to treat keys and values as
// opaque, mirroring dictType. HashFunc defaults to xxhash64 when nil, and
// KeyEqual defaults to a byte-for-byte compare when nil.
type Type struct {
	HashFunc func(key []byte) uint64
	KeyEqual func(a, b []byte) bool
}

// DefaultType is the Type every New call uses unless told otherwise,
// mirroring the BenchmarkDictType role many redis callers pass.
var DefaultType = &Type{}

func (t *Type) hash(key []byte) uint64 {
	if t.HashFunc != nil {
		return t.HashFunc(key)
	}
	return xxhash.Sum64(key)
}

func (t *Type) equal(a, b []byte) bool {
	if t.KeyEqual != nil {
		return t.KeyEqual(a, b)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type entry struct {
	key  []byte
	val  []byte
	hash uint64
	next *entry
}

type table struct {
	buckets []*entry
	mask    uint64
	used    int
}

func newTable(size uint64) table {
	return table{buckets: make([]*entry, size), mask: size - 1}
}

// Dict is a hash table from []byte keys to []byte values.
type Dict struct {
	typ           *Type
	ht            [2]table
	rehashidx     int64 // -1 when not rehashing
	iterators     int   // count of live safe iterators; pauses rehashing
	resizeEnabled bool
}

// New returns an empty Dict using typ, or DefaultType if typ is nil,
// mirroring dictCreate.
func New(typ *Type) *Dict {
	if typ == nil {
		typ = DefaultType
	}
	return &Dict{typ: typ, rehashidx: -1, resizeEnabled: true}
}

// Len returns the total number of keys across both sub-tables, mirroring
// dictSize.
func (d *Dict) Len() int { return d.ht[0].used + d.ht[1].used }

// isRehashing reports whether a rehash is in progress, mirroring
// dictIsRehashing.
func (d *Dict) isRehashing() bool { return d.rehashidx != -1 }

// SetResizeEnabled toggles automatic growth, mirroring
// dictEnableResize/dictDisableResize - used so a caller performing a bulk
// load (e.g. replaying an RDB-style snapshot) can defer all resizing to
// the end instead of paying for it key by key.
func (d *Dict) SetResizeEnabled(enabled bool) { d.resizeEnabled = enabled }

// rehashStep migrates up to rehashBatchBuckets non-empty source buckets
// from ht[0] into ht[1], mirroring dictRehash(d, n). It is called once at
// the start of every mutating and lookup operation while a rehash is in
// progress, which is how dictRehash is invoked from dictAddRaw,
// dictGenericDelete and dictFind alike. It is a no-op while any safe
// iterator is live, the same suspension dictPauseRehashing enforces.
func (d *Dict) rehashStep(n int) {
	if !d.isRehashing() {
		return
	}
	if d.iterators > 0 {
		return
	}

	emptyVisits := emptyVisitsPerStep
	for ; n > 0 && d.ht[0].used != 0; n-- {
		for d.ht[0].buckets[d.rehashidx] == nil {
			d.rehashidx++
			emptyVisits--
			if emptyVisits == 0 {
				return
			}
		}

		e := d.ht[0].buckets[d.rehashidx]
		for e != nil {
			next := e.next
			idx := e.hash & d.ht[1].mask
			e.next = d.ht[1].buckets[idx]
			d.ht[1].buckets[idx] = e
			d.ht[0].used--
			d.ht[1].used++
			e = next
		}
		d.ht[0].buckets[d.rehashidx] = nil
		d.rehashidx++
	}

	if d.ht[0].used == 0 {
		d.ht[0] = d.ht[1]
		d.ht[1] = table{}
		d.rehashidx = -1
	}
}

// expandIfNeeded grows the table when the load factor is exceeded,
// mirroring _dictExpandIfNeeded. Resizing is skipped entirely while a safe
// iterator is live or the caller disabled it via SetResizeEnabled, the
// same two guards dictExpandIfNeeded checks.
func (d *Dict) expandIfNeeded() {
	if d.isRehashing() {
		return
	}
	if d.ht[0].buckets == nil {
		d.ht[0] = newTable(initialSize)
		return
	}
	if !d.resizeEnabled || d.iterators > 0 {
		return
	}
	if float64(d.ht[0].used) >= float64(len(d.ht[0].buckets))*loadFactor {
		d.resize(nextPowerOfTwo(uint64(d.ht[0].used) * 2))
	}
}

func nextPowerOfTwo(n uint64) uint64 {
	if n < initialSize {
		return initialSize
	}
	size := uint64(initialSize)
	for size < n {
		size <<= 1
	}
	return size
}

// resize begins an incremental rehash into a table of the given size,
// mirroring dictExpand once dictResize has rounded size up to the next
// power of two.
func (d *Dict) resize(size uint64) {
	size = nextPowerOfTwo(size)
	if d.isRehashing() || uint64(d.ht[0].used) > size {
		return
	}
	d.ht[1] = newTable(size)
	d.rehashidx = 0
}

// Shrink requests a resize to fit the current element count, mirroring a
// caller-triggered dictResize (redis calls this from serverCron / after a
// bulk delete, rather than automatically on every Delete).
func (d *Dict) Shrink() {
	if d.isRehashing() || !d.resizeEnabled || d.iterators > 0 {
		return
	}
	used := d.Len()
	if used == 0 {
		return
	}
	d.resize(uint64(used))
}

func (d *Dict) find(key []byte, h uint64) (*table, int, *entry) {
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		if t.buckets == nil {
			continue
		}
		idx := h & t.mask
		for e := t.buckets[idx]; e != nil; e = e.next {
			if e.hash == h && d.typ.equal(e.key, key) {
				return t, int(idx), e
			}
		}
		if !d.isRehashing() {
			break
		}
	}
	return nil, 0, nil
}

// Get looks up key, mirroring dictFind/dictFetchValue. O(1) amortized.
func (d *Dict) Get(key []byte) ([]byte, bool) {
	if d.Len() == 0 {
		return nil, false
	}
	d.rehashStep(rehashBatchBuckets)
	h := d.typ.hash(key)
	_, _, e := d.find(key, h)
	if e == nil {
		return nil, false
	}
	return e.val, true
}

// Set inserts key/val, replacing any existing value for key, mirroring
// dictReplace. It reports whether key was newly inserted (true) or an
// existing value was overwritten (false).
func (d *Dict) Set(key, val []byte) bool {
	d.rehashStep(rehashBatchBuckets)
	d.expandIfNeeded()

	h := d.typ.hash(key)
	if _, _, e := d.find(key, h); e != nil {
		e.val = val
		return false
	}

	t := &d.ht[0]
	if d.isRehashing() {
		t = &d.ht[1]
	}
	idx := h & t.mask
	e := &entry{key: key, val: val, hash: h, next: t.buckets[idx]}
	t.buckets[idx] = e
	t.used++
	return true
}

// Delete removes key, mirroring dictDelete. It reports whether key was
// present.
func (d *Dict) Delete(key []byte) bool {
	if d.Len() == 0 {
		return false
	}
	d.rehashStep(rehashBatchBuckets)

	h := d.typ.hash(key)
	for i := 0; i <= 1; i++ {
		t := &d.ht[i]
		if t.buckets == nil {
			continue
		}
		idx := h & t.mask
		var prev *entry
		for e := t.buckets[idx]; e != nil; e = e.next {
			if e.hash == h && d.typ.equal(e.key, key) {
				if prev == nil {
					t.buckets[idx] = e.next
				} else {
					prev.next = e.next
				}
				t.used--
				return true
			}
			prev = e
		}
		if !d.isRehashing() {
			break
		}
	}
	return false
}

// RandomEntry returns one pseudorandomly chosen key/value pair, mirroring
// dictGetRandomKey's two-phase approach: pick a non-empty bucket at
// random, then a random entry within its chain.
func (d *Dict) RandomEntry(r *rand.Rand) (key, val []byte, ok bool) {
	if d.Len() == 0 {
		return nil, nil, false
	}
	d.rehashStep(rehashBatchBuckets)

	var e *entry
	if d.isRehashing() {
		for e == nil {
			idx := uint64(r.Int63()) & (d.ht[0].mask | d.ht[1].mask)
			e = bucketAt(d.ht[0], idx)
			if e == nil {
				e = bucketAt(d.ht[1], idx)
			}
		}
	} else {
		for e == nil {
			idx := uint64(r.Int63()) & d.ht[0].mask
			e = d.ht[0].buckets[idx]
		}
	}

	n := 0
	for cur := e; cur != nil; cur = cur.next {
		n++
	}
	pick := r.Intn(n)
	for i := 0; i < pick; i++ {
		e = e.next
	}
	return e.key, e.val, true
}

func bucketAt(t table, idx uint64) *entry {
	if t.buckets == nil || idx > t.mask {
		return nil
	}
	return t.buckets[idx]
}

// RandomKeys samples up to count distinct keys without replacement,
// mirroring dictGetSomeKeys's best-effort sampling: it walks forward from a
// random starting bucket across both sub-tables, stopping once count keys
// are collected or a full cycle of buckets adds nothing new. On a sparse
// table the walk can visit many empty buckets before it has count keys.
func (d *Dict) RandomKeys(r *rand.Rand, count int) [][]byte {
	if count > d.Len() {
		count = d.Len()
	}
	if count <= 0 {
		return nil
	}

	out := make([][]byte, 0, count)
	seen := map[*entry]bool{}
	tables := 1
	if d.isRehashing() {
		tables = 2
	}
	maxMask := d.ht[0].mask
	if tables == 2 && d.ht[1].mask > maxMask {
		maxMask = d.ht[1].mask
	}

	start := uint64(r.Int63()) & maxMask
	for stepsWithoutGain, idx := 0, start; len(out) < count && stepsWithoutGain < int(maxMask)+1; idx = (idx + 1) & maxMask {
		before := len(out)
		for i := 0; i < tables; i++ {
			t := d.ht[i]
			if t.buckets == nil || idx > t.mask {
				continue
			}
			for e := t.buckets[idx]; e != nil && len(out) < count; e = e.next {
				if seen[e] {
					continue
				}
				seen[e] = true
				out = append(out, e.key)
			}
		}
		if len(out) == before {
			stepsWithoutGain++
		} else {
			stepsWithoutGain = 0
		}
	}
	return out
}

// Iterator walks every key/value pair of a Dict exactly once (barring a
// concurrent resize reshuffling chains, which only a safe iterator
// tolerates), mirroring dictIterator.
type Iterator struct {
	d           *Dict
	safe        bool
	tableIdx    int
	bucketIdx   int64
	cur, next   *entry
	fingerprint uint64
}

// NewIterator returns an unsafe iterator: cheaper, but Set/Delete on d
// during iteration is undefined behavior, detected on a best-effort basis
// via a fingerprint check in Close, mirroring dictGetIterator's contract.
func NewIterator(d *Dict) *Iterator {
	return &Iterator{d: d, tableIdx: 0, bucketIdx: -1, fingerprint: d.fingerprint()}
}

// NewSafeIterator returns a safe iterator: d.Set/Delete may be called
// during iteration (new keys may or may not be visited), at the cost of
// suspending rehashing for as long as the iterator is open, mirroring
// dictGetSafeIterator.
func NewSafeIterator(d *Dict) *Iterator {
	d.iterators++
	return &Iterator{d: d, safe: true, tableIdx: 0, bucketIdx: -1}
}

// Next advances the iterator, mirroring dictNext.
func (it *Iterator) Next() (key, val []byte, ok bool) {
	for {
		if it.cur == nil {
			t := &it.d.ht[it.tableIdx]
			if it.bucketIdx == -1 && it.tableIdx == 0 {
				it.bucketIdx = 0
			}
			for t.buckets == nil || it.bucketIdx > int64(t.mask) {
				if it.tableIdx == 0 && it.d.isRehashing() {
					it.tableIdx++
					it.bucketIdx = 0
					t = &it.d.ht[it.tableIdx]
					continue
				}
				return nil, nil, false
			}
			it.cur = t.buckets[it.bucketIdx]
			it.bucketIdx++
			continue
		}
		e := it.cur
		it.cur = e.next
		return e.key, e.val, true
	}
}

// Close releases a safe iterator's hold on rehashing, mirroring
// dictReleaseIterator. It panics if an unsafe iterator detects that d was
// mutated during iteration, the same misuse dictReleaseIterator's
// fingerprint assertion catches in a debug build.
func (it *Iterator) Close() {
	if it.safe {
		it.d.iterators--
		return
	}
	if it.fingerprint != it.d.fingerprint() {
		panic(&UsageError{Op: "Iterator.Close", Msg: "dict was mutated during an unsafe iteration"})
	}
}

// fingerprint hashes each sub-table's bucket count, mask and used count,
// which change on every insert, delete, rehash or resize, standing in for
// dictFingerprint's hash of internal pointers as an opaque mutation counter.
func (d *Dict) fingerprint() uint64 {
	h := xxhash.New()
	for i := range d.ht {
		var buf [24]byte
		putUint64(buf[0:8], uint64(len(d.ht[i].buckets)))
		putUint64(buf[8:16], d.ht[i].mask)
		putUint64(buf[16:24], uint64(d.ht[i].used))
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// UsageError reports a violation of a dict API contract - an unsafe
// iterator surviving a mutation, mirroring dict.c's assert(iter->fingerprint
// == dictFingerprint(iter->d)).
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string { return fmt.Sprintf("dict: %s: %s", e.Op, e.Msg) }
