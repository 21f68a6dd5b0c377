// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command kvcorebench exercises the sds, intset, ziplist and dict
// containers against randomly generated workloads and reports basic size
// and timing statistics, in the style of lldb/lab/1's allocator probe.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cznic/kvcore/alloc"
	"github.com/cznic/kvcore/dict"
	"github.com/cznic/kvcore/intset"
	"github.com/cznic/kvcore/sds"
	"github.com/cznic/kvcore/ziplist"
)

var (
	n      = flag.Int("n", 100000, "number of keys/elements to generate")
	seed   = flag.Int64("seed", 1, "random seed")
	pooled = flag.Bool("pooled", false, "use alloc.Pooled instead of alloc.Go")
)

func main() {
	flag.Parse()
	r := rand.New(rand.NewSource(*seed))

	var a alloc.Allocator = alloc.Go{}
	if *pooled {
		a = alloc.NewPooled(nil)
	}

	benchSDS(a, r)
	benchIntset(a, r)
	benchZiplist(a, r)
	benchDict(r)
}

func benchSDS(a alloc.Allocator, r *rand.Rand) {
	start := time.Now()
	s := sds.Empty()
	for i := 0; i < *n; i++ {
		s = sds.CatPrintf(a, s, "%d,", r.Int63())
	}
	log.Printf("sds: built a %s string from %s appends in %s",
		humanize.Bytes(uint64(sds.AllocSize(s))), humanize.Comma(int64(*n)), time.Since(start))
}

func benchIntset(a alloc.Allocator, r *rand.Rand) {
	start := time.Now()
	s := intset.New()
	for i := 0; i < *n; i++ {
		s, _ = intset.Add(a, s, r.Int63n(20_000_000_000)-10_000_000_000)
	}
	min, _ := s.Min()
	max, _ := s.Max()
	log.Printf("intset: %s members (encoding=%d, %s) in %s, range [%d, %d]",
		humanize.Comma(int64(s.Len())), s.Encoding(), humanize.Bytes(uint64(s.ByteSize())), time.Since(start), min, max)
}

func benchZiplist(a alloc.Allocator, r *rand.Rand) {
	start := time.Now()
	l := ziplist.New()
	for i := 0; i < min(*n, 5000); i++ {
		var err error
		if r.Intn(2) == 0 {
			l, err = ziplist.Push(a, l, []byte(fmt.Sprintf("%d", r.Int63n(1<<40))))
		} else {
			l, err = ziplist.Push(a, l, []byte(fmt.Sprintf("entry-%d-padding", i)))
		}
		if err != nil {
			log.Fatalf("ziplist: Push: %v", err)
		}
	}
	log.Printf("ziplist: %s entries, %s in %s",
		humanize.Comma(int64(l.Len())), humanize.Bytes(uint64(l.ByteSize())), time.Since(start))
}

func benchDict(r *rand.Rand) {
	start := time.Now()
	d := dict.New(nil)
	for i := 0; i < *n; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		v := []byte(fmt.Sprintf("val-%d", r.Int63()))
		d.Set(k, v)
	}
	hits := 0
	for i := 0; i < *n; i++ {
		if _, ok := d.Get([]byte(fmt.Sprintf("key-%d", i))); ok {
			hits++
		}
	}
	log.Printf("dict: %s keys, %s hits on lookup, built+probed in %s",
		humanize.Comma(int64(d.Len())), humanize.Comma(int64(hits)), time.Since(start))
}
