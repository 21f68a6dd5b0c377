// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import "math"

// ParseStrictInt64 parses b as a signed 64-bit integer using the strict
// grammar the original C source's string2ll applies when deciding whether a
// ziplist payload can be packed as an integer entry: optional leading '-',
// at least one digit, no leading '+', no leading zero unless the whole
// value is "0", no surrounding whitespace and no partial parse. It is the
// "string->integer parser" collaborator named in spec ch. 6.
//
// ok is false for anything that does not fit this grammar or that overflows
// int64; callers (ziplist's Try-encode-integer, intset.Add's caller) must
// fall back to treating b as an opaque string in that case.
func ParseStrictInt64(b []byte) (v int64, ok bool) {
	if len(b) == 0 {
		return 0, false
	}

	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i++
		if i == len(b) {
			return 0, false
		}
	}

	if b[i] == '0' {
		if neg || len(b)-i != 1 {
			return 0, false // "-0", "01", "-01" and similar are not canonical
		}
		return 0, true
	}

	var u uint64
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')

		const maxU64 = math.MaxUint64
		if u > (maxU64-d)/10 {
			return 0, false // overflow
		}
		u = u*10 + d
	}

	if neg {
		if u > -math.MinInt64 {
			return 0, false
		}
		return -int64(u), true
	}
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}
