// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sds

import (
	"fmt"

	"github.com/cznic/kvcore/alloc"
)

// SplitShellArgs splits line the way a POSIX shell would split a single
// command line into argv, mirroring sdssplitargs: single-quoted sections
// are taken literally, double-quoted sections understand the backslash
// escapes \n \r \t \b \a, \xHH and \\/\"/\' (the same escapes are honored
// in an unquoted token too), and unquoted runs are separated by any run of
// spaces, tabs or newlines. It returns an error
// for an unterminated quote, matching sdssplitargs returning NULL on a
// malformed line.
func SplitShellArgs(line string) ([]S, error) {
	var out []S
	i := 0
	n := len(line)

	isSpace := func(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

	for {
		for i < n && isSpace(line[i]) {
			i++
		}
		if i == n {
			break
		}

		cur := Empty()
		inQuotes := false
		inSingle := false
		done := false
		for !done {
			switch {
			case inQuotes:
				switch {
				case i == n:
					return nil, fmt.Errorf("sds: SplitShellArgs: unterminated double quote")
				case line[i] == '\\' && i+1 < n:
					c, adv := unescape(line[i+1:])
					cur = CatBytes(alloc.Go{}, cur, []byte{c})
					i += 1 + adv
				case line[i] == '"':
					if i+1 < n && !isSpace(line[i+1]) {
						return nil, fmt.Errorf("sds: SplitShellArgs: closing quote must be followed by a space")
					}
					inQuotes = false
					i++
					done = true
				default:
					cur = CatBytes(alloc.Go{}, cur, []byte{line[i]})
					i++
				}
			case inSingle:
				switch {
				case i == n:
					return nil, fmt.Errorf("sds: SplitShellArgs: unterminated single quote")
				case line[i] == '\\' && i+1 < n && line[i+1] == '\'':
					cur = CatBytes(alloc.Go{}, cur, []byte{'\''})
					i += 2
				case line[i] == '\'':
					if i+1 < n && !isSpace(line[i+1]) {
						return nil, fmt.Errorf("sds: SplitShellArgs: closing quote must be followed by a space")
					}
					inSingle = false
					i++
					done = true
				default:
					cur = CatBytes(alloc.Go{}, cur, []byte{line[i]})
					i++
				}
			default:
				switch {
				case i == n || isSpace(line[i]):
					done = true
				case line[i] == '"':
					inQuotes = true
					i++
				case line[i] == '\'':
					inSingle = true
					i++
				case line[i] == '\\' && i+1 < n:
					c, adv := unescape(line[i+1:])
					cur = CatBytes(alloc.Go{}, cur, []byte{c})
					i += 1 + adv
				default:
					cur = CatBytes(alloc.Go{}, cur, []byte{line[i]})
					i++
				}
			}
		}
		out = append(out, cur)
	}
	return out, nil
}

// unescape decodes one backslash escape starting right after the
// backslash, returning the decoded byte and how many input bytes (beyond
// the backslash itself) it consumed.
func unescape(rest string) (byte, int) {
	switch rest[0] {
	case 'n':
		return '\n', 1
	case 'r':
		return '\r', 1
	case 't':
		return '\t', 1
	case 'b':
		return '\b', 1
	case 'a':
		return '\a', 1
	case 'x':
		if len(rest) >= 3 {
			if v, ok := hexByte(rest[1], rest[2]); ok {
				return v, 3
			}
		}
		return 'x', 1
	default:
		return rest[0], 1
	}
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexNibble(hi)
	l, ok2 := hexNibble(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
