// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import "encoding/binary"

// The endian helper collaborator (spec ch. 6) is specified as an in-place
// byte swap applied only on a big-endian host. Per design note in §9 of the
// specification ("prefer explicit little-endian read/write helpers over
// native struct packing"), every on-disk integer in this module is read and
// written through the functions below instead of through native struct
// layout plus a conditional swap; on every platform Go runs on this has the
// identical observable effect and removes a whole class of alignment bugs
// that the C original works around with packed structs.

// PutUint16 stores v into b[0:2] in the little-endian layout shared by every
// wire format in this module (intset elements, ziplist integer payloads).
func PutUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// Uint16 is the inverse of PutUint16.
func Uint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// PutUint32 stores v into b[0:4] little-endian.
func PutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// Uint32 is the inverse of PutUint32.
func Uint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// PutUint64 stores v into b[0:8] little-endian.
func PutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// Uint64 is the inverse of PutUint64.
func Uint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
