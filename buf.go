// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jls

import (
	"encoding/binary"
	"math"
)

// buf is a growable byte buffer with independent read and write cursors,
// the scratch type every chunk payload is assembled into and decoded out
// of. It plays the role the teacher's encbuf/decbuf pair plays in
// index.go, merged into one type so the same type serves both directions:
// writers build payloads with newBuf, readers wrap on-disk payloads with
// bufFromBytes.
type buf struct {
	b   []byte
	rpos int
}

func newBuf(capacity int) *buf {
	return &buf{b: make([]byte, 0, capacity)}
}

// bufFromBytes wraps an existing slice for reading only; writes append
// past len(b) the same as any other buf.
func bufFromBytes(b []byte) *buf {
	return &buf{b: b}
}

func (u *buf) Bytes() []byte { return u.b }
func (u *buf) Len() int      { return len(u.b) }

// Reset empties the buffer for reuse without releasing its capacity.
func (u *buf) Reset() {
	u.b = u.b[:0]
	u.rpos = 0
}

// RewindRead moves the read cursor back to the start without touching
// write-side content, for callers that write then immediately re-read
// (e.g. to checksum what was just built).
func (u *buf) RewindRead() { u.rpos = 0 }

func (u *buf) grow(extra int) {
	need := len(u.b) + extra
	if need <= cap(u.b) {
		return
	}
	newCap := cap(u.b)
	if newCap == 0 {
		newCap = 64
	}
	for newCap < need {
		newCap *= 2
	}
	nb := make([]byte, len(u.b), newCap)
	copy(nb, u.b)
	u.b = nb
}

// Realloc guarantees at least newLen bytes of capacity, preserving content;
// it is the explicit form of grow for callers that know their target size
// up front (signal buffers sized to samples_per_data, for instance).
func (u *buf) Realloc(newLen int) {
	if newLen <= cap(u.b) {
		return
	}
	u.grow(newLen - len(u.b))
}

func (u *buf) WrZero(n int) {
	u.grow(n)
	u.b = append(u.b, make([]byte, n)...)
}

func (u *buf) WrBytes(p []byte) {
	u.grow(len(p))
	u.b = append(u.b, p...)
}

// WrStr writes s as UTF-8 bytes followed by a NUL terminator.
func (u *buf) WrStr(s string) {
	u.grow(len(s) + 1)
	u.b = append(u.b, s...)
	u.b = append(u.b, 0)
}

func (u *buf) WrU8(v uint8) { u.WrBytes([]byte{v}) }

func (u *buf) WrU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	u.WrBytes(tmp[:])
}

func (u *buf) WrU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	u.WrBytes(tmp[:])
}

func (u *buf) WrU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	u.WrBytes(tmp[:])
}

func (u *buf) WrI64(v int64) { u.WrU64(uint64(v)) }

func (u *buf) WrF32(v float32) { u.WrU32(math.Float32bits(v)) }
func (u *buf) WrF64(v float64) { u.WrU64(math.Float64bits(v)) }

func (u *buf) remaining() int { return len(u.b) - u.rpos }

func (u *buf) rdBytesInto(n int) ([]byte, error) {
	if u.remaining() < n {
		return nil, newErr(Empty, "buf: need %d bytes, have %d", n, u.remaining())
	}
	out := u.b[u.rpos : u.rpos+n]
	u.rpos += n
	return out, nil
}

func (u *buf) RdBytes(n int) ([]byte, error) {
	raw, err := u.rdBytesInto(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// RdStr returns a borrowed slice into the buffer up to (and consuming) the
// next NUL terminator.
func (u *buf) RdStr() (string, error) {
	for i := u.rpos; i < len(u.b); i++ {
		if u.b[i] == 0 {
			s := string(u.b[u.rpos:i])
			u.rpos = i + 1
			return s, nil
		}
	}
	return "", newErr(Empty, "buf: unterminated string")
}

func (u *buf) RdU8() (uint8, error) {
	raw, err := u.rdBytesInto(1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (u *buf) RdU16() (uint16, error) {
	raw, err := u.rdBytesInto(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw), nil
}

func (u *buf) RdU32() (uint32, error) {
	raw, err := u.rdBytesInto(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (u *buf) RdU64() (uint64, error) {
	raw, err := u.rdBytesInto(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (u *buf) RdI64() (int64, error) {
	v, err := u.RdU64()
	return int64(v), err
}

func (u *buf) RdF32() (float32, error) {
	v, err := u.RdU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (u *buf) RdF64() (float64, error) {
	v, err := u.RdU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
